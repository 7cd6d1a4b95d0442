package handler

import (
	"context"
	"net/http"
	"time"

	"blagajna/internal/middleware"
	"blagajna/pkg/response"

	"github.com/gin-gonic/gin"
)

// Echoer checks the connection to the Authority.
type Echoer interface {
	Echo(ctx context.Context, message string) error
}

type AuthorityHandler struct {
	echoer Echoer
	auth   *middleware.Auth
}

func NewAuthorityHandler(echoer Echoer, auth *middleware.Auth) *AuthorityHandler {
	return &AuthorityHandler{echoer: echoer, auth: auth}
}

func (h *AuthorityHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/authority")
	group.Use(h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleManager))
	{
		group.GET("/echo", h.Echo)
	}
}

// Echo round-trips a message through the Authority's echo endpoint
// @Summary      Authority echo
// @Description  Verifies certificates and connectivity without any fiscal side effect
// @Tags         authority
// @Security     BearerAuth
// @Produce      json
// @Param        message  query     string  false  "Message to echo (default: ping)"
// @Success      200      {object}  response.Response{data=object}
// @Failure      502      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/authority/echo [get]
func (h *AuthorityHandler) Echo(c *gin.Context) {
	message := c.DefaultQuery("message", "ping")

	start := time.Now()
	if err := h.echoer.Echo(c.Request.Context(), message); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"echo":       message,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}))
}
