package handler

import (
	"errors"
	"net/http"

	"blagajna/internal/authority"
	"blagajna/internal/fiscal"
	"blagajna/internal/middleware"
	"blagajna/internal/service"
	"blagajna/pkg/pagination"
	"blagajna/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	auth           *middleware.Auth
}

func NewInvoiceHandler(invoiceService service.InvoiceService, auth *middleware.Auth) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, auth: auth}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.POST("", h.auth.RequireRole(middleware.RoleCashier, middleware.RoleManager), h.IssueInvoice)
		invoices.GET("", h.auth.RequireRole(middleware.RoleCashier, middleware.RoleManager, middleware.RoleAdmin), h.ListInvoices)
		invoices.GET("/:id", h.auth.RequireRole(middleware.RoleCashier, middleware.RoleManager, middleware.RoleAdmin), h.GetInvoice)
		invoices.POST("/:id/storno", h.auth.RequireRole(middleware.RoleManager), h.IssueStorno)
	}
}

// IssueInvoice certifies a sale with the Authority
// @Summary      Issue invoice
// @Description  Takes the next number of the device, certifies the invoice with the Authority and stores it
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.IssueInvoiceRequest  true  "Invoice draft"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Failure      504      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) IssueInvoice(c *gin.Context) {
	var req service.IssueInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.IssueInvoice(c.Request.Context(), operator(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// IssueStorno reverses a confirmed invoice
// @Summary      Issue storno
// @Description  Certifies a reversal of a confirmed invoice under a new number of the same device
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      201  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Failure      504  {object}  response.Response
// @Router       /api/invoices/{id}/storno [post]
func (h *InvoiceHandler) IssueStorno(c *gin.Context) {
	invoice, err := h.invoiceService.IssueStorno(c.Request.Context(), c.Param("id"), operator(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// GetInvoice returns a single invoice
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// ListInvoices returns a paginated list of invoices, optionally filtered by status
// @Summary      List invoices
// @Description  Retrieves a paginated list of invoices, optionally filtered by status, premise and device
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        status     query     string  false  "Filter by status (CONFIRMED, REJECTED, UNRESOLVED)"
// @Param        premise_id query     string  false  "Filter by business premise"
// @Param        device_id  query     string  false  "Filter by electronic device"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=object}
// @Failure      500        {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	params := pagination.Parse(c)

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), service.InvoiceFilter{
		Status:    c.Query("status"),
		PremiseID: c.Query("premise_id"),
		DeviceID:  c.Query("device_id"),
		Page:      params.Page,
		Limit:     params.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to retrieve invoices: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.Page("invoices", invoices, total, params)))
}

func operator(c *gin.Context) service.Operator {
	return service.Operator{
		Actor:     middleware.Actor(c),
		TaxNumber: middleware.OperatorTaxNumber(c),
	}
}

// writeError maps pipeline errors to HTTP statuses. Ambiguous outcomes carry the
// invoice identity so it can be reconciled.
func writeError(c *gin.Context, err error) {
	status := errorStatus(err)

	var subErr *service.SubmissionError
	if errors.As(err, &subErr) {
		c.JSON(status, response.ErrorWithData(status, err.Error(), map[string]interface{}{
			"identifier": subErr.Identity.String(),
			"message_id": subErr.MessageID,
			"eor":        subErr.EOR,
		}))
		return
	}
	c.JSON(status, response.Error(status, err.Error()))
}

func errorStatus(err error) int {
	var (
		validationErr   *fiscal.ValidationError
		conflictErr     *service.SequencingConflictError
		ambiguousErr    *authority.AmbiguousOutcomeError
		verificationErr *authority.VerificationError
		transportErr    *authority.TransportError
	)

	switch {
	case errors.As(err, &conflictErr),
		errors.Is(err, service.ErrNotReversible),
		errors.Is(err, service.ErrAlreadyReversed),
		errors.Is(err, fiscal.ErrNotReversible):
		return http.StatusConflict
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvoiceNotFound):
		return http.StatusNotFound
	case errors.As(err, &ambiguousErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &verificationErr):
		return http.StatusBadGateway
	case errors.As(err, &transportErr):
		if transportErr.Delivered() {
			return http.StatusBadGateway
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
