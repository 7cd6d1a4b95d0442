package middleware

import (
	"net/http"
	"strings"

	"blagajna/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Operator roles carried in the "role" claim.
const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Context keys set by RequireRole.
const (
	KeyUserID            = "userID"
	KeyUserRole          = "userRole"
	KeyOperatorTaxNumber = "operatorTaxNumber"
)

// Auth checks operator tokens signed with the configured secret.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Secret is the HMAC key operator tokens are signed with.
func (a *Auth) Secret() []byte {
	return a.secret
}

// RequireRole Middleware validates the JWT token and checks if the user's role exists in the allowedRoles list.
// The operator's tax number is taken from the tax_number claim.
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})

		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token claims"))
			return
		}

		userRole, ok := claims["role"].(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
			return
		}

		roleAllowed := false
		for _, role := range allowedRoles {
			if userRole == role {
				roleAllowed = true
				break
			}
		}

		if !roleAllowed {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		taxNumber, _ := claims["tax_number"].(string)

		c.Set(KeyUserID, claims["sub"])
		c.Set(KeyUserRole, userRole)
		c.Set(KeyOperatorTaxNumber, taxNumber)

		c.Next()
	}
}

// OperatorTaxNumber returns the tax number of the authenticated operator, or "".
func OperatorTaxNumber(c *gin.Context) string {
	return c.GetString(KeyOperatorTaxNumber)
}

// Actor names the authenticated operator for audit entries.
func Actor(c *gin.Context) string {
	if tn := OperatorTaxNumber(c); tn != "" {
		return tn
	}
	if sub, ok := c.Get(KeyUserID); ok {
		if s, ok := sub.(string); ok {
			return s
		}
	}
	return ""
}
