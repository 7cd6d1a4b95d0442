package authority

import (
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"blagajna/internal/fiscal"
)

// Signer signs outbound tokens with the fiscal identity. It is expected to add the
// issuer_name, subject_name and serial headers.
type Signer interface {
	SignToken(token *jwt.Token) (string, error)
}

type invoiceRequestClaims struct {
	InvoiceRequest *fiscal.Envelope `json:"InvoiceRequest"`
	jwt.RegisteredClaims
}

type premiseRequestClaims struct {
	BusinessPremiseRequest *PremiseRequest `json:"BusinessPremiseRequest"`
	jwt.RegisteredClaims
}

// ResponseHeader is the header of every Authority answer.
type ResponseHeader struct {
	MessageID string `json:"MessageID"`
	DateTime  string `json:"DateTime"`
}

// ResponseError is the error block of a refused request.
type ResponseError struct {
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

// InvoiceResponse is the verified payload of an invoice submission.
type InvoiceResponse struct {
	Header          ResponseHeader `json:"Header"`
	UniqueInvoiceID string         `json:"UniqueInvoiceID,omitempty"`
	Error           *ResponseError `json:"Error,omitempty"`
}

// PremiseResponse is the verified payload of a premise registration.
type PremiseResponse struct {
	Header ResponseHeader `json:"Header"`
	Error  *ResponseError `json:"Error,omitempty"`
}

// InvoiceResponseClaims is the signed token body returned for /invoices.
type InvoiceResponseClaims struct {
	InvoiceResponse InvoiceResponse `json:"InvoiceResponse"`
	jwt.RegisteredClaims
}

// PremiseResponseClaims is the signed token body returned for /invoices/register.
type PremiseResponseClaims struct {
	BusinessPremiseResponse PremiseResponse `json:"BusinessPremiseResponse"`
	jwt.RegisteredClaims
}

type tokenBody struct {
	Token string `json:"token"`
}

func signClaims(signer Signer, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := signer.SignToken(token)
	if err != nil {
		return "", fmt.Errorf("failed to sign request token: %w", err)
	}
	return signed, nil
}

// verifyToken checks the RS256 signature of raw against key and decodes it into claims.
func verifyToken(raw string, key *rsa.PublicKey, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}
