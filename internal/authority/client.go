// Package authority talks to the tax Authority over mutual TLS: it signs requests with
// the fiscal identity and only trusts answers whose signature verifies.
package authority

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"blagajna/internal/fiscal"
)

const (
	invoicesPath = "/invoices"
	registerPath = "/invoices/register"
	echoPath     = "/echo"

	maxResponseSize = 1 << 20
	maxBodyExcerpt  = 512
)

// Identity is the fiscal identity the client authenticates and signs with.
type Identity interface {
	Signer
	TLSCertificate() tls.Certificate
}

// Config configures the Authority connection.
type Config struct {
	// BaseURL is the service root, e.g. https://host:9002/v1/cash_registers.
	BaseURL string

	// Timeout bounds a whole request/response cycle.
	Timeout time.Duration

	// RootCAs are the only anchors accepted for the server certificate.
	RootCAs *x509.CertPool

	// AuthorityCert verifies response tokens.
	AuthorityCert *x509.Certificate

	// Location renders header timestamps; nil means UTC.
	Location *time.Location

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client submits signed requests to the Authority. It never retries.
type Client struct {
	baseURL      string
	identity     Identity
	authorityKey *rsa.PublicKey
	httpClient   *http.Client
	loc          *time.Location
	log          zerolog.Logger
	now          func() time.Time
}

// NewClient builds a client presenting identity's certificate on every connection.
func NewClient(identity Identity, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("authority base URL is required")
	}
	if cfg.RootCAs == nil {
		return nil, errors.New("authority trust anchors are required")
	}
	if cfg.AuthorityCert == nil {
		return nil, errors.New("authority signing certificate is required")
	}
	key, ok := cfg.AuthorityCert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("authority certificate key is %T, want RSA", cfg.AuthorityCert.PublicKey)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	transport := &http.Transport{
		TLSClientConfig:     TLSConfig(identity.TLSCertificate(), cfg.RootCAs),
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.Timeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		identity:     identity,
		authorityKey: key,
		httpClient:   &http.Client{Transport: transport, Timeout: cfg.Timeout},
		loc:          loc,
		log:          log,
		now:          time.Now,
	}, nil
}

// TLSConfig returns the mutual TLS client configuration: the given client certificate,
// server verification against roots only, TLS 1.2 at minimum.
func TLSConfig(cert tls.Certificate, roots *x509.CertPool) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}
}

// Submit sends env and returns the confirmation code (EOR) from the verified answer.
func (c *Client) Submit(ctx context.Context, env *fiscal.Envelope) (string, error) {
	const op = "submit"
	messageID := env.Header.MessageID

	signed, err := signClaims(c.identity, invoiceRequestClaims{InvoiceRequest: env})
	if err != nil {
		return "", err
	}

	status, body, err := c.post(ctx, op, invoicesPath, messageID, tokenBody{Token: signed})
	if err != nil {
		return "", err
	}

	var claims InvoiceResponseClaims
	if err := c.verifyResponse(body, &claims); err != nil {
		return "", &VerificationError{Op: op, MessageID: messageID, Err: err}
	}

	resp := claims.InvoiceResponse
	if resp.Error != nil {
		return "", &TransportError{
			Op:         op,
			URL:        c.baseURL + invoicesPath,
			StatusCode: status,
			Code:       resp.Error.ErrorCode,
			Body:       resp.Error.ErrorMessage,
			MessageID:  messageID,
			Err:        ErrRejected,
		}
	}
	if resp.Header.MessageID != "" && resp.Header.MessageID != messageID {
		return "", &VerificationError{Op: op, MessageID: messageID, Err: fmt.Errorf("%w: answer is for message %s", ErrInvalidToken, resp.Header.MessageID)}
	}
	if resp.UniqueInvoiceID == "" {
		return "", &VerificationError{Op: op, MessageID: messageID, Err: ErrMissingConfirmation}
	}

	c.log.Debug().Str("message_id", messageID).Str("eor", resp.UniqueInvoiceID).Msg("invoice confirmed by authority")
	return resp.UniqueInvoiceID, nil
}

// SubmitReversal sends a storno envelope after checking it references original.
func (c *Client) SubmitReversal(ctx context.Context, env *fiscal.Envelope, original fiscal.InvoiceIdentity) (string, error) {
	refs, err := env.References()
	if err != nil {
		return "", &fiscal.ValidationError{Field: "ReferenceInvoice", Message: err.Error(), Err: fiscal.ErrNotReversible}
	}
	if len(refs) != 1 || refs[0] != original {
		return "", &fiscal.ValidationError{
			Field:   "ReferenceInvoice",
			Value:   original.String(),
			Message: "storno does not reference the original invoice",
			Err:     fiscal.ErrNotReversible,
		}
	}
	return c.Submit(ctx, env)
}

// Echo checks connectivity and certificates without any business side effect.
func (c *Client) Echo(ctx context.Context, message string) error {
	const op = "echo"

	_, body, err := c.post(ctx, op, echoPath, "", map[string]string{"EchoRequest": message})
	if err != nil {
		return err
	}

	var resp struct {
		EchoResponse string `json:"EchoResponse"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return &TransportError{Op: op, URL: c.baseURL + echoPath, Body: excerpt(body), Err: fmt.Errorf("failed to decode echo response: %w", err)}
	}
	if resp.EchoResponse != message {
		return &TransportError{Op: op, URL: c.baseURL + echoPath, Body: excerpt(body), Err: ErrEchoMismatch}
	}
	return nil
}

// RegisterPremise registers premise with the Authority.
func (c *Client) RegisterPremise(ctx context.Context, premise BusinessPremise) error {
	const op = "register premise"

	req := &PremiseRequest{
		Header: fiscal.Header{
			MessageID: uuid.NewString(),
			DateTime:  c.now().In(c.loc).Format(fiscal.DateTimeLayout),
		},
		BusinessPremise: premise,
	}

	signed, err := signClaims(c.identity, premiseRequestClaims{BusinessPremiseRequest: req})
	if err != nil {
		return err
	}

	status, body, err := c.post(ctx, op, registerPath, req.Header.MessageID, tokenBody{Token: signed})
	if err != nil {
		return err
	}

	var claims PremiseResponseClaims
	if err := c.verifyResponse(body, &claims); err != nil {
		return &VerificationError{Op: op, MessageID: req.Header.MessageID, Err: err}
	}
	if e := claims.BusinessPremiseResponse.Error; e != nil {
		return &TransportError{
			Op:         op,
			URL:        c.baseURL + registerPath,
			StatusCode: status,
			Code:       e.ErrorCode,
			Body:       e.ErrorMessage,
			MessageID:  req.Header.MessageID,
			Err:        ErrRejected,
		}
	}
	return nil
}

func (c *Client) verifyResponse(body []byte, claims jwt.Claims) error {
	var tb tokenBody
	if err := json.Unmarshal(body, &tb); err != nil {
		return fmt.Errorf("%w: malformed response body: %w", ErrInvalidToken, err)
	}
	if tb.Token == "" {
		return fmt.Errorf("%w: response carries no token", ErrInvalidToken)
	}
	return verifyToken(tb.Token, c.authorityKey, claims)
}

// post sends payload as JSON. A failure after the request was fully written is
// ambiguous, since the Authority may already have processed it.
func (c *Client) post(ctx context.Context, op, path, messageID string, payload interface{}) (int, []byte, error) {
	url := c.baseURL + path

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	var written atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				written.Store(true)
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, &TransportError{Op: op, URL: url, MessageID: messageID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if written.Load() {
			c.log.Warn().Err(err).Str("op", op).Str("message_id", messageID).Msg("authority request written but no answer received")
			return 0, nil, &AmbiguousOutcomeError{Op: op, URL: url, MessageID: messageID, Err: err}
		}
		return 0, nil, &TransportError{Op: op, URL: url, MessageID: messageID, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))

	c.log.Debug().
		Str("op", op).
		Str("message_id", messageID).
		Int("status", resp.StatusCode).
		Dur("elapsed", c.now().Sub(start)).
		Msg("authority request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil, &TransportError{
			Op:         op,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       excerpt(body),
			MessageID:  messageID,
			Err:        ErrRejected,
		}
	}
	if readErr != nil {
		return resp.StatusCode, nil, &AmbiguousOutcomeError{Op: op, URL: url, MessageID: messageID, Err: fmt.Errorf("failed to read response: %w", readErr)}
	}
	return resp.StatusCode, body, nil
}

func excerpt(body []byte) string {
	if len(body) > maxBodyExcerpt {
		return string(body[:maxBodyExcerpt]) + "..."
	}
	return string(body)
}
