package certstore

import (
	"errors"
	"fmt"
)

var (
	// ErrBundleUnreadable is returned when the bundle file cannot be read or parsed.
	ErrBundleUnreadable = errors.New("certificate bundle unreadable")

	// ErrWrongPassword is returned when the bundle password does not decrypt it.
	ErrWrongPassword = errors.New("certificate bundle password incorrect")

	// ErrNoPrivateKey is returned when the bundle carries no private key.
	ErrNoPrivateKey = errors.New("no private key in certificate bundle")

	// ErrUnsupportedKey is returned for private keys other than RSA.
	ErrUnsupportedKey = errors.New("unsupported private key type")

	// ErrCertificateExpired is returned when the signing certificate is outside its validity period.
	ErrCertificateExpired = errors.New("certificate not valid at this time")

	// ErrNoCertificate is returned when a certificate file holds no certificate.
	ErrNoCertificate = errors.New("no certificate found")
)

// CertificateError is fatal at startup: nothing is retried without operator intervention.
type CertificateError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CertificateError) Error() string {
	return fmt.Sprintf("certstore: %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *CertificateError) Unwrap() error {
	return e.Err
}
