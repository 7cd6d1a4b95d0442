// Package certstore holds the fiscal identity: the private key and certificate chain
// decoded from a password protected PKCS#12 bundle. The key never leaves the Store;
// callers get signing operations and the TLS client certificate instead.
package certstore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"software.sslmate.com/src/go-pkcs12"
)

// Identity is the public part of the fiscal identity, safe to log and to send in
// token headers.
type Identity struct {
	Serial      string            `json:"serial"`
	IssuerName  string            `json:"issuer_name"`
	SubjectName string            `json:"subject_name"`
	Certificate *x509.Certificate `json:"-"`
}

// Store is immutable after Load and safe for concurrent use.
type Store struct {
	key      *rsa.PrivateKey
	leaf     *x509.Certificate
	chain    []*x509.Certificate
	identity Identity
}

// Load decodes the bundle at path. It is expensive and meant to run once per process.
func Load(path, password string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CertificateError{Path: path, Err: fmt.Errorf("%w: %w", ErrBundleUnreadable, err)}
	}
	store, err := Decode(data, password)
	if err != nil {
		var certErr *CertificateError
		if errors.As(err, &certErr) {
			certErr.Path = path
		}
		return nil, err
	}
	return store, nil
}

// Decode builds a Store from raw PKCS#12 bytes.
func Decode(data []byte, password string) (*Store, error) {
	privateKey, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, &CertificateError{Path: "<memory>", Err: classifyDecodeError(err)}
	}
	if privateKey == nil {
		return nil, &CertificateError{Path: "<memory>", Err: ErrNoPrivateKey}
	}

	if now := time.Now(); now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return nil, &CertificateError{Path: "<memory>", Err: fmt.Errorf("%w: valid %s to %s", ErrCertificateExpired,
			leaf.NotBefore.Format(time.RFC3339), leaf.NotAfter.Format(time.RFC3339))}
	}

	key, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, &CertificateError{Path: "<memory>", Err: fmt.Errorf("%w: %T", ErrUnsupportedKey, privateKey)}
	}

	issuer, err := DistinguishedName(leaf.RawIssuer)
	if err != nil {
		return nil, &CertificateError{Path: "<memory>", Err: fmt.Errorf("issuer name: %w", err)}
	}
	subject, err := DistinguishedName(leaf.RawSubject)
	if err != nil {
		return nil, &CertificateError{Path: "<memory>", Err: fmt.Errorf("subject name: %w", err)}
	}

	return &Store{
		key:   key,
		leaf:  leaf,
		chain: chain,
		identity: Identity{
			Serial:      leaf.SerialNumber.String(),
			IssuerName:  issuer,
			SubjectName: subject,
			Certificate: leaf,
		},
	}, nil
}

func classifyDecodeError(err error) error {
	switch {
	case errors.Is(err, pkcs12.ErrIncorrectPassword):
		return fmt.Errorf("%w: %w", ErrWrongPassword, err)
	case strings.Contains(err.Error(), "private key missing"):
		return fmt.Errorf("%w: %w", ErrNoPrivateKey, err)
	default:
		return fmt.Errorf("%w: %w", ErrBundleUnreadable, err)
	}
}

// Identity returns the certificate derived attributes.
func (s *Store) Identity() Identity {
	return s.identity
}

// SignSHA256 signs data with RSA PKCS#1 v1.5 over its SHA-256 digest.
// The output is deterministic for a given key and input.
func (s *Store) SignSHA256(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
}

// SignToken completes token with the identity headers and signs it with the fiscal key.
func (s *Store) SignToken(token *jwt.Token) (string, error) {
	token.Header["issuer_name"] = s.identity.IssuerName
	token.Header["subject_name"] = s.identity.SubjectName
	token.Header["serial"] = s.identity.Serial
	return token.SignedString(s.key)
}

// TLSCertificate returns the client certificate presented on the Authority connection.
func (s *Store) TLSCertificate() tls.Certificate {
	raw := make([][]byte, 0, len(s.chain)+1)
	raw = append(raw, s.leaf.Raw)
	for _, c := range s.chain {
		raw = append(raw, c.Raw)
	}
	return tls.Certificate{
		Certificate: raw,
		PrivateKey:  s.key,
		Leaf:        s.leaf,
	}
}

// String never includes key material.
func (s *Store) String() string {
	return fmt.Sprintf("certstore{serial=%s subject=%q}", s.identity.Serial, s.identity.SubjectName)
}

// GoString never includes key material.
func (s *Store) GoString() string {
	return s.String()
}

// MarshalJSON serializes the public identity only.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.identity)
}

// LoadCertificates reads PEM or DER encoded certificates from each path.
func LoadCertificates(paths ...string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &CertificateError{Path: path, Err: err}
		}
		parsed, err := parseCertificates(data)
		if err != nil {
			return nil, &CertificateError{Path: path, Err: err}
		}
		certs = append(certs, parsed...)
	}
	return certs, nil
}

// LoadCertPool builds a pool from the given trust anchors only; the system roots are
// never consulted.
func LoadCertPool(paths ...string) (*x509.CertPool, error) {
	certs, err := LoadCertificates(paths...)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, &CertificateError{Path: strings.Join(paths, ","), Err: ErrNoCertificate}
	}
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	if len(certs) > 0 {
		return certs, nil
	}

	der, err := x509.ParseCertificates(data)
	if err != nil || len(der) == 0 {
		return nil, ErrNoCertificate
	}
	return der, nil
}
