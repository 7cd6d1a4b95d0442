package certstore

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blagajna/internal/testutil/pki"
)

var fiscalSubject = pkix.Name{
	Country:            []string{"SI"},
	Organization:       []string{"state-institutions"},
	OrganizationalUnit: []string{"DavPotRacTEST"},
	CommonName:         "TESTNO PODJETJE 140",
	SerialNumber:       "1",
}

func newBundle(t *testing.T, password string) (string, *pki.Leaf) {
	t.Helper()
	ca := pki.NewCA(t, "Tax CA Test")
	leaf := ca.Issue(t, pki.Options{Subject: fiscalSubject, Serial: 4242})
	return pki.WriteFile(t, "client.p12", leaf.PKCS12(t, password)), leaf
}

func TestLoad(t *testing.T) {
	path, _ := newBundle(t, "secret")

	store, err := Load(path, "secret")
	require.NoError(t, err)

	id := store.Identity()
	assert.Equal(t, "4242", id.Serial)
	assert.Equal(t, "C=SI,O=state-institutions,CN=Tax CA Test", id.IssuerName)
	assert.Equal(t, "C=SI,O=state-institutions,OU=DavPotRacTEST,CN=TESTNO PODJETJE 140,SERIALNUMBER=1", id.SubjectName)
	require.NotNil(t, id.Certificate)
}

func TestLoad_Failures(t *testing.T) {
	ca := pki.NewCA(t, "Tax CA Test")

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/client.p12", "secret")
		assert.ErrorIs(t, err, ErrBundleUnreadable)
	})

	t.Run("garbage", func(t *testing.T) {
		path := pki.WriteFile(t, "garbage.p12", []byte("definitely not pkcs12"))
		_, err := Load(path, "secret")
		assert.ErrorIs(t, err, ErrBundleUnreadable)
	})

	t.Run("wrong password", func(t *testing.T) {
		path, _ := newBundle(t, "secret")
		_, err := Load(path, "guess")
		assert.ErrorIs(t, err, ErrWrongPassword)

		var certErr *CertificateError
		require.ErrorAs(t, err, &certErr)
		assert.Equal(t, path, certErr.Path)
	})

	t.Run("ecdsa key", func(t *testing.T) {
		leaf := ca.Issue(t, pki.Options{Subject: fiscalSubject, ECDSA: true})
		path := pki.WriteFile(t, "ec.p12", leaf.PKCS12(t, "secret"))
		_, err := Load(path, "secret")
		assert.ErrorIs(t, err, ErrUnsupportedKey)
	})

	t.Run("expired", func(t *testing.T) {
		leaf := ca.Issue(t, pki.Options{Subject: fiscalSubject, NotAfter: time.Now().Add(-time.Hour)})
		path := pki.WriteFile(t, "expired.p12", leaf.PKCS12(t, "secret"))
		_, err := Load(path, "secret")
		assert.ErrorIs(t, err, ErrCertificateExpired)

		var certErr *CertificateError
		require.ErrorAs(t, err, &certErr)
		assert.Equal(t, path, certErr.Path)
	})

	t.Run("no key", func(t *testing.T) {
		path := pki.WriteFile(t, "trust.p12", pki.TrustStore(t, "secret", ca.Cert))
		_, err := Load(path, "secret")

		var certErr *CertificateError
		assert.ErrorAs(t, err, &certErr)
	})
}

func TestSignSHA256(t *testing.T) {
	path, leaf := newBundle(t, "secret")
	store, err := Load(path, "secret")
	require.NoError(t, err)

	data := []byte("1234567815.08.2026 10:13:32590B1BLAGO24.21")
	first, err := store.SignSHA256(data)
	require.NoError(t, err)
	second, err := store.SignSHA256(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	digest := sha256.Sum256(data)
	pub := leaf.Cert.PublicKey.(*rsa.PublicKey)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], first))
}

func TestSignToken(t *testing.T) {
	path, leaf := newBundle(t, "secret")
	store, err := Load(path, "secret")
	require.NoError(t, err)

	signed, err := store.SignToken(jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"hello": "world"}))
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (any, error) {
		return leaf.Cert.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)

	assert.Equal(t, "4242", parsed.Header["serial"])
	assert.Equal(t, store.Identity().SubjectName, parsed.Header["subject_name"])
	assert.Equal(t, store.Identity().IssuerName, parsed.Header["issuer_name"])
}

func TestStore_DoesNotLeakKey(t *testing.T) {
	path, _ := newBundle(t, "secret")
	store, err := Load(path, "secret")
	require.NoError(t, err)

	for _, rendered := range []string{
		store.String(),
		fmt.Sprintf("%v", store),
		fmt.Sprintf("%+v", store),
		fmt.Sprintf("%#v", store),
	} {
		assert.Contains(t, rendered, "4242")
		assert.NotContains(t, rendered, "PRIVATE")
		assert.NotContains(t, rendered, "Primes")
	}

	data, err := json.Marshal(store)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.ElementsMatch(t, []string{"serial", "issuer_name", "subject_name"}, keys(fields))
}

func TestTLSCertificate(t *testing.T) {
	path, leaf := newBundle(t, "secret")
	store, err := Load(path, "secret")
	require.NoError(t, err)

	cert := store.TLSCertificate()
	require.Len(t, cert.Certificate, 2)
	assert.Equal(t, leaf.Cert.Raw, cert.Certificate[0])
	assert.Equal(t, leaf.Cert, cert.Leaf)
}

func TestDistinguishedName_UnknownAttribute(t *testing.T) {
	name := pkix.Name{
		CommonName: "device",
		ExtraNames: []pkix.AttributeTypeAndValue{{Type: asn1.ObjectIdentifier{1, 2, 3, 4}, Value: "extra"}},
	}
	raw, err := asn1.Marshal(name.ToRDNSequence())
	require.NoError(t, err)

	dn, err := DistinguishedName(raw)
	require.NoError(t, err)
	assert.Equal(t, "CN=device,1.2.3.4=extra", dn)

	_, err = DistinguishedName([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestLoadCertPool(t *testing.T) {
	ca := pki.NewCA(t, "Tax CA Test")

	pemPath := pki.WriteFile(t, "ca.pem", pki.CertPEM(ca.Cert))
	derPath := pki.WriteFile(t, "ca.der", ca.Cert.Raw)

	certs, err := LoadCertificates(pemPath, derPath)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.True(t, certs[0].Equal(certs[1]))

	pool, err := LoadCertPool(pemPath)
	require.NoError(t, err)
	assert.NotNil(t, pool)

	empty := pki.WriteFile(t, "empty.pem", []byte("nothing here"))
	_, err = LoadCertPool(empty)
	assert.True(t, errors.Is(err, ErrNoCertificate))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
