package fiscal

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rsaSigner struct {
	key *rsa.PrivateKey
}

func (s rsaSigner) SignSHA256(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(nil, s.key, crypto.SHA256, digest[:])
}

// recordingSigner keeps every input it was asked to sign.
type recordingSigner struct {
	inputs []string
}

func (s *recordingSigner) SignSHA256(data []byte) ([]byte, error) {
	s.inputs = append(s.inputs, string(data))
	sum := sha256.Sum256(data)
	return sum[:], nil
}

type failingSigner struct{}

func (failingSigner) SignSHA256([]byte) ([]byte, error) {
	return nil, errors.New("hsm offline")
}

var issuedAt = time.Date(2026, 8, 15, 10, 13, 32, 0, time.UTC)

func newRSASigner(t *testing.T) rsaSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return rsaSigner{key: key}
}

func TestZOIInput(t *testing.T) {
	input := ZOIInput("12345678", issuedAt, 42, "B1", "BLAGO", decimal.RequireFromString("12.2"))
	assert.Equal(t, "1234567815.08.202610:13:3242B1BLAGO12.20", input)

	negative := ZOIInput("12345678", issuedAt, 43, "B1", "BLAGO", decimal.RequireFromString("-12.205"))
	assert.Equal(t, "1234567815.08.202610:13:3243B1BLAGO-12.21", negative)
}

func TestComputeZOI_Deterministic(t *testing.T) {
	signer := newRSASigner(t)
	amount := decimal.RequireFromString("12.20")

	first, err := ComputeZOI(signer, "12345678", issuedAt, 42, "B1", "BLAGO", amount)
	require.NoError(t, err)
	second, err := ComputeZOI(signer, "12345678", issuedAt, 42, "B1", "BLAGO", amount)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", first)
}

func TestComputeZOI_MatchesIndependentComputation(t *testing.T) {
	signer := newRSASigner(t)

	zoi, err := ComputeZOI(signer, "12345678", issuedAt, 42, "B1", "BLAGO", decimal.RequireFromString("12.20"))
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("1234567815.08.202610:13:3242B1BLAGO12.20"))
	signature, err := rsa.SignPKCS1v15(nil, signer.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	sum := md5.Sum(signature)

	assert.Equal(t, hex.EncodeToString(sum[:]), zoi)
}

func TestComputeZOI_Avalanche(t *testing.T) {
	signer := newRSASigner(t)
	amount := decimal.RequireFromString("12.20")

	base, err := ComputeZOI(signer, "12345678", issuedAt, 42, "B1", "BLAGO", amount)
	require.NoError(t, err)

	variants := map[string]func() (string, error){
		"tax id": func() (string, error) {
			return ComputeZOI(signer, "12345679", issuedAt, 42, "B1", "BLAGO", amount)
		},
		"timestamp": func() (string, error) {
			return ComputeZOI(signer, "12345678", issuedAt.Add(time.Second), 42, "B1", "BLAGO", amount)
		},
		"number": func() (string, error) {
			return ComputeZOI(signer, "12345678", issuedAt, 43, "B1", "BLAGO", amount)
		},
		"premise": func() (string, error) {
			return ComputeZOI(signer, "12345678", issuedAt, 42, "B2", "BLAGO", amount)
		},
		"device": func() (string, error) {
			return ComputeZOI(signer, "12345678", issuedAt, 42, "B1", "BLAGA", amount)
		},
		"amount": func() (string, error) {
			return ComputeZOI(signer, "12345678", issuedAt, 42, "B1", "BLAGO", decimal.RequireFromString("12.21"))
		},
	}

	for name, compute := range variants {
		t.Run(name, func(t *testing.T) {
			zoi, err := compute()
			require.NoError(t, err)
			assert.NotEqual(t, base, zoi)
		})
	}
}

func TestComputeZOI_SignerFailure(t *testing.T) {
	_, err := ComputeZOI(failingSigner{}, "12345678", issuedAt, 42, "B1", "BLAGO", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hsm offline")
}
