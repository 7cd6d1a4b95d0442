package fiscal

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// zoiTimeLayout has no separator between date and time; the Authority computes it this way.
const zoiTimeLayout = "02.01.200615:04:05"

// Signer produces RSA PKCS#1 v1.5 signatures over the SHA-256 digest of data.
type Signer interface {
	SignSHA256(data []byte) ([]byte, error)
}

// ZOIInput returns the exact string that is signed for the protection code.
func ZOIInput(taxID string, issuedAt time.Time, number int64, premiseID, deviceID string, amount decimal.Decimal) string {
	return taxID +
		issuedAt.Format(zoiTimeLayout) +
		strconv.FormatInt(number, 10) +
		premiseID +
		deviceID +
		NewAmount(amount).String()
}

// ComputeZOI returns the lowercase hex MD5 of the signature over ZOIInput.
// The amount is rounded exactly like InvoiceAmount in the envelope.
func ComputeZOI(signer Signer, taxID string, issuedAt time.Time, number int64, premiseID, deviceID string, amount decimal.Decimal) (string, error) {
	input := ZOIInput(taxID, issuedAt, number, premiseID, deviceID, amount)

	signature, err := signer.SignSHA256([]byte(input))
	if err != nil {
		return "", fmt.Errorf("failed to sign protection code input: %w", err)
	}

	sum := md5.Sum(signature)
	return hex.EncodeToString(sum[:]), nil
}
