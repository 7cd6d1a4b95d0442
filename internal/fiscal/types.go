// Package fiscal turns invoice drafts into the Authority's request schema and computes
// the protection code (ZOI) that makes each invoice tamper evident.
package fiscal

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateTimeLayout is the Authority's local timestamp format.
const DateTimeLayout = "2006-01-02T15:04:05"

// NumberingStructure "B" means numbers are assigned per electronic device.
const NumberingStructure = "B"

// Supported VAT rates, in the order their buckets are emitted.
var (
	RateStandard = decimal.RequireFromString("22")
	RateReduced  = decimal.RequireFromString("9.5")
	RateSpecial  = decimal.RequireFromString("5")

	SupportedRates = []decimal.Decimal{RateStandard, RateReduced, RateSpecial}
)

// InvoiceIdentity is the composite key of an invoice. Year is informational only.
type InvoiceIdentity struct {
	PremiseID string
	DeviceID  string
	Number    int64
	Year      int
}

// String renders the identity as premise-device-number.
func (id InvoiceIdentity) String() string {
	return fmt.Sprintf("%s-%s-%d", id.PremiseID, id.DeviceID, id.Number)
}

// Line is one taxed item of a draft.
type Line struct {
	Rate          decimal.Decimal
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal // derived as gross - base when zero
	GrossAmount   decimal.Decimal
	Quantity      decimal.Decimal
	Description   string
}

// Tax returns the line's tax, derived from gross and base when not given.
func (l Line) Tax() decimal.Decimal {
	if l.TaxAmount.IsZero() {
		return l.GrossAmount.Sub(l.TaxableAmount)
	}
	return l.TaxAmount
}

// Reference points a storno at the invoice it reverses.
type Reference struct {
	Identity InvoiceIdentity
	IssuedAt time.Time
}

// Draft is the internal representation of a sale before it is certified.
type Draft struct {
	PremiseID         string
	DeviceID          string
	Number            int64
	IssuedAt          time.Time
	OperatorTaxNumber string
	Lines             []Line
	Total             decimal.Decimal
	Reference         *Reference
	SpecialNotes      string
}

// Identity returns the draft's composite key.
func (d Draft) Identity() InvoiceIdentity {
	return InvoiceIdentity{
		PremiseID: d.PremiseID,
		DeviceID:  d.DeviceID,
		Number:    d.Number,
		Year:      d.IssuedAt.Year(),
	}
}

// Amount is money serialized as a JSON number with exactly two decimals.
type Amount decimal.Decimal

// NewAmount rounds d half away from zero to two decimals.
func NewAmount(d decimal.Decimal) Amount {
	return Amount(d.Round(2))
}

// Decimal returns the underlying value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.Decimal(a)
}

// String returns the two decimal rendering used in the envelope and the ZOI input.
func (a Amount) String() string {
	return decimal.Decimal(a).StringFixed(2)
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	d, err := decimal.NewFromString(string(trimQuotes(data)))
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*a = Amount(d)
	return nil
}

func trimQuotes(data []byte) []byte {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		return data[1 : len(data)-1]
	}
	return data
}

// Envelope is the InvoiceRequest sent to the Authority.
type Envelope struct {
	Header  Header  `json:"Header"`
	Invoice Invoice `json:"Invoice"`
}

// Header identifies a single transmission. MessageID changes on every attempt.
type Header struct {
	MessageID string `json:"MessageID"`
	DateTime  string `json:"DateTime"`
}

// Invoice is the certified body of the envelope.
type Invoice struct {
	TaxNumber          TaxNumber          `json:"TaxNumber"`
	IssueDateTime      string             `json:"IssueDateTime"`
	NumberingStructure string             `json:"NumberingStructure"`
	InvoiceIdentifier  InvoiceIdentifier  `json:"InvoiceIdentifier"`
	InvoiceAmount      Amount             `json:"InvoiceAmount"`
	PaymentAmount      Amount             `json:"PaymentAmount"`
	TaxesPerSeller     []TaxesPerSeller   `json:"TaxesPerSeller"`
	OperatorTaxNumber  TaxNumber          `json:"OperatorTaxNumber,omitempty"`
	ProtectedID        string             `json:"ProtectedID"`
	ReferenceInvoice   []ReferenceInvoice `json:"ReferenceInvoice,omitempty"`
	SpecialNotes       string             `json:"SpecialNotes,omitempty"`
}

// InvoiceIdentifier is the wire form of InvoiceIdentity.
type InvoiceIdentifier struct {
	BusinessPremiseID  string `json:"BusinessPremiseID"`
	ElectronicDeviceID string `json:"ElectronicDeviceID"`
	InvoiceNumber      string `json:"InvoiceNumber"`
}

// TaxesPerSeller groups VAT buckets.
type TaxesPerSeller struct {
	VAT []VAT `json:"VAT"`
}

// VAT is one rate bucket.
type VAT struct {
	TaxRate       Amount `json:"TaxRate"`
	TaxableAmount Amount `json:"TaxableAmount"`
	TaxAmount     Amount `json:"TaxAmount"`
}

// ReferenceInvoice links a storno to its original.
type ReferenceInvoice struct {
	ReferenceInvoiceIdentifier    InvoiceIdentifier `json:"ReferenceInvoiceIdentifier"`
	ReferenceInvoiceIssueDateTime string            `json:"ReferenceInvoiceIssueDateTime"`
}

// TaxNumber is a digits-only tax identifier serialized as a JSON number.
type TaxNumber string

// MarshalJSON implements json.Marshaler.
func (t TaxNumber) MarshalJSON() ([]byte, error) {
	if !isDigits(string(t)) {
		return nil, fmt.Errorf("tax number %q is not numeric", string(t))
	}
	return []byte(t), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TaxNumber) UnmarshalJSON(data []byte) error {
	*t = TaxNumber(trimQuotes(data))
	return nil
}

// Identity returns the invoice identity carried by the envelope.
func (e *Envelope) Identity() (InvoiceIdentity, error) {
	return identifierToIdentity(e.Invoice.InvoiceIdentifier, e.Invoice.IssueDateTime)
}

// References returns the identities of the invoices this envelope reverses.
func (e *Envelope) References() ([]InvoiceIdentity, error) {
	out := make([]InvoiceIdentity, 0, len(e.Invoice.ReferenceInvoice))
	for _, ref := range e.Invoice.ReferenceInvoice {
		id, err := identifierToIdentity(ref.ReferenceInvoiceIdentifier, ref.ReferenceInvoiceIssueDateTime)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func identifierToIdentity(ident InvoiceIdentifier, issued string) (InvoiceIdentity, error) {
	number, err := strconv.ParseInt(ident.InvoiceNumber, 10, 64)
	if err != nil {
		return InvoiceIdentity{}, fmt.Errorf("invalid invoice number %q: %w", ident.InvoiceNumber, err)
	}
	at, err := time.Parse(DateTimeLayout, issued)
	if err != nil {
		return InvoiceIdentity{}, fmt.Errorf("invalid issue time %q: %w", issued, err)
	}
	return InvoiceIdentity{
		PremiseID: ident.BusinessPremiseID,
		DeviceID:  ident.ElectronicDeviceID,
		Number:    number,
		Year:      at.Year(),
	}, nil
}

func identityToIdentifier(id InvoiceIdentity) InvoiceIdentifier {
	return InvoiceIdentifier{
		BusinessPremiseID:  id.PremiseID,
		ElectronicDeviceID: id.DeviceID,
		InvoiceNumber:      strconv.FormatInt(id.Number, 10),
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
