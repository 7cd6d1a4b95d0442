package fiscal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var tolerance = decimal.New(1, -2)

// Builder maps drafts onto envelopes for a single taxpayer.
type Builder struct {
	signer    Signer
	taxNumber string
	loc       *time.Location
	now       func() time.Time
	messageID func() string
}

// NewBuilder returns a Builder signing protection codes with signer. Timestamps are
// rendered in loc; nil means UTC.
func NewBuilder(signer Signer, taxNumber string, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{
		signer:    signer,
		taxNumber: taxNumber,
		loc:       loc,
		now:       time.Now,
		messageID: uuid.NewString,
	}
}

// TaxNumber returns the taxpayer the builder signs for.
func (b *Builder) TaxNumber() string {
	return b.taxNumber
}

// Location returns the zone invoice timestamps are rendered in.
func (b *Builder) Location() *time.Location {
	return b.loc
}

// Build validates draft, computes its protection code and returns the envelope.
// Every call mints a new message id.
func (b *Builder) Build(draft Draft) (*Envelope, string, error) {
	if draft.Number <= 0 {
		return nil, "", newValidationError("Number", draft.Number, ErrMissingField, "must be positive")
	}
	if err := b.Validate(draft); err != nil {
		return nil, "", err
	}

	issuedAt := draft.IssuedAt.In(b.loc)
	zoi, err := ComputeZOI(b.signer, b.taxNumber, issuedAt, draft.Number, draft.PremiseID, draft.DeviceID, draft.Total)
	if err != nil {
		return nil, "", err
	}

	env := &Envelope{
		Header: Header{
			MessageID: b.messageID(),
			DateTime:  b.now().In(b.loc).Format(DateTimeLayout),
		},
		Invoice: Invoice{
			TaxNumber:          TaxNumber(b.taxNumber),
			IssueDateTime:      issuedAt.Format(DateTimeLayout),
			NumberingStructure: NumberingStructure,
			InvoiceIdentifier:  identityToIdentifier(draft.Identity()),
			InvoiceAmount:      NewAmount(draft.Total),
			PaymentAmount:      NewAmount(draft.Total),
			TaxesPerSeller:     []TaxesPerSeller{{VAT: Buckets(draft.Lines)}},
			OperatorTaxNumber:  TaxNumber(draft.OperatorTaxNumber),
			ProtectedID:        zoi,
			SpecialNotes:       draft.SpecialNotes,
		},
	}

	if ref := draft.Reference; ref != nil {
		env.Invoice.ReferenceInvoice = []ReferenceInvoice{{
			ReferenceInvoiceIdentifier:    identityToIdentifier(ref.Identity),
			ReferenceInvoiceIssueDateTime: ref.IssuedAt.In(b.loc).Format(DateTimeLayout),
		}}
	}

	return env, zoi, nil
}

// Buckets aggregates lines per supported rate. Each line's base and tax are rounded to
// two decimals before summing. Rates without lines are left out.
func Buckets(lines []Line) []VAT {
	var out []VAT
	for _, rate := range SupportedRates {
		base, tax := decimal.Zero, decimal.Zero
		found := false
		for _, line := range lines {
			if !line.Rate.Equal(rate) {
				continue
			}
			found = true
			base = base.Add(line.TaxableAmount.Round(2))
			tax = tax.Add(line.Tax().Round(2))
		}
		if !found {
			continue
		}
		out = append(out, VAT{
			TaxRate:       NewAmount(rate),
			TaxableAmount: NewAmount(base),
			TaxAmount:     NewAmount(tax),
		})
	}
	return out
}

func supportedRate(rate decimal.Decimal) bool {
	for _, r := range SupportedRates {
		if r.Equal(rate) {
			return true
		}
	}
	return false
}

// Validate checks everything Build checks except the invoice number, so a draft can
// be rejected before a number is taken for it.
func (b *Builder) Validate(d Draft) error {
	if !isDigits(b.taxNumber) {
		return newValidationError("TaxNumber", b.taxNumber, ErrMissingField, "must be a numeric tax identifier")
	}
	if d.OperatorTaxNumber != "" && !isDigits(d.OperatorTaxNumber) {
		return newValidationError("OperatorTaxNumber", d.OperatorTaxNumber, ErrMissingField, "must be numeric")
	}
	if d.PremiseID == "" {
		return newValidationError("PremiseID", nil, ErrMissingField, "is required")
	}
	if d.DeviceID == "" {
		return newValidationError("DeviceID", nil, ErrMissingField, "is required")
	}
	if d.IssuedAt.IsZero() {
		return newValidationError("IssuedAt", nil, ErrMissingField, "is required")
	}
	if len(d.Lines) == 0 {
		return newValidationError("Lines", nil, ErrNoLines, "at least one line is required")
	}

	gross := decimal.Zero
	for i, line := range d.Lines {
		if !supportedRate(line.Rate) {
			return newValidationError("Lines.Rate", line.Rate.String(), ErrUnsupportedRate, "line %d rate is not one of 22, 9.5, 5", i)
		}
		if diff := line.TaxableAmount.Add(line.Tax()).Sub(line.GrossAmount).Abs(); diff.GreaterThan(tolerance) {
			return newValidationError("Lines.GrossAmount", line.GrossAmount.String(), ErrUnreconciledLine, "line %d is off by %s", i, diff.String())
		}
		gross = gross.Add(line.GrossAmount)
	}

	if diff := gross.Sub(d.Total).Abs(); diff.GreaterThan(tolerance) {
		return newValidationError("Total", d.Total.String(), ErrUnreconciledTotal, "lines sum to %s", gross.StringFixed(2))
	}
	return nil
}
