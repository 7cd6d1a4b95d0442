package fiscal

import (
	"fmt"
	"time"
)

// ReversalDraft derives the storno of original. Every amount is negated, the reference
// carries the original identity and issue time, and number is the new invoice number
// taken from the same device stream.
func ReversalDraft(original Draft, number int64, issuedAt time.Time, operator string) Draft {
	lines := make([]Line, len(original.Lines))
	for i, line := range original.Lines {
		lines[i] = Line{
			Rate:          line.Rate,
			TaxableAmount: line.TaxableAmount.Neg(),
			TaxAmount:     line.TaxAmount.Neg(),
			GrossAmount:   line.GrossAmount.Neg(),
			Quantity:      line.Quantity.Neg(),
			Description:   line.Description,
		}
	}

	return Draft{
		PremiseID:         original.PremiseID,
		DeviceID:          original.DeviceID,
		Number:            number,
		IssuedAt:          issuedAt,
		OperatorTaxNumber: operator,
		Lines:             lines,
		Total:             original.Total.Neg(),
		Reference: &Reference{
			Identity: original.Identity(),
			IssuedAt: original.IssuedAt,
		},
		SpecialNotes: StornoNote(original.Identity()),
	}
}

// StornoNote is the human readable note placed on a reversal.
func StornoNote(original InvoiceIdentity) string {
	return fmt.Sprintf("Storno of invoice %s", original)
}

// BuildReversal builds the storno envelope of original under the new number.
// The protection code is computed over the new number.
func (b *Builder) BuildReversal(original Draft, number int64, issuedAt time.Time, operator string) (*Envelope, string, error) {
	if original.Reference != nil {
		return nil, "", newValidationError("Reference", original.Reference.Identity.String(), ErrNotReversible, "a storno cannot be reversed")
	}
	if number == original.Number {
		return nil, "", newValidationError("Number", number, ErrNotReversible, "storno must use a new invoice number")
	}
	return b.Build(ReversalDraft(original, number, issuedAt, operator))
}
