package fiscal

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func saleDraft() Draft {
	return Draft{
		PremiseID:         "B1",
		DeviceID:          "BLAGO",
		Number:            42,
		IssuedAt:          issuedAt,
		OperatorTaxNumber: "87654321",
		Lines: []Line{{
			Rate:          RateStandard,
			TaxableAmount: d("10.00"),
			GrossAmount:   d("12.20"),
			Quantity:      d("1"),
			Description:   "Yoga class",
		}},
		Total: d("12.20"),
	}
}

func newTestBuilder(signer Signer) *Builder {
	b := NewBuilder(signer, "12345678", time.UTC)
	b.now = func() time.Time { return issuedAt.Add(time.Minute) }
	return b
}

func TestBuild_SingleLine(t *testing.T) {
	signer := &recordingSigner{}
	b := newTestBuilder(signer)

	env, zoi, err := b.Build(saleDraft())
	require.NoError(t, err)

	require.Len(t, signer.inputs, 1)
	assert.Equal(t, "1234567815.08.202610:13:3242B1BLAGO12.20", signer.inputs[0])
	assert.Equal(t, zoi, env.Invoice.ProtectedID)

	require.Len(t, env.Invoice.TaxesPerSeller, 1)
	vat := env.Invoice.TaxesPerSeller[0].VAT
	require.Len(t, vat, 1)
	assert.Equal(t, "22.00", vat[0].TaxRate.String())
	assert.Equal(t, "10.00", vat[0].TaxableAmount.String())
	assert.Equal(t, "2.20", vat[0].TaxAmount.String())

	assert.Equal(t, "12.20", env.Invoice.InvoiceAmount.String())
	assert.Equal(t, "12.20", env.Invoice.PaymentAmount.String())
	assert.Equal(t, "2026-08-15T10:13:32", env.Invoice.IssueDateTime)
	assert.Equal(t, "2026-08-15T10:14:32", env.Header.DateTime)
	assert.Equal(t, InvoiceIdentifier{BusinessPremiseID: "B1", ElectronicDeviceID: "BLAGO", InvoiceNumber: "42"}, env.Invoice.InvoiceIdentifier)
	assert.Empty(t, env.Invoice.ReferenceInvoice)

	id, err := env.Identity()
	require.NoError(t, err)
	assert.Equal(t, InvoiceIdentity{PremiseID: "B1", DeviceID: "BLAGO", Number: 42, Year: 2026}, id)
}

func TestBuild_WireFormat(t *testing.T) {
	env, _, err := newTestBuilder(&recordingSigner{}).Build(saleDraft())
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	body := string(data)
	assert.Contains(t, body, `"TaxNumber":12345678`)
	assert.Contains(t, body, `"OperatorTaxNumber":87654321`)
	assert.Contains(t, body, `"InvoiceAmount":12.20`)
	assert.Contains(t, body, `"VAT":[{"TaxRate":22.00,"TaxableAmount":10.00,"TaxAmount":2.20}]`)
	assert.Contains(t, body, `"NumberingStructure":"B"`)
	assert.NotContains(t, body, "ReferenceInvoice")
	assert.NotContains(t, body, "SpecialNotes")

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Invoice.InvoiceAmount.Decimal().Equal(d("12.20")))
	assert.Equal(t, TaxNumber("12345678"), decoded.Invoice.TaxNumber)
}

func TestBuild_FreshMessageID(t *testing.T) {
	b := NewBuilder(&recordingSigner{}, "12345678", time.UTC)

	first, firstZOI, err := b.Build(saleDraft())
	require.NoError(t, err)
	second, secondZOI, err := b.Build(saleDraft())
	require.NoError(t, err)

	assert.NotEqual(t, first.Header.MessageID, second.Header.MessageID)
	assert.Equal(t, firstZOI, secondZOI)
	assert.Equal(t, first.Invoice.InvoiceIdentifier, second.Invoice.InvoiceIdentifier)
}

func TestBuild_TimestampsUseLocation(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	signer := &recordingSigner{}
	b := NewBuilder(signer, "12345678", loc)

	env, _, err := b.Build(saleDraft())
	require.NoError(t, err)

	assert.Equal(t, "2026-08-15T12:13:32", env.Invoice.IssueDateTime)
	assert.Equal(t, "1234567815.08.202612:13:3242B1BLAGO12.20", signer.inputs[0])
}

func TestBuild_OmitsEmptyBuckets(t *testing.T) {
	draft := saleDraft()
	draft.Lines = append(draft.Lines, Line{
		Rate:          RateReduced,
		TaxableAmount: d("4.00"),
		TaxAmount:     d("0.38"),
		GrossAmount:   d("4.38"),
		Quantity:      d("2"),
	})
	draft.Total = d("16.58")

	env, _, err := newTestBuilder(&recordingSigner{}).Build(draft)
	require.NoError(t, err)

	vat := env.Invoice.TaxesPerSeller[0].VAT
	require.Len(t, vat, 2)
	assert.Equal(t, "22.00", vat[0].TaxRate.String())
	assert.Equal(t, "9.50", vat[1].TaxRate.String())
	assert.Equal(t, "0.38", vat[1].TaxAmount.String())
	for _, bucket := range vat {
		assert.NotEqual(t, "5.00", bucket.TaxRate.String())
	}
}

func TestBuckets_RoundsEachLine(t *testing.T) {
	lines := []Line{
		{Rate: RateStandard, TaxableAmount: d("0.005"), TaxAmount: d("0.001"), GrossAmount: d("0.006")},
		{Rate: RateStandard, TaxableAmount: d("0.005"), TaxAmount: d("0.001"), GrossAmount: d("0.006")},
	}

	vat := Buckets(lines)
	require.Len(t, vat, 1)
	// 0.01 + 0.01, not round(0.010)
	assert.Equal(t, "0.02", vat[0].TaxableAmount.String())
	assert.Equal(t, "0.00", vat[0].TaxAmount.String())
}

func TestBuckets_PreservesTaxableBase(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for iteration := 0; iteration < 200; iteration++ {
		n := 1 + rng.IntN(12)
		lines := make([]Line, n)
		want := decimal.Zero
		for i := range lines {
			rate := SupportedRates[rng.IntN(len(SupportedRates))]
			base := decimal.New(rng.Int64N(100000), -3)
			tax := base.Mul(rate).Div(decimal.NewFromInt(100)).Round(3)
			lines[i] = Line{Rate: rate, TaxableAmount: base, TaxAmount: tax, GrossAmount: base.Add(tax)}
			want = want.Add(base.Round(2))
		}

		got := decimal.Zero
		for _, bucket := range Buckets(lines) {
			got = got.Add(bucket.TaxableAmount.Decimal())
		}
		require.True(t, want.Equal(got), "iteration %d: want %s got %s", iteration, want, got)
	}
}

func TestBuild_DerivesMissingLineTax(t *testing.T) {
	draft := saleDraft()
	draft.Lines[0].TaxAmount = decimal.Zero

	env, _, err := newTestBuilder(&recordingSigner{}).Build(draft)
	require.NoError(t, err)
	assert.Equal(t, "2.20", env.Invoice.TaxesPerSeller[0].VAT[0].TaxAmount.String())
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
		want   error
		field  string
	}{
		{"no lines", func(dr *Draft) { dr.Lines = nil }, ErrNoLines, "Lines"},
		{"total mismatch", func(dr *Draft) { dr.Total = d("12.22") }, ErrUnreconciledTotal, "Total"},
		{"unsupported rate", func(dr *Draft) { dr.Lines[0].Rate = d("8") }, ErrUnsupportedRate, "Lines.Rate"},
		{"line mismatch", func(dr *Draft) { dr.Lines[0].TaxAmount = d("2.50") }, ErrUnreconciledLine, "Lines.GrossAmount"},
		{"missing premise", func(dr *Draft) { dr.PremiseID = "" }, ErrMissingField, "PremiseID"},
		{"missing device", func(dr *Draft) { dr.DeviceID = "" }, ErrMissingField, "DeviceID"},
		{"zero number", func(dr *Draft) { dr.Number = 0 }, ErrMissingField, "Number"},
		{"missing time", func(dr *Draft) { dr.IssuedAt = time.Time{} }, ErrMissingField, "IssuedAt"},
		{"operator not numeric", func(dr *Draft) { dr.OperatorTaxNumber = "SI123" }, ErrMissingField, "OperatorTaxNumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := &recordingSigner{}
			draft := saleDraft()
			tt.mutate(&draft)

			_, _, err := newTestBuilder(signer).Build(draft)
			require.ErrorIs(t, err, tt.want)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, signer.inputs, "nothing is signed for an invalid draft")
		})
	}
}

func TestBuild_TotalWithinTolerance(t *testing.T) {
	draft := saleDraft()
	draft.Total = d("12.21")

	env, _, err := newTestBuilder(&recordingSigner{}).Build(draft)
	require.NoError(t, err)
	assert.Equal(t, "12.21", env.Invoice.InvoiceAmount.String())
}

func TestBuild_NonNumericTaxNumber(t *testing.T) {
	b := NewBuilder(&recordingSigner{}, "SI12345678", time.UTC)
	_, _, err := b.Build(saleDraft())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "TaxNumber", vErr.Field)
}
