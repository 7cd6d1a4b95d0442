package service

import (
	"context"
	"crypto/x509/pkix"
	"sort"
	"sync"
	"testing"
	"time"

	"blagajna/internal/certstore"
	"blagajna/internal/fiscal"
	"blagajna/internal/model"
	"blagajna/internal/repository"
	"blagajna/internal/sequencer"
	"blagajna/internal/testutil/pki"
	ws "blagajna/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var issuedAt = time.Date(2026, 8, 15, 10, 13, 32, 0, time.UTC)

var (
	cashier = Operator{Actor: "operator-1", TaxNumber: "87654321"}
	manager = Operator{Actor: "operator-2", TaxNumber: "11111111"}
)

// memInvoiceRepo enforces the (premise, device, number) unique index in memory.
type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices []model.Invoice

	// beforeCreate runs before the uniqueness check, outside the lock.
	beforeCreate func(inv *model.Invoice)
	createErr    error
}

func (r *memInvoiceRepo) seed(inv model.Invoice) model.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	r.invoices = append(r.invoices, inv)
	return inv
}

func (r *memInvoiceRepo) Create(_ context.Context, inv *model.Invoice) error {
	if r.beforeCreate != nil {
		r.beforeCreate(inv)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.invoices {
		if existing.BusinessPremiseID == inv.BusinessPremiseID &&
			existing.ElectronicDeviceID == inv.ElectronicDeviceID &&
			existing.InvoiceNumber == inv.InvoiceNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	for i := range inv.Lines {
		inv.Lines[i].ID = uuid.New()
		inv.Lines[i].InvoiceID = inv.ID
	}
	inv.CreatedAt = issuedAt
	r.invoices = append(r.invoices, *inv)
	return nil
}

func (r *memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.ID == id {
			found := inv
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memInvoiceRepo) FindLastNumber(_ context.Context, premiseID, deviceID string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last int64
	found := false
	for _, inv := range r.invoices {
		if inv.BusinessPremiseID == premiseID && inv.ElectronicDeviceID == deviceID && inv.InvoiceNumber > last {
			last = inv.InvoiceNumber
			found = true
		}
	}
	return last, found, nil
}

func (r *memInvoiceRepo) HasReversal(_ context.Context, originalID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.ReferenceInvoiceID != nil && *inv.ReferenceInvoiceID == originalID &&
			(inv.Status == model.InvoiceConfirmed || inv.Status == model.InvoiceUnresolved) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memInvoiceRepo) List(_ context.Context, filter repository.InvoiceListFilter) ([]model.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Invoice
	for _, inv := range r.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber > out[j].InvoiceNumber })
	return out, int64(len(out)), nil
}

func (r *memInvoiceRepo) byNumber(number int64) (model.Invoice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.InvoiceNumber == number {
			return inv, true
		}
	}
	return model.Invoice{}, false
}

func (r *memInvoiceRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invoices)
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (r *memAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, action string, _, _ int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditLog
	for _, e := range r.entries {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// cancellableTx refuses to start on a done context, as a gorm transaction does.
type cancellableTx struct{}

func (cancellableTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// stubAuthority confirms everything unless an error is queued for the call.
type stubAuthority struct {
	mu        sync.Mutex
	envelopes []*fiscal.Envelope
	originals []fiscal.InvoiceIdentity
	errs      []error
	eors      []string

	// onSubmit runs after the envelope is recorded, before the answer is returned.
	onSubmit func()
}

func (a *stubAuthority) Submit(_ context.Context, env *fiscal.Envelope) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.envelopes = append(a.envelopes, env)
	call := len(a.envelopes) - 1
	if a.onSubmit != nil {
		a.onSubmit()
	}
	if call < len(a.errs) && a.errs[call] != nil {
		return "", a.errs[call]
	}
	eor := uuid.NewString()
	a.eors = append(a.eors, eor)
	return eor, nil
}

func (a *stubAuthority) SubmitReversal(ctx context.Context, env *fiscal.Envelope, original fiscal.InvoiceIdentity) (string, error) {
	a.mu.Lock()
	a.originals = append(a.originals, original)
	a.mu.Unlock()
	return a.Submit(ctx, env)
}

func (a *stubAuthority) calls() []*fiscal.Envelope {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*fiscal.Envelope(nil), a.envelopes...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ws.Event
}

func (p *recordingPublisher) Publish(event ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) published() []ws.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ws.Event(nil), p.events...)
}

type pipeline struct {
	svc       *invoiceService
	invoices  *memInvoiceRepo
	audit     *memAuditRepo
	authority *stubAuthority
	publisher *recordingPublisher
	store     *certstore.Store
}

var (
	storeOnce sync.Once
	testStore *certstore.Store
)

// fiscalIdentity issues one signing identity per test binary; RSA key generation is slow.
func fiscalIdentity(t *testing.T) *certstore.Store {
	t.Helper()
	storeOnce.Do(func() {
		ca := pki.NewCA(t, "Tax CA Test")
		leaf := ca.Issue(t, pki.Options{Subject: pkix.Name{CommonName: "TESTNO PODJETJE 140"}, Serial: 4242})
		store, err := certstore.Decode(leaf.PKCS12(t, "secret"), "secret")
		require.NoError(t, err)
		testStore = store
	})
	require.NotNil(t, testStore)
	return testStore
}

func newPipeline(t *testing.T, retries int) *pipeline {
	t.Helper()

	store := fiscalIdentity(t)
	p := &pipeline{
		invoices:  &memInvoiceRepo{},
		audit:     &memAuditRepo{},
		authority: &stubAuthority{},
		publisher: &recordingPublisher{},
		store:     store,
	}

	svc := NewInvoiceService(
		p.invoices,
		p.audit,
		cancellableTx{},
		sequencer.New(p.invoices),
		fiscal.NewBuilder(store, "12345678", time.UTC),
		p.authority,
		p.publisher,
		InvoiceConfig{PremiseID: "B1", DeviceID: "BLAGO", MaxConflictRetries: retries},
		zerolog.Nop(),
	).(*invoiceService)
	svc.now = func() time.Time { return issuedAt }
	p.svc = svc
	return p
}

func sale() IssueInvoiceRequest {
	return IssueInvoiceRequest{
		Lines: []LineRequest{{
			Description:   "Yoga class",
			Rate:          "22",
			TaxableAmount: "10.00",
			GrossAmount:   "12.20",
		}},
		Total: "12.20",
	}
}
