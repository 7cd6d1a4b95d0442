package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blagajna/internal/authority"
	"blagajna/internal/fiscal"
	"blagajna/internal/model"
	"blagajna/internal/repository"
	"blagajna/internal/sequencer"
	ws "blagajna/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type LineRequest struct {
	Description   string `json:"description"`
	Rate          string `json:"rate" binding:"required"`
	Quantity      string `json:"quantity"` // defaults to 1
	TaxableAmount string `json:"taxable_amount" binding:"required"`
	TaxAmount     string `json:"tax_amount"` // derived from gross - taxable when empty
	GrossAmount   string `json:"gross_amount" binding:"required"`
}

type IssueInvoiceRequest struct {
	BusinessPremiseID  string        `json:"business_premise_id"`  // defaults to the configured premise
	ElectronicDeviceID string        `json:"electronic_device_id"` // defaults to the configured device
	Lines              []LineRequest `json:"lines" binding:"required,min=1,dive"`
	Total              string        `json:"total" binding:"required"`
	SpecialNotes       string        `json:"special_notes"`
}

type InvoiceFilter struct {
	Status    string // CONFIRMED, REJECTED, UNRESOLVED or empty for all
	PremiseID string
	DeviceID  string
	Page      int
	Limit     int
}

type LineResponse struct {
	Position      int    `json:"position"`
	Description   string `json:"description"`
	Rate          string `json:"rate"`
	Quantity      string `json:"quantity"`
	TaxableAmount string `json:"taxable_amount"`
	TaxAmount     string `json:"tax_amount"`
	GrossAmount   string `json:"gross_amount"`
}

type TaxResponse struct {
	Rate          string `json:"rate"`
	TaxableAmount string `json:"taxable_amount"`
	TaxAmount     string `json:"tax_amount"`
}

type InvoiceResponse struct {
	ID                 string         `json:"id"`
	Identifier         string         `json:"identifier"`
	TaxNumber          string         `json:"tax_number"`
	BusinessPremiseID  string         `json:"business_premise_id"`
	ElectronicDeviceID string         `json:"electronic_device_id"`
	InvoiceNumber      int64          `json:"invoice_number"`
	IssuedAt           string         `json:"issued_at"`
	MessageID          string         `json:"message_id"`
	OperatorTaxNumber  string         `json:"operator_tax_number,omitempty"`
	InvoiceAmount      string         `json:"invoice_amount"`
	PaymentAmount      string         `json:"payment_amount"`
	ZOI                string         `json:"zoi"`
	EOR                *string        `json:"eor"`
	Status             string         `json:"status"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	SpecialNotes       string         `json:"special_notes,omitempty"`
	ReferenceInvoiceID *string        `json:"reference_invoice_id"`
	Taxes              []TaxResponse  `json:"taxes"`
	Lines              []LineResponse `json:"lines"`
	CreatedAt          string         `json:"created_at"`
}

// --- Interface ---

// Authority is the part of the Authority client the pipeline submits through.
type Authority interface {
	Submit(ctx context.Context, env *fiscal.Envelope) (string, error)
	SubmitReversal(ctx context.Context, env *fiscal.Envelope, original fiscal.InvoiceIdentity) (string, error)
}

// Publisher receives an event for every confirmed invoice.
type Publisher interface {
	Publish(event ws.Event)
}

type InvoiceService interface {
	IssueInvoice(ctx context.Context, op Operator, req IssueInvoiceRequest) (InvoiceResponse, error)
	IssueStorno(ctx context.Context, id string, op Operator) (InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
}

// InvoiceConfig holds the defaults of the pipeline.
// Operator is the authenticated caller of a submission.
type Operator struct {
	Actor     string // recorded on audit rows
	TaxNumber string // carried on the envelope, may be empty
}

type InvoiceConfig struct {
	PremiseID          string
	DeviceID           string
	MaxConflictRetries int
	// StoreTimeout bounds saving an outcome once the Authority may have seen it.
	StoreTimeout time.Duration
}

const defaultStoreTimeout = 30 * time.Second

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	seq         *sequencer.Sequencer
	builder     *fiscal.Builder
	authority   Authority
	publisher   Publisher
	cfg         InvoiceConfig
	log         zerolog.Logger
	now         func() time.Time
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	seq *sequencer.Sequencer,
	builder *fiscal.Builder,
	authority Authority,
	publisher Publisher,
	cfg InvoiceConfig,
	log zerolog.Logger,
) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		seq:         seq,
		builder:     builder,
		authority:   authority,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// attempt describes one kind of submission. build is called with a fresh number on
// every try; guard runs under the device lock before the number is used.
type attempt struct {
	action    string
	actor     string
	reference *uuid.UUID
	build     func(number int64, issuedAt time.Time) (fiscal.Draft, *fiscal.Envelope, string, error)
	submit    func(ctx context.Context, env *fiscal.Envelope) (string, error)
	guard     func(ctx context.Context) error
}

// --- Implementation ---

func (s *invoiceService) IssueInvoice(ctx context.Context, op Operator, req IssueInvoiceRequest) (InvoiceResponse, error) {
	premiseID := req.BusinessPremiseID
	if premiseID == "" {
		premiseID = s.cfg.PremiseID
	}
	deviceID := req.ElectronicDeviceID
	if deviceID == "" {
		deviceID = s.cfg.DeviceID
	}

	draft, err := req.draft(premiseID, deviceID, op.TaxNumber)
	if err != nil {
		return InvoiceResponse{}, err
	}

	// Reject bad input before a number is taken for it.
	draft.IssuedAt = s.now()
	if err := s.builder.Validate(draft); err != nil {
		return InvoiceResponse{}, err
	}

	invoice, err := s.run(ctx, sequencer.Key{PremiseID: premiseID, DeviceID: deviceID}, attempt{
		action: model.ActionIssueInvoice,
		actor:  op.Actor,
		build: func(number int64, issuedAt time.Time) (fiscal.Draft, *fiscal.Envelope, string, error) {
			d := draft
			d.Number = number
			d.IssuedAt = issuedAt
			env, zoi, err := s.builder.Build(d)
			return d, env, zoi, err
		},
		submit: s.authority.Submit,
	})
	if err != nil {
		return InvoiceResponse{}, err
	}
	return s.toInvoiceResponse(*invoice), nil
}

func (s *invoiceService) IssueStorno(ctx context.Context, id string, op Operator) (InvoiceResponse, error) {
	original, err := s.findInvoice(ctx, id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if original.Status != model.InvoiceConfirmed {
		return InvoiceResponse{}, fmt.Errorf("%w: invoice is %s", ErrNotReversible, original.Status)
	}
	if original.ReferenceInvoiceID != nil {
		return InvoiceResponse{}, fmt.Errorf("%w: invoice is itself a storno", ErrNotReversible)
	}

	origDraft := toDraft(*original)
	origDraft.IssuedAt = origDraft.IssuedAt.In(s.builder.Location())
	originalID := original.ID

	invoice, err := s.run(ctx, sequencer.Key{PremiseID: original.BusinessPremiseID, DeviceID: original.ElectronicDeviceID}, attempt{
		action:    model.ActionIssueStorno,
		actor:     op.Actor,
		reference: &originalID,
		build: func(number int64, issuedAt time.Time) (fiscal.Draft, *fiscal.Envelope, string, error) {
			env, zoi, err := s.builder.BuildReversal(origDraft, number, issuedAt, op.TaxNumber)
			return fiscal.ReversalDraft(origDraft, number, issuedAt, op.TaxNumber), env, zoi, err
		},
		submit: func(ctx context.Context, env *fiscal.Envelope) (string, error) {
			return s.authority.SubmitReversal(ctx, env, origDraft.Identity())
		},
		guard: func(ctx context.Context) error {
			reversed, err := s.invoiceRepo.HasReversal(ctx, originalID)
			if err != nil {
				return fmt.Errorf("failed to check existing storno: %w", err)
			}
			if reversed {
				return ErrAlreadyReversed
			}
			return nil
		},
	})
	if err != nil {
		return InvoiceResponse{}, err
	}
	return s.toInvoiceResponse(*invoice), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (InvoiceResponse, error) {
	invoice, err := s.findInvoice(ctx, id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return s.toInvoiceResponse(*invoice), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	invoices, total, err := s.invoiceRepo.List(ctx, repository.InvoiceListFilter{
		Status:    filter.Status,
		PremiseID: filter.PremiseID,
		DeviceID:  filter.DeviceID,
		Page:      filter.Page,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}

	res := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		res = append(res, s.toInvoiceResponse(inv))
	}
	return res, total, nil
}

func (s *invoiceService) findInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrInvoiceNotFound, id)
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return invoice, nil
}

// run submits under the device lock and repeats with a fresh number when a confirmed
// invoice loses its number to a concurrent writer.
func (s *invoiceService) run(ctx context.Context, key sequencer.Key, a attempt) (*model.Invoice, error) {
	for try := 0; ; try++ {
		var saved *model.Invoice
		err := s.seq.Do(ctx, key, func(ctx context.Context, number int64) error {
			if a.guard != nil {
				if err := a.guard(ctx); err != nil {
					return err
				}
			}
			invoice, err := s.submitOnce(ctx, a, number)
			saved = invoice
			return err
		})

		var conflict *SequencingConflictError
		if errors.As(err, &conflict) && try < s.cfg.MaxConflictRetries {
			s.log.Warn().
				Str("invoice", conflict.Identity.String()).
				Int("try", try+1).
				Msg("invoice number taken concurrently, submitting again with a new number")
			continue
		}
		if err != nil {
			return nil, err
		}
		return saved, nil
	}
}

func (s *invoiceService) submitOnce(ctx context.Context, a attempt, number int64) (*model.Invoice, error) {
	draft, env, zoi, err := a.build(number, s.now())
	if err != nil {
		return nil, &SubmissionError{Identity: draft.Identity(), Err: err}
	}
	identity := draft.Identity()
	messageID := env.Header.MessageID

	log := s.log.With().
		Str("message_id", messageID).
		Str("premise", identity.PremiseID).
		Str("device", identity.DeviceID).
		Int64("number", identity.Number).
		Logger()

	eor, submitErr := a.submit(ctx, env)

	invoice := newInvoiceModel(draft, env, zoi)
	invoice.ReferenceInvoiceID = a.reference
	action := a.action

	var transportErr *authority.TransportError
	var ambiguousErr *authority.AmbiguousOutcomeError
	var verificationErr *authority.VerificationError
	switch {
	case submitErr == nil:
		invoice.Status = model.InvoiceConfirmed
		invoice.EOR = &eor
	case errors.As(submitErr, &transportErr) && transportErr.Delivered():
		invoice.Status = model.InvoiceRejected
		invoice.FailureReason = submitErr.Error()
		action = model.ActionRejectedSubmission
	case errors.As(submitErr, &ambiguousErr), errors.As(submitErr, &verificationErr):
		invoice.Status = model.InvoiceUnresolved
		invoice.FailureReason = submitErr.Error()
		action = model.ActionUnresolvedSubmission
	default:
		// Nothing reached the Authority, the number stays free.
		log.Warn().Err(submitErr).Msg("invoice not submitted")
		return nil, &SubmissionError{Identity: identity, MessageID: messageID, Err: submitErr}
	}

	// The Authority may hold this number now. Its outcome is stored even when the
	// caller has gone away, or the number would be handed out twice.
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	err = s.txManager.RunInTx(storeCtx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.Create(txCtx, invoice); err != nil {
			return err
		}
		return s.writeAudit(txCtx, a.actor, action, identity, messageID, map[string]interface{}{
			"status":       invoice.Status,
			"zoi":          zoi,
			"eor":          eor,
			"total":        invoice.InvoiceAmount.StringFixed(2),
			"failure":      invoice.FailureReason,
			"reference_id": a.reference,
		})
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		conflict := &SequencingConflictError{Identity: identity, MessageID: messageID, EOR: eor, Err: err}
		log.Error().Err(err).Str("status", invoice.Status).Str("eor", eor).Msg("invoice number already used")
		if auditErr := s.writeAudit(storeCtx, a.actor, model.ActionSequencingConflict, identity, messageID, map[string]interface{}{
			"status": invoice.Status,
			"zoi":    zoi,
			"eor":    eor,
		}); auditErr != nil {
			log.Error().Err(auditErr).Msg("failed to audit sequencing conflict")
		}
		if submitErr != nil {
			return nil, &SubmissionError{Identity: identity, MessageID: messageID, Err: submitErr}
		}
		return nil, &SubmissionError{Identity: identity, MessageID: messageID, EOR: eor, Err: conflict}
	}
	if err != nil {
		if submitErr == nil {
			log.Error().Err(err).Str("eor", eor).Str("zoi", zoi).Msg("confirmed invoice could not be stored")
			return nil, &SubmissionError{Identity: identity, MessageID: messageID, EOR: eor, Err: fmt.Errorf("failed to store confirmed invoice: %w", err)}
		}
		log.Error().Err(err).Str("status", invoice.Status).Msg("failed invoice could not be stored")
		return nil, &SubmissionError{Identity: identity, MessageID: messageID, Err: errors.Join(submitErr, fmt.Errorf("failed to store %s invoice: %w", invoice.Status, err))}
	}

	if submitErr != nil {
		log.Warn().Err(submitErr).Str("status", invoice.Status).Msg("invoice not confirmed")
		return nil, &SubmissionError{Identity: identity, MessageID: messageID, Err: submitErr}
	}

	log.Info().Str("status", invoice.Status).Str("eor", eor).Msg("invoice confirmed")
	if s.publisher != nil {
		s.publisher.Publish(ws.Event{Type: "invoice.confirmed", Data: s.toInvoiceResponse(*invoice)})
	}
	return invoice, nil
}

func (s *invoiceService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *invoiceService) writeAudit(ctx context.Context, actor, action string, identity fiscal.InvoiceIdentity, messageID string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		ID:         uuid.New(),
		Actor:      actor,
		Action:     action,
		EntityID:   identity.String(),
		EntityName: messageID,
		Details:    string(payload),
		CreatedAt:  s.now(),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (req IssueInvoiceRequest) draft(premiseID, deviceID, operator string) (fiscal.Draft, error) {
	total, err := parseAmount("total", req.Total)
	if err != nil {
		return fiscal.Draft{}, err
	}

	lines := make([]fiscal.Line, 0, len(req.Lines))
	for i, l := range req.Lines {
		line := fiscal.Line{Description: l.Description, Quantity: decimal.NewFromInt(1)}
		if line.Rate, err = parseAmount(fmt.Sprintf("lines[%d].rate", i), l.Rate); err != nil {
			return fiscal.Draft{}, err
		}
		if line.TaxableAmount, err = parseAmount(fmt.Sprintf("lines[%d].taxable_amount", i), l.TaxableAmount); err != nil {
			return fiscal.Draft{}, err
		}
		if line.GrossAmount, err = parseAmount(fmt.Sprintf("lines[%d].gross_amount", i), l.GrossAmount); err != nil {
			return fiscal.Draft{}, err
		}
		if l.TaxAmount != "" {
			if line.TaxAmount, err = parseAmount(fmt.Sprintf("lines[%d].tax_amount", i), l.TaxAmount); err != nil {
				return fiscal.Draft{}, err
			}
		}
		if l.Quantity != "" {
			if line.Quantity, err = parseAmount(fmt.Sprintf("lines[%d].quantity", i), l.Quantity); err != nil {
				return fiscal.Draft{}, err
			}
		}
		lines = append(lines, line)
	}

	return fiscal.Draft{
		PremiseID:         premiseID,
		DeviceID:          deviceID,
		OperatorTaxNumber: operator,
		Lines:             lines,
		Total:             total,
		SpecialNotes:      req.SpecialNotes,
	}, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &fiscal.ValidationError{Field: field, Value: value, Message: "must be a decimal number", Err: err}
	}
	return d, nil
}

func newInvoiceModel(draft fiscal.Draft, env *fiscal.Envelope, zoi string) *model.Invoice {
	lines := make([]model.InvoiceLine, len(draft.Lines))
	for i, l := range draft.Lines {
		lines[i] = model.InvoiceLine{
			Position:      i + 1,
			Description:   l.Description,
			Rate:          l.Rate,
			Quantity:      l.Quantity,
			TaxableAmount: l.TaxableAmount,
			TaxAmount:     l.Tax(),
			GrossAmount:   l.GrossAmount,
		}
	}

	return &model.Invoice{
		TaxNumber:          string(env.Invoice.TaxNumber),
		BusinessPremiseID:  draft.PremiseID,
		ElectronicDeviceID: draft.DeviceID,
		InvoiceNumber:      draft.Number,
		Year:               draft.IssuedAt.Year(),
		IssuedAt:           draft.IssuedAt,
		MessageID:          env.Header.MessageID,
		OperatorTaxNumber:  draft.OperatorTaxNumber,
		InvoiceAmount:      env.Invoice.InvoiceAmount.Decimal(),
		PaymentAmount:      env.Invoice.PaymentAmount.Decimal(),
		ZOI:                zoi,
		SpecialNotes:       draft.SpecialNotes,
		Lines:              lines,
	}
}

// toDraft rebuilds the draft a stored invoice was certified from.
func toDraft(inv model.Invoice) fiscal.Draft {
	lines := make([]fiscal.Line, len(inv.Lines))
	for i, l := range inv.Lines {
		lines[i] = fiscal.Line{
			Rate:          l.Rate,
			TaxableAmount: l.TaxableAmount,
			TaxAmount:     l.TaxAmount,
			GrossAmount:   l.GrossAmount,
			Quantity:      l.Quantity,
			Description:   l.Description,
		}
	}
	return fiscal.Draft{
		PremiseID:         inv.BusinessPremiseID,
		DeviceID:          inv.ElectronicDeviceID,
		Number:            inv.InvoiceNumber,
		IssuedAt:          inv.IssuedAt,
		OperatorTaxNumber: inv.OperatorTaxNumber,
		Lines:             lines,
		Total:             inv.InvoiceAmount,
		SpecialNotes:      inv.SpecialNotes,
	}
}

func (s *invoiceService) toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	var refID *string
	if inv.ReferenceInvoiceID != nil {
		id := inv.ReferenceInvoiceID.String()
		refID = &id
	}

	draft := toDraft(inv)
	taxes := make([]TaxResponse, 0)
	for _, vat := range fiscal.Buckets(draft.Lines) {
		taxes = append(taxes, TaxResponse{
			Rate:          vat.TaxRate.String(),
			TaxableAmount: vat.TaxableAmount.String(),
			TaxAmount:     vat.TaxAmount.String(),
		})
	}

	lines := make([]LineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, LineResponse{
			Position:      l.Position,
			Description:   l.Description,
			Rate:          l.Rate.String(),
			Quantity:      l.Quantity.String(),
			TaxableAmount: l.TaxableAmount.StringFixed(2),
			TaxAmount:     l.TaxAmount.StringFixed(2),
			GrossAmount:   l.GrossAmount.StringFixed(2),
		})
	}

	return InvoiceResponse{
		ID:                 inv.ID.String(),
		Identifier:         draft.Identity().String(),
		TaxNumber:          inv.TaxNumber,
		BusinessPremiseID:  inv.BusinessPremiseID,
		ElectronicDeviceID: inv.ElectronicDeviceID,
		InvoiceNumber:      inv.InvoiceNumber,
		IssuedAt:           inv.IssuedAt.In(s.builder.Location()).Format(fiscal.DateTimeLayout),
		MessageID:          inv.MessageID,
		OperatorTaxNumber:  inv.OperatorTaxNumber,
		InvoiceAmount:      inv.InvoiceAmount.StringFixed(2),
		PaymentAmount:      inv.PaymentAmount.StringFixed(2),
		ZOI:                inv.ZOI,
		EOR:                inv.EOR,
		Status:             inv.Status,
		FailureReason:      inv.FailureReason,
		SpecialNotes:       inv.SpecialNotes,
		ReferenceInvoiceID: refID,
		Taxes:              taxes,
		Lines:              lines,
		CreatedAt:          inv.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
