package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blagajna/internal/authority"
	"blagajna/internal/config"
	"blagajna/internal/fiscal"
	"blagajna/internal/model"
	"blagajna/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PremiseRegistrar is the part of the Authority client that registers premises.
type PremiseRegistrar interface {
	RegisterPremise(ctx context.Context, premise authority.BusinessPremise) error
}

type PremiseService interface {
	Register(ctx context.Context, actor string, premise *config.Premise) (*model.BusinessPremise, error)
}

type premiseService struct {
	premiseRepo repository.PremiseRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	registrar   PremiseRegistrar
	log         zerolog.Logger
	now         func() time.Time
}

func NewPremiseService(
	premiseRepo repository.PremiseRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	registrar PremiseRegistrar,
	log zerolog.Logger,
) PremiseService {
	return &premiseService{
		premiseRepo: premiseRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		registrar:   registrar,
		log:         log,
		now:         time.Now,
	}
}

// Register announces the premise to the Authority and records it locally once accepted.
func (s *premiseService) Register(ctx context.Context, actor string, premise *config.Premise) (*model.BusinessPremise, error) {
	if err := premise.Validate(); err != nil {
		return nil, &fiscal.ValidationError{Field: "premise", Message: err.Error(), Err: fiscal.ErrMissingField}
	}

	if err := s.registrar.RegisterPremise(ctx, toBusinessPremise(premise)); err != nil {
		return nil, fmt.Errorf("failed to register premise %s: %w", premise.BusinessPremiseID, err)
	}

	record := &model.BusinessPremise{
		BusinessPremiseID:     premise.BusinessPremiseID,
		TaxNumber:             premise.TaxNumber,
		ValidityDate:          premise.ValidityDate,
		CadastralNumber:       premise.Property.CadastralNumber,
		BuildingNumber:        premise.Property.BuildingNumber,
		BuildingSectionNumber: premise.Property.BuildingSectionNumber,
		Street:                premise.Address.Street,
		HouseNumber:           premise.Address.HouseNumber,
		HouseNumberAdditional: premise.Address.HouseNumberAdditional,
		Community:             premise.Address.Community,
		City:                  premise.Address.City,
		PostalCode:            premise.Address.PostalCode,
		RegisteredAt:          s.now(),
	}

	// Saving must not depend on how much of the caller's deadline the round trip used.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultStoreTimeout)
	defer cancel()

	err := s.txManager.RunInTx(storeCtx, func(txCtx context.Context) error {
		if err := s.premiseRepo.Upsert(txCtx, record); err != nil {
			return err
		}
		details, _ := json.Marshal(record)
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			ID:         uuid.New(),
			Actor:      actor,
			Action:     model.ActionRegisterPremise,
			EntityID:   record.BusinessPremiseID,
			EntityName: record.Street + " " + record.HouseNumber + ", " + record.City,
			Details:    string(details),
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		// The Authority already holds the registration; repeating it is harmless.
		s.log.Error().Err(err).Str("premise", record.BusinessPremiseID).Msg("registered premise could not be stored")
		return nil, fmt.Errorf("failed to store premise %s: %w", record.BusinessPremiseID, err)
	}

	s.log.Info().Str("premise", record.BusinessPremiseID).Msg("business premise registered")
	return record, nil
}

func toBusinessPremise(p *config.Premise) authority.BusinessPremise {
	bp := authority.BusinessPremise{
		TaxNumber:         fiscal.TaxNumber(p.TaxNumber),
		BusinessPremiseID: p.BusinessPremiseID,
		BPIdentifier: authority.PremiseIdentifier{
			RealEstateBP: authority.RealEstate{
				PropertyID: authority.PropertyID{
					CadastralNumber:       p.Property.CadastralNumber,
					BuildingNumber:        p.Property.BuildingNumber,
					BuildingSectionNumber: p.Property.BuildingSectionNumber,
				},
				Address: authority.Address{
					Street:                p.Address.Street,
					HouseNumber:           p.Address.HouseNumber,
					HouseNumberAdditional: p.Address.HouseNumberAdditional,
					Community:             p.Address.Community,
					City:                  p.Address.City,
					PostalCode:            p.Address.PostalCode,
				},
			},
		},
		ValidityDate: p.ValidityDate,
		SpecialNotes: p.SpecialNotes,
	}
	if p.SoftwareSupplier != "" {
		bp.SoftwareSupplier = []authority.SoftwareSupplier{{TaxNumber: fiscal.TaxNumber(p.SoftwareSupplier)}}
	}
	return bp
}
