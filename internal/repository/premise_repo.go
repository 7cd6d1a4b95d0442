package repository

import (
	"context"

	"blagajna/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PremiseRepository interface {
	Upsert(ctx context.Context, premise *model.BusinessPremise) error
	FindByID(ctx context.Context, id string) (*model.BusinessPremise, error)
}

type premiseRepository struct {
	db *gorm.DB
}

func NewPremiseRepository(db *gorm.DB) PremiseRepository {
	return &premiseRepository{db: db}
}

// Upsert stores the premise, replacing an earlier registration of the same id.
func (r *premiseRepository) Upsert(ctx context.Context, premise *model.BusinessPremise) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{UpdateAll: true}).Create(premise).Error
}

func (r *premiseRepository) FindByID(ctx context.Context, id string) (*model.BusinessPremise, error) {
	var premise model.BusinessPremise
	if err := GetDB(ctx, r.db).First(&premise, "business_premise_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &premise, nil
}
