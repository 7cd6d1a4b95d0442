package model

import (
	"time"
)

// BusinessPremise is a premise registered with the Authority.
type BusinessPremise struct {
	BusinessPremiseID     string    `gorm:"type:varchar(20);primaryKey" json:"business_premise_id"`
	TaxNumber             string    `gorm:"type:varchar(20);not null" json:"tax_number"`
	ValidityDate          string    `gorm:"type:varchar(10);not null" json:"validity_date"`
	CadastralNumber       int       `json:"cadastral_number"`
	BuildingNumber        int       `json:"building_number"`
	BuildingSectionNumber int       `json:"building_section_number"`
	Street                string    `gorm:"type:varchar(255);not null" json:"street"`
	HouseNumber           string    `gorm:"type:varchar(20)" json:"house_number"`
	HouseNumberAdditional string    `gorm:"type:varchar(20)" json:"house_number_additional,omitempty"`
	Community             string    `gorm:"type:varchar(255)" json:"community"`
	City                  string    `gorm:"type:varchar(255);not null" json:"city"`
	PostalCode            string    `gorm:"type:varchar(10);not null" json:"postal_code"`
	RegisteredAt          time.Time `gorm:"not null" json:"registered_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
