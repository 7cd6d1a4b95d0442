package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Premise describes a business premise as it is registered with the Authority.
type Premise struct {
	BusinessPremiseID string `yaml:"business_premise_id"`
	TaxNumber         string `yaml:"tax_number"`
	ValidityDate      string `yaml:"validity_date"` // YYYY-MM-DD
	SoftwareSupplier  string `yaml:"software_supplier_tax_number"`
	SpecialNotes      string `yaml:"special_notes"`

	Property struct {
		CadastralNumber       int `yaml:"cadastral_number"`
		BuildingNumber        int `yaml:"building_number"`
		BuildingSectionNumber int `yaml:"building_section_number"`
	} `yaml:"property"`

	Address struct {
		Street                string `yaml:"street"`
		HouseNumber           string `yaml:"house_number"`
		HouseNumberAdditional string `yaml:"house_number_additional"`
		Community             string `yaml:"community"`
		City                  string `yaml:"city"`
		PostalCode            string `yaml:"postal_code"`
	} `yaml:"address"`
}

// LoadPremise reads a premise description from a YAML file.
func LoadPremise(path string) (*Premise, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read premise file: %w", err)
	}

	var premise Premise
	if err := yaml.Unmarshal(data, &premise); err != nil {
		return nil, fmt.Errorf("failed to parse premise file: %w", err)
	}

	if err := premise.Validate(); err != nil {
		return nil, err
	}
	return &premise, nil
}

// Validate checks the fields the Authority requires.
func (p *Premise) Validate() error {
	if p.BusinessPremiseID == "" {
		return fmt.Errorf("business_premise_id is required")
	}
	if p.TaxNumber == "" {
		return fmt.Errorf("tax_number is required")
	}
	if _, err := time.Parse("2006-01-02", p.ValidityDate); err != nil {
		return fmt.Errorf("invalid validity_date (expected YYYY-MM-DD): %w", err)
	}
	if p.Address.Street == "" || p.Address.City == "" || p.Address.PostalCode == "" {
		return fmt.Errorf("address street, city and postal_code are required")
	}
	return nil
}
