package authority

import (
	"blagajna/internal/fiscal"
)

// PremiseRequest registers a business premise before it issues invoices.
type PremiseRequest struct {
	Header          fiscal.Header   `json:"Header"`
	BusinessPremise BusinessPremise `json:"BusinessPremise"`
}

// BusinessPremise is the registered premise.
type BusinessPremise struct {
	TaxNumber         fiscal.TaxNumber   `json:"TaxNumber"`
	BusinessPremiseID string             `json:"BusinessPremiseID"`
	BPIdentifier      PremiseIdentifier  `json:"BPIdentifier"`
	ValidityDate      string             `json:"ValidityDate"`
	SoftwareSupplier  []SoftwareSupplier `json:"SoftwareSupplier,omitempty"`
	SpecialNotes      string             `json:"SpecialNotes,omitempty"`
}

// PremiseIdentifier locates a premise in the real estate register.
type PremiseIdentifier struct {
	RealEstateBP RealEstate `json:"RealEstateBP"`
}

type RealEstate struct {
	PropertyID PropertyID `json:"PropertyID"`
	Address    Address    `json:"Address"`
}

type PropertyID struct {
	CadastralNumber       int `json:"CadastralNumber"`
	BuildingNumber        int `json:"BuildingNumber"`
	BuildingSectionNumber int `json:"BuildingSectionNumber"`
}

type Address struct {
	Street                string `json:"Street"`
	HouseNumber           string `json:"HouseNumber"`
	HouseNumberAdditional string `json:"HouseNumberAdditional,omitempty"`
	Community             string `json:"Community"`
	City                  string `json:"City"`
	PostalCode            string `json:"PostalCode"`
}

type SoftwareSupplier struct {
	TaxNumber fiscal.TaxNumber `json:"TaxNumber"`
}
