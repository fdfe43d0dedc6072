package models

import "time"

// SwiftBank represents a row of the swift_codes table
type SwiftBank struct {
	ID            string    `db:"id" json:"id"`
	SwiftCode     string    `db:"swift_code" json:"swiftCode"`
	SwiftCodeBase string    `db:"swift_code_base" json:"swiftCodeBase"`
	BankName      string    `db:"bank_name" json:"bankName"`
	Address       string    `db:"address" json:"address"`
	CountryISO2   string    `db:"country_iso2" json:"countryISO2"`
	CountryName   string    `db:"country_name" json:"countryName"`
	TimeZone      string    `db:"time_zone" json:"timeZone,omitempty"`
	IsHeadquarter bool      `db:"is_headquarter" json:"isHeadquarter"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// BranchSummary is the reduced public shape used for nested branches and country listings
type BranchSummary struct {
	SwiftCode     string `json:"swiftCode"`
	BankName      string `json:"bankName"`
	Address       string `json:"address"`
	CountryISO2   string `json:"countryISO2"`
	IsHeadquarter bool   `json:"isHeadquarter"`
}

// Summary projects a record to its public branch shape.
func (b SwiftBank) Summary() BranchSummary {
	return BranchSummary{
		SwiftCode:     b.SwiftCode,
		BankName:      b.BankName,
		Address:       b.Address,
		CountryISO2:   b.CountryISO2,
		IsHeadquarter: b.IsHeadquarter,
	}
}
