package reader

import (
	"errors"
	"io"
)

// ErrEmptyFile is returned for input without a header row.
var ErrEmptyFile = errors.New("swift codes file is empty")

// SwiftBankRecord is one raw data row, trimmed but otherwise unvalidated.
type SwiftBankRecord struct {
	Line        int
	CountryISO2 string // COUNTRY ISO2 CODE
	SwiftCode   string // SWIFT CODE
	CodeType    string // CODE TYPE
	BankName    string // NAME
	Address     string // ADDRESS
	TownName    string // TOWN NAME
	CountryName string // COUNTRY NAME
	TimeZone    string // TIME ZONE
}

// RowError describes a row skipped during reading or parsing.
type RowError struct {
	Line   int
	Reason string
}

// ReadResult holds the readable rows and the ones that were rejected.
type ReadResult struct {
	Records  []SwiftBankRecord
	Rejected []RowError
}

// SwiftBanksReader reads bank rows from a delimited source
type SwiftBanksReader interface {
	LoadSwiftBanks(reader io.Reader) (*ReadResult, error)
}
