package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zdziszkee/swift-registry/internal/bic"
	models "github.com/zdziszkee/swift-registry/internal/models"
	readers "github.com/zdziszkee/swift-registry/internal/readers"
)

// ParseResult holds the converted banks and the rows that failed validation.
type ParseResult struct {
	Banks    []models.SwiftBank
	Rejected []readers.RowError
}

type SwiftBanksParser interface {
	ParseSwiftBanks(records []readers.SwiftBankRecord) *ParseResult
}

// DefaultSwiftBanksParser applies the same bounds as the create operation.
// Repeated codes within one input keep their first occurrence.
type DefaultSwiftBanksParser struct {
	Logger *zap.Logger
}

func (p DefaultSwiftBanksParser) ParseSwiftBanks(records []readers.SwiftBankRecord) *ParseResult {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result := &ParseResult{Banks: make([]models.SwiftBank, 0, len(records))}
	seen := make(map[string]int, len(records))

	for _, record := range records {
		bank, err := toBank(record)
		if err == nil {
			if firstLine, dup := seen[bank.SwiftCode]; dup {
				err = fmt.Errorf("duplicate of line %d", firstLine)
			}
		}
		if err != nil {
			logger.Debug("skipping row",
				zap.Int("line", record.Line),
				zap.String("swift_code", record.SwiftCode),
				zap.String("reason", err.Error()))
			result.Rejected = append(result.Rejected, readers.RowError{Line: record.Line, Reason: err.Error()})
			continue
		}

		seen[bank.SwiftCode] = record.Line
		result.Banks = append(result.Banks, bank)
	}

	return result
}

func toBank(record readers.SwiftBankRecord) (models.SwiftBank, error) {
	swiftCode := bic.Normalize(record.SwiftCode)
	if err := bic.ValidateLength(swiftCode); err != nil {
		return models.SwiftBank{}, err
	}
	prefix, _ := bic.InstitutionPrefix(swiftCode)

	address := record.Address
	if record.TownName != "" {
		address = fmt.Sprintf("%s, %s", record.Address, record.TownName)
	}

	bank := models.SwiftBank{
		SwiftCode:     swiftCode,
		SwiftCodeBase: prefix,
		BankName:      record.BankName,
		Address:       address,
		CountryISO2:   strings.ToUpper(record.CountryISO2),
		CountryName:   strings.ToUpper(record.CountryName),
		TimeZone:      record.TimeZone,
		IsHeadquarter: headquarterFlag(record.CodeType, swiftCode),
		IsActive:      true,
	}

	switch {
	case !between(bank.BankName, 2, 255):
		return bank, fmt.Errorf("bankName must be 2 to 255 characters")
	case !between(bank.Address, 5, 512):
		return bank, fmt.Errorf("address must be 5 to 512 characters")
	case utf8.RuneCountInString(bank.CountryISO2) != 2:
		return bank, fmt.Errorf("countryISO2 %q must be exactly 2 characters", bank.CountryISO2)
	case bank.CountryName == "":
		return bank, fmt.Errorf("countryName is required")
	case utf8.RuneCountInString(bank.TimeZone) > 50:
		return bank, fmt.Errorf("timeZone must be at most 50 characters")
	}
	return bank, nil
}

// headquarterFlag reads CODE TYPE, falling back to the code suffix when the
// column carries no usable value.
func headquarterFlag(codeType, swiftCode string) bool {
	switch strings.ToUpper(strings.TrimSpace(codeType)) {
	case "HEADQUARTER", "HQ":
		return true
	case "BRANCH":
		return false
	default:
		return bic.LooksLikeHeadquarter(swiftCode)
	}
}

func between(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}
