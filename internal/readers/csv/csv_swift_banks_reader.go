package csv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	readers "github.com/zdziszkee/swift-registry/internal/readers"
)

type CSVSwiftBanksReader struct{}

const (
	colCountryISO2 = "COUNTRY ISO2 CODE"
	colSwiftCode   = "SWIFT CODE"
	colCodeType    = "CODE TYPE"
	colName        = "NAME"
	colAddress     = "ADDRESS"
	colTownName    = "TOWN NAME"
	colCountryName = "COUNTRY NAME"
	colTimeZone    = "TIME ZONE"
)

var requiredColumns = []string{colCountryISO2, colSwiftCode, colCodeType, colName, colAddress, colTownName, colCountryName, colTimeZone}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadSwiftBanks reads every data row. The header is matched by name,
// case-insensitively and in any order. Rows with the wrong number of fields
// are rejected and counted instead of aborting the read.
func (c *CSVSwiftBanksReader) LoadSwiftBanks(reader io.Reader) (*readers.ReadResult, error) {
	buffered := bufio.NewReader(reader)
	if prefix, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}

	csvReader := csv.NewReader(buffered)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return nil, readers.ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	headerMap, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	result := &readers.ReadResult{Records: []readers.SwiftBankRecord{}}
	for {
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			result.Rejected = append(result.Rejected, readers.RowError{Line: parseErr.StartLine, Reason: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		line, _ := csvReader.FieldPos(0)
		if len(row) != len(header) {
			result.Rejected = append(result.Rejected, readers.RowError{
				Line:   line,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(header), len(row)),
			})
			continue
		}

		getVal := func(field string) string {
			return strings.TrimSpace(row[headerMap[field]])
		}

		result.Records = append(result.Records, readers.SwiftBankRecord{
			Line:        line,
			CountryISO2: getVal(colCountryISO2),
			SwiftCode:   getVal(colSwiftCode),
			CodeType:    getVal(colCodeType),
			BankName:    getVal(colName),
			Address:     getVal(colAddress),
			TownName:    getVal(colTownName),
			CountryName: getVal(colCountryName),
			TimeZone:    getVal(colTimeZone),
		})
	}

	return result, nil
}

func indexHeader(header []string) (map[string]int, error) {
	headerMap := make(map[string]int, len(header))
	for i, col := range header {
		headerMap[strings.ToUpper(strings.TrimSpace(col))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := headerMap[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("invalid header: missing required columns: %s", strings.Join(missing, ", "))
	}
	return headerMap, nil
}
