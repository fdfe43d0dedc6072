// Package importer loads SWIFT code files into the record store.
package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zdziszkee/swift-registry/internal/cache"
	"github.com/zdziszkee/swift-registry/internal/metrics"
	"github.com/zdziszkee/swift-registry/internal/models"
	parser "github.com/zdziszkee/swift-registry/internal/parsers"
	readers "github.com/zdziszkee/swift-registry/internal/readers"
	"github.com/zdziszkee/swift-registry/internal/readers/csv"
	repository "github.com/zdziszkee/swift-registry/internal/repositories"
	"github.com/zdziszkee/swift-registry/internal/sources"
)

// Result summarizes one import run.
type Result struct {
	Imported    int     `json:"imported"`
	Total       int     `json:"total"`
	Skipped     int     `json:"skipped"`
	SuccessRate float64 `json:"successRate"`
}

type Importer struct {
	repo    repository.SwiftRepository
	opener  sources.Opener
	reader  readers.SwiftBanksReader
	parser  parser.SwiftBanksParser
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Importer)

// WithCache makes the importer drop cached lookups its inserts change.
func WithCache(c cache.Cache) Option {
	return func(i *Importer) { i.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Importer) { i.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(i *Importer) { i.newID = newID }
}

// New creates an importer reading CSV files.
func New(repo repository.SwiftRepository, opener sources.Opener, logger *zap.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Importer{
		repo:   repo,
		opener: opener,
		reader: &csv.CSVSwiftBanksReader{},
		parser: parser.DefaultSwiftBanksParser{Logger: logger},
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportFile opens location and imports it.
func (i *Importer) ImportFile(ctx context.Context, location string) (*Result, error) {
	i.logger.Info("starting import", zap.String("location", location))

	rc, err := i.opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return i.Import(ctx, rc)
}

// Import inserts every valid row of r that is not stored yet. Rejected rows,
// repeats within the file and already stored codes are skipped and counted.
// All inserts share one transaction.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	read, err := i.reader.LoadSwiftBanks(r)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	for _, rejected := range read.Rejected {
		i.logger.Warn("unreadable row", zap.Int("line", rejected.Line), zap.String("reason", rejected.Reason))
	}

	parsed := i.parser.ParseSwiftBanks(read.Records)
	total := len(read.Records) + len(read.Rejected)

	imported := 0
	var inserted []*models.SwiftBank
	err = i.repo.WithinTx(ctx, func(tx repository.SwiftRepository) error {
		banks, err := i.newBanks(ctx, tx, parsed.Banks)
		if err != nil {
			return err
		}
		imported, err = tx.CreateBatch(ctx, banks)
		inserted = banks
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("import failed: %w", err)
	}
	i.invalidate(ctx, inserted)

	result := &Result{
		Imported: imported,
		Total:    total,
		Skipped:  total - imported,
	}
	if total > 0 {
		result.SuccessRate = float64(imported) / float64(total) * 100
	}
	i.metrics.ObserveImport(result.Imported, result.Skipped)

	i.logger.Info("import completed",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("total", result.Total),
		zap.String("success_rate", fmt.Sprintf("%.2f%%", result.SuccessRate)))

	return result, nil
}

// newBanks drops already stored codes and stamps the remaining rows.
func (i *Importer) newBanks(ctx context.Context, tx repository.SwiftRepository, parsed []models.SwiftBank) ([]*models.SwiftBank, error) {
	codes := make([]string, len(parsed))
	for idx, bank := range parsed {
		codes[idx] = bank.SwiftCode
	}
	existing, err := tx.ExistingCodes(ctx, codes)
	if err != nil {
		return nil, err
	}

	now := i.now().UTC()
	banks := make([]*models.SwiftBank, 0, len(parsed))
	for idx := range parsed {
		bank := parsed[idx]
		if existing[bank.SwiftCode] {
			i.logger.Debug("code already stored", zap.String("swift_code", bank.SwiftCode))
			continue
		}
		bank.ID = i.newID()
		bank.CreatedAt = now
		bank.UpdatedAt = now
		banks = append(banks, &bank)
	}
	return banks, nil
}

// invalidate runs after commit, once per distinct prefix and country pair.
func (i *Importer) invalidate(ctx context.Context, banks []*models.SwiftBank) {
	if i.cache == nil {
		return
	}
	type group struct{ prefix, countryISO2 string }
	seen := make(map[group]bool)
	for _, bank := range banks {
		g := group{prefix: bank.SwiftCodeBase, countryISO2: bank.CountryISO2}
		if seen[g] {
			continue
		}
		seen[g] = true
		if err := i.cache.Invalidate(ctx, g.prefix, g.countryISO2); err != nil {
			i.logger.Warn("cache invalidation failed",
				zap.String("prefix", g.prefix),
				zap.String("country_iso2", g.countryISO2),
				zap.Error(err))
		}
	}
	i.logger.Debug("cache invalidated after import", zap.Int("groups", len(seen)))
}
