package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zdziszkee/swift-registry/internal/bic"
	"github.com/zdziszkee/swift-registry/internal/branches"
	"github.com/zdziszkee/swift-registry/internal/cache"
	"github.com/zdziszkee/swift-registry/internal/metrics"
	"github.com/zdziszkee/swift-registry/internal/models"
	repository "github.com/zdziszkee/swift-registry/internal/repositories"
)

const (
	msgCreated = "SWIFT code created successfully"
	msgDeleted = "SWIFT code deleted successfully"

	lookupTimeout = 10 * time.Second
)

// SwiftService handles business logic for SWIFT codes
type SwiftService interface {
	GetSwiftCodeDetails(ctx context.Context, code string) (SwiftCodeDetail, error)
	GetSwiftCodesByCountry(ctx context.Context, countryISO2 string) (*CountrySwiftCodes, error)
	CreateSwiftCode(ctx context.Context, input CreateInput) (*CreateResult, error)
	DeleteSwiftCode(ctx context.Context, code string) (*DeleteResult, error)
}

// SwiftCodeDetail is the result of a single code lookup: either a
// *HeadquarterDetail or a *BranchDetail.
type SwiftCodeDetail interface {
	Code() string
	isSwiftCodeDetail()
}

// CodeDetail holds the fields shared by both lookup shapes.
type CodeDetail struct {
	Address       string `json:"address"`
	BankName      string `json:"bankName"`
	CountryISO2   string `json:"countryISO2"`
	CountryName   string `json:"countryName"`
	IsHeadquarter bool   `json:"isHeadquarter"`
	SwiftCode     string `json:"swiftCode"`
}

func (d CodeDetail) Code() string { return d.SwiftCode }

// HeadquarterDetail always serializes its branches, even when there are none.
type HeadquarterDetail struct {
	CodeDetail
	Branches []models.BranchSummary `json:"branches"`
}

// BranchDetail has no branches field at all.
type BranchDetail struct {
	CodeDetail
}

func (*HeadquarterDetail) isSwiftCodeDetail() {}
func (*BranchDetail) isSwiftCodeDetail()      {}

// CountrySwiftCodes lists the active codes of one country.
type CountrySwiftCodes struct {
	CountryISO2 string                 `json:"countryISO2"`
	CountryName string                 `json:"countryName"`
	SwiftCodes  []models.BranchSummary `json:"swiftCodes"`
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Address       string `json:"address" validate:"required,min=5,max=512"`
	BankName      string `json:"bankName" validate:"required,min=2,max=255"`
	CountryISO2   string `json:"countryISO2" validate:"required,len=2"`
	CountryName   string `json:"countryName" validate:"required"`
	IsHeadquarter *bool  `json:"isHeadquarter" validate:"required"`
	SwiftCode     string `json:"swiftCode" validate:"required,min=8,max=11"`
	TimeZone      string `json:"timeZone,omitempty" validate:"max=50"`
}

type CreateResult struct {
	Message   string `json:"message"`
	SwiftCode string `json:"swiftCode"`
}

type DeleteResult struct {
	Message string `json:"message"`
}

// cachedDetail is the cache envelope that keeps the lookup shape.
type cachedDetail struct {
	Headquarter *HeadquarterDetail `json:"hq,omitempty"`
	Branch      *BranchDetail      `json:"branch,omitempty"`
}

// swiftService implements SwiftService
type swiftService struct {
	repo     repository.SwiftRepository
	logger   *zap.Logger
	cache    cache.Cache
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
	lookups  singleflight.Group
}

// Option configures optional collaborators of the service.
type Option func(*swiftService)

// WithCache enables the read-through response cache.
func WithCache(c cache.Cache) Option {
	return func(s *swiftService) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *swiftService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *swiftService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *swiftService) { s.newID = newID }
}

// NewSwiftService creates a new instance of the Swift service
func NewSwiftService(repo repository.SwiftRepository, logger *zap.Logger, opts ...Option) SwiftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &swiftService{
		repo:     repo,
		logger:   logger,
		validate: newValidator(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// GetSwiftCodeDetails retrieves detailed info for a SWIFT code. The record and
// its branch candidates are read in one snapshot. Concurrent misses for the
// same code share a single store round trip; the shared load runs on its own
// context so each caller's ctx only decides whether that caller keeps waiting.
func (s *swiftService) GetSwiftCodeDetails(ctx context.Context, code string) (SwiftCodeDetail, error) {
	code = bic.Normalize(code)
	prefix, err := bic.InstitutionPrefix(code)
	if err != nil {
		return nil, notFound("SWIFT code %s not found", code)
	}

	if detail := s.cachedDetail(ctx, prefix, code); detail != nil {
		return detail, nil
	}

	results := s.lookups.DoChan(code, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		return s.loadAndCache(loadCtx, prefix, code)
	})

	select {
	case <-ctx.Done():
		s.logger.Debug("lookup abandoned by caller", zap.String("swift_code", code), zap.Error(ctx.Err()))
		return nil, &Error{Kind: KindStoreFailure, Detail: "Internal server error", Err: ctx.Err()}
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(SwiftCodeDetail), nil
	}
}

// loadAndCache reads the cache version before the store so that a fill racing
// with a write is refused by the cache instead of outliving the invalidation.
func (s *swiftService) loadAndCache(ctx context.Context, prefix, code string) (SwiftCodeDetail, error) {
	version, cacheable := s.version(ctx, "prefix", prefix, s.prefixVersion)

	detail, err := s.loadDetail(ctx, prefix, code)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.storeDetail(ctx, prefix, code, version, detail)
	}
	return detail, nil
}

func (s *swiftService) loadDetail(ctx context.Context, prefix, code string) (SwiftCodeDetail, error) {
	var detail SwiftCodeDetail
	err := s.repo.WithinSnapshot(ctx, func(tx repository.SwiftRepository) error {
		bank, err := tx.GetByCode(ctx, code)
		if err != nil {
			return err
		}

		base := newCodeDetail(bank)
		if !bank.IsHeadquarter {
			detail = &BranchDetail{CodeDetail: base}
			return nil
		}

		candidates, err := tx.GetBranchCandidates(ctx, prefix)
		if err != nil {
			return err
		}
		detail = &HeadquarterDetail{
			CodeDetail: base,
			Branches:   branches.Project(branches.Resolve(*bank, candidates)),
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("swift code not found", zap.String("swift_code", code))
		return nil, notFound("SWIFT code %s not found", code)
	}
	if err != nil {
		return nil, s.storeFailure("get", err, zap.String("swift_code", code))
	}
	return detail, nil
}

// GetSwiftCodesByCountry retrieves all active SWIFT codes for a country
func (s *swiftService) GetSwiftCodesByCountry(ctx context.Context, countryISO2 string) (*CountrySwiftCodes, error) {
	countryISO2 = strings.ToUpper(strings.TrimSpace(countryISO2))

	if s.cache != nil {
		raw, err := s.cache.GetCountry(ctx, countryISO2)
		if result := s.decodeCountry(raw, err, countryISO2); result != nil {
			return result, nil
		}
	}

	version, cacheable := s.version(ctx, "country_iso2", countryISO2, s.countryVersion)

	banks, err := s.repo.GetByCountry(ctx, countryISO2)
	if err != nil {
		return nil, s.storeFailure("get_country", err, zap.String("country_iso2", countryISO2))
	}
	if len(banks) == 0 {
		return nil, notFound("No SWIFT codes found for country %s", countryISO2)
	}

	result := &CountrySwiftCodes{
		CountryISO2: countryISO2,
		CountryName: banks[0].CountryName,
		SwiftCodes:  branches.Project(banks),
	}

	if cacheable {
		if raw, err := json.Marshal(result); err == nil {
			s.cacheWritten(s.cache.SetCountry(ctx, countryISO2, version, raw), zap.String("country_iso2", countryISO2))
		}
	}
	return result, nil
}

// CreateSwiftCode validates and inserts a new active SWIFT code
func (s *swiftService) CreateSwiftCode(ctx context.Context, input CreateInput) (*CreateResult, error) {
	input.SwiftCode = bic.Normalize(input.SwiftCode)
	input.CountryISO2 = strings.ToUpper(strings.TrimSpace(input.CountryISO2))
	input.CountryName = strings.ToUpper(strings.TrimSpace(input.CountryName))

	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	prefix, err := bic.InstitutionPrefix(input.SwiftCode)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Detail: "swiftCode must be at least 8 characters", Err: err}
	}

	now := s.now().UTC()
	bank := &models.SwiftBank{
		ID:            s.newID(),
		SwiftCode:     input.SwiftCode,
		SwiftCodeBase: prefix,
		BankName:      input.BankName,
		Address:       input.Address,
		CountryISO2:   input.CountryISO2,
		CountryName:   input.CountryName,
		TimeZone:      input.TimeZone,
		IsHeadquarter: bic.Classify(input.SwiftCode, *input.IsHeadquarter),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.repo.WithinTx(ctx, func(tx repository.SwiftRepository) error {
		return tx.Create(ctx, bank)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, conflict("SWIFT code %s already exists", bank.SwiftCode)
	}
	if err != nil {
		return nil, s.storeFailure("create", err, zap.String("swift_code", bank.SwiftCode))
	}

	s.invalidate(ctx, prefix, bank.CountryISO2)
	s.logger.Info("swift code created",
		zap.String("swift_code", bank.SwiftCode),
		zap.Bool("is_headquarter", bank.IsHeadquarter))

	return &CreateResult{Message: msgCreated, SwiftCode: bank.SwiftCode}, nil
}

// DeleteSwiftCode soft deletes a SWIFT code. Deleting an inactive code succeeds.
func (s *swiftService) DeleteSwiftCode(ctx context.Context, code string) (*DeleteResult, error) {
	code = bic.Normalize(code)

	var bank *models.SwiftBank
	err := s.repo.WithinTx(ctx, func(tx repository.SwiftRepository) error {
		found, err := tx.GetAnyByCode(ctx, code)
		if err != nil {
			return err
		}
		bank = found
		return tx.Deactivate(ctx, code, s.now().UTC())
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("SWIFT code %s not found", code)
	}
	if err != nil {
		return nil, s.storeFailure("delete", err, zap.String("swift_code", code))
	}

	s.invalidate(ctx, bank.SwiftCodeBase, bank.CountryISO2)
	s.logger.Info("swift code deleted",
		zap.String("swift_code", code),
		zap.Bool("was_active", bank.IsActive))

	return &DeleteResult{Message: msgDeleted}, nil
}

// Helper methods

func (s *swiftService) storeFailure(operation string, err error, fields ...zap.Field) error {
	s.logger.Error("store operation failed",
		append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)...)
	s.metrics.ObserveStoreError(operation)
	return &Error{Kind: KindStoreFailure, Detail: "Internal server error", Err: err}
}

func (s *swiftService) cachedDetail(ctx context.Context, prefix, code string) SwiftCodeDetail {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.GetCode(ctx, prefix, code)
	switch {
	case errors.Is(err, cache.ErrMiss):
		s.metrics.ObserveCache("miss")
		return nil
	case err != nil:
		s.metrics.ObserveCache("error")
		s.logger.Warn("cache read failed", zap.String("swift_code", code), zap.Error(err))
		return nil
	}

	var envelope cachedDetail
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.metrics.ObserveCache("error")
		s.logger.Warn("cache entry unreadable", zap.String("swift_code", code), zap.Error(err))
		return nil
	}
	s.metrics.ObserveCache("hit")
	if envelope.Headquarter != nil {
		return envelope.Headquarter
	}
	if envelope.Branch != nil {
		return envelope.Branch
	}
	return nil
}

func (s *swiftService) prefixVersion(ctx context.Context, prefix string) (int64, error) {
	return s.cache.PrefixVersion(ctx, prefix)
}

func (s *swiftService) countryVersion(ctx context.Context, countryISO2 string) (int64, error) {
	return s.cache.CountryVersion(ctx, countryISO2)
}

// version reports whether a result loaded from now on may be cached, and
// under which version.
func (s *swiftService) version(ctx context.Context, field, key string, read func(context.Context, string) (int64, error)) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	v, err := read(ctx, key)
	if err != nil {
		s.logger.Warn("cache version read failed", zap.String(field, key), zap.Error(err))
		return 0, false
	}
	return v, true
}

func (s *swiftService) cacheWritten(err error, field zap.Field) {
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStale):
		s.logger.Debug("cache fill dropped after concurrent write", field)
	default:
		s.logger.Warn("cache write failed", field, zap.Error(err))
	}
}

func (s *swiftService) storeDetail(ctx context.Context, prefix, code string, version int64, detail SwiftCodeDetail) {
	var envelope cachedDetail
	switch d := detail.(type) {
	case *HeadquarterDetail:
		envelope.Headquarter = d
	case *BranchDetail:
		envelope.Branch = d
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	s.cacheWritten(s.cache.SetCode(ctx, prefix, code, version, raw), zap.String("swift_code", code))
}

func (s *swiftService) decodeCountry(raw []byte, err error, countryISO2 string) *CountrySwiftCodes {
	switch {
	case errors.Is(err, cache.ErrMiss):
		s.metrics.ObserveCache("miss")
		return nil
	case err != nil:
		s.metrics.ObserveCache("error")
		s.logger.Warn("cache read failed", zap.String("country_iso2", countryISO2), zap.Error(err))
		return nil
	}

	var result CountrySwiftCodes
	if err := json.Unmarshal(raw, &result); err != nil {
		s.metrics.ObserveCache("error")
		return nil
	}
	s.metrics.ObserveCache("hit")
	return &result
}

// invalidate runs after the write committed; a failure only leaves entries
// to expire on their TTL.
func (s *swiftService) invalidate(ctx context.Context, prefix, countryISO2 string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, prefix, countryISO2); err != nil {
		s.logger.Warn("cache invalidation failed",
			zap.String("prefix", prefix),
			zap.String("country_iso2", countryISO2),
			zap.Error(err))
	}
}

func newCodeDetail(bank *models.SwiftBank) CodeDetail {
	return CodeDetail{
		Address:       bank.Address,
		BankName:      bank.BankName,
		CountryISO2:   bank.CountryISO2,
		CountryName:   bank.CountryName,
		IsHeadquarter: bank.IsHeadquarter,
		SwiftCode:     bank.SwiftCode,
	}
}
