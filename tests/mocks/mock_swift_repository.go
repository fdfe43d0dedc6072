package mocks

import (
	"context"
	"errors"
	"time"

	models "github.com/zdziszkee/swift-registry/internal/models"
	repository "github.com/zdziszkee/swift-registry/internal/repositories"
)

// MockSwiftRepository implements the SwiftRepository interface for testing.
// WithinTx and WithinSnapshot run the callback against the mock itself unless
// overridden.
type MockSwiftRepository struct {
	GetByCodeFunc           func(ctx context.Context, code string) (*models.SwiftBank, error)
	GetAnyByCodeFunc        func(ctx context.Context, code string) (*models.SwiftBank, error)
	GetBranchCandidatesFunc func(ctx context.Context, prefix string) ([]models.SwiftBank, error)
	GetByCountryFunc        func(ctx context.Context, countryISO2 string) ([]models.SwiftBank, error)
	ExistingCodesFunc       func(ctx context.Context, codes []string) (map[string]bool, error)
	CreateFunc              func(ctx context.Context, bank *models.SwiftBank) error
	CreateBatchFunc         func(ctx context.Context, banks []*models.SwiftBank) (int, error)
	DeactivateFunc          func(ctx context.Context, code string, at time.Time) error
	WithinTxFunc            func(ctx context.Context, fn func(repository.SwiftRepository) error) error
	WithinSnapshotFunc      func(ctx context.Context, fn func(repository.SwiftRepository) error) error

	TxCount       int
	SnapshotCount int
}

var errNotImplemented = errors.New("mock function not set")

func (m *MockSwiftRepository) GetByCode(ctx context.Context, code string) (*models.SwiftBank, error) {
	if m.GetByCodeFunc == nil {
		return nil, errNotImplemented
	}
	return m.GetByCodeFunc(ctx, code)
}

func (m *MockSwiftRepository) GetAnyByCode(ctx context.Context, code string) (*models.SwiftBank, error) {
	if m.GetAnyByCodeFunc == nil {
		return nil, errNotImplemented
	}
	return m.GetAnyByCodeFunc(ctx, code)
}

func (m *MockSwiftRepository) GetBranchCandidates(ctx context.Context, prefix string) ([]models.SwiftBank, error) {
	if m.GetBranchCandidatesFunc == nil {
		return nil, errNotImplemented
	}
	return m.GetBranchCandidatesFunc(ctx, prefix)
}

func (m *MockSwiftRepository) GetByCountry(ctx context.Context, countryISO2 string) ([]models.SwiftBank, error) {
	if m.GetByCountryFunc == nil {
		return nil, errNotImplemented
	}
	return m.GetByCountryFunc(ctx, countryISO2)
}

func (m *MockSwiftRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	if m.ExistingCodesFunc == nil {
		return map[string]bool{}, nil
	}
	return m.ExistingCodesFunc(ctx, codes)
}

func (m *MockSwiftRepository) Create(ctx context.Context, bank *models.SwiftBank) error {
	if m.CreateFunc == nil {
		return errNotImplemented
	}
	return m.CreateFunc(ctx, bank)
}

func (m *MockSwiftRepository) CreateBatch(ctx context.Context, banks []*models.SwiftBank) (int, error) {
	if m.CreateBatchFunc == nil {
		return 0, errNotImplemented
	}
	return m.CreateBatchFunc(ctx, banks)
}

func (m *MockSwiftRepository) Deactivate(ctx context.Context, code string, at time.Time) error {
	if m.DeactivateFunc == nil {
		return errNotImplemented
	}
	return m.DeactivateFunc(ctx, code, at)
}

func (m *MockSwiftRepository) WithinTx(ctx context.Context, fn func(repository.SwiftRepository) error) error {
	m.TxCount++
	if m.WithinTxFunc != nil {
		return m.WithinTxFunc(ctx, fn)
	}
	return fn(m)
}

func (m *MockSwiftRepository) WithinSnapshot(ctx context.Context, fn func(repository.SwiftRepository) error) error {
	m.SnapshotCount++
	if m.WithinSnapshotFunc != nil {
		return m.WithinSnapshotFunc(ctx, fn)
	}
	return fn(m)
}
