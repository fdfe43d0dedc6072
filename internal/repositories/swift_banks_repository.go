package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zdziszkee/swift-registry/internal/database"
	model "github.com/zdziszkee/swift-registry/internal/models"
)

var (
	ErrNotFound  = errors.New("swift code not found")
	ErrDuplicate = errors.New("swift code already exists")
)

// SwiftRepository defines the record store operations for SWIFT codes
type SwiftRepository interface {
	// GetByCode returns the active record with the given code.
	GetByCode(ctx context.Context, code string) (*model.SwiftBank, error)
	// GetAnyByCode returns the record with the given code, active or not.
	GetAnyByCode(ctx context.Context, code string) (*model.SwiftBank, error)
	// GetBranchCandidates returns active records sharing an institution prefix.
	GetBranchCandidates(ctx context.Context, prefix string) ([]model.SwiftBank, error)
	GetByCountry(ctx context.Context, countryISO2 string) ([]model.SwiftBank, error)
	// ExistingCodes reports which of codes are already stored in any state.
	ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error)
	Create(ctx context.Context, bank *model.SwiftBank) error
	CreateBatch(ctx context.Context, banks []*model.SwiftBank) (int, error)
	Deactivate(ctx context.Context, code string, at time.Time) error
	// WithinTx runs fn inside one write transaction.
	WithinTx(ctx context.Context, fn func(SwiftRepository) error) error
	// WithinSnapshot runs fn inside one read-only transaction so that all
	// its queries observe the same data.
	WithinSnapshot(ctx context.Context, fn func(SwiftRepository) error) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLSwiftRepository implements SwiftRepository via database/sql
type SQLSwiftRepository struct {
	db   *database.Database
	q    querier
	inTx bool
}

// NewSQLSwiftRepository creates a new repository instance
func NewSQLSwiftRepository(db *database.Database) SwiftRepository {
	return &SQLSwiftRepository{db: db, q: db.DB}
}

const (
	batchSize   = 100
	lookupChunk = 500
	columns     = "id, swift_code, swift_code_base, bank_name, address, country_iso2, country_name, time_zone, is_headquarter, is_active, created_at, updated_at"
	columnCount = 12
)

// WithinTx runs fn inside a write transaction. Calls nested in an open
// transaction, and stores without transactions, run fn directly.
func (r *SQLSwiftRepository) WithinTx(ctx context.Context, fn func(SwiftRepository) error) error {
	return r.runTx(ctx, nil, fn)
}

// WithinSnapshot runs fn inside a read-only transaction at the dialect's
// snapshot isolation level.
func (r *SQLSwiftRepository) WithinSnapshot(ctx context.Context, fn func(SwiftRepository) error) error {
	return r.runTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: r.db.Dialect.SnapshotIsolation}, fn)
}

func (r *SQLSwiftRepository) runTx(ctx context.Context, opts *sql.TxOptions, fn func(SwiftRepository) error) (err error) {
	if r.inTx || !r.db.Dialect.Transactions {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&SQLSwiftRepository{db: r.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// CreateBatch inserts banks with multi-row statements inside one transaction
// and returns the number of inserted rows. Any failure rolls back the batch.
func (r *SQLSwiftRepository) CreateBatch(ctx context.Context, banks []*model.SwiftBank) (int, error) {
	if len(banks) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.WithinTx(ctx, func(tx SwiftRepository) error {
		txRepo := tx.(*SQLSwiftRepository)
		for i := 0; i < len(banks); i += batchSize {
			endIdx := min(i+batchSize, len(banks))
			batch := banks[i:endIdx]

			placeholders := make([]string, 0, len(batch))
			args := make([]any, 0, len(batch)*columnCount)
			for _, bank := range batch {
				placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
				args = append(args, insertArgs(bank)...)
			}

			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", r.db.Table(), columns, strings.Join(placeholders, ","))
			if _, err := txRepo.q.ExecContext(ctx, r.db.Dialect.Rebind(query), args...); err != nil {
				if r.db.Dialect.IsUniqueViolation(err) {
					return fmt.Errorf("batch insert failed for rows %d-%d: %w", i+1, endIdx, ErrDuplicate)
				}
				return fmt.Errorf("batch insert failed for rows %d-%d: %w", i+1, endIdx, err)
			}
			inserted += len(batch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Create adds a single SWIFT bank. The existence check covers inactive rows;
// a concurrent insert that wins the race surfaces as a unique violation,
// which is reported as ErrDuplicate too.
func (r *SQLSwiftRepository) Create(ctx context.Context, bank *model.SwiftBank) error {
	if err := r.checkDuplicate(ctx, bank.SwiftCode); err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", r.db.Table(), columns)
	_, err := r.q.ExecContext(ctx, r.db.Dialect.Rebind(query), insertArgs(bank)...)
	if err != nil {
		if r.db.Dialect.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("store insert failed: %w", err)
	}
	return nil
}

// GetByCode retrieves the active SWIFT bank with the given code
func (r *SQLSwiftRepository) GetByCode(ctx context.Context, code string) (*model.SwiftBank, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE swift_code = ? AND is_active = ?", columns, r.db.Table())
	return r.getOne(ctx, query, code, true)
}

// GetAnyByCode retrieves the SWIFT bank with the given code regardless of state
func (r *SQLSwiftRepository) GetAnyByCode(ctx context.Context, code string) (*model.SwiftBank, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE swift_code = ?", columns, r.db.Table())
	return r.getOne(ctx, query, code)
}

// GetBranchCandidates retrieves active banks sharing an institution prefix
func (r *SQLSwiftRepository) GetBranchCandidates(ctx context.Context, prefix string) ([]model.SwiftBank, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE swift_code_base = ? AND is_active = ? ORDER BY swift_code", columns, r.db.Table())
	return r.getMany(ctx, query, prefix, true)
}

// GetByCountry retrieves all active SWIFT banks for a country ordered by code
func (r *SQLSwiftRepository) GetByCountry(ctx context.Context, countryISO2 string) ([]model.SwiftBank, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE country_iso2 = ? AND is_active = ? ORDER BY swift_code", columns, r.db.Table())
	return r.getMany(ctx, query, countryISO2, true)
}

// ExistingCodes looks codes up in chunks and returns the ones already stored
func (r *SQLSwiftRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for i := 0; i < len(codes); i += lookupChunk {
		chunk := codes[i:min(i+lookupChunk, len(codes))]

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		args := make([]any, len(chunk))
		for j, code := range chunk {
			args[j] = code
		}

		query := fmt.Sprintf("SELECT swift_code FROM %s WHERE swift_code IN (%s)", r.db.Table(), placeholders)
		rows, err := r.q.QueryContext(ctx, r.db.Dialect.Rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("store lookup failed: %w", err)
		}
		for rows.Next() {
			var code string
			if err := rows.Scan(&code); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store scan failed: %w", err)
			}
			existing[code] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("store lookup failed: %w", err)
		}
	}
	return existing, nil
}

// Deactivate soft deletes a SWIFT bank. The row is kept and keeps its code
// reserved.
func (r *SQLSwiftRepository) Deactivate(ctx context.Context, code string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = ?, updated_at = ? WHERE swift_code = ?", r.db.Table())
	if _, err := r.q.ExecContext(ctx, r.db.Dialect.Rebind(query), false, at, code); err != nil {
		return fmt.Errorf("store deactivate failed: %w", err)
	}
	return nil
}

// Helper methods

func (r *SQLSwiftRepository) getOne(ctx context.Context, query string, args ...any) (*model.SwiftBank, error) {
	row := r.q.QueryRowContext(ctx, r.db.Dialect.Rebind(query), args...)
	bank, err := scanBank(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store query failed: %w", err)
	}
	return bank, nil
}

func (r *SQLSwiftRepository) getMany(ctx context.Context, query string, args ...any) ([]model.SwiftBank, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store query failed: %w", err)
	}
	defer rows.Close()

	banks := make([]model.SwiftBank, 0)
	for rows.Next() {
		bank, err := scanBank(rows)
		if err != nil {
			return nil, fmt.Errorf("store scan failed: %w", err)
		}
		banks = append(banks, *bank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store query failed: %w", err)
	}
	return banks, nil
}

func (r *SQLSwiftRepository) checkDuplicate(ctx context.Context, code string) error {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE swift_code = ? LIMIT 1", r.db.Table())
	var exists int
	err := r.q.QueryRowContext(ctx, r.db.Dialect.Rebind(query), code).Scan(&exists)
	if err == nil {
		return ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store check duplicate failed: %w", err)
	}
	return nil
}

func insertArgs(bank *model.SwiftBank) []any {
	var timeZone sql.NullString
	if bank.TimeZone != "" {
		timeZone = sql.NullString{String: bank.TimeZone, Valid: true}
	}
	return []any{
		bank.ID,
		bank.SwiftCode,
		bank.SwiftCodeBase,
		bank.BankName,
		bank.Address,
		bank.CountryISO2,
		bank.CountryName,
		timeZone,
		bank.IsHeadquarter,
		bank.IsActive,
		bank.CreatedAt,
		bank.UpdatedAt,
	}
}

func scanBank(scanner interface {
	Scan(dest ...any) error
}) (*model.SwiftBank, error) {
	var (
		bank     model.SwiftBank
		timeZone sql.NullString
	)

	err := scanner.Scan(
		&bank.ID,
		&bank.SwiftCode,
		&bank.SwiftCodeBase,
		&bank.BankName,
		&bank.Address,
		&bank.CountryISO2,
		&bank.CountryName,
		&timeZone,
		&bank.IsHeadquarter,
		&bank.IsActive,
		&bank.CreatedAt,
		&bank.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	bank.TimeZone = timeZone.String

	return &bank, nil
}
