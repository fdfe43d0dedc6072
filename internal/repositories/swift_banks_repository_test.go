package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zdziszkee/swift-registry/internal/database"
	"github.com/zdziszkee/swift-registry/internal/models"
	repo "github.com/zdziszkee/swift-registry/internal/repositories"
)

func TestRepositories(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Repositories Suite")
}

const columns = "id, swift_code, swift_code_base, bank_name, address, country_iso2, country_name, time_zone, is_headquarter, is_active, created_at, updated_at"

var columnNames = []string{"id", "swift_code", "swift_code_base", "bank_name", "address", "country_iso2", "country_name", "time_zone", "is_headquarter", "is_active", "created_at", "updated_at"}

func q(query string) string {
	return regexp.QuoteMeta(query)
}

func newRepository(dialectName string) (repo.SwiftRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	Expect(err).NotTo(HaveOccurred())

	dialect, err := database.DialectFor(dialectName)
	Expect(err).NotTo(HaveOccurred())

	db := &database.Database{DB: mockDB, Dialect: dialect, Config: database.Config{TableName: "swift_codes"}}
	return repo.NewSQLSwiftRepository(db), mock, mockDB
}

var _ = Describe("SQLSwiftRepository", func() {
	var (
		mockDB     *sql.DB
		mock       sqlmock.Sqlmock
		repository repo.SwiftRepository
		ctx        context.Context
		now        = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		sampleBank *models.SwiftBank
		branchBank *models.SwiftBank
	)

	bankArgs := func(b *models.SwiftBank) []driver.Value {
		var tz any
		if b.TimeZone != "" {
			tz = b.TimeZone
		}
		return []driver.Value{b.ID, b.SwiftCode, b.SwiftCodeBase, b.BankName, b.Address, b.CountryISO2, b.CountryName, tz, b.IsHeadquarter, b.IsActive, b.CreatedAt, b.UpdatedAt}
	}

	bankRow := func(rows *sqlmock.Rows, b *models.SwiftBank) *sqlmock.Rows {
		var tz any
		if b.TimeZone != "" {
			tz = b.TimeZone
		}
		return rows.AddRow(b.ID, b.SwiftCode, b.SwiftCodeBase, b.BankName, b.Address, b.CountryISO2, b.CountryName, tz, b.IsHeadquarter, b.IsActive, b.CreatedAt, b.UpdatedAt)
	}

	BeforeEach(func() {
		repository, mock, mockDB = newRepository("sqlite")
		ctx = context.Background()

		sampleBank = &models.SwiftBank{
			ID:            "0b7c2a4e-1111-4c7a-9d61-2f1b0d6e9a01",
			SwiftCode:     "BOFAUS3NXXX",
			SwiftCodeBase: "BOFAUS3N",
			BankName:      "BANK OF AMERICA",
			Address:       "100 N Tryon St, Charlotte",
			CountryISO2:   "US",
			CountryName:   "UNITED STATES",
			TimeZone:      "America/New_York",
			IsHeadquarter: true,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		branchBank = &models.SwiftBank{
			ID:            "0b7c2a4e-2222-4c7a-9d61-2f1b0d6e9a02",
			SwiftCode:     "BOFAUS3NBOS",
			SwiftCodeBase: "BOFAUS3N",
			BankName:      "BANK OF AMERICA",
			Address:       "100 Federal St, Boston",
			CountryISO2:   "US",
			CountryName:   "UNITED STATES",
			IsHeadquarter: false,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mockDB.Close()
	})

	Describe("Create", func() {
		insertQuery := q("INSERT INTO swift_codes (" + columns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		duplicateQuery := q("SELECT 1 FROM swift_codes WHERE swift_code = ? LIMIT 1")

		It("should succeed for valid data", func() {
			mock.ExpectQuery(duplicateQuery).WithArgs("BOFAUS3NXXX").WillReturnError(sql.ErrNoRows)
			mock.ExpectExec(insertQuery).WithArgs(bankArgs(sampleBank)...).WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(repository.Create(ctx, sampleBank)).To(Succeed())
		})

		It("should report existing codes as duplicates", func() {
			mock.ExpectQuery(duplicateQuery).WithArgs("BOFAUS3NXXX").
				WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

			Expect(repository.Create(ctx, sampleBank)).To(MatchError(repo.ErrDuplicate))
		})

		It("should translate a lost insert race into a duplicate", func() {
			pgRepo, pgMock, pgDB := newRepository("postgres")
			defer pgDB.Close()

			pgMock.ExpectQuery(q("SELECT 1 FROM swift_codes WHERE swift_code = $1 LIMIT 1")).
				WithArgs("BOFAUS3NXXX").WillReturnError(sql.ErrNoRows)
			pgMock.ExpectExec(q("INSERT INTO swift_codes (" + columns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)")).
				WithArgs(bankArgs(sampleBank)...).
				WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

			Expect(pgRepo.Create(ctx, sampleBank)).To(MatchError(repo.ErrDuplicate))
			Expect(pgMock.ExpectationsWereMet()).To(Succeed())
		})

		It("should handle database errors during existence check", func() {
			mock.ExpectQuery(duplicateQuery).WithArgs("BOFAUS3NXXX").
				WillReturnError(errors.New("database connection error"))

			err := repository.Create(ctx, sampleBank)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("store check duplicate failed"))
		})

		It("should handle database errors during insertion", func() {
			mock.ExpectQuery(duplicateQuery).WithArgs("BOFAUS3NXXX").WillReturnError(sql.ErrNoRows)
			mock.ExpectExec(insertQuery).WithArgs(bankArgs(sampleBank)...).WillReturnError(errors.New("insert error"))

			err := repository.Create(ctx, sampleBank)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("store insert failed"))
		})
	})

	Describe("CreateBatch", func() {
		It("should insert all rows in one transaction", func() {
			mock.ExpectBegin()
			mock.ExpectExec(q("INSERT INTO swift_codes (" + columns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")).
				WithArgs(append(bankArgs(sampleBank), bankArgs(branchBank)...)...).
				WillReturnResult(sqlmock.NewResult(2, 2))
			mock.ExpectCommit()

			n, err := repository.CreateBatch(ctx, []*models.SwiftBank{sampleBank, branchBank})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("should handle empty batch", func() {
			n, err := repository.CreateBatch(ctx, []*models.SwiftBank{})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("should roll back on errors", func() {
			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO .*`).WillReturnError(errors.New("batch insert error"))
			mock.ExpectRollback()

			n, err := repository.CreateBatch(ctx, []*models.SwiftBank{sampleBank, branchBank})
			Expect(err).To(MatchError(ContainSubstring("batch insert failed")))
			Expect(n).To(BeZero())
		})

		It("should split large batches and roll back all of them when a later one fails", func() {
			large := make([]*models.SwiftBank, 150)
			for i := range large {
				code := fmt.Sprintf("BANKUS%02dX%02d", i%100, i%100)
				large[i] = &models.SwiftBank{
					ID:            fmt.Sprintf("id-%d", i),
					SwiftCode:     code,
					SwiftCodeBase: code[:8],
					BankName:      "Bank",
					Address:       "Address 1",
					CountryISO2:   "US",
					CountryName:   "UNITED STATES",
					IsActive:      true,
				}
			}

			firstBatchArgs := make([]driver.Value, 12*100)
			for i := range firstBatchArgs {
				firstBatchArgs[i] = sqlmock.AnyArg()
			}
			secondBatchArgs := make([]driver.Value, 12*50)
			for i := range secondBatchArgs {
				secondBatchArgs[i] = sqlmock.AnyArg()
			}

			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO .*`).WithArgs(firstBatchArgs...).WillReturnResult(sqlmock.NewResult(100, 100))
			mock.ExpectExec(`INSERT INTO .*`).WithArgs(secondBatchArgs...).WillReturnError(errors.New("disk full"))
			mock.ExpectRollback()

			_, err := repository.CreateBatch(ctx, large)
			Expect(err).To(MatchError(ContainSubstring("rows 101-150")))
		})
	})

	Describe("GetByCode", func() {
		query := q("SELECT " + columns + " FROM swift_codes WHERE swift_code = ? AND is_active = ?")

		It("should return the active bank", func() {
			mock.ExpectQuery(query).WithArgs("BOFAUS3NXXX", true).
				WillReturnRows(bankRow(sqlmock.NewRows(columnNames), sampleBank))

			bank, err := repository.GetByCode(ctx, "BOFAUS3NXXX")
			Expect(err).NotTo(HaveOccurred())
			Expect(bank).To(Equal(sampleBank))
		})

		It("should map no rows to ErrNotFound", func() {
			mock.ExpectQuery(query).WithArgs("NOTREAL", true).WillReturnRows(sqlmock.NewRows(columnNames))

			_, err := repository.GetByCode(ctx, "NOTREAL")
			Expect(err).To(MatchError(repo.ErrNotFound))
		})

		It("should wrap store errors", func() {
			mock.ExpectQuery(query).WithArgs("BOFAUS3NXXX", true).WillReturnError(errors.New("connection reset"))

			_, err := repository.GetByCode(ctx, "BOFAUS3NXXX")
			Expect(err).To(MatchError(ContainSubstring("store query failed")))
			Expect(err).NotTo(MatchError(repo.ErrNotFound))
		})
	})

	Describe("GetAnyByCode", func() {
		It("should find inactive banks", func() {
			sampleBank.IsActive = false
			mock.ExpectQuery(q("SELECT "+columns+" FROM swift_codes WHERE swift_code = ?")).WithArgs("BOFAUS3NXXX").
				WillReturnRows(bankRow(sqlmock.NewRows(columnNames), sampleBank))

			bank, err := repository.GetAnyByCode(ctx, "BOFAUS3NXXX")
			Expect(err).NotTo(HaveOccurred())
			Expect(bank.IsActive).To(BeFalse())
		})
	})

	Describe("GetBranchCandidates", func() {
		It("should query active rows by institution prefix", func() {
			rows := sqlmock.NewRows(columnNames)
			bankRow(rows, branchBank)
			bankRow(rows, sampleBank)
			mock.ExpectQuery(q("SELECT "+columns+" FROM swift_codes WHERE swift_code_base = ? AND is_active = ? ORDER BY swift_code")).
				WithArgs("BOFAUS3N", true).WillReturnRows(rows)

			banks, err := repository.GetBranchCandidates(ctx, "BOFAUS3N")
			Expect(err).NotTo(HaveOccurred())
			Expect(banks).To(HaveLen(2))
			Expect(banks[0].SwiftCode).To(Equal("BOFAUS3NBOS"))
			Expect(banks[0].TimeZone).To(BeEmpty())
		})
	})

	Describe("GetByCountry", func() {
		query := q("SELECT " + columns + " FROM swift_codes WHERE country_iso2 = ? AND is_active = ? ORDER BY swift_code")

		It("should return the country's active banks", func() {
			rows := sqlmock.NewRows(columnNames)
			bankRow(rows, branchBank)
			bankRow(rows, sampleBank)
			mock.ExpectQuery(query).WithArgs("US", true).WillReturnRows(rows)

			banks, err := repository.GetByCountry(ctx, "US")
			Expect(err).NotTo(HaveOccurred())
			Expect(banks).To(HaveLen(2))
		})

		It("should return an empty list when nothing matches", func() {
			mock.ExpectQuery(query).WithArgs("ZZ", true).WillReturnRows(sqlmock.NewRows(columnNames))

			banks, err := repository.GetByCountry(ctx, "ZZ")
			Expect(err).NotTo(HaveOccurred())
			Expect(banks).To(BeEmpty())
		})

		It("should surface row iteration errors", func() {
			rows := sqlmock.NewRows(columnNames)
			bankRow(rows, sampleBank).RowError(0, errors.New("broken row"))
			mock.ExpectQuery(query).WithArgs("US", true).WillReturnRows(rows)

			_, err := repository.GetByCountry(ctx, "US")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ExistingCodes", func() {
		It("should return the stored subset", func() {
			mock.ExpectQuery(q("SELECT swift_code FROM swift_codes WHERE swift_code IN (?, ?)")).
				WithArgs("BOFAUS3NXXX", "BOFAUS3NBOS").
				WillReturnRows(sqlmock.NewRows([]string{"swift_code"}).AddRow("BOFAUS3NXXX"))

			existing, err := repository.ExistingCodes(ctx, []string{"BOFAUS3NXXX", "BOFAUS3NBOS"})
			Expect(err).NotTo(HaveOccurred())
			Expect(existing).To(Equal(map[string]bool{"BOFAUS3NXXX": true}))
		})
	})

	Describe("Deactivate", func() {
		It("should flip is_active and touch updated_at", func() {
			mock.ExpectExec(q("UPDATE swift_codes SET is_active = ?, updated_at = ? WHERE swift_code = ?")).
				WithArgs(false, now, "BOFAUS3NXXX").
				WillReturnResult(sqlmock.NewResult(0, 1))

			Expect(repository.Deactivate(ctx, "BOFAUS3NXXX", now)).To(Succeed())
		})
	})

	Describe("WithinSnapshot", func() {
		It("should run all reads in one transaction", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(q("SELECT "+columns+" FROM swift_codes WHERE swift_code = ? AND is_active = ?")).
				WithArgs("BOFAUS3NXXX", true).
				WillReturnRows(bankRow(sqlmock.NewRows(columnNames), sampleBank))
			mock.ExpectQuery(q("SELECT "+columns+" FROM swift_codes WHERE swift_code_base = ? AND is_active = ? ORDER BY swift_code")).
				WithArgs("BOFAUS3N", true).
				WillReturnRows(bankRow(sqlmock.NewRows(columnNames), branchBank))
			mock.ExpectCommit()

			err := repository.WithinSnapshot(ctx, func(tx repo.SwiftRepository) error {
				if _, err := tx.GetByCode(ctx, "BOFAUS3NXXX"); err != nil {
					return err
				}
				_, err := tx.GetBranchCandidates(ctx, "BOFAUS3N")
				return err
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should roll back when the callback fails", func() {
			mock.ExpectBegin()
			mock.ExpectRollback()

			err := repository.WithinSnapshot(ctx, func(tx repo.SwiftRepository) error {
				return repo.ErrNotFound
			})
			Expect(err).To(MatchError(repo.ErrNotFound))
		})
	})

	Describe("WithinTx", func() {
		It("should not open a nested transaction", func() {
			mock.ExpectBegin()
			mock.ExpectExec(q("UPDATE swift_codes SET is_active = ?, updated_at = ? WHERE swift_code = ?")).
				WithArgs(false, now, "BOFAUS3NXXX").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			err := repository.WithinTx(ctx, func(tx repo.SwiftRepository) error {
				return tx.WithinTx(ctx, func(inner repo.SwiftRepository) error {
					return inner.Deactivate(ctx, "BOFAUS3NXXX", now)
				})
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should run without a transaction on trino", func() {
			trinoRepo, trinoMock, trinoDB := newRepository("trino")
			defer trinoDB.Close()

			trinoMock.ExpectExec(q("UPDATE swift_codes SET is_active = ?, updated_at = ? WHERE swift_code = ?")).
				WithArgs(false, now, "BOFAUS3NXXX").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := trinoRepo.WithinTx(ctx, func(tx repo.SwiftRepository) error {
				return tx.Deactivate(ctx, "BOFAUS3NXXX", now)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(trinoMock.ExpectationsWereMet()).To(Succeed())
		})
	})
})
