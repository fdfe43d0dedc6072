//go:build integration

package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/zdziszkee/swift-registry/internal/database"
	repository "github.com/zdziszkee/swift-registry/internal/repositories"
	service "github.com/zdziszkee/swift-registry/internal/services"
)

type PostgresServiceSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *database.Database
	svc       service.SwiftService
}

func TestPostgresServiceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresServiceSuite))
}

func (s *PostgresServiceSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("swift"),
		tcpostgres.WithUsername("swift"),
		tcpostgres.WithPassword("swift"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := database.New(ctx, database.Config{
		Type:            database.Postgres,
		DSN:             dsn,
		AutoMigrate:     true,
		MaxOpenConns:    20,
		ConnectAttempts: 5,
	}, zap.NewNop())
	s.Require().NoError(err)
	s.db = db
	s.svc = service.NewSwiftService(repository.NewSQLSwiftRepository(db), zap.NewNop())
}

func (s *PostgresServiceSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresServiceSuite) SetupTest() {
	_, err := s.db.ExecContext(context.Background(), "TRUNCATE "+s.db.Table())
	s.Require().NoError(err)
}

func (s *PostgresServiceSuite) create(code string, hq bool, country string) {
	_, err := s.svc.CreateSwiftCode(context.Background(), service.CreateInput{
		Address:       "1 Test Street, Test Town",
		BankName:      "TEST BANK",
		CountryISO2:   country,
		CountryName:   "TESTLAND",
		IsHeadquarter: &hq,
		SwiftCode:     code,
	})
	s.Require().NoError(err)
}

func (s *PostgresServiceSuite) TestCreateThenGetRoundTrip() {
	ctx := context.Background()
	s.create("bofaus3nxxx", true, "us")

	detail, err := s.svc.GetSwiftCodeDetails(ctx, "BofAUS3NXXX")
	s.Require().NoError(err)

	hq, ok := detail.(*service.HeadquarterDetail)
	s.Require().True(ok)
	s.Equal("BOFAUS3NXXX", hq.SwiftCode)
	s.Equal("US", hq.CountryISO2)
	s.Equal("TESTLAND", hq.CountryName)
	s.NotNil(hq.Branches)
	s.Empty(hq.Branches)
}

func (s *PostgresServiceSuite) TestHeadquartersListsOnlyItsBranches() {
	ctx := context.Background()
	s.create("BOFAUS3NXXX", true, "US")
	s.create("BOFAUS3NBOS", false, "US")
	s.create("BOFAUS3NNYC", false, "US")
	s.create("BOFAUS3MXXX", true, "US")

	detail, err := s.svc.GetSwiftCodeDetails(ctx, "BOFAUS3NXXX")
	s.Require().NoError(err)
	hq := detail.(*service.HeadquarterDetail)
	s.Require().Len(hq.Branches, 2)
	s.Equal("BOFAUS3NBOS", hq.Branches[0].SwiftCode)
	s.Equal("BOFAUS3NNYC", hq.Branches[1].SwiftCode)

	branch, err := s.svc.GetSwiftCodeDetails(ctx, "BOFAUS3NBOS")
	s.Require().NoError(err)
	s.IsType(&service.BranchDetail{}, branch)
}

func (s *PostgresServiceSuite) TestCountryListingIsSortedAndActiveOnly() {
	ctx := context.Background()
	s.create("BOFAUS3NXXX", true, "US")
	s.create("AAAAUS33XXX", true, "US")
	s.create("BOFAUS3NBOS", false, "US")
	s.create("DEUTDEFFXXX", true, "DE")

	_, err := s.svc.DeleteSwiftCode(ctx, "BOFAUS3NBOS")
	s.Require().NoError(err)

	listing, err := s.svc.GetSwiftCodesByCountry(ctx, "us")
	s.Require().NoError(err)
	s.Require().Len(listing.SwiftCodes, 2)
	s.Equal("AAAAUS33XXX", listing.SwiftCodes[0].SwiftCode)
	s.Equal("BOFAUS3NXXX", listing.SwiftCodes[1].SwiftCode)
}

func (s *PostgresServiceSuite) TestDeletedCodeStaysReserved() {
	ctx := context.Background()
	s.create("BOFAUS3NXXX", true, "US")

	_, err := s.svc.DeleteSwiftCode(ctx, "BOFAUS3NXXX")
	s.Require().NoError(err)

	_, err = s.svc.GetSwiftCodeDetails(ctx, "BOFAUS3NXXX")
	s.ErrorIs(err, service.ErrNotFound)

	_, err = s.svc.DeleteSwiftCode(ctx, "BOFAUS3NXXX")
	s.NoError(err)

	hq := true
	_, err = s.svc.CreateSwiftCode(ctx, service.CreateInput{
		Address: "1 Test Street", BankName: "TEST BANK", CountryISO2: "US",
		CountryName: "TESTLAND", IsHeadquarter: &hq, SwiftCode: "BOFAUS3NXXX",
	})
	s.ErrorIs(err, service.ErrConflict)
}

func (s *PostgresServiceSuite) TestConcurrentCreatesYieldOneWinner() {
	ctx := context.Background()
	const workers = 10

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hq := true
			_, errs[i] = s.svc.CreateSwiftCode(ctx, service.CreateInput{
				Address: "1 Race Street", BankName: "RACE BANK", CountryISO2: "US",
				CountryName: "TESTLAND", IsHeadquarter: &hq, SwiftCode: "RACEUS33XXX",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, service.ErrConflict)
	}
	s.Equal(1, succeeded)
}
