package mocks

import (
	"context"

	service "github.com/zdziszkee/swift-registry/internal/services"
)

// MockSwiftService implements service.SwiftService.
type MockSwiftService struct {
	GetSwiftCodeDetailsFunc    func(ctx context.Context, code string) (service.SwiftCodeDetail, error)
	GetSwiftCodesByCountryFunc func(ctx context.Context, countryISO2 string) (*service.CountrySwiftCodes, error)
	CreateSwiftCodeFunc        func(ctx context.Context, input service.CreateInput) (*service.CreateResult, error)
	DeleteSwiftCodeFunc        func(ctx context.Context, code string) (*service.DeleteResult, error)
}

func (m *MockSwiftService) GetSwiftCodeDetails(ctx context.Context, code string) (service.SwiftCodeDetail, error) {
	return m.GetSwiftCodeDetailsFunc(ctx, code)
}

func (m *MockSwiftService) GetSwiftCodesByCountry(ctx context.Context, countryISO2 string) (*service.CountrySwiftCodes, error) {
	return m.GetSwiftCodesByCountryFunc(ctx, countryISO2)
}

func (m *MockSwiftService) CreateSwiftCode(ctx context.Context, input service.CreateInput) (*service.CreateResult, error) {
	return m.CreateSwiftCodeFunc(ctx, input)
}

func (m *MockSwiftService) DeleteSwiftCode(ctx context.Context, code string) (*service.DeleteResult, error) {
	return m.DeleteSwiftCodeFunc(ctx, code)
}
