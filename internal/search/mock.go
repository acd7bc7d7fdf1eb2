package search

import (
	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of Provider for testing.
type MockProvider struct {
	mock.Mock
}

// Match provides a mock function with given fields: value, query.
func (_m *MockProvider) Match(value any, query string) bool {
	ret := _m.Called(value, query)

	var r0 bool
	if rf, ok := ret.Get(0).(func(any, string) bool); ok {
		r0 = rf(value, query)
	} else {
		r0 = ret.Get(0).(bool)
	}

	return r0
}

// Name provides a mock function with given fields: .
func (_m *MockProvider) Name() string {
	ret := _m.Called()

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}
