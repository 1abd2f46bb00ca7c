// Package testutil provides testing utilities and helpers for backend tests.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/fetch"
	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of fetch.Fetcher for testing.
type MockFetcher struct {
	mock.Mock
}

// Fetch mocks the Fetch method.
func (m *MockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

// NewMockFetcher creates a mock fetcher whose expectations are asserted when the test ends.
func NewMockFetcher(t *testing.T) *MockFetcher {
	t.Helper()
	m := new(MockFetcher)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// ExpectMissing registers a catch-all expectation answering fetch.ErrNotFound.
func (m *MockFetcher) ExpectMissing() *MockFetcher {
	m.On("Fetch", mock.Anything, mock.Anything).
		Return("", fetch.ErrNotFound).
		Maybe()
	return m
}

// MapFetcher serves module sources from memory and records every URL asked for.
type MapFetcher struct {
	Sources map[string]string
	// Failures maps URLs to the error returned for them
	Failures map[string]error

	mu    sync.Mutex
	calls []string
}

// NewMapFetcher creates a fetcher serving sources keyed by URL.
func NewMapFetcher(sources map[string]string) *MapFetcher {
	return &MapFetcher{Sources: sources, Failures: map[string]error{}}
}

// Fetch implements fetch.Fetcher.
func (f *MapFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.Failures[url]; ok {
		return "", err
	}
	body, ok := f.Sources[url]
	if !ok {
		return "", fmt.Errorf("%w: %s", fetch.ErrNotFound, url)
	}
	return body, nil
}

// Calls returns the URLs fetched so far, in order.
func (f *MapFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Fetched reports whether url was requested.
func (f *MapFetcher) Fetched(url string) bool {
	return slices.Contains(f.Calls(), url)
}

// Define returns an AMD module source declaring deps with the given factory expression.
func Define(factory string, deps ...string) string {
	quoted := make([]string, len(deps))
	for i, dep := range deps {
		quoted[i] = fmt.Sprintf("%q", dep)
	}
	return fmt.Sprintf("define([%s], %s);\n", strings.Join(quoted, ", "), factory)
}
