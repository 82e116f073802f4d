package mockstorage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertExists verifies that path is present in the wrapped store
func (m *Store) AssertExists(tb testing.TB, path string) {
	tb.Helper()

	ok, err := m.Store.Exists(context.Background(), path)
	require.NoError(tb, err)
	require.True(tb, ok, "expected %s to exist", path)
}

// AssertNotExists verifies that path is absent from the wrapped store
func (m *Store) AssertNotExists(tb testing.TB, path string) {
	tb.Helper()

	ok, err := m.Store.Exists(context.Background(), path)
	require.NoError(tb, err)
	require.False(tb, ok, "expected %s to be absent", path)
}

// AssertRemoved verifies that exactly paths were passed to Remove, in any order
func (m *Store) AssertRemoved(tb testing.TB, paths ...string) {
	tb.Helper()

	calls := m.Calls(OpRemove)
	got := make([]string, 0, len(calls))
	for _, c := range calls {
		got = append(got, c.Path)
	}
	require.ElementsMatch(tb, paths, got)
}
