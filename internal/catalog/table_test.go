package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableCrossesCanonicalNames(t *testing.T) {
	table := NewTable()
	assert.Equal(t, 55, table.Len())

	name, ok := table.Lookup("Tenant Role User", "Delete")
	require.True(t, ok)
	assert.Equal(t, "Tenant Role User Management - Delete", name)

	entries := table.Entries()
	assert.Equal(t, Entry{Resource: "Action", Action: "All"}, entries[0])
}

func TestLoadExtensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
permissions:
  - resource: Invoice
    action: Approve
  - resource: Invoice
    action: Read
`), 0o600))

	table := NewTable()
	n, err := table.LoadExtensions(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 57, table.Len())
	name, ok := table.Lookup("Invoice", "Approve")
	require.True(t, ok)
	assert.Equal(t, "Invoice Management - Approve", name)
}

func TestLoadExtensionsRejectsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("permissions:\n  - resource: Invoice\n"), 0o600))

	_, err := NewTable().LoadExtensions(path)
	assert.Error(t, err)

	_, err = NewTable().LoadExtensions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
