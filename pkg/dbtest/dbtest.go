package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/install-if-absent/pkg/db"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

// InitDB creates an initialized ledger in a temp dir, pre-populated with records.
func InitDB(t *testing.T, records []types.InstallRecord) db.DB {
	tmpDir := t.TempDir()
	dbc, err := db.New(tmpDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })

	err = dbc.Init()
	require.NoError(t, err)

	for _, rec := range records {
		err = dbc.InsertInstall(rec)
		require.NoError(t, err)
	}
	return dbc
}
