package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/app", driverURL("postgres://u:p@localhost:5432/app"))
	require.Equal(t, "pgx5://localhost/app", driverURL("postgresql://localhost/app"))
	require.Equal(t, "pgx5://already", driverURL("pgx5://already"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
