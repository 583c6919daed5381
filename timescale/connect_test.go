package timescale

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

func TestConnectionStringFromEnv(t *testing.T) {
	t.Run("explicit connection string wins", func(t *testing.T) {
		t.Setenv("TIMESCALE_CONNECTION_STRING", "postgres://u:p@db:5432/tsdb")
		t.Setenv("POSTGRES_DB", "ignored")

		dsn, err := ConnectionStringFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@db:5432/tsdb", dsn)
	})

	t.Run("assembled from parts", func(t *testing.T) {
		t.Setenv("TIMESCALE_CONNECTION_STRING", "")
		t.Setenv("POSTGRES_DB", "tsdb")
		t.Setenv("POSTGRES_USER", "writer")
		t.Setenv("POSTGRES_PASSWORD", "secret")
		t.Setenv("POSTGRES_HOST", "db")
		t.Setenv("POSTGRES_PORT", "5432")

		dsn, err := ConnectionStringFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "dbname=tsdb user=writer password=secret host=db port=5432", dsn)
	})
}

func TestTableFromEnv(t *testing.T) {
	t.Setenv("TABLE_NAME", "")
	assert.Equal(t, DefaultTable, TableFromEnv())

	t.Setenv("TABLE_NAME", "readings")
	assert.Equal(t, "readings", TableFromEnv())
}

func TestConnectionStringFromEnv_Missing(t *testing.T) {
	t.Setenv("TIMESCALE_CONNECTION_STRING", "")
	for _, name := range postgresEnv {
		t.Setenv(name, "x")
	}
	// t.Setenv cannot unset; drop two variables for the rest of the test.
	unsetForTest(t, "POSTGRES_HOST")
	unsetForTest(t, "POSTGRES_PORT")

	_, err := ConnectionStringFromEnv()
	require.ErrorIs(t, err, errors.ErrMissingConfig)
	assert.Contains(t, err.Error(), "POSTGRES_HOST, POSTGRES_PORT")
}

func unsetForTest(t *testing.T, name string) {
	t.Helper()
	old, had := os.LookupEnv(name)
	os.Unsetenv(name)
	t.Cleanup(func() {
		if had {
			os.Setenv(name, old)
		}
	})
}
