package timescale

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

var postgresEnv = []string{
	"POSTGRES_DB",
	"POSTGRES_USER",
	"POSTGRES_PASSWORD",
	"POSTGRES_HOST",
	"POSTGRES_PORT",
}

// ConnectionStringFromEnv returns TIMESCALE_CONNECTION_STRING, or a
// keyword/value DSN assembled from the POSTGRES_* variables. Every missing
// variable is named in the error.
func ConnectionStringFromEnv() (string, error) {
	if dsn := os.Getenv("TIMESCALE_CONNECTION_STRING"); dsn != "" {
		return dsn, nil
	}

	var missing []string
	for _, name := range postgresEnv {
		if _, ok := os.LookupEnv(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: environment variables %s", errors.ErrMissingConfig, strings.Join(missing, ", "))
	}

	return fmt.Sprintf("dbname=%s user=%s password=%s host=%s port=%s",
		os.Getenv("POSTGRES_DB"),
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("POSTGRES_HOST"),
		os.Getenv("POSTGRES_PORT"),
	), nil
}

// TableFromEnv returns TABLE_NAME or DefaultTable.
func TableFromEnv() string {
	if t := os.Getenv("TABLE_NAME"); t != "" {
		return t
	}
	return DefaultTable
}

// Connect opens and pings a pgx pool. maxConns <= 0 keeps the pgx default.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "timescale", "Connect", "parse dsn")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "timescale", "Connect", "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapTransient(err, "timescale", "Connect", "ping")
	}
	return pool, nil
}
