package timescale

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

var (
	ErrMissingFields          = stderrors.New("missing fields")
	ErrUnknownMeasurementType = stderrors.New("unknown measurement type")
	ErrInsertFailed           = stderrors.New("failed to insert record")
	ErrTooManyRowsInserted    = stderrors.New("inserted too many records")
)

// DefaultTable is used when neither config nor TABLE_NAME name a table.
const DefaultTable = "conditions"

// Execer runs a statement and reports the affected rows.
// *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ColumnFor returns the typed column that stores values of dt.
func ColumnFor(dt timeseries.DataType) (string, error) {
	switch dt {
	case timeseries.TypeBoolean:
		return "measurement_bool", nil
	case timeseries.TypeNumber:
		return "measurement_number", nil
	case timeseries.TypeString:
		return "measurement_string", nil
	case timeseries.TypeGeography:
		return "measurement_location", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMeasurementType, string(dt))
	}
}

// Writer inserts records into one table.
type Writer struct {
	db     Execer
	table  string
	logger *slog.Logger
}

// NewWriter returns a writer for table. A dotted name is treated as
// schema.table; each part is quoted.
func NewWriter(db Execer, table string, logger *slog.Logger) *Writer {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		db:     db,
		table:  pgx.Identifier(strings.Split(table, ".")).Sanitize(),
		logger: logger,
	}
}

// Table returns the quoted table name.
func (w *Writer) Table() string {
	return w.table
}

// Persist validates r, coerces its value and inserts exactly one row.
//
// Missing fields, unknown data types and uncoercible values are Invalid.
// A backend failure is Transient. An affected row count other than one is
// Fatal.
func (w *Writer) Persist(ctx context.Context, r timeseries.Record) error {
	if missing := r.Missing(); len(missing) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", ")),
			"Writer", "Persist", "validate fields")
	}

	column, err := ColumnFor(r.DataType)
	if err != nil {
		return errors.WrapInvalid(err, "Writer", "Persist", "resolve column")
	}

	value, err := timeseries.Coerce(r.DataType, r.Value)
	if err != nil {
		return errors.WrapInvalid(err, "Writer", "Persist", "coerce value")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (timestamp, measurement_publisher, measurement_subject, correlation_id, measurement_of, %s) VALUES ($1, $2, $3, $4, $5, $6)",
		w.table, column)

	tag, err := w.db.Exec(ctx, query,
		r.Timestamp, r.Publisher, r.Subject, r.CorrelationID, r.Of, columnValue(value))
	if err != nil {
		return errors.WrapTransient(err, "Writer", "Persist", "insert record")
	}

	switch n := tag.RowsAffected(); {
	case n < 1:
		return errors.WrapFatal(fmt.Errorf("%w: %s/%s/%s", ErrInsertFailed, r.Publisher, r.Subject, r.Of),
			"Writer", "Persist", "check rows affected")
	case n > 1:
		return errors.WrapFatal(fmt.Errorf("%w: %d rows for %s/%s/%s", ErrTooManyRowsInserted, n, r.Publisher, r.Subject, r.Of),
			"Writer", "Persist", "check rows affected")
	}

	w.logger.Debug("Persisted record",
		"publisher", r.Publisher, "subject", r.Subject, "of", r.Of, "correlation_id", r.CorrelationID)
	return nil
}

// columnValue maps a coerced value to the driver argument for its column.
// Points are sent as extended WKT, which PostgreSQL casts to geography.
func columnValue(v timeseries.Value) any {
	if n, ok := v.Number(); ok {
		return n
	}
	if s, ok := v.Text(); ok {
		return s
	}
	if b, ok := v.Flag(); ok {
		return b
	}
	if p, ok := v.Point(); ok {
		return p.WKT()
	}
	return nil
}
