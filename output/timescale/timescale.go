// Package timescale provides the output component that persists record
// batches into a TimescaleDB hypertable.
package timescale

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/config"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/retry"
	tsdb "github.com/mnbf9rca/eventhub-to-timescale/timescale"
)

const componentName = "timescale"

// Config holds configuration for the timescale output
type Config struct {
	InputSubject     string          `json:"input_subject" schema:"type:string,description:Subject carrying record batches,default:telemetry.records,category:basic"`
	ConnectionString string          `json:"connection_string" schema:"type:string,description:PostgreSQL DSN (falls back to TIMESCALE_CONNECTION_STRING and POSTGRES_*),category:basic,hidden"`
	Table            string          `json:"table" schema:"type:string,description:Target table (falls back to TABLE_NAME),category:basic"`
	MaxConns         int             `json:"max_conns" schema:"type:int,description:Connection pool size,default:4,min:1,max:64,category:advanced"`
	ValidateSchema   bool            `json:"validate_schema" schema:"type:bool,description:Check each record against the record JSON schema,default:true,category:advanced"`
	InsertTimeout    config.Duration `json:"insert_timeout" schema:"type:string,description:Deadline for one insert,default:10s,category:advanced"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		InputSubject:   "telemetry.records",
		MaxConns:       4,
		ValidateSchema: true,
		InsertTimeout:  config.Duration(10 * time.Second),
	}
}

var timescaleSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// closer is the part of *pgxpool.Pool the output owns.
type closer interface {
	Close()
}

// Output writes every record it receives as exactly one row
type Output struct {
	config  Config
	bus     component.Bus
	logger  *slog.Logger
	metrics *metric.Metrics

	validator *tsdb.SchemaValidator
	db        tsdb.Execer
	pool      closer
	writer    *tsdb.Writer

	sub         natsclient.Subscription
	stats       component.Stats
	inflight    component.Inflight
	lifecycleMu sync.Mutex
	batchMu     sync.Mutex
}

// NewOutput creates a timescale output from configuration
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "TimescaleOutput", "NewOutput", "config unmarshal")
		}
	}
	if cfg.InputSubject == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: input_subject", errors.ErrMissingConfig), "TimescaleOutput", "NewOutput", "validate config")
	}
	if cfg.MaxConns < 1 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: max_conns must be positive", errors.ErrInvalidConfig), "TimescaleOutput", "NewOutput", "validate config")
	}

	o := &Output{
		config:  cfg,
		bus:     deps.Bus(),
		logger:  deps.GetLoggerWithComponent(componentName),
		metrics: deps.CoreMetrics(),
	}
	if cfg.ValidateSchema {
		v, err := tsdb.NewSchemaValidator()
		if err != nil {
			return nil, errors.WrapFatal(err, "TimescaleOutput", "NewOutput", "compile record schema")
		}
		o.validator = v
	}
	return o, nil
}

// Initialize is a no-op; the pool is opened in Start
func (o *Output) Initialize() error { return nil }

func (o *Output) table() string {
	if o.config.Table != "" {
		return o.config.Table
	}
	return tsdb.TableFromEnv()
}

func (o *Output) connect(ctx context.Context) error {
	dsn := o.config.ConnectionString
	if dsn == "" {
		var err error
		if dsn, err = tsdb.ConnectionStringFromEnv(); err != nil {
			return errors.WrapFatal(err, "TimescaleOutput", "Start", "resolve connection string")
		}
	}

	cfg := retry.Quick()
	cfg.Retryable = errors.IsTransient
	pool, err := retry.DoWithResult(ctx, cfg, func() (*pgxpool.Pool, error) {
		return tsdb.Connect(ctx, dsn, int32(o.config.MaxConns))
	})
	if err != nil {
		return errors.Wrap(err, "TimescaleOutput", "Start", "connect")
	}
	o.pool = pool
	o.db = pool
	return nil
}

// Start connects to the database and subscribes to record batches
func (o *Output) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if o.stats.Running() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "TimescaleOutput", "Start", "check running state")
	}
	if o.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "TimescaleOutput", "Start", "NATS client required")
	}
	if o.db == nil {
		if err := o.connect(ctx); err != nil {
			return err
		}
	}
	o.setWriter(tsdb.NewWriter(o.db, o.table(), o.logger))

	o.inflight.Open()
	sub, err := o.bus.Subscribe(ctx, o.config.InputSubject, o.handleMessage)
	if err != nil {
		o.inflight.Drain(0)
		o.setWriter(nil)
		o.closePool()
		return errors.WrapTransient(err, "TimescaleOutput", "Start", fmt.Sprintf("subscribe to %s", o.config.InputSubject))
	}
	o.sub = sub

	o.stats.MarkStarted()
	o.logger.Info("Timescale output started",
		"input_subject", o.config.InputSubject,
		"table", o.writer.Table(),
		"validate_schema", o.validator != nil)
	return nil
}

func (o *Output) setWriter(w *tsdb.Writer) {
	o.batchMu.Lock()
	o.writer = w
	o.batchMu.Unlock()
}

func (o *Output) closePool() {
	if o.pool != nil {
		o.pool.Close()
		o.pool = nil
		o.db = nil
	}
}

// abandonPool closes the pool while a batch that outlived the stop timeout
// still holds a connection. pgxpool.Pool.Close waits for that connection, so
// it runs in the background; the stuck batch fails its remaining inserts and
// the next Start reconnects.
func (o *Output) abandonPool(timeout time.Duration) {
	pool := o.pool
	if pool == nil {
		return
	}
	o.pool = nil
	o.db = nil
	o.logger.Warn("Closing pool with a batch still in flight", "timeout", timeout)
	go pool.Close()
}

// Stop unsubscribes, waits for the batch in progress and closes the pool.
// No new batch reaches the writer once Stop has returned. If the batch in
// progress outlives timeout, the pool is still closed and Stop reports the
// timeout.
func (o *Output) Stop(timeout time.Duration) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if !o.stats.Running() {
		return nil
	}
	o.stats.MarkStopped()

	var unsubErr error
	if o.sub != nil {
		unsubErr = o.sub.Unsubscribe()
		o.sub = nil
	}
	if !o.inflight.Drain(timeout) {
		o.abandonPool(timeout)
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "TimescaleOutput", "Stop", "graceful shutdown")
	}

	o.setWriter(nil)
	o.closePool()
	if unsubErr != nil {
		return errors.Wrap(unsubErr, "TimescaleOutput", "Stop", "unsubscribe")
	}
	return nil
}

func (o *Output) handleMessage(ctx context.Context, data []byte) {
	leave, ok := o.inflight.Enter()
	if !ok {
		return
	}
	defer leave()

	start := time.Now()
	defer func() { o.metrics.RecordDuration(componentName, time.Since(start)) }()
	o.stats.RecordMessage(len(data))

	if err := o.PersistBatch(ctx, data); err != nil {
		o.logger.Warn("Record batch persisted with errors", "error", err)
	}
}

// PersistBatch writes every record in data, in order. A failing record
// does not stop the rest; all failures are returned joined.
func (o *Output) PersistBatch(ctx context.Context, data []byte) error {
	o.batchMu.Lock()
	defer o.batchMu.Unlock()

	if o.writer == nil {
		return errors.WrapFatal(errors.ErrNotStarted, "TimescaleOutput", "PersistBatch", "check writer")
	}

	raws, err := tsdb.SplitBatch(data)
	if err != nil {
		err = errors.WrapInvalid(err, "TimescaleOutput", "PersistBatch", "split batch")
		o.fail(err, -1)
		return err
	}

	var errs []error
	for i, raw := range raws {
		if err := o.persistOne(ctx, raw); err != nil {
			o.fail(err, i)
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
		}
	}
	return stderrors.Join(errs...)
}

func (o *Output) persistOne(ctx context.Context, raw json.RawMessage) error {
	if o.validator != nil {
		if err := o.validator.Validate(raw); err != nil {
			return errors.WrapInvalid(err, "TimescaleOutput", "persistOne", "validate schema")
		}
	}
	record, err := tsdb.DecodeRecord(raw)
	if err != nil {
		return errors.WrapInvalid(err, "TimescaleOutput", "persistOne", "decode record")
	}

	insertCtx, cancel := context.WithTimeout(ctx, o.config.InsertTimeout.Std())
	defer cancel()
	if err := o.writer.Persist(insertCtx, record); err != nil {
		return err
	}

	column, _ := tsdb.ColumnFor(record.DataType)
	o.metrics.RecordPersisted(componentName, column)
	return nil
}

func (o *Output) fail(err error, index int) {
	class := errors.Classify(err)
	o.stats.RecordError(err)
	o.metrics.RecordError(componentName, class.String())

	level := slog.LevelWarn
	if class == errors.ErrorFatal {
		level = slog.LevelError
	}
	o.logger.Log(context.Background(), level, "Record not persisted",
		"index", index,
		"class", class.String(),
		"error", err)
}

// Meta returns metadata describing this output
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        componentName,
		Type:        "output",
		Description: "Persists atomic records into TimescaleDB",
		Version:     "1.0.0",
	}
}

// InputPorts returns the record batch subject
func (o *Output) InputPorts() []component.Port {
	return []component.Port{{
		Name:        "records",
		Direction:   component.DirectionInput,
		Required:    true,
		Description: "JSON arrays of atomic records",
		Config:      component.NATSPort{Subject: o.config.InputSubject},
	}}
}

// OutputPorts returns the target table
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{{
		Name:        "table",
		Direction:   component.DirectionOutput,
		Required:    true,
		Description: "Hypertable receiving one row per record",
		Config:      component.DatabasePort{Table: o.table()},
	}}
}

// ConfigSchema returns the configuration schema
func (o *Output) ConfigSchema() component.ConfigSchema { return timescaleSchema }

// Health returns the current health status
func (o *Output) Health() component.HealthStatus { return o.stats.Health() }

// DataFlow returns current flow metrics
func (o *Output) DataFlow() component.FlowMetrics { return o.stats.DataFlow() }

// Register registers the timescale output with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewOutput,
		Schema:      timescaleSchema,
		Type:        "output",
		Protocol:    "postgres",
		Domain:      "storage",
		Description: "Persists atomic records into TimescaleDB",
		Version:     "1.0.0",
	})
}
