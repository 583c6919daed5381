package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/config"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/metric"
	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
	"github.com/mnbf9rca/eventhub-to-timescale/timescale"
)

const componentName = "file"

// Config holds configuration for the monitor file output
type Config struct {
	InputSubject  string          `json:"input_subject" schema:"type:string,description:Subject carrying monitor batches,default:telemetry.monitor,category:basic"`
	Directory     string          `json:"directory" schema:"type:string,description:Output directory,default:/tmp/eventhub-to-timescale,category:basic"`
	FilePrefix    string          `json:"file_prefix" schema:"type:string,description:File name prefix,default:monitor,category:basic"`
	BufferSize    int             `json:"buffer_size" schema:"type:int,description:Lines buffered before a flush,default:100,min:1,category:advanced"`
	FlushInterval config.Duration `json:"flush_interval" schema:"type:string,description:Maximum time a line stays buffered,default:1s,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.InputSubject == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: input_subject", errors.ErrMissingConfig), "Config", "Validate", "check subject")
	}
	if c.Directory == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: directory", errors.ErrMissingConfig), "Config", "Validate", "check directory")
	}
	if c.FilePrefix == "" || filepath.Base(c.FilePrefix) != c.FilePrefix {
		return errors.WrapInvalid(fmt.Errorf("%w: file_prefix must be a plain name", errors.ErrInvalidConfig), "Config", "Validate", "check prefix")
	}
	if c.BufferSize < 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: buffer_size must be positive", errors.ErrInvalidConfig), "Config", "Validate", "check buffer")
	}
	if c.FlushInterval.Std() <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: flush_interval must be positive", errors.ErrInvalidConfig), "Config", "Validate", "check flush interval")
	}
	return nil
}

// DefaultConfig returns default configuration for the monitor output
func DefaultConfig() Config {
	return Config{
		InputSubject:  "telemetry.monitor",
		Directory:     "/tmp/eventhub-to-timescale",
		FilePrefix:    "monitor",
		BufferSize:    100,
		FlushInterval: config.Duration(time.Second),
	}
}

var fileSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Output appends monitor batches to date-named JSON Lines files
type Output struct {
	config  Config
	bus     component.Bus
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time

	// File handling
	file     *os.File
	fileDate string
	fileMu   sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex

	sub         natsclient.Subscription
	inflight    component.Inflight
	shutdown    chan struct{}
	wg          sync.WaitGroup
	stats       component.Stats
	lifecycleMu sync.Mutex
}

// NewOutput creates a monitor file output from configuration
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "FileOutput", "NewOutput", "config unmarshal")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Output{
		config:  cfg,
		bus:     deps.Bus(),
		logger:  deps.GetLoggerWithComponent(componentName),
		metrics: deps.CoreMetrics(),
		now:     time.Now,
		buffer:  make([][]byte, 0, cfg.BufferSize),
	}, nil
}

// Initialize creates the output directory
func (f *Output) Initialize() error {
	if err := os.MkdirAll(f.config.Directory, 0o755); err != nil {
		return errors.WrapFatal(err, "FileOutput", "Initialize", "create output directory")
	}
	return nil
}

// Start subscribes to the monitor subject and starts the flush loop
func (f *Output) Start(ctx context.Context) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if f.stats.Running() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "FileOutput", "Start", "check running state")
	}
	if f.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "FileOutput", "Start", "NATS client required")
	}

	f.inflight.Open()
	sub, err := f.bus.Subscribe(ctx, f.config.InputSubject, f.handleMessage)
	if err != nil {
		f.inflight.Drain(0)
		return errors.WrapTransient(err, "FileOutput", "Start", fmt.Sprintf("subscribe to %s", f.config.InputSubject))
	}
	f.sub = sub

	f.shutdown = make(chan struct{})
	f.wg.Add(1)
	go f.flushLoop(f.shutdown)

	f.stats.MarkStarted()
	f.logger.Info("File output started",
		"input_subject", f.config.InputSubject,
		"directory", f.config.Directory,
		"file_prefix", f.config.FilePrefix,
		"buffer_size", f.config.BufferSize)
	return nil
}

// Stop flushes buffered lines and closes the current file
func (f *Output) Stop(timeout time.Duration) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if !f.stats.Running() {
		return nil
	}
	f.stats.MarkStopped()

	if f.sub != nil {
		if err := f.sub.Unsubscribe(); err != nil {
			f.logger.Warn("Failed to unsubscribe", "error", err, "subject", f.config.InputSubject)
		}
		f.sub = nil
	}
	if !f.inflight.Drain(timeout) {
		f.logger.Warn("Handlers still running at shutdown", "timeout", timeout)
	}
	close(f.shutdown)

	waitCh := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "FileOutput", "Stop", "shutdown")
	}

	f.flush()

	f.fileMu.Lock()
	defer f.fileMu.Unlock()
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			f.logger.Warn("Failed to close output file", "error", err, "path", f.file.Name())
		}
		f.file = nil
		f.fileDate = ""
	}
	return nil
}

// Path returns the file that lines written at t land in.
func (f *Output) Path(t time.Time) string {
	name := fmt.Sprintf("%s-%s.jsonl", f.config.FilePrefix, t.UTC().Format("20060102"))
	return filepath.Join(f.config.Directory, name)
}

// splitLines renders one line per record. Data that is not a record batch
// is kept whole.
func splitLines(data []byte) [][]byte {
	raws, err := timescale.SplitBatch(data)
	if err != nil {
		line := bytes.TrimSpace(data)
		if len(line) == 0 {
			return nil
		}
		return [][]byte{bytes.ReplaceAll(line, []byte("\n"), []byte(" "))}
	}

	lines := make([][]byte, 0, len(raws))
	for _, raw := range raws {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			lines = append(lines, append([]byte(nil), raw...))
			continue
		}
		lines = append(lines, buf.Bytes())
	}
	return lines
}

func (f *Output) handleMessage(_ context.Context, data []byte) {
	leave, ok := f.inflight.Enter()
	if !ok {
		return
	}
	defer leave()

	f.stats.RecordMessage(len(data))
	lines := splitLines(data)

	f.bufferMu.Lock()
	f.buffer = append(f.buffer, lines...)
	shouldFlush := len(f.buffer) >= f.config.BufferSize
	f.bufferMu.Unlock()

	if shouldFlush {
		f.flush()
	}
}

func (f *Output) flushLoop(shutdown <-chan struct{}) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.FlushInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			f.flush()
		}
	}
}

// fileFor returns the handle for today's file, rotating when the date has
// changed. Callers hold fileMu.
func (f *Output) fileFor(t time.Time) (*os.File, error) {
	date := t.UTC().Format("20060102")
	if f.file != nil && f.fileDate == date {
		return f.file, nil
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			f.logger.Warn("Failed to close rotated file", "error", err, "path", f.file.Name())
		}
		f.file = nil
	}

	file, err := os.OpenFile(f.Path(t), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	f.file = file
	f.fileDate = date
	f.logger.Debug("Opened monitor file", "path", file.Name())
	return file, nil
}

func (f *Output) flush() {
	f.bufferMu.Lock()
	if len(f.buffer) == 0 {
		f.bufferMu.Unlock()
		return
	}
	lines := f.buffer
	f.buffer = make([][]byte, 0, f.config.BufferSize)
	f.bufferMu.Unlock()

	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	file, err := f.fileFor(f.now())
	if err != nil {
		err = errors.WrapTransient(err, "FileOutput", "flush", "open monitor file")
		f.stats.RecordError(err)
		f.metrics.RecordError(componentName, errors.ErrorTransient.String())
		f.logger.Error("Monitor lines dropped", "lines", len(lines), "error", err)
		return
	}

	var out bytes.Buffer
	for _, line := range lines {
		out.Write(line)
		out.WriteByte('\n')
	}
	if _, err := file.Write(out.Bytes()); err != nil {
		err = errors.WrapTransient(err, "FileOutput", "flush", "write monitor file")
		f.stats.RecordError(err)
		f.metrics.RecordError(componentName, errors.ErrorTransient.String())
		f.logger.Error("Failed to write monitor lines", "lines", len(lines), "path", file.Name(), "error", err)
		return
	}
	f.logger.Debug("Flushed monitor lines", "lines", len(lines), "path", file.Name())
}

// Meta returns component metadata
func (f *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        componentName,
		Type:        "output",
		Description: "Appends monitor batches to daily JSON Lines files",
		Version:     "1.0.0",
	}
}

// InputPorts returns the monitor subject
func (f *Output) InputPorts() []component.Port {
	return []component.Port{{
		Name:        "monitor",
		Direction:   component.DirectionInput,
		Required:    true,
		Description: "Monitor copies of record batches",
		Config:      component.NATSPort{Subject: f.config.InputSubject},
	}}
}

// OutputPorts returns the output directory
func (f *Output) OutputPorts() []component.Port {
	return []component.Port{{
		Name:        "files",
		Direction:   component.DirectionOutput,
		Required:    true,
		Description: "Daily JSON Lines files",
		Config: component.FilePort{
			Path:    f.config.Directory,
			Pattern: f.config.FilePrefix + "-*.jsonl",
		},
	}}
}

// ConfigSchema returns the configuration schema
func (f *Output) ConfigSchema() component.ConfigSchema { return fileSchema }

// Health returns the current health status
func (f *Output) Health() component.HealthStatus { return f.stats.Health() }

// DataFlow returns current data flow metrics
func (f *Output) DataFlow() component.FlowMetrics { return f.stats.DataFlow() }

// Register registers the file output component with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewOutput,
		Schema:      fileSchema,
		Type:        "output",
		Protocol:    "file",
		Domain:      "storage",
		Description: "Appends monitor batches to daily JSON Lines files",
		Version:     "1.0.0",
	})
}
