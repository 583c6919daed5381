package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "eventhub-to-timescale", cfg.Platform.ID)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.True(t, cfg.NATS.JetStream.Enabled)
	assert.Equal(t, []string{"mqtt", "normalizer", "timescale", "vehicle"}, cfg.EnabledComponents())
	assert.NoError(t, cfg.Validate())
}

func TestLoader_JSONLayer(t *testing.T) {
	path := writeFile(t, "base.json", `{
		"platform": {"id": "home"},
		"nats": {"urls": ["nats://bus:4222"], "reconnect_wait": "5s"},
		"components": {
			"timescale": {"config": {"table": "readings"}}
		}
	}`)

	l := newTestLoader(nil)
	l.AddLayer(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "home", cfg.Platform.ID)
	assert.Equal(t, "info", cfg.Platform.LogLevel, "unset fields keep their default")
	assert.Equal(t, []string{"nats://bus:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait.Std())

	ts := cfg.Components["timescale"]
	assert.Equal(t, "timescale", ts.Name, "partial component override merges into the default entry")
	assert.True(t, ts.Enabled)
	assert.JSONEq(t, `{"table":"readings"}`, string(ts.Config))
}

func TestLoader_YAMLLayersMergeInOrder(t *testing.T) {
	base := writeFile(t, "base.yaml", `
platform:
  id: dev
  log_level: debug
components:
  monitor:
    name: file
    type: output
    enabled: true
    config:
      directory: /var/lib/e2t
      prefix: monitor
`)
	prod := writeFile(t, "prod.yml", `
platform:
  id: prod
components:
  mqtt:
    enabled: false
  monitor:
    config:
      prefix: vehicle
`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(prod)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Platform.ID)
	assert.Equal(t, "debug", cfg.Platform.LogLevel)
	assert.False(t, cfg.Components["mqtt"].Enabled)
	assert.JSONEq(t, `{"directory":"/var/lib/e2t","prefix":"vehicle"}`, string(cfg.Components["monitor"].Config))
	assert.Contains(t, cfg.EnabledComponents(), "monitor")
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"E2T_PLATFORM_ID":     "edge-1",
		"E2T_LOG_LEVEL":       "WARN",
		"E2T_NATS_URLS":       "nats://a:4222, nats://b:4222",
		"E2T_NATS_TOKEN":      "s3cret",
		"E2T_METRICS_ENABLED": "false",
		"E2T_METRICS_ADDRESS": ":9191",
	})
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "edge-1", cfg.Platform.ID)
	assert.Equal(t, "warn", cfg.Platform.LogLevel)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "s3cret", cfg.NATS.Token)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9191", cfg.Metrics.Address)

	assert.False(t, strings.Contains(cfg.String(), "s3cret"), "String must redact secrets")
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "bad.json", `{"platform": `},
		{"malformed yaml", "bad.yaml", "platform: [unclosed"},
		{"wrong type", "type.json", `{"nats": {"urls": "nats://x:4222"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(nil)
			l.AddLayer(writeFile(t, tt.file, tt.content))
			_, err := l.Load()
			assert.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := newTestLoader(nil).LoadFile(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := newTestLoader(nil).LoadFile(t.TempDir())
		assert.ErrorContains(t, err, "not a regular file")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"missing platform id", func(c *Config) { c.Platform.ID = "" }, errors.ErrMissingConfig},
		{"bad log level", func(c *Config) { c.Platform.LogLevel = "trace" }, errors.ErrInvalidConfig},
		{"bad log format", func(c *Config) { c.Platform.LogFormat = "xml" }, errors.ErrInvalidConfig},
		{"no nats urls", func(c *Config) { c.NATS.URLs = nil }, errors.ErrMissingConfig},
		{"bad nats scheme", func(c *Config) { c.NATS.URLs = []string{"http://bus:4222"} }, errors.ErrInvalidConfig},
		{"negative reconnect", func(c *Config) { c.NATS.ReconnectWait = -1 }, errors.ErrInvalidConfig},
		{"metrics without address", func(c *Config) { c.Metrics.Address = "" }, errors.ErrMissingConfig},
		{"component without factory", func(c *Config) {
			c.Components["x"] = ComponentConfig{Type: ComponentTypeOutput}
		}, errors.ErrMissingConfig},
		{"component with bad type", func(c *Config) {
			c.Components["x"] = ComponentConfig{Name: "file", Type: "sink"}
		}, errors.ErrInvalidConfig},
		{"component with bad json", func(c *Config) {
			c.Components["x"] = ComponentConfig{Name: "file", Type: ComponentTypeOutput, Config: json.RawMessage(`{`)}
		}, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_CloneIsDeep(t *testing.T) {
	cfg := Defaults()
	cfg.Components["timescale"] = ComponentConfig{Name: "timescale", Type: ComponentTypeOutput, Config: json.RawMessage(`{"table":"a"}`)}

	clone := cfg.Clone()
	clone.NATS.URLs[0] = "nats://other:4222"
	clone.Components["timescale"].Config[10] = 'b'
	delete(clone.Components, "mqtt")

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URLs[0])
	assert.JSONEq(t, `{"table":"a"}`, string(cfg.Components["timescale"].Config))
	assert.Contains(t, cfg.Components, "mqtt")
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(Defaults())

	got := sc.Get()
	got.Platform.ID = "changed"
	assert.Equal(t, "eventhub-to-timescale", sc.Get().Platform.ID)

	bad := Defaults()
	bad.NATS.URLs = nil
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))

	next := Defaults()
	next.Platform.ID = "next"
	require.NoError(t, sc.Update(next))
	assert.Equal(t, "next", sc.Get().Platform.ID)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"2s", 2 * time.Second, false},
		{"14d", 14 * 24 * time.Hour, false},
		{"xd", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Std())
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}
