package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

// writeTestCert writes a self-signed certificate and key into dir
func writeTestCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "broker.local"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))
	return certFile, keyFile
}

func TestLoadClientConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir)
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not pem"), 0o644))

	t.Run("disabled", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{CAFiles: []string{"/missing"}})
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("system roots only", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{Enabled: true})
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.NotNil(t, cfg.RootCAs)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		assert.Empty(t, cfg.Certificates)
	})

	t.Run("extra CA and client cert", func(t *testing.T) {
		cfg, err := LoadClientConfig(ClientConfig{
			Enabled:    true,
			CAFiles:    []string{certFile},
			CertFile:   certFile,
			KeyFile:    keyFile,
			ServerName: "broker.local",
			MinVersion: "1.3",
		})
		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
		assert.Equal(t, "broker.local", cfg.ServerName)
		assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	})

	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"missing CA", ClientConfig{Enabled: true, CAFiles: []string{filepath.Join(dir, "missing.pem")}}},
		{"bad CA", ClientConfig{Enabled: true, CAFiles: []string{garbage}}},
		{"bad key pair", ClientConfig{Enabled: true, CertFile: certFile, KeyFile: garbage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClientConfig(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{"disabled ignores fields", ClientConfig{CertFile: "c.pem"}, false},
		{"cert without key", ClientConfig{Enabled: true, CertFile: "c.pem"}, true},
		{"key without cert", ClientConfig{Enabled: true, KeyFile: "k.pem"}, true},
		{"bad min version", ClientConfig{Enabled: true, MinVersion: "1.0"}, true},
		{"ok", ClientConfig{Enabled: true, MinVersion: "1.2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
