package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *p)

	p, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", p.LogLevel)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `broker: amqp://localhost:5672/
username: alice
destination: orders
topic: true
receive_timeout: 30s
client_id: uploader
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "amqp://localhost:5672/", p.Broker)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "", p.Password)
	assert.Equal(t, "orders", p.Destination)
	assert.True(t, p.Topic)
	assert.Equal(t, 30*time.Second, p.ReceiveTimeout)
	assert.Equal(t, "uploader", p.ClientID)
	assert.Equal(t, "info", p.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"BadYAML", "broker: [", "parse profile"},
		{"NoScheme", "broker: localhost", "Broker"},
		{"NegativeTimeout", "receive_timeout: -1s", "ReceiveTimeout"},
		{"BadLogLevel", "log_level: loud", "LogLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	p := Default()
	p.Broker = "nats://localhost:4222"
	p.Username = "alice"
	p.Password = "secret"
	p.Destination = "news"
	p.Topic = true

	require.NoError(t, p.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p, *loaded)
}
