package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "flat-3"
  timezone: "Europe/London"
database:
  path: "/tmp/vents.db"
discovery:
  backend: otctl
  otctl_command: ["docker", "exec", "otbr", "ot-ctl"]
scheduler:
  rules:
    - name: morning
      time: "07:30"
      target_type: room
      target: bedroom
      angle: 135
    - name: night
      time: "23:00"
      target_type: all
      angle: 90
      enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "flat-3", cfg.Site.ID)
	assert.Equal(t, "/tmp/vents.db", cfg.Database.Path)
	assert.Equal(t, DiscoveryBackendOTCtl, cfg.Discovery.Backend)
	assert.Equal(t, []string{"docker", "exec", "otbr", "ot-ctl"}, cfg.Discovery.OTCtlCommand)
	require.Len(t, cfg.Scheduler.Rules, 2)
	assert.True(t, cfg.Scheduler.Rules[0].IsEnabled())
	assert.False(t, cfg.Scheduler.Rules[1].IsEnabled())

	// Defaults survive a partial file.
	assert.Equal(t, 5683, cfg.Mesh.CoAPPort)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 60*time.Second, cfg.TickInterval())
	assert.Equal(t, "Europe/London", cfg.Location().String())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VENTHUB_DATABASE_PATH", "/var/lib/venthub/hub.db")
	t.Setenv("VENTHUB_DISCOVERY_OTCTL_COMMAND", "sudo ot-ctl")
	t.Setenv("VENTHUB_MESH_COAP_PORT", "15683")

	cfg, err := Load(writeConfig(t, "site:\n  id: x\n"))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/venthub/hub.db", cfg.Database.Path)
	assert.Equal(t, []string{"sudo", "ot-ctl"}, cfg.Discovery.OTCtlCommand)
	assert.Equal(t, 15683, cfg.Mesh.CoAPPort)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty site id", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Site.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Discovery.Backend = "mdns" }, wantErr: true},
		{name: "otctl without command", mutate: func(c *Config) {
			c.Discovery.Backend = DiscoveryBackendOTCtl
			c.Discovery.OTCtlCommand = nil
		}, wantErr: true},
		{name: "bad coap port", mutate: func(c *Config) { c.Mesh.CoAPPort = 0 }, wantErr: true},
		{name: "bad qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "api port ignored when disabled", mutate: func(c *Config) {
			c.API.Enabled = false
			c.API.Port = 0
		}},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "duplicate rule names", mutate: func(c *Config) {
			c.Scheduler.Rules = []RuleConfig{
				{Name: "a", Time: "08:00", TargetType: "all"},
				{Name: "a", Time: "09:00", TargetType: "all"},
			}
		}, wantErr: true},
		{name: "bad rule target type", mutate: func(c *Config) {
			c.Scheduler.Rules = []RuleConfig{{Name: "a", Time: "08:00", TargetType: "zone"}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 30*time.Second, cfg.GetReadTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetWriteTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetIdleTimeout())
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 5*time.Minute, cfg.DiscoveryInterval())
	assert.Equal(t, 5*time.Second, cfg.DiscoveryTimeout())
}
