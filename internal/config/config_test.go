package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	conf, err := Parse([]byte("appkit:\n  project_id: abc\n"))
	require.NoError(t, err)

	assert.Equal(t, "abc", conf.AppKit.ProjectID)
	assert.Equal(t, []int64{1}, conf.AppKit.Chains)
	assert.Equal(t, 300*time.Millisecond, conf.AppKit.OpenDelay)
	assert.Equal(t, 10*time.Second, conf.Bridge.RequestTimeout)
	assert.Equal(t, ":8080", conf.HTTP.Address)
	assert.Equal(t, DriverMemory, conf.Storage.Driver)
	assert.Equal(t, DriverLog, conf.DataBus.Driver)
}

func TestParseRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{"storage driver", "storage:\n  driver: etcd\n"},
		{"databus driver", "databus:\n  driver: nats\n"},
		{"kafka without servers", "databus:\n  driver: kafka\n"},
		{"transport kind", "appkit:\n  transports:\n    1: {type: grpc, url: x}\n"},
		{"sqs without queue", "databus:\n  driver: sqs\n  region: eu-west-1\n"},
		{"negative rate", "http:\n  onramp_per_minute: -1\n"},
		{"rate without redis", "http:\n  onramp_per_minute: 10\n"},
		{"onramp base url", "onramp:\n  base_url: meldcrypto.com\n"},
		{"yaml", "appkit: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yml))
			assert.Error(t, err)
		})
	}
}

func TestLoadSampleFile(t *testing.T) {
	conf, err := Load("config.yml")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 137, 8453}, conf.AppKit.Chains)
	assert.Equal(t, "websocket", conf.AppKit.Transports[1].Type)
	assert.Equal(t, time.Minute, conf.Reporting.LarkSilent)
	assert.Equal(t, "127.0.0.1:6379", conf.Storage.Redis.Addr())
	assert.Equal(t, "host=127.0.0.1 port=5432 user=postgres password= dbname=wallet_bridge", conf.Storage.Postgres.Dsn())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte("log_level: 0\nstorage:\n  driver: redis\n  redis:\n    database: \"3\"\n"), 0o600))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, conf.LogLevel)
	assert.Equal(t, DriverRedis, conf.Storage.Driver)
	assert.Equal(t, 3, conf.Storage.Redis.DB())
	assert.Equal(t, "wagmi", conf.Storage.KeyPrefix)
}

func TestParseAcceptsDrivers(t *testing.T) {
	conf, err := Parse([]byte("storage:\n  driver: postgres\ndatabus:\n  driver: sqs\n  queue_url: https://sqs.eu-west-1.amazonaws.com/1/events\n  region: eu-west-1\n"))
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, conf.Storage.Driver)
	assert.Equal(t, DriverSQS, conf.DataBus.Driver)

	conf, err = Parse([]byte("http:\n  onramp_per_minute: 5\nstorage:\n  driver: redis\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, conf.HTTP.OnRampPerMinute)
}
