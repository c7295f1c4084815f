package main

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watermetergateway/exporter/internal/config"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range []string{
		config.EnvLogLevel, config.EnvLogFormat, config.EnvPrefix, config.EnvPort,
		config.EnvAddress, config.EnvDevicePort, config.EnvPollInterval, config.EnvConfigFile,
	} {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestRun_MissingAddressExitsOne(t *testing.T) {
	setEnv(t, nil)
	assert.Equal(t, 1, run(nil))
}

func TestRun_InvalidPrefixExitsOne(t *testing.T) {
	setEnv(t, map[string]string{
		config.EnvAddress: "127.0.0.1",
		config.EnvPrefix:  "my-home",
	})
	assert.Equal(t, 1, run(nil))
}

func TestRun_PortInUseExitsOne(t *testing.T) {
	lis, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lis.Close() })
	port := lis.Addr().(*net.TCPAddr).Port

	setEnv(t, map[string]string{
		config.EnvAddress: "127.0.0.1",
		config.EnvPort:    strconv.Itoa(port),
	})
	assert.Equal(t, 1, run(nil))
}

func TestRun_BadFlagExitsTwo(t *testing.T) {
	setEnv(t, nil)
	assert.Equal(t, 2, run([]string{"-no-such-flag"}))
}
