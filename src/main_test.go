package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/OpenTollGate/tollgate-session-engine-go/src/config_manager"
)

func TestGetConfigPathDefault(t *testing.T) {
	t.Setenv("TOLLGATE_CONFIG_PATH", "")
	assert.Equal(t, "/etc/tollgate/config.json", getConfigPath())
}

func TestGetConfigPathFromEnvironment(t *testing.T) {
	t.Setenv("TOLLGATE_CONFIG_PATH", "/tmp/engine-config.json")
	assert.Equal(t, "/tmp/engine-config.json", getConfigPath())
}

func TestInitializeGlobalLoggerLevels(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	InitializeGlobalLogger("Debug")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	InitializeGlobalLogger("not-a-level")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestDevRelayAddrUsesFirstConfiguredPort(t *testing.T) {
	assert.Equal(t, "127.0.0.1:2121", devRelayAddr(&config_manager.Config{RelayPorts: []int{2121, 3334}}))
	assert.Equal(t, "127.0.0.1:3334", devRelayAddr(&config_manager.Config{}))
}

func TestStartDevRelayDisabled(t *testing.T) {
	assert.Nil(t, startDevRelay(false, &config_manager.Config{}))
}
