package mq

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/config"
)

func TestDialConfigDefaults(t *testing.T) {
	c := dialConfig(config.MQConfig{URL: "amqp://localhost"})
	assert.Equal(t, 10*time.Second, c.Heartbeat)

	name, ok := c.Properties["connection_name"].(string)
	require.True(t, ok)
	assert.Contains(t, name, "project-nexus")
}

func TestDialConfigUsesConfiguredValues(t *testing.T) {
	cfg := config.MQConfig{URL: "amqp://localhost", Heartbeat: 30 * time.Second}.Named("nexus-worker")
	c := dialConfig(cfg)
	assert.Equal(t, 30*time.Second, c.Heartbeat)

	host, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, "nexus-worker@"+host, c.Properties["connection_name"])
}

func TestNamedKeepsConfiguredName(t *testing.T) {
	cfg := config.MQConfig{ConnectionName: "from-yaml"}
	assert.Equal(t, "from-yaml", cfg.Named("nexus-api").ConnectionName)
	assert.Equal(t, "nexus-api", config.MQConfig{}.Named("nexus-api").ConnectionName)
}
