package meshcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFullConfig(t *testing.T) {
	raw := []byte(`
[node]
address = 0x0042
iv_index = 7
log_level = debug

[bearer]
kind = advertising
channel = hci0
`)
	cfg, err := Load(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0042, cfg.Node.Address)
	assert.EqualValues(t, 7, cfg.Node.IvIndex)
	assert.Equal(t, "debug", cfg.Node.LogLevel)
	assert.Equal(t, "advertising", cfg.Bearer.Kind)
	assert.Equal(t, "hci0", cfg.Bearer.Channel)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte(``))
	require.NoError(t, err)
	assert.EqualValues(t, 0x0001, cfg.Node.Address)
	assert.EqualValues(t, 0, cfg.Node.IvIndex)
	assert.Equal(t, "info", cfg.Node.LogLevel)
	assert.Equal(t, "virtual", cfg.Bearer.Kind)
	assert.Equal(t, "default", cfg.Bearer.Channel)
}

func TestLoadRejectsMalformedAddress(t *testing.T) {
	raw := []byte(`
[node]
address = not-a-number
`)
	_, err := Load(raw)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedIvIndex(t *testing.T) {
	raw := []byte(`
[node]
iv_index = not-a-number
`)
	_, err := Load(raw)
	assert.Error(t, err)
}
