package nodeconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsWhenAbsent(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Load())

	assert.Equal(t, Defaults(), *s.Config())
	_, err := os.Stat(s.Path())
	assert.NoError(t, err, "defaults are persisted on first load")
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.Load())

	cfg := s.Config()
	cfg.NodeID = 12
	cfg.NetworkID = 7
	cfg.TelemetryIntervalMs = 60000
	cfg.Location = "Greenhouse"
	cfg.Zone = "east"
	cfg.TempThreshHigh = 42.5
	cfg.TempThreshLow = -5.0
	cfg.MeshEnabled = false
	cfg.TZOffsetMinutes = -300
	cfg.LastTimeSync = 1754400000
	require.NoError(t, s.Save())

	s2 := NewStore(dir)
	require.NoError(t, s2.Load())
	assert.Equal(t, *cfg, *s2.Config())
}

func TestFactoryReset(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Load())
	s.Config().NodeID = 99
	s.Config().Location = "Basement"
	require.NoError(t, s.Save())

	require.NoError(t, s.FactoryReset())
	assert.Equal(t, Defaults(), *s.Config())

	s2 := NewStore(t.TempDir())
	require.NoError(t, s2.Load())
	assert.Equal(t, Defaults(), *s2.Config())
}

func TestStoreOverMemKV(t *testing.T) {
	// 同一个Store逻辑跑在NVS替身上（固件测试的形态）
	kv := NewMemKV()
	s := NewStoreWithKV(kv)
	require.NoError(t, s.Load())
	assert.Equal(t, Defaults(), *s.Config())
	assert.Empty(t, s.Path(), "memory namespace has no file path")

	s.Config().NodeID = 7
	s.Config().Zone = "cellar"
	require.NoError(t, s.Save())

	s2 := NewStoreWithKV(kv)
	require.NoError(t, s2.Load())
	assert.Equal(t, uint8(7), s2.Config().NodeID)
	assert.Equal(t, "cellar", s2.Config().Zone)

	require.NoError(t, s2.FactoryReset())
	assert.Equal(t, Defaults(), *s2.Config())
}

func TestLoadToleratesMissingKeys(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, os.WriteFile(s.Path(), []byte("node_id: 5\nlora_freq: 868.0\n"), 0o644))

	require.NoError(t, s.Load())
	cfg := s.Config()
	assert.Equal(t, uint8(5), cfg.NodeID)
	assert.InDelta(t, 868.0, cfg.LoRaFrequency, 1e-3)
	// 其余字段回落默认值
	assert.Equal(t, Defaults().TelemetryIntervalMs, cfg.TelemetryIntervalMs)
	assert.Equal(t, Defaults().Zone, cfg.Zone)
	assert.True(t, cfg.MeshEnabled)
}
