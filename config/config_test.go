package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "http://127.0.0.1:8188", cfg.ComfyURL)
	assert.Equal(t, "sam2.1_hiera_base_plus.safetensors", cfg.SamModel)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.SegmentTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "@every 1m", cfg.SweepSpec)
	assert.Equal(t, int64(20), cfg.MaxUploadMB)
	assert.Equal(t, 1024, cfg.MaxImageSide)
	assert.False(t, cfg.Debug)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SAM2CUT_ADDR", "127.0.0.1:9000")
	t.Setenv("SAM2CUT_COMFY_URL", "http://gpu-box:8188")
	t.Setenv("SAM2CUT_SEGMENT_TIMEOUT", "45s")
	t.Setenv("SAM2CUT_MAX_UPLOAD_MB", "5")
	t.Setenv("SAM2CUT_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "http://gpu-box:8188", cfg.ComfyURL)
	assert.Equal(t, 45*time.Second, cfg.SegmentTimeout)
	assert.Equal(t, int64(5), cfg.MaxUploadMB)
	assert.True(t, cfg.Debug)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SAM2CUT_POLL_INTERVAL", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
}

func TestMaxUploadBytes(t *testing.T) {
	cfg := &Config{MaxUploadMB: 20}
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes())
}
