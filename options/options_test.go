package options

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	o, err := Parse(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1200, *o.Width)
	assert.Equal(t, 800, *o.Height)
	assert.Equal(t, "core", *o.Profile)
	assert.False(t, o.Recording())
}

func TestParseRecording(t *testing.T) {
	o, err := Parse([]string{"-record", "out.mp4", "-fps", "30", "-duration", "2.5", "-codec", "h265"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, o.Recording())
	assert.Equal(t, 30, *o.FPS)
	assert.InDelta(t, 2.5, *o.Duration, 1e-9)
	assert.Equal(t, "h265", *o.Codec)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]string{"-width", "0"}, io.Discard)
	assert.ErrorContains(t, err, "invalid size")

	_, err = Parse([]string{"-record", "out.mp4", "-fps", "0", "-codec", "vp9"}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fps")
	assert.Contains(t, err.Error(), "vp9")

	_, err = Parse([]string{"-nope"}, io.Discard)
	assert.Error(t, err)
}

func TestParseHelpSkipsValidation(t *testing.T) {
	var out strings.Builder
	o, err := Parse([]string{"-help", "-width", "0"}, &out)
	require.NoError(t, err)
	assert.True(t, *o.Help)
	assert.Contains(t, out.String(), "-record")
}

func TestDefaultStateIsValid(t *testing.T) {
	s := DefaultState()
	require.NoError(t, s.Validate())
	clamped := s
	clamped.Clamp()
	assert.Equal(t, s, clamped)
}

func TestDecodeStateOverlay(t *testing.T) {
	doc := `
camera_roll = 45.0
tonemapping_enabled = false
gamma = 2.4
`
	s, err := DecodeState([]byte(doc), DefaultState())
	require.NoError(t, err)

	want := DefaultState()
	want.CameraRoll = 45
	want.Tonemapping = false
	want.Gamma = 2.4
	assert.Equal(t, want, s)
}

func TestDecodeStateClamps(t *testing.T) {
	s, err := DecodeState([]byte("camera_roll = -300.0\nspin = 4.0\n"), DefaultState())
	require.NoError(t, err)
	assert.Equal(t, float32(-180), s.CameraRoll)
	assert.Equal(t, float32(1), s.Spin)
}

func TestDecodeStateErrors(t *testing.T) {
	base := DefaultState()

	s, err := DecodeState([]byte("gama = 2.0\n"), base)
	assert.ErrorContains(t, err, "gama")
	assert.Equal(t, base, s)

	_, err = DecodeState([]byte("gamma = 0.0\n"), base)
	assert.ErrorContains(t, err, "gamma must be positive")

	_, err = DecodeState([]byte("gamma = nan\n"), base)
	assert.ErrorContains(t, err, "finite")

	_, err = DecodeState([]byte("gamma = [1"), base)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLoadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	require.NoError(t, os.WriteFile(path, []byte("bloom_strength = 0.5\n"), 0o644))

	s, err := LoadState(path, DefaultState())
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), s.BloomStrength)

	_, err = LoadState(filepath.Join(t.TempDir(), "missing.toml"), DefaultState())
	assert.ErrorContains(t, err, "failed to read config")
}

func TestClampInfinity(t *testing.T) {
	s := DefaultState()
	s.Saturation = math32.Inf(1)
	assert.Error(t, s.Validate())
	s.Clamp()
	assert.Equal(t, float32(2), s.Saturation)
}

func TestToggleKey(t *testing.T) {
	s := DefaultState()
	name, on, ok := s.ToggleKey('L')
	require.True(t, ok)
	assert.Equal(t, "gravitational_lensing", name)
	assert.False(t, on)
	assert.False(t, s.GravitationalLensing)

	_, on, _ = s.ToggleKey('l')
	assert.True(t, on)

	for _, k := range "BMFVDPT" {
		_, _, ok := s.ToggleKey(k)
		assert.True(t, ok, string(k))
	}
	assert.False(t, s.RenderBlackHole)
	assert.True(t, s.MouseControl)
	assert.True(t, s.TopView)
	assert.False(t, s.Tonemapping)

	_, _, ok = s.ToggleKey('Q')
	assert.False(t, ok)
}
