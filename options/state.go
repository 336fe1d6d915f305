package options

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/chewxy/math32"
	"github.com/pelletier/go-toml/v2"
)

// AppState holds the render settings read once per frame by the renderer.
type AppState struct {
	GravitationalLensing bool `toml:"gravitational_lensing"`
	RenderBlackHole      bool `toml:"render_black_hole"`
	MouseControl         bool `toml:"mouse_control"`
	FrontView            bool `toml:"front_view"`
	TopView              bool `toml:"top_view"`
	DiskEnabled          bool `toml:"adisk_enabled"`
	DiskParticle         bool `toml:"adisk_particle"`
	Tonemapping          bool `toml:"tonemapping_enabled"`

	CameraRoll       float32 `toml:"camera_roll"`
	DiskDensityV     float32 `toml:"adisk_density_v"`
	DiskDensityH     float32 `toml:"adisk_density_h"`
	DiskHeight       float32 `toml:"adisk_height"`
	DiskLit          float32 `toml:"adisk_lit"`
	DiskNoiseLOD     float32 `toml:"adisk_noise_lod"`
	DiskNoiseScale   float32 `toml:"adisk_noise_scale"`
	DiskSpeed        float32 `toml:"adisk_speed"`
	BloomStrength    float32 `toml:"bloom_strength"`
	FlareStrength    float32 `toml:"flare_strength"`
	ChromaAberration float32 `toml:"chroma_aberration"`
	GrainStrength    float32 `toml:"grain_strength"`
	Saturation       float32 `toml:"saturation"`
	Gamma            float32 `toml:"gamma"`
	Spin             float32 `toml:"spin"`

	// Pointer position in framebuffer pixels.
	MouseX float32 `toml:"mouse_x"`
	MouseY float32 `toml:"mouse_y"`
}

func DefaultState() AppState {
	return AppState{
		GravitationalLensing: true,
		RenderBlackHole:      true,
		MouseControl:         false,
		FrontView:            true,
		TopView:              false,
		DiskEnabled:          true,
		DiskParticle:         true,
		Tonemapping:          true,

		CameraRoll:       -10.0,
		DiskDensityV:     2.0,
		DiskDensityH:     4.0,
		DiskHeight:       0.55,
		DiskLit:          0.20,
		DiskNoiseLOD:     5.0,
		DiskNoiseScale:   0.8,
		DiskSpeed:        0.5,
		BloomStrength:    0.08,
		FlareStrength:    0.10,
		ChromaAberration: 0.003,
		GrainStrength:    0.01,
		Saturation:       1.30,
		Gamma:            2.0,
		Spin:             0.20,

		MouseX: 400.0,
		MouseY: 300.0,
	}
}

type bounds struct {
	name   string
	field  func(*AppState) *float32
	lo, hi float32
}

// ranges are the slider limits of each continuous setting.
var ranges = []bounds{
	{"camera_roll", func(s *AppState) *float32 { return &s.CameraRoll }, -180, 180},
	{"adisk_density_v", func(s *AppState) *float32 { return &s.DiskDensityV }, 0.1, 10},
	{"adisk_density_h", func(s *AppState) *float32 { return &s.DiskDensityH }, 0.1, 10},
	{"adisk_height", func(s *AppState) *float32 { return &s.DiskHeight }, 0, 2},
	{"adisk_lit", func(s *AppState) *float32 { return &s.DiskLit }, 0, 2},
	{"adisk_noise_lod", func(s *AppState) *float32 { return &s.DiskNoiseLOD }, 1, 10},
	{"adisk_noise_scale", func(s *AppState) *float32 { return &s.DiskNoiseScale }, 0.1, 5},
	{"adisk_speed", func(s *AppState) *float32 { return &s.DiskSpeed }, 0, 5},
	{"bloom_strength", func(s *AppState) *float32 { return &s.BloomStrength }, 0, 1},
	{"flare_strength", func(s *AppState) *float32 { return &s.FlareStrength }, 0, 1},
	{"chroma_aberration", func(s *AppState) *float32 { return &s.ChromaAberration }, 0, 0.02},
	{"grain_strength", func(s *AppState) *float32 { return &s.GrainStrength }, 0, 0.05},
	{"saturation", func(s *AppState) *float32 { return &s.Saturation }, 0.5, 2},
	{"gamma", func(s *AppState) *float32 { return &s.Gamma }, 0.1, 5},
	{"spin", func(s *AppState) *float32 { return &s.Spin }, 0, 1},
}

// Validate rejects values no clamp can repair.
func (s *AppState) Validate() error {
	var errs []error
	for _, r := range ranges {
		v := *r.field(s)
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s is not a finite number", r.name))
		}
	}
	if s.Gamma <= 0 {
		errs = append(errs, fmt.Errorf("gamma must be positive, got %g", s.Gamma))
	}
	if math32.IsNaN(s.MouseX) || math32.IsNaN(s.MouseY) {
		errs = append(errs, errors.New("mouse position is not a number"))
	}
	return errors.Join(errs...)
}

// Clamp limits every continuous setting to its slider range.
func (s *AppState) Clamp() {
	for _, r := range ranges {
		p := r.field(s)
		*p = math32.Max(r.lo, math32.Min(r.hi, *p))
	}
}

// ToggleKey flips the switch bound to a keyboard letter and returns the
// setting name and its new value. ok is false for unbound letters.
func (s *AppState) ToggleKey(key rune) (name string, on bool, ok bool) {
	var p *bool
	switch key {
	case 'L', 'l':
		name, p = "gravitational_lensing", &s.GravitationalLensing
	case 'B', 'b':
		name, p = "render_black_hole", &s.RenderBlackHole
	case 'M', 'm':
		name, p = "mouse_control", &s.MouseControl
	case 'F', 'f':
		name, p = "front_view", &s.FrontView
	case 'V', 'v':
		name, p = "top_view", &s.TopView
	case 'D', 'd':
		name, p = "adisk_enabled", &s.DiskEnabled
	case 'P', 'p':
		name, p = "adisk_particle", &s.DiskParticle
	case 'T', 't':
		name, p = "tonemapping_enabled", &s.Tonemapping
	default:
		return "", false, false
	}
	*p = !*p
	return name, *p, true
}

// LoadState overlays the TOML document at path on base. Keys missing from
// the document keep their base value; unknown keys are an error.
func LoadState(path string, base AppState) (AppState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config: %w", err)
	}
	return DecodeState(data, base)
}

func DecodeState(data []byte, base AppState) (AppState, error) {
	state := base
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&state); err != nil {
		var missing *toml.StrictMissingError
		if errors.As(err, &missing) {
			return base, fmt.Errorf("unknown config keys: %s", missing.String())
		}
		return base, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := state.Validate(); err != nil {
		return base, fmt.Errorf("invalid config: %w", err)
	}
	state.Clamp()
	return state, nil
}
