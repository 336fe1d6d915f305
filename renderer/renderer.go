package renderer

import (
	"fmt"

	"github.com/richinsley/goblackhole/gpu"
	"github.com/richinsley/goblackhole/logger"
	"github.com/richinsley/goblackhole/options"
	"github.com/richinsley/goblackhole/shader"
	"go.uber.org/zap"
)

// PassID names each stage of a frame.
type PassID int

const (
	PassMain PassID = iota
	PassBrightness
	PassLensFlare
	PassDownsample
	PassUpsample
	PassComposite
	PassTonemap
	PassPassthrough
	NumPasses
)

var passPrograms = [NumPasses]string{
	PassMain:        shader.Main,
	PassBrightness:  shader.Brightness,
	PassLensFlare:   shader.LensFlare,
	PassDownsample:  shader.Downsample,
	PassUpsample:    shader.Upsample,
	PassComposite:   shader.Composite,
	PassTonemap:     shader.Tonemapping,
	PassPassthrough: shader.Passthrough,
}

func (id PassID) String() string {
	if id < 0 || id >= NumPasses {
		return fmt.Sprintf("PassID(%d)", int(id))
	}
	return passPrograms[id]
}

// Assets are the loaded programs and the paths of the static textures.
type Assets struct {
	Programs shader.Set
	ColorMap string
	Skybox   string
}

type statics struct {
	colorMap gpu.Texture
	noise    gpu.Texture
	galaxy   gpu.Texture
}

// Renderer owns every intermediate target and runs the fixed pass sequence
// of a frame. It must be used from the thread that owns the GL context.
type Renderer struct {
	dev    gpu.Device
	quad   *gpu.Quad
	passes [NumPasses]Pass
	statics

	scene      *gpu.Target // A
	brightness *gpu.Target // B
	flare      *gpu.Target // C
	composite  *gpu.Target // D
	tonemapped *gpu.Target // E
	bloom      BloomChain

	width, height int
	// sized is set once a Resize succeeds, including to a zero size.
	sized bool
}

// New compiles every pass, loads the static textures and sizes the targets.
func New(dev gpu.Device, a Assets, width, height int) (*Renderer, error) {
	r := &Renderer{dev: dev}
	var err error

	r.quad, err = gpu.NewQuad(dev)
	if err != nil {
		return nil, err
	}

	for id := PassID(0); id < NumPasses; id++ {
		prog, ok := a.Programs[passPrograms[id]]
		if !ok {
			r.Shutdown()
			return nil, &gpu.AssetNotFoundError{Path: passPrograms[id]}
		}
		pass, err := NewRenderPass(dev, prog, r.quad.VAO)
		if err != nil {
			r.Shutdown()
			return nil, fmt.Errorf("failed to create %s pass: %w", id, err)
		}
		r.passes[id] = pass
	}

	if r.colorMap, err = gpu.LoadTexture2D(dev, a.ColorMap); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.galaxy, err = gpu.LoadCubemap(dev, a.Skybox); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.noise, err = gpu.CreateNoiseTexture3D(dev); err != nil {
		r.Shutdown()
		return nil, err
	}

	if err := r.Resize(width, height); err != nil {
		r.Shutdown()
		return nil, err
	}
	logger.Log.Info("renderer ready", zap.Int("width", width), zap.Int("height", height))
	return r, nil
}

func newRenderer(dev gpu.Device, passes [NumPasses]Pass, s statics) *Renderer {
	return &Renderer{dev: dev, passes: passes, statics: s}
}

// Size is the current viewport size.
func (r *Renderer) Size() (int, int) { return r.width, r.height }

// BloomLevels is the current bloom chain length.
func (r *Renderer) BloomLevels() int { return r.bloom.Len() }

func (r *Renderer) destroyTargets() {
	for _, t := range []**gpu.Target{&r.scene, &r.brightness, &r.flare, &r.composite, &r.tonemapped} {
		(*t).Destroy(r.dev)
		*t = nil
	}
	r.bloom.Destroy(r.dev)
}

// Resize rebuilds every size-dependent target. Resizing to the current size
// does nothing. A zero dimension leaves the renderer without targets and
// Render draws nothing until the next Resize.
func (r *Renderer) Resize(width, height int) error {
	if r.sized && width == r.width && height == r.height {
		return nil
	}
	r.destroyTargets()
	r.width, r.height = width, height
	r.sized = false

	if width <= 0 || height <= 0 {
		r.width, r.height = max(width, 0), max(height, 0)
		r.sized = true
		logger.Log.Info("viewport collapsed", zap.Int("width", width), zap.Int("height", height))
		return nil
	}

	if err := r.createTargets(width, height); err != nil {
		r.destroyTargets()
		r.width, r.height = 0, 0
		return fmt.Errorf("failed to resize to %dx%d: %w", width, height, err)
	}
	r.sized = true
	logger.Log.Info("resized render targets",
		zap.Int("width", width), zap.Int("height", height), zap.Int("bloomLevels", r.bloom.Len()))
	return nil
}

func (r *Renderer) createTargets(width, height int) error {
	var err error
	if r.scene, err = gpu.NewTarget(r.dev, width, height); err != nil {
		return err
	}
	if r.brightness, err = gpu.NewTarget(r.dev, width, height); err != nil {
		return err
	}
	if r.flare, err = gpu.NewTarget(r.dev, width, height); err != nil {
		return err
	}
	if r.bloom, err = NewBloomChain(r.dev, width, height); err != nil {
		return err
	}
	if r.composite, err = gpu.NewTarget(r.dev, width, height); err != nil {
		return err
	}
	r.tonemapped, err = gpu.NewTarget(r.dev, width, height)
	return err
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func mustTarget(t *gpu.Target, name string) *gpu.Target {
	if t == nil {
		panic(fmt.Sprintf("renderer: %s target missing; Render called without a successful Resize", name))
	}
	return t
}

func tex(name string, t *gpu.Target) Sampler {
	return Sampler{Name: name, Texture: t.Texture}
}

// Render draws one frame to the visible surface. It panics if the targets
// have not been created by a successful Resize.
func (r *Renderer) Render(state *options.AppState, time float32) {
	r.RenderTo(gpu.DefaultFramebuffer, state, time)
}

// RenderTo is Render with the final pass drawn into out, which must be at
// least the current size.
func (r *Renderer) RenderTo(out gpu.Framebuffer, state *options.AppState, time float32) {
	if r.sized && (r.width == 0 || r.height == 0) {
		return
	}
	scene := mustTarget(r.scene, "scene")
	brightness := mustTarget(r.brightness, "brightness")
	flare := mustTarget(r.flare, "lens flare")
	composite := mustTarget(r.composite, "composite")
	tonemapped := mustTarget(r.tonemapped, "tonemapped")
	w, h := r.width, r.height

	// state left behind by overlay rendering
	r.dev.Disable(gpu.ScissorTest, gpu.Blend, gpu.CullFace)

	r.passes[PassMain].Render(scene.Framebuffer, w, h, Inputs{
		Floats: []Float{
			{"time", time},
			{"mouseX", state.MouseX},
			{"mouseY", state.MouseY},
			{"cameraRoll", state.CameraRoll},
			{"gravatationalLensing", flag(state.GravitationalLensing)},
			{"renderBlackHole", flag(state.RenderBlackHole)},
			{"mouseControl", flag(state.MouseControl)},
			{"fovScale", 1.0},
			{"frontView", flag(state.FrontView)},
			{"topView", flag(state.TopView)},
			{"adiskEnabled", flag(state.DiskEnabled)},
			{"adiskParticle", flag(state.DiskParticle)},
			{"adiskDensityV", state.DiskDensityV},
			{"adiskDensityH", state.DiskDensityH},
			{"adiskHeight", state.DiskHeight},
			{"adiskLit", state.DiskLit},
			{"adiskNoiseLOD", state.DiskNoiseLOD},
			{"adiskNoiseScale", state.DiskNoiseScale},
			{"adiskSpeed", state.DiskSpeed},
			{"spin", state.Spin},
		},
		Textures:   []Sampler{{"colorMap", r.colorMap}},
		Textures3D: []Sampler{{"noiseTex", r.noise}},
		Cubemaps:   []Sampler{{"galaxy", r.galaxy}},
	})

	r.passes[PassBrightness].Render(brightness.Framebuffer, w, h, Inputs{
		Textures: []Sampler{tex("texture0", scene)},
	})

	r.passes[PassLensFlare].Render(flare.Framebuffer, w, h, Inputs{
		Textures: []Sampler{tex("texture0", brightness)},
	})

	n := r.bloom.Len()
	for i := 0; i < n; i++ {
		src := brightness
		if i > 0 {
			src = r.bloom.Down[i-1]
		}
		dst := r.bloom.Down[i]
		r.passes[PassDownsample].Render(dst.Framebuffer, dst.Width, dst.Height, Inputs{
			Textures: []Sampler{tex("texture0", src)},
		})
	}

	for i := n - 1; i >= 0; i-- {
		coarse := r.bloom.Down[i]
		if i < n-1 {
			coarse = r.bloom.Up[i+1]
		}
		skip := brightness
		if i > 0 {
			skip = r.bloom.Down[i-1]
		}
		dst := r.bloom.Up[i]
		r.passes[PassUpsample].Render(dst.Framebuffer, dst.Width, dst.Height, Inputs{
			Textures: []Sampler{tex("texture0", coarse), tex("texture1", skip)},
		})
	}

	bloom := scene
	if n > 0 {
		bloom = r.bloom.Up[0]
	}
	r.passes[PassComposite].Render(composite.Framebuffer, w, h, Inputs{
		Floats: []Float{
			{"tone", 1.0},
			{"bloomStrength", state.BloomStrength},
			{"flareStrength", state.FlareStrength},
		},
		Textures: []Sampler{tex("texture0", scene), tex("texture1", bloom), tex("texture2", flare)},
	})

	r.passes[PassTonemap].Render(tonemapped.Framebuffer, w, h, Inputs{
		Floats: []Float{
			{"tonemappingEnabled", flag(state.Tonemapping)},
			{"gamma", state.Gamma},
			{"time", time},
			{"chromaStrength", state.ChromaAberration},
			{"grainStrength", state.GrainStrength},
			{"saturation", state.Saturation},
		},
		Textures: []Sampler{tex("texture0", composite)},
	})

	r.passes[PassPassthrough].Render(out, w, h, Inputs{
		Textures: []Sampler{tex("texture0", tonemapped)},
	})
}

// ReadPixels returns the current-size region of fb as RGBA8 rows, bottom
// row first.
func (r *Renderer) ReadPixels(fb gpu.Framebuffer) []byte {
	r.dev.BindFramebuffer(fb)
	pixels := r.dev.ReadPixels(r.width, r.height)
	r.dev.BindFramebuffer(gpu.DefaultFramebuffer)
	return pixels
}

// Shutdown releases every GPU resource. It is safe to call more than once
// and on a partially constructed renderer.
func (r *Renderer) Shutdown() {
	r.destroyTargets()
	r.sized = false
	r.width, r.height = 0, 0

	for _, t := range []*gpu.Texture{&r.colorMap, &r.noise, &r.galaxy} {
		if *t != 0 {
			r.dev.DeleteTexture(*t)
			*t = 0
		}
	}
	for i, p := range r.passes {
		if p != nil {
			p.Destroy()
			r.passes[i] = nil
		}
	}
	r.quad.Destroy(r.dev)
	r.quad = nil
}
