package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/richinsley/goblackhole/gpu"
	"github.com/richinsley/goblackhole/gpu/gputest"
	"github.com/richinsley/goblackhole/options"
	"github.com/richinsley/goblackhole/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invocation struct {
	pass   PassID
	target gpu.Framebuffer
	width  int
	height int
	in     Inputs
}

type recordingPass struct {
	id        PassID
	log       *[]invocation
	destroyed int
}

func (p *recordingPass) Render(target gpu.Framebuffer, width, height int, in Inputs) {
	*p.log = append(*p.log, invocation{p.id, target, width, height, in})
}

func (p *recordingPass) Destroy() { p.destroyed++ }

type harness struct {
	dev    *gputest.Device
	r      *Renderer
	passes [NumPasses]*recordingPass
	log    []invocation
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{dev: gputest.New()}
	var passes [NumPasses]Pass
	for id := PassID(0); id < NumPasses; id++ {
		h.passes[id] = &recordingPass{id: id, log: &h.log}
		passes[id] = h.passes[id]
	}
	var s statics
	for _, tex := range []*gpu.Texture{&s.colorMap, &s.noise, &s.galaxy} {
		var err error
		*tex, err = h.dev.CreateTexture()
		require.NoError(t, err)
	}
	h.r = newRenderer(h.dev, passes, s)
	return h
}

func (h *harness) frame() []invocation {
	h.log = nil
	state := options.DefaultState()
	h.r.Render(&state, 1.5)
	return h.log
}

func names(samplers []Sampler) []string {
	out := make([]string, len(samplers))
	for i, s := range samplers {
		out[i] = s.Name
	}
	return out
}

func textures(samplers []Sampler) []gpu.Texture {
	out := make([]gpu.Texture, len(samplers))
	for i, s := range samplers {
		out[i] = s.Texture
	}
	return out
}

func TestFrameTrace(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(64, 32))
	r := h.r
	n := BloomChainLength(64, 32)
	require.Equal(t, 5, n)

	calls := h.frame()
	require.Len(t, calls, 6+2*n)

	var order []PassID
	for _, c := range calls {
		order = append(order, c.pass)
	}
	want := []PassID{PassMain, PassBrightness, PassLensFlare}
	for i := 0; i < n; i++ {
		want = append(want, PassDownsample)
	}
	for i := 0; i < n; i++ {
		want = append(want, PassUpsample)
	}
	want = append(want, PassComposite, PassTonemap, PassPassthrough)
	assert.Equal(t, want, order)

	main := calls[0]
	assert.Equal(t, r.scene.Framebuffer, main.target)
	assert.Equal(t, []gpu.Texture{r.colorMap}, textures(main.in.Textures))
	assert.Equal(t, []gpu.Texture{r.noise}, textures(main.in.Textures3D))
	assert.Equal(t, []gpu.Texture{r.galaxy}, textures(main.in.Cubemaps))
	assert.Equal(t, []string{"colorMap"}, names(main.in.Textures))
	assert.Equal(t, []string{"noiseTex"}, names(main.in.Textures3D))
	assert.Equal(t, []string{"galaxy"}, names(main.in.Cubemaps))

	assert.Equal(t, r.brightness.Framebuffer, calls[1].target)
	assert.Equal(t, []gpu.Texture{r.scene.Texture}, textures(calls[1].in.Textures))
	assert.Equal(t, r.flare.Framebuffer, calls[2].target)
	assert.Equal(t, []gpu.Texture{r.brightness.Texture}, textures(calls[2].in.Textures))

	for i := 0; i < n; i++ {
		c := calls[3+i]
		src := r.brightness.Texture
		if i > 0 {
			src = r.bloom.Down[i-1].Texture
		}
		assert.Equal(t, r.bloom.Down[i].Framebuffer, c.target, "down %d", i)
		assert.Equal(t, []gpu.Texture{src}, textures(c.in.Textures), "down %d", i)
		assert.Equal(t, [2]int{64 >> (i + 1), 32 >> (i + 1)}, [2]int{c.width, c.height}, "down %d", i)
	}

	for k := 0; k < n; k++ {
		i := n - 1 - k
		c := calls[3+n+k]
		coarse := r.bloom.Down[n-1].Texture
		if i < n-1 {
			coarse = r.bloom.Up[i+1].Texture
		}
		skip := r.brightness.Texture
		if i > 0 {
			skip = r.bloom.Down[i-1].Texture
		}
		assert.Equal(t, r.bloom.Up[i].Framebuffer, c.target, "up %d", i)
		assert.Equal(t, []string{"texture0", "texture1"}, names(c.in.Textures))
		assert.Equal(t, []gpu.Texture{coarse, skip}, textures(c.in.Textures), "up %d", i)
		assert.Equal(t, [2]int{64 >> i, 32 >> i}, [2]int{c.width, c.height}, "up %d", i)
	}

	comp := calls[3+2*n]
	assert.Equal(t, r.composite.Framebuffer, comp.target)
	assert.Equal(t, []string{"texture0", "texture1", "texture2"}, names(comp.in.Textures))
	assert.Equal(t, []gpu.Texture{r.scene.Texture, r.bloom.Up[0].Texture, r.flare.Texture}, textures(comp.in.Textures))

	tone := calls[4+2*n]
	assert.Equal(t, r.tonemapped.Framebuffer, tone.target)
	assert.Equal(t, []gpu.Texture{r.composite.Texture}, textures(tone.in.Textures))

	last := calls[len(calls)-1]
	assert.Equal(t, gpu.DefaultFramebuffer, last.target, "final pass draws to the visible surface")
	assert.Equal(t, []gpu.Texture{r.tonemapped.Texture}, textures(last.in.Textures))
	assert.Equal(t, [2]int{64, 32}, [2]int{last.width, last.height})

	for _, c := range calls[:len(calls)-1] {
		assert.NotEqual(t, gpu.DefaultFramebuffer, c.target, "%s", c.pass)
	}
}

func TestFrameTraceWithoutBloom(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(1, 1))
	require.Zero(t, h.r.BloomLevels())

	calls := h.frame()
	require.Len(t, calls, 6)
	comp := calls[3]
	require.Equal(t, PassComposite, comp.pass)
	scene := h.r.scene.Texture
	assert.Equal(t, []gpu.Texture{scene, scene, h.r.flare.Texture}, textures(comp.in.Textures),
		"scene stands in for bloom when the chain is empty")
}

func TestFrameUniforms(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(16, 16))

	state := options.DefaultState()
	state.TopView = true
	state.MouseControl = true
	state.GravitationalLensing = false
	state.Tonemapping = false
	state.MouseX, state.MouseY = 7, 9
	h.r.Render(&state, 3.25)

	floats := func(in Inputs) map[string]float32 {
		m := map[string]float32{}
		for _, f := range in.Floats {
			m[f.Name] = f.Value
		}
		return m
	}

	main := h.log[0].in
	var order []string
	for _, f := range main.Floats {
		order = append(order, f.Name)
	}
	assert.Equal(t, []string{
		"time", "mouseX", "mouseY", "cameraRoll", "gravatationalLensing", "renderBlackHole",
		"mouseControl", "fovScale", "frontView", "topView", "adiskEnabled", "adiskParticle",
		"adiskDensityV", "adiskDensityH", "adiskHeight", "adiskLit", "adiskNoiseLOD",
		"adiskNoiseScale", "adiskSpeed", "spin",
	}, order)

	m := floats(main)
	assert.Equal(t, float32(3.25), m["time"])
	assert.Equal(t, float32(7), m["mouseX"])
	assert.Equal(t, float32(9), m["mouseY"])
	assert.Equal(t, float32(0), m["gravatationalLensing"])
	assert.Equal(t, float32(1), m["renderBlackHole"])
	assert.Equal(t, float32(1), m["mouseControl"])
	assert.Equal(t, float32(1), m["topView"])
	assert.Equal(t, float32(1), m["fovScale"])
	assert.Equal(t, state.CameraRoll, m["cameraRoll"])
	assert.Equal(t, state.Spin, m["spin"])

	comp := floats(h.log[len(h.log)-3].in)
	assert.Equal(t, map[string]float32{"tone": 1, "bloomStrength": state.BloomStrength, "flareStrength": state.FlareStrength}, comp)

	tone := floats(h.log[len(h.log)-2].in)
	assert.Equal(t, map[string]float32{
		"tonemappingEnabled": 0,
		"gamma":              state.Gamma,
		"time":               3.25,
		"chromaStrength":     state.ChromaAberration,
		"grainStrength":      state.GrainStrength,
		"saturation":         state.Saturation,
	}, tone)
}

func TestRenderResetsOverlayState(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(8, 8))
	for _, c := range []gpu.Capability{gpu.ScissorTest, gpu.Blend, gpu.CullFace} {
		h.dev.Enable(c)
	}
	h.frame()
	for _, c := range []gpu.Capability{gpu.ScissorTest, gpu.Blend, gpu.CullFace} {
		assert.True(t, h.dev.Disabled(c), "capability %d", c)
	}
}

func TestResizeIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(64, 32))
	before := []gpu.Target{*h.r.scene, *h.r.brightness, *h.r.flare, *h.r.composite, *h.r.tonemapped}
	down := slices.Clone(h.r.bloom.Down)

	h.dev.Reset()
	require.NoError(t, h.r.Resize(64, 32))
	assert.Empty(t, h.dev.Calls, "no resource churn")
	after := []gpu.Target{*h.r.scene, *h.r.brightness, *h.r.flare, *h.r.composite, *h.r.tonemapped}
	assert.Equal(t, before, after)
	assert.Equal(t, down, h.r.bloom.Down)
}

type size struct{ w, h int }

func liveSizes(t *testing.T, dev *gputest.Device) []size {
	t.Helper()
	var out []size
	for _, fb := range dev.LiveFramebuffers() {
		tex, ok := dev.Attachment(fb)
		require.True(t, ok)
		info, ok := dev.Texture(tex)
		require.True(t, ok, "framebuffer %d has a live attachment", fb)
		out = append(out, size{info.Width, info.Height})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].w != out[j].w {
			return out[i].w < out[j].w
		}
		return out[i].h < out[j].h
	})
	return out
}

func expectedSizes(w, h int) []size {
	out := []size{{w, h}, {w, h}, {w, h}, {w, h}, {w, h}}
	for i := 0; i < BloomChainLength(w, h); i++ {
		out = append(out, size{w >> (i + 1), h >> (i + 1)}, size{w >> i, h >> i})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].w != out[j].w {
			return out[i].w < out[j].w
		}
		return out[i].h < out[j].h
	})
	return out
}

func TestResizeRebuildsEverything(t *testing.T) {
	tests := []struct{ from, to size }{
		{size{64, 32}, size{100, 40}},
		{size{1200, 800}, size{3, 2}},
		{size{2, 2}, size{1920, 1080}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d to %dx%d", tt.from.w, tt.from.h, tt.to.w, tt.to.h), func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.r.Resize(tt.from.w, tt.from.h))
			assert.Equal(t, expectedSizes(tt.from.w, tt.from.h), liveSizes(t, h.dev))

			require.NoError(t, h.r.Resize(tt.to.w, tt.to.h))
			assert.Equal(t, expectedSizes(tt.to.w, tt.to.h), liveSizes(t, h.dev))
			assert.Len(t, h.dev.LiveTextures(), len(h.dev.LiveFramebuffers())+3, "only targets and statics remain")
			assert.Zero(t, h.dev.DoubleDeletes)
			assert.Equal(t, BloomChainLength(tt.to.w, tt.to.h), h.r.BloomLevels())
			w, hh := h.r.Size()
			assert.Equal(t, tt.to, size{w, hh})
		})
	}
}

func TestResizeTeardownOrder(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(32, 32))
	old := []*gpu.Target{h.r.scene, h.r.brightness, h.r.flare, h.r.composite, h.r.tonemapped}
	old = append(old, h.r.bloom.Down...)
	old = append(old, h.r.bloom.Up...)
	type pair struct {
		fb  gpu.Framebuffer
		tex gpu.Texture
	}
	var pairs []pair
	for _, o := range old {
		pairs = append(pairs, pair{o.Framebuffer, o.Texture})
	}

	h.dev.Reset()
	require.NoError(t, h.r.Resize(16, 16))
	for _, p := range pairs {
		fbAt := slices.Index(h.dev.Calls, fmt.Sprintf("DeleteFramebuffer %d", p.fb))
		texAt := slices.Index(h.dev.Calls, fmt.Sprintf("DeleteTexture %d", p.tex))
		require.GreaterOrEqual(t, fbAt, 0)
		require.GreaterOrEqual(t, texAt, 0)
		assert.Less(t, fbAt, texAt, "framebuffer %d deleted before texture %d", p.fb, p.tex)
	}
}

func TestResizeZero(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(32, 32))
	require.NoError(t, h.r.Resize(0, 32))
	assert.Empty(t, h.dev.LiveFramebuffers())
	assert.Len(t, h.dev.LiveTextures(), 3)

	assert.NotPanics(t, func() { h.frame() })
	assert.Empty(t, h.log, "nothing is drawn at zero size")

	h.dev.Reset()
	require.NoError(t, h.r.Resize(0, 32))
	assert.Empty(t, h.dev.Calls)

	require.NoError(t, h.r.Resize(32, 32))
	assert.Len(t, h.frame(), 6+2*BloomChainLength(32, 32))
}

func TestRenderToOffscreenOutput(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(40, 30))
	out, err := gpu.NewTargetFormat(h.dev, 40, 30, gpu.RGBA8)
	require.NoError(t, err)

	h.log = nil
	state := options.DefaultState()
	h.r.RenderTo(out.Framebuffer, &state, 0.25)
	require.Len(t, h.log, 6+2*h.r.BloomLevels())
	assert.Equal(t, out.Framebuffer, h.log[len(h.log)-1].target)
	for _, c := range h.log {
		assert.NotEqual(t, gpu.DefaultFramebuffer, c.target, "%s", c.pass)
	}

	h.dev.Reset()
	pixels := h.r.ReadPixels(out.Framebuffer)
	assert.Len(t, pixels, 40*30*4)
	assert.Equal(t, []string{fmt.Sprintf("ReadPixels %d 40x30", out.Framebuffer)}, h.dev.Calls)
	assert.Equal(t, gpu.DefaultFramebuffer, h.dev.BoundFramebuffer())
}

func TestRenderBeforeResizePanics(t *testing.T) {
	h := newHarness(t)
	assert.PanicsWithValue(t,
		"renderer: scene target missing; Render called without a successful Resize",
		func() { h.frame() })
}

func TestResizeFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(32, 32))

	h.dev.IncompleteStatus = 0x8CD6
	err := h.r.Resize(64, 64)
	require.ErrorIs(t, err, gpu.ErrFramebufferIncomplete)
	assert.Contains(t, err.Error(), "64x64")
	assert.Empty(t, h.dev.LiveFramebuffers())
	assert.Len(t, h.dev.LiveTextures(), 3)
	assert.Panics(t, func() { h.frame() })

	h.dev.IncompleteStatus = 0
	require.NoError(t, h.r.Resize(64, 64), "a failed size is retried")
	assert.Equal(t, expectedSizes(64, 64), liveSizes(t, h.dev))
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Resize(32, 32))

	h.r.Shutdown()
	assert.Empty(t, h.dev.LiveFramebuffers())
	assert.Empty(t, h.dev.LiveTextures())
	for _, p := range h.passes {
		assert.Equal(t, 1, p.destroyed, "%s", p.id)
	}

	h.r.Shutdown()
	assert.Zero(t, h.dev.DoubleDeletes)
	for _, p := range h.passes {
		assert.Equal(t, 1, p.destroyed)
	}
	assert.Panics(t, func() { h.frame() })
}

func TestPassIDString(t *testing.T) {
	assert.Equal(t, shader.Main, PassMain.String())
	assert.Equal(t, shader.Passthrough, PassPassthrough.String())
	assert.Equal(t, "PassID(42)", PassID(42).String())
}

func fragmentFor(uniforms ...string) string {
	var b strings.Builder
	b.WriteString("#version 330 core\nuniform vec2 resolution;\n")
	for _, u := range uniforms {
		b.WriteString("uniform " + u + ";\n")
	}
	b.WriteString("out vec4 fragColor;\nvoid main() { fragColor = vec4(1.0); }\n")
	return b.String()
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func testAssets(t *testing.T) Assets {
	t.Helper()
	dir := t.TempDir()
	colorMap := filepath.Join(dir, "color_map.png")
	writeImage(t, colorMap, 16, 1)
	sky := filepath.Join(dir, "skybox")
	require.NoError(t, os.Mkdir(sky, 0o755))
	for _, face := range gpu.CubeFaces {
		writeImage(t, filepath.Join(sky, face.File), 4, 4)
	}

	mainUniforms := []string{
		"float time", "float mouseX", "float mouseY", "float cameraRoll",
		"float gravatationalLensing", "float renderBlackHole", "float mouseControl",
		"float fovScale", "float frontView", "float topView", "float adiskEnabled",
		"float adiskParticle", "float adiskDensityV", "float adiskDensityH",
		"float adiskHeight", "float adiskLit", "float adiskNoiseLOD",
		"float adiskNoiseScale", "float adiskSpeed", "float spin",
		"sampler2D colorMap", "sampler3D noiseTex", "samplerCube galaxy",
	}
	fragments := map[string]string{
		shader.Main:        fragmentFor(mainUniforms...),
		shader.Brightness:  fragmentFor("sampler2D texture0"),
		shader.LensFlare:   fragmentFor("sampler2D texture0"),
		shader.Downsample:  fragmentFor("sampler2D texture0"),
		shader.Upsample:    fragmentFor("sampler2D texture0", "sampler2D texture1"),
		shader.Composite:   fragmentFor("sampler2D texture0", "sampler2D texture1", "sampler2D texture2", "float tone", "float bloomStrength", "float flareStrength"),
		shader.Tonemapping: fragmentFor("sampler2D texture0", "float tonemappingEnabled", "float gamma", "float time", "float chromaStrength", "float grainStrength", "float saturation"),
		shader.Passthrough: fragmentFor("sampler2D texture0"),
	}
	set := shader.Set{}
	for name, src := range fragments {
		set[name] = &shader.Program{Name: name, Vertex: testVertex, Fragment: src}
	}
	return Assets{Programs: set, ColorMap: colorMap, Skybox: sky}
}

func TestNew(t *testing.T) {
	if testing.Short() {
		t.Skip("generates the full noise volume")
	}
	dev := gputest.New()
	r, err := New(dev, testAssets(t), 120, 80)
	require.NoError(t, err)
	assert.Equal(t, 8, dev.LivePrograms())
	assert.Equal(t, 6, BloomChainLength(120, 80))
	assert.Equal(t, expectedSizes(120, 80), liveSizes(t, dev))

	state := options.DefaultState()
	r.Render(&state, 0.5)
	require.Len(t, dev.Draws, 6+2*r.BloomLevels())

	main := dev.Draws[0]
	assert.Len(t, main.Floats, 20)
	assert.Equal(t, float32(0.5), main.Floats["time"])
	assert.Equal(t, map[string]int32{"colorMap": 0, "noiseTex": 1, "galaxy": 2}, main.Ints)
	assert.Equal(t, gpu.Texture3D, main.Units[1].Kind)
	assert.Equal(t, gpu.TextureCube, main.Units[2].Kind)

	last := dev.Draws[len(dev.Draws)-1]
	assert.Equal(t, gpu.DefaultFramebuffer, last.Framebuffer)
	assert.Equal(t, [2]float32{120, 80}, last.Vec2["resolution"])

	out, err := gpu.NewTargetFormat(dev, 120, 80, gpu.RGBA8)
	require.NoError(t, err)
	dev.Draws = nil
	r.RenderTo(out.Framebuffer, &state, 0.5)
	assert.Equal(t, out.Framebuffer, dev.Draws[len(dev.Draws)-1].Framebuffer)
	assert.Len(t, r.ReadPixels(out.Framebuffer), 120*80*4)
	out.Destroy(dev)

	r.Shutdown()
	r.Shutdown()
	assert.Zero(t, dev.LivePrograms())
	assert.Zero(t, dev.LiveVertexArrays())
	assert.Empty(t, dev.LiveTextures())
	assert.Empty(t, dev.LiveFramebuffers())
	assert.Zero(t, dev.DoubleDeletes)
}

func TestNewFailuresReleaseEverything(t *testing.T) {
	t.Run("missing program", func(t *testing.T) {
		dev := gputest.New()
		a := testAssets(t)
		delete(a.Programs, shader.LensFlare)
		_, err := New(dev, a, 8, 8)
		var nf *gpu.AssetNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, shader.LensFlare, nf.Path)
		assert.Zero(t, dev.LivePrograms())
		assert.Zero(t, dev.LiveVertexArrays())
	})

	t.Run("link failure", func(t *testing.T) {
		dev := gputest.New()
		dev.LinkLog = "link failed"
		_, err := New(dev, testAssets(t), 8, 8)
		var le *gpu.ShaderLinkError
		require.ErrorAs(t, err, &le)
		assert.Contains(t, err.Error(), shader.Main)
		assert.Zero(t, dev.LiveVertexArrays())
	})

	t.Run("missing cubemap", func(t *testing.T) {
		dev := gputest.New()
		a := testAssets(t)
		a.Skybox = filepath.Join(t.TempDir(), "nowhere")
		_, err := New(dev, a, 8, 8)
		var nf *gpu.AssetNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Zero(t, dev.LivePrograms())
		assert.Empty(t, dev.LiveTextures())
	})
}
