// Package gputest provides an in-memory gpu.Device that records every call,
// tracks live resources and can be told to fail.
package gputest

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/richinsley/goblackhole/gpu"
)

// TextureInfo is what the device knows about a live texture.
type TextureInfo struct {
	Kind      gpu.TextureKind
	Width     int
	Height    int
	Depth     int
	Format    gpu.PixelFormat
	Filter    gpu.Filter
	Wrap      gpu.Wrap
	Images    int // TexImage uploads received
	Alignment int // unpack alignment during the last upload
	Data      []byte
}

// Binding is a texture bound to a texture unit.
type Binding struct {
	Kind    gpu.TextureKind
	Texture gpu.Texture
}

// Draw is a snapshot of pipeline state at a DrawTriangles call.
type Draw struct {
	Framebuffer gpu.Framebuffer
	Program     gpu.Program
	VAO         gpu.VertexArray
	Width       int
	Height      int
	First       int
	Count       int
	DepthTest   bool
	Units       map[int]Binding
	Floats      map[string]float32
	Vec2        map[string][2]float32
	Ints        map[string]int32
}

type shader struct {
	stage  gpu.Stage
	source string
}

type program struct {
	attached []gpu.Shader
	sources  []string
	uniforms map[string]int32
	names    map[int32]string
	floats   map[string]float32
	vec2     map[string][2]float32
	ints     map[string]int32
}

// Device implements gpu.Device without a graphics context. The zero value is
// not usable; call New.
type Device struct {
	// Calls logs every mutating call, e.g. "DeleteFramebuffer 4".
	Calls []string
	Draws []Draw

	// Failure injection.
	FailCreateTexture bool
	TexImageErr       error
	IncompleteStatus  uint32
	CompileLogs       map[gpu.Stage]string
	LinkLog           string
	FailVertexArray   bool

	// LocationQueries counts UniformLocation calls per "program/name".
	LocationQueries map[string]int
	// DoubleDeletes counts deletions of handles that were not live.
	DoubleDeletes int

	next         uint32
	nextLoc      int32
	textures     map[gpu.Texture]*TextureInfo
	framebuffers map[gpu.Framebuffer]gpu.Texture
	shaders      map[gpu.Shader]*shader
	programs     map[gpu.Program]*program
	vaos         map[gpu.VertexArray]gpu.Buffer
	bound        map[gpu.TextureKind]gpu.Texture
	units        map[int]Binding
	activeUnit   int
	framebuffer  gpu.Framebuffer
	current      gpu.Program
	vao          gpu.VertexArray
	viewport     [2]int
	disabled     map[gpu.Capability]bool
	alignment    int
}

var _ gpu.Device = (*Device)(nil)

func New() *Device {
	return &Device{
		CompileLogs:     map[gpu.Stage]string{},
		LocationQueries: map[string]int{},
		textures:        map[gpu.Texture]*TextureInfo{},
		framebuffers:    map[gpu.Framebuffer]gpu.Texture{},
		shaders:         map[gpu.Shader]*shader{},
		programs:        map[gpu.Program]*program{},
		vaos:            map[gpu.VertexArray]gpu.Buffer{},
		bound:           map[gpu.TextureKind]gpu.Texture{},
		units:           map[int]Binding{},
		disabled:        map[gpu.Capability]bool{},
		alignment:       4,
	}
}

func (d *Device) handle() uint32 {
	d.next++
	return d.next
}

func (d *Device) logf(format string, args ...any) {
	d.Calls = append(d.Calls, fmt.Sprintf(format, args...))
}

func (d *Device) CreateTexture() (gpu.Texture, error) {
	if d.FailCreateTexture {
		return 0, errors.New("out of texture names")
	}
	t := gpu.Texture(d.handle())
	d.textures[t] = &TextureInfo{}
	d.logf("CreateTexture %d", t)
	return t, nil
}

func (d *Device) DeleteTexture(tex gpu.Texture) {
	d.logf("DeleteTexture %d", tex)
	if _, ok := d.textures[tex]; !ok {
		d.DoubleDeletes++
		return
	}
	delete(d.textures, tex)
}

func (d *Device) BindTexture(kind gpu.TextureKind, tex gpu.Texture) {
	d.bound[kind] = tex
	d.units[d.activeUnit] = Binding{Kind: kind, Texture: tex}
	if tex == 0 {
		delete(d.units, d.activeUnit)
	}
	if info, ok := d.textures[tex]; ok {
		info.Kind = kind
	}
}

func (d *Device) TexImage2D(target gpu.ImageTarget, width, height int, format gpu.PixelFormat, pixels []byte) error {
	if d.TexImageErr != nil {
		return d.TexImageErr
	}
	kind := gpu.Texture2D
	if target != gpu.Image2D {
		kind = gpu.TextureCube
	}
	info, ok := d.textures[d.bound[kind]]
	if !ok {
		return fmt.Errorf("no %s texture bound", kind)
	}
	info.Width, info.Height, info.Depth = width, height, 1
	info.Format = format
	info.Images++
	info.Alignment = d.alignment
	info.Data = pixels
	d.logf("TexImage2D %d %dx%d %s", d.bound[kind], width, height, format)
	return nil
}

func (d *Device) TexImage3D(width, height, depth int, format gpu.PixelFormat, pixels []byte) error {
	if d.TexImageErr != nil {
		return d.TexImageErr
	}
	info, ok := d.textures[d.bound[gpu.Texture3D]]
	if !ok {
		return errors.New("no 3d texture bound")
	}
	info.Width, info.Height, info.Depth = width, height, depth
	info.Format = format
	info.Images++
	info.Alignment = d.alignment
	info.Data = pixels
	d.logf("TexImage3D %d %dx%dx%d %s", d.bound[gpu.Texture3D], width, height, depth, format)
	return nil
}

func (d *Device) TexParameters(kind gpu.TextureKind, filter gpu.Filter, wrap gpu.Wrap) {
	if info, ok := d.textures[d.bound[kind]]; ok {
		info.Filter = filter
		info.Wrap = wrap
	}
}

func (d *Device) UnpackAlignment(n int) {
	d.alignment = n
	d.logf("UnpackAlignment %d", n)
}

func (d *Device) CreateFramebuffer() (gpu.Framebuffer, error) {
	fb := gpu.Framebuffer(d.handle())
	d.framebuffers[fb] = 0
	d.logf("CreateFramebuffer %d", fb)
	return fb, nil
}

func (d *Device) DeleteFramebuffer(fb gpu.Framebuffer) {
	d.logf("DeleteFramebuffer %d", fb)
	if _, ok := d.framebuffers[fb]; !ok {
		d.DoubleDeletes++
		return
	}
	delete(d.framebuffers, fb)
}

func (d *Device) BindFramebuffer(fb gpu.Framebuffer) {
	d.framebuffer = fb
}

func (d *Device) AttachColor(tex gpu.Texture) {
	if _, ok := d.framebuffers[d.framebuffer]; ok {
		d.framebuffers[d.framebuffer] = tex
	}
}

func (d *Device) FramebufferStatus() (bool, uint32) {
	if d.IncompleteStatus != 0 {
		return false, d.IncompleteStatus
	}
	tex, ok := d.framebuffers[d.framebuffer]
	if !ok || tex == 0 {
		return false, 0x8CD7 // missing attachment
	}
	if _, live := d.textures[tex]; !live {
		return false, 0x8CD6 // incomplete attachment
	}
	return true, 0x8CD5
}

func (d *Device) CreateShader(stage gpu.Stage, source string) (gpu.Shader, error) {
	sh := gpu.Shader(d.handle())
	d.shaders[sh] = &shader{stage: stage, source: source}
	d.logf("CreateShader %d %s", sh, stage)
	return sh, nil
}

func (d *Device) CompileShader(sh gpu.Shader) (bool, string) {
	s, ok := d.shaders[sh]
	if !ok {
		return false, "invalid shader"
	}
	if log, fail := d.CompileLogs[s.stage]; fail {
		return false, log
	}
	return true, ""
}

func (d *Device) DeleteShader(sh gpu.Shader) {
	d.logf("DeleteShader %d", sh)
	if _, ok := d.shaders[sh]; !ok {
		d.DoubleDeletes++
		return
	}
	delete(d.shaders, sh)
}

func (d *Device) CreateProgram() (gpu.Program, error) {
	p := gpu.Program(d.handle())
	d.programs[p] = &program{
		uniforms: map[string]int32{},
		names:    map[int32]string{},
		floats:   map[string]float32{},
		vec2:     map[string][2]float32{},
		ints:     map[string]int32{},
	}
	d.logf("CreateProgram %d", p)
	return p, nil
}

func (d *Device) AttachShader(p gpu.Program, sh gpu.Shader) {
	prog, ok := d.programs[p]
	s, sok := d.shaders[sh]
	if !ok || !sok {
		return
	}
	prog.attached = append(prog.attached, sh)
	prog.sources = append(prog.sources, s.source)
}

func (d *Device) DetachShader(p gpu.Program, sh gpu.Shader) {
	prog, ok := d.programs[p]
	if !ok {
		return
	}
	for i, a := range prog.attached {
		if a == sh {
			prog.attached = append(prog.attached[:i], prog.attached[i+1:]...)
			break
		}
	}
	d.logf("DetachShader %d %d", p, sh)
}

var uniformDecl = regexp.MustCompile(`(?m)^\s*uniform\s+(?:(?:lowp|mediump|highp)\s+)?\w+\s+(\w+)`)

// LinkProgram makes every uniform declared in the attached sources active.
func (d *Device) LinkProgram(p gpu.Program) (bool, string) {
	prog, ok := d.programs[p]
	if !ok {
		return false, "invalid program"
	}
	d.logf("LinkProgram %d", p)
	if d.LinkLog != "" {
		return false, d.LinkLog
	}
	for _, src := range prog.sources {
		for _, m := range uniformDecl.FindAllStringSubmatch(src, -1) {
			if _, dup := prog.uniforms[m[1]]; dup {
				continue
			}
			d.nextLoc++
			prog.uniforms[m[1]] = d.nextLoc
			prog.names[d.nextLoc] = m[1]
		}
	}
	return true, ""
}

func (d *Device) DeleteProgram(p gpu.Program) {
	d.logf("DeleteProgram %d", p)
	if _, ok := d.programs[p]; !ok {
		d.DoubleDeletes++
		return
	}
	delete(d.programs, p)
}

func (d *Device) UseProgram(p gpu.Program) {
	d.current = p
}

func (d *Device) UniformLocation(p gpu.Program, name string) (int32, bool) {
	d.LocationQueries[fmt.Sprintf("%d/%s", p, name)]++
	prog, ok := d.programs[p]
	if !ok {
		return -1, false
	}
	loc, ok := prog.uniforms[name]
	if !ok {
		return -1, false
	}
	return loc, true
}

func (d *Device) currentUniform(loc int32) (*program, string, bool) {
	prog, ok := d.programs[d.current]
	if !ok {
		return nil, "", false
	}
	name, ok := prog.names[loc]
	return prog, name, ok
}

func (d *Device) Uniform1f(loc int32, v float32) {
	if prog, name, ok := d.currentUniform(loc); ok {
		prog.floats[name] = v
	}
}

func (d *Device) Uniform2f(loc int32, x, y float32) {
	if prog, name, ok := d.currentUniform(loc); ok {
		prog.vec2[name] = [2]float32{x, y}
	}
}

func (d *Device) Uniform1i(loc int32, v int32) {
	if prog, name, ok := d.currentUniform(loc); ok {
		prog.ints[name] = v
	}
}

func (d *Device) CreateVertexArray(vertices []float32, components int) (gpu.VertexArray, gpu.Buffer, error) {
	if d.FailVertexArray {
		return 0, 0, errors.New("out of memory")
	}
	if components <= 0 || len(vertices)%components != 0 {
		return 0, 0, fmt.Errorf("%d floats is not a multiple of %d components", len(vertices), components)
	}
	vao := gpu.VertexArray(d.handle())
	vbo := gpu.Buffer(d.handle())
	d.vaos[vao] = vbo
	d.logf("CreateVertexArray %d", vao)
	return vao, vbo, nil
}

func (d *Device) DeleteVertexArray(vao gpu.VertexArray, vbo gpu.Buffer) {
	d.logf("DeleteVertexArray %d", vao)
	if _, ok := d.vaos[vao]; !ok {
		d.DoubleDeletes++
		return
	}
	delete(d.vaos, vao)
}

func (d *Device) BindVertexArray(vao gpu.VertexArray) {
	d.vao = vao
}

func (d *Device) Viewport(width, height int) {
	d.viewport = [2]int{width, height}
}

func (d *Device) Disable(caps ...gpu.Capability) {
	for _, c := range caps {
		d.disabled[c] = true
		d.logf("Disable %d", c)
	}
}

// Enable re-enables a capability, standing in for state left behind by
// unrelated rendering.
func (d *Device) Enable(c gpu.Capability) {
	d.disabled[c] = false
}

func (d *Device) ActiveTexture(unit int) {
	d.activeUnit = unit
}

func (d *Device) DrawTriangles(first, count int) {
	draw := Draw{
		Framebuffer: d.framebuffer,
		Program:     d.current,
		VAO:         d.vao,
		Width:       d.viewport[0],
		Height:      d.viewport[1],
		First:       first,
		Count:       count,
		DepthTest:   !d.disabled[gpu.DepthTest],
		Units:       map[int]Binding{},
		Floats:      map[string]float32{},
		Vec2:        map[string][2]float32{},
		Ints:        map[string]int32{},
	}
	for u, b := range d.units {
		draw.Units[u] = b
	}
	if prog, ok := d.programs[d.current]; ok {
		for k, v := range prog.floats {
			draw.Floats[k] = v
		}
		for k, v := range prog.vec2 {
			draw.Vec2[k] = v
		}
		for k, v := range prog.ints {
			draw.Ints[k] = v
		}
	}
	d.Draws = append(d.Draws, draw)
	d.logf("DrawTriangles %d %d", first, count)
}

func (d *Device) ReadPixels(width, height int) []byte {
	d.logf("ReadPixels %d %dx%d", d.framebuffer, width, height)
	return make([]byte, width*height*4)
}

// Texture returns the state of a live texture.
func (d *Device) Texture(tex gpu.Texture) (TextureInfo, bool) {
	info, ok := d.textures[tex]
	if !ok {
		return TextureInfo{}, false
	}
	return *info, true
}

// LiveTextures returns every texture not yet deleted, in creation order.
func (d *Device) LiveTextures() []gpu.Texture {
	out := make([]gpu.Texture, 0, len(d.textures))
	for t := range d.textures {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LiveFramebuffers returns every framebuffer not yet deleted, in creation order.
func (d *Device) LiveFramebuffers() []gpu.Framebuffer {
	out := make([]gpu.Framebuffer, 0, len(d.framebuffers))
	for fb := range d.framebuffers {
		out = append(out, fb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Attachment returns the color attachment of a live framebuffer.
func (d *Device) Attachment(fb gpu.Framebuffer) (gpu.Texture, bool) {
	tex, ok := d.framebuffers[fb]
	return tex, ok
}

func (d *Device) LivePrograms() int     { return len(d.programs) }
func (d *Device) LiveShaders() int      { return len(d.shaders) }
func (d *Device) LiveVertexArrays() int { return len(d.vaos) }

// Alignment is the current unpack alignment.
func (d *Device) Alignment() int { return d.alignment }

func (d *Device) Disabled(c gpu.Capability) bool { return d.disabled[c] }

// BoundFramebuffer is the current draw target.
func (d *Device) BoundFramebuffer() gpu.Framebuffer { return d.framebuffer }

// CurrentProgram is the program in use.
func (d *Device) CurrentProgram() gpu.Program { return d.current }

// Reset clears the call and draw logs, keeping resources.
func (d *Device) Reset() {
	d.Calls = nil
	d.Draws = nil
}
