package renderer

import (
	"fmt"

	"github.com/richinsley/goblackhole/gpu"
	"github.com/richinsley/goblackhole/shader"
)

// Float is a named scalar uniform.
type Float struct {
	Name  string
	Value float32
}

// Sampler is a named texture input.
type Sampler struct {
	Name    string
	Texture gpu.Texture
}

// Inputs are everything a pass reads besides its program.
type Inputs struct {
	Floats     []Float
	Textures   []Sampler
	Textures3D []Sampler
	Cubemaps   []Sampler
}

// Pass draws a full-screen program into a framebuffer.
type Pass interface {
	Render(target gpu.Framebuffer, width, height int, in Inputs)
	Destroy()
}

// RenderPass owns one linked program. The quad geometry is shared and owned
// by the caller.
type RenderPass struct {
	dev       gpu.Device
	name      string
	program   gpu.Program
	vao       gpu.VertexArray
	source    *shader.Program
	locations map[string]int32
}

var _ Pass = (*RenderPass)(nil)

func NewRenderPass(dev gpu.Device, prog *shader.Program, vao gpu.VertexArray) (*RenderPass, error) {
	program, err := gpu.NewProgram(dev, prog.Vertex, prog.Fragment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prog.Name, err)
	}
	return &RenderPass{
		dev:       dev,
		name:      prog.Name,
		program:   program,
		vao:       vao,
		source:    prog,
		locations: make(map[string]int32),
	}, nil
}

// uniformLocation looks a name up once; -1 means the program does not use it.
func (p *RenderPass) uniformLocation(name string) int32 {
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	loc := int32(-1)
	if mapped, ok := p.source.UniformName(name); ok {
		if l, found := p.dev.UniformLocation(p.program, mapped); found {
			loc = l
		}
	}
	p.locations[name] = loc
	return loc
}

type boundUnit struct {
	unit int
	kind gpu.TextureKind
}

func (p *RenderPass) bindSamplers(kind gpu.TextureKind, samplers []Sampler, unit int, bound []boundUnit) (int, []boundUnit) {
	for _, s := range samplers {
		loc := p.uniformLocation(s.Name)
		if loc < 0 {
			continue
		}
		p.dev.ActiveTexture(unit)
		p.dev.BindTexture(kind, s.Texture)
		p.dev.Uniform1i(loc, int32(unit))
		bound = append(bound, boundUnit{unit, kind})
		unit++
	}
	return unit, bound
}

// Render draws into target, or the visible surface for
// gpu.DefaultFramebuffer. Inputs the program does not declare are skipped
// and take no texture unit.
func (p *RenderPass) Render(target gpu.Framebuffer, width, height int, in Inputs) {
	d := p.dev
	d.BindFramebuffer(target)
	d.Viewport(width, height)
	d.Disable(gpu.DepthTest)
	d.UseProgram(p.program)

	if loc := p.uniformLocation("resolution"); loc >= 0 {
		d.Uniform2f(loc, float32(width), float32(height))
	}
	for _, f := range in.Floats {
		if loc := p.uniformLocation(f.Name); loc >= 0 {
			d.Uniform1f(loc, f.Value)
		}
	}

	var bound []boundUnit
	unit := 0
	unit, bound = p.bindSamplers(gpu.Texture2D, in.Textures, unit, bound)
	unit, bound = p.bindSamplers(gpu.Texture3D, in.Textures3D, unit, bound)
	_, bound = p.bindSamplers(gpu.TextureCube, in.Cubemaps, unit, bound)

	d.BindVertexArray(p.vao)
	d.DrawTriangles(0, gpu.QuadVertexCount)
	d.BindVertexArray(0)

	for _, b := range bound {
		d.ActiveTexture(b.unit)
		d.BindTexture(b.kind, 0)
	}
	d.ActiveTexture(0)
	d.UseProgram(0)
	d.BindFramebuffer(gpu.DefaultFramebuffer)
}

func (p *RenderPass) Destroy() {
	if p.program == 0 {
		return
	}
	p.dev.DeleteProgram(p.program)
	p.program = 0
}
