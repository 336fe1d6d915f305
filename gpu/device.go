// Package gpu holds the handle types, the graphics device abstraction and the
// resource factory shared by the renderer.
package gpu

// Handles are plain identifiers. A zero handle means "none"; for
// framebuffers it is the visible surface.
type (
	Texture     uint32
	Framebuffer uint32
	Program     uint32
	Shader      uint32
	VertexArray uint32
	Buffer      uint32
)

// DefaultFramebuffer is the caller-supplied visible surface.
const DefaultFramebuffer Framebuffer = 0

type TextureKind int

const (
	Texture2D TextureKind = iota
	Texture3D
	TextureCube
)

func (k TextureKind) String() string {
	switch k {
	case Texture2D:
		return "2d"
	case Texture3D:
		return "3d"
	case TextureCube:
		return "cube"
	}
	return "unknown"
}

// ImageTarget selects which image of the bound texture TexImage2D writes.
type ImageTarget int

const (
	Image2D ImageTarget = iota
	CubePositiveX
	CubeNegativeX
	CubePositiveY
	CubeNegativeY
	CubePositiveZ
	CubeNegativeZ
)

// PixelFormat pairs an internal storage format with its upload layout.
type PixelFormat int

const (
	// RGB16F stores half floats; uploads are RGB float.
	RGB16F PixelFormat = iota
	// RGBA8 stores and uploads 8-bit RGBA.
	RGBA8
	// R8 stores and uploads a single 8-bit channel.
	R8
)

func (f PixelFormat) String() string {
	switch f {
	case RGB16F:
		return "rgb16f"
	case RGBA8:
		return "rgba8"
	case R8:
		return "r8"
	}
	return "unknown"
}

type Filter int

const (
	Linear Filter = iota
	Nearest
)

type Wrap int

const (
	ClampToEdge Wrap = iota
	Repeat
)

type Stage int

const (
	VertexStage Stage = iota
	FragmentStage
)

func (s Stage) String() string {
	if s == VertexStage {
		return "vertex"
	}
	return "fragment"
}

type Capability int

const (
	DepthTest Capability = iota
	ScissorTest
	Blend
	CullFace
)

// Device is the subset of the graphics API the host needs. All calls are
// issued from the thread that owns the context, in order.
type Device interface {
	CreateTexture() (Texture, error)
	DeleteTexture(tex Texture)
	BindTexture(kind TextureKind, tex Texture)
	// TexImage2D allocates level 0 of the bound 2D texture or cubemap face.
	// A nil pixels slice allocates without uploading.
	TexImage2D(target ImageTarget, width, height int, format PixelFormat, pixels []byte) error
	TexImage3D(width, height, depth int, format PixelFormat, pixels []byte) error
	TexParameters(kind TextureKind, filter Filter, wrap Wrap)
	UnpackAlignment(n int)

	CreateFramebuffer() (Framebuffer, error)
	DeleteFramebuffer(fb Framebuffer)
	BindFramebuffer(fb Framebuffer)
	// AttachColor attaches tex as color attachment 0 of the bound framebuffer.
	AttachColor(tex Texture)
	FramebufferStatus() (complete bool, status uint32)

	CreateShader(stage Stage, source string) (Shader, error)
	CompileShader(sh Shader) (ok bool, log string)
	DeleteShader(sh Shader)
	CreateProgram() (Program, error)
	AttachShader(p Program, sh Shader)
	DetachShader(p Program, sh Shader)
	LinkProgram(p Program) (ok bool, log string)
	DeleteProgram(p Program)
	UseProgram(p Program)
	// UniformLocation reports false when the linked program has no active
	// uniform with that name.
	UniformLocation(p Program, name string) (int32, bool)
	Uniform1f(loc int32, v float32)
	Uniform2f(loc int32, x, y float32)
	Uniform1i(loc int32, v int32)

	CreateVertexArray(vertices []float32, components int) (VertexArray, Buffer, error)
	DeleteVertexArray(vao VertexArray, vbo Buffer)
	BindVertexArray(vao VertexArray)

	Viewport(width, height int)
	Disable(caps ...Capability)
	ActiveTexture(unit int)
	DrawTriangles(first, count int)
	// ReadPixels reads RGBA8 pixels from the bound framebuffer, bottom row first.
	ReadPixels(width, height int) []byte
}
