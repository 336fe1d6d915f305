// Package glbackend implements gpu.Device on an OpenGL 4.1 core context.
// Every method must be called on the thread that owns the context.
package glbackend

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/goblackhole/gpu"
	"github.com/richinsley/goblackhole/logger"
	"go.uber.org/zap"
)

var (
	initOnce sync.Once
	initErr  error
)

// Device issues gpu.Device calls to the current GL context.
type Device struct{}

var _ gpu.Device = (*Device)(nil)

// New loads the GL function pointers for the current context. The context
// must already be current.
func New() (*Device, error) {
	initOnce.Do(func() {
		if err := gl.Init(); err != nil {
			initErr = fmt.Errorf("failed to initialize OpenGL: %w", err)
			return
		}
		logger.Log.Info("OpenGL initialized",
			zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
			zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))))
	})
	if initErr != nil {
		return nil, initErr
	}
	return &Device{}, nil
}

func textureTarget(kind gpu.TextureKind) uint32 {
	switch kind {
	case gpu.Texture3D:
		return gl.TEXTURE_3D
	case gpu.TextureCube:
		return gl.TEXTURE_CUBE_MAP
	default:
		return gl.TEXTURE_2D
	}
}

func imageTarget(t gpu.ImageTarget) uint32 {
	switch t {
	case gpu.CubePositiveX:
		return gl.TEXTURE_CUBE_MAP_POSITIVE_X
	case gpu.CubeNegativeX:
		return gl.TEXTURE_CUBE_MAP_NEGATIVE_X
	case gpu.CubePositiveY:
		return gl.TEXTURE_CUBE_MAP_POSITIVE_Y
	case gpu.CubeNegativeY:
		return gl.TEXTURE_CUBE_MAP_NEGATIVE_Y
	case gpu.CubePositiveZ:
		return gl.TEXTURE_CUBE_MAP_POSITIVE_Z
	case gpu.CubeNegativeZ:
		return gl.TEXTURE_CUBE_MAP_NEGATIVE_Z
	default:
		return gl.TEXTURE_2D
	}
}

// pixelFormat returns internal format, format and type.
func pixelFormat(f gpu.PixelFormat) (int32, uint32, uint32) {
	switch f {
	case gpu.RGB16F:
		return gl.RGB16F, gl.RGB, gl.FLOAT
	case gpu.R8:
		return gl.R8, gl.RED, gl.UNSIGNED_BYTE
	default:
		return gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE
	}
}

// maxErrors bounds draining the error queue, which never empties on some
// drivers once the context is lost.
const maxErrors = 16

// drainErrors pops error codes from next until it reports GL_NO_ERROR.
func drainErrors(next func() uint32) []uint32 {
	var codes []uint32
	for len(codes) < maxErrors {
		code := next()
		if code == gl.NO_ERROR {
			break
		}
		codes = append(codes, code)
	}
	return codes
}

func errorFor(op string, codes []uint32) error {
	if len(codes) == 0 {
		return nil
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("0x%X", c)
	}
	return fmt.Errorf("%s: GL error %s", op, strings.Join(parts, ", "))
}

// nameError reports a failed object creation: a pending GL error or a zero name.
func nameError(op string, name uint32, codes []uint32) error {
	if err := errorFor(op, codes); err != nil {
		return err
	}
	if name == 0 {
		return fmt.Errorf("%s returned no name", op)
	}
	return nil
}

// clearErrors discards errors left by earlier calls so they are not blamed
// on the next checked call.
func clearErrors() {
	if stale := drainErrors(gl.GetError); len(stale) > 0 {
		logger.Log.Warn("discarding stale GL errors", zap.Uint32s("codes", stale))
	}
}

func checkError(op string) error {
	return errorFor(op, drainErrors(gl.GetError))
}

func (d *Device) CreateTexture() (gpu.Texture, error) {
	var tex uint32
	gl.GenTextures(1, &tex)
	if tex == 0 {
		return 0, errors.New("glGenTextures returned no name")
	}
	return gpu.Texture(tex), nil
}

func (d *Device) DeleteTexture(tex gpu.Texture) {
	t := uint32(tex)
	gl.DeleteTextures(1, &t)
}

func (d *Device) BindTexture(kind gpu.TextureKind, tex gpu.Texture) {
	gl.BindTexture(textureTarget(kind), uint32(tex))
}

func (d *Device) TexImage2D(target gpu.ImageTarget, width, height int, format gpu.PixelFormat, pixels []byte) error {
	internal, pf, pt := pixelFormat(format)
	var ptr = gl.Ptr(nil)
	if len(pixels) > 0 {
		ptr = gl.Ptr(pixels)
	}
	clearErrors()
	gl.TexImage2D(imageTarget(target), 0, internal, int32(width), int32(height), 0, pf, pt, ptr)
	return checkError("glTexImage2D")
}

func (d *Device) TexImage3D(width, height, depth int, format gpu.PixelFormat, pixels []byte) error {
	internal, pf, pt := pixelFormat(format)
	var ptr = gl.Ptr(nil)
	if len(pixels) > 0 {
		ptr = gl.Ptr(pixels)
	}
	clearErrors()
	gl.TexImage3D(gl.TEXTURE_3D, 0, internal, int32(width), int32(height), int32(depth), 0, pf, pt, ptr)
	return checkError("glTexImage3D")
}

func (d *Device) TexParameters(kind gpu.TextureKind, filter gpu.Filter, wrap gpu.Wrap) {
	target := textureTarget(kind)
	f := int32(gl.LINEAR)
	if filter == gpu.Nearest {
		f = gl.NEAREST
	}
	w := int32(gl.CLAMP_TO_EDGE)
	if wrap == gpu.Repeat {
		w = gl.REPEAT
	}
	gl.TexParameteri(target, gl.TEXTURE_MIN_FILTER, f)
	gl.TexParameteri(target, gl.TEXTURE_MAG_FILTER, f)
	gl.TexParameteri(target, gl.TEXTURE_WRAP_S, w)
	gl.TexParameteri(target, gl.TEXTURE_WRAP_T, w)
	if kind != gpu.Texture2D {
		gl.TexParameteri(target, gl.TEXTURE_WRAP_R, w)
	}
}

func (d *Device) UnpackAlignment(n int) {
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, int32(n))
}

func (d *Device) CreateFramebuffer() (gpu.Framebuffer, error) {
	var fbo uint32
	gl.GenFramebuffers(1, &fbo)
	if fbo == 0 {
		return 0, errors.New("glGenFramebuffers returned no name")
	}
	return gpu.Framebuffer(fbo), nil
}

func (d *Device) DeleteFramebuffer(fb gpu.Framebuffer) {
	f := uint32(fb)
	gl.DeleteFramebuffers(1, &f)
}

func (d *Device) BindFramebuffer(fb gpu.Framebuffer) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
}

func (d *Device) AttachColor(tex gpu.Texture) {
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, uint32(tex), 0)
}

func (d *Device) FramebufferStatus() (bool, uint32) {
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	return status == gl.FRAMEBUFFER_COMPLETE, status
}

func (d *Device) CreateShader(stage gpu.Stage, source string) (gpu.Shader, error) {
	shaderType := uint32(gl.FRAGMENT_SHADER)
	if stage == gpu.VertexStage {
		shaderType = gl.VERTEX_SHADER
	}
	clearErrors()
	sh := gl.CreateShader(shaderType)
	if err := nameError("glCreateShader", sh, drainErrors(gl.GetError)); err != nil {
		return 0, err
	}
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(sh, 1, csources, nil)
	free()
	return gpu.Shader(sh), nil
}

func (d *Device) CompileShader(sh gpu.Shader) (bool, string) {
	gl.CompileShader(uint32(sh))
	var status int32
	gl.GetShaderiv(uint32(sh), gl.COMPILE_STATUS, &status)
	if status != gl.FALSE {
		return true, ""
	}
	var logLength int32
	gl.GetShaderiv(uint32(sh), gl.INFO_LOG_LENGTH, &logLength)
	logText := strings.Repeat("\x00", int(logLength+1))
	gl.GetShaderInfoLog(uint32(sh), logLength, nil, gl.Str(logText))
	return false, strings.TrimRight(logText, "\x00")
}

func (d *Device) DeleteShader(sh gpu.Shader) {
	gl.DeleteShader(uint32(sh))
}

func (d *Device) CreateProgram() (gpu.Program, error) {
	clearErrors()
	p := gl.CreateProgram()
	if err := nameError("glCreateProgram", p, drainErrors(gl.GetError)); err != nil {
		return 0, err
	}
	return gpu.Program(p), nil
}

func (d *Device) AttachShader(p gpu.Program, sh gpu.Shader) {
	gl.AttachShader(uint32(p), uint32(sh))
}

func (d *Device) DetachShader(p gpu.Program, sh gpu.Shader) {
	gl.DetachShader(uint32(p), uint32(sh))
}

func (d *Device) LinkProgram(p gpu.Program) (bool, string) {
	gl.LinkProgram(uint32(p))
	var status int32
	gl.GetProgramiv(uint32(p), gl.LINK_STATUS, &status)
	if status != gl.FALSE {
		return true, ""
	}
	var logLength int32
	gl.GetProgramiv(uint32(p), gl.INFO_LOG_LENGTH, &logLength)
	logText := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(uint32(p), logLength, nil, gl.Str(logText))
	return false, strings.TrimRight(logText, "\x00")
}

func (d *Device) DeleteProgram(p gpu.Program) {
	gl.DeleteProgram(uint32(p))
}

func (d *Device) UseProgram(p gpu.Program) {
	gl.UseProgram(uint32(p))
}

func (d *Device) UniformLocation(p gpu.Program, name string) (int32, bool) {
	loc := gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
	return loc, loc != -1
}

func (d *Device) Uniform1f(loc int32, v float32)    { gl.Uniform1f(loc, v) }
func (d *Device) Uniform2f(loc int32, x, y float32) { gl.Uniform2f(loc, x, y) }
func (d *Device) Uniform1i(loc int32, v int32)      { gl.Uniform1i(loc, v) }

func (d *Device) CreateVertexArray(vertices []float32, components int) (gpu.VertexArray, gpu.Buffer, error) {
	var vao, vbo uint32
	clearErrors()
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, int32(components), gl.FLOAT, false, int32(components*4), gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
	if err := checkError("quad geometry"); err != nil {
		gl.DeleteBuffers(1, &vbo)
		gl.DeleteVertexArrays(1, &vao)
		return 0, 0, err
	}
	return gpu.VertexArray(vao), gpu.Buffer(vbo), nil
}

func (d *Device) DeleteVertexArray(vao gpu.VertexArray, vbo gpu.Buffer) {
	a, b := uint32(vao), uint32(vbo)
	gl.DeleteBuffers(1, &b)
	gl.DeleteVertexArrays(1, &a)
}

func (d *Device) BindVertexArray(vao gpu.VertexArray) {
	gl.BindVertexArray(uint32(vao))
}

func (d *Device) Viewport(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

func (d *Device) Disable(caps ...gpu.Capability) {
	for _, c := range caps {
		switch c {
		case gpu.DepthTest:
			gl.Disable(gl.DEPTH_TEST)
		case gpu.ScissorTest:
			gl.Disable(gl.SCISSOR_TEST)
		case gpu.Blend:
			gl.Disable(gl.BLEND)
		case gpu.CullFace:
			gl.Disable(gl.CULL_FACE)
		}
	}
}

func (d *Device) ActiveTexture(unit int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
}

func (d *Device) DrawTriangles(first, count int) {
	gl.DrawArrays(gl.TRIANGLES, int32(first), int32(count))
}

// ReadPixels reads RGBA8 from the bound framebuffer, bottom row first.
func (d *Device) ReadPixels(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	return pixels
}
