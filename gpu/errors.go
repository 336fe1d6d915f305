package gpu

import (
	"errors"
	"fmt"
)

// ErrFramebufferIncomplete is matched with errors.Is against *FramebufferError.
var ErrFramebufferIncomplete = errors.New("framebuffer is not complete")

// ResourceCreationError reports a texture, framebuffer or geometry allocation
// the device refused.
type ResourceCreationError struct {
	Resource string
	Err      error
}

func (e *ResourceCreationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to create %s", e.Resource)
	}
	return fmt.Sprintf("failed to create %s: %v", e.Resource, e.Err)
}

func (e *ResourceCreationError) Unwrap() error { return e.Err }

type FramebufferError struct {
	Status uint32
}

func (e *FramebufferError) Error() string {
	return fmt.Sprintf("%v (status 0x%X)", ErrFramebufferIncomplete, e.Status)
}

func (e *FramebufferError) Is(target error) bool { return target == ErrFramebufferIncomplete }

type AssetNotFoundError struct {
	Path string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset not found: %s", e.Path)
}

type AssetDecodeError struct {
	Path string
	Err  error
}

func (e *AssetDecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Path, e.Err)
}

func (e *AssetDecodeError) Unwrap() error { return e.Err }

// ShaderCompileError carries the compiler log verbatim.
type ShaderCompileError struct {
	Stage Stage
	Log   string
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("failed to compile %s shader: %s", e.Stage, e.Log)
}

// ShaderLinkError carries the linker log verbatim.
type ShaderLinkError struct {
	Log string
}

func (e *ShaderLinkError) Error() string {
	return fmt.Sprintf("failed to link program: %s", e.Log)
}
