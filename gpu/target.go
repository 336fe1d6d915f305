package gpu

// Target is an exclusively owned color texture and the framebuffer that
// renders into it.
type Target struct {
	Texture     Texture
	Framebuffer Framebuffer
	Width       int
	Height      int
}

// NewTarget allocates an RGB16F color target and its framebuffer. Nothing is
// left allocated on failure.
func NewTarget(dev Device, width, height int) (*Target, error) {
	return NewTargetFormat(dev, width, height, RGB16F)
}

// NewTargetFormat is NewTarget with an explicit storage format. RGBA8
// targets serve as offscreen output surfaces that are read back.
func NewTargetFormat(dev Device, width, height int, format PixelFormat) (*Target, error) {
	tex, err := createTargetTexture(dev, width, height, format)
	if err != nil {
		return nil, err
	}
	fb, err := CreateFramebuffer(dev, tex)
	if err != nil {
		dev.DeleteTexture(tex)
		return nil, err
	}
	return &Target{Texture: tex, Framebuffer: fb, Width: width, Height: height}, nil
}

// Destroy deletes the framebuffer, then the texture attached to it. It is
// safe on a nil or already destroyed target.
func (t *Target) Destroy(dev Device) {
	if t == nil {
		return
	}
	if t.Framebuffer != 0 {
		dev.DeleteFramebuffer(t.Framebuffer)
		t.Framebuffer = 0
	}
	if t.Texture != 0 {
		dev.DeleteTexture(t.Texture)
		t.Texture = 0
	}
}
