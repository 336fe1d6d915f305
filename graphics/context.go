package graphics

// Context defines the interface for a window with an OpenGL context.
type Context interface {
	MakeCurrent()
	Shutdown()
	ShouldClose() bool
	SetShouldClose(bool)
	EndFrame()
	GetFramebufferSize() (int, int)
	Time() float64
	// CursorPosition returns the pointer in framebuffer pixels with the
	// origin at the top left.
	CursorPosition() (float32, float32)
	SetTitle(title string)
	// OnKey registers f to run when the letter key is pressed.
	OnKey(key rune, f func())
}
