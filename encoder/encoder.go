// Package encoder pipes raw RGBA frames into an ffmpeg process.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/richinsley/goblackhole/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// numBuffers is how many frames may queue ahead of ffmpeg.
const numBuffers = 3

type Settings struct {
	Output     string
	Width      int
	Height     int
	FPS        int
	Codec      string // h264 or h265
	FFmpegPath string
}

func (s Settings) frameSize() int { return s.Width * s.Height * 4 }

func (s Settings) validate() error {
	if s.Output == "" {
		return errors.New("no output file")
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %d", s.FPS)
	}
	switch s.Codec {
	case "h264", "h265":
	default:
		return fmt.Errorf("unsupported codec %q", s.Codec)
	}
	return nil
}

// Args returns the ffmpeg input and output arguments. Frames arrive bottom
// row first, so the output is flipped vertically.
func Args(s Settings) (inputArgs ffmpeg.KwArgs, outputArgs ffmpeg.KwArgs) {
	inputArgs = ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", s.Width, s.Height),
		"framerate": s.FPS,
	}
	outputArgs = ffmpeg.KwArgs{
		"vf":      "vflip",
		"pix_fmt": "yuv420p",
	}
	if s.Codec == "h265" {
		outputArgs["c:v"] = "libx265"
		if strings.EqualFold(filepath.Ext(s.Output), ".mp4") {
			outputArgs["tag:v"] = "hvc1"
		}
	} else {
		outputArgs["c:v"] = "libx264"
	}
	return
}

// Encoder accepts frames from the render loop and feeds them to ffmpeg on
// its own goroutine.
type Encoder struct {
	settings Settings
	frames   chan []byte
	written  chan error
	done     chan error
	count    int
	closed   bool

	// failed is closed once writeErr is set.
	failed   chan struct{}
	writeErr error
}

// Start launches ffmpeg reading raw frames from a pipe.
func Start(s Settings) (*Encoder, error) {
	return start(s, func(r io.Reader) error {
		in, out := Args(s)
		cmd := ffmpeg.Input("pipe:", in).
			Output(s.Output, out).
			OverWriteOutput().
			WithInput(r).
			ErrorToStdOut()
		if s.FFmpegPath != "" {
			cmd = cmd.SetFfmpegPath(s.FFmpegPath)
		}
		return cmd.Run()
	})
}

func start(s Settings, run func(io.Reader) error) (*Encoder, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	e := &Encoder{
		settings: s,
		frames:   make(chan []byte, numBuffers),
		written:  make(chan error, 1),
		done:     make(chan error, 1),
		failed:   make(chan struct{}),
	}
	pr, pw := io.Pipe()

	go func() {
		err := run(pr)
		// unblock the writer if ffmpeg exits early
		pr.CloseWithError(errors.New("ffmpeg exited"))
		e.done <- err
	}()

	go func() {
		var werr error
		for frame := range e.frames {
			if werr != nil {
				continue
			}
			if _, err := pw.Write(frame); err != nil {
				werr = fmt.Errorf("failed to write frame to ffmpeg: %w", err)
				e.writeErr = werr
				close(e.failed)
			}
		}
		pw.Close()
		e.written <- werr
	}()

	logger.Log.Info("recording started",
		zap.String("output", s.Output), zap.Int("width", s.Width), zap.Int("height", s.Height),
		zap.Int("fps", s.FPS), zap.String("codec", s.Codec))
	return e, nil
}

// WriteFrame queues one RGBA8 frame. The encoder keeps the slice. Once a
// frame could not be written to ffmpeg, every later call returns that error.
func (e *Encoder) WriteFrame(pixels []byte) error {
	if e.closed {
		return errors.New("encoder is closed")
	}
	select {
	case <-e.failed:
		return e.writeErr
	default:
	}
	if len(pixels) != e.settings.frameSize() {
		return fmt.Errorf("frame is %d bytes, expected %d", len(pixels), e.settings.frameSize())
	}
	e.frames <- pixels
	e.count++
	return nil
}

// Frames is the number of frames queued so far.
func (e *Encoder) Frames() int { return e.count }

// Close flushes queued frames and waits for ffmpeg to exit.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.frames)
	werr := <-e.written
	rerr := <-e.done
	if rerr != nil {
		rerr = fmt.Errorf("ffmpeg failed: %w", rerr)
	}
	err := errors.Join(rerr, werr)
	if err == nil {
		logger.Log.Info("recording finished", zap.String("output", e.settings.Output), zap.Int("frames", e.count))
	}
	return err
}
