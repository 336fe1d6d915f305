package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/richinsley/goblackhole/assets"
	"github.com/richinsley/goblackhole/encoder"
	"github.com/richinsley/goblackhole/glfwcontext"
	"github.com/richinsley/goblackhole/gpu"
	"github.com/richinsley/goblackhole/gpu/glbackend"
	"github.com/richinsley/goblackhole/graphics"
	"github.com/richinsley/goblackhole/logger"
	"github.com/richinsley/goblackhole/options"
	"github.com/richinsley/goblackhole/renderer"
	"github.com/richinsley/goblackhole/shader"
	"go.uber.org/zap"
)

const windowTitle = "Blackhole"

// toggleKeys are the letters bound to AppState switches.
const toggleKeys = "LBMFVDPT"

func init() {
	runtime.LockOSThread()
}

func main() {
	opts, err := options.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *opts.Help {
		return
	}

	if err := logger.Init(*opts.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(opts); err != nil {
		logger.Log.Fatal("goblackhole failed", zap.Error(err))
	}
}

func run(opts *options.Options) error {
	bundle, err := assets.Locate(*opts.AssetRoot)
	if err != nil {
		return err
	}
	profile, err := shader.ParseProfile(*opts.Profile)
	if err != nil {
		return err
	}
	programs, err := shader.LoadSet(bundle.ShaderDir, profile)
	if err != nil {
		return err
	}

	state := options.DefaultState()
	if *opts.Config != "" {
		if state, err = options.LoadState(*opts.Config, state); err != nil {
			return err
		}
		logger.Log.Info("loaded render settings", zap.String("config", *opts.Config))
	}

	if err := glfwcontext.InitGraphics(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %w", err)
	}
	defer glfwcontext.TerminateGraphics()

	recording := opts.Recording()
	ctx, err := glfwcontext.New(glfwcontext.Config{
		Width:      *opts.Width,
		Height:     *opts.Height,
		Title:      windowTitle,
		Fullscreen: *opts.Fullscreen && !recording,
		Visible:    !recording,
	})
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	defer ctx.Shutdown()
	ctx.MakeCurrent()

	dev, err := glbackend.New()
	if err != nil {
		return err
	}

	// recordings render offscreen at the requested size
	width, height := *opts.Width, *opts.Height
	if !recording {
		width, height = ctx.GetFramebufferSize()
	}
	r, err := renderer.New(dev, renderer.Assets{
		Programs: programs,
		ColorMap: bundle.ColorMap,
		Skybox:   bundle.Skybox,
	}, width, height)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	if recording {
		return record(dev, r, &state, opts)
	}
	return interactive(ctx, r, &state, opts)
}

func interactive(ctx graphics.Context, r *renderer.Renderer, state *options.AppState, opts *options.Options) error {
	for _, key := range toggleKeys {
		ctx.OnKey(key, func() {
			if name, on, ok := state.ToggleKey(key); ok {
				logger.Log.Info("setting toggled", zap.String("setting", name), zap.Bool("enabled", on))
			}
		})
	}

	width, height := ctx.GetFramebufferSize()
	state.MouseX, state.MouseY = float32(width)*0.5, float32(height)*0.5
	lastX, lastY := ctx.CursorPosition()

	start := ctx.Time()
	fps := newFPSCounter(opts.FPSInterval, start)

	logger.Log.Info("starting interactive render loop")
	for !ctx.ShouldClose() {
		width, height := ctx.GetFramebufferSize()
		if err := r.Resize(width, height); err != nil {
			return err
		}
		if width == 0 || height == 0 {
			ctx.EndFrame()
			continue
		}

		// the pointer only moves the camera once it has actually moved
		if x, y := ctx.CursorPosition(); x != lastX || y != lastY {
			state.MouseX, state.MouseY = x, y
			lastX, lastY = x, y
		}

		now := ctx.Time()
		r.Render(state, float32(now-start))
		ctx.EndFrame()

		if rate, ok := fps.Frame(now); ok {
			ctx.SetTitle(fmt.Sprintf("%s - %.1f FPS", windowTitle, rate))
			logger.Log.Debug("frame rate", zap.Float64("fps", rate))
		}
	}
	return nil
}

// record renders duration*fps frames at fixed timesteps into an offscreen
// target and encodes them.
func record(dev gpu.Device, r *renderer.Renderer, state *options.AppState, opts *options.Options) error {
	width, height := r.Size()
	out, err := gpu.NewTargetFormat(dev, width, height, gpu.RGBA8)
	if err != nil {
		return fmt.Errorf("failed to create output target: %w", err)
	}
	defer out.Destroy(dev)

	enc, err := encoder.Start(encoder.Settings{
		Output:     *opts.Record,
		Width:      width,
		Height:     height,
		FPS:        *opts.FPS,
		Codec:      *opts.Codec,
		FFmpegPath: *opts.FFmpegPath,
	})
	if err != nil {
		return err
	}

	fps := *opts.FPS
	frames := int(math.Round(*opts.Duration * float64(fps)))
	for i := 0; i < frames; i++ {
		r.RenderTo(out.Framebuffer, state, float32(i)/float32(fps))
		if err := enc.WriteFrame(r.ReadPixels(out.Framebuffer)); err != nil {
			if cerr := enc.Close(); cerr != nil {
				return cerr
			}
			return err
		}
		if (i+1)%fps == 0 {
			logger.Log.Debug("recorded", zap.Int("frame", i+1), zap.Int("of", frames))
		}
	}
	return enc.Close()
}
