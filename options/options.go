package options

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"
)

type Options struct {
	Width      *int
	Height     *int
	Fullscreen *bool
	AssetRoot  *string // overrides asset root discovery
	Config     *string // TOML file overlaid on DefaultState
	Profile    *string // shader profile: core, es or translate
	LogLevel   *string
	Help       *bool

	// Recording
	Record     *string // output file; empty runs interactively
	Duration   *float64
	FPS        *int
	Codec      *string
	FFmpegPath *string
	// FPSInterval is how often the window title reports the frame rate.
	FPSInterval time.Duration
}

// NewFlagSet registers every option on a new flag set.
func NewFlagSet(name string, output io.Writer) (*flag.FlagSet, *Options) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	o := &Options{
		Width:       fs.Int("width", 1200, "Window or output width in pixels"),
		Height:      fs.Int("height", 800, "Window or output height in pixels"),
		Fullscreen:  fs.Bool("fullscreen", false, "Borderless fullscreen on the primary monitor"),
		AssetRoot:   fs.String("assets", "", "Directory containing assets/ and shader/ (searched for if empty)"),
		Config:      fs.String("config", "", "TOML file with initial render settings"),
		Profile:     fs.String("profile", "core", "Shader profile: core, es or translate"),
		LogLevel:    fs.String("log-level", "info", "Log level: debug, info, warn or error"),
		Help:        fs.Bool("help", false, "Show help message"),
		Record:      fs.String("record", "", "Render offscreen and encode to this file"),
		Duration:    fs.Float64("duration", 10.0, "Duration to record in seconds"),
		FPS:         fs.Int("fps", 60, "Frames per second for recording"),
		Codec:       fs.String("codec", "h264", "Video codec for recording: h264 or h265"),
		FFmpegPath:  fs.String("ffmpeg", "", "Path to ffmpeg executable"),
		FPSInterval: 500 * time.Millisecond,
	}
	return fs, o
}

// Parse parses command line arguments, without the program name.
func Parse(args []string, output io.Writer) (*Options, error) {
	fs, o := NewFlagSet("goblackhole", output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *o.Help {
		fs.PrintDefaults()
		return o, nil
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Recording reports whether frames go to a file instead of a window.
func (o *Options) Recording() bool {
	return o.Record != nil && *o.Record != ""
}

func (o *Options) Validate() error {
	var errs []error
	if *o.Width <= 0 || *o.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid size %dx%d", *o.Width, *o.Height))
	}
	if o.Recording() {
		if *o.FPS <= 0 {
			errs = append(errs, fmt.Errorf("fps must be positive, got %d", *o.FPS))
		}
		if *o.Duration <= 0 {
			errs = append(errs, fmt.Errorf("duration must be positive, got %g", *o.Duration))
		}
		switch *o.Codec {
		case "h264", "h265":
		default:
			errs = append(errs, fmt.Errorf("unsupported codec %q", *o.Codec))
		}
	}
	return errors.Join(errs...)
}
