package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/richinsley/goblackhole/gpu"
	"github.com/richinsley/goblackhole/logger"
	"github.com/richinsley/goblackhole/translator"
	"go.uber.org/zap"
)

// Program file names in the shader directory.
const (
	Vertex      = "simple.vert"
	Main        = "blackhole_main.frag"
	Brightness  = "bloom_brightness_pass.frag"
	LensFlare   = "lens_flare.frag"
	Downsample  = "bloom_downsample.frag"
	Upsample    = "bloom_upsample.frag"
	Composite   = "bloom_composite.frag"
	Tonemapping = "tonemapping.frag"
	Passthrough = "passthrough.frag"
)

// Fragments lists every fragment stage, all paired with Vertex.
var Fragments = []string{
	Main,
	Brightness,
	LensFlare,
	Downsample,
	Upsample,
	Composite,
	Tonemapping,
	Passthrough,
}

// Profile selects how program sources are prepared for the context.
type Profile int

const (
	// Core uses sources as written, for a desktop 3.3+ core context.
	Core Profile = iota
	// ES rewrites sources to GLSL ES 3.00.
	ES
	// Translate rewrites to GLSL ES 3.00, then translates to GLSL 4.10.
	Translate
)

func (p Profile) String() string {
	switch p {
	case ES:
		return "es"
	case Translate:
		return "translate"
	default:
		return "core"
	}
}

func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "core":
		return Core, nil
	case "es":
		return ES, nil
	case "translate":
		return Translate, nil
	}
	return Core, fmt.Errorf("unknown shader profile %q (want core, es or translate)", s)
}

// Program is the source of one linkable program.
type Program struct {
	Name     string
	Vertex   string
	Fragment string
	// Names maps declared uniform names to emitted names. Nil means the
	// sources declare them as written.
	Names map[string]string
}

// UniformName returns the name to query in the linked program.
func (p *Program) UniformName(name string) (string, bool) {
	if p.Names == nil {
		return name, true
	}
	mapped, ok := p.Names[name]
	return mapped, ok
}

// Set holds a Program per fragment file name.
type Set map[string]*Program

// LoadSet reads the vertex stage and every fragment stage from dir.
func LoadSet(dir string, profile Profile) (Set, error) {
	vertex, err := readSource(dir, Vertex, profile)
	if err != nil {
		return nil, err
	}
	var vertexNames map[string]string
	if profile == Translate {
		res, err := translator.Translate(gpu.VertexStage, vertex)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", Vertex, err)
		}
		vertex, vertexNames = res.Code, res.Names
	}

	set := make(Set, len(Fragments))
	for _, name := range Fragments {
		fragment, err := readSource(dir, name, profile)
		if err != nil {
			return nil, err
		}
		prog := &Program{Name: name, Vertex: vertex, Fragment: fragment}
		if profile == Translate {
			res, err := translator.Translate(gpu.FragmentStage, fragment)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			prog.Fragment = res.Code
			prog.Names = make(map[string]string, len(vertexNames)+len(res.Names))
			for k, v := range vertexNames {
				prog.Names[k] = v
			}
			for k, v := range res.Names {
				prog.Names[k] = v
			}
		}
		set[name] = prog
	}
	logger.Log.Info("loaded shader programs", zap.String("dir", dir), zap.Stringer("profile", profile), zap.Int("count", len(set)))
	return set, nil
}

func readSource(dir, name string, profile Profile) (string, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &gpu.AssetNotFoundError{Path: path}
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	src := string(data)
	if profile != Core {
		src = Normalize(name, src)
	}
	return src, nil
}

// Normalize rewrites a desktop GLSL 3.30 source to GLSL ES 3.00. Fragment
// stages get default precision when they declare none, and lose uniform
// initializers, which ES does not allow.
func Normalize(name, src string) string {
	src = strings.ReplaceAll(src, "#version 330 core", "#version 300 es")
	fragment := strings.HasSuffix(name, ".frag")

	lines := strings.Split(strings.TrimSuffix(src, "\n"), "\n")
	var b strings.Builder
	b.Grow(len(src) + 128)
	for i, line := range lines {
		if i > 0 && fragment {
			line = stripUniformInitializer(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if i == 0 && fragment && !strings.Contains(src, "precision ") {
			b.WriteString("precision highp float;\n")
			b.WriteString("precision highp sampler2D;\n")
			b.WriteString("precision highp sampler3D;\n")
			b.WriteString("precision highp samplerCube;\n")
		}
	}
	return b.String()
}

// stripUniformInitializer turns "uniform float x = 1.0;" into "uniform float x;".
func stripUniformInitializer(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "uniform ") {
		return line
	}
	eq := strings.IndexByte(trimmed, '=')
	semi := strings.IndexByte(trimmed, ';')
	if eq < 0 || semi < 0 || eq > semi {
		return line
	}
	indent := line[:len(line)-len(trimmed)]
	return indent + strings.TrimRight(trimmed[:eq], " \t") + ";" + trimmed[semi+1:]
}
