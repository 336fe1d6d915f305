// Package assets locates the textures and shader programs shipped beside
// the executable.
package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/richinsley/goblackhole/logger"
	"github.com/richinsley/goblackhole/shader"
	"go.uber.org/zap"
)

// MaxDepth is how many parent directories FindRoot climbs.
const MaxDepth = 5

// Bundle holds the paths of everything the renderer loads at startup.
type Bundle struct {
	Root      string
	ColorMap  string
	Skybox    string
	ShaderDir string
}

// markers are files only a real asset root has. Bare assets/ and shader/
// directories are not enough: a source checkout has Go packages by those
// names.
var markers = []string{
	filepath.Join("assets", "color_map.png"),
	filepath.Join("shader", shader.Vertex),
}

func Resolve(root string) Bundle {
	return Bundle{
		Root:      root,
		ColorMap:  filepath.Join(root, markers[0]),
		Skybox:    filepath.Join(root, "assets", "skybox_nebula_dark"),
		ShaderDir: filepath.Join(root, "shader"),
	}
}

// IsRoot reports whether dir holds the color map and the vertex shader.
func IsRoot(dir string) bool {
	for _, m := range markers {
		if !isFile(filepath.Join(dir, m)) {
			return false
		}
	}
	return true
}

// FindRoot returns the first of start and its parents that is an asset
// root.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for i := 0; i < MaxDepth; i++ {
		if IsRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("unable to locate %s and %s from %s; place assets/ and shader/ next to the binary or run from the project root",
		markers[0], markers[1], start)
}

// Locate resolves the bundle from an explicit root, or else searches from
// the executable's directory and then the working directory.
func Locate(override string) (Bundle, error) {
	if override != "" {
		if !IsRoot(override) {
			return Bundle{}, fmt.Errorf("%s does not contain %s and %s", override, markers[0], markers[1])
		}
		return Resolve(override), nil
	}

	var starts []string
	if exe, err := os.Executable(); err == nil {
		starts = append(starts, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		starts = append(starts, wd)
	}
	var lastErr error
	for _, start := range starts {
		root, err := FindRoot(start)
		if err == nil {
			logger.Log.Info("found asset root", zap.String("root", root))
			return Resolve(root), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no directory to search for assets")
	}
	return Bundle{}, lastErr
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
