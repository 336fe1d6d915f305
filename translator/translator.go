// Package translator converts GLSL ES 3.00 sources to desktop GLSL 4.10.
package translator

import (
	"context"
	"fmt"
	"sync"

	"github.com/richinsley/goblackhole/gpu"
	"github.com/richinsley/goblackhole/logger"
	gst "github.com/richinsley/goshadertranslator"
	"go.uber.org/zap"
)

var (
	once       sync.Once
	translator *gst.ShaderTranslator
	initErr    error
)

// Result is a translated stage.
type Result struct {
	Code string
	// Names maps each declared variable to the name emitted in Code.
	Names map[string]string
}

// GetTranslator returns the process-wide translator, creating it on first use.
func GetTranslator() (*gst.ShaderTranslator, error) {
	once.Do(func() {
		translator, initErr = gst.NewShaderTranslator(context.Background())
		if initErr != nil {
			initErr = fmt.Errorf("failed to create shader translator: %w", initErr)
			return
		}
		logger.Log.Debug("shader translator ready")
	})
	return translator, initErr
}

// Translate compiles an ES 3.00 stage and emits GLSL 4.10.
func Translate(stage gpu.Stage, source string) (*Result, error) {
	t, err := GetTranslator()
	if err != nil {
		return nil, err
	}
	out, err := t.TranslateShader(source, stage.String(), gst.ShaderSpecWebGL2, gst.OutputFormatGLSL410)
	if err != nil {
		return nil, fmt.Errorf("%s shader translation failed: %w", stage, err)
	}
	names := make(map[string]string, len(out.Variables))
	for name, v := range out.Variables {
		names[name] = v.MappedName
	}
	logger.Log.Debug("translated shader", zap.Stringer("stage", stage), zap.Int("variables", len(names)))
	return &Result{Code: out.Code, Names: names}, nil
}
