package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Tutortoise/catascan-service/classification"
	"github.com/Tutortoise/catascan-service/config"
	ort "github.com/yalue/onnxruntime_go"
)

// resolveModelPath returns the absolute artifact path, defaulting to the
// variant's bundled location for the backend.
func resolveModelPath(cfg config.ModelConfig, v classification.Variant) (string, error) {
	path := cfg.Path
	if path == "" {
		path = v.ModelPath(cfg.Backend)
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for model: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("model file not found: %s", abs)
	}
	return abs, nil
}

func onnxLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// initONNXRuntime loads the shared library and starts the environment. The
// returned cleanup must run after every session has been destroyed.
func initONNXRuntime(lib string) (func(), error) {
	if lib == "" {
		lib = onnxLibraryName()
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment with %s: %w", lib, err)
	}
	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Default().Warn("failed to destroy ONNX environment", "error", err)
		}
	}, nil
}

// modelRuntime is the loaded model: its session pool plus whatever has to be
// torn down after the pool.
type modelRuntime struct {
	Variant   classification.Variant
	Spec      classification.ModelSpec
	Backend   string
	Pool      *ModelSessionPool
	teardowns []func()
}

func (m *modelRuntime) Close() {
	if m.Pool != nil {
		m.Pool.Destroy()
	}
	for i := len(m.teardowns) - 1; i >= 0; i-- {
		m.teardowns[i]()
	}
}

// loadModel validates the artifact against the variant and fills a session
// pool of poolSize.
func loadModel(cfg config.ModelConfig, v classification.Variant, poolSize int, logger *slog.Logger) (*modelRuntime, error) {
	path, err := resolveModelPath(cfg, v)
	if err != nil {
		return nil, err
	}
	spec := classification.SpecFor(v, path, cfg.InputName, cfg.OutputName, cfg.Threads)
	rt := &modelRuntime{Variant: v, Spec: spec, Backend: cfg.Backend}

	if cfg.Backend == config.BackendONNX || cfg.Backend == "" {
		cleanup, err := initONNXRuntime(cfg.Library)
		if err != nil {
			return nil, err
		}
		rt.teardowns = append(rt.teardowns, cleanup)

		if err := classification.ValidateONNXModel(spec); err != nil {
			rt.Close()
			return nil, err
		}
	}

	factory, err := classification.NewSessionFactory(cfg.Backend, spec)
	if err != nil {
		rt.Close()
		return nil, err
	}

	pool, err := NewModelSessionPool(factory, poolSize, HealthCheckPeriod, WithPoolLogger(logger))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create model session pool: %w", err)
	}
	rt.Pool = pool

	logger.Info("model loaded",
		"variant", v.Name,
		"backend", cfg.Backend,
		"path", path,
		"input_shape", spec.InputShape.String(),
		"pool_size", pool.Size())
	return rt, nil
}
