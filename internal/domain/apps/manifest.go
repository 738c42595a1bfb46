package apps

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// Manifest is the on-disk YAML document describing installable apps.
type Manifest struct {
	Apps []App `yaml:"apps"`
}

// LoadManifest reads a YAML manifest file and registers every app in it.
// A missing file is not an error; deployments without a manifest run with
// the built-in system apps only. Returns the number of apps loaded.
func (r *Registry) LoadManifest(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		r.logger.Warn("App manifest not found, using built-ins only",
			zap.String("path", path),
		)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return 0, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	var loaded, failed int
	for _, app := range manifest.Apps {
		if err := r.Register(app); err != nil {
			failed++
			r.logger.Warn("Skipping app manifest entry",
				zap.String("package_name", app.PackageName),
				zap.Error(err),
			)
			continue
		}
		loaded++
	}

	r.logger.Info("App manifest loaded",
		zap.String("path", path),
		zap.Int("loaded", loaded),
		zap.Int("failed", failed),
	)
	return loaded, nil
}

// SeedDefaults registers the built-in system apps unless the manifest
// already defined them.
func (r *Registry) SeedDefaults(dashboardPkg, corePkg string) {
	if _, ok := r.Get(dashboardPkg); !ok {
		_ = r.Register(App{
			PackageName: dashboardPkg,
			Name:        "Dashboard",
			Kind:        KindSystem,
			Streams:     []string{"*"},
		})
	}
	if _, ok := r.Get(corePkg); !ok {
		_ = r.Register(App{
			PackageName: corePkg,
			Name:        "Live Captions",
			Kind:        KindCore,
			Streams:     []string{"transcription:*", "translation:*", "vad"},
		})
	}
}
