package boundary

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// Options override the property/attribute keys the loaders read names from.
// Empty fields fall back to the built-in candidate spellings.
type Options struct {
	StateKey string
	AreaKey  string
}

// keyCandidates puts an explicit override ahead of the default spellings.
func keyCandidates(override string, defaults []string) []string {
	if override == "" {
		return defaults
	}
	return append([]string{override}, defaults...)
}

// Load reads administrative boundaries from a GeoJSON or shapefile path,
// chosen by extension.
func Load(path string, opts Options) ([]model.Boundary, error) {
	var (
		boundaries []model.Boundary
		err        error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		boundaries, err = LoadGeoJSON(path, opts)
	case ".shp":
		boundaries, err = LoadShapefile(path, opts)
	default:
		return nil, eris.Errorf("boundary: unsupported format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("boundary: loaded",
		zap.String("path", path),
		zap.Int("areas", len(boundaries)),
	)
	return boundaries, nil
}
