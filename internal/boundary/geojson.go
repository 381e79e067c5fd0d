package boundary

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// Property key spellings seen across historical boundary exports.
var (
	stateKeys = []string{"state", "statename", "state_name", "admin1name", "name_1"}
	areaKeys  = []string{"lganame", "lga", "lga_name", "areaname", "area_name", "admin2name", "name_2", "name"}
)

// LoadGeoJSON reads a GeoJSON FeatureCollection of Polygon/MultiPolygon
// features carrying state and area-name properties. Features with unusable
// geometry are skipped, not fatal.
func LoadGeoJSON(path string, opts Options) ([]model.Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read geojson %s", path)
	}
	return ParseGeoJSON(data, opts)
}

// ParseGeoJSON decodes a FeatureCollection from raw bytes.
func ParseGeoJSON(data []byte, opts Options) ([]model.Boundary, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "boundary: parse geojson")
	}

	stateCands := keyCandidates(opts.StateKey, stateKeys)
	areaCands := keyCandidates(opts.AreaKey, areaKeys)

	var set []model.Boundary
	var skipped int
	for _, f := range fc.Features {
		polys := geometryToPolygons(f.Geometry)
		if len(polys) == 0 {
			skipped++
			continue
		}
		set = append(set, model.Boundary{
			State:    propertyValue(f.Properties, stateCands),
			Name:     propertyValue(f.Properties, areaCands),
			Polygons: polys,
		})
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped geojson features without polygon geometry",
			zap.Int("skipped", skipped),
		)
	}
	return set, nil
}

// propertyValue resolves the first matching property under any candidate key
// spelling, case-insensitively.
func propertyValue(props map[string]any, keys []string) string {
	for _, key := range keys {
		for k, v := range props {
			if !strings.EqualFold(k, key) {
				continue
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func geometryToPolygons(g geom.T) []model.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		if p, ok := polygonFromGeom(t); ok {
			return []model.Polygon{p}
		}
	case *geom.MultiPolygon:
		var polys []model.Polygon
		for i := 0; i < t.NumPolygons(); i++ {
			if p, ok := polygonFromGeom(t.Polygon(i)); ok {
				polys = append(polys, p)
			}
		}
		return polys
	}
	return nil
}

func polygonFromGeom(p *geom.Polygon) (model.Polygon, bool) {
	if p == nil || p.NumLinearRings() == 0 {
		return model.Polygon{}, false
	}
	var out model.Polygon
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		ring := make(model.Ring, 0, len(coords))
		for _, c := range coords {
			// GeoJSON order is lng, lat.
			ring = append(ring, model.Point{Lat: c[1], Lng: c[0]})
		}
		if len(ring) < 3 {
			if i == 0 {
				return model.Polygon{}, false
			}
			continue
		}
		out.Rings = append(out.Rings, ring)
	}
	return out, len(out.Rings) > 0
}
