package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// LoadShapefile reads boundary polygons from a shapefile whose DBF carries
// state and area-name attributes under any of the tolerated spellings.
func LoadShapefile(path string, opts Options) ([]model.Boundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	stateIdx := attributeIndex(reader, keyCandidates(opts.StateKey, stateKeys))
	areaIdx := attributeIndex(reader, keyCandidates(opts.AreaKey, areaKeys))

	var set []model.Boundary
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}

		polys := shpPolygonToParts(poly)
		if len(polys) == 0 {
			skipped++
			continue
		}

		b := model.Boundary{Polygons: polys}
		if stateIdx >= 0 {
			b.State = cleanAttribute(reader.Attribute(stateIdx))
		}
		if areaIdx >= 0 {
			b.Name = cleanAttribute(reader.Attribute(areaIdx))
		}
		set = append(set, b)
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return set, nil
}

// attributeIndex finds the first DBF field matching any candidate name.
func attributeIndex(reader *shp.Reader, candidates []string) int {
	fields := reader.Fields()
	for _, cand := range candidates {
		for i, f := range fields {
			name := strings.TrimRight(f.String(), "\x00")
			if strings.EqualFold(name, cand) {
				return i
			}
		}
	}
	return -1
}

func cleanAttribute(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}

// shpPolygonToParts splits a shapefile polygon into outer rings and their
// holes. Shapefile outer rings wind clockwise (negative shoelace area);
// counter-clockwise parts are holes, attached to the outer ring containing
// their first vertex.
func shpPolygonToParts(p *shp.Polygon) []model.Polygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers []model.Polygon
	var holes []model.Ring

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make(model.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, model.Point{Lat: p.Points[j].Y, Lng: p.Points[j].X})
		}
		if len(ring) < 3 {
			continue
		}

		if signedArea(ring) < 0 {
			outers = append(outers, model.Polygon{Rings: []model.Ring{ring}})
		} else {
			holes = append(holes, ring)
		}
	}

	// No winding information worth trusting: treat lone CCW rings as outers.
	if len(outers) == 0 {
		for _, h := range holes {
			outers = append(outers, model.Polygon{Rings: []model.Ring{h}})
		}
		return outers
	}

	for _, hole := range holes {
		for i := range outers {
			if ringContains(outers[i].Rings[0], hole[0].Lat, hole[0].Lng) {
				outers[i].Rings = append(outers[i].Rings, hole)
				break
			}
		}
	}
	return outers
}

// signedArea computes the shoelace area of a ring in lng/lat space.
// Positive means counter-clockwise.
func signedArea(ring model.Ring) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].Lng*ring[j].Lat - ring[j].Lng*ring[i].Lat
	}
	return sum / 2
}
