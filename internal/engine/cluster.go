package engine

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// earthRadiusM is the spherical-Earth mean radius used by the haversine
// distance, in meters.
const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance in meters between two
// latitude/longitude points on a spherical Earth.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// detectClusters compares every coordinate pair within each enumerator's own
// submissions and records symmetric partner links for pairs at or under the
// cluster radius. Scoping to the enumerator keeps the work O(k²) per group
// rather than O(n²) global, and intentionally ignores cross-enumerator
// coincidence.
//
// Groups are disjoint record sets, so fanning them out across workers never
// races: a pair update only ever touches two records of the same group.
func (e *Engine) detectClusters(ctx context.Context, records []*model.DerivedRecord) error {
	groups := make(map[string][]*model.DerivedRecord)
	for _, rec := range records {
		if !rec.HasCoords() {
			continue
		}
		groups[rec.EnumeratorID] = append(groups[rec.EnumeratorID], rec)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ClusterWorkers)

	for _, group := range groups {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "engine: clustering cancelled")
			}
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					a, b := group[i], group[j]
					d := HaversineM(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
					if d <= e.opts.ClusterRadiusM {
						a.Quality.AddPartner(b.SubmissionID, d)
						b.Quality.AddPartner(a.SubmissionID, d)
					}
				}
			}
			for _, rec := range group {
				if len(rec.Quality.Partners()) > 0 {
					rec.Quality.AddFlag(model.FlagClusteredInterview)
				}
			}
			return nil
		})
	}

	return g.Wait()
}
