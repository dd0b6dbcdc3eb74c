// Package sitesource supplies candidate dive sites near a position. The
// scheduler consumes it through the narrow Nearby contract; the backing
// store is the app's embedded site database.
package sitesource

import (
	"context"
	"sort"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
)

// #region source

// Source answers nearby-site queries. Results are sorted ascending by
// distance from pos; ties break on site ID so ordering is deterministic.
type Source interface {
	Nearby(ctx context.Context, pos geo.Coordinate, radiusKm float64, limit int) ([]geo.CandidateSite, error)
}

// #endregion source

// #region sort-helper

// sortByDistance orders sites ascending by distance from pos, ties on ID.
func sortByDistance(sites []geo.CandidateSite, pos geo.Coordinate) {
	dist := make(map[string]float64, len(sites))
	for _, s := range sites {
		dist[s.ID] = geo.DistanceKm(pos, s.Center)
	}
	sort.Slice(sites, func(i, j int) bool {
		di, dj := dist[sites[i].ID], dist[sites[j].ID]
		if di != dj {
			return di < dj
		}
		return sites[i].ID < sites[j].ID
	})
}

// #endregion sort-helper

// #region static-source

// Static is an in-memory Source for tests and replay fixtures.
type Static struct {
	Sites []geo.CandidateSite
	// Err, when set, is returned by every Nearby call.
	Err error
}

// Nearby filters Sites by radius and returns them distance-sorted.
func (s *Static) Nearby(ctx context.Context, pos geo.Coordinate, radiusKm float64, limit int) ([]geo.CandidateSite, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var out []geo.CandidateSite
	for _, site := range s.Sites {
		if geo.DistanceKm(pos, site.Center) <= radiusKm {
			out = append(out, site)
		}
	}
	sortByDistance(out, pos)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// #endregion static-source
