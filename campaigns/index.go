package campaigns

import (
	"math"
	"sync"

	"github.com/golang/glog"
)

// Index answers "which campaigns could possibly serve at this location with these
// interests". It is a recall-oriented pre-filter: the result is an unordered candidate
// set and downstream eligibility checks make the final call.
//
// Campaigns are held in three structures: a coarse lat/lon grid covering their target
// zones, an inverted index keyed by interest tag, and a global bucket for campaigns
// with no geo targeting (or whose zones would cover more grid cells than allowed).
// Reads vastly outnumber writes, so a single RWMutex guards the whole index.
type Index struct {
	mu sync.RWMutex

	cellSize float64
	maxCells int

	grid      map[cellKey]map[string]struct{}
	interests map[string]map[string]struct{}
	global    map[string]struct{}

	// membership remembers where each campaign was filed so Remove works by ID alone.
	membership map[string]indexEntry
}

type cellKey struct {
	row, col int32
}

type indexEntry struct {
	cells     []cellKey
	interests []string
	global    bool
}

// NewIndex creates an index with the given grid cell edge (degrees of latitude) and the
// cell-cover limit beyond which a campaign is demoted to the global bucket.
func NewIndex(cellSizeDegrees float64, maxCellsPerCampaign int) *Index {
	return &Index{
		cellSize:   cellSizeDegrees,
		maxCells:   maxCellsPerCampaign,
		grid:       make(map[cellKey]map[string]struct{}),
		interests:  make(map[string]map[string]struct{}),
		global:     make(map[string]struct{}),
		membership: make(map[string]indexEntry),
	}
}

// Add files a campaign under its target zones and interests. Re-adding an ID replaces
// the previous entry.
func (idx *Index) Add(c *Campaign) {
	cells, demoted := idx.coverCells(c)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.membership[c.ID]; ok {
		idx.removeLocked(c.ID)
	}

	entry := indexEntry{interests: append([]string(nil), c.Interests...)}

	if len(c.Zones) == 0 || demoted {
		idx.global[c.ID] = struct{}{}
		entry.global = true
	} else {
		for _, cell := range cells {
			bucket, ok := idx.grid[cell]
			if !ok {
				bucket = make(map[string]struct{})
				idx.grid[cell] = bucket
			}
			bucket[c.ID] = struct{}{}
		}
		entry.cells = cells
	}

	for _, it := range c.Interests {
		bucket, ok := idx.interests[it]
		if !ok {
			bucket = make(map[string]struct{})
			idx.interests[it] = bucket
		}
		bucket[c.ID] = struct{}{}
	}

	idx.membership[c.ID] = entry
}

// Remove unfiles a campaign by ID. Unknown IDs are a no-op.
func (idx *Index) Remove(campaignID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(campaignID)
}

func (idx *Index) removeLocked(campaignID string) {
	entry, ok := idx.membership[campaignID]
	if !ok {
		return
	}
	for _, cell := range entry.cells {
		if bucket, ok := idx.grid[cell]; ok {
			delete(bucket, campaignID)
			if len(bucket) == 0 {
				delete(idx.grid, cell)
			}
		}
	}
	for _, it := range entry.interests {
		if bucket, ok := idx.interests[it]; ok {
			delete(bucket, campaignID)
			if len(bucket) == 0 {
				delete(idx.interests, it)
			}
		}
	}
	if entry.global {
		delete(idx.global, campaignID)
	}
	delete(idx.membership, campaignID)
}

// Query returns the IDs of every campaign filed under the location's grid cell, any of
// the given interests, or the global bucket. The result is deduplicated and unordered.
func (idx *Index) Query(lat, lon float64, interests []string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{}, len(idx.global))
	for id := range idx.global {
		seen[id] = struct{}{}
	}
	if bucket, ok := idx.grid[idx.cellAt(lat, lon)]; ok {
		for id := range bucket {
			seen[id] = struct{}{}
		}
	}
	for _, it := range interests {
		if bucket, ok := idx.interests[it]; ok {
			for id := range bucket {
				seen[id] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func (idx *Index) cellAt(lat, lon float64) cellKey {
	return cellKey{
		row: int32(math.Floor(lat / idx.cellSize)),
		col: int32(math.Floor(lon / idx.cellSize)),
	}
}

// coverCells computes the grid cells covered by the campaign's zones. The second return
// is true when the cover exceeds the configured limit and the campaign should be filed
// globally instead.
func (idx *Index) coverCells(c *Campaign) ([]cellKey, bool) {
	cells := make(map[cellKey]struct{})
	for _, z := range c.Zones {
		if z.RadiusKM <= 0 {
			continue
		}
		latSpan := z.RadiusKM / kmPerDegreeLat
		lonScale := math.Cos(z.Lat * math.Pi / 180)
		if lonScale < 0.01 {
			lonScale = 0.01 // near the poles a lon degree is nearly free
		}
		lonSpan := z.RadiusKM / (kmPerDegreeLat * lonScale)

		minCell := idx.cellAt(z.Lat-latSpan, z.Lon-lonSpan)
		maxCell := idx.cellAt(z.Lat+latSpan, z.Lon+lonSpan)
		for row := minCell.row; row <= maxCell.row; row++ {
			for col := minCell.col; col <= maxCell.col; col++ {
				cells[cellKey{row, col}] = struct{}{}
				if idx.maxCells > 0 && len(cells) > idx.maxCells {
					glog.V(2).Infof("campaign %s zones cover more than %d cells, demoting to global bucket", c.ID, idx.maxCells)
					return nil, true
				}
			}
		}
	}

	out := make([]cellKey, 0, len(cells))
	for cell := range cells {
		out = append(out, cell)
	}
	return out, false
}

const kmPerDegreeLat = 111.32
