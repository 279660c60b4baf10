package campaigns

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/glog"
)

// LoadFile reads a JSON snapshot of campaign definitions into the store. The snapshot
// is the read-replica form pulled from the external campaign management system; how it
// gets refreshed (polling or push) is the collaborator's concern.
func LoadFile(path string, store *Store) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read campaigns file %s: %v", path, err)
	}

	var defs []*Campaign
	if err := json.Unmarshal(data, &defs); err != nil {
		return 0, fmt.Errorf("failed to parse campaigns file %s: %v", path, err)
	}

	loaded := 0
	for i, c := range defs {
		if c.ID == "" {
			glog.Errorf("campaigns file %s: entry %d has no id, skipping", path, i)
			continue
		}
		if c.BidPrice < 0 {
			glog.Errorf("campaigns file %s: campaign %s has negative bid price, skipping", path, c.ID)
			continue
		}
		store.Upsert(c)
		loaded++
	}
	return loaded, nil
}
