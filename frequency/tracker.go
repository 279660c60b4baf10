package frequency

import (
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/bidforge/bidforge/util/timeutil"
)

// Tracker counts ad exposures per (user, campaign) pair inside a trailing window.
// State is sharded by key hash so concurrent requests for unrelated users never
// contend on the same mutex. Expired exposures are pruned lazily on access.
type Tracker struct {
	shards []*shard
	clock  timeutil.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[exposureKey][]time.Time
}

type exposureKey struct {
	userID     string
	campaignID string
}

func NewTracker(shardCount int) *Tracker {
	return newTracker(shardCount, timeutil.RealTime{})
}

func newTracker(shardCount int, clock timeutil.Time) *Tracker {
	if shardCount <= 0 {
		shardCount = 1
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[exposureKey][]time.Time)}
	}
	return &Tracker{shards: shards, clock: clock}
}

// TryConsume atomically checks the exposure count within the trailing window and, only
// if it is under cap, records a new exposure and returns true. Check and increment are
// one critical section: two concurrent requests can never both pass the check first and
// then both record. A cap of zero (or less) always denies.
func (t *Tracker) TryConsume(userID, campaignID string, cap int, window time.Duration) bool {
	if cap <= 0 {
		return false
	}

	key := exposureKey{userID: userID, campaignID: campaignID}
	sh := t.shardFor(key)
	now := t.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	live := pruneExpired(sh.entries[key], now.Add(-window))
	if len(live) >= cap {
		sh.entries[key] = live
		return false
	}
	sh.entries[key] = append(live, now)
	return true
}

// Under reports whether the pair is currently below cap, without recording an exposure.
// This is the read-only form used to prune candidates before the auction runs; the
// winner still has to pass TryConsume at commit time.
func (t *Tracker) Under(userID, campaignID string, cap int, window time.Duration) bool {
	if cap <= 0 {
		return false
	}

	key := exposureKey{userID: userID, campaignID: campaignID}
	sh := t.shardFor(key)
	now := t.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	live := pruneExpired(sh.entries[key], now.Add(-window))
	if len(live) == 0 {
		delete(sh.entries, key)
	} else {
		sh.entries[key] = live
	}
	return len(live) < cap
}

// Release forgets the most recent exposure for the pair. Used when a downstream step
// fails after the exposure was consumed, so the user is not charged for an ad that
// never served.
func (t *Tracker) Release(userID, campaignID string) {
	key := exposureKey{userID: userID, campaignID: campaignID}
	sh := t.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if stamps := sh.entries[key]; len(stamps) > 0 {
		sh.entries[key] = stamps[:len(stamps)-1]
	}
}

func (t *Tracker) shardFor(key exposureKey) *shard {
	h := murmur3.New32()
	h.Write([]byte(key.userID))
	h.Write([]byte{0})
	h.Write([]byte(key.campaignID))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

// pruneExpired drops timestamps at or before the cutoff. Entries are appended in time
// order, so the first live index bounds the survivors.
func pruneExpired(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	if i == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[i:]...)
}
