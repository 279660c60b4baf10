package dedupe

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Filter is a cheap first-pass check for "has this user already seen this ad". Each
// user gets a Bloom filter sized for the expected item count and target false positive
// rate. Lookups never miss a recorded exposure (no false negatives) but occasionally
// flag an unseen ad (bounded false positives), so a positive answer only ever costs a
// candidate that the frequency tracker would cap soon anyway. The tracker stays the
// authoritative limiter.
//
// Bits are never cleared per key; Rotate drops all per-user filters wholesale on a
// schedule instead.
type Filter struct {
	mu    sync.RWMutex
	users map[string]*bloom

	bits   uint64 // m
	hashes uint64 // k
}

// NewFilter sizes the per-user filters from the expected number of distinct ads per
// user (n) and the acceptable false positive rate (p):
//
//	m = -(n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
func NewFilter(expectedItems uint64, falsePositiveRate float64) *Filter {
	if expectedItems == 0 {
		expectedItems = 1
	}
	n := float64(expectedItems)
	m := math.Ceil(-(n * math.Log(falsePositiveRate)) / (math.Ln2 * math.Ln2))
	k := math.Round((m / n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	return &Filter{
		users:  make(map[string]*bloom),
		bits:   uint64(m),
		hashes: uint64(k),
	}
}

// MightHaveShown reports whether the ad was possibly shown to the user before.
// False means definitely not shown since the last rotation.
func (f *Filter) MightHaveShown(userID, adKey string) bool {
	f.mu.RLock()
	b, ok := f.users[userID]
	f.mu.RUnlock()
	if !ok {
		return false
	}
	return b.test(adKey, f.bits, f.hashes)
}

// RecordShown marks the ad as shown to the user.
func (f *Filter) RecordShown(userID, adKey string) {
	f.mu.RLock()
	b, ok := f.users[userID]
	f.mu.RUnlock()

	if !ok {
		f.mu.Lock()
		b, ok = f.users[userID]
		if !ok {
			b = newBloom(f.bits)
			f.users[userID] = b
		}
		f.mu.Unlock()
	}
	b.set(adKey, f.bits, f.hashes)
}

// Rotate discards every per-user filter. Run periodically so suppression reflects
// recent exposures only. Satisfies the task runner contract.
func (f *Filter) Rotate() error {
	f.mu.Lock()
	f.users = make(map[string]*bloom)
	f.mu.Unlock()
	return nil
}

// Users reports how many users currently hold a filter.
func (f *Filter) Users() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.users)
}

type bloom struct {
	mu    sync.RWMutex
	words []uint64
}

func newBloom(bits uint64) *bloom {
	return &bloom{words: make([]uint64, (bits+63)/64)}
}

func (b *bloom) set(key string, bits, hashes uint64) {
	h1, h2 := murmur3.Sum128([]byte(key))
	b.mu.Lock()
	for i := uint64(0); i < hashes; i++ {
		pos := (h1 + i*h2) % bits
		b.words[pos/64] |= 1 << (pos % 64)
	}
	b.mu.Unlock()
}

func (b *bloom) test(key string, bits, hashes uint64) bool {
	h1, h2 := murmur3.Sum128([]byte(key))
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := uint64(0); i < hashes; i++ {
		pos := (h1 + i*h2) % bits
		if b.words[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}
