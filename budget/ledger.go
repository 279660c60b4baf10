package budget

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// Ledger tracks spend against daily budgets, one atomic counter per campaign so
// contention stays per campaign instead of serializing all traffic. Amounts are held
// in integer micro-units to make the compare-and-swap exact.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

type account struct {
	budgetMicros int64
	spentMicros  int64 // atomic
}

const microsPerUnit = 1e6

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*account)}
}

// Register creates or resizes a campaign's daily budget. Accumulated spend is kept
// when resizing so a budget bump mid-day does not forgive past spend.
func (l *Ledger) Register(campaignID string, dailyBudget float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[campaignID]; ok {
		acct.budgetMicros = toMicros(dailyBudget)
		return
	}
	l.accounts[campaignID] = &account{budgetMicros: toMicros(dailyBudget)}
}

// Unregister drops a campaign from the ledger.
func (l *Ledger) Unregister(campaignID string) {
	l.mu.Lock()
	delete(l.accounts, campaignID)
	l.mu.Unlock()
}

// TryReserve atomically commits amount against the campaign's remaining daily budget.
// It succeeds only if spent+amount stays within budget; on failure nothing is mutated.
// Unknown campaigns always fail.
func (l *Ledger) TryReserve(campaignID string, amount float64) bool {
	if amount < 0 {
		return false
	}
	acct := l.account(campaignID)
	if acct == nil {
		return false
	}

	amt := toMicros(amount)
	for {
		spent := atomic.LoadInt64(&acct.spentMicros)
		if spent+amt > acct.budgetMicros {
			return false
		}
		if atomic.CompareAndSwapInt64(&acct.spentMicros, spent, spent+amt) {
			return true
		}
	}
}

// Release reverses a reservation after a downstream failure. Never drives spend below
// zero even if called more times than TryReserve succeeded.
func (l *Ledger) Release(campaignID string, amount float64) {
	acct := l.account(campaignID)
	if acct == nil {
		return
	}

	amt := toMicros(amount)
	for {
		spent := atomic.LoadInt64(&acct.spentMicros)
		next := spent - amt
		if next < 0 {
			glog.Errorf("budget release of %f for campaign %s exceeds recorded spend, clamping to zero", amount, campaignID)
			next = 0
		}
		if atomic.CompareAndSwapInt64(&acct.spentMicros, spent, next) {
			return
		}
	}
}

// Spent reports the spend committed so far today for a campaign.
func (l *Ledger) Spent(campaignID string) float64 {
	acct := l.account(campaignID)
	if acct == nil {
		return 0
	}
	return float64(atomic.LoadInt64(&acct.spentMicros)) / microsPerUnit
}

// Remaining reports the budget still available today for a campaign.
func (l *Ledger) Remaining(campaignID string) float64 {
	acct := l.account(campaignID)
	if acct == nil {
		return 0
	}
	rem := acct.budgetMicros - atomic.LoadInt64(&acct.spentMicros)
	return float64(rem) / microsPerUnit
}

// Reset zeroes every campaign's spend. Wired to the day-boundary ticker; satisfies the
// task runner contract.
func (l *Ledger) Reset() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for id, acct := range l.accounts {
		old := atomic.SwapInt64(&acct.spentMicros, 0)
		if old > 0 {
			glog.V(2).Infof("daily budget reset: campaign %s spent %f", id, float64(old)/microsPerUnit)
		}
	}
	return nil
}

func (l *Ledger) account(campaignID string) *account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[campaignID]
}

func toMicros(amount float64) int64 {
	return int64(math.Round(amount * microsPerUnit))
}
