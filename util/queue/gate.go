package queue

// Gate is a bounded admission control for the auction path. Requests are admitted while
// capacity remains; once saturated, TryEnter fails immediately and the caller rejects
// the request. Admission never blocks: an auction that queued past its deadline would
// be dead work anyway, so reject-new is the only policy applied here.
type Gate struct {
	slots chan struct{}
}

// NewGate returns a gate admitting at most capacity concurrent holders.
// A non-positive capacity disables admission control entirely.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		return &Gate{}
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// TryEnter claims a slot if one is free. Callers that got true must call Leave.
func (g *Gate) TryEnter() bool {
	if g.slots == nil {
		return true
	}
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Leave releases a slot claimed by TryEnter.
func (g *Gate) Leave() {
	if g.slots == nil {
		return
	}
	<-g.slots
}

// Depth reports the number of currently held slots.
func (g *Gate) Depth() int {
	if g.slots == nil {
		return 0
	}
	return len(g.slots)
}
