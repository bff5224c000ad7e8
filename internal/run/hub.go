package run

import (
	"slices"
	"sync"
	"sync/atomic"

	"murmur/internal/session"
)

// subscriberBuffer bounds each event stream; a slow reader loses events
// rather than stalling the audio thread.
const subscriberBuffer = 64

type subscriber struct {
	C chan session.Event
}

// hub fans session events out to control-socket subscribers. The subscriber
// list is copied on write, so publish takes no lock.
type hub struct {
	mu   sync.Mutex // serializes writers of subs
	subs atomic.Pointer[[]*subscriber]
}

func newHub() *hub {
	h := &hub{}
	h.subs.Store(&[]*subscriber{})
	return h
}

func (h *hub) subscribe() (*subscriber, func()) {
	sub := &subscriber{C: make(chan session.Event, subscriberBuffer)}
	h.mu.Lock()
	next := append(slices.Clone(*h.subs.Load()), sub)
	h.subs.Store(&next)
	h.mu.Unlock()
	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			next := slices.DeleteFunc(slices.Clone(*h.subs.Load()), func(s *subscriber) bool { return s == sub })
			h.subs.Store(&next)
			h.mu.Unlock()
		})
	}
}

// publish never blocks. It returns how many subscribers missed ev.
func (h *hub) publish(ev session.Event) int {
	dropped := 0
	for _, sub := range *h.subs.Load() {
		select {
		case sub.C <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *hub) count() int {
	return len(*h.subs.Load())
}
