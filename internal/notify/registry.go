package notify

import "sync"

// UsageEvent is published after a successful generation incremented a user's
// counter, so interested subscribers can refresh what they show.
type UsageEvent struct {
	UserID  string
	Current int
	Tier    string
}

// Registry is an explicit publish/subscribe hub. It is constructed at the
// composition root and passed to whoever needs it; there is no package-level
// instance.
type Registry struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(UsageEvent)
}

func NewRegistry() *Registry {
	return &Registry{subs: map[int]func(UsageEvent){}}
}

// Subscribe registers fn and returns an unsubscribe handle.
func (r *Registry) Subscribe(fn func(UsageEvent)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Publish delivers ev to every current subscriber. Delivery is synchronous;
// subscription order is not guaranteed.
func (r *Registry) Publish(ev UsageEvent) {
	r.mu.Lock()
	fns := make([]func(UsageEvent), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
