package irc

import (
	"log"
	"sync"

	"github.com/chatwire/ircbridge/internal/metrics"
)

// Listener receives inbound chat events.
type Listener func(ChatEvent)

// dispatcher fans chat events out to subscribed listeners. Listeners
// run on their own goroutines so a slow or broken one never blocks the
// read loop or starves the others.
type dispatcher struct {
	mu   sync.Mutex
	next int
	subs map[int]Listener
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[int]Listener)}
}

// subscribe registers fn and returns a cancel function that removes it
// by handle, not by value.
func (d *dispatcher) subscribe(fn Listener) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

func (d *dispatcher) publish(ev ChatEvent) {
	d.mu.Lock()
	listeners := make([]Listener, 0, len(d.subs))
	for _, fn := range d.subs {
		listeners = append(listeners, fn)
	}
	d.mu.Unlock()

	for _, fn := range listeners {
		fn := fn
		go func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.IncListenerPanic()
					log.Printf("Listener panic: %v", r)
				}
			}()
			fn(ev)
		}()
	}
}
