package irc

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestListenerFailureIsolation(t *testing.T) {
	d := newDispatcher()

	cancelBad := d.subscribe(func(ChatEvent) { panic("boom") })
	defer cancelBad()

	got := make(chan ChatEvent, 1)
	cancelGood := d.subscribe(func(ev ChatEvent) { got <- ev })
	defer cancelGood()

	d.publish(ChatEvent{ID: "1", Text: "hello"})

	select {
	case ev := <-got:
		if ev.Text != "hello" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Well-behaved listener never received the event")
	}
}

func TestUnsubscribe(t *testing.T) {
	d := newDispatcher()

	var cancelled int32
	cancel := d.subscribe(func(ChatEvent) { atomic.AddInt32(&cancelled, 1) })

	got := make(chan struct{}, 2)
	defer d.subscribe(func(ChatEvent) { got <- struct{}{} })()

	cancel()
	d.publish(ChatEvent{ID: "1"})

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("Remaining listener never received the event")
	}

	// Give a stale delivery a chance to show up
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&cancelled); n != 0 {
		t.Errorf("Cancelled listener was invoked %d times", n)
	}

	// Cancel is safe to call twice
	cancel()
}

func TestPublishWithoutListeners(t *testing.T) {
	d := newDispatcher()
	d.publish(ChatEvent{ID: "1"})
}
