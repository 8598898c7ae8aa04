// Package metrics provides Prometheus instrumentation for the bridge.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	Connects       prometheus.Counter
	Disconnects    prometheus.Counter
	Reconnects     prometheus.Counter
	LinesIn        prometheus.Counter
	LinesOut       prometheus.Counter
	MalformedLines prometheus.Counter
	EventsOut      prometheus.Counter
	ListenerPanics prometheus.Counter

	// Gauges
	ConnectedGauge prometheus.Gauge
)

// Init registers metrics (idempotent). The library code nil-checks
// through the helpers below, so tests run without registration.
func Init() {
	once.Do(func() {
		Connects = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_connects_total", Help: "Number of successful connection attempts"})
		Disconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_disconnects_total", Help: "Number of unexpected transport closures"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_reconnects_total", Help: "Number of scheduled reconnect attempts"})
		LinesIn = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_lines_in_total", Help: "Number of protocol lines received"})
		LinesOut = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_lines_out_total", Help: "Number of protocol lines sent"})
		MalformedLines = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_malformed_lines_total", Help: "Number of inbound lines dropped as malformed"})
		EventsOut = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_chat_events_total", Help: "Number of chat events published to listeners"})
		ListenerPanics = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_listener_panics_total", Help: "Number of recovered listener panics"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "irc_connected", Help: "Whether a transport connection is open (1) or not (0)"})
	})
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func IncConnect()       { inc(Connects) }
func IncDisconnect()    { inc(Disconnects) }
func IncReconnect()     { inc(Reconnects) }
func IncLineIn()        { inc(LinesIn) }
func IncLineOut()       { inc(LinesOut) }
func IncMalformed()     { inc(MalformedLines) }
func IncEventOut()      { inc(EventsOut) }
func IncListenerPanic() { inc(ListenerPanics) }

// SetConnected flips the connection gauge.
func SetConnected(up bool) {
	if ConnectedGauge == nil {
		return
	}
	if up {
		ConnectedGauge.Set(1)
	} else {
		ConnectedGauge.Set(0)
	}
}
