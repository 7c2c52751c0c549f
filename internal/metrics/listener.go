package metrics

import "github.com/joao-brasil/connpool/internal/events"

// Listener adapts pool events onto the Prometheus counters above,
// mirroring the teacher's inline metrics.XxxWithLabelValues(...).Inc()
// calls scattered through pool.go, now centralized behind the
// events.Listener interface so the pool itself never imports Prometheus.
type Listener struct{}

func (Listener) OnPoolCreated(events.PoolCreated) {}

func (Listener) OnPoolReady(events.PoolReady) {}

func (Listener) OnPoolCleared(e events.PoolCleared) {
	Generation.WithLabelValues(e.PoolID).Set(float64(e.Generation))
}

func (Listener) OnPoolClosed(events.PoolClosed) {}

func (Listener) OnConnectionCreated(e events.ConnectionCreated) {
	ConnectionsCreatedTotal.WithLabelValues(e.PoolID).Inc()
}

func (Listener) OnConnectionReady(events.ConnectionReady) {}

func (Listener) OnConnectionClosed(e events.ConnectionClosed) {
	ConnectionsClosedTotal.WithLabelValues(e.PoolID, string(e.Reason)).Inc()
}

func (Listener) OnCheckOutStarted(events.CheckOutStarted) {}

func (Listener) OnCheckedOut(e events.CheckedOut) {
	CheckOutsTotal.WithLabelValues(e.PoolID, "success").Inc()
}

func (Listener) OnCheckOutFailed(e events.CheckOutFailed) {
	CheckOutsTotal.WithLabelValues(e.PoolID, "failure").Inc()
	CheckOutFailuresTotal.WithLabelValues(e.PoolID, string(e.Reason)).Inc()
}

func (Listener) OnCheckedIn(events.CheckedIn) {}
