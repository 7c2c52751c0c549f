package events

import "log"

// LogListener logs each event with the teacher's "[component] message"
// convention (see pool.go/manager.go's log.Printf calls).
type LogListener struct{}

func (LogListener) OnPoolCreated(e PoolCreated) {
	log.Printf("[pool] %s — pool created", e.PoolID)
}

func (LogListener) OnPoolReady(e PoolReady) {
	log.Printf("[pool] %s — pool ready", e.PoolID)
}

func (LogListener) OnPoolCleared(e PoolCleared) {
	log.Printf("[pool] %s — pool cleared, generation=%d", e.PoolID, e.Generation)
}

func (LogListener) OnPoolClosed(e PoolClosed) {
	log.Printf("[pool] %s — pool closed", e.PoolID)
}

func (LogListener) OnConnectionCreated(e ConnectionCreated) {
	log.Printf("[pool] %s — connection %d created", e.PoolID, e.ConnectionID)
}

func (LogListener) OnConnectionReady(e ConnectionReady) {
	log.Printf("[pool] %s — connection %d ready", e.PoolID, e.ConnectionID)
}

func (LogListener) OnConnectionClosed(e ConnectionClosed) {
	log.Printf("[pool] %s — connection %d closed (%s)", e.PoolID, e.ConnectionID, e.Reason)
}

func (LogListener) OnCheckOutStarted(e CheckOutStarted) {
	log.Printf("[pool] %s — checkout started", e.PoolID)
}

func (LogListener) OnCheckedOut(e CheckedOut) {
	log.Printf("[pool] %s — connection %d checked out", e.PoolID, e.ConnectionID)
}

func (LogListener) OnCheckOutFailed(e CheckOutFailed) {
	log.Printf("[pool] %s — checkout failed (%s)", e.PoolID, e.Reason)
}

func (LogListener) OnCheckedIn(e CheckedIn) {
	log.Printf("[pool] %s — connection %d checked in", e.PoolID, e.ConnectionID)
}
