package app

import "go.uber.org/zap"

type attemptState string

const (
	stateStarted        attemptState = "STARTED"
	stateSnapshotTaken  attemptState = "SNAPSHOT_TAKEN"
	stateReserving      attemptState = "RESERVING"
	stateReserved       attemptState = "RESERVED"
	stateOrderPersisted attemptState = "ORDER_PERSISTED"
	stateCartCleared    attemptState = "CART_CLEARED"
	stateEventsEmitted  attemptState = "EVENTS_EMITTED"
	stateCompensating   attemptState = "COMPENSATING"
	stateFailed         attemptState = "FAILED"
)

// attempt tracks one execution of the checkout protocol.
type attempt struct {
	id         string
	customerID int64
	state      attemptState
	log        *zap.Logger
}

func newAttempt(id string, customerID int64, log *zap.Logger) *attempt {
	a := &attempt{
		id:         id,
		customerID: customerID,
		log:        log.With(zap.String("attempt_id", id), zap.Int64("customer_id", customerID)),
	}
	a.advance(stateStarted)
	return a
}

func (a *attempt) advance(next attemptState) {
	a.log.Debug("checkout state", zap.String("from", string(a.state)), zap.String("to", string(next)))
	a.state = next
}
