package dms

import "time"

// Observer receives operation outcomes for instrumentation.
type Observer interface {
	OperationCompleted(op string, err error, elapsed time.Duration)
	BatchItemCompleted(op string, err error)
	GatewayCallCompleted(call string, err error, elapsed time.Duration)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) OperationCompleted(string, error, time.Duration)   {}
func (NopObserver) BatchItemCompleted(string, error)                  {}
func (NopObserver) GatewayCallCompleted(string, error, time.Duration) {}
