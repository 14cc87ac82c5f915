package hassclient

import "time"

// Metrics is the instrumentation seam the session controller calls into.
// internal/app/metrics provides the real github.com/prometheus/client_golang
// implementation; tests and callers that don't care about metrics get
// noopMetrics for free via New unless WithMetrics is passed.
type Metrics interface {
	SetConnState(state int)
	SetPendingCommands(n int)
	ObserveCommandDuration(commandType string, d time.Duration)
	IncCommandsTotal(commandType, outcome string)
	IncEventsReceived()
	IncEventsDropped()
}

type noopMetrics struct{}

func (noopMetrics) SetConnState(int)                                {}
func (noopMetrics) SetPendingCommands(int)                          {}
func (noopMetrics) ObserveCommandDuration(string, time.Duration)     {}
func (noopMetrics) IncCommandsTotal(string, string)                 {}
func (noopMetrics) IncEventsReceived()                               {}
func (noopMetrics) IncEventsDropped()                                 {}
