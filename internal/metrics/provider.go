package metrics

// Metric names emitted by the engine.
const (
	IntentsSubmitted = "intents_submitted_total"
	Matches          = "matches_total"
	MatchVolume      = "match_volume_total"
	Fallbacks        = "fallbacks_total"
	Cancels          = "cancels_total"
	OperationErrors  = "operation_errors_total"
	StoreErrors      = "store_errors_total"
	ActiveIntents    = "active_intents"
	OperationLatency = "operation_latency_ms"
)

// Provider is the metrics sink used by the engine.
type Provider interface {
	SetGauge(name string, value float64)
	IncCounter(name string, delta float64)
	Observe(name string, value float64)
}

type Noop struct{}

func (Noop) SetGauge(string, float64)   {}
func (Noop) IncCounter(string, float64) {}
func (Noop) Observe(string, float64)    {}
