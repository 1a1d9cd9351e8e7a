package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Prom struct {
	reg *prometheus.Registry
	// Gauges/Counters
	ActiveIntents    prometheus.Gauge
	IntentsSubmitted prometheus.Counter
	Matches          prometheus.Counter
	MatchVolume      prometheus.Counter
	Fallbacks        prometheus.Counter
	Cancels          prometheus.Counter
	OperationErrors  prometheus.Counter
	StoreErrors      prometheus.Counter
	OperationLatency prometheus.Summary
}

func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg:              reg,
		ActiveIntents:    prometheus.NewGauge(prometheus.GaugeOpts{Name: ActiveIntents, Help: "Intents currently open for matching"}),
		IntentsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{Name: IntentsSubmitted, Help: "Total intents submitted"}),
		Matches:          prometheus.NewCounter(prometheus.CounterOpts{Name: Matches, Help: "Total peer-to-peer settlements"}),
		MatchVolume:      prometheus.NewCounter(prometheus.CounterOpts{Name: MatchVolume, Help: "Sum of matched amounts (lossy above 2^53)"}),
		Fallbacks:        prometheus.NewCounter(prometheus.CounterOpts{Name: Fallbacks, Help: "Total intents executed through the venue"}),
		Cancels:          prometheus.NewCounter(prometheus.CounterOpts{Name: Cancels, Help: "Total intents cancelled by their owner"}),
		OperationErrors:  prometheus.NewCounter(prometheus.CounterOpts{Name: OperationErrors, Help: "Total rejected or failed operations"}),
		StoreErrors:      prometheus.NewCounter(prometheus.CounterOpts{Name: StoreErrors, Help: "Total failed writes to the durable store"}),
		OperationLatency: prometheus.NewSummary(prometheus.SummaryOpts{Name: OperationLatency, Help: "Latency of mutating operations in ms"}),
	}
	reg.MustRegister(p.ActiveIntents, p.IntentsSubmitted, p.Matches, p.MatchVolume, p.Fallbacks,
		p.Cancels, p.OperationErrors, p.StoreErrors, p.OperationLatency)
	return p
}

func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

// Registry exposes the private registry for extra collectors.
func (p *Prom) Registry() *prometheus.Registry { return p.reg }

// Implement Provider
func (p *Prom) SetGauge(name string, value float64) {
	switch name {
	case ActiveIntents:
		p.ActiveIntents.Set(value)
	}
}

func (p *Prom) IncCounter(name string, delta float64) {
	if delta < 0 {
		return
	}
	switch name {
	case IntentsSubmitted:
		p.IntentsSubmitted.Add(delta)
	case Matches:
		p.Matches.Add(delta)
	case MatchVolume:
		p.MatchVolume.Add(delta)
	case Fallbacks:
		p.Fallbacks.Add(delta)
	case Cancels:
		p.Cancels.Add(delta)
	case OperationErrors:
		p.OperationErrors.Add(delta)
	case StoreErrors:
		p.StoreErrors.Add(delta)
	}
}

// Observe supports selected summaries/histograms
func (p *Prom) Observe(name string, value float64) {
	switch name {
	case OperationLatency:
		p.OperationLatency.Observe(value)
	default:
		// ignore unknown for now
	}
}
