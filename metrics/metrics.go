// Package metrics exposes Prometheus instrumentation for the
// idle-coordination core: a handful of counters and gauges registered once
// against a prometheus.Registerer, updated from the core's transition hook
// rather than sprinkled through the protocol itself.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/taskmesh/idlecore/idle"
)

// Collector wires an idle.Core's transitions and tickles into a small set
// of Prometheus instruments.
type Collector struct {
	tickles     prometheus.Counter
	sleepy      prometheus.Counter
	asleep      prometheus.Gauge
	wakeLatency prometheus.Histogram

	mu         sync.Mutex // guards fellAsleep
	fellAsleep map[int]time.Time
}

// NewCollector builds and registers the instruments against reg under the
// idlecore_ namespace. reg must not be nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tickles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idlecore_tickles_total",
			Help: "Total number of Tickle calls observed.",
		}),
		sleepy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idlecore_sleepy_transitions_total",
			Help: "Total number of Awake->Sleepy transitions.",
		}),
		asleep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idlecore_asleep_workers",
			Help: "Current number of workers blocked on the condition variable.",
		}),
		wakeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "idlecore_wake_latency_seconds",
			Help:    "Time from a worker falling asleep to being woken.",
			Buckets: prometheus.DefBuckets,
		}),
		fellAsleep: make(map[int]time.Time),
	}
	reg.MustRegister(c.tickles, c.sleepy, c.asleep, c.wakeLatency)
	return c
}

// ObserveTransition is suitable for idle.Core.OnTransition.
func (c *Collector) ObserveTransition(workerIndex int, from, to string) {
	switch {
	case from == "Awake" && to == "Sleepy":
		c.sleepy.Inc()
	case from == "Sleepy" && to == "Asleep":
		c.asleep.Inc()
		c.mu.Lock()
		c.fellAsleep[workerIndex] = time.Now()
		c.mu.Unlock()
	case from == "Asleep" && to == "Awake":
		c.asleep.Dec()
		c.mu.Lock()
		if t, ok := c.fellAsleep[workerIndex]; ok {
			c.wakeLatency.Observe(time.Since(t).Seconds())
			delete(c.fellAsleep, workerIndex)
		}
		c.mu.Unlock()
	}
}

// ObserveTickle is suitable for composing with idle.Core.Tickle; since the
// core itself takes no hook for Tickle, callers wrap it, e.g.:
//
//	core.Tickle(origin)
//	collector.ObserveTickle()
func (c *Collector) ObserveTickle() {
	c.tickles.Inc()
}

// Attach is a convenience that registers ObserveTransition as one of core's
// transition hooks, alongside any others already installed (workerpool.New
// installs its own live/asleep-counting hook, for instance). It does not
// wrap Tickle; callers that want tickle counts should call ObserveTickle
// alongside their own Tickle calls (see the startup injector.Push in
// cmd/idlectl's run command for the pattern).
func Attach(core *idle.Core, c *Collector) {
	core.OnTransition(c.ObserveTransition)
}
