// Package metrics re-exports the in-process counter/gauge registry this
// module instruments itself with, grounded on work/worker.go's
// metrics.NewRegisteredCounter("miner/timelimitreached", nil) call
// pattern. We keep only the in-process registry (rcrowley/go-metrics);
// the teacher's server-side exporters (prometheus, influxdb) have no
// home in this core — see DESIGN.md.
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// Enabled mirrors go-ethereum/klaytn's global metrics switch; disabled by
// default so tests don't pay for instrumentation.
var Enabled = false

func NewRegisteredCounter(name string, r gometrics.Registry) gometrics.Counter {
	if !Enabled {
		return gometrics.NilCounter{}
	}
	if r == nil {
		r = gometrics.DefaultRegistry
	}
	return gometrics.GetOrRegisterCounter(name, r)
}

func NewRegisteredGauge(name string, r gometrics.Registry) gometrics.Gauge {
	if !Enabled {
		return gometrics.NilGauge{}
	}
	if r == nil {
		r = gometrics.DefaultRegistry
	}
	return gometrics.GetOrRegisterGauge(name, r)
}
