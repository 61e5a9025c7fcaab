// Package metrics provides build observability hooks.
//
// Components receive a Recorder and default to NoopRecorder, so call sites
// never nil-check:
//
//	opts := engine.Options{Recorder: metrics.NoopRecorder{}}
//
// When serve mode exposes /metrics, the stock binary swaps in a
// PrometheusRecorder registered on the same registry the handler scrapes:
//
//	reg := prom.NewRegistry()
//	opts.Recorder = metrics.NewPrometheusRecorder(reg)
//	router.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
