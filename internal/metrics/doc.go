// Package metrics provides the observability hooks of the build pipeline.
//
// Components receive a Recorder and default to NoopRecorder, so metrics
// collection needs no nil checks at call sites:
//
//	runner := build.NewRunner(cfg, build.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder registers its collectors on the given registry, and
// HTTPHandler exposes that registry for scraping (watch mode serves it on
// monitoring.metrics.listen).
package metrics
