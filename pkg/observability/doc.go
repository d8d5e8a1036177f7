/*
Package observability exposes Prometheus metrics for the espalier Service.

Metrics are recorded through lifecycle hooks, so the Service itself never
depends on Prometheus:

	m := observability.NewMetrics(prometheus.NewRegistry())
	svc := espalier.New(reg, store, espalier.WithHooks(m.Hooks()))
*/
package observability
