// Package metrics exposes cache activity as Prometheus metrics.
package metrics
