package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryProvider defines the interface for accessing the interpreter's
// metrics registry. This allows consumers of the strand library to expose
// metrics via their chosen method (e.g., a Prometheus HTTP endpoint).
type RegistryProvider interface {
	// Registry returns the Prometheus registry containing strand metrics.
	Registry() *prometheus.Registry
}
