// Package metrics defines the Prometheus collectors of tenantcore: pool
// construction and acquisition, unit-of-work outcomes and audit recording.
//
// Components accept a *Metrics through an option; nil disables recording.
package metrics
