// Package api hosts the HTTP adapter in front of the link pipeline. Notable
// routes:
//   - POST /v1/links to submit a message that may contain a supported link.
//   - GET /v1/requests/{request_id} for the tracked status of a submission.
//   - GET /v1/users/{requester_id}/preferences and
//     POST /v1/users/{requester_id}/preferences/{flag}/toggle.
//   - GET /healthz / readyz for probes, GET /metrics for Prometheus.
package api
