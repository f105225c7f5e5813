// Package main hosts the linkloader service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts chat messages on POST /v1/links, extracts the first supported link and
//     hands it to the lifecycle manager. Request records and per-user preferences are readable over /v1 as well.
//   - Canonicalization: links are resolved with a HEAD probe, normalized (tracking parameters and "www." stripped)
//     and classified as video, photo gallery or audio-only. The canonical URL is the cache key.
//   - Cache: previously delivered artifact refs are kept per canonical URL in memory, Postgres or Redis with a
//     rolling retention window. A hit is re-delivered without running any extractor.
//   - Fetch: on a miss, extraction jobs run on a bounded worker pool through external extractor programs, paced per
//     source host. Gallery posts get a follow-up audio job; video posts run video and audio jobs in parallel.
//   - Assembly & delivery: downloaded files are grouped into media batches of at most ten, captioned, and handed to
//     the delivery transport. Delivered refs are written back to the cache.
//   - Plumbing: Viper loads config from a file and LINKLOADER_* env vars; zap provides structured logging;
//     Prometheus metrics are served on /metrics; delivery events go to Pub/Sub or an in-memory sink.
//
// Operational notes:
//   - Every request gets one status message that moves from downloading to uploading and is deleted on success.
//   - The per-request workspace is removed after a short grace period whatever the outcome.
//   - The process reacts to SIGINT/SIGTERM by closing intake, letting accepted links finish and draining the pool.
//
// Run locally: go run ./cmd/linkloader -config config.yaml (or rely solely on env overrides).
package main
