// Package main hosts the availability service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server serves stored availability per date, per-source status, the static pricing
//     table, and a refresh trigger that runs every enabled source and waits for the result.
//   - Orchestrator: each run fans out over the enabled site adapters with bounded concurrency. A source's result is
//     committed to the in-memory result store and the health tracker in one step; failures keep the previous
//     snapshot. Consecutive failures past the threshold raise one alert per incident, and the first success after
//     an alert sends a recovery notice.
//   - Fetch sessions: adapters get a page from internal/session. Script-driven sites get a chromedp tab from the
//     shared browser; others start on a colly fetch that is promoted to the browser when the detector asks for it.
//     Every session has a hard timeout and always releases its page.
//   - Side channels: failure HTML goes to the configured artifact store (memory/local/GCS). Run lifecycle events
//     are batched by the events hub to a log sink, Prometheus, and a Pub/Sub run-completed publisher.
//
// Operational notes:
//   - A startup run fills the store; an optional interval schedules more. External refreshes that overlap a running
//     run get 409.
//   - Chatwork notifications, the challenge solver, and Pub/Sub degrade to logged no-ops when unconfigured.
//
// Quick checklist:
//   - Configure env vars: SAUNA_SERVER_PORT or PORT, SAUNA_SCRAPER_CONCURRENCY, SAUNA_NOTIFY_ENABLED,
//     CHATWORK_API_TOKEN, CHATWORK_ROOM_ID, FLARESOLVERR_URL, SAUNA_SOURCES_ENABLED.
//   - Run locally: go run ./cmd/availability -config config.yaml
package main
