// Package controller owns model lifecycle and generation for one chat
// session. It is structured into small files by concern:
//
//   - controller.go: Controller type, constructor, configure/interrupt/reset.
//   - config.go: Config and package defaults.
//   - session.go: per-session state (model id, handles, KV cache, cancel token).
//   - admission.go: the single load/generate slot and deferred handle release.
//   - load.go: acquisition, warm-up, readiness events.
//   - generate.go: prompt patching, token streaming, completion events.
//   - patch.go: system prompt and thinking-marker policy.
//   - think.go: thinking-delimiter cleanup.
//   - stats.go: time-to-first-token and tokens/sec.
//   - loop.go: Run/Send, the message loop standing in for the isolated context.
//   - events.go, eventpub_memory.go: event publishers.
//   - errors.go: error types and IsX helpers.
//   - status.go: REST projections.
//   - metrics.go: Prometheus collectors.
//
// All controller failures are converted into a single error event; none of
// them terminate the message loop.
package controller
