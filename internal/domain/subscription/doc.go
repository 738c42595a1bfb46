// Package subscription tracks which data streams each app wants, per
// (session, app) pair.
//
// Sets are replaced wholesale on every update, never merged, and every
// replacement is validated all-or-nothing before any state changes. An
// append-only history log per key records each add/update/remove with a
// snapshot of the set at that moment; it exists for diagnostics only and
// never feeds arbitration decisions.
//
// Components:
//   - Registry: selector sets, history, per-session event caches
//   - TranscriptionSink: notified when a session's language set changes
//
// Matching rules:
//   - plain tags match by equality
//   - "all" and "*" cover every plain tag, never a language selector
//   - language selectors match by normalized equality only
//
// The registry also owns the per-session caches for late subscribers
// (calendar events, last location); those are purged together with the
// history when the session ends.
//
// Example Usage:
//
//	reg := subscription.NewRegistry(appReg, log, metrics)
//	err := reg.Update(sessID, pkg, userID, []string{"transcription:en-US"})
//	subs := reg.GetSubscribers(sessID, "transcription:en-US")
package subscription
