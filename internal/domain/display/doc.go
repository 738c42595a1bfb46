// Package display arbitrates which single frame reaches the glasses'
// main surface at any instant.
//
// Contenders, in priority order:
//  1. the boot banner, while any app is starting (always wins)
//  2. the background lock holder, while its lock is valid and recently used
//  3. the privileged core app's pending display
//  4. nothing (the surface is cleared)
//
// Components:
//   - Arbiter: per-session state machine driving the policy above
//   - Sender: the outbound transport handle, probed on every send
//
// Events are HandleAppStart, HandleAppStop, and HandleDisplayRequest,
// plus internal timers (boot duration, throttle window, display expiry,
// lock timeout, lock inactivity). All of them serialize on one mutex per
// session, and every timer callback re-validates that its target is still
// the authoritative state before acting, so cancellation races are
// tolerated by construction.
//
// The dashboard package owns the system surface: it is exempt from the
// boot banner and bypasses locking and throttling entirely. Requests that
// arrive while an app boots are queued per package (last write wins) and
// replayed core-first when boot ends; requests inside the throttle window
// are queued the same way and replayed when the window elapses, unless
// something else became current in the meantime.
//
// A send that fails (handle closed, write error) never advances state:
// the frame simply did not happen.
package display
