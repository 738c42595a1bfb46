// Package session owns the live glasses sessions and their transport
// handles.
//
// A Session correlates one glasses connection with the apps attached to
// it. It holds the outbound handles (glasses socket, one socket per
// connected app) and the per-session coordination components: the
// display arbiter, the photo coordinator and the running-app set. The
// core components never manage connection lifecycle themselves; they
// send through the session, which probes liveness first and reports
// failure as a value, never a panic.
//
// Components:
//   - Session: transport handles + per-session arbiter/photos/apps
//   - Manager: explicit owner of all live sessions (Create/Get/List/End)
//
// Teardown order on End:
//  1. Dispose the photo coordinator (cancel in-flight requests)
//  2. Dispose the display arbiter (stop timers)
//  3. Remove each app's subscriptions, then purge session caches
//  4. Close app sockets, then the glasses socket
//  5. Notify the lifecycle webhook sink
//
// Example Usage:
//
//	manager := session.NewManager(session.ManagerOptions{
//		Subscriptions: subs,
//		Apps:          appReg,
//	})
//	sess := manager.Create(userID)
//	sess.AttachGlasses(conn)
//	manager.End(sess.ID)
package session
