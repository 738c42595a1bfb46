package display

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/shared/types"
)

// Default timing constants, overridable via Options.
const (
	DefaultBootDuration = 3 * time.Second
	DefaultThrottle     = 300 * time.Millisecond
	DefaultLockTimeout  = 10 * time.Second
	DefaultLockInactive = 2 * time.Second
)

// Sender delivers display frames to the glasses-facing transport. It
// reports false when the handle is not open or the write fails; the
// arbiter never advances state on a failed send.
type Sender interface {
	SendDisplay(ev types.DisplayEvent) bool
}

// AppNamer resolves a package name to a human-readable app name for the
// boot banner.
type AppNamer interface {
	DisplayName(pkg string) string
}

// Options configures an Arbiter. Zero durations fall back to defaults,
// except Throttle where zero disables throttling and a negative value
// selects the default. Only SessionID and Sender are required.
type Options struct {
	SessionID string
	Sender    Sender
	Clock     clock.Clock
	Names     AppNamer
	Log       *logging.Logger
	Metrics   *monitoring.Metrics

	BootDuration time.Duration
	Throttle     time.Duration
	LockTimeout  time.Duration
	LockInactive time.Duration

	DashboardPackage string
	CorePackage      string
}

// active is the frame currently occupying the main surface. It is
// replaced wholesale, never mutated; timer callbacks compare pointers to
// detect staleness.
type active struct {
	req       types.DisplayRequest
	startedAt time.Time
	expiresAt time.Time // zero when the display never self-expires
}

// pendingCore is the core app's standing display content, re-shown by the
// policy whenever nothing with higher priority claims the surface.
type pendingCore struct {
	req   types.DisplayRequest
	setAt time.Time
}

// backgroundLock is the exclusive, time-bounded right of one background
// app to occupy the surface.
type backgroundLock struct {
	pkg          string
	grantedAt    time.Time
	expiresAt    time.Time
	lastActiveAt time.Time
	expiry       *clock.Timer
	inactivity   *clock.Timer
}

// throttledDisplay is a request parked inside the throttle window,
// replayed when the window elapses if nothing newer superseded it.
type throttledDisplay struct {
	req      types.DisplayRequest
	snapshot *active // what was current when the request got parked
	timer    *clock.Timer
}

// bootEntry tracks one booting app. Restarting a boot replaces the entry,
// so a stale timer firing compares pointers and bails.
type bootEntry struct {
	timer *clock.Timer
}

// Arbiter is the per-session display scheduler. All event handlers and
// timer callbacks serialize on mu, so decisions for one session never
// race.
type Arbiter struct {
	mu sync.Mutex

	sessionID string
	sender    Sender
	clk       clock.Clock
	names     AppNamer
	log       *logging.Logger
	metrics   *monitoring.Metrics

	bootDuration time.Duration
	throttle     time.Duration
	lockTimeout  time.Duration
	lockInactive time.Duration
	dashboardPkg string
	corePkg      string

	current     *active
	expiryTimer *clock.Timer
	core        *pendingCore
	lock        *backgroundLock

	booting         map[string]*bootEntry
	bootOrder       []string
	bootQueue       map[string]types.DisplayRequest
	queueOrder      []string
	savedBeforeBoot *types.DisplayRequest

	throttled  map[string]*throttledDisplay
	lastSentAt time.Time

	disposed bool
}

// NewArbiter creates a display arbiter for one session.
func NewArbiter(opts Options) *Arbiter {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	if opts.BootDuration <= 0 {
		opts.BootDuration = DefaultBootDuration
	}
	if opts.Throttle < 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.LockInactive <= 0 {
		opts.LockInactive = DefaultLockInactive
	}

	return &Arbiter{
		sessionID:    opts.SessionID,
		sender:       opts.Sender,
		clk:          opts.Clock,
		names:        opts.Names,
		log:          opts.Log,
		metrics:      opts.Metrics,
		bootDuration: opts.BootDuration,
		throttle:     opts.Throttle,
		lockTimeout:  opts.LockTimeout,
		lockInactive: opts.LockInactive,
		dashboardPkg: opts.DashboardPackage,
		corePkg:      opts.CorePackage,
		booting:      make(map[string]*bootEntry),
		bootQueue:    make(map[string]types.DisplayRequest),
		throttled:    make(map[string]*throttledDisplay),
	}
}

// HandleAppStart marks the package as booting and renders the boot
// banner. The dashboard package is exempt and never shows a banner.
func (d *Arbiter) HandleAppStart(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed || pkg == "" || pkg == d.dashboardPkg {
		return
	}

	if prev, restarting := d.booting[pkg]; restarting {
		prev.timer.Stop()
	} else {
		if len(d.booting) == 0 {
			d.saveCurrentLocked()
		}
		d.bootOrder = append(d.bootOrder, pkg)
	}

	e := &bootEntry{}
	e.timer = d.clk.AfterFunc(d.bootDuration, func() { d.bootTimerFired(pkg, e) })
	d.booting[pkg] = e

	d.log.Debug("App booting",
		zap.String("session_id", d.sessionID),
		zap.String("package_name", pkg))
	d.showNextLocked("boot")
}

// HandleAppStop clears every trace of the package: boot state, queued
// requests, its background lock, the core pending display when it is the
// core app, and the surface itself when its content was showing.
func (d *Arbiter) HandleAppStop(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed || pkg == "" {
		return
	}

	wasBooting := false
	if e, ok := d.booting[pkg]; ok {
		e.timer.Stop()
		delete(d.booting, pkg)
		d.bootOrder = removeString(d.bootOrder, pkg)
		wasBooting = true
	}
	if _, ok := d.bootQueue[pkg]; ok {
		delete(d.bootQueue, pkg)
		d.queueOrder = removeString(d.queueOrder, pkg)
	}
	if e, ok := d.throttled[pkg]; ok {
		e.timer.Stop()
		delete(d.throttled, pkg)
	}
	if d.savedBeforeBoot != nil && d.savedBeforeBoot.PackageName == pkg {
		d.savedBeforeBoot = nil
	}
	if d.lock != nil && d.lock.pkg == pkg {
		d.releaseLockLocked(d.lock, "app_stop")
	}
	if pkg == d.corePkg {
		d.core = nil
	}

	wasCurrent := d.current != nil && d.current.req.PackageName == pkg
	if wasCurrent {
		d.stopExpiryLocked()
		d.current = nil
	}

	switch {
	case wasBooting && len(d.booting) == 0:
		d.bootCompletedLocked()
	case wasBooting:
		d.showNextLocked("boot")
	case wasCurrent:
		d.showNextLocked("app_stopped")
	}
}

// HandleDisplayRequest routes one display request through the policy. It
// returns true when the request was shown or accepted for later (queued
// during boot or inside the throttle window), false when it was rejected
// or the send failed.
func (d *Arbiter) HandleDisplayRequest(req types.DisplayRequest) bool {
	d.mu.Lock()
	accepted, outcome := d.handleRequestLocked(req)
	d.mu.Unlock()

	d.metrics.RecordDisplayRequest(outcome)
	return accepted
}

func (d *Arbiter) handleRequestLocked(req types.DisplayRequest) (bool, string) {
	if d.disposed || req.PackageName == "" {
		return false, "rejected"
	}

	// The dashboard surface is separate hardware real estate: no
	// arbitration, no tracking.
	if req.View == types.ViewDashboard {
		if d.sendLocked(req, "direct") {
			return true, "shown"
		}
		return false, "failed"
	}

	// The system app always draws immediately.
	if req.PackageName == d.dashboardPkg {
		if d.showLocked(req, "system") {
			return true, "shown"
		}
		return false, "failed"
	}

	if len(d.booting) > 0 {
		d.queueBootLocked(req)
		return true, "queued_boot"
	}

	if req.PackageName == d.corePkg {
		return d.handleCoreLocked(req)
	}
	return d.handleBackgroundLocked(req)
}

// handleCoreLocked stores the core app's pending display and shows it now
// unless the lock holder is the current display and has been active
// within the inactivity window. When a show displaces such a holder, the
// holder's lock is released (core takeover).
func (d *Arbiter) handleCoreLocked(req types.DisplayRequest) (bool, string) {
	d.core = &pendingCore{req: req, setAt: d.clk.Now()}

	l := d.reapLockLocked(false)
	if l != nil {
		holderCurrent := d.current != nil && d.current.req.PackageName == l.pkg
		if holderCurrent && d.holderActiveLocked(l) {
			d.log.Debug("Core display deferred behind active lock holder",
				zap.String("session_id", d.sessionID),
				zap.String("lock_holder", l.pkg))
			return false, "deferred"
		}
	}

	if !req.ForceDisplay && d.throttledLocked() {
		d.queueThrottledLocked(req)
		return true, "queued_throttle"
	}
	if !d.showLocked(req, "core") {
		return false, "failed"
	}
	if l != nil && d.lock == l {
		d.releaseLockLocked(l, "takeover")
	}
	return true, "shown"
}

// handleBackgroundLocked lets a background app display only while it
// holds the lock, granting one when none is held. Expired and inactive
// locks are reaped before deciding.
func (d *Arbiter) handleBackgroundLocked(req types.DisplayRequest) (bool, string) {
	l := d.reapLockLocked(true)
	switch {
	case l == nil:
		d.grantLockLocked(req.PackageName)
	case l.pkg != req.PackageName:
		d.log.Debug("Display rejected, lock held elsewhere",
			zap.String("session_id", d.sessionID),
			zap.String("package_name", req.PackageName),
			zap.String("lock_holder", l.pkg))
		return false, "rejected"
	}

	if !req.ForceDisplay && d.throttledLocked() {
		d.queueThrottledLocked(req)
		return true, "queued_throttle"
	}
	if !d.showLocked(req, "background") {
		return false, "failed"
	}
	return true, "shown"
}

// showNextLocked re-derives what the surface should show, in priority
// order: boot banner, lock holder's current content, core pending
// display, nothing.
func (d *Arbiter) showNextLocked(reason string) {
	if d.disposed {
		return
	}

	if len(d.booting) > 0 {
		d.showLocked(d.bootBannerLocked(), reason)
		return
	}

	if l := d.reapLockLocked(true); l != nil {
		if d.current != nil && d.current.req.PackageName == l.pkg {
			return
		}
		// Holder is not on the surface: core may draw below without
		// disturbing the lock.
	}

	if core := d.validCoreLocked(); core != nil {
		d.showLocked(core.req, reason)
		return
	}
	d.clearLocked(reason)
}

// bootCompletedLocked runs when the last booting app finishes or stops:
// replay queued requests core-first, else restore what was showing before
// boot, else fall back to the policy.
func (d *Arbiter) bootCompletedLocked() {
	saved := d.savedBeforeBoot
	d.savedBeforeBoot = nil

	if len(d.bootQueue) > 0 {
		order := make([]string, 0, len(d.queueOrder))
		if _, ok := d.bootQueue[d.corePkg]; ok {
			order = append(order, d.corePkg)
		}
		for _, pkg := range d.queueOrder {
			if pkg != d.corePkg {
				order = append(order, pkg)
			}
		}
		queued := d.bootQueue
		d.bootQueue = make(map[string]types.DisplayRequest)
		d.queueOrder = nil

		d.log.Debug("Replaying boot-queued displays",
			zap.String("session_id", d.sessionID),
			zap.Int("count", len(order)))
		for _, pkg := range order {
			d.handleRequestLocked(queued[pkg])
		}
		return
	}

	if saved != nil {
		if d.showLocked(*saved, "boot_restore") {
			return
		}
	}
	d.showNextLocked("boot_complete")
}

func (d *Arbiter) bootTimerFired(pkg string, e *bootEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed || d.booting[pkg] != e {
		return
	}
	delete(d.booting, pkg)
	d.bootOrder = removeString(d.bootOrder, pkg)

	d.log.Debug("App boot finished",
		zap.String("session_id", d.sessionID),
		zap.String("package_name", pkg))
	if len(d.booting) == 0 {
		d.bootCompletedLocked()
	} else {
		d.showNextLocked("boot")
	}
}

// saveCurrentLocked snapshots the surface when a boot phase begins, so it
// can be restored once boot ends. System frames are not worth restoring.
func (d *Arbiter) saveCurrentLocked() {
	if d.current == nil || d.current.req.PackageName == d.dashboardPkg {
		d.savedBeforeBoot = nil
		return
	}
	req := d.current.req
	d.savedBeforeBoot = &req
}

func (d *Arbiter) queueBootLocked(req types.DisplayRequest) {
	if _, ok := d.bootQueue[req.PackageName]; !ok {
		d.queueOrder = append(d.queueOrder, req.PackageName)
	}
	d.bootQueue[req.PackageName] = req
	d.log.Debug("Display queued during boot",
		zap.String("session_id", d.sessionID),
		zap.String("package_name", req.PackageName))
}

// throttledLocked reports whether a new send would land inside the
// minimum inter-display interval.
func (d *Arbiter) throttledLocked() bool {
	if d.throttle <= 0 || d.lastSentAt.IsZero() {
		return false
	}
	return d.clk.Now().Sub(d.lastSentAt) < d.throttle
}

func (d *Arbiter) queueThrottledLocked(req types.DisplayRequest) {
	pkg := req.PackageName
	if e, ok := d.throttled[pkg]; ok {
		// Last write wins; the window keeps running from the first
		// parked request.
		e.req = req
		return
	}

	e := &throttledDisplay{req: req, snapshot: d.current}
	delay := d.throttle - d.clk.Now().Sub(d.lastSentAt)
	if delay < 0 {
		delay = 0
	}
	e.timer = d.clk.AfterFunc(delay, func() { d.throttleFired(pkg, e) })
	d.throttled[pkg] = e

	d.log.Debug("Display throttled",
		zap.String("session_id", d.sessionID),
		zap.String("package_name", pkg),
		zap.Duration("delay", delay))
}

func (d *Arbiter) throttleFired(pkg string, e *throttledDisplay) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed || d.throttled[pkg] != e {
		return
	}
	delete(d.throttled, pkg)

	// Drop the replay when something else claimed the surface while the
	// request was parked.
	if d.current != e.snapshot {
		d.log.Debug("Throttled display superseded",
			zap.String("session_id", d.sessionID),
			zap.String("package_name", pkg))
		return
	}
	d.handleRequestLocked(e.req)
}

// validCoreLocked returns the core pending display if it has not expired,
// pruning it when it has.
func (d *Arbiter) validCoreLocked() *pendingCore {
	if d.core == nil {
		return nil
	}
	if d.core.req.DurationMs != nil {
		ms := *d.core.req.DurationMs
		if ms < 0 {
			ms = 0
		}
		deadline := d.core.setAt.Add(time.Duration(ms) * time.Millisecond)
		if !d.clk.Now().Before(deadline) {
			d.core = nil
			return nil
		}
	}
	return d.core
}

// reapLockLocked returns the live lock after releasing it when expired
// or, when reapInactive is set, when the holder has gone inactive.
func (d *Arbiter) reapLockLocked(reapInactive bool) *backgroundLock {
	l := d.lock
	if l == nil {
		return nil
	}
	if !d.clk.Now().Before(l.expiresAt) {
		d.releaseLockLocked(l, "timeout")
		return nil
	}
	if reapInactive && !d.holderActiveLocked(l) {
		d.releaseLockLocked(l, "inactive")
		return nil
	}
	return l
}

func (d *Arbiter) holderActiveLocked(l *backgroundLock) bool {
	return d.clk.Now().Sub(l.lastActiveAt) <= d.lockInactive
}

func (d *Arbiter) grantLockLocked(pkg string) {
	now := d.clk.Now()
	l := &backgroundLock{
		pkg:          pkg,
		grantedAt:    now,
		expiresAt:    now.Add(d.lockTimeout),
		lastActiveAt: now,
	}
	l.expiry = d.clk.AfterFunc(d.lockTimeout, func() { d.lockExpired(l) })
	l.inactivity = d.clk.AfterFunc(d.lockInactive, func() { d.lockWentInactive(l) })
	d.lock = l

	d.log.Info("Background lock granted",
		zap.String("session_id", d.sessionID),
		zap.String("package_name", pkg),
		zap.Time("expires_at", l.expiresAt))
}

// releaseLockLocked is idempotent: it only acts when l is still the held
// lock, so the four release paths (app stop, core takeover, inactivity,
// timeout) can race without double effects.
func (d *Arbiter) releaseLockLocked(l *backgroundLock, reason string) {
	if l == nil || d.lock != l {
		return
	}
	l.expiry.Stop()
	l.inactivity.Stop()
	d.lock = nil

	d.metrics.RecordLockRelease(reason)
	d.log.Info("Background lock released",
		zap.String("session_id", d.sessionID),
		zap.String("package_name", l.pkg),
		zap.String("reason", reason))
}

func (d *Arbiter) lockExpired(l *backgroundLock) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed || d.lock != l {
		return
	}
	d.releaseLockLocked(l, "timeout")
	d.showNextLocked("lock_timeout")
}

func (d *Arbiter) lockWentInactive(l *backgroundLock) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed || d.lock != l {
		return
	}
	idle := d.clk.Now().Sub(l.lastActiveAt)
	if remaining := d.lockInactive - idle; remaining > 0 {
		// The holder displayed after this timer was armed; watch the
		// rest of the quiet window instead.
		l.inactivity.Stop()
		l.inactivity = d.clk.AfterFunc(remaining, func() { d.lockWentInactive(l) })
		return
	}
	// The quiet window closed. Releasing is the policy's job so the
	// inactivity check keeps its place in the priority order; this run
	// reaps the lock once the holder is past the window.
	d.showNextLocked("lock_inactive")
}

func (d *Arbiter) displayExpired(a *active) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed || d.current != a {
		return
	}
	d.current = nil
	d.expiryTimer = nil
	d.showNextLocked("duration_expired")
}

// showLocked sends a main-view frame and, on confirmed success, advances
// it to current, arms its expiry, stamps the throttle window, and
// refreshes the lock holder's activity when the frame is theirs.
func (d *Arbiter) showLocked(req types.DisplayRequest, reason string) bool {
	if !d.sendLocked(req, reason) {
		return false
	}

	now := d.clk.Now()
	d.stopExpiryLocked()

	a := &active{req: req, startedAt: now}
	if req.DurationMs != nil {
		ms := *req.DurationMs
		if ms < 0 {
			ms = 0
		}
		dur := time.Duration(ms) * time.Millisecond
		a.expiresAt = now.Add(dur)
		d.expiryTimer = d.clk.AfterFunc(dur, func() { d.displayExpired(a) })
	}
	d.current = a
	d.lastSentAt = now

	if d.lock != nil && d.lock.pkg == req.PackageName {
		d.lock.lastActiveAt = now
	}
	return true
}

// clearLocked blanks the surface. On success nothing is current.
func (d *Arbiter) clearLocked(reason string) {
	req := types.DisplayRequest{
		PackageName: d.dashboardPkg,
		View:        types.ViewMain,
		Layout:      types.Layout{LayoutType: types.LayoutTextWall},
	}
	if !d.sendLocked(req, "clear") {
		return
	}
	d.stopExpiryLocked()
	d.current = nil
	d.lastSentAt = d.clk.Now()

	d.log.Debug("Display cleared",
		zap.String("session_id", d.sessionID),
		zap.String("reason", reason))
}

func (d *Arbiter) sendLocked(req types.DisplayRequest, reason string) bool {
	ev := types.DisplayEvent{
		Type:        types.MsgDisplayEvent,
		PackageName: req.PackageName,
		View:        req.View,
		Layout:      req.Layout,
		Timestamp:   d.clk.Now(),
	}
	if d.sender == nil || !d.sender.SendDisplay(ev) {
		d.log.Debug("Display send failed",
			zap.String("session_id", d.sessionID),
			zap.String("package_name", req.PackageName),
			zap.String("reason", reason))
		return false
	}
	d.metrics.RecordDisplaySend(string(req.View), reason)
	return true
}

func (d *Arbiter) stopExpiryLocked() {
	if d.expiryTimer != nil {
		d.expiryTimer.Stop()
		d.expiryTimer = nil
	}
}

func (d *Arbiter) bootBannerLocked() types.DisplayRequest {
	names := make([]string, 0, len(d.bootOrder))
	for _, pkg := range d.bootOrder {
		names = append(names, d.displayName(pkg))
	}
	return types.DisplayRequest{
		PackageName: d.dashboardPkg,
		View:        types.ViewMain,
		Layout: types.Layout{
			LayoutType: types.LayoutReferenceCard,
			Title:      "Starting App",
			Text:       strings.Join(names, ", "),
		},
	}
}

func (d *Arbiter) displayName(pkg string) string {
	if d.names != nil {
		if name := d.names.DisplayName(pkg); name != "" {
			return name
		}
	}
	return pkg
}

// State is a point-in-time snapshot for introspection endpoints.
type State struct {
	CurrentPackage string    `json:"current_package,omitempty"`
	CurrentSince   time.Time `json:"current_since,omitempty"`
	LockHolder     string    `json:"lock_holder,omitempty"`
	LockExpiresAt  time.Time `json:"lock_expires_at,omitempty"`
	Booting        []string  `json:"booting,omitempty"`
	BootQueued     int       `json:"boot_queued,omitempty"`
	Throttled      int       `json:"throttled,omitempty"`
	HasCorePending bool      `json:"has_core_pending,omitempty"`
}

// State reports the arbiter's current state.
func (d *Arbiter) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		BootQueued:     len(d.bootQueue),
		Throttled:      len(d.throttled),
		HasCorePending: d.core != nil,
	}
	if d.current != nil {
		s.CurrentPackage = d.current.req.PackageName
		s.CurrentSince = d.current.startedAt
	}
	if d.lock != nil {
		s.LockHolder = d.lock.pkg
		s.LockExpiresAt = d.lock.expiresAt
	}
	if len(d.bootOrder) > 0 {
		s.Booting = append([]string(nil), d.bootOrder...)
	}
	return s
}

// Dispose stops every timer and drops all state. Further events are
// no-ops; in-flight timer callbacks see disposed and bail.
func (d *Arbiter) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return
	}
	d.disposed = true

	for _, e := range d.booting {
		e.timer.Stop()
	}
	for _, e := range d.throttled {
		e.timer.Stop()
	}
	if d.lock != nil {
		d.lock.expiry.Stop()
		d.lock.inactivity.Stop()
	}
	d.stopExpiryLocked()

	d.booting = map[string]*bootEntry{}
	d.bootOrder = nil
	d.bootQueue = map[string]types.DisplayRequest{}
	d.queueOrder = nil
	d.throttled = map[string]*throttledDisplay{}
	d.savedBeforeBoot = nil
	d.current = nil
	d.core = nil
	d.lock = nil
}

func removeString(ss []string, s string) []string {
	for i, v := range ss {
		if v == s {
			return append(ss[:i], ss[i+1:]...)
		}
	}
	return ss
}
