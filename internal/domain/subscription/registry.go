package subscription

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/domain/apps"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/shared/types"
)

// ErrInvalidSubscription reports a rejected subscription update. It is the
// same sentinel as types.ErrInvalidSelector, so errors.Is works against
// either name; manifest permission denials wrap it as well.
var ErrInvalidSubscription = types.ErrInvalidSelector

// Action classifies a history record.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// HistoryRecord is one entry in the append-only log for a (session, app)
// key. Selectors snapshots the stored set at the time of the action; for
// a remove it captures the set as it was immediately before deletion.
type HistoryRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Selectors []types.Selector `json:"selectors"`
	Action    Action           `json:"action"`
}

// TranscriptionSink receives the session's minimal language-stream set
// whenever it changes, so the caller can keep the expensive upstream
// recognition streams down to exactly what apps need. Invoked outside the
// registry's lock.
type TranscriptionSink interface {
	LanguageSubscriptionsChanged(sessionID string, selectors []types.Selector)
}

// Registry holds every app's stream subscriptions, keyed by session and
// package name. All state is in memory; operations never do I/O.
type Registry struct {
	mu       sync.RWMutex
	subs     map[string]map[string][]types.Selector
	history  map[string]map[string][]HistoryRecord
	calendar map[string][]types.CalendarEvent
	location map[string]*types.Location
	lastLang map[string][]types.Selector

	apps    *apps.Registry
	sink    TranscriptionSink
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewRegistry creates an empty registry. appReg may be nil, in which case
// no manifest permission checks apply.
func NewRegistry(appReg *apps.Registry, log *logging.Logger, metrics *monitoring.Metrics) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		subs:     make(map[string]map[string][]types.Selector),
		history:  make(map[string]map[string][]HistoryRecord),
		calendar: make(map[string][]types.CalendarEvent),
		location: make(map[string]*types.Location),
		lastLang: make(map[string][]types.Selector),
		apps:     appReg,
		log:      log,
		metrics:  metrics,
	}
}

// SetSink registers the transcription sink. Wire it before traffic starts;
// the field is not guarded for concurrent replacement.
func (r *Registry) SetSink(sink TranscriptionSink) {
	r.sink = sink
}

// Update replaces the stored selector set for (sessionID, packageName)
// wholesale. Every raw selector must parse, and when the app's manifest
// carries stream patterns each selector must be permitted by them. Any
// failure rejects the whole call with no partial mutation.
func (r *Registry) Update(sessionID, packageName, userID string, raw []string) error {
	parsed := make([]types.Selector, 0, len(raw))
	seen := make(map[types.Selector]struct{}, len(raw))
	for _, s := range raw {
		sel, err := types.ParseSelector(s)
		if err != nil {
			r.metrics.RecordSubscriptionUpdate("invalid")
			return err
		}
		if r.apps != nil && !r.apps.AllowsStream(packageName, sel) {
			r.metrics.RecordSubscriptionUpdate("denied")
			return fmt.Errorf("%w: stream %q not permitted for %s", ErrInvalidSubscription, sel, packageName)
		}
		if _, dup := seen[sel]; dup {
			continue
		}
		seen[sel] = struct{}{}
		parsed = append(parsed, sel)
	}

	r.mu.Lock()
	pkgs, ok := r.subs[sessionID]
	if !ok {
		pkgs = make(map[string][]types.Selector)
		r.subs[sessionID] = pkgs
	}
	action := ActionUpdate
	if _, existed := pkgs[packageName]; !existed {
		action = ActionAdd
	}
	pkgs[packageName] = parsed
	r.appendHistoryLocked(sessionID, packageName, parsed, action)
	langs, changed := r.refreshLanguagesLocked(sessionID)
	keys := r.countKeysLocked()
	r.mu.Unlock()

	r.metrics.RecordSubscriptionUpdate("ok")
	r.metrics.SetSubscriptionsActive(keys)
	r.log.Debug("Subscriptions replaced",
		zap.String("session_id", sessionID),
		zap.String("package_name", packageName),
		zap.String("user_id", userID),
		zap.String("action", string(action)),
		zap.Int("count", len(parsed)))
	if changed && r.sink != nil {
		r.sink.LanguageSubscriptionsChanged(sessionID, langs)
	}
	return nil
}

// GetSubscribers returns every app in the session whose stored set covers
// the queried selector. Order is unspecified.
func (r *Registry) GetSubscribers(sessionID string, query types.Selector) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for pkg, set := range r.subs[sessionID] {
		for _, sel := range set {
			if sel.Matches(query) {
				out = append(out, pkg)
				break
			}
		}
	}
	return out
}

// ListSubscriptions returns a copy of the stored set for the key in the
// order it was written, or nil when the key has none.
func (r *Registry) ListSubscriptions(sessionID, packageName string) []types.Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.subs[sessionID][packageName]
	if !ok {
		return nil
	}
	out := make([]types.Selector, len(set))
	copy(out, set)
	return out
}

// SessionSubscriptions returns a copy of every app's stored set for the
// session, keyed by package name.
func (r *Registry) SessionSubscriptions(sessionID string) map[string][]types.Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]types.Selector, len(r.subs[sessionID]))
	for pkg, set := range r.subs[sessionID] {
		cp := make([]types.Selector, len(set))
		copy(cp, set)
		out[pkg] = cp
	}
	return out
}

// History returns a copy of the append-only log for the key.
func (r *Registry) History(sessionID, packageName string) []HistoryRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.history[sessionID][packageName]
	out := make([]HistoryRecord, len(recs))
	copy(out, recs)
	return out
}

// SessionHistory returns a copy of every app's history log for the session.
func (r *Registry) SessionHistory(sessionID string) map[string][]HistoryRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]HistoryRecord, len(r.history[sessionID]))
	for pkg, recs := range r.history[sessionID] {
		cp := make([]HistoryRecord, len(recs))
		copy(cp, recs)
		out[pkg] = cp
	}
	return out
}

// Remove deletes the stored set for the key and appends a final "remove"
// record capturing the set as it was. A second call for the same key is a
// no-op and appends nothing.
func (r *Registry) Remove(sessionID, packageName string) {
	r.mu.Lock()
	pkgs, ok := r.subs[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	set, ok := pkgs[packageName]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(pkgs, packageName)
	if len(pkgs) == 0 {
		delete(r.subs, sessionID)
	}
	r.appendHistoryLocked(sessionID, packageName, set, ActionRemove)
	langs, changed := r.refreshLanguagesLocked(sessionID)
	keys := r.countKeysLocked()
	r.mu.Unlock()

	r.metrics.SetSubscriptionsActive(keys)
	r.log.Debug("Subscriptions removed",
		zap.String("session_id", sessionID),
		zap.String("package_name", packageName))
	if changed && r.sink != nil {
		r.sink.LanguageSubscriptionsChanged(sessionID, langs)
	}
}

// HasAnyMediaSubscription reports whether some app in the session
// subscribes to audio, transcription, or translation. Wildcard
// subscribers count, since wildcards cover the plain audio stream.
func (r *Registry) HasAnyMediaSubscription(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, set := range r.subs[sessionID] {
		for _, sel := range set {
			if sel.IsMedia() {
				return true
			}
		}
	}
	return false
}

// MinimalLanguageSubscriptions returns the de-duplicated union of
// language-parameterized selectors across all apps in the session, sorted
// for stable output.
func (r *Registry) MinimalLanguageSubscriptions(sessionID string) []types.Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minimalLanguagesLocked(sessionID)
}

// CacheCalendarEvent records a calendar event so apps subscribing later
// in the session can be brought up to date.
func (r *Registry) CacheCalendarEvent(sessionID string, ev types.CalendarEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calendar[sessionID] = append(r.calendar[sessionID], ev)
}

// CalendarEvents returns a copy of the cached calendar events in arrival
// order.
func (r *Registry) CalendarEvents(sessionID string) []types.CalendarEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evs := r.calendar[sessionID]
	out := make([]types.CalendarEvent, len(evs))
	copy(out, evs)
	return out
}

// CacheLocation records the last known location for the session,
// replacing any earlier one.
func (r *Registry) CacheLocation(sessionID string, loc types.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location[sessionID] = &loc
}

// LastLocation returns the last cached location, if any.
func (r *Registry) LastLocation(sessionID string) (types.Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc := r.location[sessionID]
	if loc == nil {
		return types.Location{}, false
	}
	return *loc, true
}

// PurgeSession drops everything keyed by the session: any remaining live
// sets, the history, and the calendar/location caches. Called at session
// teardown after each running app's set was removed via Remove.
func (r *Registry) PurgeSession(sessionID string) {
	r.mu.Lock()
	delete(r.subs, sessionID)
	delete(r.history, sessionID)
	delete(r.calendar, sessionID)
	delete(r.location, sessionID)
	delete(r.lastLang, sessionID)
	keys := r.countKeysLocked()
	r.mu.Unlock()

	r.metrics.SetSubscriptionsActive(keys)
	r.log.Debug("Subscription state purged", zap.String("session_id", sessionID))
}

func (r *Registry) appendHistoryLocked(sessionID, packageName string, set []types.Selector, action Action) {
	snap := make([]types.Selector, len(set))
	copy(snap, set)

	byPkg, ok := r.history[sessionID]
	if !ok {
		byPkg = make(map[string][]HistoryRecord)
		r.history[sessionID] = byPkg
	}
	byPkg[packageName] = append(byPkg[packageName], HistoryRecord{
		Timestamp: time.Now().UTC(),
		Selectors: snap,
		Action:    action,
	})
}

// refreshLanguagesLocked recomputes the session's minimal language set and
// reports whether it changed since the last computation.
func (r *Registry) refreshLanguagesLocked(sessionID string) ([]types.Selector, bool) {
	langs := r.minimalLanguagesLocked(sessionID)
	if selectorsEqual(r.lastLang[sessionID], langs) {
		return langs, false
	}
	if len(langs) == 0 {
		delete(r.lastLang, sessionID)
	} else {
		r.lastLang[sessionID] = langs
	}
	return langs, true
}

func (r *Registry) minimalLanguagesLocked(sessionID string) []types.Selector {
	seen := make(map[types.Selector]struct{})
	out := make([]types.Selector, 0)
	for _, set := range r.subs[sessionID] {
		for _, sel := range set {
			if !sel.IsLanguage() {
				continue
			}
			if _, dup := seen[sel]; dup {
				continue
			}
			seen[sel] = struct{}{}
			out = append(out, sel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) countKeysLocked() int {
	n := 0
	for _, pkgs := range r.subs {
		n += len(pkgs)
	}
	return n
}

// selectorsEqual compares two sorted selector slices elementwise.
func selectorsEqual(a, b []types.Selector) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
