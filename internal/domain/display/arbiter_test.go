package display

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lumena-io/glasscloud/internal/shared/types"
)

const (
	dashPkg = "cloud.lumena.dashboard"
	corePkg = "cloud.lumena.captions"
	bgPkg   = "cloud.example.notes"
	bgPkg2  = "cloud.example.weather"
)

type frameRecorder struct {
	frames []types.DisplayEvent
	fail   bool
}

func (f *frameRecorder) SendDisplay(ev types.DisplayEvent) bool {
	if f.fail {
		return false
	}
	f.frames = append(f.frames, ev)
	return true
}

func (f *frameRecorder) last(t *testing.T) types.DisplayEvent {
	t.Helper()
	if len(f.frames) == 0 {
		t.Fatal("no frames sent")
	}
	return f.frames[len(f.frames)-1]
}

func newTestArbiter() (*Arbiter, *clock.Mock, *frameRecorder) {
	rec := &frameRecorder{}
	clk := clock.NewMock()
	a := NewArbiter(Options{
		SessionID:        "sess_test",
		Sender:           rec,
		Clock:            clk,
		BootDuration:     3 * time.Second,
		Throttle:         300 * time.Millisecond,
		LockTimeout:      10 * time.Second,
		LockInactive:     2 * time.Second,
		DashboardPackage: dashPkg,
		CorePackage:      corePkg,
	})
	return a, clk, rec
}

func textWall(pkg, text string) types.DisplayRequest {
	return types.DisplayRequest{
		PackageName: pkg,
		View:        types.ViewMain,
		Layout:      types.Layout{LayoutType: types.LayoutTextWall, Text: text},
	}
}

func withDuration(req types.DisplayRequest, ms int64) types.DisplayRequest {
	req.DurationMs = &ms
	return req
}

func TestBackgroundGrantsLockAndShows(t *testing.T) {
	a, _, rec := newTestArbiter()

	if !a.HandleDisplayRequest(textWall(bgPkg, "hello")) {
		t.Fatal("first background request should be shown")
	}

	st := a.State()
	if st.LockHolder != bgPkg {
		t.Errorf("Expected lock holder %s, got %q", bgPkg, st.LockHolder)
	}
	if st.CurrentPackage != bgPkg {
		t.Errorf("Expected current %s, got %q", bgPkg, st.CurrentPackage)
	}
	if got := rec.last(t); got.Layout.Text != "hello" {
		t.Errorf("Expected frame text hello, got %q", got.Layout.Text)
	}
}

func TestLockMutualExclusion(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "first"))
	clk.Add(400 * time.Millisecond)

	if a.HandleDisplayRequest(textWall(bgPkg2, "intruder")) {
		t.Fatal("second app must not display while an active lock is held")
	}

	st := a.State()
	if st.LockHolder != bgPkg {
		t.Errorf("Lock holder must not change, got %q", st.LockHolder)
	}
	if len(rec.frames) != 1 {
		t.Errorf("Expected 1 frame, got %d", len(rec.frames))
	}
}

func TestLockHolderKeepsDisplaying(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "one"))
	clk.Add(400 * time.Millisecond)

	if !a.HandleDisplayRequest(textWall(bgPkg, "two")) {
		t.Fatal("lock holder should keep displaying")
	}
	if got := rec.last(t); got.Layout.Text != "two" {
		t.Errorf("Expected frame two, got %q", got.Layout.Text)
	}
}

func TestThrottleLastWriteWins(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "c1"))
	if !a.HandleDisplayRequest(textWall(bgPkg, "c2")) {
		t.Fatal("throttled request should be accepted for later")
	}
	if !a.HandleDisplayRequest(textWall(bgPkg, "c3")) {
		t.Fatal("replacement of a throttled request should be accepted")
	}
	if len(rec.frames) != 1 {
		t.Fatalf("Nothing should be sent inside the window, got %d frames", len(rec.frames))
	}

	clk.Add(300 * time.Millisecond)

	if len(rec.frames) != 2 {
		t.Fatalf("Expected replay after the window, got %d frames", len(rec.frames))
	}
	if got := rec.last(t); got.Layout.Text != "c3" {
		t.Errorf("Expected most recent content c3, got %q", got.Layout.Text)
	}
}

func TestThrottledReplayDroppedWhenSuperseded(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "c1"))
	a.HandleDisplayRequest(textWall(bgPkg, "c2"))
	// The system app draws in between, so the parked replay is stale.
	a.HandleDisplayRequest(textWall(dashPkg, "system"))

	clk.Add(300 * time.Millisecond)

	if len(rec.frames) != 2 {
		t.Fatalf("Expected no replay, got %d frames", len(rec.frames))
	}
	if got := rec.last(t); got.PackageName != dashPkg {
		t.Errorf("Expected system frame to stay, got %s", got.PackageName)
	}
}

func TestForceBypassesThrottle(t *testing.T) {
	a, _, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "c1"))
	forced := textWall(bgPkg, "c2")
	forced.ForceDisplay = true

	if !a.HandleDisplayRequest(forced) {
		t.Fatal("forced request should be shown")
	}
	if len(rec.frames) != 2 {
		t.Fatalf("Expected immediate send, got %d frames", len(rec.frames))
	}
	if got := rec.last(t); got.Layout.Text != "c2" {
		t.Errorf("Expected c2, got %q", got.Layout.Text)
	}
}

func TestBootBannerLifecycle(t *testing.T) {
	a, clk, rec := newTestArbiter()

	// The dashboard is exempt from boot banners.
	a.HandleAppStart(dashPkg)
	if len(rec.frames) != 0 {
		t.Fatalf("Dashboard start must not render a banner, got %d frames", len(rec.frames))
	}

	a.HandleAppStart(corePkg)
	banner := rec.last(t)
	if banner.PackageName != dashPkg {
		t.Errorf("Banner should come from the system app, got %s", banner.PackageName)
	}
	if banner.Layout.Text != corePkg {
		t.Errorf("Banner should list the booting app, got %q", banner.Layout.Text)
	}
	if got := a.State().Booting; len(got) != 1 || got[0] != corePkg {
		t.Errorf("Expected booting [%s], got %v", corePkg, got)
	}

	clk.Add(3 * time.Second)

	if got := a.State(); len(got.Booting) != 0 {
		t.Errorf("Boot should be over, still booting %v", got.Booting)
	}
	// Nothing was saved and core has no pending display: surface clears.
	if got := rec.last(t); got.Layout.Text != "" {
		t.Errorf("Expected clear frame, got %q", got.Layout.Text)
	}
	if got := a.State().CurrentPackage; got != "" {
		t.Errorf("Expected nothing current after clear, got %q", got)
	}
}

func TestBootRestoresSavedDisplay(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "keep me"))
	clk.Add(400 * time.Millisecond)

	a.HandleAppStart(bgPkg2)
	clk.Add(3 * time.Second)

	got := rec.last(t)
	if got.PackageName != bgPkg || got.Layout.Text != "keep me" {
		t.Errorf("Expected saved display restored, got %s %q", got.PackageName, got.Layout.Text)
	}
	st := a.State()
	if st.CurrentPackage != bgPkg {
		t.Errorf("Expected %s current after restore, got %q", bgPkg, st.CurrentPackage)
	}
	if st.LockHolder != bgPkg {
		t.Errorf("Restore should not disturb the lock, got %q", st.LockHolder)
	}
}

func TestBootQueueReplayCoreFirst(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleAppStart(bgPkg)
	if !a.HandleDisplayRequest(textWall(bgPkg, "bg old")) {
		t.Fatal("request during boot should be accepted for later")
	}
	a.HandleDisplayRequest(textWall(bgPkg, "bg new"))
	a.HandleDisplayRequest(textWall(corePkg, "captions"))

	clk.Add(3 * time.Second)

	// Core replays first; the background replay lands one throttle
	// window later with the most recent content.
	if got := rec.last(t); got.PackageName != corePkg {
		t.Fatalf("Expected core replayed first, got %s", got.PackageName)
	}
	clk.Add(300 * time.Millisecond)

	got := rec.last(t)
	if got.PackageName != bgPkg || got.Layout.Text != "bg new" {
		t.Errorf("Expected latest background content, got %s %q", got.PackageName, got.Layout.Text)
	}
	if holder := a.State().LockHolder; holder != bgPkg {
		t.Errorf("Expected lock granted on replay, got %q", holder)
	}
}

func TestAppStopReleasesLockAndShowsCore(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "bg"))
	clk.Add(400 * time.Millisecond)

	// Deferred behind the active lock holder, but retained.
	if a.HandleDisplayRequest(textWall(corePkg, "captions")) {
		t.Fatal("core should defer behind an actively displaying holder")
	}
	if !a.State().HasCorePending {
		t.Fatal("core pending display should be retained")
	}

	a.HandleAppStop(bgPkg)

	st := a.State()
	if st.LockHolder != "" {
		t.Errorf("Lock should be released on app stop, got %q", st.LockHolder)
	}
	if st.CurrentPackage != corePkg {
		t.Errorf("Expected core display after holder stopped, got %q", st.CurrentPackage)
	}
	if got := rec.last(t); got.Layout.Text != "captions" {
		t.Errorf("Expected captions frame, got %q", got.Layout.Text)
	}
}

func TestCoreTakeoverFromIdleHolder(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "bg"))
	// Past the inactivity window without another holder display.
	clk.Add(2 * time.Second)
	clk.Add(500 * time.Millisecond)

	if !a.HandleDisplayRequest(textWall(corePkg, "captions")) {
		t.Fatal("core should preempt an idle holder")
	}

	st := a.State()
	if st.CurrentPackage != corePkg {
		t.Errorf("Expected core current, got %q", st.CurrentPackage)
	}
	if st.LockHolder != "" {
		t.Errorf("Preempted holder's lock should be released, got %q", st.LockHolder)
	}
	if got := rec.last(t); got.PackageName != corePkg {
		t.Errorf("Expected core frame, got %s", got.PackageName)
	}
}

func TestInactiveLockReapedOnNextRequest(t *testing.T) {
	a, clk, _ := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "bg"))
	clk.Add(2 * time.Second)
	clk.Add(100 * time.Millisecond)

	if !a.HandleDisplayRequest(textWall(bgPkg2, "next")) {
		t.Fatal("second app should display once the holder went inactive")
	}
	if holder := a.State().LockHolder; holder != bgPkg2 {
		t.Errorf("Expected lock handed to %s, got %q", bgPkg2, holder)
	}
}

func TestLockTimeoutClearsSurface(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "bg"))
	clk.Add(10 * time.Second)

	st := a.State()
	if st.LockHolder != "" {
		t.Errorf("Lock should time out, got holder %q", st.LockHolder)
	}
	if st.CurrentPackage != "" {
		t.Errorf("Expected cleared surface, got %q", st.CurrentPackage)
	}
	if got := rec.last(t); got.Layout.Text != "" {
		t.Errorf("Expected clear frame, got %q", got.Layout.Text)
	}
}

func TestNoDurationNeverExpires(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(corePkg, "captions"))
	clk.Add(time.Hour)

	if len(rec.frames) != 1 {
		t.Fatalf("Display without duration must not self-expire, got %d frames", len(rec.frames))
	}
	if got := a.State().CurrentPackage; got != corePkg {
		t.Errorf("Expected core still current, got %q", got)
	}
}

func TestDurationExpiryRerunsPolicy(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(withDuration(textWall(corePkg, "captions"), 1000))
	clk.Add(time.Second)

	if got := a.State().CurrentPackage; got != "" {
		t.Errorf("Expected expiry to clear, got %q", got)
	}
	if got := rec.last(t); got.Layout.Text != "" {
		t.Errorf("Expected clear frame after expiry, got %q", got.Layout.Text)
	}
}

func TestZeroDurationExpiresImmediately(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(withDuration(textWall(corePkg, "flash"), 0))
	if got := a.State().CurrentPackage; got != corePkg {
		t.Fatalf("Zero-duration content still shows once, got %q", got)
	}

	clk.Add(time.Millisecond)

	if got := a.State().CurrentPackage; got != "" {
		t.Errorf("Expected immediate expiry, got %q", got)
	}
	if got := rec.last(t); got.Layout.Text != "" {
		t.Errorf("Expected clear frame, got %q", got.Layout.Text)
	}
}

func TestSendFailureDoesNotAdvanceState(t *testing.T) {
	a, _, rec := newTestArbiter()
	rec.fail = true

	if a.HandleDisplayRequest(textWall(bgPkg, "lost")) {
		t.Fatal("failed send should report false")
	}
	if got := a.State().CurrentPackage; got != "" {
		t.Errorf("Nothing should be current after a failed send, got %q", got)
	}

	// The transport recovers; the holder can try again right away since
	// no send ever stamped the throttle window.
	rec.fail = false
	if !a.HandleDisplayRequest(textWall(bgPkg, "retry")) {
		t.Fatal("retry after transport recovery should be shown")
	}
	if got := rec.last(t); got.Layout.Text != "retry" {
		t.Errorf("Expected retry frame, got %q", got.Layout.Text)
	}
}

func TestDashboardViewSkipsArbitration(t *testing.T) {
	a, _, rec := newTestArbiter()

	req := textWall(bgPkg, "widget")
	req.View = types.ViewDashboard
	if !a.HandleDisplayRequest(req) {
		t.Fatal("dashboard-view request should be sent directly")
	}

	st := a.State()
	if st.CurrentPackage != "" {
		t.Errorf("Dashboard surface must not claim the main view, got %q", st.CurrentPackage)
	}
	if st.LockHolder != "" {
		t.Errorf("Dashboard surface must not grant a lock, got %q", st.LockHolder)
	}
	if got := rec.last(t); got.View != types.ViewDashboard {
		t.Errorf("Expected dashboard view frame, got %s", got.View)
	}
}

func TestSystemAppBypassesLock(t *testing.T) {
	a, _, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "bg"))
	if !a.HandleDisplayRequest(textWall(dashPkg, "system")) {
		t.Fatal("system app must always display")
	}

	st := a.State()
	if st.CurrentPackage != dashPkg {
		t.Errorf("Expected system frame current, got %q", st.CurrentPackage)
	}
	if st.LockHolder != bgPkg {
		t.Errorf("System display must not release the lock, got %q", st.LockHolder)
	}
	if len(rec.frames) != 2 {
		t.Errorf("Expected 2 frames, got %d", len(rec.frames))
	}
}

func TestBootQueuePurgedOnAppStop(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleAppStart(bgPkg2)
	a.HandleDisplayRequest(textWall(bgPkg, "never"))
	a.HandleAppStop(bgPkg)

	clk.Add(3 * time.Second)

	for _, f := range rec.frames {
		if f.PackageName == bgPkg {
			t.Fatal("stopped app's queued display must not replay")
		}
	}
}

func TestStoppingLastBootingAppEndsBoot(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleAppStart(bgPkg)
	a.HandleAppStop(bgPkg)

	if got := a.State().Booting; len(got) != 0 {
		t.Fatalf("Boot phase should end, still booting %v", got)
	}
	if got := rec.last(t); got.Layout.Text != "" {
		t.Errorf("Expected clear after boot ended, got %q", got.Layout.Text)
	}

	// The stopped app's boot timer must stay silent.
	before := len(rec.frames)
	clk.Add(3 * time.Second)
	if len(rec.frames) != before {
		t.Errorf("Stale boot timer produced frames")
	}
}

func TestRestartingBootExtendsWindow(t *testing.T) {
	a, clk, _ := newTestArbiter()

	a.HandleAppStart(bgPkg)
	clk.Add(2 * time.Second)
	a.HandleAppStart(bgPkg)
	clk.Add(2 * time.Second)

	if got := a.State().Booting; len(got) != 1 {
		t.Fatalf("Restarted boot should still be in progress, got %v", got)
	}

	clk.Add(time.Second)
	if got := a.State().Booting; len(got) != 0 {
		t.Errorf("Boot should finish on the restarted schedule, got %v", got)
	}
}

func TestCoreStopClearsItsDisplay(t *testing.T) {
	a, _, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(corePkg, "captions"))
	a.HandleAppStop(corePkg)

	st := a.State()
	if st.HasCorePending {
		t.Error("Core pending display should be dropped on stop")
	}
	if st.CurrentPackage != "" {
		t.Errorf("Expected cleared surface, got %q", st.CurrentPackage)
	}
	if got := rec.last(t); got.Layout.Text != "" {
		t.Errorf("Expected clear frame, got %q", got.Layout.Text)
	}
}

func TestDisposeStopsEverything(t *testing.T) {
	a, clk, rec := newTestArbiter()

	a.HandleDisplayRequest(textWall(bgPkg, "bg"))
	a.HandleDisplayRequest(textWall(bgPkg, "parked"))
	a.Dispose()

	if a.HandleDisplayRequest(textWall(bgPkg, "late")) {
		t.Error("disposed arbiter must reject requests")
	}
	a.HandleAppStart(bgPkg2)

	before := len(rec.frames)
	clk.Add(time.Hour)
	if len(rec.frames) != before {
		t.Errorf("Disposed arbiter produced frames")
	}
}
