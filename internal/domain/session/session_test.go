package session

import (
	"testing"

	"github.com/lumena-io/glasscloud/internal/shared/types"
)

func TestTpaAttachedTracksIdentity(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	s := m.Create(testUser)

	first := openConn()
	s.AttachTpa(testPkg, first)
	if !s.TpaAttached(testPkg, first) {
		t.Fatal("Attached handle should be recognized")
	}

	second := openConn()
	s.AttachTpa(testPkg, second)
	if s.TpaAttached(testPkg, first) {
		t.Error("Replaced handle should no longer be recognized")
	}
	if !s.TpaAttached(testPkg, second) {
		t.Error("Replacement handle should be recognized")
	}

	s.DetachTpa(testPkg)
	if s.TpaAttached(testPkg, second) {
		t.Error("Detached handle should not be recognized")
	}
}

func TestAttachGlassesReplacesOldHandle(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	s := m.Create(testUser)

	old := openConn()
	s.AttachGlasses(old)

	replacement := openConn()
	s.AttachGlasses(replacement)

	if !old.wasClosed() {
		t.Error("Replaced glasses handle should be closed")
	}
	if err := s.SendToGlasses(types.AppStateChange{}); err != nil {
		t.Fatalf("SendToGlasses failed: %v", err)
	}
	if replacement.sentCount() != 1 || old.sentCount() != 0 {
		t.Error("Sends should reach the replacement handle only")
	}
}

func TestTpaPackages(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	s := m.Create(testUser)

	other := "cloud.example.captions"
	s.AttachTpa(testPkg, openConn())
	s.AttachTpa(other, openConn())

	pkgs := s.TpaPackages()
	if len(pkgs) != 2 {
		t.Fatalf("Expected 2 packages, got %d", len(pkgs))
	}
	seen := map[string]bool{}
	for _, p := range pkgs {
		seen[p] = true
	}
	if !seen[testPkg] || !seen[other] {
		t.Errorf("Packages %v missing an attached handle", pkgs)
	}

	s.DetachTpa(other)
	pkgs = s.TpaPackages()
	if len(pkgs) != 1 || pkgs[0] != testPkg {
		t.Errorf("Expected only %q after detach, got %v", testPkg, pkgs)
	}
}

func TestAttachTpaAdoptsUnstartedApp(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	s := m.Create(testUser)

	// A socket arriving before any start_app still registers the app
	// as running.
	s.AttachTpa(testPkg, openConn())

	if !s.Apps.IsRunning(testPkg) {
		t.Fatal("Attached app should be lifecycle-running")
	}
	list := s.Apps.List()
	if len(list) != 1 || list[0].PackageName != testPkg {
		t.Errorf("App list %v should hold the adopted package", list)
	}
	if list[0].ConnectedAt == nil {
		t.Error("Adopted app should record its connect time")
	}
}

func TestInfoSnapshot(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	s := m.Create(testUser)

	s.AttachGlasses(openConn())
	s.AttachTpa(testPkg, openConn())
	if _, err := s.Photos.RequestPhoto(types.PhotoRequestMessage{PackageName: testPkg}); err != nil {
		t.Fatalf("RequestPhoto failed: %v", err)
	}

	info := s.Info()
	if info.ID != s.ID || info.UserID != testUser {
		t.Errorf("Info identity %q/%q", info.ID, info.UserID)
	}
	if !info.CreatedAt.Equal(s.CreatedAt) {
		t.Error("Info should carry the creation time")
	}
	if !info.GlassesConnected {
		t.Error("Info should report the glasses handle open")
	}
	if len(info.Apps) != 1 {
		t.Errorf("Expected 1 app, got %d", len(info.Apps))
	}
	if info.PendingPhotos != 1 {
		t.Errorf("Expected 1 pending photo, got %d", info.PendingPhotos)
	}
	if info.Display.CurrentPackage != "" {
		t.Errorf("No display activity expected, got %q", info.Display.CurrentPackage)
	}
}
