package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

var testNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func TestDefaultMatrixDecide(t *testing.T) {
	t.Parallel()

	m := DefaultMatrix()
	tests := []struct {
		role catalog.Role
		op   string
		want Decision
	}{
		{catalog.RoleCoordinator, tool.ToolTriggerEmergency, Allowed},
		{catalog.RoleCoordinator, tool.ToolNotifyStaff, Allowed},
		{catalog.RoleZookeeper, tool.ToolUpdateAnimalStatus, Allowed},
		{catalog.RoleJanitor, tool.ToolListAnimals, Allowed},
		{catalog.RoleJanitor, tool.ToolTriggerEmergency, RequiresConfirmation},
		{catalog.RoleVeterinarian, tool.ToolTriggerEmergency, RequiresConfirmation},
		{catalog.RoleZookeeper, "delete_animal", Denied},
		{catalog.Role("GARDENER"), tool.ToolListAnimals, Denied},
	}
	for _, tt := range tests {
		if got := m.Decide(tt.role, tt.op); got != tt.want {
			t.Errorf("Decide(%s, %s) = %s, want %s", tt.role, tt.op, got, tt.want)
		}
	}
}

func TestParseMatrixRejectsUnknownEntries(t *testing.T) {
	t.Parallel()

	bad := map[string]string{
		"empty":            "roles: {}",
		"unknown role":     "roles:\n  GARDENER:\n    list_animals: allowed\n",
		"unknown op":       "roles:\n  JANITOR:\n    mop_floor: allowed\n",
		"unknown decision": "roles:\n  JANITOR:\n    list_animals: maybe\n",
		"not yaml":         "roles: [",
	}
	for name, raw := range bad {
		if _, err := ParseMatrix([]byte(raw)); !errors.Is(err, ErrInvalidMatrix) {
			t.Errorf("%s: ParseMatrix() error = %v, want ErrInvalidMatrix", name, err)
		}
	}
}

func TestLoadMatrixFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	raw := "roles:\n  janitor:\n    list_animals: allowed\n    notify_staff: Denied\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	m, err := LoadMatrix(path)
	if err != nil {
		t.Fatalf("LoadMatrix() error = %v", err)
	}
	if got := m.Decide(catalog.RoleJanitor, tool.ToolListAnimals); got != Allowed {
		t.Fatalf("list_animals = %s", got)
	}
	if got := m.Decide(catalog.RoleJanitor, tool.ToolNotifyStaff); got != Denied {
		t.Fatalf("notify_staff = %s", got)
	}
	if got := m.Decide(catalog.RoleCoordinator, tool.ToolListAnimals); got != Denied {
		t.Fatalf("unlisted role = %s", got)
	}

	if _, err := LoadMatrix(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMatrixRows(t *testing.T) {
	t.Parallel()

	rows := DefaultMatrix().Rows()
	if len(rows) != len(catalog.Roles) {
		t.Fatalf("len(rows) = %d", len(rows))
	}
	if rows[0].Role != catalog.RoleCoordinator || len(rows[0].Allowed) != 4 || len(rows[0].RequiresConfirmation) != 0 {
		t.Fatalf("coordinator row = %+v", rows[0])
	}
	if rows[2].Role != catalog.RoleJanitor || len(rows[2].RequiresConfirmation) != 1 {
		t.Fatalf("janitor row = %+v", rows[2])
	}
}

func alexWith(events ...catalog.StatusEvent) catalog.Animal {
	return catalog.Animal{ID: "ALEX", Name: "Alex", Species: "Lion", Age: 4, LastStatus: events}
}

func TestFindDuplicate(t *testing.T) {
	t.Parallel()

	d := NewDeduper(0, 0).WithClock(func() time.Time { return testNow })
	recent := catalog.StatusEvent{
		Time:     testNow.Add(-time.Hour),
		Status:   "Alex seems to be limping",
		UserRole: catalog.RoleZookeeper,
		UserID:   "U1",
	}
	old := recent
	old.Time = testNow.Add(-48 * time.Hour)

	tests := []struct {
		name   string
		animal catalog.Animal
		report string
		want   bool
	}{
		{"same report reworded", alexWith(recent), "ALEX is limping!", true},
		{"stemmed verb form", alexWith(recent), "alex limps", true},
		{"different content", alexWith(recent), "Alex refused to eat", false},
		{"outside window", alexWith(old), "Alex is limping", false},
		{"no history", alexWith(), "Alex is limping", false},
		{"only stop words and name", alexWith(recent), "Alex is", false},
	}
	for _, tt := range tests {
		m, got := d.FindDuplicate(tt.animal, tt.report)
		if got != tt.want {
			t.Errorf("%s: FindDuplicate() = %v (sim %.2f), want %v", tt.name, got, m.Similarity, tt.want)
		}
		if got && (m.Event.UserID != "U1" || m.AnimalID != "ALEX") {
			t.Errorf("%s: match = %+v", tt.name, m)
		}
	}
}

func TestNewDeduperDefaults(t *testing.T) {
	t.Parallel()

	d := NewDeduper(-time.Second, 3)
	if d.Window != DefaultDedupWindow || d.Threshold != DefaultDedupThreshold {
		t.Fatalf("deduper = %+v", d)
	}
}

type fakeSource struct {
	animals []catalog.Animal
	err     error
	calls   int
}

func (f *fakeSource) ListAnimals(context.Context) ([]catalog.Animal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.animals, nil
}

func newGuard(src AnimalSource) *Guard {
	return NewDeduper(DefaultDedupWindow, DefaultDedupThreshold).
		WithClock(func() time.Time { return testNow }).
		Guard(src)
}

func TestGuardSuppressesRepeatedReport(t *testing.T) {
	t.Parallel()

	src := &fakeSource{animals: []catalog.Animal{
		alexWith(catalog.StatusEvent{Time: testNow.Add(-time.Hour), Status: "Alex seems to be limping", UserRole: catalog.RoleZookeeper, UserID: "U1"}),
		{ID: "MARTY", Name: "Marty", Species: "Zebra"},
	}}
	g := newGuard(src)
	ctx := context.Background()

	_, dup, err := g.BeforeStatus(ctx, "ALEX", "Alex is limping")
	if err != nil || !dup {
		t.Fatalf("BeforeStatus() = %v, %v; want duplicate", dup, err)
	}

	// Notification without an explicit animal id resolves Alex by name.
	m, suppress, err := g.BeforeNotify(ctx, "", "Alex the lion is limping, please check")
	if err != nil || !suppress {
		t.Fatalf("BeforeNotify() = %v, %v; want suppressed", suppress, err)
	}
	if m.Event.UserID != "U1" {
		t.Fatalf("match = %+v", m)
	}

	// Unrelated animal is unaffected.
	if _, suppress, _ := g.BeforeNotify(ctx, "MARTY", "Marty escaped his enclosure"); suppress {
		t.Fatal("notification about Marty was suppressed")
	}
}

func TestGuardAllowsNotifyAfterOwnAppend(t *testing.T) {
	t.Parallel()

	src := &fakeSource{animals: []catalog.Animal{alexWith()}}
	g := newGuard(src)
	ctx := context.Background()

	if _, dup, err := g.BeforeStatus(ctx, "ALEX", "Alex is limping"); err != nil || dup {
		t.Fatalf("BeforeStatus() = %v, %v", dup, err)
	}
	g.RecordAppended("ALEX")

	// The backend now holds our own event; it must not suppress our notification.
	src.animals = []catalog.Animal{alexWith(catalog.StatusEvent{Time: testNow, Status: "Alex is limping", UserID: "U1"})}
	if _, suppress, err := g.BeforeNotify(ctx, "ALEX", "Alex is limping"); err != nil || suppress {
		t.Fatalf("BeforeNotify() = %v, %v; want allowed", suppress, err)
	}
}

func TestGuardNotifyChecksHistoryWithoutAppend(t *testing.T) {
	t.Parallel()

	src := &fakeSource{animals: []catalog.Animal{
		alexWith(catalog.StatusEvent{Time: testNow.Add(-time.Hour), Status: "limping on the left leg", UserID: "U1"}),
	}}
	g := newGuard(src)

	if _, suppress, err := g.BeforeNotify(context.Background(), "ALEX", "Alex limping left leg"); err != nil || !suppress {
		t.Fatalf("BeforeNotify() = %v, %v; want suppressed", suppress, err)
	}
}

func TestGuardRepeatedUpdateAfterOwnAppend(t *testing.T) {
	t.Parallel()

	src := &fakeSource{animals: []catalog.Animal{alexWith()}}
	g := newGuard(src)
	ctx := context.Background()

	if _, dup, err := g.BeforeStatus(ctx, "ALEX", "Alex is limping"); err != nil || dup {
		t.Fatalf("BeforeStatus() = %v, %v", dup, err)
	}
	g.RecordAppended("ALEX")
	src.animals = []catalog.Animal{alexWith(catalog.StatusEvent{Time: testNow, Status: "Alex is limping", UserRole: catalog.RoleZookeeper, UserID: "U1"})}

	// The second update repeats our own event: it is not appended twice...
	if _, dup, err := g.BeforeStatus(ctx, "ALEX", "Alex is limping"); err != nil || !dup {
		t.Fatalf("second BeforeStatus() = %v, %v; want duplicate", dup, err)
	}
	// ...but the notification about the new event still goes out.
	if _, suppress, err := g.BeforeNotify(ctx, "ALEX", "Alex is limping, please check"); err != nil || suppress {
		t.Fatalf("BeforeNotify(ALEX) = %v, %v; want allowed", suppress, err)
	}
	if _, suppress, err := g.BeforeNotify(ctx, "", "Our lion is limping"); err != nil || suppress {
		t.Fatalf("BeforeNotify(unresolved) = %v, %v; want allowed", suppress, err)
	}
}

func TestGuardUnresolvedAnimal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{animals: []catalog.Animal{
		alexWith(catalog.StatusEvent{Time: testNow.Add(-time.Hour), Status: "Alex seems to be limping", UserRole: catalog.RoleZookeeper, UserID: "U1"}),
		{ID: "MARTY", Name: "Marty"},
	}}
	ctx := context.Background()

	g := newGuard(src)
	if _, suppress, _ := g.BeforeNotify(ctx, "", "The toilets near the entrance need cleaning"); suppress {
		t.Fatal("unrelated notification suppressed with no duplicate in request")
	}

	if _, dup, _ := g.BeforeStatus(ctx, "ALEX", "Alex is limping"); !dup {
		t.Fatal("expected duplicate")
	}

	// Requests for other work in the same prompt still reach the staff.
	if _, suppress, _ := g.BeforeNotify(ctx, "", "The public toilets near the entrance need cleaning"); suppress {
		t.Fatal("unrelated janitor notification suppressed")
	}
	// Both animals named: ambiguous, and the text does not repeat Alex's report.
	if _, suppress, _ := g.BeforeNotify(ctx, "", "Alex and Marty need a vet"); suppress {
		t.Fatal("ambiguous notification suppressed without matching content")
	}
	// No animal named, but the content repeats the known duplicate.
	m, suppress, _ := g.BeforeNotify(ctx, "", "Our lion is limping")
	if !suppress || m.AnimalID != "ALEX" {
		t.Fatalf("BeforeNotify() = %+v, %v; want suppressed as Alex's report", m, suppress)
	}
}

func TestGuardUnknownAnimalAndSourceError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{animals: []catalog.Animal{alexWith()}}
	g := newGuard(src)
	if _, dup, err := g.BeforeStatus(context.Background(), "NOBODY", "limping"); err != nil || dup {
		t.Fatalf("BeforeStatus(unknown) = %v, %v", dup, err)
	}

	boom := errors.New("backend down")
	g = newGuard(&fakeSource{err: boom})
	if _, _, err := g.BeforeStatus(context.Background(), "ALEX", "limping"); !errors.Is(err, boom) {
		t.Fatalf("BeforeStatus() error = %v, want %v", err, boom)
	}
}
