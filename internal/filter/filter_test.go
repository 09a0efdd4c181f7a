// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package filter

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func mustParse(t *testing.T, kind models.Kind, raw map[string]any) *models.Entity {
	t.Helper()
	e, err := models.Parse(kind, raw, time.Now())
	if err != nil {
		t.Fatalf("Parse(%v) error = %v", raw, err)
	}
	return e
}

func officers(t *testing.T) []*models.Entity {
	t.Helper()
	return []*models.Entity{
		mustParse(t, models.KindOfficer, map[string]any{"id": "o-1", "name": "Dana Reyes", "badgeNumber": "4471", "status": "ON_DUTY"}),
		mustParse(t, models.KindOfficer, map[string]any{"id": "o-2", "name": "Sam Okafor", "badgeNumber": "1180", "status": "IN_EMERGENCY"}),
		mustParse(t, models.KindOfficer, map[string]any{"id": "o-3", "name": "Lee Park", "status": "off duty"}),
		mustParse(t, models.KindOfficer, map[string]any{"id": "unit-44", "status": "ON_DUTY"}),
	}
}

func ids(entities []*models.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

func TestApply(t *testing.T) {
	t.Parallel()

	snapshot := officers(t)

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"match all", All, []string{"o-1", "o-2", "o-3", "unit-44"}},
		{"zero query", Query{}, []string{"o-1", "o-2", "o-3", "unit-44"}},
		{"text case-insensitive", Query{Text: "REYES"}, []string{"o-1"}},
		{"text matches id", Query{Text: "unit"}, []string{"unit-44"}},
		{"text matches badge", Query{Text: "1180"}, []string{"o-2"}},
		{"status", Query{Status: models.StatusOnDuty}, []string{"o-1", "unit-44"}},
		{"loose status spelling", Query{Status: "off-duty"}, []string{"o-3"}},
		{"status and text", Query{Text: "o-", Status: models.StatusOnDuty}, []string{"o-1"}},
		{"ALL bypasses status", Query{Text: "park", Status: "all"}, []string{"o-3"}},
		{"no match", Query{Text: "nobody"}, []string{}},
		{"surrounding space", Query{Text: "  okafor "}, []string{"o-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ids(Apply(snapshot, tt.query))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Apply(%+v) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestApply_SubsetLaw(t *testing.T) {
	t.Parallel()

	snapshot := officers(t)
	members := make(map[*models.Entity]bool, len(snapshot))
	for _, e := range snapshot {
		members[e] = true
	}

	texts := []string{"", "o", "1", "park", "zzz", "-4"}
	statuses := []models.Status{"", models.StatusAll, models.StatusOnDuty, models.StatusInEmergency, "UNKNOWN"}

	for _, text := range texts {
		for _, status := range statuses {
			got := Apply(snapshot, Query{Text: text, Status: status})
			if len(got) > len(snapshot) {
				t.Fatalf("Apply(%q,%q) returned more than the snapshot", text, status)
			}
			for _, e := range got {
				if !members[e] {
					t.Errorf("Apply(%q,%q) returned %s, not in the snapshot", text, status, e.ID)
				}
			}
		}
	}
}

func TestApply_MatchAllReturnsSnapshot(t *testing.T) {
	t.Parallel()

	snapshot := officers(t)
	got := Apply(snapshot, All)
	if len(got) == 0 || &got[0] != &snapshot[0] {
		t.Error("match-all Apply should return the snapshot slice itself")
	}
}

// fakeSource serves a snapshot and a version that tests bump by hand.
type fakeSource struct {
	mu       sync.Mutex
	entities map[models.Kind][]*models.Entity
	versions map[models.Kind]uint64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		entities: make(map[models.Kind][]*models.Entity),
		versions: make(map[models.Kind]uint64),
	}
}

func (f *fakeSource) set(kind models.Kind, entities []*models.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[kind] = entities
	f.versions[kind]++
}

func (f *fakeSource) VersionedSnapshot(kind models.Kind) ([]*models.Entity, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities[kind], f.versions[kind]
}

func TestEngine_Memoization(t *testing.T) {
	src := newFakeSource()
	src.set(models.KindOfficer, officers(t))
	eng := NewEngine(src, 16, time.Minute)

	hits := metrics.CacheHits.WithLabelValues("filter")
	before := testutil.ToFloat64(hits)

	q := Query{Text: "o-", Status: models.StatusOnDuty}
	v1 := eng.View(models.KindOfficer, q)
	v2 := eng.View(models.KindOfficer, Query{Text: " O- ", Status: "on_duty"})
	if v1 != v2 {
		t.Error("equivalent queries over an unchanged snapshot should return the same view")
	}
	if delta := testutil.ToFloat64(hits) - before; delta != 1 {
		t.Errorf("cache hit delta = %v, want 1", delta)
	}
	if v1.Total != 4 || len(v1.Entities) != 1 {
		t.Errorf("view Total=%d len=%d, want 4 and 1", v1.Total, len(v1.Entities))
	}

	other := eng.View(models.KindOfficer, All)
	if other == v1 {
		t.Error("different queries must not share a view")
	}

	src.set(models.KindOfficer, officers(t)[:2])
	v3 := eng.View(models.KindOfficer, q)
	if v3 == v1 {
		t.Error("a new store version must produce a new view")
	}
	if v3.Version != v1.Version+1 {
		t.Errorf("view version = %d, want %d", v3.Version, v1.Version+1)
	}

	if removed := eng.Invalidate(models.KindOfficer, v3.Version); removed != 2 {
		t.Errorf("Invalidate() removed %d, want 2", removed)
	}
	if eng.Len() != 1 {
		t.Errorf("Len() = %d, want 1", eng.Len())
	}
	if again := eng.View(models.KindOfficer, q); again != v3 {
		t.Error("current view should survive Invalidate")
	}
}

func TestEngine_KindsAreIndependent(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.set(models.KindOfficer, officers(t))
	src.set(models.KindIncident, []*models.Entity{
		mustParse(t, models.KindIncident, map[string]any{"id": "inc-1", "title": "Collision", "status": "REPORTED"}),
	})
	eng := NewEngine(src, 16, time.Minute)

	off := eng.View(models.KindOfficer, All)
	inc := eng.View(models.KindIncident, All)
	if off.Kind != models.KindOfficer || inc.Kind != models.KindIncident {
		t.Fatalf("views carry kinds %s and %s", off.Kind, inc.Kind)
	}
	if len(off.Entities) != 4 || len(inc.Entities) != 1 {
		t.Errorf("view sizes = %d, %d; want 4, 1", len(off.Entities), len(inc.Entities))
	}

	keys := inc.Keys()
	if len(keys) != 1 || keys[0] != (models.Key{Kind: models.KindIncident, ID: "inc-1"}) {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestEngine_PurgeExpired(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.set(models.KindOfficer, officers(t))
	eng := NewEngine(src, 16, 10*time.Millisecond)

	eng.View(models.KindOfficer, All)
	eng.View(models.KindOfficer, Query{Text: "park"})
	if n := eng.PurgeExpired(); n != 0 {
		t.Errorf("PurgeExpired() before TTL = %d, want 0", n)
	}

	time.Sleep(30 * time.Millisecond)
	if n := eng.PurgeExpired(); n != 2 {
		t.Errorf("PurgeExpired() after TTL = %d, want 2", n)
	}
	if eng.Len() != 0 {
		t.Errorf("Len() = %d, want 0", eng.Len())
	}
}

func TestState_SelectionIsExclusiveAcrossKinds(t *testing.T) {
	t.Parallel()

	s := NewState()
	officer := models.Key{Kind: models.KindOfficer, ID: "o-1"}
	incident := models.Key{Kind: models.KindIncident, ID: "inc-1"}

	if _, had := s.Select(officer); had {
		t.Error("first Select should report no previous selection")
	}
	prev, had := s.Select(incident)
	if !had || prev != officer {
		t.Errorf("Select(incident) previous = %v/%v, want %v", prev, had, officer)
	}
	if _, ok := s.SelectedOf(models.KindOfficer); ok {
		t.Error("selecting an incident should clear the officer selection")
	}
	if id, ok := s.SelectedOf(models.KindIncident); !ok || id != "inc-1" {
		t.Errorf("SelectedOf(INCIDENT) = %q/%v", id, ok)
	}

	prev, had = s.Deselect()
	if !had || prev != incident {
		t.Errorf("Deselect() = %v/%v", prev, had)
	}
	if _, ok := s.Selected(); ok {
		t.Error("Selected() after Deselect should be empty")
	}
}

func TestState_QueriesPerKind(t *testing.T) {
	t.Parallel()

	s := NewState()
	if !s.SetQuery(models.KindOfficer, Query{Text: "Reyes"}) {
		t.Error("SetQuery should report a change")
	}
	if s.SetQuery(models.KindOfficer, Query{Text: "reyes ", Status: "ALL"}) {
		t.Error("an equivalent query should not report a change")
	}
	if got := s.Query(models.KindIncident); got != All {
		t.Errorf("incident query = %+v, want All", got)
	}
	if got := s.Query(models.KindOfficer); got.Text != "reyes" {
		t.Errorf("officer query text = %q, want reyes", got.Text)
	}
}
