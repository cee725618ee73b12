package lifecycle

import (
	"testing"
	"time"

	"github.com/kloros-colony/fabric/pkg/types"
)

func newProbationFixture(now float64) *types.Registry {
	reg := types.NewRegistry()
	niche := reg.NicheFor("latency_monitoring")
	niche.Active = []string{"existing_active_001"}
	niche.Dormant = []string{"lat_mon_001", "lat_mon_002"}

	reg.Zooids["lat_mon_001"] = &types.Zooid{Name: "lat_mon_001", Niche: "latency_monitoring", LifecycleState: types.Dormant, GenomeHash: "sha256:abc123", EnteredTS: now - 1000}
	reg.Zooids["lat_mon_002"] = &types.Zooid{Name: "lat_mon_002", Niche: "latency_monitoring", LifecycleState: types.Dormant, GenomeHash: "sha256:def456", EnteredTS: now - 2000}
	reg.Zooids["existing_active_001"] = &types.Zooid{Name: "existing_active_001", Niche: "latency_monitoring", LifecycleState: types.Active, GenomeHash: "sha256:ghi789", PromotedTS: now - 9000}
	return reg
}

func TestStartProbationTransitionsDormantToProbation(t *testing.T) {
	now := float64(time.Now().Unix())
	reg := newProbationFixture(now)
	batchID := "2025-11-07T03:10Z-LIGHT"

	var events []types.ZooidStateChangeEvent
	promoted := StartProbation(reg, []string{"lat_mon_001", "lat_mon_002"}, batchID, now, func(e types.ZooidStateChangeEvent) {
		events = append(events, e)
	})

	if len(promoted) != 2 {
		t.Fatalf("expected 2 promotions, got %d", len(promoted))
	}
	if reg.Zooids["lat_mon_001"].LifecycleState != types.Probation {
		t.Fatalf("expected lat_mon_001 PROBATION, got %s", reg.Zooids["lat_mon_001"].LifecycleState)
	}
	if reg.Zooids["existing_active_001"].LifecycleState != types.Active {
		t.Fatalf("expected existing_active_001 unaffected")
	}
	if len(reg.Zooids["lat_mon_001"].Phase.Batches) != 1 || reg.Zooids["lat_mon_001"].Phase.Batches[0] != batchID {
		t.Fatalf("expected batch_id appended once, got %v", reg.Zooids["lat_mon_001"].Phase.Batches)
	}

	niche := reg.NicheFor("latency_monitoring")
	if len(niche.Dormant) != 0 {
		t.Fatalf("expected dormant list empty, got %v", niche.Dormant)
	}
	if len(niche.Probation) != 2 {
		t.Fatalf("expected 2 in probation, got %v", niche.Probation)
	}
	if len(niche.Active) != 1 {
		t.Fatalf("expected active list untouched, got %v", niche.Active)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.From != string(types.Dormant) || e.To != string(types.Probation) {
			t.Fatalf("unexpected event transition: %+v", e)
		}
		if e.Reason != "phase_batch:"+batchID {
			t.Fatalf("unexpected event reason: %s", e.Reason)
		}
		if e.ServiceAction != "noop" {
			t.Fatalf("expected noop service action, got %s", e.ServiceAction)
		}
	}

	// Idempotency: re-running with the same zooids and a later time emits
	// nothing and does not duplicate batch_id.
	events = nil
	promoted2 := StartProbation(reg, []string{"lat_mon_001", "lat_mon_002"}, batchID, now+100, func(e types.ZooidStateChangeEvent) {
		events = append(events, e)
	})
	if len(promoted2) != 0 {
		t.Fatalf("expected 0 promotions on re-run, got %d", len(promoted2))
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 events on re-run, got %d", len(events))
	}
	if len(reg.Zooids["lat_mon_001"].Phase.Batches) != 1 {
		t.Fatalf("expected batch_id not duplicated, got %v", reg.Zooids["lat_mon_001"].Phase.Batches)
	}
}

func TestPromoteMovesProbationToActive(t *testing.T) {
	reg := types.NewRegistry()
	niche := reg.NicheFor("n")
	niche.Probation = []string{"z1"}
	reg.Zooids["z1"] = &types.Zooid{Name: "z1", Niche: "n", LifecycleState: types.Probation}

	now := float64(time.Now().Unix())
	var events []types.ZooidStateChangeEvent
	ok := Promote(reg, "z1", now, func(e types.ZooidStateChangeEvent) { events = append(events, e) })
	if !ok {
		t.Fatalf("expected promotion to apply")
	}
	if reg.Zooids["z1"].LifecycleState != types.Active {
		t.Fatalf("expected ACTIVE, got %s", reg.Zooids["z1"].LifecycleState)
	}
	if reg.Zooids["z1"].PromotedTS != now {
		t.Fatalf("expected promoted_ts set")
	}
	if !niche.Contains("z1", types.Active) {
		t.Fatalf("expected z1 in active niche list")
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	// no-op on a zooid not in PROBATION
	if Promote(reg, "z1", now, nil) {
		t.Fatalf("expected no-op on already-ACTIVE zooid")
	}
}

func TestDemoteBelowCeilingGoesDormantWithCooldown(t *testing.T) {
	reg := types.NewRegistry()
	niche := reg.NicheFor("n")
	niche.Active = []string{"z1"}
	reg.Zooids["z1"] = &types.Zooid{Name: "z1", Niche: "n", LifecycleState: types.Active, Demotions: 0}

	now := float64(time.Now().Unix())
	var events []types.ZooidStateChangeEvent
	ok := Demote(reg, "z1", now, 60, 2, 3, 900, func(e types.ZooidStateChangeEvent) { events = append(events, e) })
	if !ok {
		t.Fatalf("expected demotion to apply")
	}
	z := reg.Zooids["z1"]
	if z.LifecycleState != types.Dormant {
		t.Fatalf("expected DORMANT, got %s", z.LifecycleState)
	}
	if z.Demotions != 1 {
		t.Fatalf("expected demotions=1, got %d", z.Demotions)
	}
	wantCooldown := now + 60 // base * 2^0
	if z.Policy.CooldownUntilTS != wantCooldown {
		t.Fatalf("expected cooldown %v, got %v", wantCooldown, z.Policy.CooldownUntilTS)
	}
	if !niche.Contains("z1", types.Dormant) {
		t.Fatalf("expected z1 moved to dormant niche list")
	}
	if len(events) != 1 || events[0].Reason != "prod_guard_trip" || events[0].ServiceAction != "systemd_stop" {
		t.Fatalf("unexpected event: %+v", events)
	}
}

func TestDemoteAtCeilingRetires(t *testing.T) {
	reg := types.NewRegistry()
	niche := reg.NicheFor("n")
	niche.Active = []string{"z1"}
	reg.Zooids["z1"] = &types.Zooid{Name: "z1", Niche: "n", LifecycleState: types.Active, Demotions: 1}

	now := float64(time.Now().Unix())
	var events []types.ZooidStateChangeEvent
	ok := Demote(reg, "z1", now, 60, 2, 3, 900, func(e types.ZooidStateChangeEvent) { events = append(events, e) })
	if !ok {
		t.Fatalf("expected demotion to apply")
	}
	z := reg.Zooids["z1"]
	if z.LifecycleState != types.Retired {
		t.Fatalf("expected RETIRED, got %s", z.LifecycleState)
	}
	if z.Demotions != 2 {
		t.Fatalf("expected demotions=2, got %d", z.Demotions)
	}
	if !niche.Contains("z1", types.Retired) {
		t.Fatalf("expected z1 moved to retired niche list")
	}
	if len(events) != 1 || events[0].Reason != "demotion_ceiling" {
		t.Fatalf("unexpected event: %+v", events)
	}
}

func TestDemoteNoOpWhenNotActive(t *testing.T) {
	reg := types.NewRegistry()
	reg.Zooids["z1"] = &types.Zooid{Name: "z1", Niche: "n", LifecycleState: types.Dormant}
	if Demote(reg, "z1", 0, 60, 2, 3, 900, nil) {
		t.Fatalf("expected no-op on non-ACTIVE zooid")
	}
}

func TestRetireIsIdempotentAndTerminal(t *testing.T) {
	reg := types.NewRegistry()
	niche := reg.NicheFor("n")
	niche.Active = []string{"z1"}
	reg.Zooids["z1"] = &types.Zooid{Name: "z1", Niche: "n", LifecycleState: types.Active}

	var events []types.ZooidStateChangeEvent
	ok := Retire(reg, "z1", "operator_request", func(e types.ZooidStateChangeEvent) { events = append(events, e) })
	if !ok {
		t.Fatalf("expected retire to apply")
	}
	if reg.Zooids["z1"].LifecycleState != types.Retired {
		t.Fatalf("expected RETIRED")
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event")
	}

	events = nil
	if Retire(reg, "z1", "operator_request", func(e types.ZooidStateChangeEvent) { events = append(events, e) }) {
		t.Fatalf("expected no-op retiring an already-RETIRED zooid")
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 events on no-op retire")
	}
}
