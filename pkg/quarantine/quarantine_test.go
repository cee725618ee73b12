package quarantine

import (
	"testing"

	"github.com/kloros-colony/fabric/pkg/types"
)

func ptr(b bool) *bool { return &b }

func newQuarantineFixture(now float64) *types.Registry {
	reg := types.NewRegistry()
	niche := reg.NicheFor("latency_monitoring")
	niche.Active = []string{"lat_mon_001", "lat_mon_002"}

	reg.Zooids["lat_mon_001"] = &types.Zooid{Name: "lat_mon_001", Niche: "latency_monitoring", LifecycleState: types.Active, GenomeHash: "sha256:abc123", Demotions: 0}
	reg.Zooids["lat_mon_002"] = &types.Zooid{Name: "lat_mon_002", Niche: "latency_monitoring", LifecycleState: types.Active, GenomeHash: "sha256:def456", Demotions: 0}
	return reg
}

func TestCheckQuarantineDemotesOnFailureBurst(t *testing.T) {
	now := float64(2_000_000)
	reg := newQuarantineFixture(now)

	rows := []Row{
		{Zooid: "lat_mon_001", TS: now - 600, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now - 450, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now - 300, OK: ptr(true)},
		{Zooid: "lat_mon_001", TS: now - 150, OK: ptr(false)},
		{Zooid: "lat_mon_002", TS: now - 500, OK: ptr(true)},
		{Zooid: "lat_mon_002", TS: now - 400, OK: ptr(true)},
		{Zooid: "lat_mon_002", TS: now - 200, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now - 2000, OK: ptr(false)}, // outside window
	}

	var stopped []string
	var events []types.ZooidStateChangeEvent
	cfg := Config{NFailures: 3, WindowSec: 900, BaseCooldownSec: 60, Ceiling: 2}

	demoted := CheckQuarantine(reg, rows, now, cfg,
		func(name string) { stopped = append(stopped, name) },
		func(e types.ZooidStateChangeEvent) { events = append(events, e) },
	)

	if len(demoted) != 1 || demoted[0] != "lat_mon_001" {
		t.Fatalf("expected only lat_mon_001 demoted, got %v", demoted)
	}
	if reg.Zooids["lat_mon_001"].LifecycleState != types.Dormant {
		t.Fatalf("expected lat_mon_001 DORMANT, got %s", reg.Zooids["lat_mon_001"].LifecycleState)
	}
	if reg.Zooids["lat_mon_001"].Demotions != 1 {
		t.Fatalf("expected demotions=1, got %d", reg.Zooids["lat_mon_001"].Demotions)
	}
	if len(stopped) != 1 || stopped[0] != "lat_mon_001" {
		t.Fatalf("expected stop_service called once for lat_mon_001, got %v", stopped)
	}
	niche := reg.NicheFor("latency_monitoring")
	if niche.Contains("lat_mon_001", types.Active) || !niche.Contains("lat_mon_001", types.Dormant) {
		t.Fatalf("expected lat_mon_001 moved from active to dormant niche list")
	}
	if reg.Zooids["lat_mon_002"].LifecycleState != types.Active {
		t.Fatalf("expected lat_mon_002 to remain ACTIVE (only 1 failure in window)")
	}

	var demotionEvt *types.ZooidStateChangeEvent
	for i := range events {
		if events[i].Zooid == "lat_mon_001" && events[i].Reason == "prod_guard_trip" {
			demotionEvt = &events[i]
		}
	}
	if demotionEvt == nil {
		t.Fatalf("expected a prod_guard_trip event, got %+v", events)
	}
	if demotionEvt.FailuresInWindow != 3 || demotionEvt.WindowSec != 900 || demotionEvt.Demotions != 1 {
		t.Fatalf("unexpected event fields: %+v", demotionEvt)
	}
	if demotionEvt.ServiceAction != "systemd_stop" {
		t.Fatalf("expected systemd_stop service action, got %s", demotionEvt.ServiceAction)
	}

	// Idempotency: re-running with the same rows demotes nothing further,
	// since lat_mon_001 is no longer ACTIVE.
	stopped = nil
	events = nil
	demoted2 := CheckQuarantine(reg, rows, now+10, cfg,
		func(name string) { stopped = append(stopped, name) },
		func(e types.ZooidStateChangeEvent) { events = append(events, e) },
	)
	if len(demoted2) != 0 {
		t.Fatalf("expected 0 demotions on re-run, got %v", demoted2)
	}
	if len(stopped) != 0 {
		t.Fatalf("expected 0 stop_service calls on re-run, got %v", stopped)
	}
}

func TestCheckQuarantineDemotionCeilingRetires(t *testing.T) {
	now := float64(2_000_000)
	reg := newQuarantineFixture(now)
	z := reg.Zooids["lat_mon_001"]
	z.Demotions = 1
	z.Policy.CooldownUntilTS = now - 100 // already expired

	moreFailures := []Row{
		{Zooid: "lat_mon_001", TS: now + 100, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now + 150, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now + 200, OK: ptr(false)},
	}

	cfg := Config{NFailures: 3, WindowSec: 900, BaseCooldownSec: 60, Ceiling: 2}
	var events []types.ZooidStateChangeEvent
	demoted := CheckQuarantine(reg, moreFailures, now+300, cfg, nil, func(e types.ZooidStateChangeEvent) { events = append(events, e) })

	if len(demoted) != 1 || demoted[0] != "lat_mon_001" {
		t.Fatalf("expected lat_mon_001 demoted to RETIRED, got %v", demoted)
	}
	if z.LifecycleState != types.Retired {
		t.Fatalf("expected RETIRED, got %s", z.LifecycleState)
	}
	if z.Demotions != 2 {
		t.Fatalf("expected demotions=2, got %d", z.Demotions)
	}
	if !reg.NicheFor("latency_monitoring").Contains("lat_mon_001", types.Retired) {
		t.Fatalf("expected lat_mon_001 in retired niche list")
	}

	var retireEvt *types.ZooidStateChangeEvent
	for i := range events {
		if events[i].Zooid == "lat_mon_001" && events[i].To == string(types.Retired) {
			retireEvt = &events[i]
		}
	}
	if retireEvt == nil || retireEvt.Reason != "demotion_ceiling" {
		t.Fatalf("expected demotion_ceiling event, got %+v", events)
	}
}

func TestCheckQuarantineSkipsZooidStillInCooldown(t *testing.T) {
	now := float64(2_000_000)
	reg := newQuarantineFixture(now)
	reg.Zooids["lat_mon_001"].Policy.CooldownUntilTS = now + 1000 // not yet expired

	rows := []Row{
		{Zooid: "lat_mon_001", TS: now - 10, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now - 20, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now - 30, OK: ptr(false)},
	}
	cfg := Config{NFailures: 3, WindowSec: 900, BaseCooldownSec: 60, Ceiling: 2}

	demoted := CheckQuarantine(reg, rows, now, cfg, nil, nil)
	if len(demoted) != 0 {
		t.Fatalf("expected no demotions while cooldown active, got %v", demoted)
	}
}

func TestCheckQuarantineTreatsUnknownOKAsPass(t *testing.T) {
	now := float64(2_000_000)
	reg := newQuarantineFixture(now)

	rows := []Row{
		{Zooid: "lat_mon_001", TS: now - 10, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now - 20, OK: ptr(false)},
		{Zooid: "lat_mon_001", TS: now - 30, OK: nil}, // unknown, treated as pass
	}
	cfg := Config{NFailures: 3, WindowSec: 900, BaseCooldownSec: 60, Ceiling: 2}

	demoted := CheckQuarantine(reg, rows, now, cfg, nil, nil)
	if len(demoted) != 0 {
		t.Fatalf("expected no demotion: unknown-ok row should not count as failure, got %v", demoted)
	}
}
