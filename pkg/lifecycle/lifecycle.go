package lifecycle

import (
	"fmt"
	"math"
	"slices"

	"github.com/kloros-colony/fabric/pkg/types"
)

// EventFunc receives every state change event a transition emits.
type EventFunc func(types.ZooidStateChangeEvent)

// StartProbation moves each named zooid from DORMANT to PROBATION,
// appending batchID to its phase.batches (no duplicates) and emitting
// one zooid_state_change event per actual transition. Zooids already in
// PROBATION (or any state other than DORMANT) are silently skipped. It
// returns the names actually transitioned.
func StartProbation(reg *types.Registry, names []string, batchID string, now float64, onEvent EventFunc) []string {
	var promoted []string

	for _, name := range names {
		z, ok := reg.Zooids[name]
		if !ok || z.LifecycleState != types.Dormant {
			continue
		}

		z.LifecycleState = types.Probation
		if !slices.Contains(z.Phase.Batches, batchID) {
			z.Phase.Batches = append(z.Phase.Batches, batchID)
		}
		reg.NicheFor(z.Niche).MoveToState(name, types.Probation)

		if onEvent != nil {
			onEvent(types.ZooidStateChangeEvent{
				Zooid:         name,
				From:          string(types.Dormant),
				To:            string(types.Probation),
				Reason:        fmt.Sprintf("phase_batch:%s", batchID),
				GenomeHash:    z.GenomeHash,
				ServiceAction: "noop",
			})
		}
		promoted = append(promoted, name)
	}

	return promoted
}

// Promote moves a PROBATION zooid to ACTIVE, setting promoted_ts. It is a
// no-op on zooids not currently in PROBATION.
func Promote(reg *types.Registry, name string, now float64, onEvent EventFunc) bool {
	z, ok := reg.Zooids[name]
	if !ok || z.LifecycleState != types.Probation {
		return false
	}

	z.LifecycleState = types.Active
	z.PromotedTS = now
	reg.NicheFor(z.Niche).MoveToState(name, types.Active)

	if onEvent != nil {
		onEvent(types.ZooidStateChangeEvent{
			Zooid:         name,
			From:          string(types.Probation),
			To:            string(types.Active),
			Reason:        "evidence_selected",
			GenomeHash:    z.GenomeHash,
			ServiceAction: "noop",
		})
	}
	return true
}

// CooldownFor computes the exponential backoff cooldown deadline for a
// zooid about to accrue one more demotion: now + base * 2^demotions.
func CooldownFor(now, baseCooldownSec float64, demotionsBefore int) float64 {
	return now + baseCooldownSec*math.Pow(2, float64(demotionsBefore))
}

// Demote transitions an ACTIVE zooid to DORMANT (with an exponential
// backoff cooldown) or, once demotions reaches ceiling, to RETIRED. It
// always increments demotions and always reports ServiceAction
// "systemd_stop": callers are responsible for invoking the corresponding
// side effect exactly once, as the original quarantine monitor does. It
// is a no-op on zooids not currently ACTIVE.
func Demote(reg *types.Registry, name string, now, baseCooldownSec float64, ceiling, failuresInWindow, windowSec int, onEvent EventFunc) bool {
	z, ok := reg.Zooids[name]
	if !ok || z.LifecycleState != types.Active {
		return false
	}

	from := z.LifecycleState
	demotionsBefore := z.Demotions
	z.Demotions++

	evt := types.ZooidStateChangeEvent{
		Zooid:            name,
		From:             string(from),
		GenomeHash:       z.GenomeHash,
		ServiceAction:    "systemd_stop",
		FailuresInWindow: failuresInWindow,
		WindowSec:        windowSec,
		Demotions:        z.Demotions,
	}

	if z.Demotions >= ceiling {
		z.LifecycleState = types.Retired
		reg.NicheFor(z.Niche).MoveToState(name, types.Retired)
		evt.To = string(types.Retired)
		evt.Reason = "demotion_ceiling"
	} else {
		cooldown := CooldownFor(now, baseCooldownSec, demotionsBefore)
		z.LifecycleState = types.Dormant
		z.Policy.CooldownUntilTS = cooldown
		reg.NicheFor(z.Niche).MoveToState(name, types.Dormant)
		evt.To = string(types.Dormant)
		evt.Reason = "prod_guard_trip"
		evt.CooldownUntilTS = cooldown
	}

	if onEvent != nil {
		onEvent(evt)
	}
	return true
}

// Retire moves any non-RETIRED zooid to the terminal RETIRED state for
// an explicit reason. It is a no-op on zooids already RETIRED.
func Retire(reg *types.Registry, name, reason string, onEvent EventFunc) bool {
	z, ok := reg.Zooids[name]
	if !ok || z.LifecycleState == types.Retired {
		return false
	}

	from := z.LifecycleState
	z.LifecycleState = types.Retired
	reg.NicheFor(z.Niche).MoveToState(name, types.Retired)

	if onEvent != nil {
		onEvent(types.ZooidStateChangeEvent{
			Zooid:         name,
			From:          string(from),
			To:            string(types.Retired),
			Reason:        reason,
			GenomeHash:    z.GenomeHash,
			ServiceAction: "noop",
		})
	}
	return true
}
