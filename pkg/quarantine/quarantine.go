package quarantine

import (
	"sort"

	"github.com/kloros-colony/fabric/pkg/lifecycle"
	"github.com/kloros-colony/fabric/pkg/types"
)

// Row is a minimal fitness ledger observation as consumed by
// CheckQuarantine. OK is a pointer so a row with unknown outcome (nil)
// can be treated as a pass, matching the original source's contract.
type Row struct {
	Zooid string
	TS    float64
	OK    *bool
}

// Config bounds the quarantine check: how many failures in how many
// seconds trips a demotion, the per-demotion backoff base, and the
// demotion count at which a zooid is retired instead of dormanted.
type Config struct {
	NFailures       int
	WindowSec       int
	BaseCooldownSec float64
	Ceiling         int
}

// CheckQuarantine scans rows for each ACTIVE zooid in reg, demoting any
// whose failure count in the trailing WindowSec seconds reaches
// NFailures and whose cooldown has expired. It returns the names of
// zooids demoted on this call. onStopService is invoked exactly once
// per demotion; onEvent receives the zooid_state_change emitted by the
// underlying lifecycle transition.
func CheckQuarantine(reg *types.Registry, rows []Row, now float64, cfg Config, onStopService func(name string), onEvent lifecycle.EventFunc) []string {
	var demoted []string

	names := make([]string, 0, len(reg.Zooids))
	for name, z := range reg.Zooids {
		if z.LifecycleState == types.Active {
			names = append(names, name)
		}
	}
	sort.Strings(names) // deterministic iteration order

	for _, name := range names {
		z := reg.Zooids[name]
		if now < z.Policy.CooldownUntilTS {
			continue
		}

		failures := countFailures(rows, name, now, cfg.WindowSec)
		if failures < cfg.NFailures {
			continue
		}

		if lifecycle.Demote(reg, name, now, cfg.BaseCooldownSec, cfg.Ceiling, failures, cfg.WindowSec, onEvent) {
			if onStopService != nil {
				onStopService(name)
			}
			demoted = append(demoted, name)
		}
	}

	return demoted
}

func countFailures(rows []Row, zooid string, now float64, windowSec int) int {
	count := 0
	for _, r := range rows {
		if r.Zooid != zooid {
			continue
		}
		if now-r.TS > float64(windowSec) {
			continue
		}
		if r.OK == nil || *r.OK {
			continue // unknown or ok: not a failure
		}
		count++
	}
	return count
}
