/*
Package health provides health check mechanisms usable by zooid
workers and the colony's bus-proxy liveness poll.

TCPChecker implements the Checker interface with a dial-only liveness
check. Status tracks consecutive failures/successes with hysteresis so
a single transient failure doesn't flip a reported health state.

# Usage

	checker := health.NewTCPChecker("127.0.0.1:7602").
		WithTimeout(5 * time.Second)

	status := health.NewStatus()
	cfg := health.DefaultConfig()

	result := checker.Check(ctx)
	status.Update(result, cfg)
	if !status.Healthy {
		// surfaced via the worker runtime's Health() method
	}

Adapted from the teacher's container health checker package, which
also carried HTTPChecker and ExecChecker: neither has a zooid/bus-proxy
analog (the colony has no HTTP surface to probe, and the orchestrator
already runs a purpose-built subprocess supervisor), so only the
Checker/Result/Status/Config types and TCPChecker survived the port.
*/
package health
