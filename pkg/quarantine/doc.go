/*
Package quarantine implements the quarantine monitor (§4.F): the
function that scans a window of fitness ledger observations and demotes
ACTIVE zooids whose recent failure count trips a threshold.

CheckQuarantine is grounded directly on the original source's
check_quarantine, including its literal test fixtures: count
observations with ok=false in the trailing window_sec seconds per
ACTIVE zooid, demote once the count reaches n_failures and any prior
cooldown has expired, and escalate to RETIRED once demotions reaches the
configured ceiling. Re-running the function against the same rows is
a no-op for zooids whose cooldown has not yet elapsed, which is what
makes repeated invocations (e.g. once per tick) safe.
*/
package quarantine
