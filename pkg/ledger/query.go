package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kloros-colony/fabric/pkg/types"
)

const nicheVolumeBaseline = 100.0

// FitnessSummary is the result of GetRecentFitness.
type FitnessSummary struct {
	SuccessRate    float64 `json:"success_rate"`
	AvgTTRMs       float64 `json:"avg_ttr_ms"`
	TotalIncidents int     `json:"total_incidents"`
	AvgFitness     float64 `json:"avg_fitness"`
}

// GetRecentFitness scans the ledger file for rows belonging to zooid
// newer than windowS seconds before now, and summarizes them.
func GetRecentFitness(path, zooid string, now, windowS float64) (FitnessSummary, error) {
	rows, err := scan(path)
	if err != nil {
		return FitnessSummary{}, err
	}

	cutoff := now - windowS
	var total, successes int
	var ttrSum, fitnessSum float64
	var ttrCount, fitnessCount int

	for _, row := range rows {
		if row.Zooid != zooid || row.TS < cutoff {
			continue
		}
		total++
		if row.OK {
			successes++
		}
		if row.TTRMs != 0 {
			ttrSum += row.TTRMs
			ttrCount++
		}
		if f, ok := compositeFitness(row); ok {
			fitnessSum += f
			fitnessCount++
		}
	}

	summary := FitnessSummary{TotalIncidents: total}
	if total > 0 {
		summary.SuccessRate = float64(successes) / float64(total)
	}
	if ttrCount > 0 {
		summary.AvgTTRMs = ttrSum / float64(ttrCount)
	}
	if fitnessCount > 0 {
		summary.AvgFitness = fitnessSum / float64(fitnessCount)
	}
	return summary, nil
}

// ComputeNichePressure reports ecological pressure for niche based on
// the failure rate and incident volume observed in the trailing
// window. Absent any ledger history it defaults to moderate pressure.
func ComputeNichePressure(path, ecosystem, niche string, now, windowS float64) (float64, error) {
	rows, err := scan(path)
	if err != nil {
		return 0, err
	}
	if rows == nil {
		return 0.5, nil
	}

	cutoff := now - windowS
	var total, failures int
	for _, row := range rows {
		if row.Niche != niche || row.TS < cutoff {
			continue
		}
		total++
		if !row.OK {
			failures++
		}
	}
	if total == 0 {
		return 0.5, nil
	}

	failureRate := float64(failures) / float64(total)
	incidentPressure := float64(total) / nicheVolumeBaseline
	if incidentPressure > 1.0 {
		incidentPressure = 1.0
	}
	return failureRate*0.7 + incidentPressure*0.3, nil
}

// RecentObservations returns every observation belonging to zooid
// newer than windowS seconds before now, oldest first. Used by the
// quarantine monitor (§4.F) to build its failure-burst rows without
// duplicating the ledger's scan logic.
func RecentObservations(path, zooid string, now, windowS float64) ([]types.Observation, error) {
	rows, err := scan(path)
	if err != nil {
		return nil, err
	}

	cutoff := now - windowS
	var recent []types.Observation
	for _, row := range rows {
		if row.Zooid != zooid || row.TS < cutoff {
			continue
		}
		recent = append(recent, row)
	}
	return recent, nil
}

// RecentObservationsAll returns every observation newer than windowS
// seconds before now, regardless of zooid. Used by the quarantine
// monitor (§4.F), which filters per-zooid failure counts itself.
func RecentObservationsAll(path string, now, windowS float64) ([]types.Observation, error) {
	rows, err := scan(path)
	if err != nil {
		return nil, err
	}

	cutoff := now - windowS
	var recent []types.Observation
	for _, row := range rows {
		if row.TS < cutoff {
			continue
		}
		recent = append(recent, row)
	}
	return recent, nil
}

// compositeFitness pulls an optional composite_fitness value out of a
// row's extra facts, matching the original ledger's optional field.
func compositeFitness(row types.Observation) (float64, bool) {
	if row.Extra == nil {
		return 0, false
	}
	v, ok := row.Extra["composite_fitness"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok || f == 0 {
		return 0, false
	}
	return f, true
}

// scan reads every line of the ledger file into an Observation. A
// missing file yields a nil slice rather than an error, so callers can
// distinguish "no history yet" from a read failure.
func scan(path string) ([]types.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()

	var rows []types.Observation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row types.Observation
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan %s: %w", path, err)
	}
	return rows, nil
}
