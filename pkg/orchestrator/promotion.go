package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kloros-colony/fabric/pkg/types"
)

// ParamBounds is the registry of known parameter bounds a promotion's
// changes are validated against. Unknown params are allowed as-is, per
// §6's promotion validation rules.
type ParamBounds struct {
	Min map[string]float64
	Max map[string]float64
}

// validSchemas is the closed set of accepted promotion schema versions.
var validSchemas = map[string]bool{"v1": true, "v2": true}

// ValidatePromotion checks p against the schema and bounds rules
// described in §6, returning (true, "") when valid or (false, reason)
// otherwise.
func ValidatePromotion(p types.Promotion, bounds ParamBounds) (bool, string) {
	if p.Schema == "" {
		return false, "missing schema field"
	}
	if !validSchemas[p.Schema] {
		return false, fmt.Sprintf("unsupported schema version: %s", p.Schema)
	}
	if p.ID == "" {
		return false, "missing required field: id"
	}
	if p.Fitness < 0 {
		return false, fmt.Sprintf("negative fitness: %v", p.Fitness)
	}

	for param, value := range p.Changes {
		if min, ok := bounds.Min[param]; ok && value < min {
			return false, fmt.Sprintf("%s below minimum: %v < %v", param, value, min)
		}
		if max, ok := bounds.Max[param]; ok && value > max {
			return false, fmt.Sprintf("%s above maximum: %v > %v", param, value, max)
		}
	}

	return true, ""
}

// PromotionGateway scans a promotions directory for files with no
// matching acknowledgment and writes acknowledgments alongside them.
type PromotionGateway struct {
	promotionsDir string
	ackDir        string
	bounds        ParamBounds
}

// NewPromotionGateway returns a PromotionGateway rooted at the given
// directories.
func NewPromotionGateway(promotionsDir, ackDir string, bounds ParamBounds) *PromotionGateway {
	return &PromotionGateway{promotionsDir: promotionsDir, ackDir: ackDir, bounds: bounds}
}

// ScanUnacked returns the paths of every promotion file in
// promotionsDir with no corresponding ACK file.
func (g *PromotionGateway) ScanUnacked() ([]string, error) {
	entries, err := os.ReadDir(g.promotionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("orchestrator: read promotions dir: %w", err)
	}

	if err := os.MkdirAll(g.ackDir, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: mkdir ack dir: %w", err)
	}

	var unacked []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".json")
		ackPath := filepath.Join(g.ackDir, stem+"_ack.json")
		if _, err := os.Stat(ackPath); os.IsNotExist(err) {
			unacked = append(unacked, filepath.Join(g.promotionsDir, e.Name()))
		}
	}
	return unacked, nil
}

// LoadPromotion reads and decodes a promotion file.
func LoadPromotion(path string) (types.Promotion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Promotion{}, err
	}
	var p types.Promotion
	if err := json.Unmarshal(data, &p); err != nil {
		return types.Promotion{}, err
	}
	return p, nil
}

// WriteAck writes an acknowledgment file for the promotion at
// promoPath (§6).
func (g *PromotionGateway) WriteAck(promoPath string, accepted bool, phaseEpoch, phaseSHA, rejectionReason string) error {
	stem := strings.TrimSuffix(filepath.Base(promoPath), ".json")
	ack := types.PromotionAck{
		PromotionID:     stem,
		Accepted:        accepted,
		PhaseEpoch:      phaseEpoch,
		PhaseSHA:        phaseSHA,
		TS:              time.Now().Unix(),
		Schema:          "v1",
		RejectionReason: rejectionReason,
	}

	data, err := json.MarshalIndent(ack, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshal ack: %w", err)
	}

	ackPath := filepath.Join(g.ackDir, stem+"_ack.json")
	return os.WriteFile(ackPath, data, 0o644)
}
