package resolve

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
)

// Override forces a pair decision regardless of score.
type Override struct {
	PolyMarketID   string  `yaml:"poly_market_id"`
	KalshiMarketID string  `yaml:"kalshi_market_id"`
	Status         string  `yaml:"status"`
	Confidence     float64 `yaml:"confidence"`
	Notes          string  `yaml:"notes"`
}

// OverrideKey identifies the pair an override applies to.
type OverrideKey struct {
	PolyMarketID   string
	KalshiMarketID string
}

type overrideFile struct {
	Overrides []Override `yaml:"overrides"`
}

// LoadOverrides reads the YAML override file. A missing path yields an
// empty map, not an error.
func LoadOverrides(path string) (map[OverrideKey]Override, error) {
	out := map[OverrideKey]Override{}
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read overrides %s: %w", path, err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	for _, o := range f.Overrides {
		if o.Status == "" {
			o.Status = string(canonical.StatusOverride)
		}
		if o.Confidence == 0 {
			o.Confidence = 1
		}
		out[OverrideKey{o.PolyMarketID, o.KalshiMarketID}] = o
	}
	return out, nil
}
