package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/models"
)

// scenarioRecord is one entry under the top-level scenarios: key. Pointer
// fields distinguish omitted values from explicit zeros.
type scenarioRecord struct {
	Name                    string                  `yaml:"name"`
	ScenarioType            string                  `yaml:"scenario_type"`
	Probability             float64                 `yaml:"probability"`
	Description             string                  `yaml:"description"`
	MacroAdjustments        models.MacroAdjustments `yaml:"macro_adjustments"`
	PDMultiplier            *float64                `yaml:"pd_multiplier"`
	LGDMultiplier           *float64                `yaml:"lgd_multiplier"`
	EADMultiplier           *float64                `yaml:"ead_multiplier"`
	LGDDownturnFactor       *float64                `yaml:"lgd_downturn_factor"`
	CureRateAdjustment      float64                 `yaml:"cure_rate_adjustment"`
	ProjectionHorizonMonths *int                    `yaml:"projection_horizon_months"`
}

type scenarioFile struct {
	Scenarios yaml.Node `yaml:"scenarios"`
}

// LoadFile reads scenarios from a YAML file in file order.
func LoadFile(path string) ([]models.ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewDataError(path, 0, "read scenario file", err)
	}
	return Parse(data, path)
}

// Parse decodes scenario YAML. source names the input in errors.
func Parse(data []byte, source string) ([]models.ScenarioConfig, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewDataError(source, 0, "parse scenario yaml", err)
	}

	node := file.Scenarios
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, apperrors.NewDataError(source, node.Line, "scenarios must be a mapping", apperrors.ErrConfigInvalid)
	}

	scenarios := make([]models.ScenarioConfig, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var rec scenarioRecord
		if err := value.Decode(&rec); err != nil {
			return nil, apperrors.NewDataError(source, value.Line, fmt.Sprintf("decode scenario %q", key.Value), err)
		}

		s, err := rec.toConfig(key.Value)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (r scenarioRecord) toConfig(key string) (models.ScenarioConfig, error) {
	name := r.Name
	if name == "" {
		name = key
	}

	scenarioType, ok := models.ParseScenarioType(r.ScenarioType)
	if !ok {
		return models.ScenarioConfig{}, apperrors.NewScenarioError(name,
			fmt.Sprintf("unknown scenario type %q", r.ScenarioType), apperrors.ErrConfigInvalid)
	}

	s := models.ScenarioConfig{
		Name:                    name,
		Type:                    scenarioType,
		Probability:             r.Probability,
		Description:             r.Description,
		Macro:                   r.MacroAdjustments,
		PDMultiplier:            floatOr(r.PDMultiplier, 1),
		LGDMultiplier:           floatOr(r.LGDMultiplier, 1),
		EADMultiplier:           floatOr(r.EADMultiplier, 1),
		LGDDownturnFactor:       floatOr(r.LGDDownturnFactor, 1),
		CureRateAdjustment:      r.CureRateAdjustment,
		ProjectionHorizonMonths: models.DefaultProjectionHorizon,
	}
	if r.ProjectionHorizonMonths != nil {
		s.ProjectionHorizonMonths = *r.ProjectionHorizonMonths
	}

	if err := s.Validate(); err != nil {
		return models.ScenarioConfig{}, err
	}
	return s, nil
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// LoadFile reads scenarios from path and registers them.
func (m *Manager) LoadFile(path string) error {
	scenarios, err := LoadFile(path)
	if err != nil {
		return err
	}
	if err := m.AddAll(scenarios); err != nil {
		return err
	}

	m.logger.Info().Str("file", path).Int("count", len(scenarios)).Msg("Scenarios loaded from file")
	return nil
}
