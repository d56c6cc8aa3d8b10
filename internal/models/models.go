// Package models provides domain models for the ECL engine.
package models

import "strings"

// Stage represents an IFRS 9 credit risk stage.
type Stage string

const (
	Stage1 Stage = "Stage 1" // Performing, 12-month ECL
	Stage2 Stage = "Stage 2" // Significant increase in credit risk, lifetime ECL
	Stage3 Stage = "Stage 3" // Credit-impaired, lifetime ECL
)

// AllStages lists the stages in rank order.
var AllStages = []Stage{Stage1, Stage2, Stage3}

// Rank returns 1, 2 or 3 for a known stage and 0 otherwise.
func (s Stage) Rank() int {
	switch s {
	case Stage1:
		return 1
	case Stage2:
		return 2
	case Stage3:
		return 3
	default:
		return 0
	}
}

// UsesLifetimeECL reports whether the stage is measured on a lifetime horizon.
func (s Stage) UsesLifetimeECL() bool {
	return s == Stage2 || s == Stage3
}

// IsValid reports whether s is one of the three stages.
func (s Stage) IsValid() bool {
	return s.Rank() > 0
}

// ParseStage accepts "Stage 2", "stage_2", "STAGE2" or "2".
func ParseStage(value string) (Stage, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.NewReplacer("_", "", " ", "", "-", "").Replace(v)
	switch v {
	case "1", "STAGE1", "S1":
		return Stage1, true
	case "2", "STAGE2", "S2":
		return Stage2, true
	case "3", "STAGE3", "S3":
		return Stage3, true
	}
	return "", false
}

// ScenarioType represents the kind of economic scenario.
type ScenarioType string

const (
	ScenarioBase        ScenarioType = "base"
	ScenarioOptimistic  ScenarioType = "optimistic"
	ScenarioPessimistic ScenarioType = "pessimistic"
	ScenarioStress      ScenarioType = "stress"
	ScenarioCustom      ScenarioType = "custom"
)

// ParseScenarioType parses a scenario type case-insensitively.
func ParseScenarioType(value string) (ScenarioType, bool) {
	switch t := ScenarioType(strings.ToLower(strings.TrimSpace(value))); t {
	case ScenarioBase, ScenarioOptimistic, ScenarioPessimistic, ScenarioStress, ScenarioCustom:
		return t, true
	}
	return "", false
}

// CalculationMethod represents the ECL calculation methodology.
type CalculationMethod string

const (
	MethodIndividual CalculationMethod = "individual"
	MethodCohort     CalculationMethod = "cohort"
	MethodVintage    CalculationMethod = "vintage"
)

// NormalizeKey lowercases a classification label and replaces spaces with
// underscores so it can be used against configuration tables.
func NormalizeKey(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
}
