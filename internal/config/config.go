// Package config provides configuration management for the ECL engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	apperrors "ifrs9-ecl/internal/errors"
)

// Config holds all engine configuration. Each calculator receives its own
// section by value.
type Config struct {
	ECL       ECLConfig       `mapstructure:"ecl"`
	Staging   StagingConfig   `mapstructure:"staging"`
	PD        PDConfig        `mapstructure:"pd"`
	LGD       LGDConfig       `mapstructure:"lgd"`
	EAD       EADConfig       `mapstructure:"ead"`
	Macro     MacroConfig     `mapstructure:"macro_variables"`
	Scenarios ScenariosConfig `mapstructure:"scenarios"`
	Output    OutputConfig    `mapstructure:"output"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
}

// ECLConfig holds engine-wide settings.
type ECLConfig struct {
	CalculationMethod string         `mapstructure:"calculation_method"`
	DiscountRate      float64        `mapstructure:"discount_rate"`
	ApplyStaging      bool           `mapstructure:"apply_staging"`
	Workers           int            `mapstructure:"workers"`
	SICRThresholds    SICRThresholds `mapstructure:"sicr_thresholds"`
}

// SICRThresholds holds the significant-increase-in-credit-risk triggers.
type SICRThresholds struct {
	PDIncreaseBps       float64 `mapstructure:"pd_increase_bps" json:"pd_increase_bps"`
	RelativeIncreasePct float64 `mapstructure:"relative_increase_pct" json:"relative_increase_pct"`
	DaysPastDue         int     `mapstructure:"days_past_due" json:"days_past_due"`
}

// StagingConfig holds stage classification thresholds.
type StagingConfig struct {
	DaysPastDueThreshold  int `mapstructure:"days_past_due_threshold"`
	DaysPastDueDefault    int `mapstructure:"days_past_due_default"`
	CurePeriod            int `mapstructure:"cure_period"`
	MultiplePastDueEvents int `mapstructure:"multiple_past_due_events"`

	// SICR is copied from ECL.SICRThresholds by Load and Default.
	SICR SICRThresholds `mapstructure:"-"`
}

// TermStructure holds the monthly hazard rate per stage.
type TermStructure struct {
	Stage1MonthlyRate float64 `mapstructure:"stage_1_monthly_rate"`
	Stage2MonthlyRate float64 `mapstructure:"stage_2_monthly_rate"`
	Stage3MonthlyRate float64 `mapstructure:"stage_3_monthly_rate"`
}

// PDConfig holds probability-of-default parameters.
type PDConfig struct {
	CreditScoreMin    float64       `mapstructure:"credit_score_min"`
	CreditScoreMax    float64       `mapstructure:"credit_score_max"`
	Floor             float64       `mapstructure:"floor"`
	Ceiling           float64       `mapstructure:"ceiling"`
	LogisticCeiling   float64       `mapstructure:"logistic_ceiling"`
	LogisticSteepness float64       `mapstructure:"logistic_steepness"`
	TermStructure     TermStructure `mapstructure:"term_structure"`
}

// LGDConfig holds loss-given-default parameters.
type LGDConfig struct {
	UnsecuredBase      float64            `mapstructure:"unsecured_base"`
	SecuredBase        float64            `mapstructure:"secured_base"`
	DownturnMultiplier float64            `mapstructure:"downturn_multiplier"`
	Floor              float64            `mapstructure:"floor"`
	Ceiling            float64            `mapstructure:"ceiling"`
	DefaultHaircut     float64            `mapstructure:"default_haircut"`
	CollateralHaircuts map[string]float64 `mapstructure:"collateral_haircuts"`
}

// EADConfig holds exposure-at-default parameters.
type EADConfig struct {
	CCF          float64            `mapstructure:"ccf"`
	CCFByProduct map[string]float64 `mapstructure:"ccf_by_product"`
}

// MacroConfig holds the macroeconomic baseline and elasticity tables.
type MacroConfig struct {
	Baseline                map[string]float64 `mapstructure:"baseline"`
	PDElasticities          map[string]float64 `mapstructure:"pd_elasticities"`
	LGDElasticities         map[string]float64 `mapstructure:"lgd_elasticities"`
	SectorSensitivities     map[string]float64 `mapstructure:"sector_sensitivities"`
	CollateralSensitivities map[string]float64 `mapstructure:"collateral_sensitivities"`
	// ApplyOverlay folds elasticity multipliers derived from each
	// scenario's macro deltas into its direct multipliers.
	ApplyOverlay bool `mapstructure:"apply_overlay"`
}

// ScenariosConfig holds the scenario source.
type ScenariosConfig struct {
	File      string `mapstructure:"file"`
	Normalize bool   `mapstructure:"normalize"`
}

// OutputConfig holds reporting settings.
type OutputConfig struct {
	DecimalPlaces     int    `mapstructure:"decimal_places"`
	CurrencySymbol    string `mapstructure:"currency_symbol"`
	LargeNumberFormat string `mapstructure:"large_number_format"` // thousands, millions, billions
	Directory         string `mapstructure:"directory"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// StoreConfig holds the run archive settings.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ifrs9-ecl"
	}
	return filepath.Join(home, ".config", "ifrs9-ecl")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultConfigDir()
	sicr := SICRThresholds{
		PDIncreaseBps:       30,
		RelativeIncreasePct: 200,
		DaysPastDue:         30,
	}
	return &Config{
		ECL: ECLConfig{
			CalculationMethod: "individual",
			DiscountRate:      0.05,
			ApplyStaging:      true,
			Workers:           4,
			SICRThresholds:    sicr,
		},
		Staging: StagingConfig{
			DaysPastDueThreshold:  30,
			DaysPastDueDefault:    90,
			CurePeriod:            3,
			MultiplePastDueEvents: 2,
			SICR:                  sicr,
		},
		PD: PDConfig{
			CreditScoreMin:    300,
			CreditScoreMax:    850,
			Floor:             0.0001,
			Ceiling:           0.99,
			LogisticCeiling:   0.20,
			LogisticSteepness: 10,
			TermStructure: TermStructure{
				Stage1MonthlyRate: 0.08,
				Stage2MonthlyRate: 0.12,
				Stage3MonthlyRate: 0.20,
			},
		},
		LGD: LGDConfig{
			UnsecuredBase:      0.45,
			SecuredBase:        0.25,
			DownturnMultiplier: 1.25,
			Floor:              0.01,
			Ceiling:            1.00,
			DefaultHaircut:     0.30,
			CollateralHaircuts: map[string]float64{
				"real_estate": 0.20,
				"equipment":   0.30,
				"inventory":   0.40,
				"receivables": 0.25,
				"securities":  0.15,
				"cash":        0.00,
			},
		},
		EAD: EADConfig{
			CCF: 0.75,
			CCFByProduct: map[string]float64{
				"credit_card":      0.50,
				"revolving_credit": 0.75,
				"term_loan":        1.00,
				"overdraft":        0.50,
			},
		},
		Macro: MacroConfig{
			Baseline: map[string]float64{
				"gdp_growth":         2.5,
				"unemployment_rate":  4.0,
				"interest_rate":      2.5,
				"credit_spreads":     150,
				"house_price_index":  100,
				"stock_market_index": 100,
			},
			PDElasticities: map[string]float64{
				"gdp_growth":        -0.15,
				"unemployment_rate": 0.10,
				"credit_spreads":    0.05,
			},
			LGDElasticities: map[string]float64{
				"house_price_index": -0.20,
				"unemployment_rate": 0.08,
			},
			SectorSensitivities: map[string]float64{
				"construction":       1.5,
				"hospitality":        1.4,
				"retail":             1.3,
				"transportation":     1.2,
				"manufacturing":      1.1,
				"energy":             1.1,
				"real_estate":        1.0,
				"technology":         0.9,
				"healthcare":         0.8,
				"financial_services": 1.0,
				"utilities":          0.7,
			},
			CollateralSensitivities: map[string]float64{
				"real_estate": 1.3,
				"inventory":   1.4,
				"equipment":   1.1,
				"receivables": 1.2,
				"securities":  1.5,
				"cash":        0.0,
			},
		},
		Scenarios: ScenariosConfig{
			Normalize: false,
		},
		Output: OutputConfig{
			DecimalPlaces:     2,
			CurrencySymbol:    "$",
			LargeNumberFormat: "millions",
			Directory:         ".",
		},
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			File:       false,
			FilePath:   filepath.Join(dir, "logs", "ecl.log"),
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    filepath.Join(dir, "runs.db"),
		},
	}
}

// ConfigPath returns the config file path inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the specified directory over the built-in
// defaults. Unknown keys are rejected. If configDir is empty, uses the
// default config directory. A missing config.toml is created from the
// template and the defaults are returned.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	cfg.Staging.SICR = cfg.ECL.SICRThresholds

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFile loads a single TOML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConfigInvalid, "decoding %s: %v", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.Staging.SICR = cfg.ECL.SICRThresholds

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	if err := v.UnmarshalExact(target); err != nil {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "%v", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ECL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ECL_DB_PATH"); v != "" {
		cfg.Store.Path = v
		cfg.Store.Enabled = true
	}
	if v := os.Getenv("ECL_SCENARIOS_FILE"); v != "" {
		cfg.Scenarios.File = v
	}
	if v := os.Getenv("ECL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ECL.Workers = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, format, args...)
	}

	// PD
	if c.PD.CreditScoreMax <= c.PD.CreditScoreMin {
		return invalid("pd.credit_score_max (%v) must exceed pd.credit_score_min (%v)",
			c.PD.CreditScoreMax, c.PD.CreditScoreMin)
	}
	if err := checkBounds("pd", c.PD.Floor, c.PD.Ceiling); err != nil {
		return err
	}
	if c.PD.LogisticCeiling <= 0 || c.PD.LogisticCeiling > 1 {
		return invalid("pd.logistic_ceiling must be in (0, 1]")
	}
	ts := c.PD.TermStructure
	for name, rate := range map[string]float64{
		"stage_1_monthly_rate": ts.Stage1MonthlyRate,
		"stage_2_monthly_rate": ts.Stage2MonthlyRate,
		"stage_3_monthly_rate": ts.Stage3MonthlyRate,
	} {
		if rate < 0 {
			return invalid("pd.term_structure.%s must be non-negative", name)
		}
	}

	// LGD
	if err := checkBounds("lgd", c.LGD.Floor, c.LGD.Ceiling); err != nil {
		return err
	}
	if c.LGD.UnsecuredBase < 0 || c.LGD.SecuredBase < 0 {
		return invalid("lgd base rates must be non-negative")
	}
	if c.LGD.DownturnMultiplier < 0 {
		return invalid("lgd.downturn_multiplier must be non-negative")
	}
	if c.LGD.DefaultHaircut < 0 || c.LGD.DefaultHaircut > 1 {
		return invalid("lgd.default_haircut must be between 0 and 1")
	}
	for k, h := range c.LGD.CollateralHaircuts {
		if h < 0 || h > 1 {
			return invalid("lgd.collateral_haircuts.%s must be between 0 and 1", k)
		}
	}

	// EAD
	if c.EAD.CCF < 0 || c.EAD.CCF > 1 {
		return invalid("ead.ccf must be between 0 and 1")
	}
	for k, f := range c.EAD.CCFByProduct {
		if f < 0 || f > 1 {
			return invalid("ead.ccf_by_product.%s must be between 0 and 1", k)
		}
	}

	// Staging
	if c.Staging.DaysPastDueThreshold < 0 || c.Staging.DaysPastDueDefault < 0 {
		return invalid("staging thresholds must be non-negative")
	}
	if c.Staging.DaysPastDueDefault < c.Staging.DaysPastDueThreshold {
		return invalid("staging.days_past_due_default must not be below days_past_due_threshold")
	}
	if c.Staging.CurePeriod < 0 {
		return invalid("staging.cure_period must be non-negative")
	}
	if c.ECL.SICRThresholds.PDIncreaseBps < 0 || c.ECL.SICRThresholds.RelativeIncreasePct < 0 {
		return invalid("ecl.sicr_thresholds must be non-negative")
	}

	// Engine
	if c.ECL.Workers < 1 {
		return invalid("ecl.workers must be at least 1")
	}
	switch c.ECL.CalculationMethod {
	case "individual", "cohort", "vintage":
	default:
		return invalid("unknown ecl.calculation_method: %s", c.ECL.CalculationMethod)
	}

	// Output
	if c.Output.DecimalPlaces < 0 || c.Output.DecimalPlaces > 8 {
		return invalid("output.decimal_places must be between 0 and 8, got %d", c.Output.DecimalPlaces)
	}
	switch c.Output.LargeNumberFormat {
	case "", "thousands", "millions", "billions":
	default:
		return invalid("unknown output.large_number_format: %s", c.Output.LargeNumberFormat)
	}

	return nil
}

func checkBounds(section string, floor, ceiling float64) error {
	if floor < 0 || ceiling > 1 {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "%s floor/ceiling must lie within [0, 1]", section)
	}
	if floor > ceiling {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "%s.floor (%v) exceeds %s.ceiling (%v)", section, floor, section, ceiling)
	}
	return nil
}
