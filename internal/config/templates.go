package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# IFRS 9 ECL Engine Configuration
# Every key is optional; omitted keys keep their built-in value.
# Unknown keys are rejected.

[ecl]
# individual, cohort or vintage
calculation_method = "individual"
# Placeholder discount rate carried on results
discount_rate = 0.05
# Reclassify stages before calculating
apply_staging = true
# Parallel workers for scenario runs
workers = 4

[ecl.sicr_thresholds]
# Absolute PD increase from origination, basis points
pd_increase_bps = 30
# Relative PD increase from origination, percent
relative_increase_pct = 200
# Days past due that signal SICR
days_past_due = 30

[staging]
days_past_due_threshold = 30
# Days past due above which an exposure is credit-impaired
days_past_due_default = 90
# Clean months required before a Stage 2 cure
cure_period = 3
# Past-due events in 12 months that signal SICR
multiple_past_due_events = 2

[pd]
credit_score_min = 300
credit_score_max = 850
floor = 0.0001
ceiling = 0.99
logistic_ceiling = 0.20
logistic_steepness = 10

[pd.term_structure]
stage_1_monthly_rate = 0.08
stage_2_monthly_rate = 0.12
stage_3_monthly_rate = 0.20

[lgd]
unsecured_base = 0.45
secured_base = 0.25
downturn_multiplier = 1.25
floor = 0.01
ceiling = 1.00
# Haircut for collateral types missing from the table
default_haircut = 0.30

[lgd.collateral_haircuts]
real_estate = 0.20
equipment = 0.30
inventory = 0.40
receivables = 0.25
securities = 0.15
cash = 0.00

[ead]
# Default credit conversion factor for undrawn commitments
ccf = 0.75

[ead.ccf_by_product]
credit_card = 0.50
revolving_credit = 0.75
term_loan = 1.00
overdraft = 0.50

[macro_variables]
# Fold elasticity multipliers from scenario macro deltas into scenario multipliers
apply_overlay = false

[macro_variables.baseline]
gdp_growth = 2.5
unemployment_rate = 4.0
interest_rate = 2.5
credit_spreads = 150
house_price_index = 100
stock_market_index = 100

[macro_variables.pd_elasticities]
gdp_growth = -0.15
unemployment_rate = 0.10
credit_spreads = 0.05

[macro_variables.lgd_elasticities]
house_price_index = -0.20
unemployment_rate = 0.08

[scenarios]
# YAML scenario definitions; empty uses base/optimistic/pessimistic
file = ""
# Rescale probabilities to sum to 1.0
normalize = false

[output]
decimal_places = 2
currency_symbol = "$"
# thousands, millions or billions
large_number_format = "millions"
directory = "."

[log]
# debug, info, warn, error
level = "info"
console = true
file = false
max_size = 100
max_backups = 7
max_age = 30

[store]
# Archive portfolio runs to SQLite
enabled = false
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// Template returns the commented default configuration file.
func Template() string {
	return configTemplate
}
