package valuation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vinsight/vinsight/pkg/types/vehicle"
)

// RuleConfig carries the business-policy inputs of the adjustment rules.
// The tables are policy, not architecture; operators may retune them through
// configuration without touching the evaluation order.
type RuleConfig struct {
	// MileageRatePerMile converts the mileage delta to dollars.
	MileageRatePerMile float64

	// ExpectedMilesPerYear is the age-implied annual mileage baseline.
	ExpectedMilesPerYear float64

	// ConditionPct maps condition grades to percentage adjustments of the
	// base value.  Grades absent from the table contribute nothing.
	ConditionPct map[vehicle.Condition]float64

	// RegionPct maps ZIP prefixes to regional percentage multipliers.
	// Lookup tries the full 5-digit ZIP, then 3-digit, then 1-digit prefix.
	RegionPct map[string]float64

	// TrimPremiumPct maps lowercase trim keywords to percentage premiums.
	TrimPremiumPct map[string]float64

	// AccidentPctPerIncident is the per-accident percentage penalty.
	AccidentPctPerIncident float64

	// HistoryFlagPct maps history flags (one_owner, fleet_use, ...) to
	// percentage adjustments.
	HistoryFlagPct map[string]float64

	// FeatureValues maps premium feature names to flat dollar premiums.
	FeatureValues map[string]float64

	// PhotoGoodThreshold / PhotoPoorThreshold bound the photo-score nudge;
	// the percentages are applied above and below respectively.
	PhotoGoodThreshold float64
	PhotoPoorThreshold float64
	PhotoGoodPct       float64
	PhotoPoorPct       float64

	// TitlePct maps branded title statuses of the valuation target to
	// percentage penalties.
	TitlePct map[vehicle.TitleStatus]float64
}

// DefaultRuleConfig returns the standard production rule tables.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		MileageRatePerMile:   0.10,
		ExpectedMilesPerYear: 12000,
		ConditionPct: map[vehicle.Condition]float64{
			vehicle.ConditionExcellent: 0.05,
			vehicle.ConditionGood:      0,
			vehicle.ConditionFair:      -0.08,
			vehicle.ConditionPoor:      -0.15,
		},
		RegionPct: map[string]float64{
			"9": 0.03,  // west coast
			"1": 0.02,  // northeast
			"3": -0.01, // southeast
			"5": -0.02, // upper midwest
		},
		TrimPremiumPct: map[string]float64{
			"limited":  0.04,
			"platinum": 0.05,
			"touring":  0.03,
			"sport":    0.02,
		},
		AccidentPctPerIncident: 0.05,
		HistoryFlagPct: map[string]float64{
			"one_owner":       0.02,
			"service_records": 0.01,
			"fleet_use":       -0.03,
			"frame_damage":    -0.12,
		},
		FeatureValues: map[string]float64{
			"sunroof":       300,
			"leather seats": 400,
			"navigation":    250,
			"awd":           800,
			"tow package":   500,
		},
		PhotoGoodThreshold: 0.8,
		PhotoPoorThreshold: 0.3,
		PhotoGoodPct:       0.01,
		PhotoPoorPct:       -0.02,
		TitlePct: map[vehicle.TitleStatus]float64{
			vehicle.TitleSalvage: -0.40,
			vehicle.TitleRebuilt: -0.25,
		},
	}
}

// rule evaluates one adjustment category against the fact sheet.  A nil
// result means the rule does not apply to this vehicle; rules never fail.
// All percentage rules compute their dollar impact against the base value
// supplied at call time, never against a running total.
type rule struct {
	name string
	eval func(facts VehicleFacts, baseValue float64, ageYears int) *Adjustment
}

// Engine evaluates the fixed, ordered rule catalogue.  Evaluation order is a
// presentation contract for the adjustment list; the arithmetic is a
// commutative sum.
type Engine struct {
	cfg   RuleConfig
	rules []rule
}

// NewEngine constructs an Engine with the given policy tables.
func NewEngine(cfg RuleConfig) *Engine {
	e := &Engine{cfg: cfg}
	e.rules = []rule{
		{"Mileage", e.mileageRule},
		{"Condition", e.conditionRule},
		{"Location", e.locationRule},
		{"Trim", e.trimRule},
		{"Accident History", e.accidentRule},
		{"Vehicle History", e.historyRule},
		{"Premium Features", e.featuresRule},
		{"Photo Condition", e.photoRule},
		{"Title Status", e.titleRule},
	}
	return e
}

// Evaluate runs every rule in catalogue order and returns the applicable
// adjustments.  Rules that cannot evaluate against a partial fact sheet are
// skipped, never raised.
func (e *Engine) Evaluate(facts VehicleFacts, baseValue float64, ageYears int) []Adjustment {
	out := make([]Adjustment, 0, len(e.rules))
	for _, r := range e.rules {
		if adj := r.eval(facts, baseValue, ageYears); adj != nil {
			out = append(out, *adj)
		}
	}
	return out
}

// ── Rule implementations ─────────────────────────────────────────────────────

func (e *Engine) mileageRule(facts VehicleFacts, _ float64, ageYears int) *Adjustment {
	if facts.Mileage == nil {
		return nil
	}
	expected := float64(ageYears) * e.cfg.ExpectedMilesPerYear
	delta := expected - float64(*facts.Mileage)
	impact := int(math.Round(delta * e.cfg.MileageRatePerMile))
	if impact == 0 {
		return nil
	}
	direction := "below"
	verb := "adds"
	if delta < 0 {
		direction = "above"
		verb = "reduces"
	}
	return &Adjustment{
		Factor: "Mileage",
		Impact: impact,
		Description: fmt.Sprintf("Mileage of %s is %s the %s expected for a %d-year-old vehicle and %s $%s",
			formatMiles(*facts.Mileage), direction, formatMiles(int(expected)), ageYears, verb, formatDollars(impact)),
	}
}

func (e *Engine) conditionRule(facts VehicleFacts, baseValue float64, _ int) *Adjustment {
	if facts.Condition == "" {
		return nil
	}
	pct, ok := e.cfg.ConditionPct[facts.Condition]
	if !ok || pct == 0 {
		return nil
	}
	impact := int(math.Round(baseValue * pct))
	if impact == 0 {
		return nil
	}
	return &Adjustment{
		Factor: "Condition",
		Impact: impact,
		Description: fmt.Sprintf("Condition %q adjusts value by %s%% ($%s)",
			facts.Condition, formatPct(pct), formatDollars(impact)),
	}
}

func (e *Engine) locationRule(facts VehicleFacts, baseValue float64, _ int) *Adjustment {
	if len(facts.ZipCode) < 1 {
		return nil
	}
	pct, ok := regionLookup(e.cfg.RegionPct, facts.ZipCode)
	if !ok || pct == 0 {
		return nil
	}
	impact := int(math.Round(baseValue * pct))
	if impact == 0 {
		return nil
	}
	return &Adjustment{
		Factor: "Location",
		Impact: impact,
		Description: fmt.Sprintf("Regional market for ZIP %s adjusts value by %s%% ($%s)",
			facts.ZipCode, formatPct(pct), formatDollars(impact)),
	}
}

func (e *Engine) trimRule(facts VehicleFacts, baseValue float64, _ int) *Adjustment {
	if facts.Trim == "" {
		return nil
	}
	lower := strings.ToLower(facts.Trim)
	for _, keyword := range sortedKeys(e.cfg.TrimPremiumPct) {
		if strings.Contains(lower, keyword) {
			pct := e.cfg.TrimPremiumPct[keyword]
			impact := int(math.Round(baseValue * pct))
			if impact == 0 {
				return nil
			}
			return &Adjustment{
				Factor: "Trim",
				Impact: impact,
				Description: fmt.Sprintf("%s trim adds %s%% ($%s)",
					facts.Trim, formatPct(pct), formatDollars(impact)),
			}
		}
	}
	return nil
}

func (e *Engine) accidentRule(facts VehicleFacts, baseValue float64, _ int) *Adjustment {
	if facts.AccidentCount <= 0 {
		return nil
	}
	impact := int(math.Round(-baseValue * e.cfg.AccidentPctPerIncident * float64(facts.AccidentCount)))
	if impact == 0 {
		return nil
	}
	return &Adjustment{
		Factor: "Accident History",
		Impact: impact,
		Description: fmt.Sprintf("%d reported accident(s) reduce value by $%s",
			facts.AccidentCount, formatDollars(impact)),
	}
}

func (e *Engine) historyRule(facts VehicleFacts, baseValue float64, _ int) *Adjustment {
	if len(facts.HistoryFlags) == 0 {
		return nil
	}
	totalPct := 0.0
	matched := make([]string, 0, len(facts.HistoryFlags))
	for _, flag := range facts.HistoryFlags {
		key := strings.ToLower(strings.TrimSpace(flag))
		if pct, ok := e.cfg.HistoryFlagPct[key]; ok {
			totalPct += pct
			matched = append(matched, key)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	impact := int(math.Round(baseValue * totalPct))
	if impact == 0 {
		return nil
	}
	return &Adjustment{
		Factor: "Vehicle History",
		Impact: impact,
		Description: fmt.Sprintf("History report (%s) adjusts value by %s%% ($%s)",
			strings.Join(matched, ", "), formatPct(totalPct), formatDollars(impact)),
	}
}

func (e *Engine) featuresRule(facts VehicleFacts, _ float64, _ int) *Adjustment {
	if len(facts.PremiumFeatures) == 0 {
		return nil
	}
	total := 0.0
	matched := make([]string, 0, len(facts.PremiumFeatures))
	for _, feature := range facts.PremiumFeatures {
		key := strings.ToLower(strings.TrimSpace(feature))
		if val, ok := e.cfg.FeatureValues[key]; ok {
			total += val
			matched = append(matched, key)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	impact := int(math.Round(total))
	if impact == 0 {
		return nil
	}
	return &Adjustment{
		Factor: "Premium Features",
		Impact: impact,
		Description: fmt.Sprintf("Premium features (%s) add $%s",
			strings.Join(matched, ", "), formatDollars(impact)),
	}
}

func (e *Engine) photoRule(facts VehicleFacts, baseValue float64, _ int) *Adjustment {
	if facts.PhotoScore == nil {
		return nil
	}
	score := *facts.PhotoScore
	var pct float64
	switch {
	case score >= e.cfg.PhotoGoodThreshold:
		pct = e.cfg.PhotoGoodPct
	case score <= e.cfg.PhotoPoorThreshold:
		pct = e.cfg.PhotoPoorPct
	default:
		return nil
	}
	impact := int(math.Round(baseValue * pct))
	if impact == 0 {
		return nil
	}
	return &Adjustment{
		Factor: "Photo Condition",
		Impact: impact,
		Description: fmt.Sprintf("Photo-derived condition score %.2f adjusts value by %s%% ($%s)",
			score, formatPct(pct), formatDollars(impact)),
	}
}

func (e *Engine) titleRule(facts VehicleFacts, baseValue float64, _ int) *Adjustment {
	pct, ok := e.cfg.TitlePct[facts.TitleStatus]
	if !ok || pct == 0 {
		return nil
	}
	impact := int(math.Round(baseValue * pct))
	if impact == 0 {
		return nil
	}
	return &Adjustment{
		Factor: "Title Status",
		Impact: impact,
		Description: fmt.Sprintf("%s title reduces value by %s%% ($%s)",
			capitalize(string(facts.TitleStatus)), formatPct(pct), formatDollars(impact)),
	}
}

// ── Formatting helpers ───────────────────────────────────────────────────────

// regionLookup tries the longest ZIP prefix first: 5 digits, then 3, then 1.
func regionLookup(table map[string]float64, zip string) (float64, bool) {
	for _, n := range []int{5, 3, 1} {
		if len(zip) >= n {
			if pct, ok := table[zip[:n]]; ok {
				return pct, true
			}
		}
	}
	return 0, false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatPct(pct float64) string {
	return fmt.Sprintf("%+.1f", pct*100)
}

func formatMiles(miles int) string {
	return groupThousands(miles)
}

func formatDollars(impact int) string {
	if impact < 0 {
		impact = -impact
	}
	return groupThousands(impact)
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}
