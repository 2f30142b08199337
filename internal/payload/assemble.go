package payload

import (
	"fmt"
	"math"
	"time"

	"github.com/adlift/publisher/internal/models"
)

// GoalSettings is the fixed mapping from a campaign goal to the objective,
// optimization goal, billing event, and bid strategy the platform expects.
type GoalSettings struct {
	Objective        string
	OptimizationGoal string
	BillingEvent     string
	BidStrategy      string
}

var goalTable = map[string]GoalSettings{
	"awareness":     {Objective: "OUTCOME_AWARENESS", OptimizationGoal: "REACH", BillingEvent: "IMPRESSIONS", BidStrategy: "LOWEST_COST_WITHOUT_CAP"},
	"traffic":       {Objective: "OUTCOME_TRAFFIC", OptimizationGoal: "LINK_CLICKS", BillingEvent: "IMPRESSIONS", BidStrategy: "LOWEST_COST_WITHOUT_CAP"},
	"engagement":    {Objective: "OUTCOME_ENGAGEMENT", OptimizationGoal: "POST_ENGAGEMENT", BillingEvent: "IMPRESSIONS", BidStrategy: "LOWEST_COST_WITHOUT_CAP"},
	"leads":         {Objective: "OUTCOME_LEADS", OptimizationGoal: "LEAD_GENERATION", BillingEvent: "IMPRESSIONS", BidStrategy: "LOWEST_COST_WITHOUT_CAP"},
	"sales":         {Objective: "OUTCOME_SALES", OptimizationGoal: "OFFSITE_CONVERSIONS", BillingEvent: "IMPRESSIONS", BidStrategy: "LOWEST_COST_WITHOUT_CAP"},
	"app_promotion": {Objective: "OUTCOME_APP_PROMOTION", OptimizationGoal: "APP_INSTALLS", BillingEvent: "IMPRESSIONS", BidStrategy: "LOWEST_COST_WITHOUT_CAP"},
}

// SettingsForGoal resolves a goal through the fixed lookup table. Unknown
// goals are a hard error: the draft layer should never let one through.
func SettingsForGoal(goal string) (GoalSettings, error) {
	s, ok := goalTable[goal]
	if !ok {
		return GoalSettings{}, fmt.Errorf("unknown campaign goal %q", goal)
	}
	return s, nil
}

// BuildGeoTargeting groups the draft's location list by granularity and
// splits inclusions from exclusions. An empty inclusion set is flagged as a
// warning: the platform will fall back to very broad delivery.
func BuildGeoTargeting(locations []models.Location) (GeoTargeting, []Issue) {
	var geo GeoTargeting
	var issues []Issue
	for _, loc := range locations {
		switch {
		case loc.RadiusKm > 0:
			if loc.Exclude {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Field:    "locations",
					Message:  "radius locations cannot be excluded; entry ignored",
				})
				continue
			}
			geo.CustomLocations = append(geo.CustomLocations, CustomLocation{
				Lat: loc.Lat, Lng: loc.Lng, RadiusKm: loc.RadiusKm, Unit: "kilometer",
			})
		case loc.City != "":
			if loc.Exclude {
				geo.ExcludedCities = append(geo.ExcludedCities, GeoKey{Key: loc.City})
			} else {
				geo.Cities = append(geo.Cities, GeoKey{Key: loc.City})
			}
		case loc.Region != "":
			if loc.Exclude {
				geo.ExcludedRegions = append(geo.ExcludedRegions, GeoKey{Key: loc.Region})
			} else {
				geo.Regions = append(geo.Regions, GeoKey{Key: loc.Region})
			}
		case loc.Country != "":
			if loc.Exclude {
				geo.ExcludedCountries = append(geo.ExcludedCountries, loc.Country)
			} else {
				geo.Countries = append(geo.Countries, loc.Country)
			}
		}
	}
	if len(geo.Countries) == 0 && len(geo.Regions) == 0 && len(geo.Cities) == 0 && len(geo.CustomLocations) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Field:    "locations",
			Message:  "no included locations; the ad will deliver everywhere the platform allows",
		})
	}
	return geo, issues
}

// minBudgetMinorUnits is the per-currency daily minimum in minor units.
var minBudgetMinorUnits = map[string]int64{
	"USD": 100,
	"EUR": 100,
	"GBP": 100,
	"CAD": 100,
	"AUD": 100,
	"JPY": 100,
}

const defaultMinBudget = 100

// BuildBudget converts a major-unit amount to minor units and clamps it up to
// the per-currency floor. Violations clamp and warn, never silently drop.
func BuildBudget(amount float64, currency string) (int64, []Issue) {
	minor := int64(math.Round(amount * 100))
	min, ok := minBudgetMinorUnits[currency]
	if !ok {
		min = defaultMinBudget
	}
	if minor < min {
		return min, []Issue{{
			Severity: SeverityWarning,
			Field:    "budget",
			Message:  fmt.Sprintf("budget below the %s minimum; raised to %d minor units", currency, min),
		}}
	}
	return minor, nil
}

// Schedule is the resolved run window. Nil bounds mean a continuous run.
type Schedule struct {
	StartTime *time.Time
	EndTime   *time.Time
}

// BuildSchedule resolves optional start/end bounds against now. A start in
// the past is dropped with a warning (the campaign starts immediately); an
// end in the past or before the start is a validation error.
func BuildSchedule(start, end *time.Time, now time.Time) (Schedule, []Issue) {
	var sched Schedule
	var issues []Issue

	if start != nil {
		if start.Before(now) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Field:    "startTime",
				Message:  "start time is in the past; the campaign starts immediately",
			})
		} else {
			t := *start
			sched.StartTime = &t
		}
	}
	if end != nil {
		if !end.After(now) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Field:    "endTime",
				Message:  "end time is in the past",
			})
			return sched, issues
		}
		if start != nil && !end.After(*start) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Field:    "endTime",
				Message:  "end time must be after start time",
			})
			return sched, issues
		}
		t := *end
		sched.EndTime = &t

		from := now
		if sched.StartTime != nil {
			from = *sched.StartTime
		}
		duration := end.Sub(from)
		if duration < 24*time.Hour {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Field:    "endTime",
				Message:  "campaign runs for less than a day",
			})
		} else if duration > 180*24*time.Hour {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Field:    "endTime",
				Message:  "campaign runs for more than six months",
			})
		}
	}
	return sched, issues
}

// Assemble builds the full payload bundle from a draft. Findings from the
// individual transforms are collected into the result; the caller must also
// run Validate over the bundle and check CanPublish before any remote call.
func Assemble(draft models.CampaignDraft, pageID string, now time.Time) (*Bundle, ValidationResult, error) {
	var result ValidationResult

	settings, err := SettingsForGoal(draft.Goal)
	if err != nil {
		return nil, result, err
	}

	geo, issues := BuildGeoTargeting(draft.Locations)
	result.merge(issues)

	var daily, lifetime int64
	if draft.DailyBudget > 0 {
		daily, issues = BuildBudget(draft.DailyBudget, draft.Currency)
		result.merge(issues)
	}
	if draft.LifetimeBudget > 0 {
		lifetime, issues = BuildBudget(draft.LifetimeBudget, draft.Currency)
		result.merge(issues)
	}

	sched, issues := BuildSchedule(draft.StartTime, draft.EndTime, now)
	result.merge(issues)

	bundle := &Bundle{
		Campaign: CampaignPayload{
			Name:        draft.Name,
			Objective:   settings.Objective,
			BidStrategy: settings.BidStrategy,
			Status:      "PAUSED",
			Currency:    draft.Currency,
		},
		AdSet: AdSetPayload{
			Name:             draft.Name + " - Ad Set",
			OptimizationGoal: settings.OptimizationGoal,
			BillingEvent:     settings.BillingEvent,
			BidStrategy:      settings.BidStrategy,
			Status:           "PAUSED",
			DailyBudget:      daily,
			LifetimeBudget:   lifetime,
			Targeting:        Targeting{Geo: geo, AgeMin: draft.AgeMin, AgeMax: draft.AgeMax},
			StartTime:        sched.StartTime,
			EndTime:          sched.EndTime,
		},
	}
	for i, copyVariant := range draft.Copies {
		bundle.Creatives = append(bundle.Creatives, CreativePayload{
			Name:   fmt.Sprintf("%s - Creative %d", draft.Name, i+1),
			PageID: pageID,
			Copy:   copyVariant,
		})
		bundle.Ads = append(bundle.Ads, AdPayload{
			Name:   fmt.Sprintf("%s - Ad %d", draft.Name, i+1),
			Status: "PAUSED",
		})
	}
	return bundle, result, nil
}
