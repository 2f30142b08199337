package payload

import (
	"fmt"
	"strings"
)

const (
	maxNameLen        = 400
	maxHeadlineLen    = 255
	maxPrimaryTextLen = 2000
	maxDescriptionLen = 255
)

// objectiveCompatibility is the fixed table of optimization goals each
// objective accepts. An objective/goal pair outside this table is rejected
// before any remote call.
var objectiveCompatibility = map[string][]string{
	"OUTCOME_AWARENESS":     {"REACH", "IMPRESSIONS", "AD_RECALL_LIFT"},
	"OUTCOME_TRAFFIC":       {"LINK_CLICKS", "LANDING_PAGE_VIEWS", "REACH"},
	"OUTCOME_ENGAGEMENT":    {"POST_ENGAGEMENT", "PAGE_LIKES", "EVENT_RESPONSES"},
	"OUTCOME_LEADS":         {"LEAD_GENERATION", "QUALITY_LEAD", "LINK_CLICKS"},
	"OUTCOME_SALES":         {"OFFSITE_CONVERSIONS", "LINK_CLICKS", "VALUE"},
	"OUTCOME_APP_PROMOTION": {"APP_INSTALLS", "LINK_CLICKS", "OFFSITE_CONVERSIONS"},
}

// Validate re-checks the assembled bundle as a whole: required fields,
// length ceilings, budget exclusivity, and objective/optimization-goal
// compatibility. It returns findings only; the caller combines them with the
// assembly findings and consults CanPublish.
func Validate(bundle *Bundle) ValidationResult {
	var result ValidationResult
	if bundle == nil {
		result.add(SeverityCritical, "bundle", "no payload bundle assembled")
		return result
	}

	if bundle.Campaign.Name == "" {
		result.add(SeverityError, "name", "campaign name is required")
	} else if len(bundle.Campaign.Name) > maxNameLen {
		result.add(SeverityError, "name", fmt.Sprintf("campaign name exceeds %d characters", maxNameLen))
	}
	if bundle.Campaign.Objective == "" {
		result.add(SeverityCritical, "objective", "campaign objective is required")
	}

	daily := bundle.AdSet.DailyBudget
	lifetime := bundle.AdSet.LifetimeBudget
	switch {
	case daily == 0 && lifetime == 0:
		result.add(SeverityError, "budget", "a daily or lifetime budget is required")
	case daily > 0 && lifetime > 0:
		result.add(SeverityError, "budget", "daily and lifetime budgets are mutually exclusive")
	case lifetime > 0 && bundle.AdSet.EndTime == nil:
		result.add(SeverityError, "endTime", "a lifetime budget requires an end time")
	}

	if bundle.AdSet.OptimizationGoal == "" {
		result.add(SeverityCritical, "optimizationGoal", "optimization goal is required")
	} else if compatible, ok := objectiveCompatibility[bundle.Campaign.Objective]; ok {
		found := false
		for _, goal := range compatible {
			if goal == bundle.AdSet.OptimizationGoal {
				found = true
				break
			}
		}
		if !found {
			result.add(SeverityError, "optimizationGoal", fmt.Sprintf(
				"optimization goal %s is not compatible with objective %s",
				bundle.AdSet.OptimizationGoal, bundle.Campaign.Objective))
		}
	}

	if len(bundle.Creatives) == 0 {
		result.add(SeverityError, "copies", "at least one ad copy variation is required")
	}
	if len(bundle.Creatives) != len(bundle.Ads) {
		result.add(SeverityCritical, "bundle", "creative and ad payload counts do not match")
	}
	for i, creative := range bundle.Creatives {
		field := fmt.Sprintf("copies[%d]", i)
		if strings.TrimSpace(creative.Copy.Headline) == "" {
			result.add(SeverityError, field, "headline is required")
		} else if len(creative.Copy.Headline) > maxHeadlineLen {
			result.add(SeverityError, field, fmt.Sprintf("headline exceeds %d characters", maxHeadlineLen))
		}
		if strings.TrimSpace(creative.Copy.PrimaryText) == "" {
			result.add(SeverityError, field, "primary text is required")
		} else if len(creative.Copy.PrimaryText) > maxPrimaryTextLen {
			result.add(SeverityError, field, fmt.Sprintf("primary text exceeds %d characters", maxPrimaryTextLen))
		}
		if len(creative.Copy.Description) > maxDescriptionLen {
			result.add(SeverityError, field, fmt.Sprintf("description exceeds %d characters", maxDescriptionLen))
		}
		if creative.Copy.LinkURL == "" {
			result.add(SeverityError, field, "link URL is required")
		}
		if creative.PageID == "" {
			result.add(SeverityCritical, "pageId", "a page id is required to build creatives")
		}
	}
	return result
}
