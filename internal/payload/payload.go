// Package payload turns a locally stored campaign draft into the wire-format
// request bodies the ads API accepts, and validates the assembled bundle
// before any remote call is made. Everything in this package is a pure
// transform over the draft.
package payload

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/adlift/publisher/internal/adsapi"
	"github.com/adlift/publisher/internal/models"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

// Issue is one validation finding. Warnings never block publishing.
type Issue struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

type ValidationResult struct {
	Issues []Issue `json:"issues"`
}

func (r *ValidationResult) add(severity Severity, field, message string) {
	r.Issues = append(r.Issues, Issue{Severity: severity, Field: field, Message: message})
}

func (r *ValidationResult) merge(issues []Issue) {
	r.Issues = append(r.Issues, issues...)
}

// CanPublish reports whether the draft may go out: true only when no
// critical or error findings exist.
func (r ValidationResult) CanPublish() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical || issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

func (r ValidationResult) Warnings() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			out = append(out, issue)
		}
	}
	return out
}

// Bundle is the pre-validated set of request payloads for one publish
// attempt. It is built once before remote creation begins; the only mutation
// afterwards is filling the foreign keys (image hash, campaign id, ad set id,
// creative ids) as earlier stages complete.
type Bundle struct {
	Campaign  CampaignPayload
	AdSet     AdSetPayload
	Creatives []CreativePayload
	Ads       []AdPayload
}

// FillImageHash records the uploaded image handle on every creative.
func (b *Bundle) FillImageHash(hash string) {
	for i := range b.Creatives {
		b.Creatives[i].ImageHash = hash
	}
}

// FillCampaignID wires the created campaign into the ad set payload.
func (b *Bundle) FillCampaignID(id string) {
	b.AdSet.CampaignID = id
}

// FillAdSetID wires the created ad set into every ad payload.
func (b *Bundle) FillAdSetID(id string) {
	for i := range b.Ads {
		b.Ads[i].AdSetID = id
	}
}

// FillCreativeID wires creative i into ad i.
func (b *Bundle) FillCreativeID(i int, id string) {
	b.Ads[i].CreativeID = id
}

type CampaignPayload struct {
	Name           string
	Objective      string
	BidStrategy    string
	Status         string
	DailyBudget    int64
	LifetimeBudget int64
	Currency       string
}

// Fields flattens the payload to the form encoding the API requires.
func (p CampaignPayload) Fields() adsapi.Fields {
	f := adsapi.Fields{
		"name":                  p.Name,
		"objective":             p.Objective,
		"bid_strategy":          p.BidStrategy,
		"status":                p.Status,
		"special_ad_categories": "[]",
	}
	if p.DailyBudget > 0 {
		f["daily_budget"] = strconv.FormatInt(p.DailyBudget, 10)
	}
	if p.LifetimeBudget > 0 {
		f["lifetime_budget"] = strconv.FormatInt(p.LifetimeBudget, 10)
	}
	return f
}

// GeoTargeting is the grouped geo spec, serialized as a JSON string inside
// the ad set's targeting field.
type GeoTargeting struct {
	Countries       []string         `json:"countries,omitempty"`
	Regions         []GeoKey         `json:"regions,omitempty"`
	Cities          []GeoKey         `json:"cities,omitempty"`
	CustomLocations []CustomLocation `json:"custom_locations,omitempty"`

	ExcludedCountries []string `json:"excluded_countries,omitempty"`
	ExcludedRegions   []GeoKey `json:"excluded_regions,omitempty"`
	ExcludedCities    []GeoKey `json:"excluded_cities,omitempty"`
}

type GeoKey struct {
	Key string `json:"key"`
}

type CustomLocation struct {
	Lat      float64 `json:"latitude"`
	Lng      float64 `json:"longitude"`
	RadiusKm float64 `json:"radius"`
	Unit     string  `json:"distance_unit"`
}

type Targeting struct {
	Geo    GeoTargeting
	AgeMin int
	AgeMax int
}

func (t Targeting) json() string {
	spec := map[string]interface{}{
		"geo_locations": t.Geo,
	}
	excluded := GeoTargeting{
		Countries: t.Geo.ExcludedCountries,
		Regions:   t.Geo.ExcludedRegions,
		Cities:    t.Geo.ExcludedCities,
	}
	if len(excluded.Countries) > 0 || len(excluded.Regions) > 0 || len(excluded.Cities) > 0 {
		spec["excluded_geo_locations"] = excluded
	}
	if t.AgeMin > 0 {
		spec["age_min"] = t.AgeMin
	}
	if t.AgeMax > 0 {
		spec["age_max"] = t.AgeMax
	}
	b, _ := json.Marshal(spec)
	return string(b)
}

type AdSetPayload struct {
	Name             string
	CampaignID       string // filled after campaign creation
	OptimizationGoal string
	BillingEvent     string
	BidStrategy      string
	Status           string
	DailyBudget      int64
	LifetimeBudget   int64
	Targeting        Targeting
	StartTime        *time.Time
	EndTime          *time.Time
}

func (p AdSetPayload) Fields() adsapi.Fields {
	f := adsapi.Fields{
		"name":              p.Name,
		"campaign_id":       p.CampaignID,
		"optimization_goal": p.OptimizationGoal,
		"billing_event":     p.BillingEvent,
		"status":            p.Status,
		"targeting":         p.Targeting.json(),
	}
	if p.DailyBudget > 0 {
		f["daily_budget"] = strconv.FormatInt(p.DailyBudget, 10)
	}
	if p.LifetimeBudget > 0 {
		f["lifetime_budget"] = strconv.FormatInt(p.LifetimeBudget, 10)
	}
	if p.StartTime != nil {
		f["start_time"] = p.StartTime.UTC().Format(time.RFC3339)
	}
	if p.EndTime != nil {
		f["end_time"] = p.EndTime.UTC().Format(time.RFC3339)
	}
	return f
}

type CreativePayload struct {
	Name      string
	PageID    string
	Copy      models.AdCopy
	ImageHash string // filled after image upload
}

func (p CreativePayload) Fields() adsapi.Fields {
	linkData := map[string]interface{}{
		"message":    p.Copy.PrimaryText,
		"name":       p.Copy.Headline,
		"link":       p.Copy.LinkURL,
		"image_hash": p.ImageHash,
	}
	if p.Copy.Description != "" {
		linkData["description"] = p.Copy.Description
	}
	if p.Copy.CallToAction != "" {
		linkData["call_to_action"] = map[string]interface{}{
			"type":  p.Copy.CallToAction,
			"value": map[string]string{"link": p.Copy.LinkURL},
		}
	}
	spec := map[string]interface{}{
		"page_id":   p.PageID,
		"link_data": linkData,
	}
	b, _ := json.Marshal(spec)
	return adsapi.Fields{
		"name":              p.Name,
		"object_story_spec": string(b),
	}
}

type AdPayload struct {
	Name       string
	AdSetID    string // filled after ad set creation
	CreativeID string // filled after creative creation
	Status     string
}

func (p AdPayload) Fields() adsapi.Fields {
	creative, _ := json.Marshal(map[string]string{"creative_id": p.CreativeID})
	return adsapi.Fields{
		"name":     p.Name,
		"adset_id": p.AdSetID,
		"creative": string(creative),
		"status":   p.Status,
	}
}
