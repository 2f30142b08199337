// Package classify maps raw publish errors onto the small taxonomy that
// drives retry and rollback decisions. Both the ads API client retry loop and
// the orchestrator consult this package, so recoverability policy lives in
// exactly one place.
//
// "Recoverable" means the user can fix the condition and retry; it does not
// imply the system retries automatically. Only rate_limit and server
// categories are auto-retried.
package classify

import (
	"context"
	"errors"
	"strings"

	"github.com/adlift/publisher/internal/adsapi"
)

type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryRateLimit      Category = "rate_limit"
	CategoryServer         Category = "server"
	CategoryBusinessLogic  Category = "business_logic"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

// Classification is the in-process decision record for one raw error. It is
// never persisted.
type Classification struct {
	Category        Category
	Severity        Severity
	Recoverable     bool
	ShouldRetry     bool
	SuggestedAction string
	UserMessage     string
}

// Remote error code sets, checked in priority order. Unlisted remote codes
// default to retryable-with-caution (server).
var (
	authCodes      = map[int]struct{}{102: {}, 190: {}}
	authSubcodes   = map[int]struct{}{458: {}, 459: {}, 460: {}, 463: {}, 464: {}, 467: {}}
	rateLimitCodes = map[int]struct{}{4: {}, 17: {}, 32: {}, 613: {}, 80004: {}}
	transientCodes = map[int]struct{}{1: {}, 2: {}, 341: {}}
	businessCodes  = map[int]struct{}{368: {}, 1359188: {}}
	policySubcodes = map[int]struct{}{1885183: {}}
)

// Classify inspects err and returns the decision record. Remote APIErrors are
// classified by code; everything else falls back to message-content matching.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryServer, Severity: SeverityWarning}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Classification{
			Category:        CategoryServer,
			Severity:        SeverityError,
			Recoverable:     true,
			ShouldRetry:     true,
			SuggestedAction: "retry the publish",
			UserMessage:     "The request timed out. Please try again.",
		}
	}
	if errors.Is(err, adsapi.ErrBreakerOpen) {
		return Classification{
			Category:        CategoryServer,
			Severity:        SeverityError,
			Recoverable:     true,
			ShouldRetry:     false,
			SuggestedAction: "wait for the ads platform to recover, then retry",
			UserMessage:     "The ads platform is having trouble right now. Please try again in a few minutes.",
		}
	}
	var apiErr *adsapi.APIError
	if errors.As(err, &apiErr) {
		return classifyRemote(apiErr)
	}
	return classifyLocal(err)
}

// ShouldRetry is the retry predicate the API client is constructed with.
func ShouldRetry(err error) bool {
	return Classify(err).ShouldRetry
}

func classifyRemote(e *adsapi.APIError) Classification {
	_, authCode := authCodes[e.Code]
	_, authSub := authSubcodes[e.Subcode]
	switch {
	case authCode || authSub:
		return Classification{
			Category:        CategoryAuthentication,
			Severity:        SeverityCritical,
			Recoverable:     true,
			ShouldRetry:     false,
			SuggestedAction: "reconnect the ad account",
			UserMessage:     "Your ad account connection has expired. Please reconnect and try again.",
		}
	case e.Code == 10 || (e.Code >= 200 && e.Code <= 299):
		return Classification{
			Category:        CategoryAuthorization,
			Severity:        SeverityCritical,
			Recoverable:     false,
			ShouldRetry:     false,
			SuggestedAction: "check ad account permissions",
			UserMessage:     "Your account does not have permission to perform this action.",
		}
	case containsCode(rateLimitCodes, e.Code):
		return Classification{
			Category:        CategoryRateLimit,
			Severity:        SeverityWarning,
			Recoverable:     true,
			ShouldRetry:     true,
			SuggestedAction: "wait and retry",
			UserMessage:     "Too many requests right now. We will retry shortly.",
		}
	case containsCode(businessCodes, e.Code) || containsCode(policySubcodes, e.Subcode):
		return Classification{
			Category:        CategoryBusinessLogic,
			Severity:        SeverityError,
			Recoverable:     true,
			ShouldRetry:     false,
			SuggestedAction: "resolve the billing or policy issue",
			UserMessage:     userMessageOr(e, "The ads platform rejected this campaign. Check your billing and ad policies."),
		}
	case e.Code == 100:
		return Classification{
			Category:        CategoryValidation,
			Severity:        SeverityError,
			Recoverable:     true,
			ShouldRetry:     false,
			SuggestedAction: "fix the campaign configuration",
			UserMessage:     userMessageOr(e, "Part of the campaign configuration was rejected. Please review and try again."),
		}
	case containsCode(transientCodes, e.Code) || e.HTTPStatus >= 500:
		return Classification{
			Category:        CategoryServer,
			Severity:        SeverityError,
			Recoverable:     true,
			ShouldRetry:     true,
			SuggestedAction: "retry the publish",
			UserMessage:     "The ads platform had a temporary problem. We will retry.",
		}
	}
	if c, ok := keywordMatch(e.Message); ok {
		return c
	}
	// Unclassified remote errors default to retryable-with-caution.
	return Classification{
		Category:        CategoryServer,
		Severity:        SeverityError,
		Recoverable:     true,
		ShouldRetry:     true,
		SuggestedAction: "retry the publish",
		UserMessage:     "Something went wrong talking to the ads platform. We will retry.",
	}
}

func classifyLocal(err error) Classification {
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"timeout", "deadline", "connection", "network", "refused", "reset", "eof", "temporarily"} {
		if strings.Contains(msg, kw) {
			return Classification{
				Category:        CategoryServer,
				Severity:        SeverityError,
				Recoverable:     true,
				ShouldRetry:     true,
				SuggestedAction: "retry the publish",
				UserMessage:     "A network problem interrupted publishing. Please try again.",
			}
		}
	}
	for _, kw := range []string{"validation", "invalid", "missing", "required"} {
		if strings.Contains(msg, kw) {
			return Classification{
				Category:        CategoryValidation,
				Severity:        SeverityError,
				Recoverable:     true,
				ShouldRetry:     false,
				SuggestedAction: "fix the campaign configuration",
				UserMessage:     "The campaign is not ready to publish. Please review the highlighted fields.",
			}
		}
	}
	return Classification{
		Category:        CategoryServer,
		Severity:        SeverityCritical,
		Recoverable:     false,
		ShouldRetry:     false,
		SuggestedAction: "contact support",
		UserMessage:     "Publishing failed unexpectedly. Please contact support if this keeps happening.",
	}
}

// keywordMatch is the last-resort content check for remote errors whose code
// did not land in any range.
func keywordMatch(message string) (Classification, bool) {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "token"):
		return Classification{
			Category:        CategoryAuthentication,
			Severity:        SeverityCritical,
			Recoverable:     true,
			ShouldRetry:     false,
			SuggestedAction: "reconnect the ad account",
			UserMessage:     "Your ad account connection has expired. Please reconnect and try again.",
		}, true
	case strings.Contains(msg, "payment"):
		return Classification{
			Category:        CategoryBusinessLogic,
			Severity:        SeverityError,
			Recoverable:     true,
			ShouldRetry:     false,
			SuggestedAction: "update the payment method on the ad account",
			UserMessage:     "There is a payment problem on your ad account.",
		}, true
	case strings.Contains(msg, "policy"):
		return Classification{
			Category:        CategoryBusinessLogic,
			Severity:        SeverityError,
			Recoverable:     true,
			ShouldRetry:     false,
			SuggestedAction: "review the ad content against platform policies",
			UserMessage:     "The ad content violates a platform policy.",
		}, true
	}
	return Classification{}, false
}

func userMessageOr(e *adsapi.APIError, fallback string) string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return fallback
}

func containsCode(set map[int]struct{}, code int) bool {
	_, ok := set[code]
	return ok
}
