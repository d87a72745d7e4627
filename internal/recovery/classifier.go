// File: internal/recovery/classifier.go
package recovery

import (
	"regexp"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// classificationRule maps an error-message pattern onto the failure
// taxonomy. Rules are ordered; the first match wins.
type classificationRule struct {
	category    schemas.FailureCategory
	pattern     *regexp.Regexp
	recoverable bool
	remediation string
}

var classificationRules = []classificationRule{
	{
		category:    schemas.FailureRateLimit,
		pattern:     regexp.MustCompile(`(?i)rate.?limit|too many requests|\b429\b|quota exceeded|resource.?exhausted`),
		recoverable: true,
		remediation: "Wait for the provider-specified delay before retrying.",
	},
	{
		category:    schemas.FailureAuth,
		pattern:     regexp.MustCompile(`(?i)\b401\b|\b403\b|unauthorized|forbidden|authentication|login required|token (expired|invalid)|permission denied`),
		recoverable: false,
		remediation: "Refresh credentials or re-authenticate with the target.",
	},
	{
		category:    schemas.FailureTimeout,
		pattern:     regexp.MustCompile(`(?i)timed?.?out|deadline exceeded|wait.*exceeded`),
		recoverable: true,
		remediation: "Retry with backoff, or raise the operation timeout.",
	},
	{
		category:    schemas.FailureNetwork,
		pattern:     regexp.MustCompile(`(?i)connection (refused|reset|closed)|no such host|dns|network|unreachable|broken pipe|\bEOF\b|tls handshake`),
		recoverable: true,
		remediation: "Retry with exponential backoff.",
	},
	{
		category:    schemas.FailureSelector,
		pattern:     regexp.MustCompile(`(?i)element not found|no node found|could not find element|not (clickable|visible|interactable)|stale element|invalid selector|selector .* (failed|matched nothing)`),
		recoverable: true,
		remediation: "Try an alternative locator or re-resolve the selector.",
	},
	{
		category:    schemas.FailureParse,
		pattern:     regexp.MustCompile(`(?i)invalid json|unexpected (token|end)|unmarshal|parse error|syntax error|malformed`),
		recoverable: true,
		remediation: "Re-request the structured output.",
	},
}

// Classify maps a raw error message onto the failure taxonomy. Unmatched
// messages land in the unknown category and are not recoverable.
func Classify(errMsg string) schemas.DetectedFailure {
	for _, rule := range classificationRules {
		if rule.pattern.MatchString(errMsg) {
			return schemas.DetectedFailure{
				Category:    rule.category,
				Recoverable: rule.recoverable,
				Remediation: rule.remediation,
				Context:     map[string]interface{}{"error": errMsg},
			}
		}
	}
	return schemas.DetectedFailure{
		Category:    schemas.FailureUnknown,
		Recoverable: false,
		Remediation: "Inspect the step log; the error matched no known failure pattern.",
		Context:     map[string]interface{}{"error": errMsg},
	}
}
