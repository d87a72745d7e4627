// File: internal/intent/heuristic.go
package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

var (
	navigateCueRe = regexp.MustCompile(`(?i)\b(navigate|open|visit|go to|goto)\b`)
	searchCueRe   = regexp.MustCompile(`(?i)\b(find|search|look up|lookup)\b`)
	extractCueRe  = regexp.MustCompile(`(?i)\b(extract|scrape|collect|get all|list all)\b`)
	interactCueRe = regexp.MustCompile(`(?i)\b(click|type|fill|submit|press|select|enter)\b`)
	conjunctionRe = regexp.MustCompile(`(?i)\b(and then|then|after that|afterwards|followed by)\b`)

	countRe = regexp.MustCompile(`(?i)\b(?:first|top|up to)?\s*(\d+)\s+(?:results?|items?|entries|links?|products?|articles?)\b`)
	priceRe = regexp.MustCompile(`(?i)(?:under|below|less than|max(?:imum)?(?: of)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
)

// HeuristicResolver classifies intent from verb cues and pulls numeric
// constraints out with regexes. It never returns an error; every request
// yields a usable Goal.
type HeuristicResolver struct{}

// NewHeuristicResolver creates the deterministic fallback resolver.
func NewHeuristicResolver() *HeuristicResolver {
	return &HeuristicResolver{}
}

func (h *HeuristicResolver) Resolve(_ context.Context, request string) (schemas.Goal, error) {
	intent := classify(request)

	constraints := map[string]interface{}{}
	if m := countRe.FindStringSubmatch(request); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			constraints["count"] = n
		}
	}
	if m := priceRe.FindStringSubmatch(request); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			constraints["max_price"] = v
		}
	}
	if len(constraints) == 0 {
		constraints = nil
	}

	return schemas.Goal{
		Intent:      intent,
		PrimaryGoal: strings.TrimSpace(request),
		Constraints: constraints,
		SuccessCriteria: []string{
			"The requested action was carried out without errors.",
			"The final page state reflects the requested outcome.",
		},
	}, nil
}

func classify(request string) schemas.Intent {
	// Multiple distinct action verbs, or an explicit conjunction, imply a
	// compound task.
	cues := 0
	for _, re := range []*regexp.Regexp{navigateCueRe, searchCueRe, extractCueRe, interactCueRe} {
		if re.MatchString(request) {
			cues++
		}
	}
	if conjunctionRe.MatchString(request) || cues > 1 {
		return schemas.IntentWorkflow
	}

	switch {
	case extractCueRe.MatchString(request):
		return schemas.IntentExtract
	case searchCueRe.MatchString(request):
		return schemas.IntentSearch
	case interactCueRe.MatchString(request):
		return schemas.IntentInteract
	case navigateCueRe.MatchString(request):
		return schemas.IntentNavigate
	default:
		return schemas.IntentWorkflow
	}
}
