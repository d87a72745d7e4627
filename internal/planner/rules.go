// File: internal/planner/rules.go
package planner

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// searchEngines maps shorthand names to query-URL templates with a %s
// placeholder for the escaped query.
var searchEngines = map[string]string{
	"google":     "https://www.google.com/search?q=%s",
	"duckduckgo": "https://duckduckgo.com/?q=%s",
	"bing":       "https://www.bing.com/search?q=%s",
	"github":     "https://github.com/search?q=%s",
	"wikipedia":  "https://en.wikipedia.org/w/index.php?search=%s",
}

const defaultSearchEngine = "duckduckgo"

var (
	urlRe = regexp.MustCompile(`(?i)\b(?:https?://)?(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/\S*)?`)

	searchVerbRe = regexp.MustCompile(`(?i)\b(?:search(?: for)?|find|look up|lookup)\b\s*`)
	noiseWordRe  = regexp.MustCompile(`(?i)\b(?:please|for me|on the web|online)\b`)
)

// RulePlanner is the deterministic fallback. It never returns an error and
// never produces an empty plan.
type RulePlanner struct{}

// NewRulePlanner creates the rule-based fallback planner.
func NewRulePlanner() *RulePlanner {
	return &RulePlanner{}
}

func (r *RulePlanner) Plan(_ context.Context, goal schemas.Goal, _ *schemas.PageState) (schemas.ActionPlan, error) {
	switch goal.Intent {
	case schemas.IntentNavigate:
		if target := firstURL(goal.PrimaryGoal); target != "" {
			return plan(VerbNavigate + " " + target), nil
		}

	case schemas.IntentSearch:
		return plan(
			VerbNavigate+" "+searchURL(goal.PrimaryGoal),
			VerbExtract+" body",
		), nil

	case schemas.IntentExtract:
		commands := []string{}
		if target := firstURL(goal.PrimaryGoal); target != "" {
			commands = append(commands, VerbNavigate+" "+target)
		}
		commands = append(commands, VerbExtract+" body")
		return plan(commands...), nil

	case schemas.IntentInteract:
		if target := firstURL(goal.PrimaryGoal); target != "" {
			return plan(
				VerbNavigate+" "+target,
				VerbExecute+" "+goal.PrimaryGoal,
			), nil
		}
	}

	// Catch-all: hand the raw instruction to the code generator.
	return plan(VerbExecute + " " + goal.PrimaryGoal), nil
}

func plan(commands ...string) schemas.ActionPlan {
	return schemas.ActionPlan{Commands: commands}
}

// firstURL pulls the first URL-looking token out of the request and
// normalizes it to an https scheme.
func firstURL(text string) string {
	m := urlRe.FindString(text)
	if m == "" {
		return ""
	}
	m = strings.TrimRight(m, ".,;:!?)")
	if !strings.Contains(m, "://") {
		m = "https://" + m
	}
	return m
}

// searchURL builds a query URL, honoring an explicitly named engine
// ("search github for x") and stripping the verb phrasing from the query.
func searchURL(request string) string {
	engine := defaultSearchEngine
	lower := strings.ToLower(request)
	for name := range searchEngines {
		if strings.Contains(lower, name) {
			engine = name
			request = regexp.MustCompile(`(?i)\b(?:on |in )?`+name+`\b`).ReplaceAllString(request, "")
			break
		}
	}

	query := searchVerbRe.ReplaceAllString(request, "")
	query = noiseWordRe.ReplaceAllString(query, "")
	query = strings.TrimSpace(query)
	if query == "" {
		query = strings.TrimSpace(request)
	}

	return strings.Replace(searchEngines[engine], "%s", url.QueryEscape(query), 1)
}
