// File: internal/recovery/selectors.go
package recovery

import (
	"regexp"
	"strings"
)

var dataTestIDRe = regexp.MustCompile(`^\[data-testid=["']?([^"'\]]+)["']?\]$`)

// AlternativeSelectors proposes plausible replacement locators for a failed
// CSS selector by translating between the id, data-testid, and class
// addressing styles. The failed selector itself is never included.
func AlternativeSelectors(selector string) []string {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(selector, "#"):
		name := selector[1:]
		return []string{
			`[data-testid="` + name + `"]`,
			`[name="` + name + `"]`,
			"." + name,
		}
	case strings.HasPrefix(selector, "."):
		name := selector[1:]
		return []string{
			"#" + name,
			`[data-testid="` + name + `"]`,
		}
	default:
		if m := dataTestIDRe.FindStringSubmatch(selector); m != nil {
			return []string{
				"#" + m[1],
				"." + m[1],
			}
		}
	}
	return nil
}
