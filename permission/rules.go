package permission

import "github.com/bmatcuk/doublestar/v4"

// Rule is a declarative permission rule with glob pattern matching.
type Rule struct {
	Pattern  string   // doublestar pattern, e.g. "weather_*", "{get,list}_*"
	Decision Decision // Allow or Deny
}

// MatchRules evaluates rules against a tool name. Deny rules take precedence
// over allow rules. If no rule matches, matched is false.
func MatchRules(rules []Rule, toolName string) (d Decision, matched bool) {
	var hasAllow bool

	for _, r := range rules {
		ok, err := doublestar.Match(r.Pattern, toolName)
		if err != nil || !ok {
			continue
		}
		switch r.Decision {
		case Deny:
			return Deny, true
		case Allow:
			hasAllow = true
		}
	}

	if hasAllow {
		return Allow, true
	}
	return Allow, false
}

func validPattern(p string) bool {
	return p != "" && doublestar.ValidatePattern(p)
}
