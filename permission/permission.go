// Package permission decides which tool-server tools the model may see and
// call. Tools are matched by name against doublestar glob patterns.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrDenied marks a tool call refused by the policy or the callback.
var ErrDenied = errors.New("permission: tool call denied")

// Decision represents the outcome of a permission check.
type Decision int

const (
	Allow Decision = iota // Tool is exposed and may be called
	Deny                  // Tool is hidden from the model and calls are refused
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Func is a user-provided permission callback consulted for each tool call
// the policy allows. It receives the tool name and the model-supplied input.
type Func func(ctx context.Context, toolName string, input json.RawMessage) (Decision, error)

// Policy lists allow and deny glob patterns over tool names. An empty Allow
// list allows every tool that no Deny pattern matches.
type Policy struct {
	Allow []string `json:"allowedTools,omitempty"`
	Deny  []string `json:"disabledTools,omitempty"`
}

// IsZero reports whether the policy has no patterns.
func (p Policy) IsZero() bool {
	return len(p.Allow) == 0 && len(p.Deny) == 0
}

// Rules expands the policy into rules for MatchRules.
func (p Policy) Rules() []Rule {
	rules := make([]Rule, 0, len(p.Allow)+len(p.Deny))
	for _, pat := range p.Deny {
		rules = append(rules, Rule{Pattern: pat, Decision: Deny})
	}
	for _, pat := range p.Allow {
		rules = append(rules, Rule{Pattern: pat, Decision: Allow})
	}
	return rules
}

// Validate reports the first malformed pattern.
func (p Policy) Validate() error {
	var bad []string
	for _, r := range p.Rules() {
		if !validPattern(r.Pattern) {
			bad = append(bad, r.Pattern)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("permission: invalid tool pattern(s): %s", strings.Join(bad, ", "))
	}
	return nil
}

// Checker evaluates whether a tool can be used.
type Checker struct {
	rules      []Rule
	allowList  bool
	canUseTool Func // Optional callback consulted after the policy allows
}

// NewChecker creates a checker for the given policy. fn may be nil.
func NewChecker(policy Policy, fn Func) *Checker {
	return &Checker{
		rules:      policy.Rules(),
		allowList:  len(policy.Allow) > 0,
		canUseTool: fn,
	}
}

// Visible reports whether the named tool is exposed to the model. Only the
// static policy is consulted.
func (c *Checker) Visible(toolName string) bool {
	d, matched := MatchRules(c.rules, toolName)
	if !matched {
		return !c.allowList
	}
	return d == Allow
}

// Check evaluates whether the named tool may be called with the given input.
func (c *Checker) Check(ctx context.Context, toolName string, input json.RawMessage) (Decision, error) {
	if !c.Visible(toolName) {
		return Deny, nil
	}
	if c.canUseTool != nil {
		return c.canUseTool(ctx, toolName, input)
	}
	return Allow, nil
}
