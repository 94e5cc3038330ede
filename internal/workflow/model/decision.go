package model

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DecisionKind classifies the supervisor's next-step decision.
type DecisionKind int

const (
	// DecisionInvalid covers empty or unrecognized decisions; the router
	// defaults back to the Process node so the run is never dropped silently.
	DecisionInvalid DecisionKind = iota
	// DecisionNamed routes to one of the worker nodes.
	DecisionNamed
	// DecisionFinish ends the research loop and hands off to the Refiner.
	DecisionFinish
)

// Decision is the typed result of parsing a raw process decision.
type Decision struct {
	Kind   DecisionKind
	Target string
}

// finishToken is the literal the supervisor emits when research is complete.
const finishToken = "FINISH"

var decisionPattern = regexp.MustCompile(`Decision:\s*(\w+)`)

// processMembers maps normalized decision tokens to canonical worker node names.
var processMembers = map[string]string{
	strings.ToLower(NodeCoder):         NodeCoder,
	strings.ToLower(NodeSearch):        NodeSearch,
	strings.ToLower(NodeVisualization): NodeVisualization,
	strings.ToLower(NodeReport):        NodeReport,
}

// ParseProcessDecision consolidates every accepted shape of the supervisor's
// decision into one typed result. Accepted shapes:
//
//   - structured message text containing "Decision: <word>",
//   - a JSON object with a "next" key,
//   - a bare token.
//
// Anything else yields DecisionInvalid; the function never fails.
func ParseProcessDecision(raw string) Decision {
	token := extractDecisionToken(raw)
	if token == "" {
		return Decision{Kind: DecisionInvalid}
	}
	if strings.EqualFold(token, finishToken) {
		return Decision{Kind: DecisionFinish}
	}
	if target, ok := processMembers[strings.ToLower(token)]; ok {
		return Decision{Kind: DecisionNamed, Target: target}
	}
	return Decision{Kind: DecisionInvalid}
}

func extractDecisionToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// JSON-object decisions carry the next node under the "next" key.
	if strings.HasPrefix(raw, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			if v, ok := m["next"].(string); ok {
				return strings.TrimSpace(v)
			}
			return ""
		}
	}

	if m := decisionPattern.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}

	// Bare token: only meaningful when it is a single word.
	if !strings.ContainsAny(raw, " \t\n") {
		return raw
	}
	return ""
}
