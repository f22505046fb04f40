package prompt

import "strings"

var defaultSkeletons = map[string]string{
	"fsr_notes": `Symptom: <what the customer or engineer observed>
Fault: <the confirmed root cause>
Fix: <the corrective action taken and the result>`,
	"problem_statement": `Problem: <what is failing, on which equipment or part number>
Impact: <who or what is affected and how>
Conditions: <when and where it occurs>`,
}

const genericSkeleton = `<one short paragraph stating the issue>
<one short paragraph with the relevant details>`

// skeletonFor picks the ruleset skeleton, then the input type default, then the generic one
func skeletonFor(ruleset, inputType string) string {
	if s := strings.TrimSpace(ruleset); s != "" {
		return s
	}
	if s, ok := defaultSkeletons[inputType]; ok {
		return s
	}
	return genericSkeleton
}
