package risk

import (
	"fmt"
	"strings"

	"github.com/pharmaforge/forge/pkg/model"
)

const (
	maxHighActions   = 3
	maxMediumActions = 2
)

// Role labels and deadlines assigned by the planner.
const (
	OwnerQualityAssurance = "Quality Assurance Lead"
	OwnerRegulatory       = "Regulatory Affairs"
	OwnerSupplyChain      = "Supply Chain Manager"
	OwnerDocumentation    = "Documentation Specialist"

	DeadlineUrgent    = "Within 48 hours"
	DeadlineWeek      = "Within 7 days"
	DeadlineFortnight = "Within 14 days"
	DeadlineOngoing   = "Ongoing"
)

// PlanDraft is the planner output before persistence.
type PlanDraft struct {
	Actions   []model.Action
	Rationale string
	Owners    []string
	Deadlines []string
}

// BuildActionPlan synthesizes actions from findings and vendor matches:
// up to three HIGH actions, up to two MEDIUM actions, one supply-chain
// action when vendors matched, and always a documentation action. Pure and
// deterministic.
func BuildActionPlan(findings []model.Finding, vendorMatches []VendorMatch) PlanDraft {
	var actions []model.Action

	high := 0
	for _, f := range findings {
		if f.Severity != model.SeverityHigh {
			continue
		}
		high++
		if len(actionsBySeverity(actions, model.SeverityHigh)) >= maxHighActions {
			continue
		}
		actions = append(actions, model.Action{
			Title: "Investigate: " + f.Title,
			Description: fmt.Sprintf("Address finding: %s. Reference: %s",
				f.Description, strings.Join(f.CFRRefs, ", ")),
			Priority: model.SeverityHigh,
			Owner:    OwnerQualityAssurance,
			Deadline: DeadlineUrgent,
		})
	}

	medium := 0
	for _, f := range findings {
		if f.Severity != model.SeverityMedium || medium >= maxMediumActions {
			continue
		}
		medium++
		actions = append(actions, model.Action{
			Title:       "Review: " + f.Title,
			Description: "Evaluate finding: " + f.Description,
			Priority:    model.SeverityMedium,
			Owner:       OwnerRegulatory,
			Deadline:    DeadlineWeek,
		})
	}

	if len(vendorMatches) > 0 {
		actions = append(actions, model.Action{
			Title: "Vendor Risk Mitigation",
			Description: fmt.Sprintf("Review %d vendor(s) identified with elevated risk profiles.",
				len(vendorMatches)),
			Priority: model.SeverityMedium,
			Owner:    OwnerSupplyChain,
			Deadline: DeadlineFortnight,
		})
	}

	actions = append(actions, model.Action{
		Title:       "Document Remediation Actions",
		Description: "Compile remediation documentation and update CAPA records.",
		Priority:    model.SeverityLow,
		Owner:       OwnerDocumentation,
		Deadline:    DeadlineOngoing,
	})

	rationale := fmt.Sprintf(
		"Action plan generated based on %d compliance finding(s). "+
			"Prioritized %d HIGH severity issue(s) requiring immediate attention.",
		len(findings), high)
	if len(vendorMatches) > 0 {
		rationale += " Vendor risks incorporated into supply chain review."
	}

	return PlanDraft{
		Actions:   actions,
		Rationale: rationale,
		Owners:    dedupe(project(actions, func(a model.Action) string { return a.Owner })),
		Deadlines: dedupe(project(actions, func(a model.Action) string { return a.Deadline })),
	}
}

func actionsBySeverity(actions []model.Action, sev model.Severity) []model.Action {
	var out []model.Action
	for _, a := range actions {
		if a.Priority == sev {
			out = append(out, a)
		}
	}
	return out
}

func project(actions []model.Action, f func(model.Action) string) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, f(a))
	}
	return out
}

// dedupe keeps first occurrences so the projection order is stable.
func dedupe(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
