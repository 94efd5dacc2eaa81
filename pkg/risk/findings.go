// Package risk implements the golden workflow pipeline: findings extraction
// from evidence text, correlation against the watchtower state, action plan
// synthesis, the run orchestrator, and the audit packet exporter.
package risk

import (
	"strings"

	"github.com/pharmaforge/forge/pkg/model"
)

const maxFindings = 10

// findingRule emits one finding when any of its keywords appears in the
// lowercased evidence text. Rules are evaluated in order; output order is
// therefore deterministic for a given text.
type findingRule struct {
	keywords    []string
	title       string
	description string
	severity    model.Severity
	cfrRefs     []string
	citation    string
}

var findingRules = []findingRule{
	{
		keywords:    []string{"temperature", "cold chain", "storage"},
		title:       "Cold Chain Storage Compliance Gap",
		description: "Document references temperature-sensitive storage. Verify compliance with 21 CFR 211.142 storage requirements.",
		severity:    model.SeverityHigh,
		cfrRefs:     []string{"21 CFR 211.142", "21 CFR 211.150"},
		citation:    "'temperature' mentioned in source document",
	},
	{
		keywords:    []string{"cgmp", "gmp", "manufacturing"},
		title:       "cGMP Documentation Review Required",
		description: "Manufacturing processes referenced require cGMP compliance verification per 21 CFR Parts 210-211.",
		severity:    model.SeverityMedium,
		cfrRefs:     []string{"21 CFR 210", "21 CFR 211"},
		citation:    "Manufacturing/cGMP terminology in document",
	},
	{
		keywords:    []string{"recall", "defect", "deviation"},
		title:       "Product Quality Deviation Detected",
		description: "Quality deviation or recall-related content found. Immediate investigation required per 21 CFR 211.192.",
		severity:    model.SeverityHigh,
		cfrRefs:     []string{"21 CFR 211.192", "21 CFR Part 7"},
		citation:    "Quality deviation terminology detected",
	},
	{
		keywords:    []string{"supplier", "vendor"},
		title:       "Supplier Qualification Assessment Needed",
		description: "Supplier/vendor references found. Verify supplier qualification per 21 CFR 211.84.",
		severity:    model.SeverityMedium,
		cfrRefs:     []string{"21 CFR 211.84", "21 CFR 211.80"},
		citation:    "Supplier/vendor references in document",
	},
	{
		keywords:    []string{"labeling", "label"},
		title:       "Labeling Compliance Check Required",
		description: "Labeling content detected. Verify compliance with 21 CFR 211.122-137 labeling requirements.",
		severity:    model.SeverityMedium,
		cfrRefs:     []string{"21 CFR 211.122", "21 CFR 211.125", "21 CFR 211.130"},
		citation:    "Labeling terminology in document",
	},
	{
		keywords:    []string{"serialization", "dscsa", "traceability"},
		title:       "DSCSA Serialization Compliance Required",
		description: "Serialization/traceability content found. Ensure DSCSA compliance for product tracking.",
		severity:    model.SeverityHigh,
		cfrRefs:     []string{"DSCSA Section 582"},
		citation:    "Serialization/DSCSA references in document",
	},
}

var fillerFindings = []model.Finding{
	{
		Title:       "General Document Compliance Review",
		Description: "Document requires review for general regulatory compliance. Consider 21 CFR Part 211 applicability.",
		Severity:    model.SeverityLow,
		CFRRefs:     []string{"21 CFR 211"},
		Citations:   []string{"General document review"},
	},
	{
		Title:       "Record Retention Verification",
		Description: "Verify document retention policies align with 21 CFR 211.180 requirements.",
		Severity:    model.SeverityLow,
		CFRRefs:     []string{"21 CFR 211.180"},
		Citations:   []string{"Standard record retention check"},
	},
}

// ExtractFindings derives compliance findings from evidence text. Pure:
// same text, same findings. IDs and run attribution are filled in by the
// orchestrator at persistence time.
func ExtractFindings(text string) []model.Finding {
	lower := strings.ToLower(text)

	var findings []model.Finding
	for _, rule := range findingRules {
		if !containsAny(lower, rule.keywords) {
			continue
		}
		findings = append(findings, model.Finding{
			Title:       rule.title,
			Description: rule.description,
			Severity:    rule.severity,
			CFRRefs:     append([]string(nil), rule.cfrRefs...),
			Citations:   []string{rule.citation},
		})
	}

	// Pad sparse documents with baseline review findings.
	for _, filler := range fillerFindings {
		if len(findings) >= 3 {
			break
		}
		f := filler
		f.CFRRefs = append([]string(nil), filler.CFRRefs...)
		f.Citations = append([]string(nil), filler.Citations...)
		findings = append(findings, f)
	}

	if len(findings) > maxFindings {
		findings = findings[:maxFindings]
	}
	return findings
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
