package observability

import "time"

// Runtime operations with SLO coverage.
const (
	OpSync     = "sync"
	OpWorkflow = "workflow"
	OpExport   = "export"
)

// DefaultSLOTargets returns the stock targets for the runtime operations.
func DefaultSLOTargets() []*SLOTarget {
	return []*SLOTarget{
		{
			SLOID:       "slo-sync",
			Name:        "Feed sync completes quickly and reliably",
			Operation:   OpSync,
			LatencyP99:  60 * time.Second,
			SuccessRate: 0.95,
			WindowHours: 24,
		},
		{
			SLOID:       "slo-workflow",
			Name:        "Workflow runs complete within budget",
			Operation:   OpWorkflow,
			LatencyP99:  120 * time.Second,
			SuccessRate: 0.99,
			WindowHours: 24,
		},
		{
			SLOID:       "slo-export",
			Name:        "Audit packet export latency",
			Operation:   OpExport,
			LatencyP99:  5 * time.Second,
			SuccessRate: 0.999,
			WindowHours: 24,
		},
	}
}

// NewDefaultSLOTracker builds a tracker preloaded with the stock targets.
func NewDefaultSLOTracker() *SLOTracker {
	tracker := NewSLOTracker()
	for _, target := range DefaultSLOTargets() {
		tracker.SetTarget(target)
	}
	return tracker
}

// NewDefaultSLIRegistry builds a registry describing how each stock SLO is
// measured, linked to its target.
func NewDefaultSLIRegistry() (*SLIRegistry, error) {
	registry := NewSLIRegistry()
	slis := []*SLI{
		{
			SLIID:           "sli-sync-success",
			Name:            "Feed sync success ratio",
			Operation:       OpSync,
			Source:          SLISourceMetric,
			Unit:            "%",
			GoodEventQuery:  "sync results with success=true",
			TotalEventQuery: "all sync results",
			LinkedSLOID:     "slo-sync",
		},
		{
			SLIID:           "sli-workflow-success",
			Name:            "Workflow run success ratio",
			Operation:       OpWorkflow,
			Source:          SLISourceMetric,
			Unit:            "%",
			GoodEventQuery:  "runs with status=success",
			TotalEventQuery: "all terminal runs",
			LinkedSLOID:     "slo-workflow",
		},
		{
			SLIID:           "sli-export-latency",
			Name:            "Audit packet export latency",
			Operation:       OpExport,
			Source:          SLISourceTrace,
			Unit:            "ms",
			GoodEventQuery:  "exports under 5s",
			TotalEventQuery: "all exports",
			LinkedSLOID:     "slo-export",
		},
	}
	for _, sli := range slis {
		if err := registry.Register(sli); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
