package observability

import (
	"testing"
)

func TestSLIRegister(t *testing.T) {
	r := NewSLIRegistry()
	err := r.Register(&SLI{
		SLIID:     "sli-1",
		Name:      "Sync Latency",
		Operation: OpSync,
		Source:    SLISourceMetric,
		Unit:      "ms",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1, got %d", r.Count())
	}
}

func TestSLIRegisterMissingFields(t *testing.T) {
	r := NewSLIRegistry()
	err := r.Register(&SLI{SLIID: "sli-1"})
	if err == nil {
		t.Fatal("expected error for missing fields")
	}
}

func TestSLIByOperation(t *testing.T) {
	r := NewSLIRegistry()
	r.Register(&SLI{SLIID: "s1", Name: "a", Operation: OpSync, Source: SLISourceMetric})
	r.Register(&SLI{SLIID: "s2", Name: "b", Operation: OpSync, Source: SLISourceTrace})
	r.Register(&SLI{SLIID: "s3", Name: "c", Operation: OpWorkflow, Source: SLISourceLog})

	syncs := r.ByOperation(OpSync)
	if len(syncs) != 2 {
		t.Fatalf("expected 2 sync SLIs, got %d", len(syncs))
	}
}

func TestSLILinkToSLO(t *testing.T) {
	r := NewSLIRegistry()
	r.Register(&SLI{SLIID: "s1", Name: "a", Operation: OpSync})

	err := r.LinkToSLO("s1", "slo-1")
	if err != nil {
		t.Fatal(err)
	}

	sli, _ := r.Get("s1")
	if sli.LinkedSLOID != "slo-1" {
		t.Fatal("expected linked SLO")
	}
}

func TestSLIGetNotFound(t *testing.T) {
	r := NewSLIRegistry()
	_, err := r.Get("nonexistent")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultSLIRegistryLinksTargets(t *testing.T) {
	r, err := NewDefaultSLIRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if r.Count() != 3 {
		t.Fatalf("expected 3 SLIs, got %d", r.Count())
	}

	tracker := NewDefaultSLOTracker()
	for _, op := range []string{OpSync, OpWorkflow, OpExport} {
		for _, sli := range r.ByOperation(op) {
			if sli.LinkedSLOID == "" {
				t.Fatalf("SLI %s has no linked SLO", sli.SLIID)
			}
			if _, err := tracker.Status(op); err != nil {
				t.Fatalf("no SLO target behind SLI %s: %v", sli.SLIID, err)
			}
		}
	}
}
