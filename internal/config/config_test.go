package config

import "testing"

func TestValidateRequiresDataDir(t *testing.T) {
	g := &Global{}
	if err := g.Validate(); err == nil {
		t.Error("expected error when DataDir is empty")
	}
	g.DataDir = "/var/lib/pg"
	if err := g.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRejectsNegativeParallelJobs(t *testing.T) {
	g := &Global{DataDir: "/var/lib/pg", ParallelJobs: -1}
	if err := g.Validate(); err == nil {
		t.Error("expected error for negative ParallelJobs")
	}
}

func TestResolveParallelJobsHonorsExplicitValue(t *testing.T) {
	g := &Global{ParallelJobs: 7}
	if got := g.ResolveParallelJobs(); got != 7 {
		t.Errorf("ResolveParallelJobs = %d, want 7", got)
	}
}

func TestResolveParallelJobsDerivesFromCPUWhenUnset(t *testing.T) {
	g := &Global{}
	if got := g.ResolveParallelJobs(); got < 1 {
		t.Errorf("ResolveParallelJobs = %d, want >= 1", got)
	}
}
