package metrics

import (
	"testing"
	"time"

	"omnipitr/internal/logger"
)

func TestRecordOperationAndSummarize(t *testing.T) {
	mc := NewCollector(logger.NewNullLogger())

	start := time.Now().Add(-2 * time.Second)
	mc.RecordOperation("archive", "000000010000000000000001", start, 16<<20, true, 0)
	mc.RecordOperation("archive", "000000010000000000000002", start, 16<<20, false, 1)

	all := mc.All()
	if len(all) != 2 {
		t.Fatalf("All returned %d entries, want 2", len(all))
	}

	sum := mc.Summarize()
	if sum.TotalOperations != 2 {
		t.Errorf("TotalOperations = %d, want 2", sum.TotalOperations)
	}
	if sum.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", sum.SuccessRate)
	}
	if sum.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", sum.TotalErrors)
	}
}

func TestRecordCompressionRatio(t *testing.T) {
	mc := NewCollector(logger.NewNullLogger())
	mc.RecordOperation("archive", "seg1", time.Now(), 1024, true, 0)
	mc.RecordCompressionRatio("archive", "seg1", 0.25)

	all := mc.All()
	if all[0].CompressionRatio != 0.25 {
		t.Errorf("CompressionRatio = %v, want 0.25", all[0].CompressionRatio)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	mc := NewCollector(logger.NewNullLogger())
	if sum := mc.Summarize(); sum.TotalOperations != 0 {
		t.Errorf("expected zero-value Summary, got %+v", sum)
	}
}
