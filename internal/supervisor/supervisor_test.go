package supervisor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"omnipitr/internal/runner"
)

// fakeRunner lets tests control exit codes/signals/delay per argv[0]
// without touching a real subprocess.
type fakeRunner struct {
	mu sync.Mutex
	maxInFlight int32
	inFlight int32
	delay time.Duration
	exitCodes map[string]int
	signals map[string]int
}

func (f *fakeRunner) Run(ctx context.Context, argv []string, stdin io.Reader) runner.Result {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return runner.Result{
		Argv: argv,
		ExitCode: f.exitCodes[argv[0]],
		Signal: f.signals[argv[0]],
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	fr := &fakeRunner{delay: 20 * time.Millisecond}
	sup := New(2, fr)

	var jobs []Job
	for i := 0; i < 6; i++ {
		jobs = append(jobs, Job{Argv: []string{fmt.Sprintf("job%d", i)}})
	}

	results := sup.Run(context.Background(), jobs)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if atomic.LoadInt32(&fr.maxInFlight) > 2 {
		t.Errorf("max concurrency = %d, want <= 2", fr.maxInFlight)
	}
}

func TestResultOkAndStatusEncoding(t *testing.T) {
	fr := &fakeRunner{
		exitCodes: map[string]int{"ok": 0, "fail": 3},
		signals: map[string]int{"killed": 9},
	}
	sup := New(4, fr)

	results := sup.Run(context.Background(), []Job{
			{Argv: []string{"ok"}},
			{Argv: []string{"fail"}},
			{Argv: []string{"killed"}},
		})

	byArgv := map[string]Result{}
	for _, r := range results {
		byArgv[r.Job.Argv[0]] = r
	}

	if !byArgv["ok"].Ok() {
		t.Errorf("expected ok job to be Ok, got status %d", byArgv["ok"].Status)
	}
	if byArgv["fail"].Ok() {
		t.Error("expected fail job to not be Ok")
	}
	if got := byArgv["fail"].Status >> 8; got != 3 {
		t.Errorf("fail exit code = %d, want 3", got)
	}
	if got := byArgv["killed"].Status & 0xff; got != 9 {
		t.Errorf("killed signal = %d, want 9", got)
	}
}

func TestOnStartAndOnFinishCallbacks(t *testing.T) {
	fr := &fakeRunner{exitCodes: map[string]int{"x": 0}}
	sup := New(2, fr)

	var starts, finishes int32
	sup.OnStart = func(job Job) { atomic.AddInt32(&starts, 1) }
	sup.OnFinish = func(res Result) { atomic.AddInt32(&finishes, 1) }

	sup.Run(context.Background(), []Job{{Argv: []string{"x"}}, {Argv: []string{"x"}}})

	if starts != 2 || finishes != 2 {
		t.Errorf("starts=%d finishes=%d, want 2/2", starts, finishes)
	}
}
