// Package supervisor implements the bounded parallel process pool from
//, used by the archive pipeline's destination fan-out and by
// the backup engine's rsync-based remote delivery. Grounded on the
// goroutine/worker-pool shape of vbp1-pgclone/internal/rsync/parallel.go,
// generalized from an rsync-only pool to arbitrary job descriptors and
// driven through the injectable runner.Runner instead of os/exec
// directly.
package supervisor

import (
	"context"
	"io"
	"sync"
	"time"

	"omnipitr/internal/runner"
)

// Job is one unit of work submitted to the supervisor: a command argv
// plus whatever caller-defined fields it needs to identify the job in
// its Result.
type Job struct {
	Argv []string
	Stdin io.Reader // set when the job's destination is a pipe
	Label string // user field carried through to the Result, for logging/state updates
}

// Result enriches a Job with everything the supervisor learns while
// running it.
type Result struct {
	Job Job
	Started time.Time
	Ended time.Time
	Status int // low byte = signal, high byte = exit code
	Stdout []byte
	Stderr []byte
	Err error
}

// Ok reports whether the job exited cleanly: no execution error, no
// signal, and a zero exit status.
func (r Result) Ok() bool {
	return r.Err == nil && r.Status == 0
}

// OnStart is invoked just after a job's worker goroutine begins running it,
// before the subprocess has necessarily produced any output.
type OnStart func(job Job)

// OnFinish is invoked once a job's Result is fully populated.
type OnFinish func(Result)

// Supervisor bounds concurrent execution to MaxJobs goroutines. It has no
// mid-flight cancellation: Run blocks until every submitted job has
// completed.
type Supervisor struct {
	MaxJobs int
	Runner runner.Runner
	OnStart OnStart
	OnFinish OnFinish
}

// New builds a Supervisor bounded to maxJobs concurrent workers, running
// jobs through r.
func New(maxJobs int, r runner.Runner) *Supervisor {
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Supervisor{MaxJobs: maxJobs, Runner: r}
}

// Run executes every job, at most MaxJobs concurrently, and returns every
// Result once all have completed. results[i] is the Result of jobs[i];
// the order in which jobs start and finish is not fixed, and there is no
// fairness guarantee across jobs.
func (s *Supervisor) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	sem := make(chan struct{}, s.MaxJobs)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-sem }()

			if s.OnStart != nil {
				s.OnStart(job)
			}

			started := time.Now()
			res := s.Runner.Run(ctx, job.Argv, job.Stdin)
			ended := time.Now()

			result := Result{
				Job: job,
				Started: started,
				Ended: ended,
				Status: encodeStatus(res.Signal, res.ExitCode),
				Stdout: res.Stdout,
				Stderr: res.Stderr,
				Err: res.Err,
			}
			results[i] = result

			if s.OnFinish != nil {
				s.OnFinish(result)
			}
		}(i, job)
	}

	wg.Wait()
	return results
}

// encodeStatus packs signal and exit code the way a host's child-exit
// convention does: low byte = signal, high byte = exit code.
func encodeStatus(signal, exitCode int) int {
	return (exitCode&0xff)<<8 | (signal & 0xff)
}
