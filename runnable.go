package jobman

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Runner is the unit of work a concrete job or task type supplies.
// It is the only operation a type must implement; a type that cannot
// provide one is rejected when it is registered, not at first execution.
type Runner interface {
	Process(ctx context.Context, j *Job) error
}

// PreProcessor is an optional hook invoked before Process.
// Job types commonly decode their parameters here.
type PreProcessor interface {
	PreProcess(ctx context.Context, j *Job) error
}

// PostProcessor is an optional hook invoked after a successful Process.
// It may transform or store the raw result. A failure here takes the
// same path as a failure in Process.
type PostProcessor interface {
	PostProcess(ctx context.Context, j *Job) error
}

// Run executes the job.
//
// It records the start time, persists the running status before any work
// begins, then drives the optional pre-process hook, Process, and the
// optional post-process hook. On failure the full diagnostic is captured
// into Details, the job ends in error with Finished set, and the failure
// is returned to the caller. On success the job ends successful with
// full completion.
//
// Every temp directory acquired during the run is released on every exit
// path, including a failure of the run itself.
//
// Run may be invoked again on a terminal job to re-run it; preventing
// double execution is the caller's concern.
func (j *Job) Run(ctx context.Context) error {
	if j.runner == nil {
		return fmt.Errorf("job %v has no runner bound", j.UUID)
	}
	j.Started = ptrTime(time.Now().UTC())
	j.Finished = nil
	err := j.UpdateStatus(StatusUpdate{
		Status:     ptrStatus(StatusRunning),
		Completion: ptrInt(1),
		Text:       ptrString("Running job"),
	})
	if err != nil {
		return err
	}
	defer j.tmp.ReleaseAll()
	err = runSteps(ctx, j.runner, j)
	if err != nil {
		j.Details = err.Error()
		saveErr := j.SaveAsError(fmt.Sprintf("Error while running job (%v).", rootMessage(err)))
		if saveErr != nil {
			j.logf("could not save failure: %v", saveErr)
		}
		return fmt.Errorf("run job %v %v: %w", j.Type, j.UUID, err)
	}
	return j.SaveAsSuccessful("")
}

// RunSafe executes the job like Run but never returns the failure,
// so a batch driver can keep going when one job blows up.
// The job record still carries the terminal status and details.
func (j *Job) RunSafe(ctx context.Context) {
	err := j.Run(ctx)
	if err != nil {
		j.logf("job failed: %v", err)
	}
}

// runSteps drives the hook/process/hook sequence of a runner,
// converting a panic anywhere in it into an error that carries
// the stack trace of the failure site.
func runSteps(ctx context.Context, r Runner, j *Job) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v\n%s", v, debug.Stack())
		}
	}()
	if pre, ok := r.(PreProcessor); ok {
		err = pre.PreProcess(ctx, j)
		if err != nil {
			return fmt.Errorf("pre-process: %w", err)
		}
	}
	err = r.Process(ctx, j)
	if err != nil {
		return err
	}
	if post, ok := r.(PostProcessor); ok {
		err = post.PostProcess(ctx, j)
		if err != nil {
			return fmt.Errorf("post-process: %w", err)
		}
	}
	return nil
}

// rootMessage returns the first line of an error text,
// to keep status messages single-line while Details holds it all.
func rootMessage(err error) string {
	msg := err.Error()
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			return msg[:i]
		}
	}
	return msg
}
