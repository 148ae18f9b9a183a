package jobman

import (
	"context"
	"fmt"
	"math/rand"
	"os/exec"
	"time"
)

// RegisterExamples registers the built-in example job types.
func RegisterExamples(r *Registry) error {
	err := r.Register("Wait", func() Runner { return &WaitJob{} })
	if err != nil {
		return err
	}
	return r.Register("Execute", func() Runner { return &ExecuteJob{} })
}

// WaitJob waits a number of seconds, reporting progress every second.
// FailRatio gives each second that probability of blowing up, which
// makes it handy for exercising the failure path.
type WaitJob struct {
	Duration  int     `json:"duration"`
	FailRatio float64 `json:"fail_ratio"`

	// tick is a second unless a test shortens it.
	tick time.Duration
}

// PreProcess decodes the job's parameters.
func (w *WaitJob) PreProcess(ctx context.Context, j *Job) error {
	return j.DecodeParams(w)
}

func (w *WaitJob) Process(ctx context.Context, j *Job) error {
	if w.Duration <= 0 {
		return fmt.Errorf("wait: duration must be positive, got %d", w.Duration)
	}
	if w.FailRatio < 0 || w.FailRatio > 1 {
		return fmt.Errorf("wait: fail_ratio must be in [0,1], got %v", w.FailRatio)
	}
	tick := w.tick
	if tick == 0 {
		tick = time.Second
	}
	for i := 1; i <= w.Duration; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tick):
		}
		pct := i * 100 / w.Duration
		err := j.UpdateProgress(pct, fmt.Sprintf("Waiting %d seconds over %d (%d%%)", i, w.Duration, pct))
		if err != nil {
			return err
		}
		if rand.Float64() < w.FailRatio {
			return fmt.Errorf("wait: arbitrary fail ratio triggered")
		}
	}
	return nil
}

// ExecuteJob runs a shell command and captures its combined output.
// A non-zero exit is an execution failure; the run ends in error with
// the exit diagnostic in the job's details.
type ExecuteJob struct {
	Command string `json:"command"`

	output string
}

// PreProcess decodes the job's parameters.
func (e *ExecuteJob) PreProcess(ctx context.Context, j *Job) error {
	err := j.DecodeParams(e)
	if err != nil {
		return err
	}
	if e.Command == "" {
		return fmt.Errorf("execute: command required")
	}
	return nil
}

func (e *ExecuteJob) Process(ctx context.Context, j *Job) error {
	j.logf("executing command: %v", e.Command)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
	out, err := cmd.CombinedOutput()
	e.output = string(out)
	if err != nil {
		return fmt.Errorf("execute: %w\n%s", err, out)
	}
	return nil
}

// PostProcess keeps the captured output on the job record.
func (e *ExecuteJob) PostProcess(ctx context.Context, j *Job) error {
	return j.SetParam("output", e.output)
}
