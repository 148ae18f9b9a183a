package jobman

import (
	"context"
	"fmt"
)

// Task is a nested unit of work owned by exactly one job, directly or
// through another task. A task keeps its own status and details but has
// no history of its own; every status and progress update it makes is
// redirected to the owning job. A task never outlives its job.
type Task struct {
	// Name is a human readable name of the task.
	Name string

	// Status indicates where the task is in its lifecycle.
	Status Status

	// Details holds the task's last failure diagnostic.
	Details string

	// job is a non-owning back-reference to the owning job.
	job *Job

	runner Runner
	tmp    *TempDirs
	logctx string
}

// NewTask creates a task owned by the given job.
func NewTask(name string, r Runner, j *Job) *Task {
	t := &Task{
		Name:   name,
		Status: StatusNew,
		job:    j,
		runner: r,
		tmp:    NewTempDirs(),
	}
	// The task's log context is the owning job's context
	// plus the task's own name, so log lines trace job -> task.
	t.logctx = fmt.Sprintf("%v task=%v", j.logctx, name)
	return t
}

// Subtask creates a task nested under this task.
// It shares the same owning job and extends the log context.
func (t *Task) Subtask(name string, r Runner) *Task {
	sub := NewTask(name, r, t.job)
	sub.logctx = fmt.Sprintf("%v task=%v", t.logctx, name)
	return sub
}

// Job returns the owning job of the task.
func (t *Task) Job() *Job {
	return t.job
}

// TempDirs returns the task's scratch directory manager.
func (t *Task) TempDirs() *TempDirs {
	return t.tmp
}

// UpdateStatus forwards a status update to the owning job.
func (t *Task) UpdateStatus(u StatusUpdate) error {
	return t.job.UpdateStatus(u)
}

// UpdateProgress forwards a progress update to the owning job.
func (t *Task) UpdateProgress(completion int, text string) error {
	return t.job.UpdateProgress(completion, text)
}

// Run executes the task within its owning job's run.
//
// A failure is recorded on the task and returned; it is never swallowed
// here. The owning job's run applies the standard failure path when it
// surfaces. Temp directories acquired by the task are released on every
// exit path of the task itself.
func (t *Task) Run(ctx context.Context) error {
	if t.runner == nil {
		return fmt.Errorf("task %v has no runner bound", t.Name)
	}
	t.Status = StatusRunning
	t.logf("running task")
	defer t.tmp.ReleaseAll()
	err := t.steps(ctx)
	if err != nil {
		t.Status = StatusError
		t.Details = err.Error()
		t.logf("task failed: %v", err)
		return fmt.Errorf("task %v: %w", t.Name, err)
	}
	t.Status = StatusSuccess
	return nil
}

func (t *Task) steps(ctx context.Context) error {
	if pre, ok := t.runner.(PreProcessor); ok {
		err := pre.PreProcess(ctx, t.job)
		if err != nil {
			return fmt.Errorf("pre-process: %w", err)
		}
	}
	err := t.runner.Process(ctx, t.job)
	if err != nil {
		return err
	}
	if post, ok := t.runner.(PostProcessor); ok {
		err := post.PostProcess(ctx, t.job)
		if err != nil {
			return fmt.Errorf("post-process: %w", err)
		}
	}
	return nil
}
