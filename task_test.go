package jobman

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestTaskRun(t *testing.T) {
	svc := newFakeJobService()
	j, err := NewJob("Wait", &funcRunner{}, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := &funcRunner{
		process: func(ctx context.Context, j *Job) error { return nil },
	}
	task := NewTask("encode", r, j)
	err = task.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusSuccess {
		t.Fatalf("task status: got %v, want %v", task.Status, StatusSuccess)
	}
}

func TestTaskFailurePropagates(t *testing.T) {
	svc := newFakeJobService()
	j, err := NewJob("Wait", &funcRunner{}, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := &funcRunner{
		process: func(ctx context.Context, j *Job) error {
			return fmt.Errorf("codec missing")
		},
	}
	task := NewTask("encode", r, j)
	err = task.Run(context.Background())
	if err == nil {
		t.Fatalf("task Run: want error, got nil")
	}
	if !strings.Contains(err.Error(), "task encode") {
		t.Fatalf("error: got %q, want the task name in it", err)
	}
	if task.Status != StatusError {
		t.Fatalf("task status: got %v, want %v", task.Status, StatusError)
	}
	if !strings.Contains(task.Details, "codec missing") {
		t.Fatalf("task details: got %q, want the failure in it", task.Details)
	}
	// the job is untouched until its own run applies the failure path
	if j.Status != StatusPending {
		t.Fatalf("job status: got %v, want %v", j.Status, StatusPending)
	}
}

func TestTaskUpdatesLandOnJob(t *testing.T) {
	svc := newFakeJobService()
	j, err := NewJob("Wait", &funcRunner{}, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	task := NewTask("encode", &funcRunner{}, j)
	err = task.UpdateProgress(40, "encoding")
	if err != nil {
		t.Fatal(err)
	}
	if j.Completion != 40 {
		t.Fatalf("job completion: got %d, want 40", j.Completion)
	}
	if len(j.History) != 1 {
		t.Fatalf("job history: got %d entries, want 1", len(j.History))
	}
	if j.History[0].Message != "encoding" {
		t.Fatalf("job history message: got %q, want %q", j.History[0].Message, "encoding")
	}
}

func TestSubtaskLogContext(t *testing.T) {
	svc := newFakeJobService()
	j, err := NewJob("Wait", &funcRunner{}, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	parent := NewTask("render", &funcRunner{}, j)
	child := parent.Subtask("frame", &funcRunner{})
	if child.Job() != j {
		t.Fatalf("subtask job: got %v, want the owning job", child.Job())
	}
	want := fmt.Sprintf("job_type=Wait job_uuid=%v task=render task=frame", j.UUID)
	if child.logctx != want {
		t.Fatalf("subtask logctx: got %q, want %q", child.logctx, want)
	}
}

func TestTaskRunInsideJobRun(t *testing.T) {
	svc := newFakeJobService()
	r := &funcRunner{
		process: func(ctx context.Context, j *Job) error {
			bad := NewTask("broken", &funcRunner{
				process: func(ctx context.Context, j *Job) error {
					return fmt.Errorf("no input")
				},
			}, j)
			return bad.Run(ctx)
		},
	}
	j, err := NewJob("Wait", r, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = j.Run(context.Background())
	if err == nil {
		t.Fatalf("Run: want error, got nil")
	}
	if j.Status != StatusError {
		t.Fatalf("job status: got %v, want %v", j.Status, StatusError)
	}
	if !strings.Contains(j.Details, "task broken") {
		t.Fatalf("job details: got %q, want the task failure in it", j.Details)
	}
}
