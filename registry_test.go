package jobman

import (
	"context"
	"reflect"
	"testing"
)

func TestRegister(t *testing.T) {
	r := NewRegistry()
	err := r.Register("Wait", func() Runner { return &WaitJob{} })
	if err != nil {
		t.Fatal(err)
	}
	err = r.Register("Wait", func() Runner { return &WaitJob{} })
	if err == nil {
		t.Fatalf("duplicate register: want error, got nil")
	}
	err = r.Register("", func() Runner { return &WaitJob{} })
	if err == nil {
		t.Fatalf("empty name: want error, got nil")
	}
	err = r.Register("Broken", nil)
	if err == nil {
		t.Fatalf("nil factory: want error, got nil")
	}
	err = r.Register("Broken", func() Runner { return nil })
	if err == nil {
		t.Fatalf("factory producing no runner: want error, got nil")
	}
}

func TestTypesSorted(t *testing.T) {
	r := NewRegistry()
	err := RegisterExamples(r)
	if err != nil {
		t.Fatal(err)
	}
	got := r.Types()
	want := []string{"Execute", "Wait"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Types: got %v, want %v", got, want)
	}
}

func TestRunnerIsFresh(t *testing.T) {
	r := NewRegistry()
	err := RegisterExamples(r)
	if err != nil {
		t.Fatal(err)
	}
	a, err := r.Runner("Wait")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Runner("Wait")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two runners share state: %v", a)
	}
	_, err = r.Runner("Unknown")
	if err == nil {
		t.Fatalf("unknown type: want error, got nil")
	}
}

func TestRegistryNewJob(t *testing.T) {
	r := NewRegistry()
	err := RegisterExamples(r)
	if err != nil {
		t.Fatal(err)
	}
	svc := newFakeJobService()
	j, err := r.NewJob("Wait", svc, Params{"duration": float64(3)})
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != StatusPending {
		t.Fatalf("status: got %v, want %v", j.Status, StatusPending)
	}
	got, err := svc.GetJob(j.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "Wait" {
		t.Fatalf("stored type: got %v, want Wait", got.Type)
	}
	// the record is claimable the moment it exists, so the params must
	// be in it from the start, not patched in afterwards
	if got.Params["duration"] != float64(3) {
		t.Fatalf("stored params: got %v, want duration 3", got.Params)
	}
	if svc.nupdates != 0 {
		t.Fatalf("job creation issued %d updates, want 0", svc.nupdates)
	}
	_, err = r.NewJob("Unknown", svc, nil)
	if err == nil {
		t.Fatalf("NewJob of unknown type: want error, got nil")
	}
}

func TestBuilder(t *testing.T) {
	r := NewRegistry()
	err := Builder{Name: "Noop"}.Register(r)
	if err == nil {
		t.Fatalf("builder without process: want error, got nil")
	}

	var steps []string
	err = Builder{
		Name: "Steps",
		Pre: func(ctx context.Context, j *Job) error {
			steps = append(steps, "pre")
			return nil
		},
		Process: func(ctx context.Context, j *Job) error {
			steps = append(steps, "process")
			return nil
		},
		Post: func(ctx context.Context, j *Job) error {
			steps = append(steps, "post")
			return nil
		},
	}.Register(r)
	if err != nil {
		t.Fatal(err)
	}
	svc := newFakeJobService()
	j, err := r.NewJob("Steps", svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = j.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"pre", "process", "post"}
	if !reflect.DeepEqual(steps, want) {
		t.Fatalf("steps: got %v, want %v", steps, want)
	}
	if j.Status != StatusSuccess {
		t.Fatalf("status: got %v, want %v", j.Status, StatusSuccess)
	}
}
