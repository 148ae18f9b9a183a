package sqlite

import (
	"testing"
	"time"

	"github.com/opsfarm/jobman"
)

func testJob(uuid string, created time.Time) *jobman.Job {
	return &jobman.Job{
		UUID:    uuid,
		Name:    "wait a bit",
		Type:    "Wait",
		Status:  jobman.StatusPending,
		Params:  jobman.Params{"duration": float64(3)},
		TTL:     1,
		History: jobman.History{},
		Created: created,
	}
}

func TestAddGetJob(t *testing.T) {
	db := testDB(t)
	s := NewJobService(db)
	j := testJob("j1", time.Now().UTC())
	j.History = jobman.History{
		{Timestamp: time.Now().UTC(), Message: "created", Status: jobman.StatusPending},
	}
	err := s.AddJob(j)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != j.Name {
		t.Fatalf("name: got %v, want %v", got.Name, j.Name)
	}
	if got.Status != jobman.StatusPending {
		t.Fatalf("status: got %v, want %v", got.Status, jobman.StatusPending)
	}
	if got.Params["duration"] != float64(3) {
		t.Fatalf("params: got %v, want duration 3", got.Params)
	}
	if got.Started != nil {
		t.Fatalf("started: got %v, want nil", got.Started)
	}
	if len(got.History) != 1 {
		t.Fatalf("history: got %d entries, want 1", len(got.History))
	}
	if got.History[0].Message != "created" {
		t.Fatalf("history message: got %q, want %q", got.History[0].Message, "created")
	}

	_, err = s.GetJob("no-such-job")
	if err == nil {
		t.Fatalf("GetJob of unknown uuid: want error, got nil")
	}
}

func TestUpdateJobAppendsHistory(t *testing.T) {
	db := testDB(t)
	s := NewJobService(db)
	err := s.AddJob(testJob("j1", time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}
	running := jobman.StatusRunning
	completion := 40
	for i := 0; i < 3; i++ {
		err = s.UpdateJob(jobman.JobUpdater{
			UUID:       "j1",
			Status:     &running,
			Completion: &completion,
			AppendHistory: &jobman.HistoryEntry{
				Timestamp:  time.Now().UTC(),
				Message:    "working",
				Completion: completion,
				Status:     running,
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != jobman.StatusRunning {
		t.Fatalf("status: got %v, want %v", got.Status, jobman.StatusRunning)
	}
	if got.Completion != 40 {
		t.Fatalf("completion: got %d, want 40", got.Completion)
	}
	if len(got.History) != 3 {
		t.Fatalf("history: got %d entries, want 3", len(got.History))
	}
}

func TestUpdateJobClearsFinished(t *testing.T) {
	db := testDB(t)
	s := NewJobService(db)
	err := s.AddJob(testJob("j1", time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}
	errored := jobman.StatusError
	finished := time.Now().UTC()
	err = s.UpdateJob(jobman.JobUpdater{UUID: "j1", Status: &errored, Finished: &finished})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Finished == nil {
		t.Fatalf("finished: got nil, want set")
	}

	// a re-run moves the job back to running; the old finish time goes
	running := jobman.StatusRunning
	err = s.UpdateJob(jobman.JobUpdater{UUID: "j1", Status: &running, ClearFinished: true})
	if err != nil {
		t.Fatal(err)
	}
	got, err = s.GetJob("j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != jobman.StatusRunning {
		t.Fatalf("status: got %v, want %v", got.Status, jobman.StatusRunning)
	}
	if got.Finished != nil {
		t.Fatalf("finished: got %v, want nil", got.Finished)
	}
}

func TestUpdateJobNeedsParameter(t *testing.T) {
	db := testDB(t)
	s := NewJobService(db)
	err := s.AddJob(testJob("j1", time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}
	err = s.UpdateJob(jobman.JobUpdater{UUID: "j1"})
	if err == nil {
		t.Fatalf("empty update: want error, got nil")
	}
}

func TestFindJobs(t *testing.T) {
	db := testDB(t)
	s := NewJobService(db)
	now := time.Now().UTC()
	a := testJob("j1", now)
	b := testJob("j2", now.Add(time.Second))
	b.Type = "Execute"
	for _, j := range []*jobman.Job{a, b} {
		err := s.AddJob(j)
		if err != nil {
			t.Fatal(err)
		}
	}
	jobs, err := s.FindJobs(jobman.JobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	// oldest first
	if jobs[0].UUID != "j1" || jobs[1].UUID != "j2" {
		t.Fatalf("order: got %v, %v, want j1, j2", jobs[0].UUID, jobs[1].UUID)
	}
	jobs, err = s.FindJobs(jobman.JobFilter{Type: "Execute"})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].UUID != "j2" {
		t.Fatalf("filter by type: got %v, want [j2]", jobs)
	}
}

func TestClaimJob(t *testing.T) {
	db := testDB(t)
	s := NewJobService(db)
	now := time.Now().UTC()
	for i, uuid := range []string{"j1", "j2"} {
		err := s.AddJob(testJob(uuid, now.Add(time.Duration(i)*time.Second)))
		if err != nil {
			t.Fatal(err)
		}
	}

	j, err := s.ClaimJob("node1/abc", []string{"Wait"})
	if err != nil {
		t.Fatal(err)
	}
	if j.UUID != "j1" {
		t.Fatalf("first claim: got %v, want j1", j.UUID)
	}
	if j.Owner != "node1/abc" {
		t.Fatalf("owner: got %v, want node1/abc", j.Owner)
	}

	j, err = s.ClaimJob("node1/abc", []string{"Wait"})
	if err != nil {
		t.Fatal(err)
	}
	if j.UUID != "j2" {
		t.Fatalf("second claim: got %v, want j2", j.UUID)
	}

	_, err = s.ClaimJob("node1/abc", []string{"Wait"})
	if err != jobman.ErrNoJob {
		t.Fatalf("third claim: got %v, want ErrNoJob", err)
	}
	_, err = s.ClaimJob("node1/abc", []string{"Execute"})
	if err != jobman.ErrNoJob {
		t.Fatalf("claim of absent type: got %v, want ErrNoJob", err)
	}
	_, err = s.ClaimJob("", []string{"Wait"})
	if err == nil {
		t.Fatalf("claim without owner: want error, got nil")
	}
}
