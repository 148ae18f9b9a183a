package jobman

import "testing"

func TestFindDuplicate(t *testing.T) {
	svc := newFakeJobService()
	j, err := NewJob("Execute", &funcRunner{}, svc, Params{"command": "echo hi"})
	if err != nil {
		t.Fatal(err)
	}

	d, err := FindDuplicate(svc, "Execute", Params{"command": "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.UUID != j.UUID {
		t.Fatalf("duplicate: got %v, want %v", d, j.UUID)
	}

	// different params are different work
	d, err = FindDuplicate(svc, "Execute", Params{"command": "echo bye"})
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("duplicate for different params: got %v, want nil", d.UUID)
	}

	// a claimed job no longer counts as a duplicate
	_, err = svc.ClaimJob("node1/abc", []string{"Execute"})
	if err != nil {
		t.Fatal(err)
	}
	d, err = FindDuplicate(svc, "Execute", Params{"command": "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("duplicate for claimed job: got %v, want nil", d.UUID)
	}
}

func TestContentHashIgnoresFieldOrder(t *testing.T) {
	a := map[string]interface{}{"command": "echo hi", "retries": 3}
	b := map[string]interface{}{"retries": 3, "command": "echo hi"}
	ha, err := ContentHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := ContentHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("hashes differ for equal content: %v != %v", ha, hb)
	}
}

func TestContentHashStructAndMapAgree(t *testing.T) {
	type doc struct {
		Command string `json:"command"`
		Retries int    `json:"retries"`
	}
	hs, err := ContentHash(doc{Command: "echo hi", Retries: 3})
	if err != nil {
		t.Fatal(err)
	}
	hm, err := ContentHash(map[string]interface{}{"command": "echo hi", "retries": 3})
	if err != nil {
		t.Fatal(err)
	}
	if hs != hm {
		t.Fatalf("struct and map hashes differ: %v != %v", hs, hm)
	}
}

func TestContentHashSeesValueChange(t *testing.T) {
	ha, err := ContentHash(map[string]interface{}{"command": "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	hb, err := ContentHash(map[string]interface{}{"command": "echo bye"})
	if err != nil {
		t.Fatal(err)
	}
	if ha == hb {
		t.Fatalf("hashes equal for different content: %v", ha)
	}
}

func TestContentHashNested(t *testing.T) {
	a := map[string]interface{}{
		"params": map[string]interface{}{"x": 1, "y": 2},
	}
	b := map[string]interface{}{
		"params": map[string]interface{}{"y": 2, "x": 1},
	}
	ha, err := ContentHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := ContentHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("nested hashes differ for equal content: %v != %v", ha, hb)
	}
}
