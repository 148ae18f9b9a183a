package jobman

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ContentHash computes a deterministic digest of a document's externally
// visible fields, for content-addressed identity and deduplication of
// job and task definitions. It is not a security primitive.
//
// The document is serialized to canonical JSON: keys sorted
// lexicographically at every nesting level, unexported fields dropped.
// Two documents with the same field values hash identically whatever
// order the fields were set in; changing any value changes the hash.
// The digest is rendered URL-safe without padding.
func ContentHash(doc interface{}) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	// Round-trip through interface{} so every object becomes a map,
	// and re-marshaling emits its keys sorted.
	var v interface{}
	err = json.Unmarshal(b, &v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	sum := sha1.Sum(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// FindDuplicate returns a pending, unowned job of the given type whose
// parameters hash to the same content as params, or nil when there is
// none. Ordering the same work twice is usually an accident; callers
// can point at the existing job instead of creating another one.
func FindDuplicate(svc JobService, typeName string, params Params) (*Job, error) {
	if params == nil {
		params = Params{}
	}
	want, err := ContentHash(map[string]interface{}{"type": typeName, "params": params})
	if err != nil {
		return nil, err
	}
	jobs, err := svc.FindJobs(JobFilter{Type: typeName, Status: StatusPending})
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.Owner != "" {
			continue
		}
		h, err := ContentHash(map[string]interface{}{"type": j.Type, "params": j.Params})
		if err != nil {
			return nil, err
		}
		if h == want {
			return j, nil
		}
	}
	return nil, nil
}
