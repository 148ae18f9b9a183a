package jobman

import "time"

// ptr functions are used for creating pointer to const and untyped values,
// which cannot take their address directly.

// ptrString returns a pointer to a string.
func ptrString(v string) *string {
	return &v
}

// ptrInt returns a pointer to an int.
func ptrInt(v int) *int {
	return &v
}

// ptrStatus returns a pointer to a Status.
func ptrStatus(v Status) *Status {
	return &v
}

// ptrTime returns a pointer to a time.Time.
func ptrTime(v time.Time) *time.Time {
	return &v
}
