package jobman

import "errors"

// ConfigurationError is a startup-time fatal error.
// A node that gets one must not join the pool; it is never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// ErrNoJob is returned from JobService.ClaimJob when no pending job
// matches the requested types. It is not a failure, just an empty claim.
var ErrNoJob = errors.New("no claimable job")
