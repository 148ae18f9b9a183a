package jobman

import "log"

// Log correlation contract: every job line carries
// job_type, job_uuid and job_status; task lines add task.
// External log processors depend on this shape.

func (j *Job) logf(format string, args ...interface{}) {
	args = append([]interface{}{j.logctx, j.Status}, args...)
	log.Printf("%v job_status=%v - "+format, args...)
}

func (t *Task) logf(format string, args ...interface{}) {
	args = append([]interface{}{t.logctx, t.job.Status}, args...)
	log.Printf("%v job_status=%v - "+format, args...)
}
