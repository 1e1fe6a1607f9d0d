package ports

import "time"

// SchedulerService arms one-shot jobs, used to trigger refund attempts the
// moment a leg's timelock expires.
type SchedulerService interface {
	Start()
	Stop()

	// ScheduleAt runs fn once at the given time, replacing any job armed
	// under the same name.
	ScheduleAt(name string, at time.Time, fn func()) error

	// Cancel removes the job armed under name, if any.
	Cancel(name string)

	// NextRun reports when the named job will fire.
	NextRun(name string) (time.Time, bool)
}
