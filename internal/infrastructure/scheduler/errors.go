package scheduler

import "errors"

// Scheduler errors
var (
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	ErrCycleInProgress     = errors.New("sync cycle already in progress for this partner")
	ErrPartnerNotScheduled = errors.New("partner has no sync configuration")
)
