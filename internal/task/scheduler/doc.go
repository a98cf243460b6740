// Package scheduler triggers named maintenance jobs on cron schedules.
// Jobs run with a per-job timeout and never overlap with themselves.
package scheduler
