// Package scheduler runs AfyaLink's periodic jobs on cron expressions, chiefly
// the evening SMS reminder for appointments booked for the next day.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// DefaultReminderCron sends reminders every day at 18:00.
const DefaultReminderCron = "0 18 * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field parser (min, hour, dom, month, dow); panics in jobs are recovered.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// JobCount returns the number of scheduled jobs.
func (s *Scheduler) JobCount() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
