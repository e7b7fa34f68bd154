package toolforge

import "fmt"

const (
	DefaultJobsCommand = "toolforge-jobs"

	DefaultJobName     = "builder"
	DefaultJobImage    = "tf-golang111"
	DefaultJobSchedule = "59 15 * * *"
)

// Job is a recurring job as registered with the job scheduler
type Job struct {
	Name     string
	Command  string // full command line the scheduler executes
	Image    string
	Schedule string // five-field cron expression, UTC
}

// Scheduler drives the job-scheduling service CLI
type Scheduler struct {
	Command string
	Runner  CommandRunner
}

// NewScheduler returns a Scheduler using the toolforge-jobs CLI
func NewScheduler(runner CommandRunner) *Scheduler {
	return &Scheduler{Command: DefaultJobsCommand, Runner: runner}
}

// Flush cancels every job on the account, not only the ones this tool registers.
func (s *Scheduler) Flush() error {
	if err := s.Runner.Run(s.Command, "flush"); err != nil {
		return fmt.Errorf("%s flush: %w", s.Command, err)
	}
	return nil
}

// Run registers job. An existing registration with the same name must already have been flushed.
func (s *Scheduler) Run(job Job) error {
	if job.Name == "" || job.Command == "" {
		return fmt.Errorf("job needs a name and a command")
	}

	args := []string{"run", job.Name, "--command", job.Command}
	if job.Image != "" {
		args = append(args, "--image", job.Image)
	}
	if job.Schedule != "" {
		args = append(args, "--schedule", job.Schedule)
	}

	if err := s.Runner.Run(s.Command, args...); err != nil {
		return fmt.Errorf("%s run %s: %w", s.Command, job.Name, err)
	}
	return nil
}
