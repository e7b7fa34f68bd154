package toolforge

import (
	"strings"

	"github.com/gruntwork-io/go-commons/shell"
	"github.com/sirupsen/logrus"
)

// CommandRunner executes an external command and reports failure through its exit status
type CommandRunner interface {
	Run(command string, args ...string) error
}

// ShellRunner runs commands on the local host
type ShellRunner struct {
	WorkingDir string
	Logger     *logrus.Entry
}

// NewShellRunner returns a runner that executes commands in workingDir
func NewShellRunner(workingDir string, logger *logrus.Entry) *ShellRunner {
	return &ShellRunner{WorkingDir: workingDir, Logger: logger}
}

func (r *ShellRunner) Run(command string, args ...string) error {
	if r.Logger != nil {
		r.Logger.Infof("Running: %s", FormatCommandLine(command, args...))
	}

	options := shell.NewShellOptions()
	if r.WorkingDir != "" {
		options.WorkingDir = r.WorkingDir
	}
	return shell.RunShellCommand(options, command, args...)
}

// DryRunner logs command lines without running them
type DryRunner struct {
	Logger *logrus.Entry
}

func (r *DryRunner) Run(command string, args ...string) error {
	if r.Logger != nil {
		r.Logger.Infof("Would run: %s", FormatCommandLine(command, args...))
	}
	return nil
}

// FormatCommandLine renders a command the way an operator would type it
func FormatCommandLine(command string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(command))
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return `""`
	}
	if strings.ContainsAny(arg, " \t\"'*$") {
		return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
	}
	return arg
}
