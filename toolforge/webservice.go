package toolforge

import (
	"fmt"
	"path/filepath"
)

const (
	DefaultWebserviceCommand = "webservice"
	DefaultBackend           = "kubernetes"
	DefaultWebserviceType    = "golang111"
)

// Webservice drives the process manager that keeps the web server running
type Webservice struct {
	Command string
	Backend string
	Type    string
	Runner  CommandRunner
}

// NewWebservice returns a Webservice with the default backend and type
func NewWebservice(runner CommandRunner) *Webservice {
	return &Webservice{
		Command: DefaultWebserviceCommand,
		Backend: DefaultBackend,
		Type:    DefaultWebserviceType,
		Runner:  runner,
	}
}

// Restart replaces the running web server with binary. Success is the command's exit status;
// there is no readiness probe.
func (w *Webservice) Restart(binary string) error {
	if !filepath.IsAbs(binary) {
		return fmt.Errorf("webservice binary must be an absolute path, got %s", binary)
	}

	args := []string{fmt.Sprintf("--backend=%s", w.Backend), w.Type, "restart", binary}
	if err := w.Runner.Run(w.Command, args...); err != nil {
		return fmt.Errorf("%s restart: %w", w.Command, err)
	}
	return nil
}
