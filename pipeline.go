package main

import (
	"fmt"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/sirupsen/logrus"
)

// deployStep is one fallible stage of a deploy run
type deployStep struct {
	name string
	run  func() error
}

// stepError records which step halted the pipeline
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("step %s failed: %s", e.step, e.err)
}

func (e *stepError) Unwrap() error {
	return e.err
}

// runSteps runs steps in order and stops at the first failure. Nothing after a failed step runs.
func runSteps(logger *logrus.Entry, steps []deployStep) error {
	for i, step := range steps {
		logger.Infof("[%d/%d] %s", i+1, len(steps), step.name)
		if err := step.run(); err != nil {
			return errors.WithStackTrace(&stepError{step: step.name, err: err})
		}
	}
	return nil
}

// failedStep returns the step error inside err, or nil if err did not come from runSteps
func failedStep(err error) *stepError {
	stepErr, ok := errors.Unwrap(err).(*stepError)
	if !ok {
		return nil
	}
	return stepErr
}
