package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrStageUnavailable matches every failure of a stage's external dependency.
	ErrStageUnavailable = errors.New("stage unavailable")
	// ErrConfiguration matches every pipeline construction failure.
	ErrConfiguration = errors.New("pipeline configuration")
)

// StageError wraps the failure of an external call made by a stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrStageUnavailable }

// ConfigError reports an enabled stage that lacks what it needs to run.
type ConfigError struct {
	Stage  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }
