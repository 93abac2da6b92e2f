package session

import "fmt"

// InitiationError reports that a handler exhausted its initiation-retry
// budget without ever reaching StartSession success (spec §4.G "Initiate",
// "otherwise: propagate as task failure").
type InitiationError struct {
	HandlerName string
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("session: handler %q exhausted initiation retries", e.HandlerName)
}

func errInitiationFailed(handlerName string) error {
	return &InitiationError{HandlerName: handlerName}
}
