package task

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("task not found")
	ErrDuplicateID    = errors.New("duplicate task id")
	ErrTerminal       = errors.New("task already finished")
	ErrTaskActive     = errors.New("task is still running")
	ErrBusy           = errors.New("server busy: too many pending downloads")
)
