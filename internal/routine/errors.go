package routine

import "errors"

// Validation and state errors returned to callers. Match with errors.Is;
// call sites wrap them with contextual detail via fmt.Errorf("%w: ...").
//
// Storage/infrastructure failures are returned as plain wrapped errors and
// never match these sentinels, so callers can tell "you did something wrong"
// apart from "the store broke".
var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidState             = errors.New("invalid routine state")
	ErrImmutableTask            = errors.New("task is locked by a superseded stage")
	ErrThresholdNotMet          = errors.New("stage threshold not met")
	ErrSequentialStageViolation = errors.New("stages advance one at a time")
)
