package nl2q

import "fmt"

type ErrorKind string

const (
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindSchemaLoad      ErrorKind = "schema_load"
	KindSchemaEmpty     ErrorKind = "schema_empty"
	KindModelInvocation ErrorKind = "model_invocation"
	KindParse           ErrorKind = "parse"
	KindSanitization    ErrorKind = "sanitization"
	KindExecution       ErrorKind = "execution"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
