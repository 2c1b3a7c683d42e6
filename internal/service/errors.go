package service

import "fmt"

// Kind - закрытый набор видов ошибок оркестратора.
type Kind int

const (
	KindNotFound Kind = iota
	KindConflict
	KindValidation
	KindServiceUnavailable
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindValidation:
		return "VALIDATION"
	case KindServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case KindUpstream:
		return "UPSTREAM"
	}
	return "UNKNOWN"
}

// Error - типизированная ошибка с видом и деталями.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unavailablef(format string, args ...interface{}) *Error {
	return &Error{Kind: KindServiceUnavailable, Message: fmt.Sprintf(format, args...)}
}

func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// IsKind проверяет, что ошибка имеет заданный вид.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
