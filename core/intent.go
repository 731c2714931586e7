package core

import "fmt"

// Well known intent and result keys.
const (
	KeyIntent    = "intent"
	KeyIntentID  = "intent_id"
	KeyArgs      = "args"
	KeyWorkflow  = "workflow"
	KeyStatus    = "status"
	KeyMessage   = "message"
	KeyErrorKind = "error_kind"
)

// Result status values. Handlers may return other domain specific success
// tags such as "planned" or "acted".
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Intent is a typed unit of requested work. It is a structured map so that it
// survives any broker transport unchanged.
type Intent map[string]any

// Type returns the intent type used to resolve a handler.
func (i Intent) Type() string { return stringValue(i[KeyIntent]) }

// ID returns the intent id, or "" if absent.
func (i Intent) ID() string { return stringValue(i[KeyIntentID]) }

// Args returns the free form args field.
func (i Intent) Args() any { return i[KeyArgs] }

// Bool reports whether key holds a truthy value.
func (i Intent) Bool(key string) bool {
	switch v := i[key].(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case int:
		return v != 0
	case float64:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// String returns the string value of key or "".
func (i Intent) String(key string) string { return stringValue(i[key]) }

// Clone returns a deep copy of the intent.
func (i Intent) Clone() Intent { return Intent(CloneMap(i)) }

// NewIntent builds an intent of the given type with a fresh id.
func NewIntent(intentType string, args any) Intent {
	return Intent{KeyIntent: intentType, KeyIntentID: NewID(), KeyArgs: args}
}

// Result is the structured map every handler invocation resolves to. It always
// carries a status.
type Result map[string]any

// Status returns the status tag.
func (r Result) Status() string { return stringValue(r[KeyStatus]) }

// IsError reports whether the result carries the error status.
func (r Result) IsError() bool { return r.Status() == StatusError }

// Message returns the error or informational message.
func (r Result) Message() string { return stringValue(r[KeyMessage]) }

// IntentID returns the correlated intent id.
func (r Result) IntentID() string { return stringValue(r[KeyIntentID]) }

// OK builds a success result with the given extra fields.
func OK(fields map[string]any) Result {
	r := Result{KeyStatus: StatusOK}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

// ErrorResult converts err into a structured error result.
func ErrorResult(err error) Result {
	return Result{
		KeyStatus:    StatusError,
		KeyMessage:   err.Error(),
		KeyErrorKind: ErrorKind(err),
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
