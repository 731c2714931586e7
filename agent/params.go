package agent

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// param reads key from the intent's args map, then from the intent itself.
// Workflow steps carry their payload at the top level.
func param(intent core.Intent, key string) (any, bool) {
	if args, ok := intent.Args().(map[string]any); ok {
		if v, ok := args[key]; ok {
			return v, true
		}
	}
	v, ok := intent[key]
	return v, ok
}

func stringParam(intent core.Intent, key string) string {
	v, _ := param(intent, key)
	s, _ := v.(string)
	return s
}

func requireString(intent core.Intent, key string) (string, error) {
	s := stringParam(intent, key)
	if s == "" {
		return "", &core.ValidationError{Field: key, Reason: "is required"}
	}
	return s, nil
}

func intParam(intent core.Intent, key string) int {
	v, _ := param(intent, key)
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// durationParam accepts a Go duration string or a number of seconds.
func durationParam(intent core.Intent, key string) (time.Duration, error) {
	v, ok := param(intent, key)
	if !ok || v == nil {
		return 0, nil
	}
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, &core.ValidationError{Field: key, Reason: err.Error()}
		}
		return d, nil
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case time.Duration:
		return t, nil
	default:
		return 0, &core.ValidationError{Field: key, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}
