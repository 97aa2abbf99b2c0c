// Package assert panics on broken start-up invariants.
package assert

import "fmt"

// Assert panics with msg when condition does not hold. Extra values are
// appended to the message.
func Assert(condition bool, msg string, other ...any) {
	if condition {
		return
	}
	if len(other) > 0 {
		msg = msg + ": " + fmt.Sprint(other...)
	}
	panic(msg)
}

// AssertNil panics when err is non-nil, including err in the message.
func AssertNil(err error, msg string, other ...any) {
	if err == nil {
		return
	}
	Assert(false, msg, append([]any{err}, other...)...)
}
