package assert

import (
	"errors"
	"strings"
	"testing"
)

func recovered(fn func()) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg, _ = r.(string)
		}
	}()
	fn()
	return ""
}

func TestAssertHoldsDoesNotPanic(t *testing.T) {
	if msg := recovered(func() { Assert(true, "never") }); msg != "" {
		t.Fatalf("unexpected panic: %q", msg)
	}
	if msg := recovered(func() { AssertNil(nil, "never") }); msg != "" {
		t.Fatalf("unexpected panic: %q", msg)
	}
}

func TestAssertNilPanicsWithError(t *testing.T) {
	msg := recovered(func() { AssertNil(errors.New("disk full"), "[CORE] open store") })
	if !strings.HasPrefix(msg, "[CORE] open store: ") || !strings.Contains(msg, "disk full") {
		t.Fatalf("panic message = %q", msg)
	}
}
