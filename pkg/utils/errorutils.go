package utils

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
)

// MatchErrorSubstring walks err's chain and returns the first needle found in any
// message. Matching is case-insensitive.
func MatchErrorSubstring(err error, needles ...string) (string, bool) {
	for ; err != nil; err = errors.Unwrap(err) {
		msg := strings.ToLower(err.Error())
		for _, needle := range needles {
			if strings.Contains(msg, strings.ToLower(needle)) {
				return needle, true
			}
		}
	}
	return "", false
}

// WrapIfNotNil prefixes err with the calling function and any context strings.
func WrapIfNotNil(err error, context ...string) error {
	if err == nil {
		return nil
	}

	callerName := "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			callerName = shortFuncName(fn.Name())
		}
	}

	prefix := strings.Join(append([]string{callerName}, context...), " - ")
	return fmt.Errorf("%s: %w", prefix, err)
}

// shortFuncName drops the module path so wrapped messages read "extract.(*Pipeline).Extract".
func shortFuncName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// PrintStack logs the goroutine stack above its caller, one frame per line. Call it from
// the deferred function that recovered.
func PrintStack(title string, log logging.Logger) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	log.Errorf("%s stack trace:", title)
	for {
		frame, more := frames.Next()
		log.Errorf("    %s (%s:%d)", shortFuncName(frame.Function), frame.File, frame.Line)
		if !more {
			break
		}
	}
}
