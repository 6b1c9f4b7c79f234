package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// FormatOption modifies the output of the Format function.
type FormatOption func(c *formatConfig)

type formatConfig struct {
	withStack bool
}

// FormatWithStack appends the error origin "[file:line]" to each message.
func FormatWithStack() FormatOption {
	return func(c *formatConfig) {
		c.withStack = true
	}
}

// Format converts the error to a string.
// MultiError and NestedError are formatted as an indented bullet list.
func Format(err error, opts ...FormatOption) string {
	c := formatConfig{}
	for _, o := range opts {
		o(&c)
	}
	w := newWriter(c)
	w.writeError(0, err)
	return w.String()
}

func (c formatConfig) formatMessage(msg string, trace StackTrace) string {
	if c.withStack && len(trace) > 0 {
		frame := trace[0]
		if fn := runtime.FuncForPC(frame); fn != nil {
			file, line := fn.FileLine(frame)
			msg = fmt.Sprintf("%s [%s:%d]", msg, file, line)
		}
	}
	return msg
}

func formatPrefix(prefix string) string {
	return strings.TrimRight(prefix, ".,:") + ":"
}
