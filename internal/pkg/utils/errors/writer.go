package errors

import (
	"strings"
)

const (
	Indent = "  "
	Bullet = "- "
)

type writer struct {
	config formatConfig
	out    strings.Builder
}

func newWriter(c formatConfig) *writer {
	return &writer{config: c}
}

func (w *writer) String() string {
	return w.out.String()
}

func (w *writer) writeError(level int, err error) {
	if err == nil {
		panic("error cannot be nil")
	}

	var trace StackTrace
	if v, ok := err.(stackTracer); ok { // nolint: errorlint
		trace = v.StackTrace()
	}

	// nolint: errorlint
	switch v := err.(type) {
	case nestedErrorGetter:
		w.writeNested(level, v.MainError(), v.WrappedErrors())
	case multiErrorGetter:
		w.writeList(level, v.WrappedErrors())
	case *withStack:
		w.write(w.config.formatMessage(v.error.Error(), trace))
	default:
		// Multi-line messages are aligned to the current level
		lines := strings.Split(w.config.formatMessage(err.Error(), trace), "\n")
		w.write(lines[0])
		for _, line := range lines[1:] {
			w.write("\n" + strings.Repeat(Indent, level) + line)
		}
	}
}

func (w *writer) writeNested(level int, main error, errs []error) {
	mainWriter := newWriter(w.config)
	mainWriter.writeError(level, main)
	mainStr := mainWriter.String()
	if len(errs) == 0 {
		w.write(mainStr)
		return
	}

	subWriter := newWriter(w.config)
	subWriter.writeList(level, errs)
	subStr := subWriter.String()

	w.write(formatPrefix(mainStr))
	if len(errs) > 1 || len(mainStr)+len(subStr) > 60 || strings.Contains(subStr, "\n") {
		w.write("\n")
		if len(errs) == 1 {
			w.write(strings.Repeat(Indent, level) + Bullet)
			w.writeError(level+1, errs[0])
		} else {
			w.writeList(level, errs)
		}
	} else {
		w.write(" " + subStr)
	}
}

func (w *writer) writeList(level int, errs []error) {
	bullets := len(errs) > 1
	last := len(errs) - 1
	for i, err := range errs {
		if bullets {
			w.write(strings.Repeat(Indent, level) + Bullet)
		}
		w.writeError(level+1, err)
		if i != last {
			w.write("\n")
		}
	}
}

func (w *writer) write(s string) {
	_, _ = w.out.WriteString(s)
}
