// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"bufio"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

// DebugLogger stores all messages in memory, it is used in tests.
// Each message is one JSON line.
type DebugLogger interface {
	Logger
	Truncate()
	AllMessages() string
	DebugMessages() string
	InfoMessages() string
	WarnMessages() string
	ErrorMessages() string
	WarnAndErrorMessages() string
	CompareJSONMessages(expected string) error
	AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool
}

type debugLogger struct {
	Logger
	out *memoryWriter
}

type memoryWriter struct {
	lock *sync.Mutex
	buf  strings.Builder
}

func NewDebugLogger() DebugLogger {
	out := &memoryWriter{lock: &sync.Mutex{}}
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	return &debugLogger{
		Logger: loggerFromZapCore(zapcore.NewCore(encoder, zapcore.AddSync(out), DebugLevel)),
		out:    out,
	}
}

func (l *debugLogger) Truncate() {
	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	l.out.buf.Reset()
}

func (l *debugLogger) AllMessages() string {
	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	return l.out.buf.String()
}

func (l *debugLogger) DebugMessages() string {
	return l.filter(`"level":"debug"`)
}

func (l *debugLogger) InfoMessages() string {
	return l.filter(`"level":"info"`)
}

func (l *debugLogger) WarnMessages() string {
	return l.filter(`"level":"warn"`)
}

func (l *debugLogger) ErrorMessages() string {
	return l.filter(`"level":"error"`)
}

func (l *debugLogger) WarnAndErrorMessages() string {
	return l.filter(`"level":"warn"`, `"level":"error"`)
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}

func (l *debugLogger) filter(levels ...string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(l.AllMessages()))
	for scanner.Scan() {
		line := scanner.Text()
		for _, level := range levels {
			if strings.Contains(line, level) {
				out.WriteString(line)
				out.WriteString("\n")
				break
			}
		}
	}
	return out.String()
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.buf.Write(p)
}
