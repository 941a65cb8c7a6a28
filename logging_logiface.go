package desim

import (
	"fmt"
	"strings"

	"github.com/joeycumines/logiface"
)

// textEvent is a minimal logiface.Event that renders as "key=value"
// pairs plus a message, handed to an arbitrary sink function. Grounded
// on eventloop/coverage_extra_test.go's testEvent, generalized from a
// test double into a real (if deliberately simple) Event
// implementation, since wiring logiface needs at least one concrete
// Event type and this package has no existing JSON/text event of its
// own to reuse.
type textEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	msg    string
	fields []string
}

func (e *textEvent) Level() logiface.Level { return e.level }

func (e *textEvent) AddField(key string, val any) {
	e.fields = append(e.fields, fmt.Sprintf("%s=%v", key, val))
}

func (e *textEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

// textEventFactory produces textEvent instances and writes them out via
// sink once fully built.
type textEventFactory struct {
	sink func(line string)
}

func (f *textEventFactory) NewEvent(level logiface.Level) *textEvent {
	return &textEvent{level: level}
}

func (f *textEventFactory) Write(e *textEvent) error {
	var b strings.Builder
	b.WriteString(e.level.String())
	b.WriteByte(' ')
	b.WriteString(e.msg)
	for _, kv := range e.fields {
		b.WriteByte(' ')
		b.WriteString(kv)
	}
	f.sink(b.String())
	return nil
}

// LogifaceLogger adapts a logiface.Logger[*textEvent] to the desim
// Logger interface, so a single ambient logging configuration can be
// shared between desim's own kernel diagnostics and an application's
// structured event logging.
type LogifaceLogger struct {
	logger *logiface.Logger[*textEvent]
}

// NewLogifaceLogger builds a LogifaceLogger that writes formatted lines
// to sink (e.g. a *log.Logger's Println, or os.Stderr via fmt.Fprintln).
func NewLogifaceLogger(sink func(line string)) *LogifaceLogger {
	factory := &textEventFactory{sink: sink}
	logger := logiface.New[*textEvent](
		logiface.WithEventFactory[*textEvent](factory),
		logiface.WithWriter[*textEvent](factory),
	)
	return &LogifaceLogger{logger: logger}
}

func (l *LogifaceLogger) Log(level LogLevel, msg string, fields map[string]any) {
	b := l.logger.Build(toLogifaceLevel(level))
	for k, v := range fields {
		b = b.Any(k, v)
	}
	b.Log(msg)
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
