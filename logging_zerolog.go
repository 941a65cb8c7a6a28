package desim

import "github.com/rs/zerolog"

// ZerologLogger adapts a zerolog.Logger to the Logger interface,
// grounded on cuemby-warren/pkg/log's zerolog-backed leveled logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log}
}

func (z *ZerologLogger) Log(level LogLevel, msg string, fields map[string]any) {
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = z.log.Debug()
	case LevelWarn:
		ev = z.log.Warn()
	case LevelError:
		ev = z.log.Error()
	default:
		ev = z.log.Info()
	}
	ev.Fields(fields).Msg(msg)
}
