package logger

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetOutput(os.Stdout)
	Log.SetLevel(levelFromEnv(os.Getenv("LOG_LEVEL")))
	Log.SetFormatter(formatterFor(os.Getenv("LOG_FORMAT"), isatty.IsTerminal(os.Stdout.Fd())))
}

func levelFromEnv(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// formatterFor picks JSON for log collectors and text for an interactive terminal.
// An explicit LOG_FORMAT always wins.
func formatterFor(format string, terminal bool) logrus.Formatter {
	switch {
	case format == "json", format == "" && !terminal:
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"}
	default:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		}
	}
}
