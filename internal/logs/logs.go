package logs

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger — process-wide logger; Init must run before first use.
var Logger = logrus.New()

type Options struct {
	Level  string // debug|info|warn|error (default info)
	Format string // "json" | "text" (default text)
	File   string // optional log file path; empty = stdout
}

func Init(o Options) {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(o.Level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	switch strings.ToLower(o.Format) {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			Logger.Warnf("log file %s: %v (falling back to stdout)", o.File, err)
		} else {
			out = f
		}
	}
	Logger.SetOutput(out)
}
