package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// InitLogger configures JSON output on stdout for both Log and the logrus
// standard logger used by package-level calls. Unknown levels fall back to info.
func InitLogger(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	Log = logrus.New()
	for _, l := range []*logrus.Logger{Log, logrus.StandardLogger()} {
		// Output to stdout instead of the default stderr
		l.SetOutput(os.Stdout)
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(lvl)
	}
}
