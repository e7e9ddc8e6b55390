package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// init configures the global logger when the package is imported: JSON
// output with ISO 8601 timestamps on stdout, level taken from LOG_LEVEL
// when set.
func init() {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}
}

// Logger returns an entry tagged with the originating module and method
// so log lines can be filtered per component.
func Logger(module, method string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"module": module,
		"method": method,
	})
}
