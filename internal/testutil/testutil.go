// Package testutil holds helpers shared by the tests of this module.
package testutil

import (
	"flag"
	"testing"

	"github.com/sirupsen/logrus"
)

var runLong = flag.Bool("long", false, "run long/heavy tests")

// RequireLong skips t unless the tests run with -long.
func RequireLong(t *testing.T) {
	t.Helper()
	if !*runLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

// Logger returns a logger that only reports warnings and errors.
func Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}
