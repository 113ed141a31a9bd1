// Package common provides structured logging infrastructure shared across
// the BFF's packages, built on logrus.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stderr for error level and
// stdout for everything else, so container log collectors can treat the two
// streams differently.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-level logger other helpers in this package default
// to when no logger is supplied explicitly.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
