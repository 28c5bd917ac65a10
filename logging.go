package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// setupLogging routes logrus to a file, since stdout belongs to the TUI.
// Without a path all logging is discarded. Returns a closer for the log file.
func setupLogging(path string, verbose bool) (func(), error) {
	logrus.SetOutput(io.Discard)
	if path == "" {
		return func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logrus.SetOutput(file)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	return func() { _ = file.Close() }, nil
}
