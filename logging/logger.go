package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Megabytes per rotated log file.
const maxLogFileSize = 50

type Options struct {
	File   string
	Stdout bool
	Level  string
	JSON   bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Configures the package level logrus logger and returns a closer for the log file, if any. Without a
// file logs only go to stdout, otherwise they go to a rotated file and, if asked, to stdout as well.
func Setup(opts Options) io.Closer {
	if opts.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetLevel(GetLevel(opts.Level))

	if opts.File == "" {
		logrus.SetOutput(os.Stdout)
		logrus.Debugln("logging: stdout only")
		return nopCloser{}
	}

	file := opts.File
	if !strings.HasSuffix(file, ".log") {
		file += ".log"
	}
	rotated := &lumberjack.Logger{
		Filename: file,
		MaxSize:  maxLogFileSize,
		Compress: true,
	}

	if opts.Stdout {
		logrus.SetOutput(NewCombinedWriter(os.Stdout, rotated))
	} else {
		logrus.SetOutput(rotated)
	}
	logrus.Debugf("logging: writing to [%s], stdout %t", file, opts.Stdout)
	return rotated
}

// Parses a logrus level name, anything unknown falls back to info.
func GetLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// Writes every message to all writers. A failing writer does not stop the others, and the write only
// counts as complete if every writer took all of p.
type CombinedWriter struct {
	Writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{Writers: writers}
}

func (cw *CombinedWriter) Write(p []byte) (int, error) {
	n := len(p)
	var err error
	for _, w := range cw.Writers {
		written, werr := w.Write(p)
		if werr == nil && written < len(p) {
			werr = io.ErrShortWrite
		}
		if werr != nil {
			err = multierr.Append(err, werr)
			n = min(n, written)
		}
	}
	return n, err
}
