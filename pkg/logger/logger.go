package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/sirupsen/logrus"
)

// Logger is the logging capability handed to every migration component.
type Logger interface {
	Info(format string, v ...interface{})
	Warning(format string, v ...interface{})
	Error(format string, v ...interface{})
	Success(format string, v ...interface{})
	DryRun(format string, v ...interface{})
}

var (
	base    *logrus.Logger
	logFile *os.File
)

// InitLogger sets up the process logger writing to stdout and, when
// filename is set, appending to that file as well.
func InitLogger(filename string, level string) error {
	var out io.Writer = os.Stdout
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logFile = f
		out = io.MultiWriter(os.Stdout, logFile)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	base = l
	return nil
}

func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Base returns the process logger, creating a stdout one on first use.
func Base() *logrus.Logger {
	if base == nil {
		base = logrus.New()
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return base
}

func Info(format string, v ...interface{}) {
	Base().Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	Base().Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	Base().Errorf(format, v...)
}

// RunLog keeps the append-only entry list of one migration run and mirrors
// every entry to logrus.
type RunLog struct {
	mu      sync.Mutex
	entries []models.LogEntry
	sink    *logrus.Entry
	now     func() time.Time
}

// NewRunLog creates a run log mirrored to sink. A nil sink uses Base().
func NewRunLog(sink *logrus.Entry) *RunLog {
	if sink == nil {
		sink = logrus.NewEntry(Base())
	}
	return &RunLog{sink: sink, now: time.Now}
}

// NewMemory returns a run log whose mirror output is discarded.
func NewMemory() *RunLog {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewRunLog(logrus.NewEntry(l))
}

func (r *RunLog) Info(format string, v ...interface{}) {
	r.append(models.LevelInfo, format, v...)
}

func (r *RunLog) Warning(format string, v ...interface{}) {
	r.append(models.LevelWarning, format, v...)
}

func (r *RunLog) Error(format string, v ...interface{}) {
	r.append(models.LevelError, format, v...)
}

func (r *RunLog) Success(format string, v ...interface{}) {
	r.append(models.LevelSuccess, format, v...)
}

func (r *RunLog) DryRun(format string, v ...interface{}) {
	r.append(models.LevelDryRun, format, v...)
}

// Entries returns a copy of the log so far.
func (r *RunLog) Entries() []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many entries have the given level.
func (r *RunLog) Count(level models.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (r *RunLog) append(level models.Level, format string, v ...interface{}) {
	entry := models.LogEntry{
		Time:    r.now(),
		Level:   level,
		Message: fmt.Sprintf(format, v...),
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	mirrored := r.sink.WithField("level_tag", string(level))
	switch level {
	case models.LevelError:
		mirrored.Error(entry.Message)
	case models.LevelWarning:
		mirrored.Warn(entry.Message)
	default:
		mirrored.Info(entry.Message)
	}
}
