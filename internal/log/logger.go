package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger interface defines structured logging methods. Arguments after the
// message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	With(args ...interface{}) Logger
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Stderr     io.Writer
}

// DefaultLogger is the logrus-backed implementation of Logger
type DefaultLogger struct {
	mu     sync.Mutex
	base   *logrus.Logger
	fields logrus.Fields
	colors bool
}

var (
	defaultLogger *DefaultLogger
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	out := cfg.Stderr
	if out == nil {
		out = os.Stderr
	}

	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(cfg.Level.logrus())

	l := &DefaultLogger{base: base, colors: isTerminal(out)}
	l.SetJSONOutput(cfg.JSONOutput)
	return l
}

// Default returns the default logger instance
func Default() *DefaultLogger {
	once.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel, Stderr: os.Stderr})
	})
	return defaultLogger
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsTTY checks if the standard output is a TTY
func IsTTY() bool {
	return isTerminal(os.Stdout)
}

// TerminalWidth returns the width of standard output, or 0 if it is not a
// terminal.
func TerminalWidth() int {
	if !IsTTY() {
		return 0
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// entry splits args into logrus fields. A leading unpaired argument is
// appended to the message.
func (l *DefaultLogger) entry(msg string, args []interface{}) (*logrus.Entry, string) {
	e := logrus.NewEntry(l.base)
	if len(l.fields) > 0 {
		e = e.WithFields(l.fields)
	}
	if len(args)%2 != 0 {
		msg = fmt.Sprintf("%s %v", msg, args[0])
		args = args[1:]
	}
	if len(args) == 0 {
		return e, msg
	}
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return e.WithFields(fields), msg
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	e, msg := l.entry(msg, args)
	e.Debug(msg)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	e, msg := l.entry(msg, args)
	e.Info(msg)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	e, msg := l.entry(msg, args)
	e.Warn(msg)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	e, msg := l.entry(msg, args)
	e.Error(msg)
}

// With returns a logger that adds the given key/value pairs to every
// message. It shares level and output with l.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	fields := make(logrus.Fields, len(l.fields)+len(args)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return &DefaultLogger{base: l.base, fields: fields, colors: l.colors}
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.base.SetLevel(level.logrus())
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enabled {
		l.base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return
	}
	l.base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     l.colors,
		DisableColors:   !l.colors,
	})
}

// Discard returns a logger that drops every message.
func Discard() *DefaultLogger {
	return New(LoggerConfig{Level: ErrorLevel, Stderr: io.Discard})
}

// ProgressSpinner provides a spinner for long-running operations
type ProgressSpinner struct {
	mu       sync.Mutex
	message  string
	spinner  []string
	current  int
	writer   io.Writer
	colors   bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewProgressSpinner creates a new progress spinner writing to stderr
func NewProgressSpinner(message string) *ProgressSpinner {
	return &ProgressSpinner{
		message: message,
		spinner: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		writer:  os.Stderr,
		colors:  isTerminal(os.Stderr),
	}
}

// Start begins the spinner animation. It does nothing when stderr is not
// a terminal.
func (p *ProgressSpinner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.colors || p.stopChan != nil {
		return
	}
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	go p.animate(p.stopChan, p.done)
}

// Stop stops the spinner and clears its line
func (p *ProgressSpinner) Stop() {
	p.mu.Lock()
	stop, done := p.stopChan, p.done
	p.stopChan, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	fmt.Fprint(p.writer, "\r\033[K")
}

// Message updates the spinner message
func (p *ProgressSpinner) Message(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

func (p *ProgressSpinner) animate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			p.draw()
			p.mu.Unlock()
		case <-stop:
			return
		}
	}
}

func (p *ProgressSpinner) draw() {
	spinnerChar := p.spinner[p.current%len(p.spinner)]
	p.current++
	fmt.Fprintf(p.writer, "\r\033[36m%s\033[0m %s", spinnerChar, p.message)
}
