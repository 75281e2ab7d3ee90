// Package logging writes the simulation's event lines.
//
// Every line has the form
//
//	<unix seconds>\t[<role>] [<severity>] <message>
//
// where role is SERVER for the round controller and "CLIENT #n" for worker n.
// Lines go through a stdlib log.Logger, which serializes concurrent writers.
package logging

import (
	"fmt"
	"io"
	"log"
	"time"
)

// Severity tags the importance of a line.
type Severity string

const (
	// Info marks routine progress: new rounds, submitted guesses.
	Info Severity = "INFO"
	// OK marks a recovered password.
	OK Severity = "OK"
	// Error marks timeouts, wrong guesses and fatal conditions.
	Error Severity = "ERROR"
)

// RoleServer is the role tag of the round controller.
const RoleServer = "SERVER"

// Logger writes role- and severity-tagged lines.
type Logger struct {
	out *log.Logger
	now func() time.Time
}

// New returns a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{
		out: log.New(w, "", 0),
		now: time.Now,
	}
}

// Discard returns a Logger that drops every line.
func Discard() *Logger {
	return New(io.Discard)
}

// WithClock returns a copy of l that reads time from now. Used by tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	return &Logger{out: l.out, now: now}
}

// Server writes a line tagged SERVER.
func (l *Logger) Server(sev Severity, format string, args ...any) {
	l.emit(RoleServer, sev, format, args...)
}

// Client writes a line tagged CLIENT #id.
func (l *Logger) Client(id int, sev Severity, format string, args ...any) {
	l.emit(ClientRole(id), sev, format, args...)
}

// ClientRole returns the role tag of worker id.
func ClientRole(id int) string {
	return fmt.Sprintf("CLIENT #%d", id)
}

func (l *Logger) emit(role string, sev Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%d\t[%s] [%s] %s", l.now().Unix(), role, sev, msg)
}
