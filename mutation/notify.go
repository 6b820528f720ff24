package mutation

import "log"

// Notification reports the outcome of a mutation to the user.
type Notification struct {
	Kind     Kind
	RecordID string
	TodoID   string
	Message  string

	// Err is nil for a success.
	Err error
}

// Success reports whether the mutation settled.
func (n Notification) Success() bool {
	return n.Err == nil
}

// Notifier receives mutation outcomes. Notify is called from pipeline
// goroutines and must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

// Notify logs n.
func (l LogNotifier) Notify(n Notification) {
	if l.Logger == nil {
		return
	}
	if n.Err != nil {
		l.Logger.Printf("%s: %v", n.Message, n.Err)
		return
	}
	l.Logger.Print(n.Message)
}

type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}
