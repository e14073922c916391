package core

// Logger is any service that can log leveled messages. Extra args may carry
// an error, a context map or the acting user; implementations decide what to
// do with them.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
