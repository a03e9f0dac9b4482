package internal

// LogLevel classifies a log entry pushed through the delegate.
type LogLevel int

const (
	Info LogLevel = iota
	Warning
	Error
	Debug
)

func (l LogLevel) String() string {
	switch l {
	case Warning:
		return "WARN"
	case Error:
		return "ERROR"
	case Debug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// LogStruct is one log entry: a level and a preformatted message.
type LogStruct struct {
	LogLevel LogLevel
	Message  string
}

// LogHandlerFunc receives log entries together with the component that
// emitted them.
type LogHandlerFunc func(sender interface{}, log LogStruct)

// LogHandler is the global log sink. The embedding shell (launcher UI or
// CLI) installs it before starting an update run; while it is nil, entries
// are dropped.
var LogHandler LogHandlerFunc

func pushLog(sender interface{}, level LogLevel, message string) {
	if LogHandler == nil {
		return
	}
	LogHandler(sender, LogStruct{LogLevel: level, Message: message})
}

// PushLogDebug sends a debug log message
func PushLogDebug(sender interface{}, message string) { pushLog(sender, Debug, message) }

// PushLogInfo sends an info log message
func PushLogInfo(sender interface{}, message string) { pushLog(sender, Info, message) }

// PushLogWarning sends a warning log message
func PushLogWarning(sender interface{}, message string) { pushLog(sender, Warning, message) }

// PushLogError sends an error log message
func PushLogError(sender interface{}, message string) { pushLog(sender, Error, message) }
