package logging

import (
	"fmt"
)

// RetryLogger adapts Logger to retryablehttp.LeveledLogger.
// Info and debug chatter from the retry client is logged at debug level.
type RetryLogger struct {
	Logger *Logger
}

func (r *RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.Logger.Error().Fields(kvFields(keysAndValues)).Msg("[retry] " + msg)
}

func (r *RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.Logger.Debug().Fields(kvFields(keysAndValues)).Msg("[retry] " + msg)
}

func (r *RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.Logger.Debug().Fields(kvFields(keysAndValues)).Msg("[retry] " + msg)
}

func (r *RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.Logger.Warn().Fields(kvFields(keysAndValues)).Msg("[retry] " + msg)
}

// kvFields turns alternating key/value pairs into a field map.
func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
