package logger

import (
	"os"
	"sort"

	"github.com/charmbracelet/log"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Level:           log.InfoLevel,
})

func SetLevel(level Level) {
	switch level {
	case DEBUG:
		base.SetLevel(log.DebugLevel)
	case INFO:
		base.SetLevel(log.InfoLevel)
	case WARN:
		base.SetLevel(log.WarnLevel)
	case ERROR:
		base.SetLevel(log.ErrorLevel)
	}
}

// keyvals flattens a fields map into sorted key/value pairs so log lines
// are stable across runs.
func keyvals(component string, fields map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, 2*(len(fields)+1))
	kv = append(kv, "component", component)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return kv
}

func DebugC(component, msg string) {
	base.Debug(msg, "component", component)
}

func DebugCF(component, msg string, fields map[string]interface{}) {
	base.Debug(msg, keyvals(component, fields)...)
}

func InfoC(component, msg string) {
	base.Info(msg, "component", component)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	base.Info(msg, keyvals(component, fields)...)
}

func WarnC(component, msg string) {
	base.Warn(msg, "component", component)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	base.Warn(msg, keyvals(component, fields)...)
}

func ErrorC(component, msg string) {
	base.Error(msg, "component", component)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	base.Error(msg, keyvals(component, fields)...)
}
