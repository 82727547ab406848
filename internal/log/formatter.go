package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPattern    = "%time [%level] %msg %field%n"
	defaultTimeFormat = "2006-01-02 15:04:05"
)

type formatter struct {
	pattern string
	time    string
}

func newFormatter(pattern, timeFormat string) *formatter {
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}
	return &formatter{pattern: pattern, time: timeFormat}
}

// Format expands %time, %level, %msg, %field and %n in the pattern.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", entry.Level.String(), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	output = strings.ReplaceAll(output, "%n", "\n")
	return []byte(output), nil
}

// buildFields renders entry data as k=v pairs in key order.
func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		val := entry.Data[k]
		stringVal, ok := val.(string)
		if !ok {
			if err, isErr := val.(error); isErr {
				stringVal = err.Error()
			} else {
				stringVal = fmt.Sprint(val)
			}
		}
		fields = append(fields, k+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
