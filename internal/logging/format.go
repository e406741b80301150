package logging

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
)

// Formatter renders entries as "[LEVEL] message key=value ...".
type Formatter struct {
	// Color wraps the level tag in ANSI colors.
	Color bool
	// Timestamps prefixes each line with an RFC 3339 timestamp.
	Timestamps bool
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if f.Timestamps {
		b.WriteString(entry.Time.Format(time.RFC3339))
		b.WriteByte(' ')
	}

	tag := "[" + levelTag(entry.Level) + "]"
	if f.Color {
		tag = colorize(tag, entry.Level)
	}
	b.WriteString(tag)
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(formatValue(entry.Data[key]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelTag(level logrus.Level) string {
	switch level {
	case logrus.WarnLevel:
		return "WARN"
	default:
		return strings.ToUpper(level.String())
	}
}

var levelColors = map[logrus.Level]string{
	logrus.PanicLevel: "1",
	logrus.FatalLevel: "1",
	logrus.ErrorLevel: "1",
	logrus.WarnLevel:  "3",
	logrus.InfoLevel:  "2",
	logrus.DebugLevel: "4",
	logrus.TraceLevel: "5",
}

func colorize(tag string, level logrus.Level) string {
	color, ok := levelColors[level]
	if !ok {
		return tag
	}
	return termenv.String(tag).Foreground(termenv.ANSI.Color(color)).Bold().String()
}

func formatValue(value any) string {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case error:
		s = v.Error()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
