package log

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// TextFormatter renders entries as a single human readable line:
//
//	2025-01-02T15:04:05.000Z INFO  message key=value key2="quoted value"
type TextFormatter struct {
	// TimestampFormat defaults to RFC3339 with milliseconds.
	TimestampFormat string
	// DisableTimestamp omits the leading timestamp.
	DisableTimestamp bool
	// ShowCaller appends the caller location.
	ShowCaller bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = "2006-01-02T15:04:05.000Z07:00"
		}
		buf.WriteString(entry.Timestamp.Format(layout))
		buf.WriteByte(' ')
	}
	lvl := entry.Level.String()
	buf.WriteString(lvl)
	for i := len(lvl); i < 5; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	for _, k := range sortedKeys(entry.Fields) {
		v := entry.Fields[k]
		if v == nil {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(k)
		buf.WriteByte('=')
		s := stringify(v)
		if strings.ContainsAny(s, " \t\"=") || s == "" {
			b, _ := json.Marshal(s)
			buf.Write(b)
		} else {
			buf.WriteString(s)
		}
	}
	if f.ShowCaller && entry.Caller != "" {
		buf.WriteString(" caller=")
		buf.WriteString(entry.Caller)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// JSONFormatter renders entries as one JSON object per line.
type JSONFormatter struct {
	// ShowCaller adds a "caller" key.
	ShowCaller bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	out := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		if v == nil {
			continue
		}
		switch t := v.(type) {
		case error:
			out[k] = t.Error()
		case time.Duration:
			out[k] = t.String()
		default:
			out[k] = v
		}
	}
	out["time"] = entry.Timestamp.UTC().Format(time.RFC3339Nano)
	out["level"] = strings.ToLower(entry.Level.String())
	out["msg"] = entry.Message
	if f.ShowCaller && entry.Caller != "" {
		out["caller"] = entry.Caller
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func sortedKeys(m Fields) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
