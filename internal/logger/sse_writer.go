package logger

import (
	"encoding/json"
	"strings"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

const defaultTimeFormat = "15:04:05"

// SSEPublisher is the subset of sse.Server this writer needs.
type SSEPublisher interface {
	Publish(topic string, event *sse.Event)
}

// LogMessage is the JSON payload published to the "logs" SSE stream.
type LogMessage struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Bytes returns the JSON encoding of the message.
func (lm LogMessage) Bytes() ([]byte, error) {
	return json.Marshal(lm)
}

func defaultPartsOrder() []string {
	return []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}
}

// SSEWriter is an io.Writer that decodes zerolog JSON lines and
// republishes them on an SSE stream so attached clients can tail logs.
type SSEWriter struct {
	SSE        SSEPublisher
	TimeFormat string
	PartsOrder []string
}

// NewSSEWriter creates a writer publishing to the "logs" topic.
func NewSSEWriter(server SSEPublisher, options ...func(w *SSEWriter)) SSEWriter {
	w := SSEWriter{
		SSE:        server,
		TimeFormat: defaultTimeFormat,
		PartsOrder: defaultPartsOrder(),
	}
	for _, opt := range options {
		opt(&w)
	}
	return w
}

func (w SSEWriter) Write(p []byte) (n int, err error) {
	if w.SSE == nil {
		return 0, nil
	}

	var evt map[string]interface{}
	if err := json.Unmarshal(p, &evt); err != nil {
		return 0, err
	}

	msg := LogMessage{
		Time:    asString(evt[zerolog.TimestampFieldName]),
		Level:   strings.ToUpper(asString(evt[zerolog.LevelFieldName])),
		Message: w.buildMessage(evt),
	}

	data, err := msg.Bytes()
	if err != nil {
		return 0, err
	}

	w.SSE.Publish("logs", &sse.Event{
		Data: data,
	})

	return len(p), nil
}

// buildMessage joins the non-time, non-level parts in PartsOrder,
// appending any extra fields so nothing logged is lost on the stream.
func (w SSEWriter) buildMessage(evt map[string]interface{}) string {
	var parts []string
	seen := map[string]struct{}{
		zerolog.TimestampFieldName: {},
		zerolog.LevelFieldName:     {},
	}

	for _, name := range w.PartsOrder {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if v, ok := evt[name]; ok {
			parts = append(parts, asString(v))
		}
	}

	for name, v := range evt {
		if _, ok := seen[name]; ok {
			continue
		}
		parts = append(parts, name+"="+asString(v))
	}

	return strings.Join(parts, " ")
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
