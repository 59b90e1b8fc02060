package webhook

import (
	"context"
	"fmt"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type messageRequest struct {
	ClientMessage string `json:"clientMessage"`
	Timestamp     string `json:"timestamp"`
}

type resetRequest struct {
	Reset bool `json:"reset"`
}

// FormatTimestamp renders t the way the agent platform expects: UTC with
// millisecond precision and a Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

type Kind string

const (
	KindMessage Kind = "message"
	KindReset   Kind = "reset"
)

// Exchange is one request/response pair as seen on the wire.
type Exchange struct {
	SessionID    string
	Kind         Kind
	Endpoint     string
	URL          string
	RequestBody  string
	Status       int
	ResponseBody string
	Duration     time.Duration
	Err          string
	At           time.Time
}

type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent returned status %d", e.Status)
	}
	return fmt.Sprintf("agent returned status %d: %s", e.Status, e.Body)
}

type ctxKey string

const ctxKeySessionID ctxKey = "session_id"

// WithSessionID tags ctx so exchanges recorded under it carry the session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeySessionID).(string)
	return id
}
