package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrMalformedReply = errors.New("malformed agent reply")

// Reply is the interpreted first element of an agent response. HasContent is
// false for 204, empty bodies and empty arrays.
type Reply struct {
	HasContent   bool
	AgentMessage string
	ResumeURL    string
	ChatEnded    bool
}

type replyItem struct {
	AgentMessage *string `json:"agentMessage"`
	ResumeURL    *string `json:"resumeUrl"`
	ChatEnded    *bool   `json:"chatEnded"`
}

func DecodeReply(status int, body []byte) (Reply, error) {
	trimmed := bytes.TrimSpace(body)
	if status == http.StatusNoContent || len(trimmed) == 0 {
		return Reply{}, nil
	}
	if trimmed[0] != '[' {
		return Reply{}, fmt.Errorf("%w: expected JSON array, got %s", ErrMalformedReply, snippet(trimmed))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if len(items) == 0 {
		return Reply{}, nil
	}

	first := bytes.TrimSpace(items[0])
	if len(first) == 0 || first[0] != '{' {
		return Reply{}, fmt.Errorf("%w: first element is not an object: %s", ErrMalformedReply, snippet(first))
	}
	var item replyItem
	if err := json.Unmarshal(first, &item); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	r := Reply{HasContent: true}
	if item.AgentMessage != nil {
		r.AgentMessage = *item.AgentMessage
	}
	if item.ResumeURL != nil {
		r.ResumeURL = *item.ResumeURL
	}
	if item.ChatEnded != nil {
		r.ChatEnded = *item.ChatEnded
	}
	return r, nil
}

func snippet(b []byte) string {
	const max = 80
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
