package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultPublicHost = "https://weblinker.vya.digital"
	DefaultPrefix     = "/n8n-proxy"
)

var ErrUnresolvable = errors.New("endpoint cannot be resolved without a proxy base")

// Rewriter maps agent platform URLs onto the local proxy path and back.
// Base, when set, is the address of a running local proxy (for example
// http://localhost:5173); without it proxy-relative endpoints are sent
// straight to PublicHost, which is what the proxy would forward to anyway.
type Rewriter struct {
	PublicHost string
	Prefix     string
	Base       string
}

func NewRewriter(publicHost, prefix, base string) Rewriter {
	return Rewriter{
		PublicHost: strings.TrimRight(strings.TrimSpace(publicHost), "/"),
		Prefix:     "/" + strings.Trim(strings.TrimSpace(prefix), "/"),
		Base:       strings.TrimRight(strings.TrimSpace(base), "/"),
	}
}

// Normalize replaces the public host prefix of a resume URL with the proxy
// prefix. URLs on any other host are returned unchanged.
func (r Rewriter) Normalize(raw string) string {
	if r.PublicHost == "" || !strings.HasPrefix(raw, r.PublicHost) {
		return raw
	}
	return r.Prefix + strings.TrimPrefix(raw, r.PublicHost)
}

func (r Rewriter) Resolve(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("resolve endpoint: empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.IsAbs() {
		return endpoint, nil
	}
	if !strings.HasPrefix(endpoint, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnresolvable, endpoint)
	}
	if r.Base != "" {
		return r.Base + endpoint, nil
	}
	if r.hasPrefix(endpoint) && r.PublicHost != "" {
		return r.PublicHost + strings.TrimPrefix(endpoint, r.Prefix), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvable, endpoint)
}

func (r Rewriter) hasPrefix(path string) bool {
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") || strings.HasPrefix(path, r.Prefix+"?")
}
