package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Server forwards everything under the proxy prefix to the public agent
// host, stripping the prefix and presenting the upstream Host header.
type Server struct {
	echo     *echo.Echo
	upstream *url.URL
	logger   zerolog.Logger
}

func NewServer(r Rewriter, logger zerolog.Logger) (*Server, error) {
	if r.PublicHost == "" {
		return nil, errors.New("proxy: public host is required")
	}
	upstream, err := url.Parse(r.PublicHost)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", r.PublicHost, err)
	}
	if !upstream.IsAbs() || upstream.Host == "" {
		return nil, fmt.Errorf("proxy: upstream %q is not absolute", r.PublicHost)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, upstream: upstream, logger: logger.With().Str("component", "proxy").Logger()}

	outside := func(c echo.Context) bool {
		return !r.hasPrefix(c.Request().URL.Path)
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := s.logger.Info()
			if v.Error != nil {
				evt = s.logger.Warn().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("proxied request")
			return nil
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !outside(c) {
				c.Request().Host = upstream.Host
			}
			return next(c)
		}
	})
	e.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
		Skipper:  outside,
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: upstream}}),
		Rewrite: map[string]string{
			"^" + r.Prefix + "/*": "/$1",
			"^" + r.Prefix:        "/",
		},
	}))

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	s.logger.Info().Str("listen", addr).Str("upstream", s.upstream.String()).Msg("proxy listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
