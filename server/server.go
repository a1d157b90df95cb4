// Package server wires the HTTP surface to the event pipeline: echo
// listeners accept webhook deliveries, the bridge hands them to the
// dispatch loop, and the chat router drives the conversation.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/mintoctopus/reserve/internal/observability"
	"github.com/mintoctopus/reserve/internal/profile"
	"github.com/mintoctopus/reserve/internal/telegram"
	"github.com/mintoctopus/reserve/server/bridge"
	"github.com/mintoctopus/reserve/server/chat"
	"github.com/mintoctopus/reserve/server/middleware"
	"github.com/mintoctopus/reserve/server/notify"
	"github.com/mintoctopus/reserve/server/session"
	"github.com/mintoctopus/reserve/server/slots"
	"github.com/mintoctopus/reserve/store"
)

// submitter is the bridge surface the webhook handler needs.
type submitter interface {
	Submit(ctx context.Context, event *bridge.InboundEvent) error
}

// Server owns the echo instance and the pipeline components.
type Server struct {
	e *echo.Echo

	Profile *profile.Profile
	Store   *store.Store

	bridge   submitter
	loop     *bridge.Bridge
	notifier *notify.Notifier
	metrics  *observability.Metrics
}

// NewServer assembles the pipeline: sender, extraction engine, session
// store, router, limiter, notifier and bridge, then registers routes.
func NewServer(ctx context.Context, p *profile.Profile, st *store.Store) (*Server, error) {
	if p == nil {
		return nil, errors.New("profile is nil")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())

	var sender telegram.Sender = telegram.NopSender{}
	if p.BotToken != "" {
		sender = telegram.NewClient(p.BotToken)
	} else if !p.IsDev() {
		return nil, errors.New("bot token is required outside dev mode")
	}

	metrics := observability.NewMetrics()

	var model *slots.ModelExtractor
	if p.IsModelTierEnabled() {
		model = slots.NewModelExtractor(slots.ModelConfig{
			BaseURL: p.OpenAIBaseURL,
			APIKey:  p.OpenAIAPIKey,
			Model:   p.OpenAIModel,
			Timeout: p.ExtractTimeout,
		}, p.Location())
	} else {
		slog.Info("model tier disabled, running on the rule-based extractor")
	}
	engine := slots.NewEngine(model, slots.NewFallbackExtractor(p.Location()), metrics)

	notifier := notify.NewNotifier(sender, p.AdminChatID, 64)
	router := chat.NewRouter(p, session.NewMemoryStore(), engine, st, notifier)
	limiter := middleware.NewRateLimiter(time.Second, 5)
	loop := bridge.New(p, router, sender, limiter, metrics)

	s := &Server{
		e:        e,
		Profile:  p,
		Store:    st,
		bridge:   loop,
		loop:     loop,
		notifier: notifier,
		metrics:  metrics,
	}
	s.registerRoutes()
	return s, nil
}

// Start launches the dispatch loop, the notification forwarder and the
// HTTP listener. It blocks until the listener stops.
func (s *Server) Start(ctx context.Context) error {
	go s.loop.Run(ctx)
	go s.notifier.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", "addr", addr, "mode", s.Profile.Mode)
	return s.e.Start(addr)
}

// Shutdown stops the HTTP listener and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down http server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shut down")
}
