package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"slackmcp/internal/audit"
	"slackmcp/internal/config"
	"slackmcp/internal/metrics"
	"slackmcp/internal/policy"
	"slackmcp/internal/query"
	"slackmcp/internal/resolve"
	"slackmcp/internal/server"
	"slackmcp/internal/slackapi"
	"slackmcp/internal/thread"
	"slackmcp/internal/tool"
)

// runtime is the wired process: one Slack client, one session and one
// dispatcher shared by every transport.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	api        *slackapi.API
	session    *slackapi.Session
	outbox     *audit.Outbox
	auditLog   *audit.Logger
	dispatcher *tool.Dispatcher
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	client := slackapi.NewClient(slackapi.ClientConfig{
		APIBase: cfg.Slack.APIBase,
		Credentials: slackapi.Credentials{
			WebToken:    cfg.Slack.WebToken,
			CookieToken: cfg.Slack.CookieToken,
		},
		UserAgent:      cfg.Slack.UserAgent,
		HTTPClient:     slackapi.SharedHTTPClient(cfg.Slack.Timeout),
		Budget:         slackapi.NewBudget(cfg.RateLimit.Burst, cfg.RateLimit.RequestsPerMinute),
		MaxAttempts:    cfg.RateLimit.MaxAttempts,
		NetworkRetries: cfg.RateLimit.NetworkRetries,
		BaseBackoff:    cfg.RateLimit.BaseBackoff,
		MaxBackoff:     cfg.RateLimit.MaxBackoff,
		Observer:       m,
		Logger:         logger.Named("slack"),
	})
	api := slackapi.NewAPI(client)

	session := slackapi.NewSession(api, logger)
	if cfg.Slack.WebToken != "" {
		// A failed init is reported by every tool call; the server still starts.
		_ = session.Init(ctx)
	} else {
		logger.Info("no process-wide credentials; expecting per-request tokens")
	}

	loc, err := time.LoadLocation(cfg.Search.Timezone)
	if err != nil {
		return nil, fmt.Errorf("search.timezone: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, metrics: m, api: api, session: session}

	if cfg.Audit.OutboxPath != "" {
		ob, err := audit.NewOutbox(cfg.Audit.OutboxPath, logger.Named("outbox"))
		if err != nil {
			return nil, fmt.Errorf("audit outbox: %w", err)
		}
		rt.outbox = ob
	}
	rt.auditLog = audit.NewLogger(audit.Config{
		ChannelID:    cfg.Audit.ChannelID,
		Poster:       api,
		Outbox:       rt.outbox,
		MaxArgLength: cfg.Audit.MaxArgLength,
		Observer:     m,
		Logger:       logger.Named("audit"),
	})

	reg, err := buildRegistry(cfg, api, session, loc, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var auditor tool.Auditor
	if cfg.Audit.ChannelID != "" {
		auditor = rt.auditLog
	}
	rt.dispatcher = tool.NewDispatcher(tool.DispatcherConfig{
		Registry: reg,
		Auditor:  auditor,
		Identity: session,
		Observer: m,
		Timeout:  cfg.Server.CallTimeout,
		Logger:   logger.Named("dispatch"),
	})
	return rt, nil
}

func buildRegistry(cfg *config.Config, api *slackapi.API, session *slackapi.Session, loc *time.Location, logger *zap.Logger) (*tool.Registry, error) {
	guard, err := policy.NewGuard(cfg.Writes, logger.Named("policy"))
	if err != nil {
		return nil, err
	}
	resolver := resolve.New(api, logger.Named("resolve"))
	translator := query.NewTranslator(resolver, loc)

	reg := tool.NewRegistry(logger)
	tool.RegisterSlackTools(reg, tool.Deps{
		API:        api,
		Resolver:   resolver,
		Translator: translator,
		Threads: thread.NewAssembler(thread.Config{
			API:        api,
			Resolver:   resolver,
			Translator: translator,
			Identity:   session,
			Logger:     logger.Named("thread"),
		}),
		Session:  session,
		Guard:    guard,
		Search:   cfg.Search,
		Location: loc,
		Writes:   cfg.Writes.Enabled,
		Logger:   logger,
	})
	return reg, nil
}

// catalog builds a registry for listing only. Nothing in it talks to Slack
// until a tool is executed.
func catalog(cfg *config.Config, logger *zap.Logger) *tool.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := slackapi.NewAPI(slackapi.NewClient(slackapi.ClientConfig{Logger: logger}))
	reg, err := buildRegistry(cfg, api, slackapi.NewSession(api, logger), time.UTC, logger)
	if err != nil {
		// write rules are validated on load
		return tool.NewRegistry(logger)
	}
	return reg
}

func (rt *runtime) Server() *server.Server {
	return server.New(server.Config{
		Name:        "slackmcp",
		Version:     version,
		Dispatcher:  rt.dispatcher,
		Transport:   rt.cfg.Server.Transport,
		Addr:        rt.cfg.Server.Addr(),
		MetricsPath: rt.cfg.Server.MetricsPath,
		Metrics:     rt.metrics.Handler(),
		Logger:      rt.logger.Named("server"),
	})
}

func (rt *runtime) Close() {
	if rt.outbox != nil {
		if err := rt.outbox.Close(); err != nil {
			rt.logger.Warn("close outbox", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}
