package main

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/agent"
	"github.com/odvcencio/repcoach/pkg/bus"
	"github.com/odvcencio/repcoach/pkg/clarify"
	"github.com/odvcencio/repcoach/pkg/config"
	"github.com/odvcencio/repcoach/pkg/logging"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/pipeline"
	"github.com/odvcencio/repcoach/pkg/router"
	"github.com/odvcencio/repcoach/pkg/storage"
	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/tool"
	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

const (
	busConnectTimeout = 10 * time.Second
	createWorkoutTool = "create_workout"
)

// runtime is the fully wired agent and everything it owns.
type runtime struct {
	hub   *telemetry.Hub
	store *storage.Store
	bus   bus.MessageBus
	audit *logging.Logger
	tiers *model.Tiers
	agent *agent.Agent
}

func newRuntime(cfg *config.Config, logger *zap.Logger) (_ *runtime, err error) {
	rt := &runtime{hub: telemetry.NewHub()}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.store, err = storage.New(cfg.Storage.Path, storage.WithTokenCounter(model.CountTokens))
	if err != nil {
		return nil, fmt.Errorf("open chat store: %w", err)
	}
	rt.bus, err = bus.New(bus.Config{URL: cfg.Bus.NATSURL, Name: "repcoach", Timeout: busConnectTimeout})
	if err != nil {
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	rt.audit, err = logging.NewLogger(cfg.Logging.Dir)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	rt.audit.SetMinLevel(auditLevel(cfg.Logging.Level))

	rt.tiers, err = buildTiers(cfg, logger, rt.hub)
	if err != nil {
		return nil, err
	}
	if !rt.tiers.Available() {
		logger.Warn("no model tier configured; workout generation and exercise fallback are disabled",
			zap.Strings("ready_providers", cfg.Providers.ReadyProviders()))
	}

	r := router.New(router.WithKeywords(cfg.Models.ExtraKeywords...))
	var gen builtin.WorkoutGenerator
	if rt.tiers.Available() {
		gen = pipeline.New(rt.tiers,
			pipeline.WithRouter(r),
			pipeline.WithTelemetry(rt.hub),
			pipeline.WithLogger(logger),
			pipeline.WithCallTimeout(cfg.Models.CallTimeout),
		)
	}

	rt.agent = agent.New(
		agent.WithSessionStore(memory.NewStore(cfg.Agent.MaxEpisodicTurns)),
		agent.WithClarifier(clarify.NewManager(clarify.WithMaxRetries(cfg.Agent.MaxClarificationRetries))),
		agent.WithRegistry(newRegistry(cfg, rt.hub, gen)),
		agent.WithRouter(r),
		agent.WithTiers(rt.tiers),
		agent.WithChatStore(rt.store),
		agent.WithBus(rt.bus, cfg.Bus.SubjectPrefix),
		agent.WithTelemetry(rt.hub),
		agent.WithLogger(logger),
		agent.WithCallTimeout(cfg.Models.CallTimeout),
		agent.WithHistoryLimit(cfg.Agent.HistoryLimit),
	)
	return rt, nil
}

// newRegistry builds the tool registry with the configured time budgets.
// The timeout wraps retries, so create_workout's budget covers every
// attempt.
func newRegistry(cfg *config.Config, hub *telemetry.Hub, gen builtin.WorkoutGenerator) *tool.Registry {
	opts := []tool.RegistryOption{tool.WithTelemetry(hub)}
	if gen != nil {
		opts = append(opts, tool.WithGenerator(gen))
	}
	reg := tool.NewRegistry(opts...)
	reg.Use(tool.Timeout(cfg.Tools.Timeout, map[string]time.Duration{
		createWorkoutTool: cfg.GenerationTimeout(),
	}))
	reg.Use(tool.Retry(tool.RetryConfig{
		MaxAttempts:  cfg.Tools.MaxAttempts,
		InitialDelay: cfg.Tools.RetryDelay,
		MaxDelay:     4 * cfg.Tools.RetryDelay,
		Multiplier:   2,
		Jitter:       0.2,
		Tools:        []string{createWorkoutTool},
	}))
	return reg
}

// Close releases everything newRuntime opened.
func (rt *runtime) Close() error {
	var errs []error
	if rt.bus != nil {
		errs = append(errs, rt.bus.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.audit != nil {
		errs = append(errs, rt.audit.Close())
	}
	if rt.hub != nil {
		rt.hub.Close()
	}
	return errors.Join(errs...)
}

// buildTiers creates one client per configured tier. A tier whose provider
// has no credentials is left empty.
func buildTiers(cfg *config.Config, logger *zap.Logger, hub *telemetry.Hub) (*model.Tiers, error) {
	tiers := &model.Tiers{}
	ready := cfg.Providers.ReadyProviders()
	for _, spec := range []struct {
		tier model.Tier
		conf config.TierConfig
		dst  *model.Backend
	}{
		{model.TierFast, cfg.Models.Fast, &tiers.Fast},
		{model.TierCapable, cfg.Models.Capable, &tiers.Capable},
	} {
		if spec.conf.Model == "" {
			continue
		}
		if spec.conf.Provider != config.ProviderOllama && !slices.Contains(ready, spec.conf.Provider) {
			logger.Warn("tier disabled: provider has no credentials",
				zap.String("tier", string(spec.tier)), zap.String("provider", spec.conf.Provider))
			continue
		}

		settings := cfg.Providers.Provider(spec.conf.Provider)
		baseURL := spec.conf.BaseURL
		if baseURL == "" {
			baseURL = settings.BaseURL
		}
		client, err := model.NewClient(model.ClientConfig{
			Provider:          spec.conf.Provider,
			BaseURL:           baseURL,
			APIKey:            settings.APIKey,
			Model:             spec.conf.Model,
			Timeout:           cfg.Models.CallTimeout,
			RequestsPerSecond: settings.RequestsPerSecond,
			Burst:             settings.Burst,
			MaxRetries:        settings.MaxRetries,
			Temperature:       spec.conf.Temperature,
			MaxOutputTokens:   spec.conf.MaxOutputTokens,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%s tier: %w", spec.tier, err)
		}
		tier := spec.tier
		client.Breaker().OnStateChange(func(from, to model.CircuitState) {
			hub.Publish(telemetry.Event{
				Type:      telemetry.EventCircuitStateChange,
				Timestamp: time.Now(),
				Data: map[string]any{
					"tier":    string(tier),
					"backend": client.ID(),
					"from":    from.String(),
					"to":      to.String(),
				},
			})
		})
		*spec.dst = client
	}
	return tiers, nil
}

// auditLevel maps the zap level name onto the audit log's levels.
func auditLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error", "dpanic", "panic", "fatal":
		return logging.LevelError
	}
	return logging.LevelInfo
}
