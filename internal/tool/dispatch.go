package tool

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"slackmcp/internal/audit"
	"slackmcp/internal/domain"
)

// Auditor turns an invocation into an audit record and delivers it.
type Auditor interface {
	NewRecord(tool string, args map[string]any, id domain.Identity, err error) domain.AuditRecord
	Record(ctx context.Context, rec domain.AuditRecord) error
}

type IdentitySource interface {
	Identity(ctx context.Context) (domain.Identity, error)
}

// Observer receives one observation per finished invocation.
type Observer interface {
	ObserveTool(tool, outcome string, d time.Duration)
}

// Result is the outcome of one invocation. Data may be set alongside Err
// when the tool got partway.
type Result struct {
	Tool     string
	State    domain.InvocationState
	Data     any
	Warnings []string
	Err      error
	AuditID  string
}

type DispatcherConfig struct {
	Registry *Registry
	Auditor  Auditor        // nil disables auditing
	Identity IdentitySource // for audit attribution
	Observer Observer
	Timeout  time.Duration // per call; zero means none
	Logger   *zap.Logger
}

// Dispatcher runs invocations through
// received -> validating -> executing -> logging -> completed|failed.
// It never retries; retries live in the Slack client.
type Dispatcher struct {
	registry *Registry
	auditor  Auditor
	identity IdentitySource
	observer Observer
	timeout  time.Duration
	logger   *zap.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		auditor:  cfg.Auditor,
		identity: cfg.Identity,
		observer: cfg.Observer,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs one invocation to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw map[string]any) Result {
	start := time.Now()
	res := Result{Tool: name, State: domain.StateReceived}
	log := d.logger.With(zap.String("tool", name))

	res.State = domain.StateValidating
	skipLog, args, err := d.validate(name, raw)
	if err == nil {
		res.State = domain.StateExecuting
		res.Data, res.Err = d.execute(ctx, name, args)
	} else {
		res.Err = err
	}

	if !skipLog && d.auditor != nil {
		res.State = domain.StateLogging
		d.record(ctx, &res, raw)
	}

	outcome := "success"
	if res.Err != nil {
		res.State = domain.StateFailed
		outcome = string(domain.KindOf(res.Err))
		log.Info("tool call failed",
			zap.String("kind", outcome), zap.Error(res.Err), zap.Duration("took", time.Since(start)))
	} else {
		res.State = domain.StateCompleted
		log.Debug("tool call completed", zap.Duration("took", time.Since(start)))
	}
	if d.observer != nil {
		d.observer.ObserveTool(name, outcome, time.Since(start))
	}
	return res
}

// validate looks the tool up and checks its arguments. skip_log is read
// first so a call with bad arguments still honors it.
func (d *Dispatcher) validate(name string, raw map[string]any) (bool, Args, error) {
	skipLog := false
	if v, ok := raw[SkipLogParam]; ok && v != nil {
		b, err := coerce(Param{Name: SkipLogParam, Type: TypeBoolean}, v)
		if err != nil {
			return false, nil, err
		}
		skipLog = b.(bool)
	}
	t := d.registry.Get(name)
	if t == nil {
		return skipLog, nil, domain.Errorf(domain.KindInvalidArgument, "unknown tool %q", name)
	}
	args, err := withSkipLog(t.Schema()).Validate(raw)
	if err != nil {
		return skipLog, nil, err
	}
	delete(args, SkipLogParam)
	return skipLog, args, nil
}

func (d *Dispatcher) execute(ctx context.Context, name string, args Args) (data any, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", r), zap.Stack("stack"))
			data, err = nil, domain.Errorf(domain.KindUpstreamError, "internal error in %s", name)
		}
	}()
	return d.registry.Get(name).Execute(ctx, args)
}

func (d *Dispatcher) record(ctx context.Context, res *Result, raw map[string]any) {
	var id domain.Identity
	if d.identity != nil {
		var err error
		if id, err = d.identity.Identity(ctx); err != nil {
			d.logger.Debug("audit identity unavailable", zap.Error(err))
		}
	}
	args := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != SkipLogParam {
			args[k] = v
		}
	}
	rec := d.auditor.NewRecord(res.Tool, args, id, res.Err)
	res.AuditID = rec.ID
	if err := d.auditor.Record(ctx, rec); err != nil {
		var de *audit.DeliveryError
		if errors.As(err, &de) && de.Queued {
			res.Warnings = append(res.Warnings, "audit record could not be posted and was queued for redelivery")
		} else {
			res.Warnings = append(res.Warnings, "audit record could not be delivered: "+err.Error())
		}
	}
}
