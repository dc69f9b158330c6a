// Package audit posts one record per tool invocation to a Slack channel.
// Records that cannot be delivered are parked in a SQLite outbox and
// redelivered later; a record is never edited once created.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slackmcp/internal/domain"
	"slackmcp/internal/logging"
)

const (
	defaultMaxArgLength = 500
	deliveryTimeout     = 30 * time.Second
)

// Poster sends a message to a channel.
type Poster interface {
	PostMessage(ctx context.Context, channelID, text, threadTS string) (string, string, error)
}

// Observer is told about every delivery attempt.
type Observer interface {
	ObserveAudit(outcome string)
	ObserveOutbox(depth int)
}

type Config struct {
	ChannelID    string
	Poster       Poster
	Outbox       *Outbox // optional
	MaxArgLength int
	Observer     Observer
	Logger       *zap.Logger
}

type Logger struct {
	channelID string
	poster    Poster
	outbox    *Outbox
	maxArg    int
	observer  Observer
	logger    *zap.Logger
	now       func() time.Time
}

func NewLogger(cfg Config) *Logger {
	if cfg.MaxArgLength <= 0 {
		cfg.MaxArgLength = defaultMaxArgLength
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Logger{
		channelID: cfg.ChannelID,
		poster:    cfg.Poster,
		outbox:    cfg.Outbox,
		maxArg:    cfg.MaxArgLength,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// DeliveryError reports that a record did not reach the audit channel.
// Queued tells whether it is waiting in the outbox.
type DeliveryError struct {
	Err    error
	Queued bool
}

func (e *DeliveryError) Error() string {
	if e.Queued {
		return "audit record queued for redelivery: " + e.Err.Error()
	}
	return "audit record lost: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NewRecord builds the record for one invocation. Secrets in args are
// masked and long values clipped; args itself is left untouched.
func (l *Logger) NewRecord(tool string, args map[string]any, id domain.Identity, err error) domain.AuditRecord {
	rec := domain.AuditRecord{
		ID:       uuid.NewString(),
		Tool:     tool,
		Args:     l.sanitize(args),
		Identity: id.Label(),
		At:       l.now().UTC(),
		Outcome:  domain.OutcomeSuccess,
	}
	if err != nil {
		rec.Outcome = domain.OutcomeFailure
		rec.ErrorKind = domain.KindOf(err)
	}
	return rec
}

// Record posts rec to the audit channel. It runs detached from ctx's
// cancellation so an abandoned call is still audited.
func (l *Logger) Record(ctx context.Context, rec domain.AuditRecord) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	err := l.post(ctx, rec)
	if err == nil {
		l.observe("delivered")
		return nil
	}
	l.logger.Warn("audit delivery failed",
		zap.String("tool", rec.Tool), zap.String("record", rec.ID), zap.Error(err))

	if l.outbox == nil {
		l.observe("lost")
		return &DeliveryError{Err: err}
	}
	if qerr := l.outbox.Enqueue(ctx, rec, err); qerr != nil {
		l.logger.Error("audit outbox enqueue failed", zap.String("record", rec.ID), zap.Error(qerr))
		l.observe("lost")
		return &DeliveryError{Err: errors.Join(err, qerr)}
	}
	l.observe("queued")
	l.reportDepth(ctx)
	return &DeliveryError{Err: err, Queued: true}
}

// Flush redelivers up to limit queued records, oldest first, and stops at
// the first failure so records keep their order. It returns how many were
// delivered.
func (l *Logger) Flush(ctx context.Context, limit int) (int, error) {
	if l.outbox == nil {
		return 0, nil
	}
	pending, err := l.outbox.Pending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}
	delivered := 0
	for _, p := range pending {
		if err := l.post(ctx, p.Record); err != nil {
			if merr := l.outbox.MarkAttempt(ctx, p.Record.ID, err); merr != nil {
				l.logger.Warn("outbox attempt not recorded", zap.Error(merr))
			}
			l.reportDepth(ctx)
			return delivered, err
		}
		if err := l.outbox.Delete(ctx, p.Record.ID); err != nil {
			return delivered, fmt.Errorf("remove delivered record: %w", err)
		}
		delivered++
		l.observe("redelivered")
	}
	if delivered > 0 {
		l.logger.Info("audit outbox flushed", zap.Int("delivered", delivered))
	}
	l.reportDepth(ctx)
	return delivered, nil
}

// Run flushes the outbox every interval until ctx is done.
func (l *Logger) Run(ctx context.Context, interval time.Duration) {
	if l.outbox == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Flush(ctx, 100); err != nil && ctx.Err() == nil {
				l.logger.Debug("audit outbox flush incomplete", zap.Error(err))
			}
		}
	}
}

func (l *Logger) post(ctx context.Context, rec domain.AuditRecord) error {
	if l.poster == nil || l.channelID == "" {
		return errors.New("audit channel not configured")
	}
	_, _, err := l.poster.PostMessage(ctx, l.channelID, Format(rec), "")
	return err
}

// Format renders rec as the audit channel message.
func Format(rec domain.AuditRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* by %s\n", rec.Tool, rec.Identity)
	fmt.Fprintf(&b, "at: %s | outcome: %s", rec.At.Format(time.RFC3339), rec.Outcome)
	if rec.ErrorKind != "" {
		fmt.Fprintf(&b, " | error: %s", rec.ErrorKind)
	}
	b.WriteString("\n")
	if len(rec.Args) > 0 {
		args, err := json.Marshal(rec.Args)
		if err != nil {
			args = []byte(fmt.Sprintf("%q", err.Error()))
		}
		fmt.Fprintf(&b, "args: ```%s```\n", args)
	}
	fmt.Fprintf(&b, "id: %s", rec.ID)
	return b.String()
}

func (l *Logger) sanitize(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	redacted, _ := logging.RedactAny(args).(map[string]any)
	for k, v := range redacted {
		if s, ok := v.(string); ok {
			redacted[k] = clip(s, l.maxArg)
		}
	}
	return redacted
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + fmt.Sprintf("... (%d more chars)", len(r)-n)
}

func (l *Logger) observe(outcome string) {
	if l.observer != nil {
		l.observer.ObserveAudit(outcome)
	}
}

func (l *Logger) reportDepth(ctx context.Context) {
	if l.observer == nil || l.outbox == nil {
		return
	}
	if n, err := l.outbox.Count(ctx); err == nil {
		l.observer.ObserveOutbox(n)
	}
}
