package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nl2sqlchat/nl2sqlchat/internal/nl2sql"
	"github.com/nl2sqlchat/nl2sqlchat/internal/observability"
	"github.com/nl2sqlchat/nl2sqlchat/internal/query"
)

const defaultStepTimeout = 30 * time.Second

// Assistant answers one question at a time: generate SQL, validate it,
// run it, then summarise the rows.
type Assistant struct {
	Translator  nl2sql.Translator
	Summarizer  nl2sql.Summarizer
	Engine      query.Engine
	Schema      string
	RowLimit    int
	StepTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

func (a *Assistant) Ask(ctx context.Context, session *Session, question string) (Exchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Exchange{}, ErrEmptyQuestion
	}
	if session == nil {
		return Exchange{}, ErrSessionNotFound
	}

	session.askMu.Lock()
	defer session.askMu.Unlock()
	if session.Closed() {
		return Exchange{}, ErrSessionClosed
	}

	start := time.Now()
	askedAt := a.now()
	answer, err := a.answer(ctx, question)
	if err != nil {
		kind, _ := KindOf(err)
		observability.ObserveAsk(string(kind), time.Since(start))
		a.logger().WarnContext(ctx, "chat_ask_failed",
			observability.TraceAttr(ctx),
			slog.String("session_id", session.ID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return Exchange{}, err
	}

	exchange, err := session.commit(Turn{
		Role:      RoleUser,
		Content:   question,
		CreatedAt: askedAt,
	}, answer)
	if err != nil {
		return Exchange{}, err
	}
	observability.ObserveAsk("ok", time.Since(start))
	a.logger().InfoContext(ctx, "chat_ask_answered",
		observability.TraceAttr(ctx),
		slog.String("session_id", session.ID),
		slog.Int("rows", len(answer.Rows)),
		slog.String("duration", time.Since(start).String()),
	)
	return exchange, nil
}

func (a *Assistant) answer(ctx context.Context, question string) (Turn, error) {
	if a.Translator == nil || a.Summarizer == nil || a.Engine == nil {
		return Turn{}, newError(KindUpstream, "setup", errors.New("assistant is not configured"))
	}

	stepCtx, cancel := a.stepContext(ctx)
	generatedAt := time.Now()
	translated, err := a.Translator.Translate(stepCtx, nl2sql.Request{Question: question, Schema: a.Schema})
	cancel()
	observability.ObserveBridgeCall("sql", err, time.Since(generatedAt))
	if err != nil {
		if errors.Is(err, nl2sql.ErrEmptySQL) {
			return Turn{}, newError(KindMalformedOutput, "generate", err)
		}
		return Turn{}, newError(KindUpstream, "generate", err)
	}

	sqlText, err := nl2sql.Guard(translated.SQL)
	if err != nil {
		return Turn{}, newError(KindMalformedOutput, "validate", err)
	}

	stepCtx, cancel = a.stepContext(ctx)
	result, err := a.Engine.Execute(stepCtx, query.Request{SQL: sqlText, RowLimit: a.RowLimit})
	cancel()
	if err != nil {
		return Turn{}, newError(KindExecution, "execute", err)
	}
	observability.ObserveQueryRows(len(result.Rows))

	summary := nl2sql.NoDataSummary
	if len(result.Rows) > 0 {
		stepCtx, cancel = a.stepContext(ctx)
		summarizedAt := time.Now()
		summary, err = a.Summarizer.Summarize(stepCtx, nl2sql.SummaryRequest{
			Question: question,
			Columns:  result.Columns,
			Rows:     result.Rows,
		})
		cancel()
		observability.ObserveBridgeCall("summary", err, time.Since(summarizedAt))
		if err != nil {
			return Turn{}, newError(KindUpstream, "summarize", err)
		}
	}

	return Turn{
		Role:      RoleAssistant,
		SQL:       sqlText,
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
		Summary:   strings.TrimSpace(summary),
		CreatedAt: a.now(),
	}, nil
}

func (a *Assistant) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := a.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (a *Assistant) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func (a *Assistant) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
