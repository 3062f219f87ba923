// Package executor runs the full ask cycle against a registered backend:
// connect, translate the question, execute the query, report rows.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
	"github.com/nlbridge/nlbridge/internal/observability"
	"github.com/nlbridge/nlbridge/internal/translate"
)

// State names the phase an ask request is in. A request moves strictly
// forward through Connecting, Translating and Executing; any phase can jump
// to Failed, and a terminal state never transitions again.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateTranslating State = "translating"
	StateExecuting   State = "executing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Request is one natural-language question aimed at one backend. Context
// optionally carries caller-supplied schema hints; when empty the executor
// asks the backend handle for a hint instead.
type Request struct {
	Question string
	Backend  backend.Kind
	Context  string
}

// Result is the outcome of a completed ask. Query is the translated text that
// actually ran, kept for auditability.
type Result struct {
	RequestID string
	State     State
	Query     string
	Backend   backend.Result
}

// Timeouts are the independent per-stage deadlines. A zero value disables the
// deadline for that stage; the caller's context still applies throughout.
type Timeouts struct {
	Connect   time.Duration
	Translate time.Duration
	Execute   time.Duration
}

type Executor struct {
	pool     *Pool
	builder  translate.Builder
	engine   *translate.Engine
	timeouts Timeouts
	logger   *slog.Logger
}

func New(pool *Pool, engine *translate.Engine, timeouts Timeouts, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		pool:     pool,
		builder:  translate.NewBuilder(),
		engine:   engine,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Backends lists the registered backend kinds.
func (e *Executor) Backends() []backend.Kind {
	return e.pool.Kinds()
}

// Ask runs the question through the connect, translate and execute stages.
// The backend handle is held exclusively for the whole cycle, so two asks
// against the same backend never interleave on one connection.
func (e *Executor) Ask(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	requestID := uuid.NewString()
	failed := Result{RequestID: requestID, State: StateFailed}

	if strings.TrimSpace(req.Question) == "" {
		err := fault.Newf(fault.KindConfigInvalid, "ask", "question is required")
		e.observeFailure(ctx, req.Backend, requestID, err, start)
		return failed, err
	}
	if _, ok := backend.ParseKind(string(req.Backend)); !ok {
		err := fault.Newf(fault.KindConfigInvalid, "ask", "unknown backend %q", req.Backend)
		e.observeFailure(ctx, req.Backend, requestID, err, start)
		return failed, err
	}

	e.logger.DebugContext(ctx, "ask_state",
		slog.String("request_id", requestID),
		slog.String("backend", string(req.Backend)),
		slog.String("state", string(StateConnecting)),
	)

	connectStart := time.Now()
	connectCtx, cancelConnect := withTimeout(ctx, e.timeouts.Connect)
	lease, err := e.pool.Lease(connectCtx, req.Backend)
	cancelConnect()
	observability.ObserveAskStage(string(req.Backend), "connect", time.Since(connectStart))
	if err != nil {
		err = stageError(ctx, err, fault.KindConnectTimeout, "ask.connect")
		e.observeFailure(ctx, req.Backend, requestID, err, start)
		return failed, err
	}
	defer lease.Release()

	e.logger.DebugContext(ctx, "ask_state",
		slog.String("request_id", requestID),
		slog.String("backend", string(req.Backend)),
		slog.String("state", string(StateTranslating)),
	)

	schemaContext := req.Context
	if strings.TrimSpace(schemaContext) == "" {
		if hinter, ok := lease.Handle().(backend.SchemaHinter); ok {
			hint, hintErr := hinter.SchemaHint(ctx)
			if hintErr != nil {
				// Translation still works without a hint, just less precisely.
				e.logger.WarnContext(ctx, "schema_hint_failed",
					slog.String("request_id", requestID),
					slog.String("backend", string(req.Backend)),
					slog.String("error", hintErr.Error()),
				)
			} else {
				schemaContext = hint
			}
		}
	}

	prompt := e.builder.Build(req.Question, req.Backend, schemaContext)

	translateStart := time.Now()
	translateCtx, cancelTranslate := withTimeout(ctx, e.timeouts.Translate)
	translated, err := e.engine.Translate(translateCtx, prompt, req.Backend)
	cancelTranslate()
	observability.ObserveAskStage(string(req.Backend), "translate", time.Since(translateStart))
	if err != nil {
		err = stageError(ctx, err, fault.KindTranslateTimeout, "ask.translate")
		e.observeFailure(ctx, req.Backend, requestID, err, start)
		return failed, err
	}

	e.logger.DebugContext(ctx, "ask_state",
		slog.String("request_id", requestID),
		slog.String("backend", string(req.Backend)),
		slog.String("state", string(StateExecuting)),
	)

	executeStart := time.Now()
	executeCtx, cancelExecute := withTimeout(ctx, e.timeouts.Execute)
	backendResult, err := lease.Handle().Execute(executeCtx, translated.Query)
	cancelExecute()
	observability.ObserveAskStage(string(req.Backend), "execute", time.Since(executeStart))
	if err != nil {
		err = stageError(ctx, err, fault.KindExecuteTimeout, "ask.execute")
		if fault.IsKind(err, fault.KindConnectionLost) {
			lease.Invalidate()
		}
		e.observeFailure(ctx, req.Backend, requestID, err, start)
		return failed, err
	}

	elapsed := time.Since(start)
	observability.ObserveAskSuccess(string(req.Backend), len(backendResult.Rows), elapsed)
	e.logger.InfoContext(ctx, "ask_completed",
		slog.String("request_id", requestID),
		slog.String("backend", string(req.Backend)),
		slog.Int("rows", len(backendResult.Rows)),
		slog.String("duration", elapsed.String()),
	)

	return Result{
		RequestID: requestID,
		State:     StateDone,
		Query:     translated.Query,
		Backend:   backendResult,
	}, nil
}

func (e *Executor) observeFailure(ctx context.Context, kind backend.Kind, requestID string, err error, start time.Time) {
	elapsed := time.Since(start)
	observability.ObserveAskFailure(string(kind), string(fault.KindOf(err)), elapsed)
	e.logger.ErrorContext(ctx, "ask_failed",
		slog.String("request_id", requestID),
		slog.String("backend", string(kind)),
		slog.String("kind", string(fault.KindOf(err))),
		slog.String("duration", elapsed.String()),
		slog.String("error", err.Error()),
	)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// stageError maps a stage-deadline expiry to the stage's timeout kind.
// Cancellation of the caller's own context is not a fault and passes through
// unclassified; every other error keeps whatever kind its origin assigned.
func stageError(parent context.Context, err error, timeoutKind fault.Kind, op string) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &fault.Error{Kind: timeoutKind, Op: op, Err: err}
	}
	return err
}
