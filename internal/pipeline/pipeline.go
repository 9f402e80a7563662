// Package pipeline answers natural-language questions: it gathers schema
// context, consults the history cache, synthesizes and filters a query,
// executes it with one correction attempt, explains the result and records
// what worked.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sqlrag/internal/execution"
	"github.com/kalambet/sqlrag/internal/explain"
	"github.com/kalambet/sqlrag/internal/history"
	"github.com/kalambet/sqlrag/internal/prompt"
	"github.com/kalambet/sqlrag/internal/retrieval"
	"github.com/kalambet/sqlrag/internal/safety"
	"github.com/kalambet/sqlrag/internal/storage"
	"github.com/kalambet/sqlrag/internal/synth"
)

const (
	defaultTopK             = 3
	defaultRetrievalTimeout = 10 * time.Second
)

// apology is the answer returned when the pipeline itself broke down.
const apology = "Sorry, something went wrong while answering this question. Please try again."

// ContextRetriever returns the schema documents nearest to a question.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, question string, k int) (retrieval.Result, error)
}

// HistoryCache looks up and records previously answered questions.
type HistoryCache interface {
	LookupSimilar(ctx context.Context, question string) (history.Lookup, error)
	Append(ctx context.Context, question, query string) (history.Entry, error)
}

// Executor runs a query against the relational store.
type Executor interface {
	Execute(ctx context.Context, query string) (execution.Result, error)
}

// RunRecorder persists the audit record of each answered question.
type RunRecorder interface {
	SaveRun(ctx context.Context, r storage.Run) error
}

// Deps are the components a Pipeline drives. Runs and Metrics are optional.
type Deps struct {
	Context   ContextRetriever
	History   HistoryCache
	Synth     *synth.Synthesizer
	Filter    *safety.Filter
	Executor  Executor
	Explainer *explain.Explainer
	Composer  *prompt.Composer
	Runs      RunRecorder
	Metrics   *Metrics
}

// Options tune a Pipeline. Zero values select the defaults.
type Options struct {
	TopK             int
	Threshold        float64
	RetrievalTimeout time.Duration
}

// Pipeline is the question answering state machine. It is safe for
// concurrent use; questions are independent.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = history.DefaultThreshold
	}
	if opts.RetrievalTimeout <= 0 {
		opts.RetrievalTimeout = defaultRetrievalTimeout
	}
	if deps.Composer == nil {
		deps.Composer = prompt.New(0)
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// Answer runs one question end to end and always returns an Outcome.
func (p *Pipeline) Answer(ctx context.Context, question string) (out Outcome) {
	start := p.now()
	out.Question = question
	out.RunID = newID()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline: recovered from panic", "run", out.RunID, "panic", r)
			out.Answer = apology
			out.Explained = false
			out.Status = storage.RunFailed
			out.HistoryID = ""
		}
		out.Duration = p.now().Sub(start)
		p.deps.Metrics.observe(out.Duration.Seconds())
		p.record(ctx, out, start)
	}()

	p.deps.Metrics.question()

	if strings.TrimSpace(question) == "" {
		out.Status = storage.RunFailed
		out.Payload = failurePayload("empty question", "")
		out.Answer = "Please ask a question about the data."
		return out
	}

	matches, lookup := p.gather(ctx, question)
	glossary := retrieval.Result{Matches: matches}.Text()
	decision := p.decide(matches, lookup)

	var first Attempt
	if decision.Hit {
		p.deps.Metrics.cacheHit()
		out.FromCache = true
		d := decision.Distance
		out.CacheDistance = &d
		slog.Debug("pipeline: cache hit", "run", out.RunID, "distance", d)
		first = p.execute(ctx, Attempt{Position: 1, Mode: ModeCache, Query: decision.Query})
	} else {
		if lookup.Found {
			d := lookup.Distance
			out.CacheDistance = &d
		}
		first = p.attempt(ctx, 1, question, decision.Context, nil)
	}
	out.Attempts = append(out.Attempts, first)

	final := first
	if first.Failed() && !first.Rejected {
		if err := ctx.Err(); err != nil {
			slog.Warn("pipeline: request ended before correction", "run", out.RunID, "error", err)
		} else {
			prior := &synth.Prior{Query: first.Query, Error: first.Error}
			final = p.attempt(ctx, 2, question, correctionContext(decision, glossary), prior)
			out.Attempts = append(out.Attempts, final)
		}
	}

	out.Query = final.Query
	switch {
	case final.Rejected:
		out.Status = storage.RunRejected
		out.Payload = final.Payload
		if out.Payload == "" {
			out.Payload = failurePayload(final.Error, final.Query)
		}
	case final.Failed():
		out.Status = storage.RunFailed
		out.Payload = failurePayload(final.Error, final.Query)
	default:
		out.Status = storage.RunDone
		out.Payload = final.Payload
	}

	out.Answer, out.Explained = p.deps.Explainer.Explain(ctx, question, out.Payload, glossary)

	if out.Status == storage.RunDone && final.Mode != ModeCache && !final.Fallback {
		entry, err := p.deps.History.Append(ctx, question, final.Query)
		if err != nil {
			slog.Warn("pipeline: history write failed", "run", out.RunID, "error", err)
		} else {
			out.HistoryID = entry.ID
		}
	}

	slog.Info("pipeline: answered",
		"run", out.RunID,
		"status", out.Status,
		"from_cache", out.FromCache,
		"attempts", len(out.Attempts),
	)
	return out
}

// gather runs the context and cache lookups concurrently. Failures degrade
// to an empty context and a cache miss.
func (p *Pipeline) gather(ctx context.Context, question string) ([]retrieval.Match, history.Lookup) {
	var (
		matches []retrieval.Match
		lookup  history.Lookup
	)

	lookupCtx, cancel := context.WithTimeout(ctx, p.opts.RetrievalTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		res, err := p.deps.Context.RetrieveContext(lookupCtx, question, p.opts.TopK)
		if err != nil {
			slog.Warn("pipeline: context retrieval failed, continuing without schema context", "error", err)
			return nil
		}
		matches = res.Matches
		return nil
	})
	g.Go(func() error {
		l, err := p.deps.History.LookupSimilar(lookupCtx, question)
		if err != nil {
			slog.Warn("pipeline: history lookup failed, treating as miss", "error", err)
			return nil
		}
		lookup = l
		return nil
	})
	_ = g.Wait()

	return matches, lookup
}

// decide turns the nearest history entry into a cache decision. On a miss
// the nearest entry, if any, is offered as a style example.
func (p *Pipeline) decide(matches []retrieval.Match, lookup history.Lookup) CacheDecision {
	if lookup.Hit(p.opts.Threshold) {
		return CacheDecision{Hit: true, Query: lookup.Entry.Query, Distance: lookup.Distance}
	}
	var example *prompt.Example
	if lookup.Found {
		example = &prompt.Example{Question: lookup.Entry.Question, Query: lookup.Entry.Query}
	}
	return CacheDecision{
		Distance: lookup.Distance,
		Context:  p.deps.Composer.Context(matches, example),
	}
}

// correctionContext is the schema context for a correction. A cache hit
// never assembled one, so the glossary is used instead.
func correctionContext(d CacheDecision, glossary string) string {
	if d.Hit {
		return glossary
	}
	return d.Context
}

// attempt synthesizes, filters and executes one candidate.
func (p *Pipeline) attempt(ctx context.Context, pos int, question, schemaContext string, prior *synth.Prior) Attempt {
	a := Attempt{Position: pos, Mode: ModeGenerate}
	if prior != nil {
		a.Mode = ModeCorrect
	}

	cand := p.deps.Synth.Synthesize(ctx, question, schemaContext, prior)
	a.Candidate = cand.Query
	// The placeholder is never executed, so it skips the filter and is
	// recorded as a failed attempt eligible for correction.
	if cand.Fallback {
		p.deps.Metrics.fallback()
		p.deps.Metrics.attempt("fallback")
		a.Query = cand.Query
		a.Fallback = true
		a.Error = "the language model did not produce a query: " + cand.Reason
		return a
	}

	query, err := p.deps.Filter.Sanitize(cand.Query)
	a.Query = query
	if err != nil {
		var rej *safety.RejectionError
		if errors.As(err, &rej) {
			slog.Warn("pipeline: candidate rejected", "keyword", rej.Keyword, "attempt", pos)
		}
		p.deps.Metrics.rejection()
		a.Rejected = true
		a = p.execute(ctx, a)
		if !a.Failed() {
			a.Error = err.Error()
		}
		return a
	}

	return p.execute(ctx, a)
}

// execute runs a.Query and fills in the payload or error.
func (p *Pipeline) execute(ctx context.Context, a Attempt) Attempt {
	res, err := p.deps.Executor.Execute(ctx, a.Query)
	if err != nil {
		var execErr *execution.ExecutionError
		if errors.As(err, &execErr) {
			a.Timeout = execErr.Timeout
		}
		a.Error = err.Error()
		p.deps.Metrics.attempt("error")
		slog.Warn("pipeline: execution failed", "attempt", a.Position, "mode", a.Mode, "error", err)
		return a
	}
	a.Payload = res.Payload()
	if a.Rejected {
		p.deps.Metrics.attempt("rejected")
	} else {
		p.deps.Metrics.attempt("ok")
	}
	return a
}

// record persists the run. It uses a detached context so a cancelled request
// still leaves an audit record.
func (p *Pipeline) record(ctx context.Context, out Outcome, start time.Time) {
	if p.deps.Runs == nil {
		return
	}
	attempts, err := json.Marshal(out.Attempts)
	if err != nil {
		attempts = []byte("[]")
	}
	run := storage.Run{
		ID:            out.RunID,
		CreatedAt:     start,
		Question:      out.Question,
		FinalQuery:    out.Query,
		FromCache:     out.FromCache,
		CacheDistance: out.CacheDistance,
		Attempts:      string(attempts),
		Answer:        out.Answer,
		Status:        out.Status,
		HistoryID:     out.HistoryID,
		Duration:      out.Duration,
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.deps.Runs.SaveRun(saveCtx, run); err != nil {
		slog.Warn("pipeline: saving run failed", "run", out.RunID, "error", err)
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id.String()
}
