// Package crag implements a self-correcting retrieval loop (Corrective RAG)
// for question answering over a maritime-regulation knowledge base. The
// engine sequences analyze -> retrieve -> grade -> (rewrite -> retrieve ->
// grade)* -> generate -> verify, detecting weak evidence, reformulating the
// query within a bounded iteration budget, and screening the final answer
// for unsupported claims. Retrieval and generation are external
// collaborators injected at construction; the engine decides when to call
// each capability and how to interpret the results, never how the
// collaborators do their work.
package crag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/pkg/logging"
)

// Backends groups the LLM clients used by the engine's decision-making
// components. Unset fields fall back to Default; a component with no backend
// at all degrades per its own contract.
type Backends struct {
	Default  llm.Client
	Analyzer llm.Client
	Grader   llm.Client
	Rewriter llm.Client
	Verifier llm.Client
}

// Engine owns the correction loop. It is stateless aside from configuration:
// each request carries its own evidence set, grading history, and iteration
// counter, so independent requests run fully concurrently.
type Engine struct {
	cfg       *Config
	retriever Retriever
	generator Generator
	analyzer  QueryAnalyzer
	grader    EvidenceGrader
	rewriter  QueryRewriter
	verifier  AnswerVerifier
	trace     TraceSink
	logger    *slog.Logger
}

// New wires the engine. The retriever and generator collaborators are
// required; the four decision components are built from the backends unless
// overridden via options.
func New(retriever Retriever, generator Generator, backends Backends, opts ...Option) (*Engine, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	cfg := applyOptions(nil, opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	analyzer := cfg.analyzer
	if analyzer == nil {
		analyzer = NewAnalyzer(pickClient(backends.Analyzer, backends.Default), cfg)
	}
	grader := cfg.grader
	if grader == nil {
		backend := pickClient(backends.Grader, backends.Default)
		if backend == nil {
			return nil, fmt.Errorf("grader backend is required")
		}
		grader = NewGrader(backend, cfg)
	}
	rewriter := cfg.rewriter
	if rewriter == nil {
		rewriter = NewRewriter(pickClient(backends.Rewriter, backends.Default), cfg)
	}
	verifier := cfg.verifier
	if verifier == nil {
		verifier = NewVerifier(pickClient(backends.Verifier, backends.Default), cfg)
	}

	logger := logging.WithComponent("crag_engine").With("engine", cfg.Name)
	sink := cfg.trace
	if sink == nil {
		sink = &SlogTraceSink{Logger: logger}
	}

	e := &Engine{
		cfg:       cfg,
		retriever: retriever,
		generator: generator,
		analyzer:  analyzer,
		grader:    grader,
		rewriter:  rewriter,
		verifier:  verifier,
		trace:     sink,
		logger:    logger,
	}
	logger.Info("corrective engine initialised",
		"max_iterations", cfg.MaxIterations,
		"grade_threshold", cfg.GradeThreshold,
		"verification", cfg.EnableVerification,
	)
	return e, nil
}

func pickClient(primary, fallback llm.Client) llm.Client {
	if primary != nil {
		return primary
	}
	return fallback
}

// Answer runs the full correction loop for one query. Only fatal conditions
// (blank input, retrieval or generation failure, cancellation) return an
// error; everything else completes with quality signals on the Result.
func (e *Engine) Answer(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: query text is blank", ErrEmptyQuery)
	}
	e.logger.Info("request started", "query", trimForLog(q.Text, 120))

	var analysis *Analysis
	if err := e.step(ctx, StateAnalyzing, 0, func() (string, error) {
		a, err := e.analyzer.Analyze(ctx, q)
		if err != nil {
			return "failed", err
		}
		analysis = a
		return string(a.Complexity), nil
	}); err != nil {
		return nil, err
	}

	var (
		current      = strings.TrimSpace(q.Text)
		searchSet    = []string{current}
		iterations   int
		evidence     []Evidence
		grading      *GradingResult
		bestEvidence []Evidence
		bestAvg      = -1.0
		rewrites     []Rewrite
		rewrittenQ   string
		warnings     []string
	)

	for {
		if err := e.step(ctx, StateRetrieving, iterations, func() (string, error) {
			items, err := e.searchAll(ctx, searchSet, analysis.Topics)
			if err != nil {
				return "failed", fmt.Errorf("%w: %v", ErrRetrieval, err)
			}
			evidence = items
			return fmt.Sprintf("%d items", len(items)), nil
		}); err != nil {
			return nil, err
		}
		if len(rewrites) > 0 {
			// This retrieval succeeded against a rewritten query.
			rewrittenQ = current
		}

		if err := e.step(ctx, StateGrading, iterations, func() (string, error) {
			g, err := e.grader.Grade(ctx, current, evidence)
			if err != nil {
				return "failed", err
			}
			grading = g
			if g.NeedsRewrite {
				return "rewrite", nil
			}
			return "accepted", nil
		}); err != nil {
			return nil, err
		}

		if grading.AvgScore > bestAvg {
			bestAvg = grading.AvgScore
			bestEvidence = evidence
		}

		if !grading.NeedsRewrite {
			break
		}
		if iterations >= e.cfg.MaxIterations {
			// Exhaust-and-proceed: the loop never blocks indefinitely.
			warnings = append(warnings, fmt.Sprintf(
				"evidence relevance stayed below %.1f after %d rewrite attempts; answering from the best evidence gathered",
				e.cfg.GradeThreshold, iterations))
			break
		}

		// Iterations increment on entry to rewriting, bounding the loop.
		iterations++
		var outcome *Rewrite
		rewriteErr := e.step(ctx, StateRewriting, iterations, func() (string, error) {
			var (
				r   *Rewrite
				err error
			)
			if analysis.Complexity == ComplexityComplex && iterations == 1 {
				r, err = e.rewriter.Decompose(ctx, current)
			} else {
				r, err = e.rewriter.Rewrite(ctx, current, grading.Feedback)
			}
			if err != nil {
				return "failed", err
			}
			outcome = r
			return string(r.Strategy), nil
		})
		if rewriteErr != nil {
			if ctx.Err() != nil {
				return nil, rewriteErr
			}
			// Non-fatal: stop retrying, answer from the best evidence so far.
			e.logger.Warn("rewrite unavailable, ending correction loop", "error", rewriteErr)
			warnings = append(warnings, "query rewriting was unavailable; evidence quality could not be improved")
			evidence = bestEvidence
			break
		}

		rewrites = append(rewrites, *outcome)
		current = outcome.Query
		if len(outcome.SubQueries) > 0 {
			searchSet = outcome.SubQueries
		} else {
			searchSet = []string{current}
		}
	}

	var draft *Draft
	if err := e.step(ctx, StateGenerating, iterations, func() (string, error) {
		d, err := e.generator.Generate(ctx, current, evidence)
		if err != nil {
			return "failed", fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		draft = d
		return "ok", nil
	}); err != nil {
		return nil, err
	}

	var verification *Verification
	if e.cfg.EnableVerification || analysis.RequiresVerification {
		if err := e.step(ctx, StateVerifying, iterations, func() (string, error) {
			v, err := e.verifier.Verify(ctx, draft, evidence)
			if err != nil {
				// Local recovery: a broken verifier degrades to a warning.
				verification = &Verification{
					Issues:     []string{fmt.Sprintf("verification failed: %v", err)},
					Confidence: 0,
				}
				return "degraded", nil
			}
			verification = v
			if v.NeedsWarning(e.cfg.MinConfidence) {
				return "flagged", nil
			}
			return "clean", nil
		}); err != nil {
			return nil, err
		}
		if verification.NeedsWarning(e.cfg.MinConfidence) {
			warnings = append(warnings, verificationWarning(verification, e.cfg.MinConfidence))
		}
	}

	result := &Result{
		Query:          q.Text,
		RewrittenQuery: rewrittenQ,
		Answer:         draft.Text,
		Citations:      draft.Citations,
		WasRewritten:   iterations > 0,
		Iterations:     iterations,
		Rewrites:       rewrites,
		Verification:   verification,
		Warnings:       warnings,
	}

	e.trace.OnTransition(ctx, TraceEvent{State: StateDone, Outcome: "ok", Iteration: iterations})
	e.logger.Info("request completed",
		"query", trimForLog(q.Text, 120),
		"iterations", iterations,
		"was_rewritten", result.WasRewritten,
		"warnings", len(warnings),
	)
	return result, nil
}

// searchAll queries the retriever once per entry in the search set and merges
// the results, deduplicating by evidence ID.
func (e *Engine) searchAll(ctx context.Context, queries []string, hints []string) ([]Evidence, error) {
	if len(queries) == 1 {
		return e.retriever.Search(ctx, queries[0], hints, e.cfg.SearchLimit)
	}

	seen := make(map[string]struct{})
	var merged []Evidence
	for _, query := range queries {
		items, err := e.retriever.Search(ctx, query, hints, e.cfg.SearchLimit)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.ID != "" {
				if _, dup := seen[item.ID]; dup {
					continue
				}
				seen[item.ID] = struct{}{}
			}
			merged = append(merged, item)
		}
	}
	return merged, nil
}

// step runs one state, emits exactly one trace event for it, and propagates
// the state's error. Cancellation is checked before the state starts.
func (e *Engine) step(ctx context.Context, state State, iteration int, fn func() (string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	outcome, err := fn()
	e.trace.OnTransition(ctx, TraceEvent{
		State:     state,
		Outcome:   outcome,
		Iteration: iteration,
		Duration:  time.Since(start),
		Err:       err,
	})
	return err
}

func verificationWarning(v *Verification, minConfidence float64) string {
	if len(v.Issues) > 0 {
		return fmt.Sprintf("answer verification raised %d issue(s): %s", len(v.Issues), strings.Join(v.Issues, "; "))
	}
	return fmt.Sprintf("answer verification confidence %.2f is below the %.2f floor", v.Confidence, minConfidence)
}
