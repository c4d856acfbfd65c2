package crag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/pkg/logging"
)

// EvidenceGrader scores a batch of retrieved evidence against a query.
type EvidenceGrader interface {
	Grade(ctx context.Context, query string, evidence []Evidence) (*GradingResult, error)
}

// Grader is the default EvidenceGrader. Items are scored independently and
// concurrently; one item's scoring failure never aborts the batch. The item
// is assigned the minimum score with a rationale noting the failure.
type Grader struct {
	backend   llm.Client
	threshold float64
	cutoff    float64
	prompt    string
	logger    *slog.Logger
}

// NewGrader builds a grader around the given scoring backend.
func NewGrader(backend llm.Client, cfg *Config) *Grader {
	if cfg == nil {
		cfg = defaultConfig()
	}
	return &Grader{
		backend:   backend,
		threshold: cfg.GradeThreshold,
		cutoff:    cfg.RelevanceCutoff,
		prompt:    cfg.GraderPrompt,
		logger:    logging.WithComponent("crag_grader"),
	}
}

// Grade scores every evidence item on a 0-10 relevance scale. Empty input is
// not an error: it yields avg 0, NeedsRewrite, and explanatory feedback.
func (g *Grader) Grade(ctx context.Context, query string, evidence []Evidence) (*GradingResult, error) {
	result := &GradingResult{Query: query}
	if len(evidence) == 0 {
		result.NeedsRewrite = true
		result.Feedback = "retrieval returned no evidence; the phrasing likely matches nothing in the index. Name the regulation family or rule explicitly"
		return result, nil
	}

	// Fan out per item, collect in input order. Sibling failures stay isolated.
	grades := make([]Grade, len(evidence))
	var wg sync.WaitGroup
	for i, item := range evidence {
		wg.Add(1)
		go func(idx int, ev Evidence) {
			defer wg.Done()
			grades[idx] = g.gradeOne(ctx, query, ev)
		}(i, item)
	}
	wg.Wait()

	var sum float64
	for _, grade := range grades {
		sum += grade.Score
		if grade.Score >= g.cutoff {
			result.RelevantCount++
		}
	}
	result.Grades = grades
	result.AvgScore = sum / float64(len(grades))
	result.NeedsRewrite = result.AvgScore < g.threshold
	if result.NeedsRewrite {
		result.Feedback = g.buildFeedback(result)
	}

	g.logger.Debug("evidence graded",
		"query", trimForLog(query, 120),
		"items", len(grades),
		"avg_score", result.AvgScore,
		"relevant", result.RelevantCount,
		"needs_rewrite", result.NeedsRewrite,
	)
	return result, nil
}

type itemGrade struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

func (g *Grader) gradeOne(ctx context.Context, query string, ev Evidence) Grade {
	if g.backend == nil {
		return Grade{EvidenceID: ev.ID, Score: 0, Rationale: "no scoring backend configured"}
	}

	userPrompt := fmt.Sprintf("Question:\n%s\n\nPassage [%s] (%s %s):\n%s\n\nReturn JSON only.",
		query, ev.ID, ev.Source, ev.Locator, ev.Text)
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, g.prompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}

	resp, err := g.backend.Generate(ctx, msgs)
	if err != nil {
		g.logger.Warn("grading call failed, scoring item 0", "evidence_id", ev.ID, "error", err)
		return Grade{EvidenceID: ev.ID, Score: 0, Rationale: fmt.Sprintf("grading call failed: %v", err)}
	}

	parsed, err := decodeJSON[itemGrade](resp.Content)
	if err != nil {
		g.logger.Warn("grading output invalid, scoring item 0", "evidence_id", ev.ID, "error", err)
		return Grade{EvidenceID: ev.ID, Score: 0, Rationale: fmt.Sprintf("grading output unparseable: %v", err)}
	}

	return Grade{
		EvidenceID: ev.ID,
		Score:      clamp(parsed.Score, 0, 10),
		Rationale:  parsed.Rationale,
	}
}

// buildFeedback names why the batch is weak so the rewriter has actionable
// input. It leans on the strongest item's rationale: what the closest match
// covers tells the rewriter what the query failed to ask for.
func (g *Grader) buildFeedback(result *GradingResult) string {
	best := result.Grades[0]
	for _, grade := range result.Grades[1:] {
		if grade.Score > best.Score {
			best = grade
		}
	}

	feedback := fmt.Sprintf("average relevance %.1f across %d items is below %.1f; %d scored at or above %.1f",
		result.AvgScore, len(result.Grades), g.threshold, result.RelevantCount, g.cutoff)
	if best.Rationale != "" {
		feedback += "; closest match: " + best.Rationale
	}
	return feedback
}
