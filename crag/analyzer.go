package crag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harborlight/navqa/llm"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/pkg/logging"
)

// QueryAnalyzer classifies a raw query before retrieval starts.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, q Query) (*Analysis, error)
}

// Analyzer is the default QueryAnalyzer. Complexity classification is
// heuristic and stable for identical input; topic tagging is best-effort and
// may additionally consult an LLM backend when one is configured.
type Analyzer struct {
	backend llm.Client // Optional; heuristics alone are sufficient
	prompt  string
	logger  *slog.Logger
}

// NewAnalyzer builds an analyzer. The backend may be nil, in which case topic
// tagging relies on keyword heuristics only.
func NewAnalyzer(backend llm.Client, cfg *Config) *Analyzer {
	if cfg == nil {
		cfg = defaultConfig()
	}
	return &Analyzer{
		backend: backend,
		prompt:  cfg.AnalyzerPrompt,
		logger:  logging.WithComponent("crag_analyzer"),
	}
}

// topicKeywords maps regulation families to the terms that signal them.
var topicKeywords = map[string][]string{
	"colregs": {
		"collision", "give-way", "give way", "stand-on", "stand on", "crossing",
		"overtaking", "head-on", "navigation light", "sound signal", "restricted visibility",
		"steering and sailing", "right of way",
	},
	"solas": {
		"solas", "life-saving", "lifeboat", "life raft", "fire protection", "fire-fighting",
		"safety equipment", "gmdss", "distress", "muster", "safety of life",
	},
	"marpol": {
		"marpol", "pollution", "discharge", "oily water", "oil record", "garbage",
		"sewage", "emission", "sulphur", "nox", "annex",
	},
	"stcw": {
		"stcw", "watchkeeping", "certification", "seafarer training", "rest hours",
		"competence", "crew qualification",
	},
	"load_lines": {
		"load line", "freeboard", "plimsoll", "draught mark", "draft mark",
	},
	"port_state": {
		"port state", "psc", "detention", "inspection regime",
	},
	"ballast_water": {
		"ballast water", "bwm", "ballast exchange",
	},
}

var enumerationMarkers = []string{
	"all rules", "all requirements", "all regulations", "list ", "list the", "every ",
	"enumerate", "which rules", "what rules", "overview of", "summary of all", "exhaustive",
}

var comparisonMarkers = []string{
	"compare", "difference between", "versus", " vs ", " vs.", "differ from",
	"compared to", "contrast",
}

var multiHopMarkers = []string{
	"and then", "as well as", "in relation to", "combined with", "together with",
	"and how", "and what", "and when",
}

// followUpOpeners are short prompts that typically continue the previous turn.
var followUpOpeners = []string{
	"what about", "and ", "but ", "why", "how so", "does that", "is that",
	"the same", "also", "then what", "what if it",
}

// Analyze classifies the query. It fails only on blank input; topic tagging
// never fails the call.
func (a *Analyzer) Analyze(ctx context.Context, q Query) (*Analysis, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to analyze", ErrEmptyQuery)
	}

	lower := strings.ToLower(text)
	topics := detectTopics(lower)
	enumeration := containsAny(lower, enumerationMarkers)

	complexity := classifyComplexity(lower, q, topics, enumeration)

	if a.backend != nil {
		topics = a.mergeBackendTopics(ctx, text, topics)
	}
	sort.Strings(topics)

	analysis := &Analysis{
		Complexity:           complexity,
		RequiresVerification: complexity == ComplexityComplex || enumeration,
		Topics:               topics,
	}
	a.logger.Debug("query analyzed",
		"query", trimForLog(text, 120),
		"complexity", analysis.Complexity,
		"topics", analysis.Topics,
		"requires_verification", analysis.RequiresVerification,
	)
	return analysis, nil
}

func classifyComplexity(lower string, q Query, topics []string, enumeration bool) Complexity {
	switch {
	case enumeration:
		return ComplexityComplex
	case len(topics) > 1:
		// Spanning regulatory domains usually means multi-hop retrieval.
		return ComplexityComplex
	case containsAny(lower, multiHopMarkers) && len(strings.Fields(lower)) > 12:
		return ComplexityComplex
	case containsAny(lower, comparisonMarkers):
		return ComplexityModerate
	case len(q.Context) > 0 && isFollowUp(lower):
		// Short follow-ups lean on the previous turns to be answerable.
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

func detectTopics(lower string) []string {
	var topics []string
	for family, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, family)
				break
			}
		}
	}
	return topics
}

func isFollowUp(lower string) bool {
	if len(strings.Fields(lower)) > 8 {
		return false
	}
	for _, opener := range followUpOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

type topicTags struct {
	Topics []string `json:"topics"`
}

// mergeBackendTopics asks the backend for additional tags. Failures are
// logged and swallowed; the heuristic tags always survive.
func (a *Analyzer) mergeBackendTopics(ctx context.Context, text string, topics []string) []string {
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, a.prompt),
		message.NewMessage(message.RoleUser, fmt.Sprintf("Question: %s\nReturn JSON only.", text)),
	}
	resp, err := a.backend.Generate(ctx, msgs)
	if err != nil {
		a.logger.Debug("topic backend failed, keeping heuristic tags", "error", err)
		return topics
	}
	tags, err := decodeJSON[topicTags](resp.Content)
	if err != nil {
		a.logger.Debug("topic backend output invalid", "error", err)
		return topics
	}

	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		seen[t] = struct{}{}
	}
	for _, t := range tags.Topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			topics = append(topics, t)
		}
	}
	return topics
}
