// Package engine answers form questions through an ordered strategy chain.
// The chain always terminates with a usable value; a question is never left
// unanswered and no strategy error escapes Answer.
package engine

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/ai"
	"github.com/applyflow/applyflow/internal/classify"
	"github.com/applyflow/applyflow/internal/forms"
	"github.com/applyflow/applyflow/internal/logger"
	"github.com/applyflow/applyflow/internal/profile"
	"github.com/applyflow/applyflow/internal/respond"
)

// strategy is a single answering step. Attempt reports false when the step
// cannot produce a value for this question.
type strategy interface {
	Name() forms.Strategy
	IsEnabled() bool
	Attempt(ctx context.Context, cls classify.Classification, q forms.Question) (string, bool)
}

// FallbackRecord captures a question answered by the universal fallback so an
// operator can review weak answers after the run.
type FallbackRecord struct {
	Question string
	Answer   string
	JobID    string
	Company  string
}

// Stats is a snapshot of how questions were answered during a run.
type Stats struct {
	Total      int
	ByStrategy map[forms.Strategy]int
	Fallbacks  []FallbackRecord
}

// Engine produces exactly one answer per question. Not safe for concurrent use.
type Engine struct {
	classifier *classify.Classifier
	strategies []strategy
	logger     *zap.Logger

	total      int
	byStrategy map[forms.Strategy]int
	fallbacks  []FallbackRecord
}

// New builds the engine with the full strategy chain. A nil answerer disables
// the remote AI step; the rest of the chain is unaffected.
func New(prof *profile.Profile, answerer ai.Answerer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	classifier := classify.New()
	generator := respond.New(prof)

	return &Engine{
		classifier: classifier,
		logger:     log,
		byStrategy: make(map[forms.Strategy]int),
		strategies: []strategy{
			&remoteAIStrategy{answerer: answerer, logger: log},
			&patternStrategy{classifier: classifier, generator: generator},
			&safeDefaultStrategy{profile: prof},
			&universalFallbackStrategy{},
		},
	}
}

// Answer evaluates the chain and returns the first validated result. The
// universal fallback is accepted without validation, so Answer always
// returns a value.
func (e *Engine) Answer(ctx context.Context, q forms.Question) forms.Answer {
	cls := e.classifier.Classify(q.Text, q.Options)

	for _, s := range e.strategies {
		if !s.IsEnabled() {
			continue
		}

		value, ok := s.Attempt(ctx, cls, q)
		if !ok {
			continue
		}

		validated := forms.Validate(value, q.Kind, q.Options)
		if s.Name() != forms.StrategyUniversalFallback && !validated {
			e.logger.Debug("strategy produced invalid value",
				zap.String("strategy", string(s.Name())),
				zap.String("question", logger.TruncateForLog(q.Text, 120)),
				zap.String("value", logger.TruncateForLog(value, 60)),
			)
			continue
		}

		e.record(s.Name(), value, q)
		return forms.Answer{Value: value, Source: s.Name(), Validated: validated}
	}

	// Unreachable: the universal fallback always succeeds. Kept so the
	// compiler sees a return on every path.
	e.record(forms.StrategyUniversalFallback, "Yes", q)
	return forms.Answer{Value: "Yes", Source: forms.StrategyUniversalFallback}
}

func (e *Engine) record(name forms.Strategy, value string, q forms.Question) {
	e.total++
	e.byStrategy[name]++

	if name != forms.StrategyUniversalFallback {
		return
	}

	rec := FallbackRecord{
		Question: q.Text,
		Answer:   value,
	}
	if q.Job != nil {
		rec.JobID = q.Job.ID
		rec.Company = q.Job.Company
	}
	e.fallbacks = append(e.fallbacks, rec)

	e.logger.Warn("question answered by universal fallback",
		zap.String("question", logger.TruncateForLog(q.Text, 120)),
		zap.String("answer", logger.TruncateForLog(value, 60)),
		zap.String("job_id", rec.JobID),
	)
}

// Stats returns a copy of the run counters.
func (e *Engine) Stats() Stats {
	byStrategy := make(map[forms.Strategy]int, len(e.byStrategy))
	for name, count := range e.byStrategy {
		byStrategy[name] = count
	}

	fallbacks := make([]FallbackRecord, len(e.fallbacks))
	copy(fallbacks, e.fallbacks)

	return Stats{Total: e.total, ByStrategy: byStrategy, Fallbacks: fallbacks}
}

type remoteAIStrategy struct {
	answerer ai.Answerer
	logger   *zap.Logger
}

func (s *remoteAIStrategy) Name() forms.Strategy { return forms.StrategyRemoteAI }

func (s *remoteAIStrategy) IsEnabled() bool { return s.answerer != nil }

func (s *remoteAIStrategy) Attempt(ctx context.Context, _ classify.Classification, q forms.Question) (string, bool) {
	req := ai.AnswerRequest{
		Question: q.Text,
		Kind:     q.Kind,
		Options:  q.Options,
	}
	if q.Job != nil {
		req.Job = *q.Job
	}

	answer, err := s.answerer.AnswerQuestion(ctx, req)
	if err != nil {
		s.logger.Debug("remote ai strategy failed",
			zap.String("question", logger.TruncateForLog(q.Text, 120)),
			zap.Error(err),
		)
		return "", false
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}
	return answer, true
}

type patternStrategy struct {
	classifier *classify.Classifier
	generator  *respond.Generator
}

func (s *patternStrategy) Name() forms.Strategy { return forms.StrategyPattern }

func (s *patternStrategy) IsEnabled() bool { return true }

func (s *patternStrategy) Attempt(_ context.Context, cls classify.Classification, q forms.Question) (string, bool) {
	value := strings.TrimSpace(s.generator.Generate(cls, q))
	if value == "" {
		return "", false
	}
	return value, true
}

// safeDefaultStrategy ignores classification nuance and keys a fixed value
// table on the response type alone.
type safeDefaultStrategy struct {
	profile *profile.Profile
}

func (s *safeDefaultStrategy) Name() forms.Strategy { return forms.StrategySafeDefault }

func (s *safeDefaultStrategy) IsEnabled() bool { return true }

func (s *safeDefaultStrategy) Attempt(_ context.Context, cls classify.Classification, q forms.Question) (string, bool) {
	switch cls.ResponseType {
	case forms.ResponseNumeric, forms.ResponseDecimal, forms.ResponseScaledNumeric:
		years := s.profile.YearsOfExperience
		if years <= 0 {
			years = 1
		}
		return strconv.Itoa(years), true
	case forms.ResponseBoolean:
		return "Yes", true
	case forms.ResponseSelection:
		if opt := respond.BestOption(q.Options); opt != "" {
			return opt, true
		}
		return "", false
	case forms.ResponseLongText:
		return "I am excited about this opportunity and believe my background makes me a strong candidate for the role.", true
	case forms.ResponseURL:
		if s.profile.LinkedInURL != "" {
			return s.profile.LinkedInURL, true
		}
		return "", false
	default:
		return "Yes", true
	}
}

// universalFallbackStrategy cannot fail; its result is accepted unvalidated.
type universalFallbackStrategy struct{}

func (s *universalFallbackStrategy) Name() forms.Strategy { return forms.StrategyUniversalFallback }

func (s *universalFallbackStrategy) IsEnabled() bool { return true }

func (s *universalFallbackStrategy) Attempt(_ context.Context, cls classify.Classification, q forms.Question) (string, bool) {
	if len(q.Options) > 0 {
		return q.Options[0], true
	}

	switch cls.ResponseType {
	case forms.ResponseNumeric, forms.ResponseDecimal, forms.ResponseScaledNumeric:
		return "1", true
	case forms.ResponseLongText, forms.ResponseText:
		return "I am a dedicated professional with relevant experience for this position.", true
	default:
		return "Yes", true
	}
}
