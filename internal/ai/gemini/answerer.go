package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/ai"
	"github.com/applyflow/applyflow/internal/forms"
	"github.com/applyflow/applyflow/internal/logger"
	"github.com/applyflow/applyflow/internal/profile"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type cachedContentGenerator interface {
	contentGenerator
	GenerateContentWithCache(ctx context.Context, prompt, cacheName string) (string, error)
}

//go:embed answer_prompt.md
var answerPromptTemplate string

//go:embed resume_prompt.md
var resumePromptTemplate string

const defaultMaxLogLength = 200

// Answerer asks Gemini to answer application form questions using the
// applicant profile. Identical questions are answered from a local cache
// without another API call. Not safe for concurrent use.
type Answerer struct {
	generator contentGenerator
	profile   *profile.Profile
	logger    *zap.Logger
	maxLogLen int
	cache     map[string]string

	profileCacheName string
}

func NewAnswerer(generator contentGenerator, prof *profile.Profile, log *zap.Logger, maxLogLength int) *Answerer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Answerer{
		generator: generator,
		profile:   prof,
		logger:    log,
		maxLogLen: maxLogLength,
		cache:     make(map[string]string),
	}
}

// EnableProfileCache routes question prompts through the named Gemini
// cached-content resource instead of resending the profile text each time.
// No-op when the generator cannot serve cached content.
func (a *Answerer) EnableProfileCache(name string) {
	if _, ok := a.generator.(cachedContentGenerator); ok {
		a.profileCacheName = strings.TrimSpace(name)
	}
}

// AnswerQuestion returns Gemini's answer for the question, trimmed. An empty
// answer means the model declined; callers treat it as unusable.
func (a *Answerer) AnswerQuestion(ctx context.Context, req ai.AnswerRequest) (string, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", fmt.Errorf("question text is required")
	}

	key := cacheKey(question, string(req.Kind), req.Options)
	if answer, ok := a.cache[key]; ok {
		a.logger.Debug("answer cache hit",
			zap.String("question", logger.TruncateForLog(question, a.maxLogLen)),
		)
		return answer, nil
	}

	prompt := a.buildAnswerPrompt(question, req)

	a.logger.Debug("gemini answer request",
		zap.String("question", logger.TruncateForLog(question, a.maxLogLen)),
		zap.String("field_kind", string(req.Kind)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	var raw string
	var err error
	if cg, ok := a.generator.(cachedContentGenerator); ok && a.profileCacheName != "" {
		raw, err = cg.GenerateContentWithCache(ctx, prompt, a.profileCacheName)
	} else {
		raw, err = a.generator.GenerateContent(ctx, prompt)
	}
	if err != nil {
		return "", err
	}

	a.logger.Debug("gemini answer response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, a.maxLogLen)),
	)

	answer, err := parseAnswer(raw)
	if err != nil {
		return "", err
	}

	a.cache[key] = answer
	return answer, nil
}

// PickResume asks Gemini to select one variant name for the job. The result
// is not checked against names here; the caller owns validation.
func (a *Answerer) PickResume(ctx context.Context, job forms.JobContext, names []string) (string, error) {
	if len(names) == 0 {
		return "", fmt.Errorf("at least one resume variant is required")
	}

	var variants strings.Builder
	for _, name := range names {
		variants.WriteString("- ")
		variants.WriteString(name)
		variants.WriteString("\n")
	}

	prompt := strings.ReplaceAll(resumePromptTemplate, "{{JOB}}", formatJob(job))
	prompt = strings.ReplaceAll(prompt, "{{VARIANTS}}", variants.String())

	a.logger.Debug("gemini resume pick request",
		zap.String("company", job.Company),
		zap.String("title", job.Title),
		zap.Int("variants", len(names)),
	)

	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}

	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return "", fmt.Errorf("parse gemini resume response: %w", err)
	}

	return coerceString(data["resume"]), nil
}

func (a *Answerer) buildAnswerPrompt(question string, req ai.AnswerRequest) string {
	optionsBlock := ""
	if len(req.Options) > 0 {
		var b strings.Builder
		b.WriteString("Options:\n")
		for _, opt := range req.Options {
			b.WriteString("- ")
			b.WriteString(opt)
			b.WriteString("\n")
		}
		optionsBlock = b.String()
	}

	profileText := a.profile.FormatForAI()
	if a.profileCacheName != "" {
		profileText = "(applicant profile provided as cached context)"
	}

	prompt := strings.ReplaceAll(answerPromptTemplate, "{{PROFILE}}", profileText)
	prompt = strings.ReplaceAll(prompt, "{{JOB}}", formatJob(req.Job))
	prompt = strings.ReplaceAll(prompt, "{{KIND}}", string(req.Kind))
	prompt = strings.ReplaceAll(prompt, "{{QUESTION}}", question)
	prompt = strings.ReplaceAll(prompt, "{{OPTIONS}}", optionsBlock)
	return prompt
}

func formatJob(job forms.JobContext) string {
	var b strings.Builder
	if job.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", job.Title)
	}
	if job.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", job.Company)
	}
	if job.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", job.Description)
	}
	if b.Len() == 0 {
		return "(no job context)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func parseAnswer(raw string) (string, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return "", fmt.Errorf("parse gemini answer response: %w", err)
	}

	return coerceString(data["answer"]), nil
}

func cacheKey(question, kind string, options []string) string {
	parts := []string{strings.ToLower(question), kind}
	parts = append(parts, options...)
	return strings.Join(parts, "\x1f")
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
