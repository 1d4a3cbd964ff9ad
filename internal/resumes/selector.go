package resumes

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/ai"
	"github.com/applyflow/applyflow/internal/forms"
)

const (
	historyFileName  = "selection_history.json"
	historyFlushSize = 10
	fingerprintDesc  = 500
)

// SelectionInfo explains how a variant was chosen.
type SelectionInfo struct {
	Method string // single, cache, ai, rules
	Score  int
}

// SelectionEvent is one history entry in the selection log.
type SelectionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id,omitempty"`
	Company   string    `json:"company"`
	Title     string    `json:"title"`
	Variant   string    `json:"variant"`
	Method    string    `json:"method"`
}

// Selector picks a resume variant per job. Choices are cached by a job
// fingerprint so an identical job never re-invokes the AI backend.
// Not safe for concurrent use.
type Selector struct {
	library     *Library
	picker      ai.ResumePicker
	logger      *zap.Logger
	historyPath string

	cache   map[string]string
	pending []SelectionEvent
}

// NewSelector builds a selector. A nil picker disables AI ranking; rule
// scoring then decides every miss. History is written under historyDir.
func NewSelector(library *Library, picker ai.ResumePicker, historyDir string, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{
		library:     library,
		picker:      picker,
		logger:      log,
		historyPath: filepath.Join(historyDir, historyFileName),
		cache:       make(map[string]string),
	}
}

// Select returns the best variant for the job. With a single variant the
// choice is trivial; otherwise cache, AI ranking, and rule scoring are
// consulted in that order.
func (s *Selector) Select(ctx context.Context, job forms.JobContext, requiredSkills []string) (Variant, SelectionInfo, error) {
	variants, err := s.library.Variants()
	if err != nil {
		return Variant{}, SelectionInfo{}, err
	}
	if len(variants) == 0 {
		return Variant{}, SelectionInfo{}, errors.New("no resume variants available")
	}

	if len(variants) == 1 {
		s.record(job, variants[0].Name, "single")
		return variants[0], SelectionInfo{Method: "single"}, nil
	}

	key := fingerprint(job)
	if name, ok := s.cache[key]; ok {
		if v, found := byName(variants, name); found {
			return v, SelectionInfo{Method: "cache"}, nil
		}
		// The cached variant disappeared from disk; fall through.
		delete(s.cache, key)
	}

	if s.picker != nil {
		if v, ok := s.pickWithAI(ctx, job, variants); ok {
			s.cache[key] = v.Name
			s.record(job, v.Name, "ai")
			return v, SelectionInfo{Method: "ai"}, nil
		}
	}

	v, score := pickByRules(variants, job, requiredSkills)
	s.cache[key] = v.Name
	s.record(job, v.Name, "rules")
	return v, SelectionInfo{Method: "rules", Score: score}, nil
}

func (s *Selector) pickWithAI(ctx context.Context, job forms.JobContext, variants []Variant) (Variant, bool) {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name
	}

	name, err := s.picker.PickResume(ctx, job, names)
	if err != nil {
		s.logger.Warn("ai resume ranking failed, using rule scoring",
			zap.String("company", job.Company),
			zap.Error(err),
		)
		return Variant{}, false
	}

	v, found := byName(variants, name)
	if !found {
		s.logger.Warn("ai named an unknown resume variant, using rule scoring",
			zap.String("picked", name),
		)
		return Variant{}, false
	}
	return v, true
}

// pickByRules scores every variant against the job and returns the best,
// ties broken by input order.
func pickByRules(variants []Variant, job forms.JobContext, requiredSkills []string) (Variant, int) {
	best := variants[0]
	bestScore := -1

	for _, v := range variants {
		score := scoreVariant(v, job, requiredSkills)
		if score > bestScore {
			best = v
			bestScore = score
		}
	}
	return best, bestScore
}

func scoreVariant(v Variant, job forms.JobContext, requiredSkills []string) int {
	title := strings.ToLower(job.Title)
	description := strings.ToLower(job.Description)
	text := strings.ToLower(v.Excerpt)

	score := 0

	// Category named in the job title.
	if v.Category != "" && strings.Contains(title, v.Category) {
		score += 20
	}

	for _, skill := range requiredSkills {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill == "" {
			continue
		}
		if strings.Contains(text, skill) || containsSkill(v.Skills, skill) {
			score += 10
		}
	}

	for _, word := range keywords(description) {
		if strings.Contains(text, word) {
			score += 5
		}
	}

	if name := strings.ToLower(v.Name); name != "" && strings.Contains(title, name) {
		score += 15
	}

	if v.ExperienceLevel != "" && strings.Contains(title, v.ExperienceLevel) {
		score += 10
	}

	return score
}

func containsSkill(skills []string, skill string) bool {
	for _, s := range skills {
		if s == skill {
			return true
		}
	}
	return false
}

// keywords extracts up to 20 distinct significant words from a description.
func keywords(text string) []string {
	seen := make(map[string]struct{})
	var words []string

	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,;:()[]{}!?\"'")
		if len(word) < 5 {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
		if len(words) == 20 {
			break
		}
	}
	return words
}

func byName(variants []Variant, name string) (Variant, bool) {
	name = strings.TrimSpace(name)
	for _, v := range variants {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Variant{}, false
}

func fingerprint(job forms.JobContext) string {
	desc := job.Description
	if len(desc) > fingerprintDesc {
		desc = desc[:fingerprintDesc]
	}
	sum := sha256.Sum256([]byte(job.Company + "|" + job.Title + "|" + desc))
	return fmt.Sprintf("%x", sum[:])
}

// record queues a history event and flushes the log every tenth selection.
func (s *Selector) record(job forms.JobContext, variant, method string) {
	s.pending = append(s.pending, SelectionEvent{
		Timestamp: time.Now(),
		JobID:     job.ID,
		Company:   job.Company,
		Title:     job.Title,
		Variant:   variant,
		Method:    method,
	})

	if len(s.pending) >= historyFlushSize {
		s.FlushHistory()
	}
}

// FlushHistory appends pending events to the selection log. Called
// automatically every tenth selection and by the runner on shutdown.
func (s *Selector) FlushHistory() {
	if len(s.pending) == 0 {
		return
	}

	var history []SelectionEvent
	if data, err := os.ReadFile(s.historyPath); err == nil {
		if err := json.Unmarshal(data, &history); err != nil {
			s.logger.Warn("selection history is corrupt, starting over",
				zap.String("path", s.historyPath),
				zap.Error(err),
			)
			history = nil
		}
	}

	history = append(history, s.pending...)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		s.logger.Warn("encoding selection history failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.historyPath, data, 0o644); err != nil {
		s.logger.Warn("writing selection history failed",
			zap.String("path", s.historyPath),
			zap.Error(err),
		)
		return
	}

	s.pending = s.pending[:0]
}
