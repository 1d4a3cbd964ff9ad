// Package session drives the run loop: one job end-to-end before the next,
// with all pacing, answering, and recovery routed through the collaborators.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/behavior"
	"github.com/applyflow/applyflow/internal/browser"
	"github.com/applyflow/applyflow/internal/engine"
	"github.com/applyflow/applyflow/internal/forms"
	"github.com/applyflow/applyflow/internal/recovery"
	"github.com/applyflow/applyflow/internal/resumes"
)

// Job is one application target.
type Job struct {
	ID             string
	Title          string
	Company        string
	Description    string
	URL            string
	RequiredSkills []string
}

// FormField pairs a question with the locators needed to answer it.
type FormField struct {
	Question    forms.Question
	Locator     string
	AltLocators []string
}

// FormReader extracts the application form from the current page.
type FormReader interface {
	Fields(ctx context.Context) ([]FormField, error)
	NextLocator(ctx context.Context) (string, bool)
	SubmitLocator(ctx context.Context) (string, bool)
}

type answerer interface {
	Answer(ctx context.Context, q forms.Question) forms.Answer
	Stats() engine.Stats
}

type recoverer interface {
	Recover(ctx context.Context, rc recovery.Context) recovery.Result
	Stats() recovery.Report
}

type pacer interface {
	SmartDelay(ctx context.Context, action string, dctx behavior.DelayContext) (time.Duration, error)
	TypeDelay(ctx context.Context, chars int) (time.Duration, error)
	CheckRateLimits(ctx context.Context) (bool, error)
	RecordApplication(d time.Duration)
	DetectChallenge(pageText string) bool
	HandleDetection(ctx context.Context) error
	Flush() error
}

type resumeSelector interface {
	Select(ctx context.Context, job forms.JobContext, requiredSkills []string) (resumes.Variant, resumes.SelectionInfo, error)
	FlushHistory()
}

// Consecutive next-step transitions allowed within one form before the job
// is treated as a loop and aborted.
const maxFormSteps = 15

// Deps aggregates the runner's collaborators.
type Deps struct {
	Driver   browser.Driver
	Forms    FormReader
	Engine   answerer
	Recovery recoverer
	Governor pacer
	Selector resumeSelector
	Journal  *Journal
	Logger   *zap.Logger
}

// Summary is the end-of-run report.
type Summary struct {
	Applied          int
	Failed           int
	Skipped          int
	FallbackAnswered int
	RecoveryRate     float64
}

// Runner processes jobs sequentially. Not safe for concurrent use.
type Runner struct {
	deps Deps

	applied int
	failed  int
	skipped int
}

func NewRunner(deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{deps: deps}
}

// Run processes every job and returns the summary. Cancellation is
// cooperative: the context is checked between jobs and between questions,
// and counters are flushed before returning.
func (r *Runner) Run(ctx context.Context, jobs []Job) (Summary, error) {
	log := r.deps.Logger

	log.Info("starting run",
		zap.String("run_id", r.deps.Journal.RunID()),
		zap.Int("jobs", len(jobs)),
	)

	for i, job := range jobs {
		if ctx.Err() != nil {
			r.skipped += len(jobs) - i
			break
		}

		ok, err := r.deps.Governor.CheckRateLimits(ctx)
		if err != nil {
			r.skipped += len(jobs) - i
			break
		}
		if !ok {
			log.Warn("rate ceiling reached, skipping remaining jobs",
				zap.Int("remaining", len(jobs)-i),
			)
			r.skipped += len(jobs) - i
			break
		}

		r.processJob(ctx, job)
	}

	summary := r.summary()

	log.Info("run complete",
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("fallback_answered", summary.FallbackAnswered),
		zap.Float64("recovery_rate", summary.RecoveryRate),
	)

	r.deps.Selector.FlushHistory()
	if err := r.deps.Governor.Flush(); err != nil {
		log.Warn("flushing behavior counters failed", zap.Error(err))
	}

	return summary, ctx.Err()
}

func (r *Runner) summary() Summary {
	engineStats := r.deps.Engine.Stats()
	recoveryStats := r.deps.Recovery.Stats()

	return Summary{
		Applied:          r.applied,
		Failed:           r.failed,
		Skipped:          r.skipped,
		FallbackAnswered: len(engineStats.Fallbacks),
		RecoveryRate:     recoveryStats.Rate(),
	}
}

// processJob runs one application end-to-end. Failures never propagate:
// the job is journaled as failed and the runner moves on.
func (r *Runner) processJob(ctx context.Context, job Job) {
	log := r.deps.Logger.With(
		zap.String("job_id", job.ID),
		zap.String("company", job.Company),
	)

	start := time.Now()
	jobCtx := forms.JobContext{
		ID:          job.ID,
		Title:       job.Title,
		Company:     job.Company,
		Description: job.Description,
	}

	variant, info, err := r.deps.Selector.Select(ctx, jobCtx, job.RequiredSkills)
	if err != nil {
		log.Error("resume selection failed", zap.Error(err))
		r.failJob(job, "resume_selection", err.Error())
		return
	}
	log.Info("resume selected",
		zap.String("variant", variant.Name),
		zap.String("method", info.Method),
	)

	if _, err := r.deps.Governor.SmartDelay(ctx, "job_click", behavior.DelayContext{}); err != nil {
		return
	}
	if err := r.deps.Driver.Navigate(ctx, job.URL); err != nil {
		log.Error("navigation failed", zap.Error(err))
		r.failJob(job, "navigation", err.Error())
		return
	}
	if _, err := r.deps.Governor.SmartDelay(ctx, "page_load", behavior.DelayContext{}); err != nil {
		return
	}

	if text, err := r.deps.Driver.PageText(ctx); err == nil && r.deps.Governor.DetectChallenge(text) {
		if err := r.deps.Governor.HandleDetection(ctx); err != nil {
			return
		}
		// One fresh attempt after the back-off.
		if err := r.deps.Driver.Navigate(ctx, job.URL); err != nil {
			r.failJob(job, "navigation", err.Error())
			return
		}
	}

	answers, ok := r.fillForm(ctx, job, jobCtx)
	if !ok {
		r.failed++
		return
	}

	if !r.submit(ctx, job) {
		r.failed++
		return
	}

	if _, err := r.deps.Governor.SmartDelay(ctx, "form_submit", behavior.DelayContext{}); err != nil {
		return
	}

	rec := AppliedRecord{
		JobID:       job.ID,
		Title:       job.Title,
		Company:     job.Company,
		Resume:      variant.Path,
		Answers:     answers,
		StartedAt:   start,
		SubmittedAt: time.Now(),
	}
	if err := r.deps.Journal.RecordApplied(rec); err != nil {
		log.Warn("writing application record failed", zap.Error(err))
	}

	r.deps.Governor.RecordApplication(time.Since(start))
	r.applied++

	log.Info("application submitted",
		zap.Int("questions", len(answers)),
		zap.Duration("duration", time.Since(start)),
	)
}

// fillForm walks the form pages, answering every field. Returns false when
// the job was aborted.
func (r *Runner) fillForm(ctx context.Context, job Job, jobCtx forms.JobContext) ([]QA, bool) {
	var answers []QA

	for step := 0; ; step++ {
		if step >= maxFormSteps {
			r.deps.Logger.Error("form loop detected, aborting job",
				zap.String("job_id", job.ID),
				zap.Int("steps", step),
			)
			r.failJob(job, "form_loop", fmt.Sprintf("form did not finish after %d steps", step))
			return nil, false
		}

		fields, err := r.deps.Forms.Fields(ctx)
		if err != nil {
			result := r.deps.Recovery.Recover(ctx, recovery.Context{
				Kind:    recovery.ClassifyError(err),
				JobID:   job.ID,
				Company: job.Company,
			})
			if !result.Success {
				return nil, false
			}
			continue
		}

		for _, field := range fields {
			if ctx.Err() != nil {
				return nil, false
			}

			q := field.Question
			q.Job = &jobCtx

			if _, err := r.deps.Governor.SmartDelay(ctx, "question_read", behavior.DelayContext{
				TextLength: len(q.Text),
			}); err != nil {
				return nil, false
			}

			answer := r.deps.Engine.Answer(ctx, q)

			if !r.applyAnswer(ctx, job, field, answer) {
				return nil, false
			}

			answers = append(answers, QA{
				Question: q.Text,
				Answer:   answer.Value,
				Strategy: string(answer.Source),
			})

			if _, err := r.deps.Governor.SmartDelay(ctx, "question_answer", behavior.DelayContext{
				TextLength: len(answer.Value),
			}); err != nil {
				return nil, false
			}
		}

		next, ok := r.deps.Forms.NextLocator(ctx)
		if !ok {
			return answers, true
		}
		if !r.clickLocator(ctx, job, next) {
			return nil, false
		}
		if _, err := r.deps.Governor.SmartDelay(ctx, "button_click", behavior.DelayContext{}); err != nil {
			return nil, false
		}
	}
}

// applyAnswer writes one answer into the page, routing failures through
// recovery. Returns false when the job must be abandoned.
func (r *Runner) applyAnswer(ctx context.Context, job Job, field FormField, answer forms.Answer) bool {
	el, err := r.deps.Driver.Locate(ctx, field.Locator)
	if err == nil {
		// Keying the value in takes keystroke time.
		if _, derr := r.deps.Governor.TypeDelay(ctx, len(answer.Value)); derr != nil {
			return false
		}
		err = r.deps.Driver.WriteValue(ctx, el, answer.Value)
		if err == nil {
			return true
		}
	}

	result := r.deps.Recovery.Recover(ctx, recovery.Context{
		Kind:        recovery.ClassifyError(err),
		Element:     el,
		Value:       answer.Value,
		JobID:       job.ID,
		Company:     job.Company,
		FieldKind:   field.Question.Kind,
		Locator:     field.Locator,
		AltLocators: field.AltLocators,
	})
	return result.Success
}

// submit clicks the submit trigger, routing failures through recovery.
func (r *Runner) submit(ctx context.Context, job Job) bool {
	locator, ok := r.deps.Forms.SubmitLocator(ctx)
	if !ok {
		// Single-step forms can complete on the last next-click.
		return true
	}
	return r.clickLocator(ctx, job, locator)
}

func (r *Runner) clickLocator(ctx context.Context, job Job, locator string) bool {
	el, err := r.deps.Driver.Locate(ctx, locator)
	if err == nil {
		err = r.deps.Driver.Click(ctx, el)
		if err == nil {
			return true
		}
	}

	result := r.deps.Recovery.Recover(ctx, recovery.Context{
		Kind:           recovery.ErrorSubmitFailed,
		Element:        el,
		JobID:          job.ID,
		Company:        job.Company,
		Locator:        locator,
		SubmitLocators: []string{locator},
	})
	return result.Success
}

// failJob journals a failure that happened outside the recovery path.
func (r *Runner) failJob(job Job, reason, diagnostic string) {
	r.failed++
	if err := r.deps.Journal.RecordFailure(recovery.FailureRecord{
		Timestamp:  time.Now(),
		JobID:      job.ID,
		Company:    job.Company,
		Reason:     reason,
		Diagnostic: diagnostic,
	}); err != nil {
		r.deps.Logger.Warn("writing failure record failed", zap.Error(err))
	}
}
