// Package recovery repairs failed browser interactions through an ordered
// strategy chain. The chain ends in an abort step that cannot fail, so the
// caller always receives a continue-to-next-job signal.
package recovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/browser"
	"github.com/applyflow/applyflow/internal/forms"
	"github.com/applyflow/applyflow/internal/utils"
)

// ErrorKind tags the failure mode of a browser interaction.
type ErrorKind string

const (
	ErrorNotFound         ErrorKind = "element_not_found"
	ErrorNotInteractable  ErrorKind = "element_not_interactable"
	ErrorStale            ErrorKind = "stale_element"
	ErrorValidationFailed ErrorKind = "validation_failed"
	ErrorSubmitFailed     ErrorKind = "submit_failed"
	ErrorUnknown          ErrorKind = "unknown"
)

// ClassifyError maps a driver error to its ErrorKind.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, browser.ErrNotFound):
		return ErrorNotFound
	case errors.Is(err, browser.ErrNotInteractable):
		return ErrorNotInteractable
	case errors.Is(err, browser.ErrStale):
		return ErrorStale
	default:
		return ErrorUnknown
	}
}

// Context describes one failed interaction. Constructed at the failure site
// and discarded after the recovery attempt.
type Context struct {
	Kind           ErrorKind
	Element        *browser.Element
	Value          string
	JobID          string
	Company        string
	FieldKind      forms.FieldKind
	Locator        string
	AltLocators    []string
	SubmitLocators []string
}

// Result is the outcome of a recovery run. ContinueToNext is always true:
// a failed job never stops the run.
type Result struct {
	Success        bool
	ContinueToNext bool
}

// FailureRecord is the structured record written when a job is aborted.
type FailureRecord struct {
	Timestamp  time.Time
	JobID      string
	Company    string
	Reason     string
	Diagnostic string
	Screenshot string
}

// FailureSink persists failure records for post-run review.
type FailureSink interface {
	RecordFailure(rec FailureRecord) error
}

// strategy is one recovery step. Attempt reports whether the interaction
// was repaired (or, for the abort step, handled).
type strategy interface {
	Name() string
	Attempt(ctx context.Context, rc Context) bool
}

// Report summarizes recovery activity for the end-of-run log.
type Report struct {
	Total      int
	Recovered  int
	Failed     int
	ByStrategy map[string]int
}

// Rate returns the share of failures that were repaired.
func (r Report) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Recovered) / float64(r.Total)
}

// System runs the recovery chain. Not safe for concurrent use.
type System struct {
	logger     *zap.Logger
	strategies []strategy

	total      int
	recovered  int
	failed     int
	byStrategy map[string]int
}

const abortStrategyName = "abort_log"

// New builds the system with the full strategy chain in priority order.
func New(driver browser.Driver, sink FailureSink, log *zap.Logger) *System {
	if log == nil {
		log = zap.NewNop()
	}

	return &System{
		logger:     log,
		byStrategy: make(map[string]int),
		strategies: []strategy{
			&retryAlternateStrategy{driver: driver, logger: log},
			&skipOptionalStrategy{driver: driver},
			&minimalInputStrategy{driver: driver},
			&reloadRetryStrategy{driver: driver, logger: log},
			&abortLogStrategy{driver: driver, sink: sink, logger: log},
		},
	}
}

// Recover walks the chain until a strategy succeeds. The final abort step
// always succeeds, so Recover always returns ContinueToNext=true.
func (s *System) Recover(ctx context.Context, rc Context) Result {
	s.total++

	for _, st := range s.strategies {
		if !st.Attempt(ctx, rc) {
			continue
		}

		s.byStrategy[st.Name()]++

		if st.Name() == abortStrategyName {
			s.failed++
			s.logger.Warn("job aborted after recovery exhausted",
				zap.String("job_id", rc.JobID),
				zap.String("error_kind", string(rc.Kind)),
			)
			return Result{Success: false, ContinueToNext: true}
		}

		s.recovered++
		s.logger.Info("interaction recovered",
			zap.String("strategy", st.Name()),
			zap.String("error_kind", string(rc.Kind)),
			zap.String("job_id", rc.JobID),
		)
		return Result{Success: true, ContinueToNext: true}
	}

	// Unreachable: abort_log never declines.
	s.failed++
	return Result{Success: false, ContinueToNext: true}
}

// Stats returns a copy of the run counters.
func (s *System) Stats() Report {
	byStrategy := make(map[string]int, len(s.byStrategy))
	for name, count := range s.byStrategy {
		byStrategy[name] = count
	}
	return Report{
		Total:      s.total,
		Recovered:  s.recovered,
		Failed:     s.failed,
		ByStrategy: byStrategy,
	}
}

type retryAlternateStrategy struct {
	driver browser.Driver
	logger *zap.Logger
}

func (s *retryAlternateStrategy) Name() string { return "retry_alternate" }

func (s *retryAlternateStrategy) Attempt(ctx context.Context, rc Context) bool {
	switch rc.Kind {
	case ErrorNotInteractable:
		return s.writeDirect(ctx, rc)
	case ErrorNotFound, ErrorStale:
		return s.relocate(ctx, rc)
	case ErrorValidationFailed:
		return s.reformat(ctx, rc)
	case ErrorSubmitFailed:
		return s.alternateSubmit(ctx, rc)
	default:
		return false
	}
}

// writeDirect bypasses synthetic input by assigning the value from script.
func (s *retryAlternateStrategy) writeDirect(ctx context.Context, rc Context) bool {
	dw, ok := s.driver.(browser.DirectWriter)
	if !ok || rc.Element == nil {
		return false
	}
	return dw.WriteValueDirect(ctx, rc.Element, rc.Value) == nil
}

// relocate retries alternate locators, then waits and retries the original.
func (s *retryAlternateStrategy) relocate(ctx context.Context, rc Context) bool {
	locators := append([]string{}, rc.AltLocators...)

	for _, locator := range locators {
		el, err := s.driver.Locate(ctx, locator)
		if err != nil {
			continue
		}
		if s.apply(ctx, el, rc.Value) {
			return true
		}
	}

	if rc.Locator == "" {
		return false
	}
	if err := utils.WaitFor(ctx, 2*time.Second); err != nil {
		return false
	}
	el, err := s.driver.Locate(ctx, rc.Locator)
	if err != nil {
		return false
	}
	return s.apply(ctx, el, rc.Value)
}

// reformat rewrites the rejected value per field shape and retries the write.
func (s *retryAlternateStrategy) reformat(ctx context.Context, rc Context) bool {
	if rc.Element == nil {
		return false
	}

	reformatted := ReformatValue(rc.Value, rc.FieldKind, rc.Locator)
	if reformatted == rc.Value {
		return false
	}

	s.logger.Debug("retrying with reformatted value",
		zap.String("original", rc.Value),
		zap.String("reformatted", reformatted),
	)
	return s.driver.WriteValue(ctx, rc.Element, reformatted) == nil
}

func (s *retryAlternateStrategy) alternateSubmit(ctx context.Context, rc Context) bool {
	for _, locator := range rc.SubmitLocators {
		el, err := s.driver.Locate(ctx, locator)
		if err != nil {
			continue
		}
		if s.driver.Click(ctx, el) == nil {
			return true
		}
	}
	return false
}

func (s *retryAlternateStrategy) apply(ctx context.Context, el *browser.Element, value string) bool {
	if value == "" {
		return s.driver.Click(ctx, el) == nil
	}
	return s.driver.WriteValue(ctx, el, value) == nil
}

// ReformatValue rewrites a value rejected by form validation: digits only
// for numeric-looking fields, a safe placeholder for malformed emails, and
// zero-padding for short phone numbers.
func ReformatValue(value string, kind forms.FieldKind, locator string) string {
	hint := strings.ToLower(locator)

	switch {
	case strings.Contains(hint, "email"):
		if !strings.Contains(value, "@") || !strings.Contains(value, ".") {
			return "applicant@example.com"
		}
		return value
	case strings.Contains(hint, "phone") || strings.Contains(hint, "mobile"):
		digits := digitsOnly(value)
		for len(digits) > 0 && len(digits) < 10 {
			digits += "0"
		}
		if digits == "" {
			return "5555555555"
		}
		return digits
	}

	if kind == forms.FieldShortText && looksNumeric(value) {
		if digits := digitsOnly(value); digits != "" {
			return digits
		}
	}

	return value
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// looksNumeric reports whether the value is mostly digits with formatting
// noise such as commas, currency marks, or a decimal point.
func looksNumeric(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',' || r == ' ' || r == '$' || r == '-':
		default:
			return false
		}
	}
	return digits > 0
}

type skipOptionalStrategy struct {
	driver browser.Driver
}

func (s *skipOptionalStrategy) Name() string { return "skip_optional" }

// Attempt succeeds when the field is verifiably optional; the caller then
// moves past it without answering.
func (s *skipOptionalStrategy) Attempt(ctx context.Context, rc Context) bool {
	if rc.Kind == ErrorSubmitFailed || rc.Element == nil {
		return false
	}

	checker, ok := s.driver.(browser.RequiredChecker)
	if !ok {
		return false
	}

	required, err := checker.IsRequired(ctx, rc.Element)
	if err != nil {
		return false
	}
	return !required
}

type minimalInputStrategy struct {
	driver browser.Driver
}

func (s *minimalInputStrategy) Name() string { return "minimal_input" }

// Attempt writes the smallest value that satisfies the field's basic type,
// trading correctness for passing validation.
func (s *minimalInputStrategy) Attempt(ctx context.Context, rc Context) bool {
	if rc.Kind == ErrorSubmitFailed || rc.Element == nil {
		return false
	}

	return s.driver.WriteValue(ctx, rc.Element, MinimalValue(rc.FieldKind, rc.Locator)) == nil
}

// MinimalValue returns the smallest acceptable value for a field.
func MinimalValue(kind forms.FieldKind, locator string) string {
	hint := strings.ToLower(locator)

	switch {
	case strings.Contains(hint, "email"):
		return "applicant@example.com"
	case strings.Contains(hint, "phone") || strings.Contains(hint, "mobile"):
		return "5555555555"
	case strings.Contains(hint, "url") || strings.Contains(hint, "website") || strings.Contains(hint, "link"):
		return "https://example.com"
	case strings.Contains(hint, "number") || strings.Contains(hint, "year") || strings.Contains(hint, "salary"):
		return "1"
	}

	if kind == forms.FieldLongText {
		return "Yes"
	}
	return "1"
}

type reloadRetryStrategy struct {
	driver browser.Driver
	logger *zap.Logger
}

func (s *reloadRetryStrategy) Name() string { return "reload_retry" }

// Attempt reloads the page and re-resolves the element from its saved
// locator. Abandoned when the reload navigates away, since form progress
// would already be lost.
func (s *reloadRetryStrategy) Attempt(ctx context.Context, rc Context) bool {
	if rc.Locator == "" {
		return false
	}

	before, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return false
	}

	if err := s.driver.Reload(ctx); err != nil {
		return false
	}

	after, err := s.driver.CurrentURL(ctx)
	if err != nil || after != before {
		s.logger.Debug("reload navigated away, abandoning retry",
			zap.String("before", before),
			zap.String("after", after),
		)
		return false
	}

	el, err := s.driver.Locate(ctx, rc.Locator)
	if err != nil {
		return false
	}

	if rc.Value == "" {
		return s.driver.Click(ctx, el) == nil
	}
	return s.driver.WriteValue(ctx, el, rc.Value) == nil
}

type abortLogStrategy struct {
	driver browser.Driver
	sink   FailureSink
	logger *zap.Logger
}

func (s *abortLogStrategy) Name() string { return abortStrategyName }

// Attempt captures diagnostics and records the failure. It always reports
// success even when diagnostic capture fails.
func (s *abortLogStrategy) Attempt(ctx context.Context, rc Context) bool {
	screenshot := ""
	if s.driver != nil {
		if path, err := s.driver.Screenshot(ctx); err == nil {
			screenshot = path
		} else {
			s.logger.Debug("screenshot capture failed", zap.Error(err))
		}
	}

	if s.sink != nil {
		rec := FailureRecord{
			Timestamp:  time.Now(),
			JobID:      rc.JobID,
			Company:    rc.Company,
			Reason:     string(rc.Kind),
			Diagnostic: "all recovery strategies exhausted",
			Screenshot: screenshot,
		}
		if err := s.sink.RecordFailure(rec); err != nil {
			s.logger.Warn("writing failure record failed", zap.Error(err))
		}
	}

	return true
}
