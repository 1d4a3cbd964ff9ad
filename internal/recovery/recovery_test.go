package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/browser"
	"github.com/applyflow/applyflow/internal/forms"
)

type write struct {
	locator string
	value   string
}

type fakeDriver struct {
	locateErr    map[string]error
	writeErr     error
	directErr    error
	clickErr     error
	required     bool
	requiredErr  error
	url          string
	urlAfterNav  string
	reloadErr    error
	screenshot   string
	screenshotOK bool

	writes       []write
	directWrites []write
	clicks       []string
	reloads      int
}

func (f *fakeDriver) Locate(_ context.Context, locator string) (*browser.Element, error) {
	if err, ok := f.locateErr[locator]; ok && err != nil {
		return nil, err
	}
	return &browser.Element{Locator: locator}, nil
}

func (f *fakeDriver) ReadValue(context.Context, *browser.Element) (string, error) {
	return "", nil
}

func (f *fakeDriver) WriteValue(_ context.Context, el *browser.Element, value string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, write{locator: el.Locator, value: value})
	return nil
}

func (f *fakeDriver) WriteValueDirect(_ context.Context, el *browser.Element, value string) error {
	if f.directErr != nil {
		return f.directErr
	}
	f.directWrites = append(f.directWrites, write{locator: el.Locator, value: value})
	return nil
}

func (f *fakeDriver) Click(_ context.Context, el *browser.Element) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks = append(f.clicks, el.Locator)
	return nil
}

func (f *fakeDriver) PageText(context.Context) (string, error) { return "", nil }

func (f *fakeDriver) Screenshot(context.Context) (string, error) {
	if !f.screenshotOK {
		return "", errors.New("no display")
	}
	return f.screenshot, nil
}

func (f *fakeDriver) Navigate(context.Context, string) error { return nil }

func (f *fakeDriver) Reload(context.Context) error {
	f.reloads++
	if f.reloadErr != nil {
		return f.reloadErr
	}
	if f.urlAfterNav != "" {
		f.url = f.urlAfterNav
	}
	return nil
}

func (f *fakeDriver) CurrentURL(context.Context) (string, error) { return f.url, nil }

func (f *fakeDriver) IsRequired(context.Context, *browser.Element) (bool, error) {
	if f.requiredErr != nil {
		return true, f.requiredErr
	}
	return f.required, nil
}

type fakeSink struct {
	records []FailureRecord
	err     error
}

func (f *fakeSink) RecordFailure(rec FailureRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func TestRecoverNotInteractableUsesDirectWrite(t *testing.T) {
	driver := &fakeDriver{required: true}
	sys := New(driver, &fakeSink{}, zap.NewNop())

	result := sys.Recover(context.Background(), Context{
		Kind:    ErrorNotInteractable,
		Element: &browser.Element{Locator: "#years"},
		Value:   "4",
		JobID:   "j1",
	})

	if !result.Success {
		t.Fatalf("expected recovery to succeed")
	}
	if !result.ContinueToNext {
		t.Fatalf("expected continue signal")
	}
	if len(driver.directWrites) != 1 || driver.directWrites[0].value != "4" {
		t.Fatalf("expected one direct write of 4, got %v", driver.directWrites)
	}

	stats := sys.Stats()
	if stats.ByStrategy["retry_alternate"] != 1 {
		t.Fatalf("expected retry_alternate usage, got %v", stats.ByStrategy)
	}
	if stats.Recovered != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
}

func TestRecoverNotFoundTriesAlternateLocators(t *testing.T) {
	driver := &fakeDriver{
		required: true,
		locateErr: map[string]error{
			"#primary": browser.ErrNotFound,
			"#alt-1":   browser.ErrNotFound,
		},
	}
	sys := New(driver, &fakeSink{}, zap.NewNop())

	result := sys.Recover(context.Background(), Context{
		Kind:        ErrorNotFound,
		Value:       "Yes",
		Locator:     "#primary",
		AltLocators: []string{"#alt-1", "#alt-2"},
	})

	if !result.Success {
		t.Fatalf("expected recovery via alternate locator")
	}
	if len(driver.writes) != 1 || driver.writes[0].locator != "#alt-2" {
		t.Fatalf("expected write through #alt-2, got %v", driver.writes)
	}
}

func TestRecoverPermanentLossEndsAtAbortLog(t *testing.T) {
	driver := &fakeDriver{
		required:     true,
		screenshotOK: true,
		screenshot:   "shots/failure-1.png",
	}
	sink := &fakeSink{}
	sys := New(driver, sink, zap.NewNop())

	result := sys.Recover(context.Background(), Context{
		Kind:    ErrorNotFound,
		JobID:   "j9",
		Company: "Acme",
	})

	if result.Success {
		t.Fatalf("expected failed recovery")
	}
	if !result.ContinueToNext {
		t.Fatalf("expected continue signal even after abort")
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected one failure record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.JobID != "j9" || rec.Company != "Acme" {
		t.Fatalf("unexpected failure record: %+v", rec)
	}
	if rec.Screenshot != "shots/failure-1.png" {
		t.Fatalf("expected screenshot path in record, got %q", rec.Screenshot)
	}

	stats := sys.Stats()
	if stats.Failed != 1 || stats.ByStrategy["abort_log"] != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
}

func TestRecoverAbortSurvivesDiagnosticFailure(t *testing.T) {
	driver := &fakeDriver{required: true}
	sink := &fakeSink{err: errors.New("disk full")}
	sys := New(driver, sink, zap.NewNop())

	result := sys.Recover(context.Background(), Context{Kind: ErrorUnknown})

	if !result.ContinueToNext {
		t.Fatalf("expected continue signal despite diagnostic failures")
	}
}

func TestRecoverValidationFailureReformats(t *testing.T) {
	driver := &fakeDriver{required: true}
	sys := New(driver, &fakeSink{}, zap.NewNop())

	result := sys.Recover(context.Background(), Context{
		Kind:      ErrorValidationFailed,
		Element:   &browser.Element{Locator: "#salary"},
		Value:     "$85,000",
		FieldKind: forms.FieldShortText,
		Locator:   "#salary",
	})

	if !result.Success {
		t.Fatalf("expected recovery to succeed")
	}
	if len(driver.writes) != 1 || driver.writes[0].value != "85000" {
		t.Fatalf("expected digits-only rewrite, got %v", driver.writes)
	}
}

func TestRecoverSkipsOptionalField(t *testing.T) {
	driver := &fakeDriver{required: false, writeErr: errors.New("refused")}
	sys := New(driver, &fakeSink{}, zap.NewNop())

	result := sys.Recover(context.Background(), Context{
		Kind:    ErrorValidationFailed,
		Element: &browser.Element{Locator: "#optional-field"},
		Value:   "weird value",
	})

	if !result.Success {
		t.Fatalf("expected optional field to be skipped")
	}
	if sys.Stats().ByStrategy["skip_optional"] != 1 {
		t.Fatalf("expected skip_optional usage, got %v", sys.Stats().ByStrategy)
	}
}

func TestReloadRetryAbortsWhenURLChanges(t *testing.T) {
	driver := &fakeDriver{
		required:    true,
		writeErr:    errors.New("refused"),
		url:         "https://jobs.example.com/apply/1",
		urlAfterNav: "https://jobs.example.com/home",
		locateErr:   map[string]error{"#field": browser.ErrNotFound},
	}
	sink := &fakeSink{}
	sys := New(driver, sink, zap.NewNop())

	result := sys.Recover(context.Background(), Context{
		Kind:    ErrorStale,
		Element: &browser.Element{Locator: "#field"},
		Value:   "x",
		Locator: "#field",
	})

	if result.Success {
		t.Fatalf("expected abort after reload navigated away")
	}
	if driver.reloads != 1 {
		t.Fatalf("expected one reload, got %d", driver.reloads)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected abort record, got %d", len(sink.records))
	}
}

func TestReformatValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value   string
		kind    forms.FieldKind
		locator string
		expect  string
	}{
		{"$85,000", forms.FieldShortText, "#salary", "85000"},
		{"12.00", forms.FieldShortText, "#experience", "1200"},
		{"not an email", forms.FieldShortText, "input[name=email]", "applicant@example.com"},
		{"ok@example.com", forms.FieldShortText, "input[name=email]", "ok@example.com"},
		{"555123", forms.FieldShortText, "#phone", "5551230000"},
		{"", forms.FieldShortText, "#phone", "5555555555"},
		{"free text", forms.FieldShortText, "#other", "free text"},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_%s", tc.locator, tc.value), func(t *testing.T) {
			if got := ReformatValue(tc.value, tc.kind, tc.locator); got != tc.expect {
				t.Fatalf("ReformatValue(%q, %q) = %q, want %q", tc.value, tc.locator, got, tc.expect)
			}
		})
	}
}

func TestMinimalValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind    forms.FieldKind
		locator string
		expect  string
	}{
		{forms.FieldShortText, "input[name=email]", "applicant@example.com"},
		{forms.FieldShortText, "#phone-number", "5555555555"},
		{forms.FieldShortText, "#mobile", "5555555555"},
		{forms.FieldShortText, "#portfolio-url", "https://example.com"},
		{forms.FieldLongText, "#essay", "Yes"},
		{forms.FieldShortText, "#years", "1"},
	}

	for _, tc := range cases {
		if got := MinimalValue(tc.kind, tc.locator); got != tc.expect {
			t.Fatalf("MinimalValue(%q, %q) = %q, want %q", tc.kind, tc.locator, got, tc.expect)
		}
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		expect ErrorKind
	}{
		{browser.ErrNotFound, ErrorNotFound},
		{fmt.Errorf("locating: %w", browser.ErrNotFound), ErrorNotFound},
		{browser.ErrNotInteractable, ErrorNotInteractable},
		{browser.ErrStale, ErrorStale},
		{errors.New("boom"), ErrorUnknown},
		{nil, ErrorUnknown},
	}

	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.expect {
			t.Fatalf("ClassifyError(%v) = %s, want %s", tc.err, got, tc.expect)
		}
	}
}

func TestReportRate(t *testing.T) {
	r := Report{Total: 4, Recovered: 3, Failed: 1}
	if r.Rate() != 0.75 {
		t.Fatalf("expected rate 0.75, got %v", r.Rate())
	}
	if (Report{}).Rate() != 0 {
		t.Fatalf("expected zero rate for empty report")
	}
}
