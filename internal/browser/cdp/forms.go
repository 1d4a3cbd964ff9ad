package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/mapstructure"

	"github.com/applyflow/applyflow/internal/forms"
	"github.com/applyflow/applyflow/internal/session"
)

// extractFieldsJS collects every visible form control on the page along
// with its label, kind, options, and a stable CSS locator. Radio groups
// collapse into one single-select entry keyed by the shared name.
const extractFieldsJS = `(() => {
	const out = [];
	const seen = new Set();
	for (const el of document.querySelectorAll('input, textarea, select')) {
		if (el.disabled || el.type === 'hidden' || el.type === 'submit' || el.type === 'button' || el.type === 'file') {
			continue;
		}
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) {
			continue;
		}

		let locator = '';
		if (el.id) {
			locator = '#' + CSS.escape(el.id);
		} else if (el.name) {
			locator = el.tagName.toLowerCase() + '[name="' + el.name + '"]';
		} else {
			continue;
		}
		if (seen.has(locator)) {
			continue;
		}
		seen.add(locator);

		let label = '';
		if (el.labels && el.labels.length > 0) {
			label = el.labels[0].innerText;
		} else if (el.getAttribute('aria-label')) {
			label = el.getAttribute('aria-label');
		} else if (el.placeholder) {
			label = el.placeholder;
		} else if (el.closest('fieldset') && el.closest('fieldset').querySelector('legend')) {
			label = el.closest('fieldset').querySelector('legend').innerText;
		}

		const tag = el.tagName.toLowerCase();
		let kind = 'short_text';
		let options = [];
		if (tag === 'select') {
			kind = el.multiple ? 'multi_select' : 'single_select';
			options = Array.from(el.options)
				.map(o => o.text.trim())
				.filter(t => t && !/^(select|choose|--)/i.test(t));
		} else if (tag === 'textarea') {
			kind = 'long_text';
		} else if (el.type === 'checkbox') {
			kind = 'checkbox';
		} else if (el.type === 'radio') {
			kind = 'single_select';
			options = Array.from(document.querySelectorAll('input[type="radio"][name="' + el.name + '"]'))
				.map(r => (r.labels && r.labels.length > 0) ? r.labels[0].innerText.trim() : r.value)
				.filter(t => t);
		}

		out.push({label: (label || '').trim(), kind: kind, options: options, locator: locator});
	}
	return out;
})()`

// collectButtonsJS lists every visible button-like element in document
// order, with its text and a locator usable for a later click.
const collectButtonsJS = `(() => {
	document.querySelectorAll('[data-af-btn]').forEach(e => e.removeAttribute('data-af-btn'));
	const out = [];
	let i = 0;
	for (const el of document.querySelectorAll('button, input[type="submit"], a[role="button"]')) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) {
			continue;
		}
		const text = (el.innerText || el.value || '').trim();
		if (!text) {
			continue;
		}
		let locator;
		if (el.id) {
			locator = '#' + CSS.escape(el.id);
		} else {
			el.setAttribute('data-af-btn', String(i));
			locator = '[data-af-btn="' + i + '"]';
		}
		i++;
		out.push({text: text, locator: locator});
	}
	return out;
})()`

var (
	nextPhrases   = []string{"next", "continue", "review"}
	submitPhrases = []string{"submit", "apply", "send application", "finish"}
)

// pageField mirrors one entry of the extraction script's output.
type pageField struct {
	Label   string   `mapstructure:"label"`
	Kind    string   `mapstructure:"kind"`
	Options []string `mapstructure:"options"`
	Locator string   `mapstructure:"locator"`
}

// pageButton mirrors one entry of the button collection script's output.
type pageButton struct {
	Text    string `mapstructure:"text"`
	Locator string `mapstructure:"locator"`
}

// FormReader extracts application forms from the driver's current page.
type FormReader struct {
	driver *Driver
}

func NewFormReader(driver *Driver) *FormReader {
	return &FormReader{driver: driver}
}

// Fields returns the answerable controls on the current page in document
// order.
func (r *FormReader) Fields(ctx context.Context) ([]session.FormField, error) {
	var raw []map[string]any
	if err := r.driver.run(ctx, chromedp.Evaluate(extractFieldsJS, &raw)); err != nil {
		return nil, fmt.Errorf("extracting form fields: %w", err)
	}

	fields := make([]session.FormField, 0, len(raw))
	for _, item := range raw {
		var pf pageField
		if err := mapstructure.Decode(item, &pf); err != nil {
			return nil, fmt.Errorf("decoding form field: %w", err)
		}
		if pf.Label == "" || pf.Locator == "" {
			continue
		}

		fields = append(fields, session.FormField{
			Question: forms.Question{
				Text:    pf.Label,
				Kind:    fieldKind(pf.Kind),
				Options: pf.Options,
			},
			Locator:     pf.Locator,
			AltLocators: altLocators(pf),
		})
	}
	return fields, nil
}

// NextLocator finds a next-step button. Buttons that also match a submit
// phrase are not next-steps; "Review and submit" ends the form rather than
// advancing it.
func (r *FormReader) NextLocator(ctx context.Context) (string, bool) {
	locator := matchButton(r.collectButtons(ctx), nextPhrases, submitPhrases)
	if locator == "" {
		return "", false
	}
	return locator, true
}

func (r *FormReader) SubmitLocator(ctx context.Context) (string, bool) {
	locator := matchButton(r.collectButtons(ctx), submitPhrases, nil)
	if locator == "" {
		return "", false
	}
	return locator, true
}

func (r *FormReader) collectButtons(ctx context.Context) []pageButton {
	var raw []map[string]any
	if err := r.driver.run(ctx, chromedp.Evaluate(collectButtonsJS, &raw)); err != nil {
		return nil
	}

	buttons := make([]pageButton, 0, len(raw))
	for _, item := range raw {
		var b pageButton
		if err := mapstructure.Decode(item, &b); err != nil {
			continue
		}
		buttons = append(buttons, b)
	}
	return buttons
}

// matchButton returns the locator of the first button whose text contains
// an include phrase and no exclude phrase.
func matchButton(buttons []pageButton, include, exclude []string) string {
	for _, b := range buttons {
		text := strings.ToLower(b.Text)
		if text == "" || containsAny(text, exclude) {
			continue
		}
		if containsAny(text, include) {
			return b.Locator
		}
	}
	return ""
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func fieldKind(kind string) forms.FieldKind {
	switch kind {
	case "long_text":
		return forms.FieldLongText
	case "single_select":
		return forms.FieldSingleSelect
	case "multi_select":
		return forms.FieldMultiSelect
	case "checkbox":
		return forms.FieldCheckbox
	default:
		return forms.FieldShortText
	}
}

// altLocators derives fallback selectors recovery can try when the primary
// one goes stale after a page update.
func altLocators(pf pageField) []string {
	var alts []string
	if strings.HasPrefix(pf.Locator, "#") {
		id := strings.TrimPrefix(pf.Locator, "#")
		alts = append(alts, fmt.Sprintf(`[name=%q]`, id))
	}
	if pf.Kind == "long_text" {
		alts = append(alts, "textarea")
	}
	return alts
}
