package cdp

import (
	"testing"

	"github.com/applyflow/applyflow/internal/forms"
)

func TestMatchButton(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		buttons []pageButton
		include []string
		exclude []string
		want    string
	}{
		{
			name:    "first match in document order",
			buttons: []pageButton{{Text: "Cancel", Locator: "#cancel"}, {Text: "Next", Locator: "#next"}},
			include: nextPhrases,
			exclude: submitPhrases,
			want:    "#next",
		},
		{
			name:    "match is case-insensitive",
			buttons: []pageButton{{Text: "CONTINUE", Locator: "#go"}},
			include: nextPhrases,
			exclude: submitPhrases,
			want:    "#go",
		},
		{
			name:    "submit phrase disqualifies a next-step candidate",
			buttons: []pageButton{{Text: "Review and submit", Locator: "#final"}},
			include: nextPhrases,
			exclude: submitPhrases,
			want:    "",
		},
		{
			name: "excluded candidate does not shadow a later match",
			buttons: []pageButton{
				{Text: "Review and submit", Locator: "#final"},
				{Text: "Next step", Locator: "#next"},
			},
			include: nextPhrases,
			exclude: submitPhrases,
			want:    "#next",
		},
		{
			name:    "submit lookup has no exclusions",
			buttons: []pageButton{{Text: "Review and submit", Locator: "#final"}},
			include: submitPhrases,
			want:    "#final",
		},
		{
			name:    "no candidates",
			buttons: nil,
			include: nextPhrases,
			exclude: submitPhrases,
			want:    "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matchButton(tc.buttons, tc.include, tc.exclude); got != tc.want {
				t.Fatalf("matchButton() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFieldKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want forms.FieldKind
	}{
		{"long_text", forms.FieldLongText},
		{"single_select", forms.FieldSingleSelect},
		{"multi_select", forms.FieldMultiSelect},
		{"checkbox", forms.FieldCheckbox},
		{"short_text", forms.FieldShortText},
		{"anything-else", forms.FieldShortText},
	}

	for _, tc := range cases {
		if got := fieldKind(tc.in); got != tc.want {
			t.Fatalf("fieldKind(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestAltLocators(t *testing.T) {
	t.Parallel()

	alts := altLocators(pageField{Locator: "#years", Kind: "short_text"})
	if len(alts) != 1 || alts[0] != `[name="years"]` {
		t.Fatalf("unexpected alternates: %v", alts)
	}

	alts = altLocators(pageField{Locator: `textarea[name="motivation"]`, Kind: "long_text"})
	if len(alts) != 1 || alts[0] != "textarea" {
		t.Fatalf("unexpected alternates: %v", alts)
	}
}
