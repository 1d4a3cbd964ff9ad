package respond

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/applyflow/applyflow/internal/classify"
	"github.com/applyflow/applyflow/internal/forms"
	"github.com/applyflow/applyflow/internal/profile"
)

// Generator turns a classified question into a concrete answer drawn from
// the user profile. It is a pure dispatch on the classification's response
// type; an empty return value means "no confident answer, defer to the next
// strategy".
type Generator struct {
	profile *profile.Profile
}

func New(p *profile.Profile) *Generator {
	return &Generator{profile: p}
}

// Generate produces a candidate answer for the question. Never errors.
func (g *Generator) Generate(cls classify.Classification, q forms.Question) string {
	switch cls.ResponseType {
	case forms.ResponseNumeric, forms.ResponseDecimal:
		return g.numeric(cls, q)
	case forms.ResponseBoolean:
		return g.boolean(cls, q)
	case forms.ResponseSelection:
		return g.selection(cls, q)
	case forms.ResponseScaledNumeric:
		return g.scaled(q)
	case forms.ResponseURL:
		return g.url(q)
	case forms.ResponseLongText:
		return g.longText(q)
	default:
		return g.shortText(cls, q)
	}
}

var scaleRange = regexp.MustCompile(`(\d+)\s*(?:to|-|–)\s*(\d+)`)

func (g *Generator) numeric(cls classify.Classification, q forms.Question) string {
	text := strings.ToLower(q.Text)

	switch {
	case cls.Category == "salary" || containsAny(text, "salary", "compensation", "ctc", "pay"):
		amount := g.profile.DesiredSalary
		if containsAny(text, "current", "present", "previous") {
			amount = g.profile.CurrentSalary
		}
		return formatSalary(amount, text)
	case cls.Category == "notice_period" || strings.Contains(text, "notice"):
		return formatNotice(g.profile.NoticePeriodDays, text)
	case containsAny(text, "experience", "years", "how long"):
		return strconv.Itoa(g.profile.YearsOfExperience)
	default:
		if cls.DefaultAnswer != "" {
			return cls.DefaultAnswer
		}
		return strconv.Itoa(g.profile.YearsOfExperience)
	}
}

// formatSalary applies the unit conversions companies sneak into salary
// questions: "in lakhs" inserts a decimal point five digits from the end
// (1200000 -> "12.00"), "per month" divides the annual figure by 12.
func formatSalary(amount int, text string) string {
	if strings.Contains(text, "lakh") {
		return formatLakhs(amount)
	}
	if containsAny(text, "month", "monthly") {
		return strconv.Itoa(amount / 12)
	}
	return strconv.Itoa(amount)
}

func formatLakhs(amount int) string {
	digits := strconv.Itoa(amount)
	if len(digits) <= 5 {
		// Below one lakh: pad so the decimal point still lands five from the end.
		digits = strings.Repeat("0", 6-len(digits)) + digits
	}
	cut := len(digits) - 5
	return digits[:cut] + "." + digits[cut:cut+2]
}

func formatNotice(days int, text string) string {
	switch {
	case strings.Contains(text, "month"):
		return strconv.Itoa(days / 30)
	case strings.Contains(text, "week"):
		return strconv.Itoa(days / 7)
	default:
		return strconv.Itoa(days)
	}
}

// followUpCues mark questions that presuppose a prior "Yes" answer. The
// inference is a best-effort keyword heuristic, not a tracked dependency
// between questions.
var followUpCues = []string{"if yes", "provide more", "describe", "explain", "details", "name of"}

func (g *Generator) boolean(cls classify.Classification, q forms.Question) string {
	text := strings.ToLower(q.Text)

	switch cls.Category {
	case "company_history":
		company := companyInQuestion(text, q)
		if g.profile.WorkedAt(company) {
			return "Yes"
		}
		if containsAny(text, followUpCues...) {
			return "N/A"
		}
		return "No"
	case "relationship":
		return "No"
	case "visa_sponsorship":
		return g.profile.RequiresVisaSponsorship
	}

	if containsAny(text, "security clearance", "clearance") {
		if g.profile.SecurityClearance {
			return "Yes"
		}
		return "No"
	}

	if containsAny(text, followUpCues...) {
		return "N/A"
	}

	if cls.DefaultAnswer != "" {
		return cls.DefaultAnswer
	}
	return "Yes"
}

// companyInQuestion extracts the company a work-history question refers to,
// preferring the job context's company over fishing it out of the text.
func companyInQuestion(text string, q forms.Question) string {
	if q.Job != nil && q.Job.Company != "" {
		return q.Job.Company
	}
	for _, marker := range []string{"worked at ", "worked for ", "employed at ", "employed by ", "employment at ", "position at ", "job at ", "role at "} {
		if idx := strings.Index(text, marker); idx >= 0 {
			rest := text[idx+len(marker):]
			return strings.Trim(strings.TrimSuffix(strings.TrimSpace(rest), "?"), ".,!?")
		}
	}
	return ""
}

var positiveKeywords = []string{"yes", "agree", "confirm", "available", "willing", "able", "authorized", "eligible"}

var negativeKeywords = []string{"no", "not", "unable", "unavailable", "ineligible", "decline"}

func (g *Generator) selection(cls classify.Classification, q forms.Question) string {
	if len(q.Options) == 0 {
		switch cls.Category {
		case "citizenship_status":
			return g.profile.Citizenship
		case "gender_identity":
			return g.profile.Gender
		case "ethnicity_race":
			return g.profile.Ethnicity
		case "disability_status":
			return g.profile.DisabilityStatus
		case "veteran_status":
			return g.profile.VeteranStatus
		}
		return cls.DefaultAnswer
	}

	// Demographic categories answer from the profile, falling back to a
	// decline-style option rather than guessing.
	switch cls.Category {
	case "citizenship_status":
		return pickContaining(q.Options, g.profile.Citizenship, preferNot)
	case "gender_identity":
		return pickContaining(q.Options, g.profile.Gender, preferNot)
	case "ethnicity_race":
		return pickContaining(q.Options, g.profile.Ethnicity, preferNot)
	case "disability_status":
		return pickContaining(q.Options, g.profile.DisabilityStatus, preferNo)
	case "veteran_status":
		return pickContaining(q.Options, g.profile.VeteranStatus, preferNo)
	case "company_history", "relationship", "visa_sponsorship":
		if answer := g.boolean(cls, q); answer != "" {
			if opt := optionContaining(q.Options, answer); opt != "" {
				return opt
			}
		}
	}

	if cls.DefaultAnswer != "" {
		if opt := optionContaining(q.Options, cls.DefaultAnswer); opt != "" {
			return opt
		}
	}

	return BestOption(q.Options)
}

// BestOption picks the safest option from a list: the first non-placeholder
// option, preferring positive-sentiment wording and avoiding
// negative-sentiment wording.
func BestOption(options []string) string {
	valid := make([]string, 0, len(options))
	for _, opt := range options {
		if !forms.IsPlaceholder(opt) {
			valid = append(valid, opt)
		}
	}
	if len(valid) == 0 {
		if len(options) > 0 {
			return options[0]
		}
		return ""
	}

	for _, opt := range valid {
		lower := strings.ToLower(opt)
		if containsAny(lower, positiveKeywords...) && !containsAny(lower, negativeKeywords...) {
			return opt
		}
	}

	for _, opt := range valid {
		if !containsAny(strings.ToLower(opt), negativeKeywords...) {
			return opt
		}
	}

	return valid[0]
}

func optionContaining(options []string, value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	for _, opt := range options {
		if forms.IsPlaceholder(opt) {
			continue
		}
		lower := strings.ToLower(opt)
		if strings.Contains(lower, value) || strings.Contains(value, lower) {
			return opt
		}
	}
	return ""
}

func pickContaining(options []string, value string, fallback func([]string) string) string {
	if opt := optionContaining(options, value); opt != "" {
		return opt
	}
	return fallback(options)
}

func preferNot(options []string) string {
	for _, opt := range options {
		if containsAny(strings.ToLower(opt), "prefer not", "decline", "not disclose", "rather not", "don't wish") {
			return opt
		}
	}
	return BestOption(options)
}

func preferNo(options []string) string {
	for _, opt := range options {
		lower := strings.ToLower(opt)
		if containsAny(lower, "no", "not", "false") && !forms.IsPlaceholder(opt) {
			return opt
		}
	}
	return BestOption(options)
}

func (g *Generator) scaled(q forms.Question) string {
	if m := scaleRange.FindStringSubmatch(q.Text); m != nil {
		max, err := strconv.Atoi(m[2])
		if err == nil && max > 0 {
			return strconv.Itoa(max * 3 / 4)
		}
	}
	return strconv.Itoa(g.profile.DefaultSkillRating)
}

func (g *Generator) url(q forms.Question) string {
	text := strings.ToLower(q.Text)

	if strings.Contains(text, "linkedin") {
		return g.profile.LinkedInURL
	}
	if containsAny(text, "portfolio", "website", "github", "samples") {
		if g.profile.PortfolioURL != "" {
			return g.profile.PortfolioURL
		}
		return g.profile.LinkedInURL
	}
	if g.profile.PortfolioURL != "" {
		return g.profile.PortfolioURL
	}
	return g.profile.LinkedInURL
}

func (g *Generator) longText(q forms.Question) string {
	text := strings.ToLower(q.Text)

	switch {
	case strings.Contains(text, "tell") && strings.Contains(text, "about"):
		return strings.TrimSpace(g.profile.Summary)
	case strings.Contains(text, "cover letter"):
		return strings.TrimSpace(g.profile.CoverLetter)
	case strings.Contains(text, "why") && containsAny(text, "interested", "position", "apply"):
		return "I am excited about this opportunity because it aligns with my skills and career goals. The role offers the chance to contribute to meaningful projects while continuing to grow professionally."
	case strings.Contains(text, "experience") && strings.Contains(text, "relevant"):
		return fmt.Sprintf("With %d years of experience in the field, I have developed strong expertise in the key areas required for this role. My background includes hands-on experience with similar projects and technologies.", g.profile.YearsOfExperience)
	default:
		// Defer: a later strategy supplies a generic statement.
		return ""
	}
}

func (g *Generator) shortText(cls classify.Classification, q forms.Question) string {
	text := strings.ToLower(q.Text)

	isFollowUp := containsAny(text, followUpCues...)
	isCompany := cls.Category == "company_history" || containsAny(text, "worked at", "employed at", "employment at", "position at", "job at")

	switch {
	case isCompany && !g.workedAtJobCompany(q):
		if isFollowUp || containsAny(text, "name", "location") {
			return "N/A"
		}
		return "No"
	case isFollowUp && !g.workedAtJobCompany(q):
		return "N/A"
	case containsAny(text, "relocate", "relocation"):
		return g.profile.WillingToRelocate
	case containsAny(text, "experience", "years"):
		return strconv.Itoa(g.profile.YearsOfExperience)
	case containsAny(text, "phone", "mobile"):
		return g.profile.Phone
	case containsAny(text, "city", "location", "address"):
		return g.profile.City
	case strings.Contains(text, "signature"):
		return g.profile.FullName
	case strings.Contains(text, "headline"):
		return g.profile.Headline
	case containsAny(text, "employer", "company") && strings.Contains(text, "name"):
		return g.profile.RecentEmployer
	case strings.Contains(text, "name"):
		return g.name(text)
	case strings.Contains(text, "email"):
		return g.profile.Email
	default:
		return cls.DefaultAnswer
	}
}

func (g *Generator) name(text string) string {
	switch {
	case strings.Contains(text, "first") && !strings.Contains(text, "last"):
		return g.profile.FirstName
	case strings.Contains(text, "last") && !strings.Contains(text, "first"):
		return g.profile.LastName
	default:
		return g.profile.FullName
	}
}

func (g *Generator) workedAtJobCompany(q forms.Question) bool {
	if q.Job == nil {
		return false
	}
	return g.profile.WorkedAt(q.Job.Company)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
