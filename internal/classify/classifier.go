package classify

import (
	"regexp"
	"strings"

	"github.com/applyflow/applyflow/internal/forms"
)

// Classification is the semantic category and expected answer shape
// inferred for a question.
type Classification struct {
	Category      string
	ResponseType  forms.ResponseType
	DefaultAnswer string
	Confidence    float64
}

type category struct {
	name          string
	patterns      []*regexp.Regexp
	responseType  forms.ResponseType
	defaultAnswer string
	confidence    float64
}

// Classifier maps question text (and options) to a Classification using an
// ordered table of pattern rules. Order encodes priority: the first matching
// category wins, so salary is checked before the generic numeric fallback.
// Results are cached per instance and never expire within a run.
type Classifier struct {
	categories []category
	cache      map[string]Classification
}

const matchedConfidence = 0.9

// New builds a Classifier with the built-in category table compiled.
func New() *Classifier {
	return &Classifier{
		categories: buildCategories(),
		cache:      make(map[string]Classification),
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

func buildCategories() []category {
	return []category{
		{
			name: "company_history",
			patterns: compileAll(
				`worked (at|for)|employed (at|by)|employment at|position at|job at|role at`,
				`former employee|previously employed|current employee at`,
			),
			responseType:  forms.ResponseBoolean,
			defaultAnswer: "No",
			confidence:    matchedConfidence,
		},
		{
			name: "relationship",
			patterns: compileAll(
				`personal relationship|friends.*(at|with)|relatives.*(at|with)|know (any|an) employee`,
				`familiar with anyone|connection at`,
			),
			responseType:  forms.ResponseBoolean,
			defaultAnswer: "No",
			confidence:    matchedConfidence,
		},
		{
			name: "salary",
			patterns: compileAll(
				`salary|compensation|\bpay\b|\bwage\b|remuneration|\bctc\b|package`,
				`how much.*earn|expected.*salary|desired.*compensation`,
				`annual.*income|yearly.*earnings|monthly.*salary`,
			),
			responseType: forms.ResponseNumeric,
			confidence:   matchedConfidence,
		},
		{
			name: "experience_numeric",
			patterns: compileAll(
				`\d+[\s\-]*\d*\s*years?\s*(of\s*)?experience`,
				`how many years.*experience|years.*worked.*with`,
				`experience.*years|duration.*worked|time.*spent`,
				`how long.*working|years.*using|years.*developing`,
			),
			responseType: forms.ResponseNumeric,
			confidence:   matchedConfidence,
		},
		{
			name: "visa_sponsorship",
			patterns: compileAll(
				`visa|sponsorship|work authorization|eligible.*work`,
				`require.*visa|need.*sponsorship|authorized.*work`,
				`immigration.*status|work.*permit|employment.*authorization`,
			),
			responseType:  forms.ResponseBoolean,
			defaultAnswer: "No",
			confidence:    matchedConfidence,
		},
		{
			name: "notice_period",
			patterns: compileAll(
				`notice.*period|notice.*days|serving.*notice`,
			),
			responseType: forms.ResponseNumeric,
			confidence:   matchedConfidence,
		},
		{
			name: "location_preference",
			patterns: compileAll(
				`willing.*relocate|open.*relocation|move.*location`,
				`preferred.*location|work.*location|based.*location`,
				`remote.*work|hybrid.*work|onsite.*preference`,
			),
			responseType:  forms.ResponseText,
			defaultAnswer: "Yes, open to relocation",
			confidence:    matchedConfidence,
		},
		{
			name: "availability",
			patterns: compileAll(
				`start.*date|available.*start|when.*begin`,
				`earliest.*start|can.*start|join.*date|availability.*date`,
			),
			responseType:  forms.ResponseText,
			defaultAnswer: "Immediately",
			confidence:    matchedConfidence,
		},
		{
			name: "skills_assessment",
			patterns: compileAll(
				`rate.*skill|proficiency|expertise.*level`,
				`scale.*\d+.*\d+|out.*of.*\d+|\d+.*to.*\d+`,
				`skill.*level|competency.*rating|proficiency.*scale`,
			),
			responseType:  forms.ResponseScaledNumeric,
			defaultAnswer: "7",
			confidence:    matchedConfidence,
		},
		{
			name: "education_verification",
			patterns: compileAll(
				`degree|education|graduated|university|college|certification`,
				`completed.*degree|bachelor|master|phd|diploma`,
				`highest.*education|educational.*qualification`,
			),
			responseType:  forms.ResponseBoolean,
			defaultAnswer: "Yes",
			confidence:    matchedConfidence,
		},
		{
			name: "background_check",
			patterns: compileAll(
				`background.*check|criminal.*record|reference.*check`,
				`screening.*process|verification.*process|security.*clearance`,
			),
			responseType:  forms.ResponseBoolean,
			defaultAnswer: "Yes",
			confidence:    matchedConfidence,
		},
		{
			name: "drug_test",
			patterns: compileAll(
				`drug.*test|substance.*test|medical.*screening`,
				`pre.*employment.*screening|health.*screening`,
			),
			responseType:  forms.ResponseBoolean,
			defaultAnswer: "Yes",
			confidence:    matchedConfidence,
		},
		{
			name: "references",
			patterns: compileAll(
				`references|provide.*references|reference.*contact`,
				`professional.*references|work.*references`,
			),
			responseType:  forms.ResponseBoolean,
			defaultAnswer: "Yes",
			confidence:    matchedConfidence,
		},
		{
			name: "linkedin_profile",
			patterns: compileAll(
				`linkedin.*profile|linkedin.*url|linkedin.*link`,
				`professional.*profile|social.*media.*profile`,
			),
			responseType: forms.ResponseURL,
			confidence:   matchedConfidence,
		},
		{
			name: "portfolio_website",
			patterns: compileAll(
				`portfolio|website|github|personal.*site|work.*samples`,
				`online.*portfolio|code.*repository|project.*links`,
			),
			responseType: forms.ResponseURL,
			confidence:   matchedConfidence,
		},
		{
			name: "cover_letter",
			patterns: compileAll(
				`cover.*letter|tell.*about yourself|why.*interested|why.*apply`,
				`describe.*yourself|motivation.*letter`,
			),
			responseType: forms.ResponseLongText,
			confidence:   matchedConfidence,
		},
		{
			name: "citizenship_status",
			patterns: compileAll(
				`citizen|citizenship|nationality|permanent.*resident`,
			),
			responseType: forms.ResponseSelection,
			confidence:   matchedConfidence,
		},
		{
			name: "gender_identity",
			patterns: compileAll(
				`gender|identify.*as`,
			),
			responseType: forms.ResponseSelection,
			confidence:   matchedConfidence,
		},
		{
			name: "ethnicity_race",
			patterns: compileAll(
				`ethnicity|\brace\b|ethnic.*background|racial.*identity|hispanic|latino`,
				`demographic|diversity.*information`,
			),
			responseType: forms.ResponseSelection,
			confidence:   matchedConfidence,
		},
		{
			name: "disability_status",
			patterns: compileAll(
				`disability|disabled|accommodation|special.*needs`,
				`\bada\b|equal.*opportunity`,
			),
			responseType: forms.ResponseSelection,
			confidence:   matchedConfidence,
		},
		{
			name: "veteran_status",
			patterns: compileAll(
				`veteran|military|armed.*forces|service.*member`,
				`protected.*veteran`,
			),
			responseType: forms.ResponseSelection,
			confidence:   matchedConfidence,
		},
	}
}

// Classify resolves a question to its Classification. It never fails: an
// unclassifiable question falls back to free text with low confidence.
// Repeated calls with identical text and options are served from cache.
func (c *Classifier) Classify(text string, options []string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(text))
	key := cacheKey(normalized, options)

	if cached, ok := c.cache[key]; ok {
		return cached
	}

	result, matched := c.match(normalized)
	if !matched {
		result = fallback(normalized, options)
	}

	// A Yes/No question rendered with options is still a selection list.
	if len(options) > 0 && result.ResponseType == forms.ResponseBoolean {
		result.ResponseType = forms.ResponseSelection
	}

	c.cache[key] = result
	return result
}

// Size returns the number of cached classifications.
func (c *Classifier) Size() int {
	return len(c.cache)
}

func (c *Classifier) match(normalized string) (Classification, bool) {
	for _, cat := range c.categories {
		for _, pattern := range cat.patterns {
			if pattern.MatchString(normalized) {
				return Classification{
					Category:      cat.name,
					ResponseType:  cat.responseType,
					DefaultAnswer: cat.defaultAnswer,
					Confidence:    cat.confidence,
				}, true
			}
		}
	}
	return Classification{}, false
}

var numericCues = []string{"how many", "number of", "years", "months", "scale"}

var booleanPrefixes = []string{"are you", "do you", "have you", "can you", "will you", "would you"}

func fallback(normalized string, options []string) Classification {
	for _, cue := range numericCues {
		if strings.Contains(normalized, cue) {
			return Classification{
				Category:     "numeric_general",
				ResponseType: forms.ResponseNumeric,
				Confidence:   0.5,
			}
		}
	}

	for _, prefix := range booleanPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return Classification{
				Category:      "boolean_general",
				ResponseType:  forms.ResponseBoolean,
				DefaultAnswer: "Yes",
				Confidence:    0.6,
			}
		}
	}

	if len(options) > 0 {
		return Classification{
			Category:     "select_general",
			ResponseType: forms.ResponseSelection,
			Confidence:   0.4,
		}
	}

	return Classification{
		Category:      "text_general",
		ResponseType:  forms.ResponseText,
		DefaultAnswer: "I am interested in this opportunity",
		Confidence:    0.3,
	}
}

// cacheKey joins text and options with a non-printable separator so option
// lists cannot collide with question text.
func cacheKey(normalized string, options []string) string {
	if len(options) == 0 {
		return normalized
	}
	return normalized + "\x1f" + strings.Join(options, "\x1f")
}
