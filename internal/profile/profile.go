package profile

import (
	"fmt"
	"strings"
)

// Profile is the static user configuration consulted when answering form
// questions. It is read once at startup and never mutated during a run.
type Profile struct {
	FullName  string `mapstructure:"full-name"`
	FirstName string `mapstructure:"first-name"`
	LastName  string `mapstructure:"last-name"`
	Email     string `mapstructure:"email"`
	Phone     string `mapstructure:"phone"`
	City      string `mapstructure:"city"`

	YearsOfExperience int `mapstructure:"years-of-experience"`
	DesiredSalary     int `mapstructure:"desired-salary"`
	CurrentSalary     int `mapstructure:"current-salary"`
	NoticePeriodDays  int `mapstructure:"notice-period-days"`

	// RequiresVisaSponsorship is the literal answer given to sponsorship
	// questions ("Yes" or "No").
	RequiresVisaSponsorship string `mapstructure:"requires-visa-sponsorship"`
	Citizenship             string `mapstructure:"citizenship"`
	SecurityClearance       bool   `mapstructure:"security-clearance"`
	Education               string `mapstructure:"education"`

	LinkedInURL  string `mapstructure:"linkedin-url"`
	PortfolioURL string `mapstructure:"portfolio-url"`

	Headline    string `mapstructure:"headline"`
	Summary     string `mapstructure:"summary"`
	CoverLetter string `mapstructure:"cover-letter"`

	// EmploymentHistory is the complete allowlist of companies the user has
	// actually worked for. Any company not on this list yields "No" for
	// work-history questions.
	EmploymentHistory []string `mapstructure:"employment-history"`
	RecentEmployer    string   `mapstructure:"recent-employer"`

	Gender           string `mapstructure:"gender"`
	Ethnicity        string `mapstructure:"ethnicity"`
	DisabilityStatus string `mapstructure:"disability-status"`
	VeteranStatus    string `mapstructure:"veteran-status"`

	// DefaultSkillRating answers scale questions that carry no parseable range.
	DefaultSkillRating int `mapstructure:"default-skill-rating"`

	WillingToRelocate string `mapstructure:"willing-to-relocate"`
}

// WorkedAt reports whether company is on the employment-history allowlist.
// Matching is case-insensitive containment in either direction, so
// "SHF Inc." matches "shf".
func (p *Profile) WorkedAt(company string) bool {
	company = strings.ToLower(strings.TrimSpace(company))
	if company == "" {
		return false
	}
	for _, known := range p.EmploymentHistory {
		known = strings.ToLower(strings.TrimSpace(known))
		if known == "" {
			continue
		}
		if strings.Contains(company, known) || strings.Contains(known, company) {
			return true
		}
	}
	return false
}

// FormatForAI renders the profile as the context block passed to the AI
// provider when generating free-text answers.
func (p *Profile) FormatForAI() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Name: %s\n", p.FullName)
	fmt.Fprintf(&b, "Email: %s\n", p.Email)
	fmt.Fprintf(&b, "Location: %s\n", p.City)
	fmt.Fprintf(&b, "Years of Experience: %d\n", p.YearsOfExperience)
	fmt.Fprintf(&b, "Current/Recent Employer: %s\n", p.RecentEmployer)
	fmt.Fprintf(&b, "Professional Headline: %s\n", p.Headline)
	fmt.Fprintf(&b, "LinkedIn: %s\n", p.LinkedInURL)
	if p.PortfolioURL != "" {
		fmt.Fprintf(&b, "Portfolio/Website: %s\n", p.PortfolioURL)
	}

	if p.Summary != "" {
		fmt.Fprintf(&b, "\nProfessional Summary:\n%s\n", strings.TrimSpace(p.Summary))
	}

	b.WriteString("\nAdditional Information:\n")
	fmt.Fprintf(&b, "- Desired Salary: %d\n", p.DesiredSalary)
	fmt.Fprintf(&b, "- Notice Period: %d days\n", p.NoticePeriodDays)
	fmt.Fprintf(&b, "- Visa Sponsorship Required: %s\n", p.RequiresVisaSponsorship)
	clearance := "No"
	if p.SecurityClearance {
		clearance = "Yes"
	}
	fmt.Fprintf(&b, "- Security Clearance: %s\n", clearance)
	fmt.Fprintf(&b, "- Education Level: %s\n", p.Education)
	if len(p.EmploymentHistory) > 0 {
		fmt.Fprintf(&b, "- Complete Employment History (only these companies, never any other): %s\n",
			strings.Join(p.EmploymentHistory, ", "))
	}

	return b.String()
}

// Validate checks the fields every run depends on.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("profile: full-name is required")
	}
	if p.YearsOfExperience < 0 {
		return fmt.Errorf("profile: years-of-experience must not be negative")
	}
	if p.RequiresVisaSponsorship == "" {
		p.RequiresVisaSponsorship = "No"
	}
	if p.DefaultSkillRating <= 0 {
		p.DefaultSkillRating = 7
	}
	if p.WillingToRelocate == "" {
		p.WillingToRelocate = "Yes"
	}
	return nil
}
