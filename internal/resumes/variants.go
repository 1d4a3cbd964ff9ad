// Package resumes chooses the best resume variant for a job posting, by
// remote AI ranking when available and by keyword scoring otherwise.
package resumes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Variant is one resume file with metadata extracted from its name and text.
type Variant struct {
	Name            string
	Path            string
	Category        string
	Skills          []string
	ExperienceLevel string
	Excerpt         string
}

const excerptLength = 500

var categoryKeywords = []string{
	"backend", "frontend", "fullstack", "full-stack", "mobile", "devops",
	"data", "ml", "machine-learning", "security", "qa", "embedded",
}

var knownSkills = []string{
	"python", "java", "javascript", "typescript", "go", "golang", "rust",
	"c++", "c#", "ruby", "php", "kotlin", "swift", "sql", "react", "angular",
	"vue", "node", "django", "flask", "spring", "kubernetes", "docker",
	"terraform", "aws", "gcp", "azure", "linux", "git", "postgresql", "mysql",
	"mongodb", "redis", "kafka", "spark", "hadoop", "tensorflow", "pytorch",
	"selenium", "graphql", "rest", "grpc", "ci/cd", "agile",
}

type cachedVariant struct {
	modTime time.Time
	variant Variant
}

// Library scans a folder of resume variants. Parsed variants are cached by
// (path, modification time) and rebuilt only when the file changes.
type Library struct {
	dir    string
	logger *zap.Logger
	cache  map[string]cachedVariant
}

func NewLibrary(dir string, log *zap.Logger) *Library {
	if log == nil {
		log = zap.NewNop()
	}
	return &Library{
		dir:    dir,
		logger: log,
		cache:  make(map[string]cachedVariant),
	}
}

// Variants returns all resume variants in the folder, sorted by name for a
// stable input order. PDF files are represented by a text sidecar named
// "<file>.pdf.txt"; PDFs without one are skipped.
func (l *Library) Variants() ([]Variant, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading resume dir: %w", err)
	}

	var variants []Variant
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		path := filepath.Join(l.dir, name)

		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md":
			if strings.HasSuffix(strings.ToLower(name), ".pdf.txt") {
				continue
			}
		case ".pdf":
			sidecar := path + ".txt"
			if _, err := os.Stat(sidecar); err != nil {
				l.logger.Debug("skipping pdf without text sidecar",
					zap.String("path", path),
				)
				continue
			}
			v, err := l.load(path, sidecar)
			if err != nil {
				return nil, err
			}
			variants = append(variants, v)
			continue
		default:
			continue
		}

		v, err := l.load(path, path)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	sort.Slice(variants, func(i, j int) bool { return variants[i].Name < variants[j].Name })
	return variants, nil
}

// load parses one variant, serving it from cache while the text file is
// unchanged.
func (l *Library) load(path, textPath string) (Variant, error) {
	info, err := os.Stat(textPath)
	if err != nil {
		return Variant{}, fmt.Errorf("stat resume %s: %w", textPath, err)
	}

	if cached, ok := l.cache[path]; ok && cached.modTime.Equal(info.ModTime()) {
		return cached.variant, nil
	}

	data, err := os.ReadFile(textPath)
	if err != nil {
		return Variant{}, fmt.Errorf("reading resume %s: %w", textPath, err)
	}

	v := buildVariant(path, string(data))
	l.cache[path] = cachedVariant{modTime: info.ModTime(), variant: v}

	l.logger.Debug("parsed resume variant",
		zap.String("name", v.Name),
		zap.String("category", v.Category),
		zap.String("experience_level", v.ExperienceLevel),
		zap.Int("skills", len(v.Skills)),
	)
	return v, nil
}

func buildVariant(path, text string) Variant {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	lowerName := strings.ToLower(name)
	lowerText := strings.ToLower(text)

	category := ""
	for _, kw := range categoryKeywords {
		if strings.Contains(lowerName, kw) {
			category = kw
			break
		}
	}

	var skills []string
	for _, skill := range knownSkills {
		if strings.Contains(lowerText, skill) {
			skills = append(skills, skill)
		}
	}

	level := "mid"
	switch {
	case containsAny(lowerName+" "+lowerText, "senior", "lead", "principal", "staff engineer"):
		level = "senior"
	case containsAny(lowerName+" "+lowerText, "junior", "intern", "entry-level", "entry level"):
		level = "junior"
	}

	excerpt := text
	if len(excerpt) > excerptLength {
		excerpt = excerpt[:excerptLength]
	}

	return Variant{
		Name:            name,
		Path:            path,
		Category:        category,
		Skills:          skills,
		ExperienceLevel: level,
		Excerpt:         excerpt,
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
