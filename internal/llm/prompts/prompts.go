package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examfix/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var questionTagRegex = regexp.MustCompile(`(?i)</?\s*question\b[^>]*>`)

const maxFieldRunes = 10000

// PromptVariant selects how strictly questions are reviewed.
type PromptVariant string

const (
	// PromptStrict flags style and formatting defects too.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient only flags wrong answer keys and unsolvable statements.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce          sync.Once
	loadErr           error
	validateTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// ValidateData holds template data for validation prompts.
type ValidateData struct {
	Type        model.QuestionType
	PageNumber  int
	Statement   string
	Options     []string
	HasOptions  bool
	Answer      string
	HasAnswer   bool
	Solution    string
	HasSolution bool
}

var funcs = template.FuncMap{
	"letter": func(i int) string {
		if i < 26 {
			return string(rune('A' + i))
		}
		return fmt.Sprintf("%d", i+1)
	},
}

// Load parses the embedded prompt templates. It is safe to call repeatedly.
func Load() error {
	return LoadFS(templateFS)
}

// LoadFS parses prompt templates from fsys. Only the first call has an effect.
func LoadFS(fsys fs.FS) error {
	loadOnce.Do(func() {
		validateTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			file := "templates/validate_" + string(v) + ".txt"

			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}

			tmpl, err := template.New("validate").Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			validateTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildValidatePrompt renders the review prompt for one question.
func BuildValidatePrompt(variant PromptVariant, req model.ValidationRequest) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := validateTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := ValidateData{
		Type:       req.Type,
		PageNumber: req.PageNumber,
		Statement:  sanitizeField(req.Statement),
	}
	if opts, ok := req.Options.Get(); ok {
		data.HasOptions = true
		for _, o := range opts {
			data.Options = append(data.Options, sanitizeField(o))
		}
	}
	if a, ok := req.Answer.Get(); ok {
		data.HasAnswer = true
		data.Answer = sanitizeField(a)
	}
	if s, ok := req.Solution.Get(); ok {
		data.HasSolution = true
		data.Solution = sanitizeField(s)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeField strips prompt delimiter tags and caps the length of stored text.
func sanitizeField(s string) string {
	s = questionTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxFieldRunes {
		runes := []rune(s)
		s = string(runes[:maxFieldRunes]) + "\n[truncated]"
	}
	return s
}
