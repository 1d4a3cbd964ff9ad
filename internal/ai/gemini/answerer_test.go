package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/ai"
	"github.com/applyflow/applyflow/internal/forms"
	"github.com/applyflow/applyflow/internal/profile"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
	calls      int
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testAnswererProfile() *profile.Profile {
	return &profile.Profile{
		FullName:          "Jordan Reyes",
		YearsOfExperience: 4,
		EmploymentHistory: []string{"Numtrix", "Texcel"},
	}
}

func TestAnswererAnswerQuestion(t *testing.T) {
	stub := &stubGenerator{response: `{"answer": "4"}`}
	answerer := NewAnswerer(stub, testAnswererProfile(), zap.NewNop(), 0)

	req := ai.AnswerRequest{
		Question: "How many years of experience do you have with Go?",
		Kind:     forms.FieldShortText,
		Job:      forms.JobContext{Title: "Backend Engineer", Company: "Acme"},
	}

	answer, err := answerer.AnswerQuestion(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer != "4" {
		t.Fatalf("expected answer 4, got %q", answer)
	}

	if !strings.Contains(stub.lastPrompt, "Jordan Reyes") {
		t.Fatalf("expected applicant profile in prompt")
	}

	if !strings.Contains(stub.lastPrompt, "How many years of experience") {
		t.Fatalf("expected question in prompt: %s", stub.lastPrompt)
	}

	if !strings.Contains(stub.lastPrompt, "Company: Acme") {
		t.Fatalf("expected job context in prompt")
	}
}

func TestAnswererIncludesOptions(t *testing.T) {
	stub := &stubGenerator{response: `{"answer": "Yes"}`}
	answerer := NewAnswerer(stub, testAnswererProfile(), zap.NewNop(), 0)

	req := ai.AnswerRequest{
		Question: "Are you willing to relocate?",
		Kind:     forms.FieldSingleSelect,
		Options:  []string{"Yes", "No"},
	}

	if _, err := answerer.AnswerQuestion(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stub.lastPrompt, "Options:\n- Yes\n- No") {
		t.Fatalf("expected options block in prompt: %s", stub.lastPrompt)
	}
}

func TestAnswererCachesByQuestion(t *testing.T) {
	stub := &stubGenerator{response: `{"answer": "No"}`}
	answerer := NewAnswerer(stub, testAnswererProfile(), zap.NewNop(), 0)

	req := ai.AnswerRequest{
		Question: "Do you require visa sponsorship?",
		Kind:     forms.FieldShortText,
	}

	for i := 0; i < 3; i++ {
		answer, err := answerer.AnswerQuestion(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
		if answer != "No" {
			t.Fatalf("expected No, got %q", answer)
		}
	}

	if stub.calls != 1 {
		t.Fatalf("expected a single generator call, got %d", stub.calls)
	}
}

func TestAnswererPropagatesGeneratorError(t *testing.T) {
	stub := &stubGenerator{err: errors.New("quota exceeded")}
	answerer := NewAnswerer(stub, testAnswererProfile(), zap.NewNop(), 0)

	_, err := answerer.AnswerQuestion(context.Background(), ai.AnswerRequest{
		Question: "What is your notice period?",
		Kind:     forms.FieldShortText,
	})
	if err == nil {
		t.Fatalf("expected error from generator")
	}
}

func TestAnswererPickResume(t *testing.T) {
	stub := &stubGenerator{response: "```json\n{\"resume\": \"backend\"}\n```"}
	answerer := NewAnswerer(stub, testAnswererProfile(), zap.NewNop(), 0)

	name, err := answerer.PickResume(context.Background(),
		forms.JobContext{Title: "Backend Engineer", Company: "Acme"},
		[]string{"backend", "frontend", "data"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if name != "backend" {
		t.Fatalf("expected backend, got %q", name)
	}

	if !strings.Contains(stub.lastPrompt, "- frontend") {
		t.Fatalf("expected variant list in prompt: %s", stub.lastPrompt)
	}
}

func TestParseAnswerHandlesCodeBlock(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		raw    string
		expect string
	}{
		{"plain", `{"answer": "Yes"}`, "Yes"},
		{"fenced", "```json\n{\"answer\": \"12.00\"}\n```", "12.00"},
		{"fenced no lang", "```\n{\"answer\": \"No\"}\n```", "No"},
		{"numeric value", `{"answer": 7}`, "7"},
		{"missing key", `{"other": "x"}`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseAnswer(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expect {
				t.Fatalf("expected %q, got %q", tc.expect, got)
			}
		})
	}
}

func TestParseAnswerRejectsNonJSON(t *testing.T) {
	if _, err := parseAnswer("I think the answer is Yes"); err == nil {
		t.Fatalf("expected parse error for prose response")
	}
}

type stubCachedGenerator struct {
	stubGenerator
	lastCacheName string
	cachedCalls   int
}

func (s *stubCachedGenerator) GenerateContentWithCache(_ context.Context, prompt, cacheName string) (string, error) {
	s.cachedCalls++
	s.lastPrompt = prompt
	s.lastCacheName = cacheName
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestAnswererUsesProfileCache(t *testing.T) {
	stub := &stubCachedGenerator{stubGenerator: stubGenerator{response: `{"answer": "Yes"}`}}
	answerer := NewAnswerer(stub, testAnswererProfile(), zap.NewNop(), 0)
	answerer.EnableProfileCache("cachedContents/profile-1")

	req := ai.AnswerRequest{
		Question: "Are you authorized to work in the United States?",
		Kind:     forms.FieldSingleSelect,
		Options:  []string{"Yes", "No"},
	}

	answer, err := answerer.AnswerQuestion(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Yes" {
		t.Fatalf("expected answer Yes, got %q", answer)
	}

	if stub.cachedCalls != 1 || stub.calls != 0 {
		t.Fatalf("expected the cached channel only, got cached=%d plain=%d", stub.cachedCalls, stub.calls)
	}
	if stub.lastCacheName != "cachedContents/profile-1" {
		t.Fatalf("unexpected cache name %q", stub.lastCacheName)
	}
	if strings.Contains(stub.lastPrompt, "Jordan Reyes") {
		t.Fatalf("expected profile text omitted when cached context is used")
	}
}

func TestAnswererProfileCacheRequiresCapableGenerator(t *testing.T) {
	stub := &stubGenerator{response: `{"answer": "Yes"}`}
	answerer := NewAnswerer(stub, testAnswererProfile(), zap.NewNop(), 0)
	answerer.EnableProfileCache("cachedContents/profile-1")

	req := ai.AnswerRequest{Question: "Do you have a valid driver's license?", Kind: forms.FieldShortText}
	if _, err := answerer.AnswerQuestion(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stub.calls != 1 {
		t.Fatalf("expected plain generation, got %d calls", stub.calls)
	}
	if !strings.Contains(stub.lastPrompt, "Jordan Reyes") {
		t.Fatalf("expected profile text in prompt when cache is unavailable")
	}
}
