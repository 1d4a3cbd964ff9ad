package ai

import (
	"context"

	"github.com/applyflow/applyflow/internal/forms"
)

// AnswerRequest carries everything an assistant needs to answer a single
// application form question.
type AnswerRequest struct {
	Question string
	Kind     forms.FieldKind
	Options  []string
	Job      forms.JobContext
}

// Answerer produces a short literal answer for a form question. The returned
// string is unvalidated; callers decide whether it is usable.
type Answerer interface {
	AnswerQuestion(ctx context.Context, req AnswerRequest) (string, error)
}

// ResumePicker selects one resume variant by name for a job posting. The
// returned name may not belong to the candidate set; callers must verify.
type ResumePicker interface {
	PickResume(ctx context.Context, job forms.JobContext, names []string) (string, error)
}
