package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/applyflow/applyflow/internal/recovery"
)

const (
	appliedFileName = "applied_jobs.json"
	failedFileName  = "failed_jobs.json"
)

// QA is one answered question inside an application record.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Strategy string `json:"strategy"`
}

// AppliedRecord is the journal entry for one submitted application.
type AppliedRecord struct {
	RunID       string    `json:"run_id"`
	JobID       string    `json:"job_id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Resume      string    `json:"resume"`
	Answers     []QA      `json:"answers"`
	StartedAt   time.Time `json:"started_at"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// failedRecord is the journal entry for an aborted application.
type failedRecord struct {
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	JobID      string    `json:"job_id"`
	Company    string    `json:"company"`
	Reason     string    `json:"reason"`
	Diagnostic string    `json:"diagnostic"`
	Screenshot string    `json:"screenshot,omitempty"`
}

// Journal writes append-only run logs, one JSON record per line. Files are
// opened, appended, and closed per write; the single runner is the only
// writer.
type Journal struct {
	dir   string
	runID string
}

func NewJournal(dir string) *Journal {
	return &Journal{dir: dir, runID: uuid.NewString()}
}

// RunID identifies this process run in every record.
func (j *Journal) RunID() string { return j.runID }

// RecordApplied appends a submitted-application record.
func (j *Journal) RecordApplied(rec AppliedRecord) error {
	rec.RunID = j.runID
	return j.appendLine(appliedFileName, rec)
}

// RecordFailure appends a failed-application record. Satisfies the
// recovery system's failure sink.
func (j *Journal) RecordFailure(rec recovery.FailureRecord) error {
	return j.appendLine(failedFileName, failedRecord{
		RunID:      j.runID,
		Timestamp:  rec.Timestamp,
		JobID:      rec.JobID,
		Company:    rec.Company,
		Reason:     rec.Reason,
		Diagnostic: rec.Diagnostic,
		Screenshot: rec.Screenshot,
	})
}

func (j *Journal) appendLine(name string, record any) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("creating journal dir: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding journal record: %w", err)
	}

	path := filepath.Join(j.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to journal %s: %w", name, err)
	}
	return nil
}
