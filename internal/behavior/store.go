package behavior

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const stateFileName = "stats.json"

// DailyState is the durable slice of governor state. Only daily and total
// counters survive a restart; session counters never persist.
type DailyState struct {
	Date            string  `json:"date"`
	DailyCount      int     `json:"daily_count"`
	TotalCount      int     `json:"total_count"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`
	DetectionEvents int     `json:"detection_events"`
}

// Store reads and writes the daily counter file. The file is opened,
// written, and closed per flush; there is exactly one writer process.
type Store struct {
	path string
}

func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, stateFileName)}
}

// Load returns the persisted state for today. A missing file or a state
// from a previous date yields a fresh daily count; the running total and
// detection counters carry over.
func (s *Store) Load(today string) (*DailyState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &DailyState{Date: today}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading behavior state: %w", err)
	}

	var state DailyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing behavior state: %w", err)
	}

	if state.Date != today {
		state.Date = today
		state.DailyCount = 0
	}

	return &state, nil
}

// Save writes the state file in place.
func (s *Store) Save(state *DailyState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding behavior state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing behavior state: %w", err)
	}
	return nil
}
