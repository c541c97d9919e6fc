package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// StateFileName is the name of the run state file.
	StateFileName = "run_state.json"
)

// RunState is the persistent progress of a search run.
type RunState struct {
	ArchiveKind    string    `json:"archive_kind"`
	Generation     int       `json:"generation"`
	Evaluations    int64     `json:"evaluations"`
	ArchiveUpdates int64     `json:"archive_updates"`
	CoveredTargets int       `json:"covered_targets"`
	TotalTargets   int       `json:"total_targets"`
	StartTime      time.Time `json:"start_time"`
	LastUpdate     time.Time `json:"last_update"`
}

// Elapsed is the time between the start of the run and its last update.
func (s RunState) Elapsed() time.Duration {
	if s.StartTime.IsZero() || s.LastUpdate.Before(s.StartTime) {
		return 0
	}
	return s.LastUpdate.Sub(s.StartTime)
}

// Coverage returns the covered share of targets in percent.
func (s RunState) Coverage() float64 {
	return safePercent(int64(s.CoveredTargets), int64(s.TotalTargets))
}

// EvaluationsPerSecond is the average evaluation throughput.
func (s RunState) EvaluationsPerSecond() float64 {
	secs := s.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Evaluations) / secs
}

// Manager handles the persistence and modification of the run state.
type Manager interface {
	// Load reads the state from disk.
	Load() error

	// Save writes the state to disk.
	Save() error

	// Start marks the beginning of a run over total targets.
	Start(archiveKind string, total int)

	// RecordGeneration stores the counters reached after a generation.
	RecordGeneration(generation int, evaluations, updates int64)

	// UpdateCoverage sets the number of covered targets.
	UpdateCoverage(covered int)

	// GetState returns a copy of the current state.
	GetState() RunState
}

// FileManager is a file-backed implementation of the Manager interface.
type FileManager struct {
	mu       sync.Mutex
	filePath string
	state    RunState
	now      func() time.Time
}

// NewFileManager creates a new FileManager for the given directory.
// The state file will be stored at dir/run_state.json.
func NewFileManager(dir string) *FileManager {
	return &FileManager{
		filePath: filepath.Join(dir, StateFileName),
		now:      time.Now,
	}
}

// Load reads the state from disk.
// If the file doesn't exist, the state is left empty.
func (m *FileManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = RunState{}
			return nil
		}
		return fmt.Errorf("failed to read state file %s: %w", m.filePath, err)
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", m.filePath, err)
	}
	m.state = st
	return nil
}

// Save writes the state to disk.
func (m *FileManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.filePath, err)
	}

	return nil
}

// Start resets the counters and stamps the start time.
func (m *FileManager) Start(archiveKind string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.state = RunState{
		ArchiveKind:  archiveKind,
		TotalTargets: total,
		StartTime:    now,
		LastUpdate:   now,
	}
}

// RecordGeneration stores the counters reached after a generation.
func (m *FileManager) RecordGeneration(generation int, evaluations, updates int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Generation = generation
	m.state.Evaluations = evaluations
	m.state.ArchiveUpdates = updates
	m.state.LastUpdate = m.now()
}

// UpdateCoverage sets the number of covered targets.
func (m *FileManager) UpdateCoverage(covered int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.CoveredTargets = covered
}

// GetState returns a copy of the current state.
func (m *FileManager) GetState() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// GetFilePath returns the path to the state file.
func (m *FileManager) GetFilePath() string {
	return m.filePath
}

func safePercent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// formatDuration renders d as "1h02m03s" style, dropping leading zero units.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
