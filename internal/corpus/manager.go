// Package corpus persists generated test suites on disk.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/state"
	"github.com/zjy-dev/tgen/internal/target"
)

const (
	// TestsDir is the subdirectory for test files.
	TestsDir = "tests"
	// StateDir is the subdirectory for the run state.
	StateDir = "state"
	// ManifestFile lists the saved suite.
	ManifestFile = "manifest.yaml"
)

// ErrNoSuite is returned when no suite has been saved yet.
var ErrNoSuite = errors.New("no saved suite")

// Manifest describes a saved suite.
type Manifest struct {
	SuiteID        string             `yaml:"suite_id"`
	SavedAt        time.Time          `yaml:"saved_at"`
	Statements     int                `yaml:"statements"`
	CoveredTargets int                `yaml:"covered_targets"`
	Fitness        map[string]float64 `yaml:"fitness,omitempty"`
	Tests          []Entry            `yaml:"tests"`
}

// Entry is one test of a saved suite.
type Entry struct {
	ID         string          `yaml:"id"`
	File       string          `yaml:"file"`
	Statements int             `yaml:"statements"`
	Exception  bool            `yaml:"exception,omitempty"`
	Timeout    bool            `yaml:"timeout,omitempty"`
	Covered    []target.Target `yaml:"covered,omitempty"`
}

// Manager stores suites and the run state next to them.
type Manager interface {
	// Initialize prepares the directory structure.
	Initialize() error

	// SaveSuite replaces the saved suite with s.
	SaveSuite(s *solution.Suite) (*Manifest, error)

	// LoadSuite reads the saved suite back.
	LoadSuite() (*solution.Suite, *Manifest, error)

	// LoadManifest reads only the manifest.
	LoadManifest() (*Manifest, error)
}

// FileManager is a file-backed implementation of the corpus Manager.
type FileManager struct {
	mu           sync.Mutex
	baseDir      string
	testsDir     string
	stateDir     string
	stateManager *state.FileManager
}

// NewFileManager creates a new corpus FileManager rooted at baseDir.
func NewFileManager(baseDir string) *FileManager {
	stateDir := filepath.Join(baseDir, StateDir)
	return &FileManager{
		baseDir:      baseDir,
		testsDir:     filepath.Join(baseDir, TestsDir),
		stateDir:     stateDir,
		stateManager: state.NewFileManager(stateDir),
	}
}

// Initialize prepares the directory structure and loads any previous state.
func (m *FileManager) Initialize() error {
	for _, dir := range []string{m.testsDir, m.stateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := m.stateManager.Load(); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	return nil
}

// testFileName names the i-th test (0-based) of a suite.
func testFileName(i int, id string) string {
	return fmt.Sprintf("id-%06d-%s.json", i+1, id)
}

// SaveSuite writes one JSON file per test and the manifest. Test files of a
// previously saved suite are removed first.
func (m *FileManager) SaveSuite(s *solution.Suite) (*Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.testsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", m.testsDir, err)
	}
	if err := m.clearTests(); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		SuiteID:    s.ID(),
		SavedAt:    time.Now().UTC(),
		Statements: s.Size(),
	}
	if scores := s.Scores(); len(scores) > 0 {
		manifest.Fitness = make(map[string]float64, len(scores))
		for _, sc := range scores {
			manifest.Fitness[sc.Function.Name()] = sc.Value
		}
	}

	covered := make(map[target.Target]struct{})
	for i, tc := range s.Tests {
		name := testFileName(i, tc.ID())
		data, err := json.MarshalIndent(tc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal test %s: %w", tc.ID(), err)
		}
		if err := os.WriteFile(filepath.Join(m.testsDir, name), data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write test %s: %w", name, err)
		}

		entry := Entry{
			ID:         tc.ID(),
			File:       filepath.ToSlash(filepath.Join(TestsDir, name)),
			Statements: tc.Size(),
		}
		if o := tc.LastOutcome(); o != nil {
			entry.Exception = o.Exception
			entry.Timeout = o.Timeout
			entry.Covered = o.CoveredTargets()
			for _, t := range entry.Covered {
				covered[t] = struct{}{}
			}
		}
		manifest.Tests = append(manifest.Tests, entry)
	}
	manifest.CoveredTargets = len(covered)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.baseDir, ManifestFile), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	return manifest, nil
}

// clearTests removes previously saved test files. Caller holds the lock.
func (m *FileManager) clearTests() error {
	entries, err := os.ReadDir(m.testsDir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", m.testsDir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "id-") || filepath.Ext(name) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(m.testsDir, name)); err != nil {
			return fmt.Errorf("failed to remove old test %s: %w", name, err)
		}
	}
	return nil
}

// LoadManifest reads the manifest of the saved suite.
func (m *FileManager) LoadManifest() (*Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadManifest()
}

func (m *FileManager) loadManifest() (*Manifest, error) {
	path := filepath.Join(m.baseDir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoSuite, m.baseDir)
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// LoadSuite reads the saved suite. Fitness values are only available in the
// manifest since fitness functions are not persisted.
func (m *FileManager) LoadSuite() (*solution.Suite, *Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest, err := m.loadManifest()
	if err != nil {
		return nil, nil, err
	}

	suite := solution.NewSuite()
	suite.SuiteID = manifest.SuiteID
	for _, e := range manifest.Tests {
		path := filepath.Join(m.baseDir, filepath.FromSlash(e.File))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read test %s: %w", e.File, err)
		}
		var tc solution.TestCase
		if err := json.Unmarshal(data, &tc); err != nil {
			return nil, nil, fmt.Errorf("failed to parse test %s: %w", e.File, err)
		}
		if tc.ID() != e.ID {
			return nil, nil, fmt.Errorf("test %s: manifest expects id %s, file has %s", e.File, e.ID, tc.ID())
		}
		suite.AddTest(&tc)
	}
	return suite, manifest, nil
}

// GetStateManager returns the underlying state manager.
func (m *FileManager) GetStateManager() *state.FileManager {
	return m.stateManager
}

// GetTestsDir returns the tests directory path.
func (m *FileManager) GetTestsDir() string {
	return m.testsDir
}
