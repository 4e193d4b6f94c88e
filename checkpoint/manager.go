// Package checkpoint implements the Checkpoint Manager:
// versioned persistence of Agent Facade state with sidecar metadata,
// best-model tracking, and a retention policy.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"chesstrain/agent"
	"chesstrain/trainerr"
)

// ValidationStatus is the sum type for a Checkpoint's validation state.
type ValidationStatus int

const (
	Unvalidated ValidationStatus = iota
	Valid
	Invalid
)

// Metadata is the sidecar record alongside each checkpoint payload.
type Metadata struct {
	Cycle             int
	Performance       float64
	Description       string
	IsBest            bool
	SeedConfiguration *int64
	CreatedAt         time.Time
}

// Info is the full CheckpointInfo returned by Create/Get/List.
type Info struct {
	Version          int
	Path             string
	Metadata         Metadata
	CreationTime     time.Time
	Size             int64
	ValidationStatus ValidationStatus
}

// RetentionPolicy enforces keep-best, keep-last-N, and keep-every-Kth in
// that priority, combined with set-union semantics: a
// checkpoint survives if ANY rule would keep it.
type RetentionPolicy struct {
	KeepBest   bool
	KeepLastN  int
	KeepEveryK int
}

// ProbeFunc selects a small set of fixed probe states used by optional
// reload validation.
type ProbeFunc func() [][]float64

// Manager is the Checkpoint Manager.
type Manager struct {
	baseDir string
	probe   ProbeFunc

	infos []Info // ordered by Version ascending
}

// New constructs a Manager writing under baseDir. probe may be nil, which
// disables reload validation regardless of what Create is asked to do.
func New(baseDir string, probe ProbeFunc) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create base dir: %w", fmt.Errorf("%w: %v", trainerr.ErrIO, err))
	}
	return &Manager{baseDir: baseDir, probe: probe}, nil
}

func (m *Manager) payloadPath(version int) string {
	return filepath.Join(m.baseDir, fmt.Sprintf("checkpoint-%06d.gob", version))
}

func (m *Manager) metadataPath(version int) string {
	return filepath.Join(m.baseDir, fmt.Sprintf("checkpoint-%06d.meta.json", version))
}

// Create saves agent's state at the given version, writes the sidecar
// metadata, and optionally validates by reloading into a scratch agent
// and comparing probe-state action selections against the live agent.
// scratch must be a fresh, otherwise-uninitialized
// instance of the same concrete Facade type as agent; Create calls
// scratch.Load on it.
func (m *Manager) Create(live agent.Facade, scratch agent.Facade, version int, meta Metadata, validate bool) (Info, error) {
	meta.CreatedAt = time.Now()
	path := m.payloadPath(version)

	if err := live.Save(path); err != nil {
		return Info{}, fmt.Errorf("checkpoint: save version %d: %w", version, fmt.Errorf("%w: %v", trainerr.ErrIO, err))
	}

	status := Unvalidated
	if validate && m.probe != nil && scratch != nil {
		ok, err := m.validate(live, scratch, path)
		if err != nil {
			return Info{}, fmt.Errorf("checkpoint: validate version %d: %w", version, err)
		}
		if ok {
			status = Valid
		} else {
			status = Invalid
		}
	}

	size, err := fileSize(path)
	if err != nil {
		return Info{}, fmt.Errorf("checkpoint: stat version %d: %w", version, err)
	}

	info := Info{
		Version:          version,
		Path:             path,
		Metadata:         meta,
		CreationTime:     meta.CreatedAt,
		Size:             size,
		ValidationStatus: status,
	}

	if err := m.writeMetadata(version, meta); err != nil {
		return Info{}, fmt.Errorf("checkpoint: write metadata for version %d: %w", version, err)
	}

	// A version can be written more than once in one cycle (a best and a
	// periodic checkpoint share the cycle number); the later write replaces
	// the earlier record rather than duplicating the version.
	replaced := false
	for i := range m.infos {
		if m.infos[i].Version == version {
			m.infos[i] = info
			replaced = true
			break
		}
	}
	if !replaced {
		m.infos = append(m.infos, info)
		sort.Slice(m.infos, func(i, j int) bool { return m.infos[i].Version < m.infos[j].Version })
	}
	return info, nil
}

func (m *Manager) validate(live agent.Facade, scratch agent.Facade, path string) (bool, error) {
	if err := scratch.Load(path); err != nil {
		return false, err
	}
	for _, state := range m.probe() {
		actions := probeActions(state)
		liveAction, err := live.SelectAction(state, actions)
		if err != nil {
			return false, err
		}
		scratchAction, err := scratch.SelectAction(state, actions)
		if err != nil {
			return false, err
		}
		if liveAction != scratchAction {
			return false, nil
		}
	}
	return true, nil
}

// probeActions offers the full index range of the state vector as a
// stand-in action set for validation purposes. validate always uses it:
// ProbeFunc supplies probe states only, not their legal actions.
func probeActions(state []float64) []int {
	actions := make([]int, len(state))
	for i := range actions {
		actions[i] = i
	}
	return actions
}

func (m *Manager) writeMetadata(version int, meta Metadata) error {
	f, err := os.Create(m.metadataPath(version))
	if err != nil {
		return fmt.Errorf("%w: %v", trainerr.ErrIO, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("%w: %v", trainerr.ErrIO, err)
	}
	return nil
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", trainerr.ErrIO, err)
	}
	return st.Size(), nil
}

// GetBest returns the highest-performance checkpoint marked is_best, if
// any.
func (m *Manager) GetBest() (Info, bool) {
	var best Info
	found := false
	for _, info := range m.infos {
		if info.Metadata.IsBest && (!found || info.Metadata.Performance > best.Metadata.Performance) {
			best, found = info, true
		}
	}
	return best, found
}

// Get returns the checkpoint at the given version.
func (m *Manager) Get(version int) (Info, bool) {
	for _, info := range m.infos {
		if info.Version == version {
			return info, true
		}
	}
	return Info{}, false
}

// List returns every known checkpoint, ordered by version ascending.
func (m *Manager) List() []Info {
	out := make([]Info, len(m.infos))
	copy(out, m.infos)
	return out
}

// Load restores the checkpoint at info.Version into agent.
func (m *Manager) Load(info Info, a agent.Facade) error {
	if err := a.Load(info.Path); err != nil {
		return fmt.Errorf("checkpoint: load version %d: %w", info.Version, fmt.Errorf("%w: %v", trainerr.ErrIO, err))
	}
	return nil
}

// CleanupByRetention deletes every checkpoint not retained by policy,
// applying keep-best, keep-last-N, and keep-every-Kth as a set union:
// a checkpoint survives if any one rule keeps it.
func (m *Manager) CleanupByRetention(policy RetentionPolicy) error {
	if len(m.infos) == 0 {
		return nil
	}

	keep := make(map[int]bool, len(m.infos))

	if policy.KeepBest {
		if best, ok := m.GetBest(); ok {
			keep[best.Version] = true
		}
	}
	if policy.KeepLastN > 0 {
		start := len(m.infos) - policy.KeepLastN
		if start < 0 {
			start = 0
		}
		for _, info := range m.infos[start:] {
			keep[info.Version] = true
		}
	}
	if policy.KeepEveryK > 0 {
		for _, info := range m.infos {
			if info.Version%policy.KeepEveryK == 0 {
				keep[info.Version] = true
			}
		}
	}

	var remaining []Info
	for _, info := range m.infos {
		if keep[info.Version] {
			remaining = append(remaining, info)
			continue
		}
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checkpoint: remove version %d: %w", info.Version, fmt.Errorf("%w: %v", trainerr.ErrIO, err))
		}
		if err := os.Remove(m.metadataPath(info.Version)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checkpoint: remove metadata for version %d: %w", info.Version, fmt.Errorf("%w: %v", trainerr.ErrIO, err))
		}
	}
	m.infos = remaining
	return nil
}
