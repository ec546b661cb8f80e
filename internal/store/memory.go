package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// Memory is a process-local repository with the same contract as Store.
// Values are deep-copied on the way in and out.
type Memory struct {
	mu        sync.RWMutex
	templates map[string]*ir.Template
	instances map[string]*ir.Instance
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		templates: make(map[string]*ir.Template),
		instances: make(map[string]*ir.Instance),
	}
}

func (m *Memory) GetTemplate(_ context.Context, id string) (*ir.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]ir.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ir.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, *t.Clone())
	}
	slices.SortFunc(out, func(a, b ir.Template) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) SaveTemplate(_ context.Context, t *ir.Template, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.templates[t.ID]
	switch {
	case expectedRevision == 0 && ok:
		return ErrConflict
	case expectedRevision != 0 && !ok:
		return ErrNotFound
	case ok && stored.Revision != expectedRevision:
		return ErrConflict
	}
	t.Revision = expectedRevision + 1
	m.templates[t.ID] = t.Clone()
	return nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *Memory) GetInstance(_ context.Context, id string) (*ir.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

func (m *Memory) ListInstances(_ context.Context) ([]ir.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ir.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, *inst.Clone())
	}
	slices.SortFunc(out, func(a, b ir.Instance) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *Memory) SaveInstance(_ context.Context, inst *ir.Instance, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.instances[inst.ID]
	switch {
	case expectedRevision == 0 && ok:
		return ErrConflict
	case expectedRevision != 0 && !ok:
		return ErrNotFound
	case ok && stored.Revision != expectedRevision:
		return ErrConflict
	}
	if !ok {
		for _, other := range m.instances {
			if other.TransmittalNo == inst.TransmittalNo {
				return ErrConflict
			}
		}
	}
	inst.Revision = expectedRevision + 1
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *Memory) DeleteInstance(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return ErrNotFound
	}
	delete(m.instances, id)
	return nil
}

func (m *Memory) TransmittalNumbers(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	for _, inst := range m.instances {
		if strings.HasPrefix(inst.TransmittalNo, prefix) {
			out = append(out, inst.TransmittalNo)
		}
	}
	slices.Sort(out)
	return out, nil
}
