package configedit

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// ErrNoSelection is returned for edits issued while no node is selected.
var ErrNoSelection = errors.New("no node selected")

// Editor binds the schema registry to the store's current selection. Field
// edits commit to canonical state immediately; free-text fields additionally
// go through a local buffer that is re-seeded only when the selected node
// identity changes.
type Editor struct {
	store    *store.Store
	registry *Registry

	mu         sync.Mutex
	selectedID string
	kind       types.NodeKind
	buffers    map[string]string

	unsubscribe func()
}

// NewEditor creates an editor tracking the store's selection. Call Close to
// detach.
func NewEditor(st *store.Store, reg *Registry) *Editor {
	e := &Editor{
		store:    st,
		registry: reg,
		buffers:  make(map[string]string),
	}
	e.unsubscribe = st.Subscribe(e.onSnapshot)
	e.onSnapshot(st.Snapshot())
	return e
}

// Close detaches the editor from the store.
func (e *Editor) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// onSnapshot re-seeds the free-text buffers from canonical state whenever the
// selected node identity changes. Ordinary re-renders with the same selection
// leave the buffers alone so the caret position survives.
func (e *Editor) onSnapshot(snap store.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if snap.SelectedID == e.selectedID {
		return
	}
	e.selectedID = snap.SelectedID
	e.kind = ""
	e.buffers = make(map[string]string)
	if snap.SelectedID == "" {
		return
	}
	n, ok := snap.Node(snap.SelectedID)
	if !ok {
		return
	}
	e.kind = n.Kind
	if s, ok := e.registry.Schema(n.Kind); ok {
		for _, f := range s.Fields {
			if !f.FreeText {
				continue
			}
			if v, ok := n.Config[f.Name].(string); ok {
				e.buffers[f.Name] = v
			}
		}
	}
}

// SelectedID returns the id of the node currently being edited.
func (e *Editor) SelectedID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedID
}

// Fields returns the editable fields for the current selection, or nil when
// nothing is selected (the panel renders an empty placeholder).
func (e *Editor) Fields() []Field {
	e.mu.Lock()
	kind := e.kind
	selected := e.selectedID
	e.mu.Unlock()
	if selected == "" {
		return nil
	}
	if s, ok := e.registry.Schema(kind); ok {
		out := make([]Field, len(s.Fields))
		copy(out, s.Fields)
		return out
	}
	return nil
}

// SetField validates and commits one config field of the selected node. The
// full merged config is validated so one bad field cannot slip in beside
// healthy ones; keys not named in the edit are preserved by the store's
// shallow merge.
func (e *Editor) SetField(name string, value any) error {
	e.mu.Lock()
	selected := e.selectedID
	e.mu.Unlock()
	if selected == "" {
		return ErrNoSelection
	}
	n, ok := e.store.Node(selected)
	if !ok {
		return ErrNoSelection
	}

	merged := types.CloneConfig(n.Config)
	merged[name] = value
	if err := e.registry.Validate(n.Kind, merged); err != nil {
		return err
	}

	e.store.UpdateNode(selected, store.NodePatch{Config: map[string]any{name: value}})
	return nil
}

// SetText updates a free-text field: the local buffer and canonical state
// move together in the same operation.
func (e *Editor) SetText(name, value string) error {
	e.mu.Lock()
	if e.selectedID == "" {
		e.mu.Unlock()
		return ErrNoSelection
	}
	e.buffers[name] = value
	e.mu.Unlock()
	return e.SetField(name, value)
}

// Text returns the buffered value of a free-text field. Views render from the
// buffer, not from canonical state, to keep the caret stable.
func (e *Editor) Text(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffers[name]
}
