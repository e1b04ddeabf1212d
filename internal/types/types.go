package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// NodeKind identifies the processing role of a node. The values are the wire
// names the backend expects in a node's "type" field.
type NodeKind string

const (
	KindUserQuery     NodeKind = "userQuery"
	KindKnowledgeBase NodeKind = "knowledgeBase"
	KindLLMEngine     NodeKind = "llmEngine"
	KindOutput        NodeKind = "output"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindUserQuery, KindKnowledgeBase, KindLLMEngine, KindOutput:
		return true
	}
	return false
}

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one processing step in a workflow graph.
type Node struct {
	ID       string
	Kind     NodeKind
	Position Position
	Label    string
	Config   map[string]any
}

// The backend nests label and config under "data".
type nodeWire struct {
	ID       string   `json:"id"`
	Type     NodeKind `json:"type"`
	Position Position `json:"position"`
	Data     nodeData `json:"data"`
}

type nodeData struct {
	Label  string         `json:"label"`
	Config map[string]any `json:"config"`
}

// MarshalJSON encodes the node in the backend's wire shape.
func (n Node) MarshalJSON() ([]byte, error) {
	cfg := n.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return json.Marshal(nodeWire{
		ID:       n.ID,
		Type:     n.Kind,
		Position: n.Position,
		Data:     nodeData{Label: n.Label, Config: cfg},
	})
}

// UnmarshalJSON decodes the backend's wire shape into a flat node.
func (n *Node) UnmarshalJSON(b []byte) error {
	var w nodeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	n.ID = w.ID
	n.Kind = w.Type
	n.Position = w.Position
	n.Label = w.Data.Label
	n.Config = w.Data.Config
	if n.Config == nil {
		n.Config = map[string]any{}
	}
	return nil
}

// Clone returns a copy of the node whose config shares no storage with the
// original.
func (n Node) Clone() Node {
	c := n
	c.Config = CloneConfig(n.Config)
	return c
}

// CloneConfig deep-copies a config mapping. Nested maps and slices are copied
// recursively so a cloned node can never alias canonical state.
func CloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneConfig(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []Document:
		out := make([]Document, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// DefaultEdgeKind is the backend's default edge "type".
const DefaultEdgeKind = "default"

// Edge connects two nodes by id.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"type"`
}

// Workflow is the persisted form of an assembled graph. Identity and
// timestamps are assigned by the backend on first save.
type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is an uploaded knowledge-base file attached to a knowledgeBase
// node. IsIngested flips once the backend has embedded it into a collection.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"file_path,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	IsIngested  bool      `json:"is_ingested"`
}

// ChatSession binds a conversation to a built workflow.
type ChatSession struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is one turn of a chat conversation. Assistant messages start empty
// and grow in place as tokens arrive.
type Message struct {
	ID        string
	Role      llms.ChatMessageType
	Content   string
	CreatedAt time.Time
}

// NewMessage creates a message with a fresh id.
func NewMessage(role llms.ChatMessageType, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
