package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// NoteRecord is the strict output schema of the note-taking agent: a compressed
// re-derivation of the structured state from a trailing conversation window.
type NoteRecord struct {
	Messages           []NoteMessage `json:"messages"`
	Hypothesis         string        `json:"hypothesis"`
	Process            string        `json:"process"`
	ProcessDecision    string        `json:"process_decision"`
	VisualizationState string        `json:"visualization_state"`
	SearcherState      string        `json:"searcher_state"`
	CodeState          string        `json:"code_state"`
	ReportSection      string        `json:"report_section"`
	QualityReview      string        `json:"quality_review"`
	NeedsRevision      bool          `json:"needs_revision"`
}

// NoteMessage is the serializable message shape inside a NoteRecord.
type NoteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Sender  string `json:"sender,omitempty"`
}

// SchemaMessages converts the record's messages into engine messages,
// preserving sender provenance. Blank entries are dropped.
func (r *NoteRecord) SchemaMessages() []*schema.Message {
	out := make([]*schema.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := schema.RoleType(m.Role)
		if role == "" {
			role = schema.Assistant
		}
		msg := &schema.Message{Role: role, Content: m.Content}
		if m.Sender != "" {
			WithSender(msg, m.Sender)
		}
		out = append(out, msg)
	}
	return out
}
