package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Node names used across the graph, routers, and the process-decision parser.
const (
	NodeHypothesis    = "Hypothesis"
	NodeProcess       = "Process"
	NodeVisualization = "Visualization"
	NodeSearch        = "Search"
	NodeCoder         = "Coder"
	NodeReport        = "Report"
	NodeQualityReview = "QualityReview"
	NodeNoteTaker     = "NoteTaker"
	NodeHumanChoice   = "HumanChoice"
	NodeRefiner       = "Refiner"
	NodeCleanup       = "Cleanup"
)

// Sender tags identifying which specialist produced a state mutation.
const (
	SenderHypothesis    = "hypothesis_agent"
	SenderProcess       = "process_agent"
	SenderVisualization = "visualization_agent"
	SenderSearch        = "search_agent"
	SenderCoder         = "code_agent"
	SenderReport        = "report_agent"
	SenderQualityReview = "quality_review_agent"
	SenderNote          = "note_agent"
	SenderRefiner       = "refiner_agent"
)

// Extra keys carried on schema.Message for provenance metadata.
const (
	extraSenderKey    = "sender"
	extraAgentTypeKey = "agent_type"
)

// Field names the per-stage string slots of the WorkflowState.
type Field string

const (
	FieldHypothesis         Field = "hypothesis"
	FieldProcess            Field = "process"
	FieldProcessDecision    Field = "process_decision"
	FieldVisualizationState Field = "visualization_state"
	FieldSearcherState      Field = "searcher_state"
	FieldCodeState          Field = "code_state"
	FieldReportSection      Field = "report_section"
	FieldQualityReview      Field = "quality_review"
)

// MergeStrategy selects how a new value combines with the existing one.
// The strategy is an explicit property of each field, never inferred from types.
type MergeStrategy int

const (
	// MergeReplace overwrites the previous value (last write wins).
	MergeReplace MergeStrategy = iota
	// MergeAppend concatenates message sequences, never replacing them.
	MergeAppend
	// MergeConcat joins successive string writes with a single space,
	// modeling cumulative notes from the same logical stage.
	MergeConcat
)

// FieldStrategies is the authoritative merge-strategy table for the stage fields.
var FieldStrategies = map[Field]MergeStrategy{
	FieldHypothesis:         MergeReplace,
	FieldProcess:            MergeReplace,
	FieldProcessDecision:    MergeReplace,
	FieldVisualizationState: MergeConcat,
	FieldSearcherState:      MergeConcat,
	FieldCodeState:          MergeConcat,
	FieldReportSection:      MergeReplace,
	FieldQualityReview:      MergeReplace,
}

// WorkflowState is the single mutable record threaded through every node of the
// graph. It is exclusively owned by the currently executing node; the engine
// never runs two nodes of one run concurrently.
type WorkflowState struct {
	InternalMessages []*schema.Message `json:"internal_messages"`
	FrontendMessages []*schema.Message `json:"frontend_messages"`

	Hypothesis         string `json:"hypothesis"`
	Process            string `json:"process"`
	ProcessDecision    string `json:"process_decision"`
	VisualizationState string `json:"visualization_state"`
	SearcherState      string `json:"searcher_state"`
	CodeState          string `json:"code_state"`
	ReportSection      string `json:"report_section"`
	QualityReview      string `json:"quality_review"`

	NeedsRevision     bool   `json:"needs_revision"`
	Sender            string `json:"sender"`
	ModificationAreas string `json:"modification_areas,omitempty"`

	// UserID owns any artifacts the Refiner persists for this run.
	UserID string `json:"user_id,omitempty"`
}

// RunState is the graph-local side channel used to hand operator input to the
// HumanChoice node when a suspended run is resumed.
type RunState struct {
	HumanFeedback     string `json:"human_feedback,omitempty"`
	ModificationAreas string `json:"modification_areas,omitempty"`
}

// NewWorkflowState returns an empty state ready for a fresh run.
func NewWorkflowState() *WorkflowState {
	return &WorkflowState{
		InternalMessages: []*schema.Message{},
		FrontendMessages: []*schema.Message{},
	}
}

// Update is a partial state mutation produced by a node. Apply merges it into
// the state using the per-field strategies above.
type Update struct {
	InternalMessages  []*schema.Message
	FrontendMessages  []*schema.Message
	Fields            map[Field]string
	NeedsRevision     *bool
	Sender            string
	ModificationAreas *string
}

// Apply merges the update into the state:
//   - internal messages are append-only,
//   - frontend messages replace the previous batch, except an empty batch is
//     ignored so history is never cleared unintentionally,
//   - stage fields follow their registered MergeStrategy.
func (s *WorkflowState) Apply(u Update) {
	if len(u.InternalMessages) > 0 {
		s.InternalMessages = append(s.InternalMessages, u.InternalMessages...)
	}
	if len(u.FrontendMessages) > 0 {
		s.FrontendMessages = u.FrontendMessages
	}
	for f, v := range u.Fields {
		s.setField(f, v)
	}
	if u.NeedsRevision != nil {
		s.NeedsRevision = *u.NeedsRevision
	}
	if u.Sender != "" {
		s.Sender = u.Sender
	}
	if u.ModificationAreas != nil {
		s.ModificationAreas = *u.ModificationAreas
	}
}

// Get returns the current value of a stage field.
func (s *WorkflowState) Get(f Field) string {
	switch f {
	case FieldHypothesis:
		return s.Hypothesis
	case FieldProcess:
		return s.Process
	case FieldProcessDecision:
		return s.ProcessDecision
	case FieldVisualizationState:
		return s.VisualizationState
	case FieldSearcherState:
		return s.SearcherState
	case FieldCodeState:
		return s.CodeState
	case FieldReportSection:
		return s.ReportSection
	case FieldQualityReview:
		return s.QualityReview
	}
	return ""
}

func (s *WorkflowState) setField(f Field, v string) {
	strategy, ok := FieldStrategies[f]
	if !ok {
		strategy = MergeReplace
	}
	if strategy == MergeConcat {
		prev := strings.TrimSpace(s.Get(f))
		next := strings.TrimSpace(v)
		switch {
		case prev == "":
			v = next
		case next == "":
			v = prev
		default:
			v = prev + " " + next
		}
	}
	switch f {
	case FieldHypothesis:
		s.Hypothesis = v
	case FieldProcess:
		s.Process = v
	case FieldProcessDecision:
		s.ProcessDecision = v
	case FieldVisualizationState:
		s.VisualizationState = v
	case FieldSearcherState:
		s.SearcherState = v
	case FieldCodeState:
		s.CodeState = v
	case FieldReportSection:
		s.ReportSection = v
	case FieldQualityReview:
		s.QualityReview = v
	}
}

// WithSender stamps the producing agent on a message and returns it.
func WithSender(msg *schema.Message, sender string) *schema.Message {
	if msg == nil {
		return nil
	}
	if msg.Extra == nil {
		msg.Extra = map[string]any{}
	}
	msg.Extra[extraSenderKey] = sender
	return msg
}

// SenderOf returns the sender tag stamped on a message, or "".
func SenderOf(msg *schema.Message) string {
	if msg == nil || msg.Extra == nil {
		return ""
	}
	if v, ok := msg.Extra[extraSenderKey].(string); ok {
		return v
	}
	return ""
}

// WithAgentType stamps the frontend grouping tag on a message and returns it.
func WithAgentType(msg *schema.Message, agentType string) *schema.Message {
	if msg == nil {
		return nil
	}
	if msg.Extra == nil {
		msg.Extra = map[string]any{}
	}
	msg.Extra[extraAgentTypeKey] = agentType
	return msg
}

// AgentTypeOf returns the frontend grouping tag stamped on a message, or "".
func AgentTypeOf(msg *schema.Message) string {
	if msg == nil || msg.Extra == nil {
		return ""
	}
	if v, ok := msg.Extra[extraAgentTypeKey].(string); ok {
		return v
	}
	return ""
}
