// Package record owns a session's durable artifacts: the append-only JSONL
// event log, the candidate-identity sidecar file, and the replay that
// reconstructs a timeline from them.
package record

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of a recorded event.
type Type string

// Recorded event types. Events represent facts that have occurred; they are
// appended, never mutated.
const (
	// TypeCodeSnapshot records the shared editor contents.
	TypeCodeSnapshot Type = "codeSnapshot"
	// TypeOutputSnapshot records the shared run output pane.
	TypeOutputSnapshot Type = "outputSnapshot"
	// TypeLanguageUpdate records a language selection change.
	TypeLanguageUpdate Type = "languageUpdate"
	// TypeRun records a run invocation.
	TypeRun Type = "run"
	// TypeRunResult records the outcome of a run invocation.
	TypeRunResult Type = "runResult"
	// TypeHintRequested records a hint budget consumption.
	TypeHintRequested Type = "hintRequested"
	// TypeHintResponse records the hint text shown to both roles.
	TypeHintResponse Type = "hintResponse"
	// TypeRecordingStarted records the host enabling ad-hoc recording.
	TypeRecordingStarted Type = "recordingStarted"
	// TypeRecordingStopped records the host disabling ad-hoc recording.
	TypeRecordingStopped Type = "recordingStopped"
	// TypeCandidateMetaUpdate records a candidate identity change.
	TypeCandidateMetaUpdate Type = "candidateMetaUpdate"
	// TypeChallengeLoaded records a challenge being sourced for the session.
	TypeChallengeLoaded Type = "challengeLoaded"
	// TypeChallengeUpdate records a host-sent manual challenge broadcast.
	TypeChallengeUpdate Type = "challengeUpdate"
	// TypeSessionEnded records the terminal lifecycle transition.
	TypeSessionEnded Type = "sessionEnded"
	// TypeDisconnect records a connection leaving the session group.
	TypeDisconnect Type = "disconnect"
)

// Snapshot reasons recorded alongside code/output snapshots.
const (
	ReasonTyping         = "typing"
	ReasonRun            = "run"
	ReasonRunFinish      = "run_finish"
	ReasonRecordingStart = "recording_start"
	ReasonRecordingStop  = "recording_stop"
	ReasonOutputUpdate   = "client_outputUpdate"
)

// Header carries the envelope fields shared by every logged event. The
// recorder stamps TS and SessionID on append.
type Header struct {
	TS        int64  `json:"ts"`
	SessionID string `json:"sessionId"`
	Type      Type   `json:"type"`
}

func (h *Header) header() *Header { return h }

// Event is the closed set of recordable facts. Each variant embeds Header so
// a logged line is one flat JSON object: {ts, sessionId, type, ...payload}.
type Event interface {
	header() *Header
	kind() Type
}

// CodeSnapshot captures the editor contents, subject to capping/throttling.
type CodeSnapshot struct {
	Header
	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code"`
	Truncated bool   `json:"truncated"`
}

func (CodeSnapshot) kind() Type { return TypeCodeSnapshot }

// OutputSnapshot captures the output pane contents.
type OutputSnapshot struct {
	Header
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
	Reason    string `json:"reason,omitempty"`
}

func (OutputSnapshot) kind() Type { return TypeOutputSnapshot }

// LanguageUpdate captures a language change.
type LanguageUpdate struct {
	Header
	Lang string `json:"lang"`
}

func (LanguageUpdate) kind() Type { return TypeLanguageUpdate }

// Run captures a run invocation before execution.
type Run struct {
	Header
	Language   string `json:"language"`
	CodeLength int    `json:"codeLength"`
}

func (Run) kind() Type { return TypeRun }

// RunResult captures the execution outcome text.
type RunResult struct {
	Header
	Output    string `json:"output"`
	Truncated bool   `json:"truncated"`
}

func (RunResult) kind() Type { return TypeRunResult }

// HintRequested captures budget consumption at request time.
type HintRequested struct {
	Header
	HintsLeft int `json:"hintsLeft"`
}

func (HintRequested) kind() Type { return TypeHintRequested }

// HintResponse captures the hint (or failure text) broadcast to both roles.
type HintResponse struct {
	Header
	Hint      string `json:"hint"`
	Truncated bool   `json:"truncated"`
	HintsLeft int    `json:"hintsLeft"`
}

func (HintResponse) kind() Type { return TypeHintResponse }

// RecordingStarted captures the ad-hoc recording toggle.
type RecordingStarted struct {
	Header
	StartedAt int64 `json:"startedAt"`
}

func (RecordingStarted) kind() Type { return TypeRecordingStarted }

// RecordingStopped captures the ad-hoc recording toggle.
type RecordingStopped struct {
	Header
	StoppedAt int64 `json:"stoppedAt"`
}

func (RecordingStopped) kind() Type { return TypeRecordingStopped }

// CandidateMetaUpdate captures a candidate identity change and who sent it.
type CandidateMetaUpdate struct {
	Header
	First  string `json:"first"`
	Last   string `json:"last"`
	Source string `json:"source,omitempty"`
}

func (CandidateMetaUpdate) kind() Type { return TypeCandidateMetaUpdate }

// ChallengeLoaded captures a challenge being sourced for the session.
type ChallengeLoaded struct {
	Header
	Source      string `json:"source"`
	ChallengeID string `json:"id"`
	Language    string `json:"language"`
	Level       int    `json:"level"`
}

func (ChallengeLoaded) kind() Type { return TypeChallengeLoaded }

// ChallengeUpdate captures a host-sent manual challenge broadcast.
type ChallengeUpdate struct {
	Header
	ChallengeID string `json:"id"`
	Source      string `json:"source,omitempty"`
	Title       string `json:"title"`
	Prompt      string `json:"prompt"`
	Language    string `json:"language"`
	Level       int    `json:"level"`
}

func (ChallengeUpdate) kind() Type { return TypeChallengeUpdate }

// SessionEnded captures the terminal lifecycle transition.
type SessionEnded struct {
	Header
	Reason string `json:"reason"`
}

func (SessionEnded) kind() Type { return TypeSessionEnded }

// Disconnect captures a connection leaving the session group.
type Disconnect struct {
	Header
	ConnID string `json:"connId"`
	Reason string `json:"reason,omitempty"`
}

func (Disconnect) kind() Type { return TypeDisconnect }

// Decode parses one logged line back into its typed variant. Lines with an
// unknown type or invalid JSON are reported as errors so replay can skip
// them individually.
func Decode(line []byte) (Event, error) {
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("parse event envelope: %w", err)
	}

	var evt Event
	switch h.Type {
	case TypeCodeSnapshot:
		evt = &CodeSnapshot{}
	case TypeOutputSnapshot:
		evt = &OutputSnapshot{}
	case TypeLanguageUpdate:
		evt = &LanguageUpdate{}
	case TypeRun:
		evt = &Run{}
	case TypeRunResult:
		evt = &RunResult{}
	case TypeHintRequested:
		evt = &HintRequested{}
	case TypeHintResponse:
		evt = &HintResponse{}
	case TypeRecordingStarted:
		evt = &RecordingStarted{}
	case TypeRecordingStopped:
		evt = &RecordingStopped{}
	case TypeCandidateMetaUpdate:
		evt = &CandidateMetaUpdate{}
	case TypeChallengeLoaded:
		evt = &ChallengeLoaded{}
	case TypeChallengeUpdate:
		evt = &ChallengeUpdate{}
	case TypeSessionEnded:
		evt = &SessionEnded{}
	case TypeDisconnect:
		evt = &Disconnect{}
	default:
		return nil, fmt.Errorf("unknown event type %q", h.Type)
	}

	if err := json.Unmarshal(line, evt); err != nil {
		return nil, fmt.Errorf("parse %s event: %w", h.Type, err)
	}
	return evt, nil
}
