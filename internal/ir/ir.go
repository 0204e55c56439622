// Package ir defines the intermediate representation shared by the parser,
// planner and executor. An IntentIR is the canonical object graph produced by
// parsing a DSL document; every downstream stage consumes and mutates it.
package ir

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionMode distinguishes simulated runs from committed ones.
type ExecutionMode string

const (
	// ModeDryRun only logs effects and generates artifacts in memory.
	ModeDryRun ExecutionMode = "dry-run"
	// ModeTransactional permits the executor to perform real side effects.
	ModeTransactional ExecutionMode = "transactional"
)

// ParseExecutionMode converts a textual mode token into an ExecutionMode.
func ParseExecutionMode(value string) (ExecutionMode, error) {
	switch ExecutionMode(value) {
	case ModeDryRun, ModeTransactional:
		return ExecutionMode(value), nil
	}
	return "", fmt.Errorf("unknown execution mode %q", value)
}

// RuntimeType selects where a generated service runs.
type RuntimeType string

const (
	// RuntimeDocker builds and runs a container via the local engine.
	RuntimeDocker RuntimeType = "docker"
	// RuntimeKubernetes is accepted by the parser but not implemented.
	RuntimeKubernetes RuntimeType = "kubernetes"
	// RuntimeLocal runs the generated service as a local process.
	RuntimeLocal RuntimeType = "local"
)

// ParseRuntimeType converts a textual runtime token into a RuntimeType.
func ParseRuntimeType(value string) (RuntimeType, error) {
	switch RuntimeType(value) {
	case RuntimeDocker, RuntimeKubernetes, RuntimeLocal:
		return RuntimeType(value), nil
	}
	return "", fmt.Errorf("unknown runtime %q", value)
}

// ActionType identifies one of the declarative effect kinds an
// implementation may request.
type ActionType string

const (
	ActionAPIExpose   ActionType = "api.expose"
	ActionDBCreate    ActionType = "db.create"
	ActionDBAddColumn ActionType = "db.add_column"
	ActionShellExec   ActionType = "shell.exec"
	ActionRESTCall    ActionType = "rest.call"
	ActionFileCreate  ActionType = "file.create"
)

// ParseActionType converts a dotted action token into an ActionType.
func ParseActionType(value string) (ActionType, error) {
	switch ActionType(value) {
	case ActionAPIExpose, ActionDBCreate, ActionDBAddColumn,
		ActionShellExec, ActionRESTCall, ActionFileCreate:
		return ActionType(value), nil
	}
	return "", fmt.Errorf("unknown action type %q", value)
}

// Defaults applied by the parser and by Decode for absent optional fields.
const (
	DefaultBaseImage = "python:3.12-slim"
	DefaultLanguage  = "python"
)

// ParamValue is a tagged value for action parameters: either a string from a
// key=value token or a boolean from a bare flag token.
type ParamValue struct {
	Str  string
	Bool bool
	// IsBool marks the boolean arm of the union.
	IsBool bool
}

// StringParam wraps a string parameter value.
func StringParam(s string) ParamValue { return ParamValue{Str: s} }

// FlagParam wraps a boolean parameter value.
func FlagParam(b bool) ParamValue { return ParamValue{Bool: b, IsBool: true} }

// String renders the value as it appears in the DSL.
func (p ParamValue) String() string {
	if p.IsBool {
		return strconv.FormatBool(p.Bool)
	}
	return p.Str
}

// MarshalJSON encodes the active arm of the union.
func (p ParamValue) MarshalJSON() ([]byte, error) {
	if p.IsBool {
		return json.Marshal(p.Bool)
	}
	return json.Marshal(p.Str)
}

// UnmarshalJSON accepts either a JSON string or a JSON boolean.
func (p *ParamValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*p = FlagParam(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("param value must be a string or boolean: %w", err)
	}
	*p = StringParam(s)
	return nil
}

// Action is a single declarative effect request inside an implementation.
// Method is meaningful only for api.expose and rest.call.
type Action struct {
	Type   ActionType            `json:"type"`
	Method string                `json:"method,omitempty"`
	Target string                `json:"target,omitempty"`
	Params map[string]ParamValue `json:"params,omitempty"`
}

// String renders the canonical single-line DSL form of the action.
// Parameters are emitted in sorted key order; bare flags stay bare.
func (a Action) String() string {
	parts := []string{string(a.Type)}
	if a.Method != "" {
		parts = append(parts, a.Method)
	}
	if a.Target != "" {
		parts = append(parts, a.Target)
	}
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := a.Params[k]
		if v.IsBool && v.Bool {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, k+"="+v.String())
	}
	return strings.Join(parts, " ")
}

// Environment describes where and how the generated service runs.
type Environment struct {
	Runtime   RuntimeType       `json:"runtime"`
	BaseImage string            `json:"base_image"`
	Services  []string          `json:"services,omitempty"`
	Ports     []int             `json:"ports,omitempty"`
	Volumes   []string          `json:"volumes,omitempty"`
	EnvVars   map[string]string `json:"env_vars,omitempty"`
}

// DefaultEnvironment returns the environment used when the DSL omits the
// ENVIRONMENT section.
func DefaultEnvironment() Environment {
	return Environment{Runtime: RuntimeDocker, BaseImage: DefaultBaseImage}
}

// Implementation holds the language target and the ordered action list.
type Implementation struct {
	Language  string   `json:"language"`
	Framework string   `json:"framework,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
}

// DefaultImplementation returns the implementation used when the DSL omits
// optional keys.
func DefaultImplementation() Implementation {
	return Implementation{Language: DefaultLanguage}
}

// Intent is the named goal-bearing unit a user wants realized.
type Intent struct {
	Name        string `json:"name"`
	Goal        string `json:"goal"`
	Description string `json:"description,omitempty"`
}

// IterationRecord is one entry of the append-only iteration history.
type IterationRecord struct {
	Sequence  int               `json:"sequence"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Changes   map[string]string `json:"changes"`
}

// IntentIR is the root aggregate: intent, environment, implementation and
// execution state. Identity across the system is by ID, which never changes
// after creation.
type IntentIR struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Intent         Intent         `json:"intent"`
	Environment    Environment    `json:"environment"`
	Implementation Implementation `json:"implementation"`
	ExecutionMode  ExecutionMode  `json:"execution_mode"`

	// AmenApproved flips to true only through Approve; together with
	// ExecutionMode it forms the approval gate the executor checks.
	AmenApproved     bool              `json:"amen_approved"`
	IterationCount   int               `json:"iteration_count"`
	IterationHistory []IterationRecord `json:"iteration_history,omitempty"`

	// Artifacts from the last planner run; empty until a plan has run.
	GeneratedCode string   `json:"generated_code,omitempty"`
	Dockerfile    string   `json:"dockerfile,omitempty"`
	DryRunLogs    []string `json:"dry_run_logs,omitempty"`
}

// NewID returns a short opaque identifier for a fresh IR.
func NewID() string {
	return uuid.NewString()[:8]
}

// New constructs a fresh IR in dry-run mode with default environment and
// implementation.
func New(intent Intent) *IntentIR {
	now := time.Now().UTC()
	return &IntentIR{
		ID:             NewID(),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		Intent:         intent,
		Environment:    DefaultEnvironment(),
		Implementation: DefaultImplementation(),
		ExecutionMode:  ModeDryRun,
	}
}

// RecordIteration appends one history entry and bumps the iteration counter.
// The entry sequence always equals the new counter value.
func (x *IntentIR) RecordIteration(changes map[string]string, source string) {
	x.IterationCount++
	x.UpdatedAt = time.Now().UTC()
	x.IterationHistory = append(x.IterationHistory, IterationRecord{
		Sequence:  x.IterationCount,
		Timestamp: x.UpdatedAt,
		Source:    source,
		Changes:   changes,
	})
}

// Approve passes the AMEN boundary: it marks the IR approved and switches it
// to transactional mode. This is the only mutator of those two fields, and it
// is idempotent. There is no transition back; re-entering dry-run requires a
// fresh IR.
func (x *IntentIR) Approve() {
	if x.AmenApproved && x.ExecutionMode == ModeTransactional {
		return
	}
	x.AmenApproved = true
	x.ExecutionMode = ModeTransactional
	x.UpdatedAt = time.Now().UTC()
}

// Encode renders the IR as an indented JSON document. The output round-trips
// through Decode without loss.
func (x *IntentIR) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode intent IR: %w", err)
	}
	return data, nil
}

// Decode parses a serialized IR document. It fails when the document is not
// valid JSON or when the required intent object is absent; all optional
// fields fall back to the parser's defaults so partial documents round-trip.
func Decode(data []byte) (*IntentIR, error) {
	var doc struct {
		ID               string            `json:"id"`
		Version          int               `json:"version"`
		CreatedAt        time.Time         `json:"created_at"`
		UpdatedAt        time.Time         `json:"updated_at"`
		Intent           *Intent           `json:"intent"`
		Environment      *Environment      `json:"environment"`
		Implementation   *Implementation   `json:"implementation"`
		ExecutionMode    string            `json:"execution_mode"`
		AmenApproved     bool              `json:"amen_approved"`
		IterationCount   int               `json:"iteration_count"`
		IterationHistory []IterationRecord `json:"iteration_history"`
		GeneratedCode    string            `json:"generated_code"`
		Dockerfile       string            `json:"dockerfile"`
		DryRunLogs       []string          `json:"dry_run_logs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode intent IR: %w", err)
	}
	if doc.Intent == nil {
		return nil, fmt.Errorf("intent IR document has no intent object")
	}

	out := &IntentIR{
		ID:               doc.ID,
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		Intent:           *doc.Intent,
		Environment:      DefaultEnvironment(),
		Implementation:   DefaultImplementation(),
		ExecutionMode:    ModeDryRun,
		AmenApproved:     doc.AmenApproved,
		IterationCount:   doc.IterationCount,
		IterationHistory: doc.IterationHistory,
		GeneratedCode:    doc.GeneratedCode,
		Dockerfile:       doc.Dockerfile,
		DryRunLogs:       doc.DryRunLogs,
	}
	if out.ID == "" {
		out.ID = NewID()
	}
	if out.Version == 0 {
		out.Version = 1
	}
	now := time.Now().UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = now
	}
	if doc.Environment != nil {
		out.Environment = *doc.Environment
		if out.Environment.Runtime == "" {
			out.Environment.Runtime = RuntimeDocker
		} else if _, err := ParseRuntimeType(string(out.Environment.Runtime)); err != nil {
			return nil, err
		}
		if out.Environment.BaseImage == "" {
			out.Environment.BaseImage = DefaultBaseImage
		}
	}
	if doc.Implementation != nil {
		out.Implementation = *doc.Implementation
		if out.Implementation.Language == "" {
			out.Implementation.Language = DefaultLanguage
		}
		for _, a := range out.Implementation.Actions {
			if _, err := ParseActionType(string(a.Type)); err != nil {
				return nil, err
			}
		}
	}
	if doc.ExecutionMode != "" {
		mode, err := ParseExecutionMode(doc.ExecutionMode)
		if err != nil {
			return nil, err
		}
		out.ExecutionMode = mode
	}
	return out, nil
}
