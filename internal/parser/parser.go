// Package parser converts DSL documents into the intermediate
// representation. A document has up to four top-level sections: INTENT
// (required), ENVIRONMENT, IMPLEMENTATION and EXECUTION. Unknown keys inside
// a section are ignored so older tools keep accepting newer documents.
//
// Example:
//
//	INTENT:
//	  name: my-api
//	  goal: Create REST API
//
//	ENVIRONMENT:
//	  runtime: docker
//	  base_image: python:3.12-slim
//
//	IMPLEMENTATION:
//	  language: python
//	  framework: fastapi
//	  actions:
//	    - api.expose GET /ping
//	    - api.expose POST /users
//
//	EXECUTION:
//	  mode: dry-run
package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/intent-iterative/intentctl/internal/ir"
)

// ParseError reports a document that could not be decoded at all.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Message
}

// ValidationError reports a decodable document with semantic problems. It
// carries every collected problem, never just the first one found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Result is a successful parse: the populated IR plus any non-fatal warnings
// collected along the way. Warnings are not stored on the IR; surfacing them
// is the caller's choice.
type Result struct {
	IR       *ir.IntentIR
	Warnings []string
}

// actionLine matches the single-line action grammar:
// <type> [<HTTP method>] <target> [<param tokens>].
var actionLine = regexp.MustCompile(
	`^([\w.]+)\s+(?:(GET|POST|PUT|DELETE|PATCH)\s+)?(\S+)(?:\s+(.+))?$`)

// frameworkLanguages lists frameworks that are only valid with one language
// tag. New pairs are added here, not in control flow.
var frameworkLanguages = map[string]string{
	"fastapi": "python",
	"express": "node",
}

type parser struct {
	errors   []string
	warnings []string
}

func (p *parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *parser) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// Parse decodes and validates a DSL document. It returns a ParseError when
// the text is not a well-formed document, a ValidationError carrying all
// fatal problems when it is well-formed but invalid, and otherwise a Result
// with a fresh IR in dry-run state (unless EXECUTION.mode says otherwise).
func Parse(content []byte) (*Result, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid document: %v", err)}
	}
	if len(doc) == 0 {
		return nil, &ParseError{Message: "empty DSL content"}
	}

	p := &parser{}
	out := ir.New(ir.Intent{})

	if raw, ok := doc["INTENT"]; ok {
		out.Intent = p.parseIntent(raw)
	} else {
		p.errorf("missing required section: INTENT")
	}
	if raw, ok := doc["ENVIRONMENT"]; ok {
		out.Environment = p.parseEnvironment(raw)
	}
	if raw, ok := doc["IMPLEMENTATION"]; ok {
		out.Implementation = p.parseImplementation(raw)
	}
	if raw, ok := doc["EXECUTION"]; ok {
		out.ExecutionMode = p.parseExecution(raw)
	}

	p.validate(out)

	if len(p.errors) > 0 {
		return nil, &ValidationError{Problems: p.errors}
	}
	return &Result{IR: out, Warnings: p.warnings}, nil
}

// ParseFile reads and parses a DSL document from disk.
func ParseFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read DSL file %q: %w", path, err)
	}
	return Parse(data)
}

func (p *parser) parseIntent(raw any) ir.Intent {
	m, ok := raw.(map[string]any)
	if !ok {
		p.errorf("INTENT must be a mapping")
		return ir.Intent{}
	}
	name := stringField(m, "name")
	goal := stringField(m, "goal")
	if name == "" {
		p.errorf("INTENT.name is required")
	}
	if goal == "" {
		p.errorf("INTENT.goal is required")
	}
	return ir.Intent{
		Name:        name,
		Goal:        goal,
		Description: stringField(m, "description"),
	}
}

func (p *parser) parseEnvironment(raw any) ir.Environment {
	env := ir.DefaultEnvironment()
	m, ok := raw.(map[string]any)
	if !ok {
		p.errorf("ENVIRONMENT must be a mapping")
		return env
	}
	if s := stringField(m, "runtime"); s != "" {
		runtime, err := ir.ParseRuntimeType(s)
		if err != nil {
			p.warnf("unknown runtime %q, defaulting to %s", s, ir.RuntimeDocker)
		} else {
			env.Runtime = runtime
		}
	}
	if s := stringField(m, "base_image"); s != "" {
		env.BaseImage = s
	}
	env.Services = stringSlice(m, "services")
	env.Ports = intSlice(m, "ports")
	env.Volumes = stringSlice(m, "volumes")
	env.EnvVars = stringMap(m, "env_vars")
	return env
}

func (p *parser) parseImplementation(raw any) ir.Implementation {
	impl := ir.DefaultImplementation()
	m, ok := raw.(map[string]any)
	if !ok {
		p.errorf("IMPLEMENTATION must be a mapping")
		return impl
	}
	if s := stringField(m, "language"); s != "" {
		impl.Language = s
	}
	impl.Framework = stringField(m, "framework")

	entries, _ := m["actions"].([]any)
	for _, entry := range entries {
		if action, ok := p.parseActionEntry(entry); ok {
			impl.Actions = append(impl.Actions, action)
		}
	}
	return impl
}

// parseActionEntry accepts either a structured mapping or a single-line
// action string. Invalid entries are collected as fatal errors and skipped.
func (p *parser) parseActionEntry(entry any) (ir.Action, bool) {
	if m, ok := entry.(map[string]any); ok {
		actionType, err := ir.ParseActionType(stringField(m, "type"))
		if err != nil {
			p.errorf("invalid action type: %v", err)
			return ir.Action{}, false
		}
		return ir.Action{
			Type:   actionType,
			Method: stringField(m, "method"),
			Target: stringField(m, "target"),
			Params: paramMap(m, "params"),
		}, true
	}

	line, ok := entry.(string)
	if !ok {
		p.errorf("invalid action format: %v", entry)
		return ir.Action{}, false
	}
	action, err := ParseActionLine(line)
	if err != nil {
		p.errors = append(p.errors, err.Error())
		return ir.Action{}, false
	}
	return action, true
}

// ParseActionLine parses the single-line action grammar. Trailing tokens
// become params: key=value pairs keep the literal value, bare tokens become
// boolean-true flags.
func ParseActionLine(line string) (ir.Action, error) {
	m := actionLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return ir.Action{}, fmt.Errorf("invalid action format: %q", line)
	}
	actionType, err := ir.ParseActionType(m[1])
	if err != nil {
		return ir.Action{}, err
	}
	action := ir.Action{Type: actionType, Method: m[2], Target: m[3]}
	if m[4] != "" {
		action.Params = make(map[string]ir.ParamValue)
		for _, token := range strings.Fields(m[4]) {
			if key, value, found := strings.Cut(token, "="); found {
				action.Params[key] = ir.StringParam(value)
			} else {
				action.Params[token] = ir.FlagParam(true)
			}
		}
	}
	return action, nil
}

func (p *parser) parseExecution(raw any) ir.ExecutionMode {
	m, ok := raw.(map[string]any)
	if !ok {
		p.errorf("EXECUTION must be a mapping")
		return ir.ModeDryRun
	}
	s := stringField(m, "mode")
	if s == "" {
		return ir.ModeDryRun
	}
	mode, err := ir.ParseExecutionMode(s)
	if err != nil {
		p.warnf("unknown execution mode %q, defaulting to %s", s, ir.ModeDryRun)
		return ir.ModeDryRun
	}
	return mode
}

// validate runs post-parse semantic checks over the assembled IR.
func (p *parser) validate(x *ir.IntentIR) {
	for _, action := range x.Implementation.Actions {
		if action.Type != ir.ActionShellExec {
			continue
		}
		for key, value := range action.Params {
			if strings.Contains(strings.ToLower(key), "root") ||
				strings.Contains(strings.ToLower(value.String()), "root") {
				p.warnf("action %q may run as root - review carefully", action.Target)
				break
			}
		}
	}

	framework := x.Implementation.Framework
	if framework == "" {
		return
	}
	if required, ok := frameworkLanguages[framework]; ok && x.Implementation.Language != required {
		p.errorf("framework %q requires language %q", framework, required)
	}
}

// stringField returns a section value coerced to string; non-string scalars
// are rendered, everything else maps to "".
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, int, int64, float64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func stringSlice(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func intSlice(m map[string]any, key string) []int {
	raw, _ := m[key].([]any)
	if len(raw) == 0 {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if n, ok := v.(int); ok {
			out = append(out, n)
		}
	}
	return out
}

func stringMap(m map[string]any, key string) map[string]string {
	raw, _ := m[key].(map[string]any)
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func paramMap(m map[string]any, key string) map[string]ir.ParamValue {
	raw, _ := m[key].(map[string]any)
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]ir.ParamValue, len(raw))
	for k, v := range raw {
		if b, ok := v.(bool); ok {
			out[k] = ir.FlagParam(b)
			continue
		}
		out[k] = ir.StringParam(fmt.Sprint(v))
	}
	return out
}
