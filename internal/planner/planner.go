// Package planner performs dry-run simulation of an intent: it generates
// application source and a Dockerfile, simulates each action as log lines,
// and estimates resources, all without touching the filesystem, the network
// or any process. The generated artifacts are written back onto the IR so a
// later execution uses exactly what the dry run produced.
package planner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/intent-iterative/intentctl/internal/ir"
)

const internalPort = 8000

// Result is the outcome of a dry-run simulation.
type Result struct {
	Success            bool
	Logs               []string
	GeneratedCode      string
	Dockerfile         string
	Warnings           []string
	EstimatedResources map[string]string
}

// Planner simulates intent execution and generates artifacts. The zero
// value is not usable; construct with New.
type Planner struct {
	clock func() time.Time
}

// New returns a Planner using the wall clock for log timestamps.
func New() *Planner {
	return &Planner{clock: time.Now}
}

type generatorKey struct {
	language  string
	framework string
}

type generatorFunc func(*ir.IntentIR) string

// generators maps (language, framework) to a code generator. An empty
// framework key is the language's fallback generator.
var generators = map[generatorKey]generatorFunc{
	{"python", "fastapi"}: generateFastAPI,
	{"python", "flask"}:   generateFlask,
	{"python", ""}:        generateBasicPython,
	{"node", "express"}:   generateExpress,
	{"node", ""}:          generateBasicNode,
}

// heavierFrameworks bump the memory estimate above the language baseline.
var heavierFrameworks = map[string]bool{
	"fastapi": true,
	"django":  true,
}

var baseMemory = map[string]string{
	"python": "256MB",
	"node":   "128MB",
}

// DryRun simulates executing the intent. It never returns an error: unknown
// languages degrade to a placeholder script and every problem surfaces as a
// warning. The generated code, Dockerfile and logs are stored back on x.
func (p *Planner) DryRun(x *ir.IntentIR) *Result {
	result := &Result{Success: true}

	p.addLog(result, fmt.Sprintf("Starting dry-run for intent: %s", x.Intent.Name))
	p.addLog(result, fmt.Sprintf("Goal: %s", x.Intent.Goal))

	lang := x.Implementation.Language
	gen, ok := generators[generatorKey{lang, x.Implementation.Framework}]
	if !ok {
		gen, ok = generators[generatorKey{lang, ""}]
	}
	if ok {
		p.addLog(result, fmt.Sprintf("Generating %s code...", lang))
		result.GeneratedCode = gen(x)
		p.addLog(result, fmt.Sprintf("Generated %d bytes of code", len(result.GeneratedCode)))
	} else {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no code generator for language: %s", lang))
		result.GeneratedCode = generatePlaceholder(x)
	}

	if x.Environment.Runtime == ir.RuntimeDocker {
		p.addLog(result, "Generating Dockerfile...")
		result.Dockerfile = generateDockerfile(x)
		p.addLog(result, "Dockerfile generated")
	}

	p.addLog(result, "Simulating actions...")
	for _, action := range x.Implementation.Actions {
		p.simulateAction(action, result)
	}

	result.EstimatedResources = estimateResources(x)
	p.addLog(result, fmt.Sprintf("Estimated memory: %s", result.EstimatedResources["memory"]))
	p.addLog(result, fmt.Sprintf("Estimated CPU: %s", result.EstimatedResources["cpu"]))

	p.addLog(result, "Dry-run completed successfully")

	x.DryRunLogs = result.Logs
	x.GeneratedCode = result.GeneratedCode
	x.Dockerfile = result.Dockerfile

	return result
}

func (p *Planner) addLog(result *Result, message string) {
	result.Logs = append(result.Logs,
		fmt.Sprintf("[%s] %s", p.clock().Format("15:04:05"), message))
}

func (p *Planner) simulateAction(action ir.Action, result *Result) {
	p.addLog(result, fmt.Sprintf("  -> Simulating: %s", describeAction(action)))

	switch action.Type {
	case ir.ActionAPIExpose:
		p.addLog(result, fmt.Sprintf("    ok: would expose endpoint: %s %s", action.Method, action.Target))
	case ir.ActionDBCreate:
		p.addLog(result, fmt.Sprintf("    ok: would create table: %s", action.Target))
	case ir.ActionDBAddColumn:
		p.addLog(result, fmt.Sprintf("    ok: would add column to: %s", action.Target))
	case ir.ActionShellExec:
		p.addLog(result, fmt.Sprintf("    warn: would execute shell command: %s", action.Target))
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("shell execution planned: %s", action.Target))
	case ir.ActionRESTCall:
		p.addLog(result, fmt.Sprintf("    ok: would call: %s %s", action.Method, action.Target))
	case ir.ActionFileCreate:
		p.addLog(result, fmt.Sprintf("    ok: would create file: %s", action.Target))
	}
}

func describeAction(action ir.Action) string {
	parts := []string{string(action.Type)}
	if action.Method != "" {
		parts = append(parts, action.Method)
	}
	if action.Target != "" {
		parts = append(parts, action.Target)
	}
	return strings.Join(parts, " ")
}

var nonIdent = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// handlerName derives a deterministic function name from an endpoint path.
func handlerName(endpoint string) string {
	name := strings.Trim(nonIdent.ReplaceAllString(endpoint, "_"), "_")
	if name == "" {
		return "root"
	}
	return name
}

func generateFastAPI(x *ir.IntentIR) string {
	var b strings.Builder
	b.WriteString("from fastapi import FastAPI, HTTPException\n")
	b.WriteString("from pydantic import BaseModel\n")
	b.WriteString("from typing import Optional, List\n")
	b.WriteString("import uvicorn\n\n")
	fmt.Fprintf(&b, "app = FastAPI(title=%q, description=%q)\n\n", x.Intent.Name, x.Intent.Goal)

	for _, action := range x.Implementation.Actions {
		if action.Type != ir.ActionAPIExpose {
			continue
		}
		method, endpoint := endpointOf(action)
		fmt.Fprintf(&b, "@app.%s(%q)\n", strings.ToLower(method), endpoint)
		fmt.Fprintf(&b, "async def %s():\n", handlerName(endpoint))
		fmt.Fprintf(&b, "    \"\"\"Auto-generated endpoint for %s\"\"\"\n", endpoint)
		fmt.Fprintf(&b, "    return {\"status\": \"ok\", \"endpoint\": %q, \"method\": %q}\n\n",
			endpoint, method)
	}

	b.WriteString("\nif __name__ == \"__main__\":\n")
	fmt.Fprintf(&b, "    uvicorn.run(app, host=\"0.0.0.0\", port=%d)\n", internalPort)
	return b.String()
}

func generateFlask(x *ir.IntentIR) string {
	var b strings.Builder
	b.WriteString("from flask import Flask, jsonify, request\n\n")
	b.WriteString("app = Flask(__name__)\n\n")

	for _, action := range x.Implementation.Actions {
		if action.Type != ir.ActionAPIExpose {
			continue
		}
		method, endpoint := endpointOf(action)
		fmt.Fprintf(&b, "@app.route(%q, methods=[%q])\n", endpoint, method)
		fmt.Fprintf(&b, "def %s():\n", handlerName(endpoint))
		fmt.Fprintf(&b, "    return jsonify({\"status\": \"ok\", \"endpoint\": %q})\n\n", endpoint)
	}

	b.WriteString("if __name__ == \"__main__\":\n")
	fmt.Fprintf(&b, "    app.run(host=\"0.0.0.0\", port=%d)\n", internalPort)
	return b.String()
}

func generateBasicPython(x *ir.IntentIR) string {
	var b strings.Builder
	b.WriteString("#!/usr/bin/env python3\n")
	fmt.Fprintf(&b, "\"\"\"\nAuto-generated script for: %s\nGoal: %s\n\"\"\"\n\n",
		x.Intent.Name, x.Intent.Goal)
	b.WriteString("def main():\n")
	fmt.Fprintf(&b, "    print(\"Intent: %s\")\n", x.Intent.Name)
	fmt.Fprintf(&b, "    print(\"Goal: %s\")\n", x.Intent.Goal)
	b.WriteString("\nif __name__ == \"__main__\":\n    main()\n")
	return b.String()
}

func generateExpress(x *ir.IntentIR) string {
	var b strings.Builder
	b.WriteString("const express = require('express');\n")
	b.WriteString("const app = express();\n\n")
	b.WriteString("app.use(express.json());\n\n")

	for _, action := range x.Implementation.Actions {
		if action.Type != ir.ActionAPIExpose {
			continue
		}
		method, endpoint := endpointOf(action)
		fmt.Fprintf(&b, "app.%s('%s', (req, res) => {\n", strings.ToLower(method), endpoint)
		fmt.Fprintf(&b, "    res.json({ status: 'ok', endpoint: '%s', method: '%s' });\n",
			endpoint, method)
		b.WriteString("});\n\n")
	}

	fmt.Fprintf(&b, "const PORT = process.env.PORT || %d;\n", internalPort)
	b.WriteString("app.listen(PORT, () => {\n")
	fmt.Fprintf(&b, "    console.log(`%s running on port ${PORT}`);\n", x.Intent.Name)
	b.WriteString("});\n")
	return b.String()
}

func generateBasicNode(x *ir.IntentIR) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Auto-generated script for: %s\n// Goal: %s\n\n",
		x.Intent.Name, x.Intent.Goal)
	fmt.Fprintf(&b, "console.log(\"Intent: %s\");\n", x.Intent.Name)
	fmt.Fprintf(&b, "console.log(\"Goal: %s\");\n", x.Intent.Goal)
	return b.String()
}

// generatePlaceholder handles languages without a generator: a shell script
// that echoes the intent and lists each action as unimplemented.
func generatePlaceholder(x *ir.IntentIR) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Auto-generated placeholder for: %s\n# Goal: %s\n\n",
		x.Intent.Name, x.Intent.Goal)
	fmt.Fprintf(&b, "echo \"Intent: %s\"\n", x.Intent.Name)
	fmt.Fprintf(&b, "echo \"Goal: %s\"\n", x.Intent.Goal)
	for _, action := range x.Implementation.Actions {
		fmt.Fprintf(&b, "echo \"unimplemented action: %s\"\n", describeAction(action))
	}
	return b.String()
}

func endpointOf(action ir.Action) (method, endpoint string) {
	method = action.Method
	if method == "" {
		method = "GET"
	}
	endpoint = action.Target
	if endpoint == "" {
		endpoint = "/"
	}
	return method, endpoint
}

func generateDockerfile(x *ir.IntentIR) string {
	lines := []string{
		fmt.Sprintf("# Auto-generated Dockerfile for: %s", x.Intent.Name),
		fmt.Sprintf("FROM %s", x.Environment.BaseImage),
		"",
		"WORKDIR /app",
		"",
	}

	switch x.Implementation.Language {
	case "python":
		deps := pythonDeps(x.Implementation.Framework)
		if len(deps) > 0 {
			lines = append(lines,
				fmt.Sprintf("RUN pip install --no-cache-dir %s", strings.Join(deps, " ")),
				"")
		}
		lines = append(lines,
			"COPY app.py .",
			"")
		lines = append(lines, exposeLines(x.Environment.Ports)...)
		lines = append(lines,
			"",
			`CMD ["python", "app.py"]`)
	case "node":
		lines = append(lines,
			"COPY package*.json ./",
			"RUN npm install",
			"",
			"COPY . .",
			"")
		lines = append(lines, exposeLines(x.Environment.Ports)...)
		lines = append(lines,
			"",
			`CMD ["node", "app.js"]`)
	default:
		lines = append(lines,
			"COPY app.txt .",
			"")
		lines = append(lines, exposeLines(x.Environment.Ports)...)
		lines = append(lines,
			"",
			`CMD ["cat", "app.txt"]`)
	}

	return strings.Join(lines, "\n")
}

func pythonDeps(framework string) []string {
	var deps []string
	if framework == "fastapi" {
		deps = append(deps, "uvicorn")
	}
	if framework != "" {
		deps = append(deps, framework)
	}
	return deps
}

// exposeLines emits one EXPOSE per unique port, the internal default first.
func exposeLines(ports []int) []string {
	lines := []string{fmt.Sprintf("EXPOSE %d", internalPort)}
	seen := map[int]bool{internalPort: true}
	for _, port := range ports {
		if seen[port] {
			continue
		}
		seen[port] = true
		lines = append(lines, fmt.Sprintf("EXPOSE %d", port))
	}
	return lines
}

func estimateResources(x *ir.IntentIR) map[string]string {
	memory, ok := baseMemory[x.Implementation.Language]
	if !ok {
		memory = "256MB"
	}
	if heavierFrameworks[x.Implementation.Framework] {
		memory = "512MB"
	}
	return map[string]string{
		"memory":                 memory,
		"cpu":                    "0.5",
		"estimated_build_time":   "30s",
		"estimated_startup_time": "5s",
	}
}
