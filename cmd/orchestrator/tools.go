package main

import (
	"github.com/xela07ax/spaceai-orchestrator/internal/connectors"
	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
)

// Каталог инструментов агента. Все они исполняются через коннектор;
// чувствительные дополнительно перехватывает approval.Gate.
var catalog = []struct {
	name        string
	description string
	schema      string
}{
	{"web_search", "Search the web and return top results", `{
		"type": "object",
		"required": ["query"],
		"properties": {"query": {"type": "string", "minLength": 1}}
	}`},
	{"send_email", "Send an email on behalf of the user", `{
		"type": "object",
		"required": ["to", "subject"],
		"properties": {
			"to": {"type": "string", "minLength": 3},
			"subject": {"type": "string"},
			"body": {"type": "string"}
		}
	}`},
	{"send_message", "Post a message to a chat channel", `{
		"type": "object",
		"required": ["to", "text"],
		"properties": {"to": {"type": "string"}, "text": {"type": "string"}}
	}`},
	{"create_payment_link", "Create a payment link for an amount", `{
		"type": "object",
		"required": ["amount", "currency"],
		"properties": {
			"amount": {"type": "number", "exclusiveMinimum": 0},
			"currency": {"type": "string", "minLength": 3, "maxLength": 3}
		}
	}`},
	{"write_file", "Write content to a file in the agent workspace", `{
		"type": "object",
		"required": ["path", "content"],
		"properties": {"path": {"type": "string", "minLength": 1}, "content": {"type": "string"}}
	}`},
	{"execute_command", "Run a shell command in the sandbox", `{
		"type": "object",
		"required": ["command"],
		"properties": {"command": {"type": "string", "minLength": 1}}
	}`},
}

func registerTools(reg *tools.Registry, caller connectors.Caller) {
	for _, t := range catalog {
		reg.Register(t.name, connectors.ToolHandler(caller, t.name), t.description, tools.WithSchema(t.schema))
	}
}
