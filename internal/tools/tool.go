package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// handler is the body of a mailbox tool.
type handler func(ctx context.Context, args json.RawMessage) (string, error)

// mailboxTool adapts a handler to the Tool interface.
type mailboxTool struct {
	name        string
	description string
	parameters  map[string]interface{}
	run         handler
}

func (t *mailboxTool) Name() string { return t.name }

func (t *mailboxTool) Description() string { return t.description }

func (t *mailboxTool) Parameters() map[string]interface{} { return t.parameters }

func (t *mailboxTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.run(ctx, args)
}

// ErrorText renders err the way every tool reports failure.
func ErrorText(err error) string {
	return "Error: " + err.Error()
}

// decode unmarshals tool arguments into v. Empty arguments leave v unchanged.
func decode(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// indent marshals v with two-space indentation.
func indent(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}

// intOr returns *p, or def when the argument was omitted.
func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func object(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringParam(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func intParam(description string, def int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
		"default":     def,
	}
}
