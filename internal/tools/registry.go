package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/deskmail/deskmail/internal/storage"
)

// Tool represents a callable tool/function
type Tool interface {
	// Name returns the tool's unique identifier
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the JSON schema for the tool's parameters
	Parameters() map[string]interface{}

	// Execute runs the tool with the given arguments and returns the text
	// shown to the assistant
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// AuditLog records tool invocations.
type AuditLog interface {
	SaveToolCall(ctx context.Context, call *storage.ToolCall) error
}

// Registry manages available tools
type Registry struct {
	tools     map[string]Tool
	audit     AuditLog
	sessionID string
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// NewRegistry creates a new tool registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With().Str("component", "tools").Logger(),
	}
}

// SetAudit writes every call made through Call to audit, tagged with
// sessionID.
func (r *Registry) SetAudit(audit AuditLog, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = audit
	r.sessionID = sessionID
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[tool.Name()] = tool
	r.logger.Debug().Str("tool", tool.Name()).Msg("Registered tool")
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// GetAll returns all registered tools ordered by name
func (r *Registry) GetAll() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// GetByNames returns tools matching the given names
func (r *Registry) GetByNames(names []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tools []Tool
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// Execute runs a tool by name with the given arguments
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	r.logger.Debug().
		Str("tool", name).
		RawJSON("args", orEmpty(args)).
		Msg("Executing tool")

	result, err := tool.Execute(ctx, args)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("tool", name).
			Msg("Tool execution failed")
		return "", err
	}

	r.logger.Debug().
		Str("tool", name).
		Msg("Tool execution completed")

	return result, nil
}

// Call is the total form of Execute: failures are rendered as a string
// starting with "Error:". Calls are written to the audit log when one is
// configured.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) string {
	start := time.Now()
	result, err := r.Execute(ctx, name, args)
	text := result
	if err != nil {
		text = ErrorText(err)
	}
	r.record(ctx, name, args, text, err, start)
	return text
}

func (r *Registry) record(ctx context.Context, name string, args json.RawMessage, result string, callErr error, start time.Time) {
	r.mu.RLock()
	audit, sessionID := r.audit, r.sessionID
	r.mu.RUnlock()
	if audit == nil {
		return
	}

	call := &storage.ToolCall{
		SessionID: sessionID,
		ToolName:  name,
		Arguments: orEmpty(args),
		Result:    result,
		Duration:  time.Since(start).Milliseconds(),
		CalledAt:  start,
	}
	if callErr != nil {
		call.Error = callErr.Error()
	}
	if err := audit.SaveToolCall(ctx, call); err != nil {
		r.logger.Warn().Err(err).Str("tool", name).Msg("Failed to record tool call")
	}
}

// ToOpenAITools converts registry tools to OpenAI function definitions
func (r *Registry) ToOpenAITools(names []string) []openai.Tool {
	var tools []Tool
	if len(names) == 0 {
		tools = r.GetAll()
	} else {
		tools = r.GetByNames(names)
	}

	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		}
	}
	return result
}

func orEmpty(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	return args
}
