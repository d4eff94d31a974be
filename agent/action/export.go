package action

import (
	"sort"

	"github.com/openai/openai-go"
)

// ToolParams renders the catalogue as OpenAI function-calling tool
// definitions, so the calling agent sees the same surface the dispatcher
// enforces. Mutating actions expose their confirm flag explicitly.
func (d *Dispatcher) ToolParams() []openai.ChatCompletionToolParam {
	defs := d.Definitions()
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))

	for _, def := range defs {
		properties := map[string]any{}
		// Strict schema consumers reject "required": null, so start from an
		// empty list rather than a nil slice.
		required := []string{}

		names := make([]string, 0, len(def.Params))
		for name := range def.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			p := def.Params[name]
			prop := map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Type == "array" && p.Items != "" {
				prop["items"] = map[string]any{"type": p.Items}
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			properties[name] = prop
			if p.Required {
				required = append(required, name)
			}
		}

		if def.RequiresConfirmation {
			properties["confirm"] = map[string]any{
				"type":        "boolean",
				"description": "Must be exactly true to execute. Omit until a human has approved this call.",
			}
		}

		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return tools
}
