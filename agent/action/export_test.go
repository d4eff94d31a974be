package action

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestToolParamsExposeConfirmOnMutatingActions(t *testing.T) {
	t.Parallel()
	f := newFixture()

	tools := f.dispatcher.ToolParams()
	if len(tools) != len(f.dispatcher.Definitions()) {
		t.Fatalf("tools = %d, defs = %d", len(tools), len(f.dispatcher.Definitions()))
	}

	byName := map[string]map[string]any{}
	for _, tool := range tools {
		params := tool.Function.Parameters
		properties, _ := params["properties"].(map[string]any)
		byName[tool.Function.Name] = properties
	}

	if _, ok := byName["mail.send"]["confirm"]; !ok {
		t.Fatal("mail.send schema has no confirm property")
	}
	if _, ok := byName["records.query"]["confirm"]; ok {
		t.Fatal("read-only records.query schema exposes confirm")
	}

	to, ok := byName["mail.send"]["to"].(map[string]any)
	if !ok {
		t.Fatal("mail.send schema has no to property")
	}
	if to["type"] != "array" {
		t.Fatalf("to type = %v", to["type"])
	}
	items, _ := to["items"].(map[string]any)
	if items["type"] != "string" {
		t.Fatalf("to items = %v", to["items"])
	}
}

func TestToolParamsRequiredNeverNull(t *testing.T) {
	t.Parallel()
	f := newFixture()

	for _, tool := range f.dispatcher.ToolParams() {
		required, ok := tool.Function.Parameters["required"].([]string)
		if !ok || required == nil {
			t.Fatalf("%s: required = %v, want a non-nil string slice", tool.Function.Name, tool.Function.Parameters["required"])
		}
		// calendar.list_events has no required params; its schema must still
		// carry an empty array, not null.
		if tool.Function.Name == "calendar.list_events" {
			raw, err := json.Marshal(tool.Function.Parameters)
			if err != nil {
				t.Fatalf("marshal parameters: %v", err)
			}
			if strings.Contains(string(raw), `"required":null`) {
				t.Fatalf("calendar.list_events serializes required as null: %s", raw)
			}
			if !strings.Contains(string(raw), `"required":[]`) {
				t.Fatalf("calendar.list_events required not an empty array: %s", raw)
			}
		}
	}
}

func TestToolParamsCarryProviderEnum(t *testing.T) {
	t.Parallel()
	f := newFixture()

	for _, tool := range f.dispatcher.ToolParams() {
		if tool.Function.Name != "scheduling.build_link" {
			continue
		}
		properties := tool.Function.Parameters["properties"].(map[string]any)
		provider := properties["provider"].(map[string]any)
		enum, _ := provider["enum"].([]string)
		if len(enum) != 1 || enum[0] != "calendly" {
			t.Fatalf("provider enum = %v", enum)
		}
		return
	}
	t.Fatal("scheduling.build_link not exported")
}
