package agent

import (
	"strings"
	"testing"
)

func TestCatalogRegistersAllTools(t *testing.T) {
	catalog := NewCatalog()

	want := []string{
		ToolRegisterUser,
		ToolVerifyCode,
		ToolSendMoney,
		ToolCheckBalance,
		ToolGetTransactionHistory,
		ToolConfirmAction,
		ToolCancelAction,
	}

	specs := catalog.Specs()
	if len(specs) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(specs))
	}
	for i, name := range want {
		if specs[i].Name != name {
			t.Fatalf("expected tool %q at position %d, got %q", name, i, specs[i].Name)
		}
		if _, ok := catalog.Lookup(name); !ok {
			t.Fatalf("Lookup(%q) returned not found", name)
		}
	}
}

func TestCatalogValidateMissingRequired(t *testing.T) {
	catalog := NewCatalog()

	_, err := catalog.Validate(ToolCall{
		Name:      ToolVerifyCode,
		Arguments: map[string]any{"workflowId": "wf-1"},
	})
	if err == nil {
		t.Fatal("expected error for missing code argument")
	}
	if !strings.Contains(err.Error(), `"code"`) {
		t.Fatalf("expected error to name the missing argument, got %q", err.Error())
	}
}

func TestCatalogValidateUnknownArgument(t *testing.T) {
	catalog := NewCatalog()

	_, err := catalog.Validate(ToolCall{
		Name: ToolCheckBalance,
		Arguments: map[string]any{
			"currency": "USD",
		},
	})
	if err == nil {
		t.Fatal("expected error for undeclared argument")
	}
	if !strings.Contains(err.Error(), "currency") {
		t.Fatalf("expected error to name the unknown argument, got %q", err.Error())
	}
}

func TestCatalogValidateNumberCoercion(t *testing.T) {
	catalog := NewCatalog()

	for _, raw := range []any{float64(25), int(25), int64(25), "25"} {
		args, err := catalog.Validate(ToolCall{
			Name: ToolSendMoney,
			Arguments: map[string]any{
				"amount":    raw,
				"recipient": "alice",
			},
		})
		if err != nil {
			t.Fatalf("Validate with amount %T: %v", raw, err)
		}
		if got := args["amount"].(float64); got != 25 {
			t.Fatalf("expected amount 25, got %v", got)
		}
	}

	_, err := catalog.Validate(ToolCall{
		Name: ToolSendMoney,
		Arguments: map[string]any{
			"amount":    "lots",
			"recipient": "alice",
		},
	})
	if err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}

func TestCatalogValidateIsDeterministic(t *testing.T) {
	catalog := NewCatalog()
	call := ToolCall{
		Name: ToolVerifyCode,
		Arguments: map[string]any{
			"code":       "123456",
			"workflowId": "wf-7",
		},
	}

	first, err := catalog.Validate(call)
	if err != nil {
		t.Fatalf("first Validate: %v", err)
	}
	second, err := catalog.Validate(call)
	if err != nil {
		t.Fatalf("second Validate: %v", err)
	}
	if first["code"] != second["code"] || first["workflowId"] != second["workflowId"] {
		t.Fatalf("expected identical results, got %v and %v", first, second)
	}
}

func TestToolSpecJSONSchema(t *testing.T) {
	catalog := NewCatalog()
	spec, _ := catalog.Lookup(ToolSendMoney)

	schema := spec.JSONSchema()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}

	properties := schema["properties"].(map[string]any)
	amount := properties["amount"].(map[string]any)
	if amount["type"] != "number" {
		t.Fatalf("expected amount to be a number, got %v", amount["type"])
	}

	required := schema["required"].([]string)
	if len(required) != 2 {
		t.Fatalf("expected two required fields, got %v", required)
	}
}
