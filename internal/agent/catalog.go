package agent

import (
	"fmt"
	"sort"
	"strconv"
)

// Tool names understood by the gateway. Each maps to exactly one backend
// operation.
const (
	ToolRegisterUser          = "registerUser"
	ToolVerifyCode            = "verifyCode"
	ToolSendMoney             = "sendMoney"
	ToolCheckBalance          = "checkBalance"
	ToolGetTransactionHistory = "getTransactionHistory"
	ToolConfirmAction         = "confirmAction"
	ToolCancelAction          = "cancelAction"
)

// FieldType is the primitive type of a tool argument.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
)

// FieldSpec declares one named tool argument.
type FieldSpec struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
}

// ToolSpec declares a callable operation: its description and argument schema.
type ToolSpec struct {
	Name        string
	Description string
	Fields      []FieldSpec
}

// JSONSchema renders the argument schema as a JSON-schema object suitable for
// passing to a model provider's tool configuration.
func (s ToolSpec) JSONSchema() map[string]any {
	properties := map[string]any{}
	required := []string{}
	for _, f := range s.Fields {
		properties[f.Name] = map[string]any{
			"type":        string(f.Type),
			"description": f.Description,
		}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Catalog is the read-only registry of tools offered to the model.
type Catalog struct {
	specs map[string]ToolSpec
	order []string
}

// NewCatalog builds the default registry covering the backend operation
// contract.
func NewCatalog() *Catalog {
	c := &Catalog{specs: map[string]ToolSpec{}}
	for _, spec := range []ToolSpec{
		{
			Name:        ToolRegisterUser,
			Description: "Register the current user for a payment account. Starts a registration workflow and sends a verification code.",
		},
		{
			Name:        ToolVerifyCode,
			Description: "Submit the verification code the user received during registration.",
			Fields: []FieldSpec{
				{Name: "code", Type: FieldString, Description: "The verification code the user received", Required: true},
				{Name: "workflowId", Type: FieldString, Description: "The registration workflow id", Required: true},
			},
		},
		{
			Name:        ToolSendMoney,
			Description: "Start a money transfer to a recipient. The user must confirm before funds move.",
			Fields: []FieldSpec{
				{Name: "amount", Type: FieldNumber, Description: "Amount to send in USD", Required: true},
				{Name: "recipient", Type: FieldString, Description: "Name or address of the recipient", Required: true},
			},
		},
		{
			Name:        ToolCheckBalance,
			Description: "Look up the user's current wallet balance.",
		},
		{
			Name:        ToolGetTransactionHistory,
			Description: "Fetch the user's most recent transactions.",
			Fields: []FieldSpec{
				{Name: "limit", Type: FieldNumber, Description: "Maximum number of transactions to return", Required: false},
			},
		},
		{
			Name:        ToolConfirmAction,
			Description: "Confirm the user's pending payment. Only valid while a payment is awaiting confirmation.",
			Fields: []FieldSpec{
				{Name: "workflowId", Type: FieldString, Description: "Workflow id to confirm; defaults to the user's pending workflow", Required: false},
			},
		},
		{
			Name:        ToolCancelAction,
			Description: "Cancel the user's pending payment. Only valid while a payment is awaiting confirmation.",
			Fields: []FieldSpec{
				{Name: "workflowId", Type: FieldString, Description: "Workflow id to cancel; defaults to the user's pending workflow", Required: false},
			},
		},
	} {
		c.specs[spec.Name] = spec
		c.order = append(c.order, spec.Name)
	}
	return c
}

// Lookup returns the spec for a tool name.
func (c *Catalog) Lookup(name string) (ToolSpec, bool) {
	spec, ok := c.specs[name]
	return spec, ok
}

// Specs returns all registered tools in registration order.
func (c *Catalog) Specs() []ToolSpec {
	out := make([]ToolSpec, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.specs[name])
	}
	return out
}

// Validate checks a tool call's arguments against the schema for its name.
// It returns the validated arguments with numbers normalized to float64, or
// an error describing the first violation. Validation is deterministic: the
// same call always yields the same outcome.
func (c *Catalog) Validate(call ToolCall) (map[string]any, error) {
	spec, ok := c.specs[call.Name]
	if !ok {
		return nil, fmt.Errorf("agent: unknown tool %q", call.Name)
	}

	fields := map[string]FieldSpec{}
	for _, f := range spec.Fields {
		fields[f.Name] = f
	}

	validated := map[string]any{}
	for _, f := range spec.Fields {
		raw, present := call.Arguments[f.Name]
		if !present || raw == nil {
			if f.Required {
				return nil, fmt.Errorf("agent: tool %s missing required argument %q", call.Name, f.Name)
			}
			continue
		}
		value, err := coerceField(f, raw)
		if err != nil {
			return nil, fmt.Errorf("agent: tool %s argument %q: %w", call.Name, f.Name, err)
		}
		validated[f.Name] = value
	}

	// Reject arguments the schema does not declare, reported in a stable order.
	var unknown []string
	for name := range call.Arguments {
		if _, ok := fields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("agent: tool %s does not accept argument %q", call.Name, unknown[0])
	}

	return validated, nil
}

func coerceField(f FieldSpec, raw any) (any, error) {
	switch f.Type {
	case FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		if s == "" {
			if f.Required {
				return nil, fmt.Errorf("must not be empty")
			}
			return s, nil
		}
		return s, nil
	case FieldNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			// Models occasionally quote numeric arguments.
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", v)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
	default:
		return nil, fmt.Errorf("unsupported field type %q", f.Type)
	}
}
