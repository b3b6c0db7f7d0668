// Copyright 2025 Kyungsuk Kim
//
// Helper functions for tool handlers

package server

import (
	"encoding/json"
	"fmt"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/automation"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/transport"
)

// maxDisplayTextLen is the maximum length for text shown in result summaries.
// Longer text is truncated with "..." suffix.
const maxDisplayTextLen = 50

// truncateText truncates text to maxDisplayTextLen characters with "..." suffix if needed.
func truncateText(s string) string {
	if len(s) > maxDisplayTextLen {
		return s[:maxDisplayTextLen] + "..."
	}
	return s
}

// textResult creates a ToolResult with a single text content.
// This reduces boilerplate for simple text responses.
func textResult(text string) *ToolResult {
	return &ToolResult{
		Content: []Content{{Type: "text", Text: text}},
	}
}

// toErrorObj maps an automation-layer failure to a JSON-RPC error object.
// The error category selects the code, and the structured fields travel in
// the data envelope so callers can branch on kind without parsing message
// text.
func toErrorObj(err error) *transport.ErrorObj {
	ae := automation.AsError(err)

	data := map[string]any{
		"type":    ae.Kind,
		"details": ae.Error(),
	}
	if ae.Field != "" {
		data["field"] = ae.Field
	}
	if ae.Value != nil {
		data["value"] = ae.Value
	}
	if ae.Partial != "" {
		data["partial_text"] = ae.Partial
	}

	encoded, _ := json.Marshal(data)
	return &transport.ErrorObj{
		Code:    errorCode(ae.Category),
		Message: ae.Error(),
		Data:    encoded,
	}
}

// errorCode maps an error category to its JSON-RPC code.
func errorCode(category automation.Category) int {
	switch category {
	case automation.CategoryValidation:
		return transport.ErrCodeInvalidParams
	case automation.CategoryTimeout:
		return transport.ErrCodeTimeout
	case automation.CategoryConfiguration:
		return transport.ErrCodeConfiguration
	case automation.CategoryBusy:
		return transport.ErrCodeBusy
	default:
		return transport.ErrCodeAutomation
	}
}

// validateToolInput validates decoded arguments against a tool's input
// schema. It checks:
//   - All required fields are present
//   - Field types match the schema (string, number, boolean, integer, array, object)
//   - Numeric bounds (minimum, maximum) and string bounds (minLength, maxLength)
//
// Returns a validation error carrying the offending field, or nil if
// validation passes. Extra properties not defined in the schema are allowed
// per JSON-RPC conventions.
func validateToolInput(toolName string, args map[string]any, schema map[string]any) *automation.Error {
	if schema == nil {
		return nil
	}

	for _, field := range getRequiredFields(schema) {
		if _, exists := args[field]; !exists {
			return automation.ValidationError(toolName, field, nil,
				fmt.Sprintf("missing required field: %s", field))
		}
	}

	properties := getSchemaProperties(schema)
	if properties == nil {
		return nil
	}

	for fieldName, value := range args {
		propSchema, exists := properties[fieldName]
		if !exists {
			// Extra property not in schema - allowed per JSON-RPC conventions
			continue
		}
		if err := validateFieldValue(fieldName, value, propSchema); err != nil {
			return automation.ValidationError(toolName, fieldName, value, err.Error())
		}
	}

	return nil
}

// getRequiredFields extracts the "required" array from a JSON schema.
func getRequiredFields(schema map[string]any) []string {
	required, ok := schema["required"]
	if !ok {
		return nil
	}

	requiredArr, ok := required.([]string)
	if ok {
		return requiredArr
	}

	// Handle case where required is []interface{} (from JSON unmarshaling)
	requiredIface, ok := required.([]any)
	if !ok {
		return nil
	}

	result := make([]string, 0, len(requiredIface))
	for _, v := range requiredIface {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// getSchemaProperties extracts the "properties" map from a JSON schema.
func getSchemaProperties(schema map[string]any) map[string]map[string]any {
	props, ok := schema["properties"]
	if !ok {
		return nil
	}

	propsMap, ok := props.(map[string]any)
	if !ok {
		return nil
	}

	result := make(map[string]map[string]any, len(propsMap))
	for k, v := range propsMap {
		if propSchema, ok := v.(map[string]any); ok {
			result[k] = propSchema
		}
	}
	return result
}

// validateFieldValue validates a single field value against its property schema.
// Returns an error if validation fails.
func validateFieldValue(fieldName string, value any, propSchema map[string]any) error {
	// Skip validation for nil/null values (unless required, which is checked above)
	if value == nil {
		return nil
	}

	schemaType, hasType := propSchema["type"].(string)
	if !hasType {
		return nil
	}

	if err := validateType(fieldName, value, schemaType); err != nil {
		return err
	}

	switch schemaType {
	case "string":
		return validateStringBounds(fieldName, value.(string), propSchema)
	case "number", "integer":
		return validateNumericBounds(fieldName, asFloat(value), propSchema)
	}
	return nil
}

// validateType validates that a value matches the expected JSON Schema type.
// JSON Schema types: string, number, integer, boolean, array, object
func validateType(fieldName string, value any, expectedType string) error {
	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q must be a string, got %T", fieldName, value)
		}
	case "number":
		// JSON numbers arrive as float64; integers are also valid numbers
		if !isNumber(value) {
			return fmt.Errorf("field %q must be a number, got %T", fieldName, value)
		}
	case "integer":
		// Integers must be whole numbers
		if !isInteger(value) {
			return fmt.Errorf("field %q must be an integer, got %T", fieldName, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean, got %T", fieldName, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("field %q must be an array, got %T", fieldName, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("field %q must be an object, got %T", fieldName, value)
		}
	default:
		// Unknown type - skip validation
	}
	return nil
}

// validateStringBounds enforces minLength/maxLength from the schema,
// measured in characters.
func validateStringBounds(fieldName, value string, propSchema map[string]any) error {
	n := len([]rune(value))
	if min, ok := schemaInt(propSchema, "minLength"); ok && n < min {
		return fmt.Errorf("field %q must be at least %d characters, got %d", fieldName, min, n)
	}
	if max, ok := schemaInt(propSchema, "maxLength"); ok && n > max {
		return fmt.Errorf("field %q must be at most %d characters, got %d", fieldName, max, n)
	}
	return nil
}

// validateNumericBounds enforces minimum/maximum from the schema.
func validateNumericBounds(fieldName string, value float64, propSchema map[string]any) error {
	if min, ok := schemaFloat(propSchema, "minimum"); ok && value < min {
		return fmt.Errorf("field %q must be at least %v, got %v", fieldName, min, value)
	}
	if max, ok := schemaFloat(propSchema, "maximum"); ok && value > max {
		return fmt.Errorf("field %q must be at most %v, got %v", fieldName, max, value)
	}
	return nil
}

// schemaInt reads an integer constraint from a property schema. The value
// may be an int (schema built in Go) or float64 (schema round-tripped
// through JSON).
func schemaInt(propSchema map[string]any, key string) (int, bool) {
	v, ok := propSchema[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// schemaFloat reads a numeric constraint from a property schema.
func schemaFloat(propSchema map[string]any, key string) (float64, bool) {
	v, ok := propSchema[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// asFloat converts a JSON numeric value to float64.
func asFloat(value any) float64 {
	switch n := value.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// isNumber returns true if the value is a valid JSON number (float64 or integer).
func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// isInteger returns true if the value is an integer (whole number).
// JSON unmarshaling to interface{} produces float64 for all numbers,
// so we need to check if the float64 is a whole number.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case float32:
		return v == float32(int32(v))
	default:
		return false
	}
}
