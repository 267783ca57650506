// Package tools builds the JSON Schema tool definitions sent to the model.
package tools

// Definition describes one tool the model may call.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Properties returns the top-level properties of the input schema.
func (d Definition) Properties() map[string]interface{} {
	props, _ := d.InputSchema["properties"].(map[string]interface{})
	return props
}

// Required returns the required property names of the input schema.
func (d Definition) Required() []string {
	required, _ := d.InputSchema["required"].([]string)
	return required
}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// StringMapProperty creates an object property whose values are all strings
// and whose keys are free-form.
func StringMapProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"description":          description,
		"additionalProperties": map[string]interface{}{"type": "string"},
	}
}

// WithThought adds a thought parameter to an existing schema.
// If requireThought is true, "thought" is added to the required array.
func WithThought(schema map[string]interface{}, requireThought bool) map[string]interface{} {
	result := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		result[k] = v
	}

	props := make(map[string]interface{})
	if existing, ok := result["properties"].(map[string]interface{}); ok {
		for k, v := range existing {
			props[k] = v
		}
	}
	props["thought"] = StringProperty("Your reasoning about what you are recording and why.")
	result["properties"] = props

	if requireThought {
		required, _ := result["required"].([]string)
		result["required"] = append(append([]string(nil), required...), "thought")
	}
	return result
}
