package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RecordUserFactsName is the name of the fact extraction tool.
const RecordUserFactsName = "record_user_facts"

// RecordUserFacts is the tool the fact extractor forces the model to call.
var RecordUserFacts = Definition{
	Name: RecordUserFactsName,
	Description: "Record personal facts the user states about themselves, such as name, " +
		"occupation, location, preferences or relationships. Use short snake_case keys. " +
		"Pass an empty object when the message contains no such facts.",
	InputSchema: WithThought(ObjectSchema(map[string]interface{}{
		"facts": StringMapProperty("Facts keyed by attribute, e.g. {\"name\": \"John\"}."),
	}, "facts"), false),
}

// DecodeFacts parses a record_user_facts input. Non-string values are
// rendered as JSON text; null values are dropped.
func DecodeFacts(input json.RawMessage) (map[string]string, error) {
	var payload struct {
		Facts map[string]json.RawMessage `json:"facts"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return nil, fmt.Errorf("decode %s input: %w", RecordUserFactsName, err)
	}

	facts := make(map[string]string, len(payload.Facts))
	for k, raw := range payload.Facts {
		v := strings.TrimSpace(string(raw))
		if v == "" || v == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			v = s
		}
		facts[k] = v
	}
	return facts, nil
}
