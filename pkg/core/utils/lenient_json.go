package utils

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// RepairJSON fixes structurally broken JSON (unclosed objects, trailing commas,
// truncated strings) using github.com/RealAlexandreAI/json-repair.
func RepairJSON(malformedJSON string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformedJSON)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human-friendly JSON (comments, unquoted keys, optional
// commas) and returns the equivalent standard JSON.
func ParseHJSON(hjsonData string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(hjsonData), &result); err != nil {
		return "", fmt.Errorf("hjson parse failed: %w", err)
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("hjson re-encode failed: %w", err)
	}
	return string(jsonBytes), nil
}

// DecodeLenient unmarshals data into v, falling back to a repaired copy when
// the input is malformed. repaired reports whether the fallback was needed.
func DecodeLenient(data []byte, v interface{}) (repaired bool, err error) {
	strictErr := json.Unmarshal(data, v)
	if strictErr == nil {
		return false, nil
	}

	fixed, err := RepairJSON(string(data))
	if err != nil {
		return false, fmt.Errorf("decode: %v; %w", strictErr, err)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return false, fmt.Errorf("decode repaired json: %w", err)
	}
	return true, nil
}
