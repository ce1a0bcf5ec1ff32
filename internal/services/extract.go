package services

import (
  "encoding/json"
  "fmt"
  "strings"
)

// ExtractJSONObject parses a model's free-text output into out. The raw text
// is tried as-is first; when that fails, the substring between the first '{'
// and the last '}' is tried, which tolerates commentary or markdown fences
// around the object.
func ExtractJSONObject(raw string, out any) error {
  trimmed := strings.TrimSpace(raw)
  if trimmed == "" {
    return fmt.Errorf("empty model output")
  }

  directErr := json.Unmarshal([]byte(trimmed), out)
  if directErr == nil {
    return nil
  }

  start := strings.Index(trimmed, "{")
  end := strings.LastIndex(trimmed, "}")
  if start == -1 || end == -1 || end <= start {
    return fmt.Errorf("no JSON object found in model output: %w", directErr)
  }

  if err := json.Unmarshal([]byte(trimmed[start:end+1]), out); err != nil {
    return fmt.Errorf("failed to parse extracted JSON object: %w", err)
  }
  return nil
}

// ExtractJSONMap is ExtractJSONObject for callers that want the open-ended
// document shape used by profile data.
func ExtractJSONMap(raw string) (map[string]interface{}, error) {
  var data map[string]interface{}
  if err := ExtractJSONObject(raw, &data); err != nil {
    return nil, err
  }
  if data == nil {
    data = map[string]interface{}{}
  }
  return data, nil
}
