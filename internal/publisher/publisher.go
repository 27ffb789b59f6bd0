// Package publisher holds helpers shared by the notification publishers.
package publisher

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Attributed payloads contribute message attributes.
type Attributed interface {
	Attributes() map[string]string
}

// Encode marshals payload to JSON and collects its attributes.
func Encode(payload any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	attrs := make(map[string]string)
	if a, ok := payload.(Attributed); ok {
		maps.Copy(attrs, a.Attributes())
	}
	return data, attrs, nil
}
