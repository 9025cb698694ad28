package core

import (
	"encoding/json"
	"fmt"
)

// Binder deserializes raw event payloads into a Go value.
// Implement this interface for payload formats other than JSON.
type Binder interface {
	Bind(data []byte, v any) error
}

// JSONBinder deserializes JSON event payloads.
type JSONBinder struct{}

func (JSONBinder) Bind(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}
