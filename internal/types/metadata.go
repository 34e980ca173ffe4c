package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a map of key-value pairs attached to domain entities
// and carried end-to-end on provider payment requests
type Metadata map[string]string

// Value implements driver.Valuer, storing metadata as JSONB
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}
}
