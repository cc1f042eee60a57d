package store

import (
	"encoding/json"
	"fmt"
)

// jsonField is the hash field JSON-encoded entries live under.
const jsonField = "json"

// PutJSON stores v as a JSON-encoded entry.
func PutJSON(st Store, table, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s|%s: %w", table, key, err)
	}
	return st.Set(table, key, map[string]string{jsonField: string(data)})
}

// GetJSON decodes the entry at table|key into dest. A missing entry
// reports found=false with dest untouched.
func GetJSON(st Store, table, key string, dest interface{}) (bool, error) {
	entry, err := st.Get(table, key)
	if err != nil {
		return false, err
	}
	data, ok := entry[jsonField]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("decoding %s|%s: %w", table, key, err)
	}
	return true, nil
}
