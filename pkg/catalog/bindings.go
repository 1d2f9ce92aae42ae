package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TableBinding maps a destination key prefix to the catalog table fed by
// objects under that prefix.
type TableBinding struct {
	Prefix string
	Table  string
}

// TableBindings resolve in declared order: the first prefix that matches
// wins, even when a later prefix is more specific. Bindings are loaded once
// at startup and never mutated.
type TableBindings []TableBinding

// Resolve returns the table bound to the first prefix matching key.
func (tb TableBindings) Resolve(key string) (string, bool) {
	for _, b := range tb {
		if strings.HasPrefix(key, b.Prefix) {
			return b.Table, true
		}
	}
	return "", false
}

// UnmarshalJSON accepts the {"prefix": "table", ...} object form used by
// the table mapping configuration. Member order in the document becomes the
// resolution order, which is why this does not decode into a map.
func (tb *TableBindings) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("table bindings must be a JSON object, got %v", tok)
	}

	var out TableBindings
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		prefix, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in table bindings", keyTok)
		}
		var table string
		if err := dec.Decode(&table); err != nil {
			return fmt.Errorf("table name for prefix %q: %v", prefix, err)
		}
		out = append(out, TableBinding{Prefix: prefix, Table: table})
	}
	*tb = out
	return nil
}
