package cur

import "strings"

// PrefixRule rewrites keys from a source bucket's layout into the
// destination bucket's layout. The zero value maps every key to itself.
// Rules are loaded once at startup and never mutated.
type PrefixRule struct {
	SourcePrefix      string `json:"source_prefix"`
	DestinationPrefix string `json:"destination_prefix"`
}

// DestinationKey maps a source key to its destination key. If the key does
// not start with SourcePrefix the whole key is used as the relative part;
// callers treat that as a warning condition, not an error. The result never
// carries a leading or doubled separator.
func (r PrefixRule) DestinationKey(sourceKey string) string {
	relative := sourceKey
	if r.SourcePrefix != "" && strings.HasPrefix(sourceKey, r.SourcePrefix) {
		relative = strings.TrimLeft(strings.TrimPrefix(sourceKey, r.SourcePrefix), "/")
	}
	if r.DestinationPrefix == "" {
		return relative
	}
	return strings.TrimRight(r.DestinationPrefix, "/") + "/" + relative
}
