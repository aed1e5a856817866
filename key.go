package requery

import (
	"fmt"

	"github.com/unkn0wn-root/requery/internal/util"
)

// Key identifies one cached query: a query name plus a digest of its
// encoded arguments. Two call sites with the same name and byte-identical
// encoded arguments share one entry.
type Key string

// buildKey derives the cache key for a named query and its encoded args.
// The args encoding must be deterministic (see codec.CBOR deterministic
// mode); otherwise equal arguments can map to distinct entries.
func buildKey(name string, encodedArgs []byte) Key {
	return Key(name + ":" + util.Hash16(encodedArgs))
}

func validateQueryName(name string) error {
	if name == "" {
		return fmt.Errorf("requery: query name is required")
	}
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return fmt.Errorf("requery: query name %q must not contain ':'", name)
		}
	}
	return nil
}
