// README: Shared identifier type used across modules.
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

func (id ID) Empty() bool {
	return strings.TrimSpace(string(id)) == ""
}

// ParseID accepts any non-blank identifier. Auth-provider UIDs are not UUIDs,
// so only order and invite identifiers are generated by NewID.
func ParseID(v string) (ID, bool) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 128 {
		return "", false
	}
	return ID(v), true
}

// IsUUID reports whether the id was minted by NewID.
func IsUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
