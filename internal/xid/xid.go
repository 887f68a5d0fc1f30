package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier such as "reg-9f1c2a...".
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		id = uuid.Must(uuid.NewUUID())
	}
	return prefix + "-" + strings.ReplaceAll(id.String(), "-", "")
}
