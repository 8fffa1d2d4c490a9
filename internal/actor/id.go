package actor

import (
	"fmt"

	"github.com/google/uuid"
)

// IDKind discriminates the three primary-key shapes the core accepts.
type IDKind uint8

const (
	IDKindInt64 IDKind = iota
	IDKindString
	IDKindUUID
)

// ID is the aggregate primary key. It is a closed discriminated value: an
// actor identity is one of a signed 64-bit integer, a string, or a UUID,
// never more than one at a time.
type ID struct {
	kind IDKind
	i    int64
	s    string
	u    uuid.UUID
}

func NewIntID(v int64) ID    { return ID{kind: IDKindInt64, i: v} }
func NewStringID(v string) ID { return ID{kind: IDKindString, s: v} }
func NewUUIDID(v uuid.UUID) ID { return ID{kind: IDKindUUID, u: v} }

func (id ID) Kind() IDKind { return id.kind }

// String renders the identity for logging, error messages and storage keys.
func (id ID) String() string {
	switch id.kind {
	case IDKindInt64:
		return fmt.Sprintf("%d", id.i)
	case IDKindString:
		return id.s
	case IDKindUUID:
		return id.u.String()
	default:
		return ""
	}
}

func (id ID) Equal(other ID) bool {
	if id.kind != other.kind {
		return false
	}
	switch id.kind {
	case IDKindInt64:
		return id.i == other.i
	case IDKindString:
		return id.s == other.s
	case IDKindUUID:
		return id.u == other.u
	default:
		return true
	}
}
