package vfs

import (
	"encoding/json"
	"strings"

	"homefs/internal/common"
)

// Operation is a structural operation a path may support.
type Operation uint16

const (
	OpCreateWithin Operation = iota
	OpRename
	OpCopy
	OpCopyTo
	OpMove
	OpMoveTo
	OpDelete
	OpTrash
	OpRestore
	OpShare
	OpFavorite
	OpArchive
	OpExtract

	numOperations
)

var operationNames = [numOperations]string{
	OpCreateWithin: "createWithin",
	OpRename:       "rename",
	OpCopy:         "copy",
	OpCopyTo:       "copyTo",
	OpMove:         "move",
	OpMoveTo:       "moveTo",
	OpDelete:       "delete",
	OpTrash:        "trash",
	OpRestore:      "restore",
	OpShare:        "share",
	OpFavorite:     "favorite",
	OpArchive:      "archive",
	OpExtract:      "extract",
}

func (op Operation) String() string {
	if op < numOperations {
		return operationNames[op]
	}
	return "unknown"
}

// ParseOperation looks an operation up by name.
func ParseOperation(name string) (Operation, error) {
	for op := Operation(0); op < numOperations; op++ {
		if operationNames[op] == name {
			return op, nil
		}
	}
	return 0, common.Errorf(common.EINVAL, "unknown operation %q", name)
}

// Operations is a set of operations. The zero value is the empty set.
type Operations struct {
	bits uint16
}

// NewOperations returns a set holding ops.
func NewOperations(ops ...Operation) Operations {
	var set Operations
	for _, op := range ops {
		set = set.With(op)
	}
	return set
}

// Has reports whether op is in the set.
func (s Operations) Has(op Operation) bool {
	return op < numOperations && s.bits&(1<<op) != 0
}

// With returns the set plus ops.
func (s Operations) With(ops ...Operation) Operations {
	for _, op := range ops {
		if op < numOperations {
			s.bits |= 1 << op
		}
	}
	return s
}

// Without returns the set minus ops.
func (s Operations) Without(ops ...Operation) Operations {
	for _, op := range ops {
		if op < numOperations {
			s.bits &^= 1 << op
		}
	}
	return s
}

// Union returns every operation in either set.
func (s Operations) Union(other Operations) Operations {
	return Operations{bits: s.bits | other.bits}
}

func (s Operations) IsEmpty() bool { return s.bits == 0 }

// List returns the operations in declaration order.
func (s Operations) List() []Operation {
	var ops []Operation
	for op := Operation(0); op < numOperations; op++ {
		if s.Has(op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// Names returns the operation names in declaration order.
func (s Operations) Names() []string {
	names := []string{}
	for _, op := range s.List() {
		names = append(names, op.String())
	}
	return names
}

func (s Operations) String() string {
	return "[" + strings.Join(s.Names(), " ") + "]"
}

func (s Operations) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *Operations) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set Operations
	for _, name := range names {
		op, err := ParseOperation(name)
		if err != nil {
			return err
		}
		set = set.With(op)
	}
	*s = set
	return nil
}
