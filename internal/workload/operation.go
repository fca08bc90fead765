package workload

import (
	"fmt"
	"strings"
)

// OperationKind identifies one of the six YCSB operation types
type OperationKind int

const (
	OpRead OperationKind = iota
	OpInsert
	OpUpdate
	OpDelete
	OpScan
	OpReadModifyWrite
)

// AllOperationKinds lists every kind in chooser order
var AllOperationKinds = []OperationKind{
	OpRead,
	OpInsert,
	OpUpdate,
	OpDelete,
	OpScan,
	OpReadModifyWrite,
}

var operationNames = map[OperationKind]string{
	OpRead:            "read",
	OpInsert:          "insert",
	OpUpdate:          "update",
	OpDelete:          "delete",
	OpScan:            "scan",
	OpReadModifyWrite: "read_modify_write",
}

func (k OperationKind) String() string {
	if name, ok := operationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(k))
}

// IsWrite reports whether the operation mutates the target
func (k OperationKind) IsWrite() bool {
	switch k {
	case OpInsert, OpUpdate, OpDelete, OpReadModifyWrite:
		return true
	default:
		return false
	}
}

// ParseOperationKind accepts the canonical names plus a few common aliases
func ParseOperationKind(s string) (OperationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "get":
		return OpRead, nil
	case "insert":
		return OpInsert, nil
	case "update", "put":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	case "scan":
		return OpScan, nil
	case "read_modify_write", "readmodifywrite", "rmw":
		return OpReadModifyWrite, nil
	default:
		return 0, fmt.Errorf("unknown operation kind: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name
func (k OperationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *OperationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
