package diff

import "fmt"

// OpTag is the type of a diff opcode. The vocabulary is closed: any other
// value indicates a contract violation in the producer.
type OpTag uint8

const (
	OpEqual OpTag = iota
	OpReplace
	OpDelete
	OpInsert
)

// String returns the tag name.
func (t OpTag) String() string {
	switch t {
	case OpEqual:
		return "equal"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	default:
		return "unknown"
	}
}

// Opcode is one tagged range pair of an edit script: bytes [I1,I2) of the
// old string correspond to bytes [J1,J2) of the new string.
//
//   - OpEqual: the ranges hold identical content
//   - OpReplace: old range is replaced by new range (both non-empty)
//   - OpDelete: old range is removed (J1 == J2)
//   - OpInsert: new range is inserted at I1 (I1 == I2)
type Opcode struct {
	Tag OpTag
	I1  int
	I2  int
	J1  int
	J2  int
}

// String returns a compact representation for diagnostics and tests.
func (op Opcode) String() string {
	return fmt.Sprintf("%s a[%d:%d] b[%d:%d]", op.Tag, op.I1, op.I2, op.J1, op.J2)
}
