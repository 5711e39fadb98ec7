package prover

import (
	"fmt"
	"strings"
)

// Type identifies one of the proving backends a deployment may require.
// The set is closed: "required types for a batch" checks iterate over it
// exhaustively rather than treating the type as an open string.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeExec
	TypeSP1
	TypeRISC0
	TypeTDX
	TypeTokamak
)

// AllTypes lists every known prover type, in calldata order.
func AllTypes() []Type {
	return []Type{TypeExec, TypeSP1, TypeRISC0, TypeTDX, TypeTokamak}
}

func (t Type) String() string {
	switch t {
	case TypeExec:
		return "exec"
	case TypeSP1:
		return "sp1"
	case TypeRISC0:
		return "risc0"
	case TypeTDX:
		return "tdx"
	case TypeTokamak:
		return "tokamak"
	default:
		return "unknown"
	}
}

// ParseType parses a prover type name as it appears in config files and
// on the wire. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exec":
		return TypeExec, nil
	case "sp1":
		return TypeSP1, nil
	case "risc0":
		return TypeRISC0, nil
	case "tdx":
		return TypeTDX, nil
	case "tokamak":
		return TypeTokamak, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown prover type %q", s)
	}
}

// ParseTypes parses a list of prover type names, rejecting duplicates.
func ParseTypes(names []string) ([]Type, error) {
	out := make([]Type, 0, len(names))
	seen := make(map[Type]struct{}, len(names))
	for _, name := range names {
		t, err := ParseType(name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			return nil, fmt.Errorf("duplicate prover type %q", name)
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// MarshalText implements encoding.TextMarshaler so Type round-trips
// through JSON and YAML as its lowercase name.
func (t Type) MarshalText() ([]byte, error) {
	if t == TypeUnknown {
		return nil, fmt.Errorf("cannot marshal unknown prover type")
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Contains reports whether ts includes t.
func Contains(ts []Type, t Type) bool {
	for _, candidate := range ts {
		if candidate == t {
			return true
		}
	}
	return false
}
