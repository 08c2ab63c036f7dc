// Package replica holds the convergent room state shared by clients and the relay:
// the artifact set and the peer presence table. Both are mutated only through operations.
package replica

import "github.com/cwrk-planet/canvas-rooms/internal/domain"

type OpKind string

const (
	OpInsert OpKind = "insert"
	OpRemove OpKind = "remove"
)

// Stamp: ламповская метка операции. Origin разрешает равенство часов.
type Stamp struct {
	Clock  uint64 `json:"clock" cbor:"clock"`
	Origin string `json:"origin" cbor:"origin"`
}

// After reports whether s is ordered after o.
func (s Stamp) After(o Stamp) bool {
	if s.Clock != o.Clock {
		return s.Clock > o.Clock
	}
	return s.Origin > o.Origin
}

func (s Stamp) IsZero() bool { return s.Clock == 0 && s.Origin == "" }

// Op is one replicated artifact mutation. Artifact is set for inserts only.
type Op struct {
	Kind     OpKind           `json:"kind" cbor:"kind"`
	ID       string           `json:"id" cbor:"id"`
	Artifact *domain.Artifact `json:"artifact,omitempty" cbor:"artifact,omitempty"`
	Stamp    Stamp            `json:"stamp" cbor:"stamp"`
}

func (o Op) valid() bool {
	if o.ID == "" || o.Stamp.IsZero() {
		return false
	}
	switch o.Kind {
	case OpInsert:
		return o.Artifact != nil && o.Artifact.ID == o.ID
	case OpRemove:
		return true
	}
	return false
}
