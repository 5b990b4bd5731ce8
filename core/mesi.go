// Package core holds the small set of types shared by every component of
// the coherence engine: the MESI state enum, address decoding, and the
// instruction set of the PE register machine.
package core

import (
	"encoding/json"
	"fmt"
)

// MESIState is the coherence state of a cache line.
type MESIState uint8

const (
	Invalid MESIState = iota
	Shared
	Exclusive
	Modified
)

// String renders the single-letter MESI mnemonic used throughout logs,
// dumps, and the dashboard.
func (s MESIState) String() string {
	switch s {
	case Invalid:
		return "I"
	case Shared:
		return "S"
	case Exclusive:
		return "E"
	case Modified:
		return "M"
	default:
		return "?"
	}
}

// MarshalJSON renders the single-letter mnemonic rather than the
// underlying integer, so dashboard JSON matches the logs and dumps.
func (s MESIState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the single-letter mnemonic produced by MarshalJSON.
func (s *MESIState) UnmarshalJSON(data []byte) error {
	var mnemonic string
	if err := json.Unmarshal(data, &mnemonic); err != nil {
		return err
	}
	switch mnemonic {
	case "I":
		*s = Invalid
	case "S":
		*s = Shared
	case "E":
		*s = Exclusive
	case "M":
		*s = Modified
	default:
		return fmt.Errorf("core: invalid MESIState mnemonic %q", mnemonic)
	}
	return nil
}

// IsValid reports whether the line holds live data (anything but Invalid).
func (s MESIState) IsValid() bool { return s != Invalid }

// CanSupplyData reports whether a line in this state could answer a peer's
// BusRd. No protocol path consults it: the bus never transfers
// cache-to-cache, see DESIGN.md Open Question (b).
func (s MESIState) CanSupplyData() bool {
	return s == Shared || s == Exclusive || s == Modified
}
