package pool

import "fmt"

// PoolID identifies a pool. IDs are assigned by the hub registry and are
// globally unique across networks.
type PoolID uint64

// NetworkID identifies a network (the hub or a spoke) participating in a pool.
type NetworkID uint32

// ShareClassID and AssetID are opaque identifiers scoped within a pool.
type ShareClassID string

type AssetID string

// Key is the settlement partition: all epoch and request state is keyed by
// (shareClass, asset) within a pool.
type Key struct {
	ShareClass ShareClassID
	Asset      AssetID
}

func NewKey(shareClass ShareClassID, asset AssetID) Key {
	return Key{ShareClass: shareClass, Asset: asset}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.ShareClass, k.Asset)
}

// Direction discriminates the two settlement flows.
type Direction uint8

const (
	// DirectionDeposit: investor pays assets, receives shares.
	DirectionDeposit Direction = iota
	// DirectionRedeem: investor pays shares, receives assets.
	DirectionRedeem
)

func (d Direction) String() string {
	if d == DirectionRedeem {
		return "redeem"
	}
	return "deposit"
}

// ParseDirection maps the wire representation to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "deposit":
		return DirectionDeposit, nil
	case "redeem":
		return DirectionRedeem, nil
	default:
		return 0, fmt.Errorf("unknown direction: %q", s)
	}
}
