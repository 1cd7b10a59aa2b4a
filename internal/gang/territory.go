package gang

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkKey packs a chunk's x (high 32 bits) and z (low 32 bits).
type ChunkKey int64

func PackChunk(x, z int32) ChunkKey {
	return ChunkKey(int64(x)<<32 | int64(uint32(z)))
}

func (k ChunkKey) Unpack() (x, z int32) {
	return int32(int64(k) >> 32), int32(uint32(int64(k)))
}

func (k ChunkKey) String() string {
	x, z := k.Unpack()
	return fmt.Sprintf("%d,%d", x, z)
}

// ParseChunkKey accepts either "x,z" or the packed integer form.
func ParseChunkKey(s string) (ChunkKey, error) {
	s = strings.TrimSpace(s)
	if xs, zs, ok := strings.Cut(s, ","); ok {
		x, err := strconv.ParseInt(strings.TrimSpace(xs), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: chunk x: %v", ErrValidation, err)
		}
		z, err := strconv.ParseInt(strings.TrimSpace(zs), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: chunk z: %v", ErrValidation, err)
		}
		return PackChunk(int32(x), int32(z)), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: chunk key: %v", ErrValidation, err)
	}
	return ChunkKey(v), nil
}

func BaseTerritoryCapacity(level int) int {
	switch {
	case level < 3:
		return 1
	case level < 8:
		return 4
	case level < 15:
		return 9
	case level < 22:
		return 16
	default:
		return 25
	}
}

// TerritoryCapacity applies perk overrides on top of the level band.
// The largest override wins; they do not stack.
func TerritoryCapacity(level int, perks []string) int {
	capacity := BaseTerritoryCapacity(level)
	for _, name := range perks {
		p, ok := LookupPerk(name)
		if !ok || p.TerritoryCap == 0 {
			continue
		}
		if p.TerritoryCap == Unlimited {
			return Unlimited
		}
		if p.TerritoryCap > capacity {
			capacity = p.TerritoryCap
		}
	}
	return capacity
}
