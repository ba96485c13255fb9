package peer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDynamicBanScoreDecay(t *testing.T) {
	var bs DynamicBanScore

	base := time.Now()

	r := bs.increase(100, 50, base)
	assert.Equal(t, uint32(150), r, "unexpected result after increase")

	r = bs.int(base.Add(Halflife * time.Second))
	assert.Equal(t, uint32(125), r, "halflife should halve the transient component")

	r = bs.int(base.Add(7 * Halflife * time.Second))
	assert.Equal(t, uint32(100), r, "transient component should have decayed away")
}

func TestDynamicBanScoreLifetime(t *testing.T) {
	var bs DynamicBanScore

	base := time.Now()

	bs.increase(0, math.MaxUint32, base)

	r := bs.int(base.Add(Lifetime * time.Second))
	assert.Equal(t, uint32(3), r)

	r = bs.int(base.Add((Lifetime + 1) * time.Second))
	assert.Equal(t, uint32(0), r, "transient component should be discarded after its lifetime")
}

func TestDynamicBanScoreReset(t *testing.T) {
	var bs DynamicBanScore

	bs.Increase(100, 50)
	bs.Reset()

	assert.Equal(t, uint32(0), bs.Int())
}

func TestDynamicBanScorePersistentOnly(t *testing.T) {
	var bs DynamicBanScore

	bs.Increase(25, 0)
	bs.Increase(25, 0)

	// Persistent score never decays.
	assert.Equal(t, uint32(50), bs.int(time.Now().Add(24*time.Hour)))
}
