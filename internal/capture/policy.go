package capture

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/simcam/internal/sim"
)

// Policy produces the actions to issue at a capture step. Every returned
// action must carry the Seq it was asked for.
type Policy interface {
	Actions(seq int) []Action
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(seq int) []Action

// Actions implements Policy.
func (f PolicyFunc) Actions(seq int) []Action { return f(seq) }

// Turn ranges used by DefaultPolicy, in steps and degrees.
const (
	bigTurnPeriodMin = 30
	bigTurnPeriodMax = 50
	bigTurnMin       = 60
	bigTurnMax       = 160

	jitterPeriodMin = 20
	jitterPeriodMax = 40
	jitterMax       = 10
)

// DefaultPolicy walks the subject forward every step with occasional turns.
// A big turn fires when seq is a multiple of a period drawn fresh from
// [30,50] on every step; otherwise a jitter turn of [-10,10] degrees fires
// when seq is a multiple of a period drawn from [20,40]. A zero jitter emits
// no turn.
type DefaultPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDefaultPolicy returns a DefaultPolicy drawing from rng. A nil rng is
// seeded from the current time.
func NewDefaultPolicy(rng *rand.Rand) *DefaultPolicy {
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>1|1))
	}
	return &DefaultPolicy{rng: rng}
}

// Actions implements Policy.
func (p *DefaultPolicy) Actions(seq int) []Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	actions := []Action{{Seq: seq, Kind: sim.MoveForward}}

	if seq%p.between(bigTurnPeriodMin, bigTurnPeriodMax) == 0 {
		angle := float64(p.between(bigTurnMin, bigTurnMax))
		kind := sim.RotateLeft
		if p.rng.IntN(2) == 1 {
			kind = sim.RotateRight
		}
		return append(actions, Action{Seq: seq, Kind: kind, Magnitude: angle})
	}

	if seq%p.between(jitterPeriodMin, jitterPeriodMax) == 0 {
		switch j := p.between(-jitterMax, jitterMax); {
		case j > 0:
			actions = append(actions, Action{Seq: seq, Kind: sim.RotateRight, Magnitude: float64(j)})
		case j < 0:
			actions = append(actions, Action{Seq: seq, Kind: sim.RotateLeft, Magnitude: float64(-j)})
		}
	}
	return actions
}

// between returns a uniform integer in [lo, hi].
func (p *DefaultPolicy) between(lo, hi int) int {
	return lo + p.rng.IntN(hi-lo+1)
}
