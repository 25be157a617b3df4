package timer

import (
	"math/rand"
	"time"
)

// pseudoRand backs the default sampling/idle-probability source. It does
// not need to be cryptographically strong — only a low-probability sampler
// for stats and the idle coin-flip when loop_interval is 0.
var pseudoRand = rand.New(rand.NewSource(time.Now().UnixNano()))
