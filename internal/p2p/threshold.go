package p2p

import "fmt"

// Threshold is the connectivity band the manager tries to keep the live
// peer registry within: below Low it dials, above High it sheds.
type Threshold struct {
	low  int
	high int
}

// NewThreshold validates and builds a Threshold. A band with low > high
// is a configuration bug, so construction refuses it outright rather
// than letting the admission loop run with an inconsistent policy.
func NewThreshold(low, high int) (Threshold, error) {
	if low < 0 || high < 0 {
		return Threshold{}, fmt.Errorf("threshold bounds must be non-negative, got low=%d high=%d", low, high)
	}
	if low > high {
		return Threshold{}, fmt.Errorf("threshold low (%d) must not exceed high (%d)", low, high)
	}
	return Threshold{low: low, high: high}, nil
}

// Low returns the minimum desired peer count.
func (t Threshold) Low() int { return t.low }

// High returns the maximum tolerated peer count.
func (t Threshold) High() int { return t.high }

func (t Threshold) String() string {
	return fmt.Sprintf("[%d..%d]", t.low, t.high)
}
