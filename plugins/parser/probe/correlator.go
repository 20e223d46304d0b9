package probe

import (
	"firestige.xyz/gsdump/pkg/plugin"
)

// DefaultLookback is the number of unmatched Syns kept per flow.
const DefaultLookback = 64

// Match is the result of correlating an Ack with an earlier Syn.
type Match struct {
	SynRecord int  // Record index of the matched Syn
	Round     int  // Round the Syn belonged to
	Exact     bool // Syn data_len equals the accepted size
}

type pendingSyn struct {
	record  int
	dataLen int
	round   int
}

type flowState struct {
	pending []pendingSyn // Unmatched, oldest first
	round   int
	lastLen int
	seen    bool
}

// Correlator groups Syns into rounds and pairs Acks with them. It is an
// annotation layer only; records are never held back or reordered.
//
// Not safe for concurrent use.
type Correlator struct {
	lookback int
	flows    map[plugin.FlowKey]*flowState
}

// NewCorrelator creates a correlator keeping at most lookback unmatched Syns
// per flow. A non-positive lookback uses DefaultLookback.
func NewCorrelator(lookback int) *Correlator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Correlator{
		lookback: lookback,
		flows:    make(map[plugin.FlowKey]*flowState),
	}
}

// Syn records a probe sent on flow and returns its round. A Syn larger than
// the previous one on the same flow starts a new round.
func (c *Correlator) Syn(flow plugin.FlowKey, record, dataLen int) int {
	st := c.flows[flow]
	if st == nil {
		st = &flowState{}
		c.flows[flow] = st
	}
	if st.seen && dataLen > st.lastLen {
		st.round++
	}
	st.seen = true
	st.lastLen = dataLen

	st.pending = append(st.pending, pendingSyn{record: record, dataLen: dataLen, round: st.round})
	if over := len(st.pending) - c.lookback; over > 0 {
		st.pending = append(st.pending[:0], st.pending[over:]...)
	}
	return st.round
}

// Ack pairs an Ack received on flow with the unmatched Syn of the opposite
// direction whose size is nearest to accepted; the most recent Syn wins ties.
// The matched Syn is consumed.
func (c *Correlator) Ack(flow plugin.FlowKey, accepted int) (Match, bool) {
	st := c.flows[flow.Reverse()]
	if st == nil || len(st.pending) == 0 {
		return Match{}, false
	}

	best := -1
	bestDist := 0
	for i := len(st.pending) - 1; i >= 0; i-- {
		d := st.pending[i].dataLen - accepted
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	syn := st.pending[best]
	st.pending = append(st.pending[:best], st.pending[best+1:]...)
	return Match{SynRecord: syn.record, Round: syn.round, Exact: bestDist == 0}, true
}

// Pending returns the number of unmatched Syns sent on flow.
func (c *Correlator) Pending(flow plugin.FlowKey) int {
	if st := c.flows[flow]; st != nil {
		return len(st.pending)
	}
	return 0
}
