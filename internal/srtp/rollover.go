package srtp

const seqHalf = 1 << 15

// RolloverState is the per-SSRC index state of RFC 3711 §3.3.1:
// the highest sequence number seen (s_l) and its rollover counter.
type RolloverState struct {
	Highest uint16
	ROC     uint32
}

// Index returns the 48-bit packet index of the highest packet seen.
func (s RolloverState) Index() uint64 {
	return uint64(s.ROC)<<16 | uint64(s.Highest)
}

// EstimateIndex guesses the rollover counter for seq relative to s and
// returns the resulting packet index. newest is true when the index is
// beyond the highest one seen so far.
//
// A sequence number that looks like it precedes a rollover while ROC is
// still zero belongs to a packet sent before the first one observed; it
// keeps ROC 0 and is never newest.
func EstimateIndex(s RolloverState, seq uint16) (roc uint32, index uint64, newest bool) {
	roc = s.ROC
	if s.Highest < seqHalf {
		if int(seq)-int(s.Highest) > seqHalf {
			if roc == 0 {
				return 0, uint64(seq), false
			}
			roc--
		}
	} else if int(s.Highest)-seqHalf > int(seq) {
		roc++
	}
	index = uint64(roc)<<16 | uint64(seq)
	return roc, index, index > s.Index()
}

// Advance estimates the index of seq and returns the state after accepting
// it. Packets that are not newest leave the state unchanged.
func (s RolloverState) Advance(seq uint16) (RolloverState, uint64) {
	roc, index, newest := EstimateIndex(s, seq)
	if newest {
		s = RolloverState{Highest: seq, ROC: roc}
	}
	return s, index
}
