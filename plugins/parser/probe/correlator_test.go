package probe

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/pkg/plugin"
)

var (
	client = netip.MustParseAddrPort("10.0.0.2:50000")
	server = netip.MustParseAddrPort("52.1.2.3:1000")
	up     = plugin.FlowKey{Src: client, Dst: server}
	down   = up.Reverse()
)

func TestCorrelator_NearestBySize(t *testing.T) {
	c := NewCorrelator(0)
	for i, size := range []int{1434, 1418, 1402} {
		assert.Equal(t, 0, c.Syn(up, i, size))
	}

	m, ok := c.Ack(down, 1402)
	require.True(t, ok)
	assert.Equal(t, 2, m.SynRecord)
	assert.True(t, m.Exact)
	assert.Equal(t, 2, c.Pending(up))

	// Consumed Syns are not matched twice.
	m, ok = c.Ack(down, 1402)
	require.True(t, ok)
	assert.Equal(t, 1, m.SynRecord)
	assert.False(t, m.Exact)
}

func TestCorrelator_TieGoesToMostRecent(t *testing.T) {
	c := NewCorrelator(0)
	c.Syn(up, 0, 1410)
	c.Syn(up, 1, 1390)

	m, ok := c.Ack(down, 1400)
	require.True(t, ok)
	assert.Equal(t, 1, m.SynRecord)
}

func TestCorrelator_Rounds(t *testing.T) {
	c := NewCorrelator(0)
	rounds := []int{}
	for i, size := range []int{1434, 1418, 1402, 1434, 1418, 1418, 1500} {
		rounds = append(rounds, c.Syn(up, i, size))
	}
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 2}, rounds)

	m, ok := c.Ack(down, 1402)
	require.True(t, ok)
	assert.Equal(t, 2, m.SynRecord)
	assert.Equal(t, 0, m.Round)
}

func TestCorrelator_DirectionMatters(t *testing.T) {
	c := NewCorrelator(0)
	c.Syn(up, 0, 1400)

	_, ok := c.Ack(up, 1400)
	assert.False(t, ok, "an Ack travelling in the Syn direction has nothing to match")

	_, ok = c.Ack(down, 1400)
	assert.True(t, ok)

	_, ok = c.Ack(down, 1400)
	assert.False(t, ok)
}

func TestCorrelator_LookbackEvictsOldest(t *testing.T) {
	c := NewCorrelator(3)
	for i, size := range []int{1500, 1400, 1300, 1200, 1100} {
		c.Syn(up, i, size)
	}
	assert.Equal(t, 3, c.Pending(up))

	m, ok := c.Ack(down, 1500)
	require.True(t, ok)
	assert.Equal(t, 2, m.SynRecord, "records 0 and 1 fell out of the window")
	assert.False(t, m.Exact)
}

func TestParser_HandleAnnotates(t *testing.T) {
	p := NewParser()
	require.NoError(t, p.Init(map[string]any{"lookback": 8}))

	records := [][]byte{framedSyn(1434), framedSyn(1418), framedSyn(1402)}
	for i, b := range records {
		dg := &core.Datagram{Frame: core.RawPacket{Index: i}, Src: client, Dst: server, Payload: b}
		require.True(t, p.CanHandle(dg))
		msg, labels, err := p.Handle(dg)
		require.NoError(t, err)
		assert.IsType(t, &Syn{}, msg)
		assert.Equal(t, "syn", labels[core.LabelProbeType])
		assert.Equal(t, "0", labels[core.LabelProbeRound])
	}

	dg := &core.Datagram{Frame: core.RawPacket{Index: 3}, Src: server, Dst: client, Payload: ack(1402, 0)}
	_, labels, err := p.Handle(dg)
	require.NoError(t, err)
	assert.Equal(t, "ack", labels[core.LabelProbeType])
	assert.Equal(t, "1402", labels[core.LabelProbeAcceptedSize])
	assert.Equal(t, "2", labels[core.LabelProbeMatch])
	assert.Equal(t, "true", labels[core.LabelProbeMatchExact])
}

func TestParser_HandleEmbedded(t *testing.T) {
	p := NewParser()
	dg := &core.Datagram{Frame: core.RawPacket{Index: 0}, Src: client, Dst: server}
	pkt, labels, err := p.HandleEmbedded(dg, []byte{1, 0, 9, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, 3, pkt.(*Syn).DataLen)
	assert.Equal(t, "3", labels[core.LabelProbeDataLen])

	reply := &core.Datagram{Frame: core.RawPacket{Index: 1}, Src: server, Dst: client}
	_, labels, err = p.HandleEmbedded(reply, []byte{2, 0, 3, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "0", labels[core.LabelProbeMatch])
}

func TestParser_InitRejectsNegativeLookback(t *testing.T) {
	p := NewParser()
	err := p.Init(map[string]any{"lookback": -1})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
