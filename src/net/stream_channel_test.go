package net

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTCPChannel(t *testing.T, origin string) *StreamChannel {
	ch, err := NewTCPChannel("127.0.0.1:0", "", origin, nil, 2, time.Second,
		common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return ch
}

func TestTCPChannelUnspecifiedAdvertise(t *testing.T) {
	_, err := NewTCPChannel("0.0.0.0:0", "", "o", nil, 2, time.Second,
		common.NewTestEntry(t, common.TestLogLevel))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPChannelSend(t *testing.T) {
	a := newTestTCPChannel(t, "https://a.example")
	defer a.Close()
	b := newTestTCPChannel(t, "https://b.example")
	defer b.Close()

	a.SetPeers([]Peer{{Address: b.LocalAddr(), Origin: "https://b.example", Relation: Frame, ElementID: "b"}})
	b.SetPeers([]Peer{{Address: a.LocalAddr(), Origin: "https://a.example", Relation: Parent}})

	in := collect(t, b)

	gen := envelope.NewIDGenerator("")
	var sent []*envelope.Envelope
	for i := 0; i < 10; i++ {
		env := envelope.NewChange(gen, "store", map[string]interface{}{"count": i})
		sent = append(sent, env)
		require.NoError(t, a.Send(env, wildcard))
	}

	for i := 0; i < 10; i++ {
		m := receive(t, in)
		assert.Equal(t, "https://a.example", m.Origin)
		assert.Equal(t, a.LocalAddr(), m.Source)

		got, err := envelope.Decode(m.Data)
		require.NoError(t, err)
		assert.Equal(t, sent[i].ID, got.ID)
		assert.True(t, envelope.Equal(sent[i].State, got.State))
	}

	// Frame filter and origin filter
	assert.NoError(t, a.Send(envelope.NewSync(gen, "store"), Target{Origins: []string{"*"}, FrameIDs: []string{"other"}}))
	assert.Error(t, a.Send(envelope.NewSync(gen, "store"), Target{Origins: []string{"https://c.example"}}))
	expectNothing(t, in)
}

func TestTCPChannelClosed(t *testing.T) {
	a := newTestTCPChannel(t, "o")
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	err := a.Send(envelope.NewSync(envelope.NewIDGenerator(""), "store"), wildcard)
	assert.True(t, common.IsSync(err, common.ChannelClosed))
}

func TestTCPChannelUnreachablePeer(t *testing.T) {
	a := newTestTCPChannel(t, "o")
	defer a.Close()
	b := newTestTCPChannel(t, "o")
	defer b.Close()

	dead := newTestTCPChannel(t, "o")
	deadAddr := dead.LocalAddr()
	dead.Close()

	a.SetPeers([]Peer{
		{Address: deadAddr, Origin: "o", Relation: Frame},
		{Address: b.LocalAddr(), Origin: "o", Relation: Frame},
	})
	in := collect(t, b)

	err := a.Send(envelope.NewSync(envelope.NewIDGenerator(""), "store"), wildcard)
	assert.Error(t, err)
	receive(t, in)
}
