package postmessage

import (
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/mosaicnetworks/tabsync/src/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sync.Mutex
	values []interface{}
}

func (r *recorder) listen(v interface{}) {
	r.Lock()
	defer r.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) get() []interface{} {
	r.Lock()
	defer r.Unlock()
	return append([]interface{}(nil), r.values...)
}

func newPair(t *testing.T, name string, opts Options) (*net.InmemHost, *Channel, *Channel) {
	host := net.NewInmemHost(common.NewTestEntry(t, common.TestLogLevel))
	opts.Logger = common.NewTestEntry(t, common.TestLogLevel)

	wa := host.Open("https://a.example")
	wb := wa.OpenPopup("https://a.example")

	a, err := New(name, "hello", wa, opts)
	require.NoError(t, err)
	b, err := New(name, nil, wb, opts)
	require.NoError(t, err)

	return host, a, b
}

func TestInitialValue(t *testing.T) {
	host, a, b := newPair(t, "my-channel", Options{})
	defer host.Close()

	v, ok := a.State()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	v, ok = b.State()
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSend(t *testing.T) {
	host, a, b := newPair(t, "my-channel", Options{})
	defer host.Close()

	ra, rb := &recorder{}, &recorder{}
	a.Subscribe(ra.listen)
	b.Subscribe(rb.listen)

	require.NoError(t, a.Send("world"))

	v, _ := a.State()
	assert.Equal(t, "world", v)
	assert.Equal(t, []interface{}{"world"}, ra.get())

	assert.Eventually(t, func() bool {
		v, ok := b.State()
		return ok && v == "world"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []interface{}{"world"}, rb.get())

	// b's reply reaches its opener, and is not echoed back to b
	require.NoError(t, b.Send("back"))
	assert.Eventually(t, func() bool {
		v, _ := a.State()
		return v == "back"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []interface{}{"world", "back"}, rb.get())
}

func TestSubscribeMode(t *testing.T) {
	host, a, b := newPair(t, "events", Options{Subscribe: true})
	defer host.Close()

	rb := &recorder{}
	unsubscribe := b.Subscribe(rb.listen)

	require.NoError(t, a.Send("ping"))

	assert.Eventually(t, func() bool { return len(rb.get()) == 1 }, time.Second, 5*time.Millisecond)

	v, _ := a.State()
	assert.Equal(t, "hello", v, "subscribe mode never stores")
	_, ok := b.State()
	assert.False(t, ok)

	unsubscribe()
	require.NoError(t, a.Send("pong"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []interface{}{"ping"}, rb.get())
}

func TestOtherNamesIgnored(t *testing.T) {
	host := net.NewInmemHost(common.NewTestEntry(t, common.TestLogLevel))
	defer host.Close()

	wa := host.Open("o")
	wf := wa.Embed("f", "o")

	a, err := New("mine", nil, wa, Options{Logger: common.NewTestEntry(t, common.TestLogLevel)})
	require.NoError(t, err)

	gen := envelope.NewIDGenerator("")
	require.NoError(t, wf.Post(wa, envelope.NewChange(gen, "theirs", map[string]interface{}{"value": 1}), "o"))
	require.NoError(t, wf.Post(wa, envelope.NewSync(gen, "mine"), "o"))
	require.NoError(t, wf.Post(wa, "not an envelope", "o"))
	require.NoError(t, wf.Post(wa, envelope.NewChange(gen, "mine", map[string]interface{}{"value": 2}), "o"))

	assert.Eventually(t, func() bool {
		v, ok := a.State()
		return ok && v == 2
	}, time.Second, 5*time.Millisecond)
}

func TestOriginAllowList(t *testing.T) {
	host := net.NewInmemHost(common.NewTestEntry(t, common.TestLogLevel))
	defer host.Close()

	wa := host.Open("https://a.example")
	evil := wa.Embed("evil", "https://evil.example")

	a, err := New("mine", nil, wa, Options{
		Origins: []string{"https://a.example"},
		Logger:  common.NewTestEntry(t, common.TestLogLevel),
	})
	require.NoError(t, err)

	gen := envelope.NewIDGenerator("")
	require.NoError(t, evil.Post(wa, envelope.NewChange(gen, "mine", map[string]interface{}{"value": "x"}), net.WildcardOrigin))

	time.Sleep(30 * time.Millisecond)
	_, ok := a.State()
	assert.False(t, ok)
}

func TestClose(t *testing.T) {
	host, a, b := newPair(t, "my-channel", Options{})
	defer host.Close()

	require.NoError(t, b.Close())

	// the popup is gone, so a's send reaches nobody
	require.NoError(t, a.Send("alone"))
	v, _ := a.State()
	assert.Equal(t, "alone", v)
}
