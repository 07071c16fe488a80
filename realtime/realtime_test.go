package realtime

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

type testChannel struct {
	sent   [][]byte
	err    error
	closed bool
}

func (c *testChannel) Send(data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *testChannel) Close() error {
	c.closed = true
	return nil
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	reg := NewRegistry()
	ch := &testChannel{}

	reg.Register("alice", ch)
	reg.Register("alice", ch)

	if got := len(reg.ChannelsFor("alice")); got != 1 {
		t.Errorf("Got %d channels, want 1", got)
	}
}

func TestRegistry_MultipleChannelsPerUser(t *testing.T) {
	reg := NewRegistry()
	first, second := &testChannel{}, &testChannel{}

	reg.Register("alice", first)
	reg.Register("alice", second)

	if got := len(reg.ChannelsFor("alice")); got != 2 {
		t.Errorf("Got %d channels, want 2", got)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	ch := &testChannel{}

	reg.Register("alice", ch)
	reg.Unregister(ch)

	if got := len(reg.ChannelsFor("alice")); got != 0 {
		t.Errorf("Got %d channels, want 0", got)
	}

	// Unknown channels are a no-op.
	reg.Unregister(&testChannel{})
}

func TestRegistry_ChannelOwnedByOneUser(t *testing.T) {
	reg := NewRegistry()
	ch := &testChannel{}

	reg.Register("alice", ch)
	reg.Register("bob", ch)

	if got := len(reg.ChannelsFor("alice")); got != 0 {
		t.Errorf("Got %d channels for alice, want 0", got)
	}
	if got := len(reg.ChannelsFor("bob")); got != 1 {
		t.Errorf("Got %d channels for bob, want 1", got)
	}
}

func TestDispatcher_BroadcastReachesOnlyLiveRecipients(t *testing.T) {
	reg := NewRegistry()
	d := &Dispatcher{Logger: slogt.New(t), Registry: reg}

	alice := &testChannel{}
	reg.Register("alice", alice)

	d.Broadcast([]string{"alice", "bob"}, map[string]string{"type": "new_message"})

	if got := len(alice.sent); got != 1 {
		t.Fatalf("Got %d sends, want 1", got)
	}
	want := `{"type":"new_message"}`
	if diff := cmp.Diff(want, string(alice.sent[0])); diff != "" {
		t.Errorf("Payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_BrokenChannelIsDropped(t *testing.T) {
	reg := NewRegistry()
	d := &Dispatcher{Logger: slogt.New(t), Registry: reg}

	broken := &testChannel{err: errors.New("write: broken pipe")}
	healthy := &testChannel{}
	reg.Register("alice", broken)
	reg.Register("bob", healthy)

	d.Broadcast([]string{"alice", "bob"}, map[string]string{"type": "new_message"})

	if !broken.closed {
		t.Error("Broken channel was not closed")
	}
	if got := len(reg.ChannelsFor("alice")); got != 0 {
		t.Errorf("Got %d channels for alice after failed send, want 0", got)
	}
	if got := len(healthy.sent); got != 1 {
		t.Errorf("Got %d sends to healthy channel, want 1", got)
	}
}
