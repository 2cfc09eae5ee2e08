package Redis

import (
	"testing"
	"time"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/OutsideInterface"
	"github.com/alicebob/miniredis/v2"
)

func Assert(t *testing.T, condition bool, errorMessage string) {
	t.Helper()
	if !condition {
		t.Error(errorMessage)
	}
}

func newTestInterface(t *testing.T) (*Interface, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	i := &Interface{}
	if err := Init(i, s.Addr()); nil != err {
		t.Fatalf("Init() error = %v", err)
	}
	return i, s
}

// publishUntilHeard repeats the message until the server reports a subscriber,
// the subscription is asynchronous
func publishUntilHeard(t *testing.T, s *miniredis.Miniredis, key string, value string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for 0 == s.Publish(key, value) {
		if time.Now().After(deadline) {
			t.Fatalf("nobody subscribed to %v", key)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan OutsideInterface.SubMessage) (OutsideInterface.SubMessage, bool) {
	t.Helper()
	select {
	case m, ok := <-ch:
		return m, ok
	case <-time.After(2 * time.Second):
		t.Fatal("nothing received")
	}
	return OutsideInterface.SubMessage{}, false
}

func TestInitNoServer(t *testing.T) {
	s, err := miniredis.Run()
	if nil != err {
		t.Fatal(err)
	}
	address := s.Addr()
	s.Close()
	if err := Init(&Interface{}, address); nil == err {
		t.Error("Init() connects to a stopped server")
	}
}

func TestUpdateComponentPublishes(t *testing.T) {
	i, s := newTestInterface(t)
	defer i.Close()
	sub := s.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("key|fire|ack")

	i.UpdateComponent("key|fire|ack", "1")
	select {
	case m := <-sub.Messages():
		Assert(t, "key|fire|ack" == m.Channel, "published to a wrong channel")
		Assert(t, "1" == m.Message, "published a wrong value")
	case <-time.After(2 * time.Second):
		t.Fatal("update is not published")
	}
	if keys := s.Keys(); 0 != len(keys) {
		t.Errorf("keys %v are stored, updates must only be published", keys)
	}
}

func TestWritableComponentReceives(t *testing.T) {
	i, s := newTestInterface(t)
	defer i.Close()
	fire := i.RegisterWritableComponent("key|fire")
	lamp := i.RegisterWritableComponent("key|lamp")

	publishUntilHeard(t, s, "key|lamp", "on")
	m, ok := receive(t, lamp)
	Assert(t, ok, "component channel is closed")
	Assert(t, OutsideInterface.SubMessage{Key: "key|lamp", Value: "on"} == m, "wrong message")

	publishUntilHeard(t, s, "key|fire", "")
	m, ok = receive(t, fire)
	Assert(t, ok && "key|fire" == m.Key, "message is not routed by channel name")
	Assert(t, 0 == len(s.Keys()), "registration stored keys")
}

func TestCloseClosesComponents(t *testing.T) {
	i, _ := newTestInterface(t)
	channels := []<-chan OutsideInterface.SubMessage{
		i.RegisterWritableComponent("key|fire"),
		i.RegisterWritableComponent("fill|fire"),
		i.RegisterWritableComponent("fill|test"),
	}
	i.Close()
	for n, ch := range channels {
		if _, ok := receive(t, ch); ok {
			t.Errorf("channel %v is open after Close", n)
		}
	}
	_, ok := receive(t, i.RegisterWritableComponent("late"))
	Assert(t, !ok, "registration after Close returns an open channel")
}
