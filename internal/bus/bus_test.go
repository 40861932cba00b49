package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"memobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestBus_PublishAndSubscribe(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.InboundMessage{ID: "m1", Channel: "discord", Content: "hello"})

	select {
	case msg := <-b.Subscribe():
		if msg.ID != "m1" || msg.Content != "hello" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBus_OutboundRouting(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	got := make(chan domain.OutboundMessage, 1)
	b.OnOutbound("discord", func(msg domain.OutboundMessage) {
		got <- msg
	})

	b.SendOutbound(domain.OutboundMessage{Channel: "discord", ChatID: "c1", Content: "reply"})

	select {
	case msg := <-got:
		if msg.ChatID != "c1" || msg.Content != "reply" {
			t.Errorf("unexpected outbound: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("outbound not routed")
	}
}

func TestBus_OutboundWithoutHandlerIsDropped(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	// Must not panic or block.
	b.SendOutbound(domain.OutboundMessage{Channel: "telegram", Content: "reply"})
}

func TestBus_HandlerPerChannel(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	discord := make(chan domain.OutboundMessage, 1)
	telegram := make(chan domain.OutboundMessage, 1)
	b.OnOutbound("discord", func(msg domain.OutboundMessage) { discord <- msg })
	b.OnOutbound("telegram", func(msg domain.OutboundMessage) { telegram <- msg })

	b.SendOutbound(domain.OutboundMessage{Channel: "telegram", Content: "t"})

	select {
	case msg := <-telegram:
		if msg.Content != "t" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("telegram handler not invoked")
	}
	select {
	case msg := <-discord:
		t.Errorf("discord handler should not receive telegram traffic: %+v", msg)
	default:
	}
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := New(10, testLogger())
	b.Close()

	// Must not panic on the closed channel.
	b.Publish(domain.InboundMessage{ID: "late"})
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := New(10, testLogger())
	b.Close()
	b.Close()
}

func TestBus_SubscribeSeesClose(t *testing.T) {
	b := New(10, testLogger())
	inbound := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-inbound:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("closed channel should be readable immediately")
	}
}
