package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscribe_ReceivesOnlyMatchingType(t *testing.T) {
	b := New()
	votes := b.Subscribe(EventVote)
	proposals := b.Subscribe(EventProposal)

	b.Publish(Event{Type: EventVote, From: "verifier-1", Timestamp: time.Now()})

	select {
	case ev := <-votes:
		assert.Equal(t, EventVote, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a vote event")
	}

	select {
	case <-proposals:
		t.Fatal("proposal subscriber should not have received a vote event")
	default:
	}
}

func TestNewTap_ReceivesEveryEventType(t *testing.T) {
	b := New()
	tap := b.NewTap()

	b.Publish(Event{Type: EventProposal, From: "proposer-1"})
	b.Publish(Event{Type: EventSchedulerTick, From: "scheduler"})

	first := <-tap
	second := <-tap
	assert.Equal(t, EventProposal, first.Type)
	assert.Equal(t, EventSchedulerTick, second.Type)
}

func TestPublish_DropsOnFullSubscriberChannelWithoutBlocking(t *testing.T) {
	b := New()
	_ = b.Subscribe(EventVote)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufSize+10; i++ {
			b.Publish(Event{Type: EventVote, From: "verifier-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked instead of dropping on a full subscriber channel")
	}
}
