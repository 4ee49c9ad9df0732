package memory

import (
	"context"
	"encoding/json"
	"testing"

	"quiz-arena/internal/domain"
)

func TestBrokerDeliversSealedEvents(t *testing.T) {
	broker := NewBroker()
	ch, cancel := broker.Subscribe(domain.SessionTopic("s-1"))
	defer cancel()
	other, cancelOther := broker.Subscribe(domain.SessionTopic("s-2"))
	defer cancelOther()

	err := broker.Publish(context.Background(), domain.SessionTopic("s-1"), domain.ParticipantJoined{
		SessionID: "s-1", ParticipantID: "u1", DisplayName: "Alice", ParticipantCount: 1,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	env := <-ch
	if env.Name != domain.EventParticipantJoined || env.Topic != "session:s-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var payload domain.ParticipantJoined
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.DisplayName != "Alice" {
		t.Fatalf("expected Alice, got %+v", payload)
	}
	select {
	case env := <-other:
		t.Fatalf("unexpected cross-topic delivery %+v", env)
	default:
	}
}

func TestBrokerDropsOldestForSlowSubscriber(t *testing.T) {
	broker := NewBroker()
	topic := domain.SessionTopic("s-1")
	ch, cancel := broker.Subscribe(topic)
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		_ = broker.Publish(context.Background(), topic, domain.LeaderboardUpdated{
			Leaderboard: domain.Leaderboard{SessionID: "s-1", Version: i + 1},
		})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected full buffer, got %d", len(ch))
	}

	var last domain.LeaderboardUpdated
	for len(ch) > 0 {
		env := <-ch
		if err := json.Unmarshal(env.Payload, &last); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if last.Leaderboard.Version != subscriberBuffer+5 {
		t.Fatalf("expected newest version kept, got %d", last.Leaderboard.Version)
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	broker := NewBroker()
	topic := domain.TournamentTopic("t-1")
	ch, cancel := broker.Subscribe(topic)
	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Fatalf("expected closed channel")
	}
	if n := broker.Subscribers(topic); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	if err := broker.Publish(context.Background(), topic, domain.TournamentEnded{TournamentID: "t-1"}); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}
}
