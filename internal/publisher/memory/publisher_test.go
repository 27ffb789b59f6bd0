package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "topic-a", map[string]string{"k": "v"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	done := crawler.RegionCompleted{RunID: "run-1", Region: "Berlin", DisplayName: "berlin", Records: 6, Pages: 4, CompletedAt: time.Unix(0, 0).UTC()}
	id2, err := pub.Publish(context.Background(), "topic-b", done)
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "topic-a" || msgs[1].Topic != "topic-b" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}
	var got crawler.RegionCompleted
	if err := msgs[1].Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != done {
		t.Fatalf("round trip mismatch: %+v != %+v", got, done)
	}
	if msgs[1].Attributes["event"] != "region_completed" || msgs[1].Attributes["region"] != "Berlin" {
		t.Fatalf("unexpected attributes %+v", msgs[1].Attributes)
	}

	msgs[0].Topic = "modified"
	msgs[1].Attributes["event"] = "modified"
	if pub.Messages()[0].Topic == "modified" || pub.Messages()[1].Attributes["event"] == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("broker down")
	pub.FailWith(boom)
	if _, err := pub.Publish(context.Background(), "t", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	pub.FailWith(nil)
	if _, err := pub.Publish(context.Background(), "t", "x"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := pub.Publish(context.Background(), "t", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
	if len(pub.Messages()) != 1 {
		t.Fatalf("expected only the successful publish to be recorded")
	}
}
