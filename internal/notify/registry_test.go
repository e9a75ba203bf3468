package notify

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	r := NewRegistry()

	var got []UsageEvent
	unsub := r.Subscribe(func(ev UsageEvent) {
		got = append(got, ev)
	})
	defer unsub()

	r.Publish(UsageEvent{UserID: "u1", Current: 3, Tier: "free"})
	if len(got) != 1 || got[0].UserID != "u1" || got[0].Current != 3 {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry()

	calls := 0
	unsub := r.Subscribe(func(UsageEvent) { calls++ })

	r.Publish(UsageEvent{UserID: "u1"})
	unsub()
	r.Publish(UsageEvent{UserID: "u1"})

	if calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	r := NewRegistry()

	a, b := 0, 0
	unsubA := r.Subscribe(func(UsageEvent) { a++ })
	defer unsubA()
	unsubB := r.Subscribe(func(UsageEvent) { b++ })
	defer unsubB()

	r.Publish(UsageEvent{UserID: "u1"})
	if a != 1 || b != 1 {
		t.Fatalf("expected both subscribers called once, got a=%d b=%d", a, b)
	}
}
