package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/hospital-registration/internal/model"
	"github.com/iliyamo/hospital-registration/internal/repository"
)

// fullSchedule seeds a schedule with zero remaining capacity.
func (e *testEnv) fullSchedule(id uint64, capacity int) *model.Schedule {
	s := e.addSchedule(id, capacity)
	s.RemainingSlots = 0
	e.schedules.put(s)
	return s
}

func TestJoinAssignsPositions(t *testing.T) {
	e := newTestEnv()
	e.fullSchedule(1, 1)
	e.addPatient(100, 7, model.IdentityExternal)
	e.addPatient(101, 8, model.IdentityExternal)

	first, err := e.waitlist.Join(context.Background(), 7, 100, 1)
	if err != nil {
		t.Fatalf("first Join: %v", err)
	}
	second, err := e.waitlist.Join(context.Background(), 8, 101, 1)
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if first.Status != model.OrderWaitlist || second.Status != model.OrderWaitlist {
		t.Errorf("joined orders in %s/%s, want WAITLIST both", first.Status, second.Status)
	}
	if first.WaitlistPosition == nil || *first.WaitlistPosition != 1 {
		t.Errorf("first position = %v, want 1", first.WaitlistPosition)
	}
	if second.WaitlistPosition == nil || *second.WaitlistPosition != 2 {
		t.Errorf("second position = %v, want 2", second.WaitlistPosition)
	}
	if got := e.remaining(1); got != 0 {
		t.Errorf("remaining slots = %d, want 0 (waitlist holds no capacity)", got)
	}
}

func TestJoinRejectsOpenScheduleAndDuplicates(t *testing.T) {
	e := newTestEnv()
	e.addSchedule(1, 2) // capacity still free
	e.addPatient(100, 7, model.IdentityExternal)

	if _, err := e.waitlist.Join(context.Background(), 7, 100, 1); !errors.Is(err, repository.ErrScheduleOpen) {
		t.Errorf("open schedule Join error = %v, want ErrScheduleOpen", err)
	}

	e.fullSchedule(2, 1)
	if _, err := e.waitlist.Join(context.Background(), 7, 100, 2); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := e.waitlist.Join(context.Background(), 7, 100, 2); !errors.Is(err, repository.ErrAlreadyWaitlisted) {
		t.Errorf("duplicate Join error = %v, want ErrAlreadyWaitlisted", err)
	}
	if _, err := e.waitlist.Join(context.Background(), 8, 100, 2); !errors.Is(err, repository.ErrForbidden) {
		t.Errorf("foreign Join error = %v, want ErrForbidden", err)
	}
}

func TestLeaveCancelsClaim(t *testing.T) {
	e := newTestEnv()
	e.fullSchedule(1, 1)
	e.addPatient(100, 7, model.IdentityExternal)

	o, err := e.waitlist.Join(context.Background(), 7, 100, 1)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	left, err := e.waitlist.Leave(context.Background(), 7, o.ID)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if left.Status != model.OrderCancelled {
		t.Errorf("left order status = %s, want CANCELLED", left.Status)
	}
	if entries, _ := e.queue.Entries(context.Background(), 1); len(entries) != 0 {
		t.Errorf("queue still holds %d entries after Leave", len(entries))
	}
	if _, err := e.waitlist.Leave(context.Background(), 7, o.ID); !errors.Is(err, repository.ErrInvalidTransition) {
		t.Errorf("double Leave error = %v, want ErrInvalidTransition", err)
	}
}

func TestCascadePromotesInFIFOOrder(t *testing.T) {
	e := newTestEnv()
	e.fullSchedule(1, 3)
	users := []uint64{7, 8, 9}
	var orders []*model.Order
	for i, u := range users {
		e.addPatient(uint64(100+i), u, model.IdentityExternal)
		e.clock = e.clock.Add(1) // strictly increasing join times
		o, err := e.waitlist.Join(context.Background(), u, uint64(100+i), 1)
		if err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
		orders = append(orders, o)
	}

	// Two slots free up at once.
	s, _ := e.schedules.get(1)
	s.RemainingSlots = 2
	e.schedules.put(s)

	n, err := e.waitlist.CascadeConvert(context.Background(), 1)
	if err != nil {
		t.Fatalf("CascadeConvert: %v", err)
	}
	if n != 2 {
		t.Fatalf("promoted %d, want 2", n)
	}
	for i, want := range []model.OrderStatus{model.OrderPending, model.OrderPending, model.OrderWaitlist} {
		got, _ := e.orders.Get(context.Background(), orders[i].ID)
		if got.Status != want {
			t.Errorf("order %d status = %s, want %s", i, got.Status, want)
		}
	}
	if got := e.remaining(1); got != 0 {
		t.Errorf("remaining slots = %d, want 0 after promotions", got)
	}
	// The loser of the capacity race stays at the head for the next release.
	entries, _ := e.queue.Entries(context.Background(), 1)
	if len(entries) != 1 || entries[0].OrderID != orders[2].ID {
		t.Errorf("queue = %+v, want only order %d at head", entries, orders[2].ID)
	}
}

func TestCascadeSkipsStaleEntries(t *testing.T) {
	e := newTestEnv()
	e.fullSchedule(1, 1)
	e.addPatient(100, 7, model.IdentityExternal)
	e.addPatient(101, 8, model.IdentityExternal)

	stale, err := e.waitlist.Join(context.Background(), 7, 100, 1)
	if err != nil {
		t.Fatalf("Join stale: %v", err)
	}
	e.clock = e.clock.Add(1)
	live, err := e.waitlist.Join(context.Background(), 8, 101, 1)
	if err != nil {
		t.Fatalf("Join live: %v", err)
	}

	// Cancel the head order behind the queue's back, as a crashed Leave would.
	o, _ := e.orders.Get(context.Background(), stale.ID)
	o.Status = model.OrderCancelled
	if err := e.orders.UpdateTx(context.Background(), nil, o); err != nil {
		t.Fatalf("UpdateTx: %v", err)
	}

	s, _ := e.schedules.get(1)
	s.RemainingSlots = 1
	e.schedules.put(s)

	n, err := e.waitlist.CascadeConvert(context.Background(), 1)
	if err != nil {
		t.Fatalf("CascadeConvert: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted %d, want 1 (stale entry discarded)", n)
	}
	got, _ := e.orders.Get(context.Background(), live.ID)
	if got.Status != model.OrderPending {
		t.Errorf("live order status = %s, want PENDING", got.Status)
	}
}

func TestWaitlistDegradesWithoutRedis(t *testing.T) {
	e := newTestEnv()
	e.queue.available = false
	e.fullSchedule(1, 1)
	e.addPatient(100, 7, model.IdentityExternal)
	e.addPatient(101, 8, model.IdentityExternal)

	first, err := e.waitlist.Join(context.Background(), 7, 100, 1)
	if err != nil {
		t.Fatalf("Join without redis: %v", err)
	}
	if first.WaitlistPosition == nil || *first.WaitlistPosition != 1 {
		t.Errorf("fallback position = %v, want 1", first.WaitlistPosition)
	}
	e.clock = e.clock.Add(1)
	if _, err := e.waitlist.Join(context.Background(), 8, 101, 1); err != nil {
		t.Fatalf("second Join without redis: %v", err)
	}

	s, _ := e.schedules.get(1)
	s.RemainingSlots = 1
	e.schedules.put(s)

	n, err := e.waitlist.CascadeConvert(context.Background(), 1)
	if err != nil {
		t.Fatalf("CascadeConvert without redis: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted %d, want 1 via durable fallback", n)
	}
	got, _ := e.orders.Get(context.Background(), first.ID)
	if got.Status != model.OrderPending {
		t.Errorf("head order status = %s, want PENDING (durable FIFO)", got.Status)
	}
}

func TestSyncPositionsMirrorsQueue(t *testing.T) {
	e := newTestEnv()
	e.fullSchedule(1, 1)
	e.addPatient(100, 7, model.IdentityExternal)
	e.addPatient(101, 8, model.IdentityExternal)

	first, _ := e.waitlist.Join(context.Background(), 7, 100, 1)
	e.clock = e.clock.Add(1)
	second, _ := e.waitlist.Join(context.Background(), 8, 101, 1)

	// The head leaves; the mirror is stale until the sync job runs.
	if _, err := e.waitlist.Leave(context.Background(), 7, first.ID); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	n, err := e.waitlist.SyncPositions(context.Background())
	if err != nil {
		t.Fatalf("SyncPositions: %v", err)
	}
	if n != 1 {
		t.Errorf("synced %d rows, want 1", n)
	}
	got, _ := e.orders.Get(context.Background(), second.ID)
	if got.WaitlistPosition == nil || *got.WaitlistPosition != 1 {
		t.Errorf("mirrored position = %v, want 1", got.WaitlistPosition)
	}
}
