package model

import (
	"testing"
	"time"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderPending, OrderConfirmed, true},
		{OrderPending, OrderCancelled, true},
		{OrderPending, OrderTimeout, true},
		{OrderPending, OrderCompleted, false},
		{OrderPending, OrderNoShow, false},
		{OrderConfirmed, OrderCancelled, true},
		{OrderConfirmed, OrderCompleted, true},
		{OrderConfirmed, OrderNoShow, true},
		{OrderConfirmed, OrderPending, false},
		{OrderWaitlist, OrderPending, true},
		{OrderWaitlist, OrderCancelled, true},
		{OrderWaitlist, OrderConfirmed, false},
		{OrderCancelled, OrderPending, false},
		{OrderTimeout, OrderPending, false},
		{OrderCompleted, OrderCancelled, false},
		{OrderNoShow, OrderConfirmed, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []OrderStatus{OrderCancelled, OrderTimeout, OrderCompleted, OrderNoShow}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []OrderStatus{OrderPending, OrderConfirmed, OrderWaitlist}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestConsumesSlot(t *testing.T) {
	if !OrderPending.ConsumesSlot() || !OrderConfirmed.ConsumesSlot() {
		t.Error("PENDING and CONFIRMED orders hold a slot")
	}
	for _, s := range []OrderStatus{OrderWaitlist, OrderCancelled, OrderTimeout, OrderCompleted, OrderNoShow} {
		if s.ConsumesSlot() {
			t.Errorf("%s must not hold a slot", s)
		}
	}
}

func TestQueueLess(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	early := &Order{Priority: 0, PassCount: 0, CreatedAt: base}
	late := &Order{Priority: 0, PassCount: 0, CreatedAt: base.Add(time.Minute)}
	passed := &Order{Priority: 0, PassCount: 1, CreatedAt: base}
	urgent := &Order{Priority: -1, PassCount: 2, CreatedAt: base.Add(time.Hour)}

	if !QueueLess(early, late) {
		t.Error("earlier arrival should be called first")
	}
	if !QueueLess(late, passed) {
		t.Error("a passed-over patient sorts behind fresh arrivals")
	}
	if !QueueLess(urgent, early) {
		t.Error("lower priority value overrides pass count and arrival")
	}
}

func TestScheduleStartsAt(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		section TimeSection
		hour    int
		minute  int
	}{
		{SectionMorning, 8, 0},
		{SectionAfternoon, 13, 30},
		{SectionEvening, 18, 0},
	}
	for _, tt := range tests {
		s := &Schedule{Date: day, TimeSection: tt.section}
		got := s.StartsAt()
		if got.Hour() != tt.hour || got.Minute() != tt.minute {
			t.Errorf("%s starts at %02d:%02d, want %02d:%02d",
				tt.section, got.Hour(), got.Minute(), tt.hour, tt.minute)
		}
	}
}
