package model

import "time"

// ScheduleStatus enumerates the lifecycle of a schedule.  Suspended
// schedules accept no new bookings.
type ScheduleStatus string

const (
	ScheduleNormal    ScheduleStatus = "NORMAL"
	ScheduleSuspended ScheduleStatus = "SUSPENDED"
)

// SlotType is the registration category of a schedule.  Orders may only be
// rescheduled between schedules of the same doctor, clinic and slot type.
type SlotType string

const (
	SlotNormal  SlotType = "NORMAL"
	SlotExpert  SlotType = "EXPERT"
	SlotSpecial SlotType = "SPECIAL"
)

// TimeSection labels the daily window of a schedule.
type TimeSection string

const (
	SectionMorning   TimeSection = "MORNING"
	SectionAfternoon TimeSection = "AFTERNOON"
	SectionEvening   TimeSection = "EVENING"
)

// sectionStart maps a time section to its default session start clock time.
var sectionStart = map[TimeSection]struct{ hour, minute int }{
	SectionMorning:   {8, 0},
	SectionAfternoon: {13, 30},
	SectionEvening:   {18, 0},
}

// StartOn returns the session start instant of the section on the given day.
// Unknown sections fall back to the evening start.
func (s TimeSection) StartOn(day time.Time) time.Time {
	hm, ok := sectionStart[s]
	if !ok {
		hm = sectionStart[SectionEvening]
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hm.hour, hm.minute, 0, 0, day.Location())
}

// Schedule is one bookable doctor+clinic+date+section window with finite
// capacity.  It corresponds to a row in the `schedules` table.
//
// Fields:
//  ID            : primary key identifier.
//  DoctorID      : doctor on duty.
//  ClinicID      : clinic where the session takes place.
//  DepartmentID  : owning department (used by the price fallback chain).
//  Date          : calendar day of the session.
//  TimeSection   : morning/afternoon/evening window.
//  SlotType      : registration category.
//  TotalSlots    : configured capacity.
//  RemainingSlots: live remaining capacity; mutated only by the slot ledger.
//  PriceCents    : explicit fee override in cents (nil means the resolution chain applies).
//  Status        : NORMAL or SUSPENDED.
//  CreatedAt     : creation timestamp.
type Schedule struct {
	ID             uint64         // schedules.id
	DoctorID       uint64         // schedules.doctor_id
	ClinicID       uint64         // schedules.clinic_id
	DepartmentID   uint64         // schedules.department_id
	Date           time.Time      // schedules.date
	TimeSection    TimeSection    // schedules.time_section
	SlotType       SlotType       // schedules.slot_type
	TotalSlots     int            // schedules.total_slots
	RemainingSlots int            // schedules.remaining_slots
	PriceCents     *int64         // schedules.price_cents (nullable)
	Status         ScheduleStatus // schedules.status
	CreatedAt      time.Time      // schedules.created_at
}

// StartsAt returns the session start instant derived from Date and TimeSection.
// The cancellation cutoff counts backwards from this point.
func (s *Schedule) StartsAt() time.Time {
	return s.TimeSection.StartOn(s.Date)
}

// SameWindowAs reports whether the other schedule shares doctor, clinic and
// slot type, which is the precondition for rescheduling between the two.
func (s *Schedule) SameWindowAs(o *Schedule) bool {
	return s.DoctorID == o.DoctorID && s.ClinicID == o.ClinicID && s.SlotType == o.SlotType
}
