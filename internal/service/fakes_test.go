package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/hospital-registration/internal/model"
	"github.com/iliyamo/hospital-registration/internal/queue"
	"github.com/iliyamo/hospital-registration/internal/repository"
)

// The fakes below satisfy the store interfaces with mutex-guarded in-memory
// state so the services can be exercised without MySQL or Redis.  The fake
// transaction runner passes a nil *sql.Tx; the fakes ignore it.

type fakeTx struct{}

func (fakeTx) RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error { return fn(nil) }

type fakeSchedules struct {
	mu   sync.Mutex
	rows map[uint64]*model.Schedule
}

func newFakeSchedules() *fakeSchedules {
	return &fakeSchedules{rows: make(map[uint64]*model.Schedule)}
}

func (f *fakeSchedules) put(s *model.Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.rows[s.ID] = &cp
}

func (f *fakeSchedules) get(id uint64) (*model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSchedules) GetTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (*model.Schedule, error) {
	return f.get(id)
}

func (f *fakeSchedules) Get(ctx context.Context, id uint64) (*model.Schedule, error) {
	return f.get(id)
}

// fakeLedger mutates capacity on the backing fakeSchedules under one lock,
// mirroring the guarded UPDATE semantics of the SQL ledger.
type fakeLedger struct {
	schedules *fakeSchedules
}

func (f *fakeLedger) ReserveTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) error {
	f.schedules.mu.Lock()
	defer f.schedules.mu.Unlock()
	s, ok := f.schedules.rows[scheduleID]
	if !ok || s.Status != model.ScheduleNormal || s.RemainingSlots <= 0 {
		return repository.ErrExhausted
	}
	s.RemainingSlots--
	return nil
}

func (f *fakeLedger) ReleaseTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) error {
	f.schedules.mu.Lock()
	defer f.schedules.mu.Unlock()
	s, ok := f.schedules.rows[scheduleID]
	if !ok || s.RemainingSlots >= s.TotalSlots {
		return fmt.Errorf("release on schedule %d without matching reserve", scheduleID)
	}
	s.RemainingSlots++
	return nil
}

type fakeOrders struct {
	mu        sync.Mutex
	rows      map[uint64]*model.Order
	nextID    uint64
	schedules *fakeSchedules
}

func newFakeOrders(schedules *fakeSchedules) *fakeOrders {
	return &fakeOrders{rows: make(map[uint64]*model.Order), nextID: 1, schedules: schedules}
}

func (f *fakeOrders) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = f.nextID
	f.nextID++
	cp := *o
	f.rows[o.ID] = &cp
	return nil
}

func (f *fakeOrders) get(id uint64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) GetTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (*model.Order, error) {
	return f.get(id)
}

func (f *fakeOrders) Get(ctx context.Context, id uint64) (*model.Order, error) {
	return f.get(id)
}

func (f *fakeOrders) UpdateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[o.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *o
	f.rows[o.ID] = &cp
	return nil
}

func (f *fakeOrders) GetActiveOnScheduleTx(ctx context.Context, tx *sql.Tx, patientID, scheduleID uint64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.rows {
		if o.PatientID == patientID && o.ScheduleID == scheduleID && o.Active() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeOrders) CountActiveInWindowTx(ctx context.Context, tx *sql.Tx, patientID uint64, from, to time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules.mu.Lock()
	defer f.schedules.mu.Unlock()
	n := 0
	for _, o := range f.rows {
		if o.PatientID != patientID || !o.Active() {
			continue
		}
		s, ok := f.schedules.rows[o.ScheduleID]
		if !ok {
			continue
		}
		if !s.Date.Before(from) && !s.Date.After(to) {
			n++
		}
	}
	return n, nil
}

func (f *fakeOrders) CallingExistsTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.rows {
		if o.ScheduleID == scheduleID && o.Status == model.OrderConfirmed && o.IsCalling {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOrders) SelectNextForCallTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (*model.Order, error) {
	confirmed, _ := f.ListConfirmedBySchedule(ctx, scheduleID)
	for _, o := range confirmed {
		if !o.IsCalling {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeOrders) listBySchedule(scheduleID uint64, status model.OrderStatus) []*model.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for _, o := range f.rows {
		if o.ScheduleID == scheduleID && o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeOrders) ListConfirmedBySchedule(ctx context.Context, scheduleID uint64) ([]*model.Order, error) {
	out := f.listBySchedule(scheduleID, model.OrderConfirmed)
	sort.Slice(out, func(i, j int) bool { return model.QueueLess(out[i], out[j]) })
	return out, nil
}

func (f *fakeOrders) ListWaitlistBySchedule(ctx context.Context, scheduleID uint64) ([]*model.Order, error) {
	out := f.listBySchedule(scheduleID, model.OrderWaitlist)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOrders) CountBySchedule(ctx context.Context, scheduleID uint64, status model.OrderStatus) (int, error) {
	return len(f.listBySchedule(scheduleID, status)), nil
}

func (f *fakeOrders) ListTimedOutIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for _, o := range f.rows {
		if o.Status == model.OrderPending && o.PaymentStatus == model.PaymentPending && !o.CreatedAt.After(cutoff) {
			ids = append(ids, o.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeOrders) SetWaitlistPosition(ctx context.Context, orderID uint64, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.rows[orderID]
	if !ok || o.Status != model.OrderWaitlist {
		return nil
	}
	p := position
	o.WaitlistPosition = &p
	return nil
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID uint64) ([]*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for _, o := range f.rows {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakePatients struct {
	rows map[uint64]*model.Patient
}

func (f *fakePatients) Get(ctx context.Context, id uint64) (*model.Patient, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// fakePrices answers the hierarchy lookup with one fixed value (or nil).
type fakePrices struct {
	cents *int64
}

func (f *fakePrices) Resolve(ctx context.Context, slotType model.SlotType, doctorID, clinicID, departmentID uint64) (*int64, error) {
	if f.cents == nil {
		return nil, nil
	}
	v := *f.cents
	return &v, nil
}

type fakePolicy struct {
	maxPass     int
	cancelHours int
	quotaWindow int
	quotaMax    int
}

func defaultPolicy() *fakePolicy {
	return &fakePolicy{maxPass: 3, cancelHours: 2, quotaWindow: 8, quotaMax: 10}
}

func (f *fakePolicy) MaxPassCount(ctx context.Context, doctorID uint64) (int, error) {
	return f.maxPass, nil
}
func (f *fakePolicy) CancelHoursBefore(ctx context.Context, clinicID uint64) (int, error) {
	return f.cancelHours, nil
}
func (f *fakePolicy) QuotaWindowDays(ctx context.Context) (int, error) { return f.quotaWindow, nil }
func (f *fakePolicy) QuotaMaxOrders(ctx context.Context) (int, error) { return f.quotaMax, nil }

// fakeQueue is an in-memory WaitQueue with a switchable availability flag so
// tests can exercise the durable fallback path.
type fakeQueue struct {
	mu        sync.Mutex
	available bool
	lists     map[uint64][]repository.WaitEntry
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{available: true, lists: make(map[uint64][]repository.WaitEntry)}
}

func (f *fakeQueue) Available() bool { return f.available }

func (f *fakeQueue) Append(ctx context.Context, scheduleID uint64, e repository.WaitEntry) (int, error) {
	if !f.available {
		return 0, repository.ErrQueueUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[scheduleID] = append(f.lists[scheduleID], e)
	return len(f.lists[scheduleID]), nil
}

func (f *fakeQueue) PopHead(ctx context.Context, scheduleID uint64) (*repository.WaitEntry, error) {
	if !f.available {
		return nil, repository.ErrQueueUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[scheduleID]
	if len(list) == 0 {
		return nil, nil
	}
	head := list[0]
	f.lists[scheduleID] = list[1:]
	return &head, nil
}

func (f *fakeQueue) PushFront(ctx context.Context, scheduleID uint64, e repository.WaitEntry) error {
	if !f.available {
		return repository.ErrQueueUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[scheduleID] = append([]repository.WaitEntry{e}, f.lists[scheduleID]...)
	return nil
}

func (f *fakeQueue) Remove(ctx context.Context, scheduleID, patientID uint64) (bool, error) {
	if !f.available {
		return false, repository.ErrQueueUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[scheduleID]
	kept := list[:0:0]
	removed := false
	for _, e := range list {
		if e.PatientID == patientID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	f.lists[scheduleID] = kept
	return removed, nil
}

func (f *fakeQueue) Entries(ctx context.Context, scheduleID uint64) ([]repository.WaitEntry, error) {
	if !f.available {
		return nil, repository.ErrQueueUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.WaitEntry(nil), f.lists[scheduleID]...), nil
}

func (f *fakeQueue) QueuedScheduleIDs(ctx context.Context) ([]uint64, error) {
	if !f.available {
		return nil, repository.ErrQueueUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for id, list := range f.lists {
		if len(list) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// recordingNotifier captures events in memory.
type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.NotificationEvent
}

func (r *recordingNotifier) Notify(event queue.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) byTemplate(key string) []queue.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queue.NotificationEvent
	for _, e := range r.events {
		if e.TemplateKey == key {
			out = append(out, e)
		}
	}
	return out
}

// testEnv wires one full service set over the fakes.
type testEnv struct {
	clock     time.Time
	orders    *fakeOrders
	schedules *fakeSchedules
	patients  *fakePatients
	ledger    *fakeLedger
	queue     *fakeQueue
	policy    *fakePolicy
	notes     *recordingNotifier
	charges   []int64

	booking      *Booking
	waitlist     *Waitlist
	consultation *Consultation
}

func newTestEnv() *testEnv {
	e := &testEnv{
		clock:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		schedules: newFakeSchedules(),
		patients:  &fakePatients{rows: make(map[uint64]*model.Patient)},
		queue:     newFakeQueue(),
		policy:    defaultPolicy(),
		notes:     &recordingNotifier{},
	}
	e.orders = newFakeOrders(e.schedules)
	e.ledger = &fakeLedger{schedules: e.schedules}
	now := func() time.Time { return e.clock }
	pricer := NewPricer(&fakePrices{})
	gateway := GatewayFunc(func(ctx context.Context, orderNo string, amountCents int64) error {
		e.charges = append(e.charges, amountCents)
		return nil
	})

	e.waitlist = NewWaitlist(WaitlistDeps{
		Tx: fakeTx{}, Orders: e.orders, Schedules: e.schedules, Patients: e.patients,
		Ledger: e.ledger, Pricer: pricer, Queue: e.queue, Notifier: e.notes, Now: now,
	})
	e.booking = NewBooking(BookingDeps{
		Tx: fakeTx{}, Orders: e.orders, Schedules: e.schedules, Patients: e.patients,
		Ledger: e.ledger, Pricer: pricer, Policy: e.policy, Gateway: gateway,
		Cascade: e.waitlist, Notifier: e.notes, PaymentTimeout: 30 * time.Minute, Now: now,
	})
	e.consultation = NewConsultation(ConsultationDeps{
		Tx: fakeTx{}, Orders: e.orders, Schedules: e.schedules,
		Policy: e.policy, Notifier: e.notes, Now: now,
	})
	return e
}

// addSchedule seeds a NORMAL schedule two days out with the given capacity.
func (e *testEnv) addSchedule(id uint64, capacity int) *model.Schedule {
	s := &model.Schedule{
		ID:             id,
		DoctorID:       10,
		ClinicID:       20,
		DepartmentID:   30,
		Date:           e.clock.AddDate(0, 0, 2),
		TimeSection:    model.SectionMorning,
		SlotType:       model.SlotNormal,
		TotalSlots:     capacity,
		RemainingSlots: capacity,
		Status:         model.ScheduleNormal,
	}
	e.schedules.put(s)
	return s
}

// addPatient seeds a patient owned by the given account.
func (e *testEnv) addPatient(id, userID uint64, identity model.Identity) {
	e.patients.rows[id] = &model.Patient{ID: id, UserID: userID, Name: "patient", Identity: identity}
}

func (e *testEnv) remaining(scheduleID uint64) int {
	s, _ := e.schedules.get(scheduleID)
	return s.RemainingSlots
}
