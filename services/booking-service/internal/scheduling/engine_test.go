package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/storage"
)

var (
	customer  = model.User{ID: "c1", Name: "Carla", Email: "carla@example.com"}
	customer2 = model.User{ID: "c2", Name: "Davi", Email: "davi@example.com"}
	provider  = model.User{ID: "p1", Name: "Paulo", Email: "paulo@example.com", Provider: true}
)

type recordingQueue struct {
	mu   sync.Mutex
	keys []string
	jobs []CancellationJob
	err  error
}

func (q *recordingQueue) EnqueueIn(_ context.Context, _ db.Querier, key string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.keys = append(q.keys, key)
	q.jobs = append(q.jobs, payload.(CancellationJob))
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type recordingNotifier struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (n *recordingNotifier) NotifyBooking(_ context.Context, _ model.Appointment, customerName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.names = append(n.names, customerName)
	return nil
}

type fixture struct {
	engine   *Engine
	ledger   *storage.MemoryLedger
	clock    *clock.Manual
	queue    *recordingQueue
	notifier *recordingNotifier
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	users := []model.User{customer, customer2, provider}
	f := &fixture{
		ledger:   storage.NewMemoryLedger(users...),
		clock:    clock.NewManual(now),
		queue:    &recordingQueue{},
		notifier: &recordingNotifier{},
	}
	f.engine = NewEngine(Dependencies{
		Ledger:    f.ledger,
		Directory: directory.NewStatic(users...),
		Clock:     f.clock,
		Notifier:  f.notifier,
		Jobs:      f.queue,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{CancelLeadTime: 2 * time.Hour, PageSize: 20})
	return f
}

func (f *fixture) mustBook(t *testing.T, customerID string, at time.Time) model.Appointment {
	t.Helper()
	res, err := f.engine.Book(context.Background(), BookRequest{CustomerID: customerID, ProviderID: provider.ID, Date: at})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	return res.Appointment
}

func TestBookGuards(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	slot := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		req  BookRequest
		want error
	}{
		{"self booking", BookRequest{CustomerID: provider.ID, ProviderID: provider.ID, Date: slot}, ErrSelfBooking},
		{"self booking in the past", BookRequest{CustomerID: provider.ID, ProviderID: provider.ID, Date: now.Add(-48 * time.Hour)}, ErrSelfBooking},
		{"customer is not a provider", BookRequest{CustomerID: customer.ID, ProviderID: customer2.ID, Date: slot}, ErrNotAProvider},
		{"unknown provider", BookRequest{CustomerID: customer.ID, ProviderID: "ghost", Date: slot}, ErrNotAProvider},
		{"past hour start", BookRequest{CustomerID: customer.ID, ProviderID: provider.ID, Date: now.Add(15 * time.Minute)}, ErrPastDate},
		{"yesterday", BookRequest{CustomerID: customer.ID, ProviderID: provider.ID, Date: slot.Add(-24 * time.Hour)}, ErrPastDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, now)
			_, err := f.engine.Book(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var rej *RejectionError
			if !errors.As(err, &rej) {
				t.Fatalf("expected *RejectionError, got %T", err)
			}
		})
	}
}

func TestBookPastDateBoundary(t *testing.T) {
	hour := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	f := newFixture(t, hour)
	res, err := f.engine.Book(context.Background(), BookRequest{CustomerID: customer.ID, ProviderID: provider.ID, Date: hour.Add(45 * time.Minute)})
	if err != nil {
		t.Fatalf("slot start equal to now must be accepted: %v", err)
	}
	if !res.Appointment.ScheduledAt.Equal(hour) {
		t.Fatalf("scheduled_at = %s, want %s", res.Appointment.ScheduledAt, hour)
	}

	f = newFixture(t, hour.Add(time.Nanosecond))
	if _, err := f.engine.Book(context.Background(), BookRequest{CustomerID: customer.ID, ProviderID: provider.ID, Date: hour.Add(45 * time.Minute)}); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate just after the hour start, got %v", err)
	}
}

func TestBookThenConflict(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	slot := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	res, err := f.engine.Book(context.Background(), BookRequest{CustomerID: customer.ID, ProviderID: provider.ID, Date: slot.Add(20 * time.Minute)})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	a := res.Appointment
	if a.ID == "" || a.CanceledAt != nil || !a.ScheduledAt.Equal(slot) || !a.CreatedAt.Equal(now) {
		t.Fatalf("unexpected appointment: %+v", a)
	}
	if res.NotificationErr != nil {
		t.Fatalf("unexpected notification error: %v", res.NotificationErr)
	}
	if len(f.notifier.names) != 1 || f.notifier.names[0] != customer.Name {
		t.Fatalf("expected provider notified with customer name, got %v", f.notifier.names)
	}

	_, err = f.engine.Book(context.Background(), BookRequest{CustomerID: customer2.ID, ProviderID: provider.ID, Date: slot})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	var rej *RejectionError
	if !errors.As(err, &rej) || !rej.Slot.Equal(slot) || rej.ProviderID != provider.ID {
		t.Fatalf("rejection should carry the slot: %+v", rej)
	}
}

func TestBookConcurrentSingleWinner(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	slot := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cust := customer.ID
			if i%2 == 1 {
				cust = customer2.ID
			}
			_, err := f.engine.Book(context.Background(), BookRequest{CustomerID: cust, ProviderID: provider.ID, Date: slot})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins=%d conflicts=%d, want 1 and %d", wins, conflicts, n-1)
	}
	slots, err := f.ledger.ListProviderSlots(context.Background(), provider.ID, slot, slot.Add(time.Hour))
	if err != nil || len(slots) != 1 {
		t.Fatalf("expected exactly one active appointment, got %v, %v", slots, err)
	}
}

func TestBookNotificationFailureIsPartialSuccess(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.notifier.err = errors.New("notifications table locked")

	res, err := f.engine.Book(context.Background(), BookRequest{CustomerID: customer.ID, ProviderID: provider.ID, Date: now.Add(3 * time.Hour)})
	if err != nil {
		t.Fatalf("booking must succeed when notification fails: %v", err)
	}
	var nerr *NotificationError
	if !errors.As(res.NotificationErr, &nerr) || nerr.AppointmentID != res.Appointment.ID {
		t.Fatalf("expected NotificationError for the appointment, got %v", res.NotificationErr)
	}
	if _, err := f.ledger.FindByID(context.Background(), res.Appointment.ID); err != nil {
		t.Fatalf("appointment must stay durable: %v", err)
	}
}

func TestCancelScenarios(t *testing.T) {
	slot := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	t.Run("three hours before succeeds once", func(t *testing.T) {
		f := newFixture(t, slot.Add(-24*time.Hour))
		a := f.mustBook(t, customer.ID, slot)

		f.clock.Set(slot.Add(-3 * time.Hour))
		got, err := f.engine.Cancel(context.Background(), customer.ID, a.ID)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if got.CanceledAt == nil || !got.CanceledAt.Equal(slot.Add(-3*time.Hour)) {
			t.Fatalf("canceled_at = %v", got.CanceledAt)
		}
		if f.queue.count() != 1 || f.queue.keys[0] != CancellationJobKey {
			t.Fatalf("expected one cancellation job, got %v", f.queue.keys)
		}
		job := f.queue.jobs[0]
		if job.Appointment.ID != a.ID || job.Appointment.CanceledAt == nil {
			t.Fatalf("job must carry the canceled appointment: %+v", job.Appointment)
		}
		if job.Provider.Email != provider.Email || job.Provider.Name != provider.Name || job.Customer.Name != customer.Name {
			t.Fatalf("job must carry provider and customer details: %+v", job)
		}

		_, err = f.engine.Cancel(context.Background(), customer.ID, a.ID)
		if !errors.Is(err, ErrAlreadyCanceled) {
			t.Fatalf("expected ErrAlreadyCanceled, got %v", err)
		}
		if f.queue.count() != 1 {
			t.Fatalf("second cancel must not enqueue, got %d jobs", f.queue.count())
		}
	})

	t.Run("one hour before is too late", func(t *testing.T) {
		f := newFixture(t, slot.Add(-24*time.Hour))
		a := f.mustBook(t, customer.ID, slot)

		f.clock.Set(slot.Add(-time.Hour))
		if _, err := f.engine.Cancel(context.Background(), customer.ID, a.ID); !errors.Is(err, ErrTooLate) {
			t.Fatalf("expected ErrTooLate, got %v", err)
		}
		stored, _ := f.ledger.FindByID(context.Background(), a.ID)
		if stored.CanceledAt != nil || f.queue.count() != 0 {
			t.Fatalf("appointment must be unchanged and no job enqueued")
		}
	})

	t.Run("exactly at the deadline is too late", func(t *testing.T) {
		f := newFixture(t, slot.Add(-24*time.Hour))
		a := f.mustBook(t, customer.ID, slot)

		f.clock.Set(slot.Add(-2 * time.Hour))
		if _, err := f.engine.Cancel(context.Background(), customer.ID, a.ID); !errors.Is(err, ErrTooLate) {
			t.Fatalf("expected ErrTooLate at the boundary, got %v", err)
		}
		f.clock.Set(slot.Add(-2*time.Hour - time.Nanosecond))
		if _, err := f.engine.Cancel(context.Background(), customer.ID, a.ID); err != nil {
			t.Fatalf("cancel just before the boundary must succeed: %v", err)
		}
	})

	t.Run("other customer is forbidden", func(t *testing.T) {
		f := newFixture(t, slot.Add(-24*time.Hour))
		a := f.mustBook(t, customer.ID, slot)
		if _, err := f.engine.Cancel(context.Background(), customer2.ID, a.ID); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		f := newFixture(t, slot.Add(-24*time.Hour))
		_, err := f.engine.Cancel(context.Background(), customer.ID, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("enqueue failure rolls the cancel back", func(t *testing.T) {
		f := newFixture(t, slot.Add(-24*time.Hour))
		a := f.mustBook(t, customer.ID, slot)
		f.queue.err = errors.New("outbox unavailable")
		if _, err := f.engine.Cancel(context.Background(), customer.ID, a.ID); !errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("expected ErrStorageUnavailable, got %v", err)
		}
		stored, _ := f.ledger.FindByID(context.Background(), a.ID)
		if stored.CanceledAt != nil {
			t.Fatal("appointment must stay active when the job cannot be enqueued")
		}

		f.queue.err = nil
		if _, err := f.engine.Cancel(context.Background(), customer.ID, a.ID); err != nil {
			t.Fatalf("retry after outbox recovers: %v", err)
		}
		if f.queue.count() != 1 {
			t.Fatalf("expected one job after retry, got %d", f.queue.count())
		}
	})
}

func TestCancelConcurrentSingleWinner(t *testing.T) {
	slot := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	f := newFixture(t, slot.Add(-24*time.Hour))
	a := f.mustBook(t, customer.ID, slot)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, already := 0, 0
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.Cancel(context.Background(), customer.ID, a.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyCanceled):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || already != n-1 {
		t.Fatalf("wins = %d, already canceled = %d, want 1 and %d", wins, already, n-1)
	}
	if f.queue.count() != 1 {
		t.Fatalf("expected exactly one cancellation job, got %d", f.queue.count())
	}
}

func TestCanceledSlotCanBeRebooked(t *testing.T) {
	slot := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	f := newFixture(t, slot.Add(-24*time.Hour))
	a := f.mustBook(t, customer.ID, slot)
	if _, err := f.engine.Cancel(context.Background(), customer.ID, a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if b := f.mustBook(t, customer2.ID, slot); b.ID == a.ID {
		t.Fatal("rebooking must create a new appointment")
	}
}

type brokenLedger struct{ *storage.MemoryLedger }

func (brokenLedger) IsSlotTaken(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("connection reset")
}

func (brokenLedger) FindByID(context.Context, string) (model.Appointment, error) {
	return model.Appointment{}, errors.New("connection reset")
}

func TestStorageFailuresPropagate(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	users := []model.User{customer, provider}
	e := NewEngine(Dependencies{
		Ledger:    brokenLedger{storage.NewMemoryLedger(users...)},
		Directory: directory.NewStatic(users...),
		Clock:     clock.NewManual(now),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{})

	if _, err := e.Book(context.Background(), BookRequest{CustomerID: customer.ID, ProviderID: provider.ID, Date: now.Add(2 * time.Hour)}); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from Book, got %v", err)
	}
	if _, err := e.Cancel(context.Background(), customer.ID, "a1"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from Cancel, got %v", err)
	}
}

func TestListActiveFlagsAndPaging(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	for i := 0; i < 25; i++ {
		f.mustBook(t, customer.ID, now.Add(time.Duration(i+1)*time.Hour))
	}
	f.clock.Set(now.Add(90 * time.Minute))

	page1, err := f.engine.ListActive(context.Background(), customer.ID, 1)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(page1) != 20 {
		t.Fatalf("page 1 size = %d, want 20", len(page1))
	}
	if !page1[0].Past || page1[0].Cancelable {
		t.Fatalf("10:00 slot at 10:30 should be past and not cancelable: %+v", page1[0])
	}
	if page1[1].Past || page1[1].Cancelable {
		t.Fatalf("11:00 slot at 10:30 is inside the lead window: %+v", page1[1])
	}
	if !page1[3].Cancelable {
		t.Fatalf("13:00 slot at 10:30 should be cancelable: %+v", page1[3])
	}
	if page1[0].Provider.Name != provider.Name {
		t.Fatalf("missing provider projection: %+v", page1[0].Provider)
	}

	page2, err := f.engine.ListActive(context.Background(), customer.ID, 2)
	if err != nil || len(page2) != 5 {
		t.Fatalf("page 2 = %d items, %v", len(page2), err)
	}
}

func TestAvailability(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.mustBook(t, customer.ID, time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC))

	slots, err := f.engine.Availability(context.Background(), provider.ID, now)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(slots) != 12 {
		t.Fatalf("expected 12 hourly slots from 08:00 to 19:00, got %d", len(slots))
	}
	byHour := map[int]bool{}
	for _, s := range slots {
		byHour[s.Start.Hour()] = s.Available
	}
	if byHour[8] || byHour[9] || !byHour[10] || byHour[11] || !byHour[19] {
		t.Fatalf("unexpected availability: %v", byHour)
	}

	if _, err := f.engine.Availability(context.Background(), customer.ID, now); !errors.Is(err, ErrNotAProvider) {
		t.Fatalf("expected ErrNotAProvider, got %v", err)
	}
}
