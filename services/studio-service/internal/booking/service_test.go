package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/entitlements"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/timeofday"
)

// memStore is an in-memory Store. InTx works on a copy of the state and
// swaps it in only when fn succeeds.
type memStore struct {
	state
	seq        int
	locked     []string
	createErr  error
	failListOn string
}

type state struct {
	windows     map[string][]model.WeeklyWindow
	unavailable map[string]model.UnavailableSlot
	sessions    map[string]model.Session
	packages    map[string]model.Package
	events      map[string]bool
}

func newMemStore() *memStore {
	return &memStore{state: state{
		windows:     make(map[string][]model.WeeklyWindow),
		unavailable: make(map[string]model.UnavailableSlot),
		sessions:    make(map[string]model.Session),
		packages:    make(map[string]model.Package),
		events:      make(map[string]bool),
	}}
}

func (s state) clone() state {
	c := state{
		windows:     make(map[string][]model.WeeklyWindow, len(s.windows)),
		unavailable: make(map[string]model.UnavailableSlot, len(s.unavailable)),
		sessions:    make(map[string]model.Session, len(s.sessions)),
		packages:    make(map[string]model.Package, len(s.packages)),
		events:      make(map[string]bool, len(s.events)),
	}
	for k, v := range s.windows {
		c.windows[k] = append([]model.WeeklyWindow(nil), v...)
	}
	for k, v := range s.unavailable {
		c.unavailable[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{store: m, state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memStore) ListWeeklyAvailability(_ context.Context, trainerID string) ([]model.WeeklyWindow, error) {
	return m.state.listWeekly(trainerID), nil
}

func (m *memStore) ListUnavailable(_ context.Context, trainerID, date string) ([]model.UnavailableSlot, error) {
	return m.state.listUnavailable(trainerID, date), nil
}

func (m *memStore) ListSessions(_ context.Context, role model.Role, personID, date string) ([]model.Session, error) {
	if m.failListOn == personID {
		return nil, errors.New("connection reset")
	}
	return m.state.listSessions(role, personID, date), nil
}

func (m *memStore) GetSession(_ context.Context, id string) (model.Session, error) {
	return m.state.getSession(id)
}

func (m *memStore) ListPackages(_ context.Context, clientID string, t model.SessionType) ([]model.Package, error) {
	return m.state.listPackages(clientID, t), nil
}

func (s state) listWeekly(trainerID string) []model.WeeklyWindow {
	return append([]model.WeeklyWindow(nil), s.windows[trainerID]...)
}

func (s state) listUnavailable(trainerID, date string) []model.UnavailableSlot {
	var out []model.UnavailableSlot
	for _, u := range s.unavailable {
		if u.TrainerID == trainerID && (date == "" || u.Date == date) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s state) listSessions(role model.Role, personID, date string) []model.Session {
	var out []model.Session
	for _, sess := range s.sessions {
		if sess.PersonID(role) == personID && sess.Date == date {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (s state) getSession(id string) (model.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return sess, nil
}

func (s state) listPackages(clientID string, t model.SessionType) []model.Package {
	var out []model.Package
	for _, p := range s.packages {
		if p.ClientID == clientID && (t == "" || p.PackageType == t) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTx struct {
	store *memStore
	state
}

func (t *memTx) ListWeeklyAvailability(_ context.Context, trainerID string) ([]model.WeeklyWindow, error) {
	return t.state.listWeekly(trainerID), nil
}

func (t *memTx) ListUnavailable(_ context.Context, trainerID, date string) ([]model.UnavailableSlot, error) {
	return t.state.listUnavailable(trainerID, date), nil
}

func (t *memTx) ListSessions(_ context.Context, role model.Role, personID, date string) ([]model.Session, error) {
	if t.store.failListOn == personID {
		return nil, errors.New("connection reset")
	}
	return t.state.listSessions(role, personID, date), nil
}

func (t *memTx) GetSession(_ context.Context, id string) (model.Session, error) {
	return t.state.getSession(id)
}

func (t *memTx) ListPackages(_ context.Context, clientID string, pt model.SessionType) ([]model.Package, error) {
	return t.state.listPackages(clientID, pt), nil
}

func (t *memTx) LockParties(_ context.Context, ids ...string) error {
	t.store.locked = append(t.store.locked, ids...)
	return nil
}

func (t *memTx) GetSessionForUpdate(_ context.Context, id string) (model.Session, error) {
	return t.state.getSession(id)
}

func (t *memTx) CreateSession(_ context.Context, s *model.Session) error {
	if t.store.createErr != nil {
		return t.store.createErr
	}
	s.ID = t.store.nextID("sess")
	t.sessions[s.ID] = *s
	return nil
}

func (t *memTx) UpdateSession(_ context.Context, s *model.Session) error {
	if _, ok := t.sessions[s.ID]; !ok {
		return model.ErrNotFound
	}
	t.sessions[s.ID] = *s
	return nil
}

func (t *memTx) GetPackageForUpdate(_ context.Context, id string) (model.Package, error) {
	p, ok := t.packages[id]
	if !ok {
		return model.Package{}, model.ErrNotFound
	}
	return p, nil
}

func (t *memTx) UpdatePackageUsage(_ context.Context, id string, used int, status model.PackageStatus) error {
	p := t.packages[id]
	p.SessionsUsed, p.Status = used, status
	t.packages[id] = p
	return nil
}

func (t *memTx) CreatePackage(_ context.Context, p *model.Package) error {
	p.ID = t.store.nextID("pkg")
	t.packages[p.ID] = *p
	return nil
}

func (t *memTx) ReplaceWeeklyAvailability(_ context.Context, trainerID string, windows []model.WeeklyWindow) error {
	t.windows[trainerID] = append([]model.WeeklyWindow(nil), windows...)
	return nil
}

func (t *memTx) GetUnavailable(_ context.Context, id string) (model.UnavailableSlot, error) {
	u, ok := t.unavailable[id]
	if !ok {
		return model.UnavailableSlot{}, model.ErrNotFound
	}
	return u, nil
}

func (t *memTx) CreateUnavailable(_ context.Context, u *model.UnavailableSlot) error {
	u.ID = t.store.nextID("un")
	t.unavailable[u.ID] = *u
	return nil
}

func (t *memTx) DeleteUnavailable(_ context.Context, id string) error {
	delete(t.unavailable, id)
	return nil
}

func (t *memTx) MarkProviderEvent(_ context.Context, provider, eventID string) (bool, error) {
	key := provider + "/" + eventID
	if t.events[key] {
		return false, nil
	}
	t.events[key] = true
	return true, nil
}

type recordingNotifier struct {
	created, rescheduled, cancelled []string
	err                             error
}

func (n *recordingNotifier) BookingCreated(_ context.Context, s model.Session) error {
	n.created = append(n.created, s.ID)
	return n.err
}

func (n *recordingNotifier) Rescheduled(_ context.Context, s model.Session, _, _ model.Slot) error {
	n.rescheduled = append(n.rescheduled, s.ID)
	return n.err
}

func (n *recordingNotifier) Cancelled(_ context.Context, s model.Session) error {
	n.cancelled = append(n.cancelled, s.ID)
	return n.err
}

type recordingCalendar struct {
	events []model.CalendarEvent
	failOn string
}

func (c *recordingCalendar) UpsertEvent(_ context.Context, personID string, ev model.CalendarEvent) (string, error) {
	if personID == c.failOn {
		return "", errors.New("calendar offline")
	}
	c.events = append(c.events, ev)
	return "evt-" + ev.SessionID, nil
}

type fakeLocker struct {
	held     map[string]bool
	unlocked []string
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.held[key] {
		return "", false, nil
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[key] = true
	return "tok-" + key, true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	if token != "tok-"+key {
		return fmt.Errorf("unlock %s with foreign token %q", key, token)
	}
	delete(l.held, key)
	l.unlocked = append(l.unlocked, key)
	return nil
}

// 2024-06-10 is a Monday; the clock sits a week earlier.
var testNow = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

const (
	client  = "c1"
	trainer = "t1"
	monday  = "2024-06-10"
)

var (
	clientCaller  = Caller{UserID: client, Role: model.RoleClient}
	trainerCaller = Caller{UserID: trainer, Role: model.RoleTrainer}
)

type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	calendar *recordingCalendar
	locker   *fakeLocker
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		calendar: &recordingCalendar{},
		locker:   &fakeLocker{},
	}
	f.store.windows[trainer] = []model.WeeklyWindow{
		{TrainerID: trainer, Weekday: time.Monday, StartTime: "09:00", EndTime: "12:00"},
	}
	f.store.windows["t2"] = []model.WeeklyWindow{
		{TrainerID: "t2", Weekday: time.Monday, StartTime: "09:00", EndTime: "12:00"},
	}
	f.svc = NewService(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		Locker:   f.locker,
		Notifier: f.notifier,
		Calendar: f.calendar,
		Clock:    func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) addPackage(p model.Package) {
	if p.Status == "" {
		p.Status = model.PackageActive
	}
	f.store.packages[p.ID] = p
}

func (f *fixture) addSession(s model.Session) {
	if s.Status == "" {
		s.Status = model.StatusConfirmed
	}
	if s.RescheduleStatus == "" {
		s.RescheduleStatus = model.RescheduleNone
	}
	f.store.sessions[s.ID] = s
}

func bookAt(start string) BookRequest {
	return BookRequest{ClientID: client, TrainerID: trainer, Type: model.SessionPersonal, Date: monday, StartTime: start}
}

func expectKind(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Kind, err)
	}
}

func TestBook_DebitsAndCancelCreditsBack(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10, SessionsUsed: 3})
	ctx := context.Background()

	res, err := f.svc.Book(ctx, clientCaller, bookAt("10:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.Session.EndTime != "11:00" || res.Session.PackageID != "p1" || res.Session.Status != model.StatusConfirmed {
		t.Fatalf("unexpected session %+v", res.Session)
	}
	if got := f.store.packages["p1"].SessionsUsed; got != 4 {
		t.Fatalf("expected 4 used after booking, got %d", got)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
	if len(f.notifier.created) != 1 || len(f.calendar.events) != 2 {
		t.Fatalf("expected one notification and two calendar events, got %d and %d", len(f.notifier.created), len(f.calendar.events))
	}
	if len(f.locker.unlocked) != 1 || f.locker.unlocked[0] != "trainer:t1:2024-06-10" {
		t.Fatalf("expected slot lock released, got %v", f.locker.unlocked)
	}

	res, err = f.svc.Cancel(ctx, clientCaller, res.Session.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Session.Status != model.StatusCancelled || res.Package == nil || res.Package.ID != "p1" {
		t.Fatalf("unexpected cancel result %+v", res)
	}
	if got := f.store.packages["p1"].SessionsUsed; got != 3 {
		t.Fatalf("expected 3 used after cancel, got %d", got)
	}
	if !f.calendar.events[len(f.calendar.events)-1].Cancelled {
		t.Fatal("expected calendar event marked cancelled")
	}

	res, err = f.svc.Cancel(ctx, clientCaller, res.Session.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !res.Unchanged {
		t.Fatal("expected second cancel to be a no-op")
	}
	if got := f.store.packages["p1"].SessionsUsed; got != 3 {
		t.Fatalf("second cancel must not credit again, got %d", got)
	}
	if len(f.notifier.cancelled) != 1 {
		t.Fatalf("expected one cancel notification, got %d", len(f.notifier.cancelled))
	}
}

func TestBook_ClientConflict(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: "t2", Date: monday, StartTime: "10:00", EndTime: "11:00", Type: model.SessionPersonal})

	_, err := f.svc.Book(context.Background(), clientCaller, bookAt("10:30"))
	expectKind(t, err, ErrClientConflict)
	if got := f.store.packages["p1"].SessionsUsed; got != 0 {
		t.Fatalf("rejected booking must not debit, got %d", got)
	}
}

func TestBook_TrainerConflict(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.addSession(model.Session{ID: "s1", ClientID: "c2", TrainerID: trainer, Date: monday, StartTime: "09:30", EndTime: "10:30", Status: model.StatusPending})

	_, err := f.svc.Book(context.Background(), clientCaller, bookAt("10:00"))
	expectKind(t, err, ErrTrainerConflict)
}

func TestBook_CancelledSessionDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.addSession(model.Session{ID: "s1", ClientID: "c2", TrainerID: trainer, Date: monday, StartTime: "10:00", EndTime: "11:00", Status: model.StatusCancelled})

	if _, err := f.svc.Book(context.Background(), clientCaller, bookAt("10:00")); err != nil {
		t.Fatalf("book: %v", err)
	}
}

func TestBook_EntitlementRejections(t *testing.T) {
	cases := []struct {
		name string
		pkgs []model.Package
		typ  model.SessionType
		want *Error
	}{
		{
			name: "exhausted virtual package",
			pkgs: []model.Package{{ID: "p1", ClientID: client, PackageType: model.SessionVirtual, SessionsIncluded: 8, SessionsUsed: 8}},
			typ:  model.SessionVirtual,
			want: ErrPackageExhausted,
		},
		{
			name: "no partner package",
			pkgs: []model.Package{{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 8}},
			typ:  model.SessionPartner,
			want: ErrNoPackage,
		},
		{
			name: "expired",
			pkgs: []model.Package{{ID: "p1", ClientID: client, PackageType: model.SessionGroup, SessionsIncluded: 8, ExpiryDate: &testNow}},
			typ:  model.SessionGroup,
			want: ErrPackageExpired,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			for _, p := range c.pkgs {
				f.addPackage(p)
			}
			req := bookAt("09:00")
			req.Type = c.typ
			_, err := f.svc.Book(context.Background(), clientCaller, req)
			expectKind(t, err, c.want)
			if len(f.store.sessions) != 0 {
				t.Fatalf("no session should be created, got %d", len(f.store.sessions))
			}
		})
	}
}

func TestBook_InvalidSlots(t *testing.T) {
	cases := []struct {
		name       string
		date       string
		start, end string
		want       *Error
	}{
		{"outside window", monday, "11:30", "12:30", ErrInvalidSlot},
		{"off step", monday, "09:15", "10:15", ErrInvalidSlot},
		{"ninety minutes", monday, "09:00", "10:30", ErrInvalidSlot},
		{"zero length", monday, "09:00", "09:00", ErrInvalidSlot},
		{"negative length", monday, "10:00", "09:00", ErrInvalidSlot},
		{"tuesday", "2024-06-11", "09:00", "10:00", ErrInvalidSlot},
		{"in the past", "2024-05-27", "09:00", "10:00", ErrInvalidSlot},
		{"bad time", monday, "9am", "10:00", ErrInvalidTimeFormat},
		{"past midnight", monday, "23:30", "", ErrOutOfRange},
		{"bad date", "10/06/2024", "09:00", "10:00", ErrInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
			req := bookAt(c.start)
			req.Date, req.EndTime = c.date, c.end
			_, err := f.svc.Book(context.Background(), clientCaller, req)
			expectKind(t, err, c.want)
		})
	}
}

func TestBook_BlockedByUnavailableSlot(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.store.unavailable["u1"] = model.UnavailableSlot{ID: "u1", TrainerID: trainer, Date: monday, StartTime: "09:30", EndTime: "10:00", Reason: "physio"}

	_, err := f.svc.Book(context.Background(), clientCaller, bookAt("09:00"))
	expectKind(t, err, ErrInvalidSlot)
	if _, err := f.svc.Book(context.Background(), clientCaller, bookAt("10:00")); err != nil {
		t.Fatalf("10:00 should be bookable: %v", err)
	}
}

func TestBook_SoonestExpiringPackageDebited(t *testing.T) {
	f := newFixture(t)
	late := testNow.AddDate(0, 2, 0)
	soon := testNow.AddDate(0, 0, 14)
	f.addPackage(model.Package{ID: "late", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10, ExpiryDate: &late})
	f.addPackage(model.Package{ID: "soon", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10, ExpiryDate: &soon})

	res, err := f.svc.Book(context.Background(), clientCaller, bookAt("09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.Session.PackageID != "soon" || f.store.packages["soon"].SessionsUsed != 1 || f.store.packages["late"].SessionsUsed != 0 {
		t.Fatalf("expected the soonest-expiring package debited, got %+v", res.Package)
	}
}

func TestBook_NoDoubleBookingForTrainer(t *testing.T) {
	f := newFixture(t)
	clients := []string{"a", "b", "c", "d", "e", "f"}
	for _, c := range clients {
		f.addPackage(model.Package{ID: "p-" + c, ClientID: c, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	}
	starts := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "09:00"}
	ok := 0
	for i, c := range clients {
		req := BookRequest{ClientID: c, TrainerID: trainer, Type: model.SessionPersonal, Date: monday, StartTime: starts[i]}
		_, err := f.svc.Book(context.Background(), Caller{UserID: c, Role: model.RoleClient}, req)
		if err == nil {
			ok++
			continue
		}
		expectKind(t, err, ErrTrainerConflict)
	}
	if ok != 3 {
		t.Fatalf("expected 3 successful bookings, got %d", ok)
	}

	var active []timeofday.Interval
	for _, s := range f.store.sessions {
		if !s.Status.Active() {
			continue
		}
		iv, err := timeofday.ParseInterval(s.StartTime, s.EndTime)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		for _, other := range active {
			if iv.Overlaps(other) {
				t.Fatalf("%s overlaps %s", iv, other)
			}
		}
		active = append(active, iv)
	}
	for _, c := range clients {
		p := f.store.packages["p-"+c]
		if p.SessionsUsed > 1 {
			t.Fatalf("client %s debited %d times", c, p.SessionsUsed)
		}
	}
}

func TestBook_SlotLocked(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.locker.held = map[string]bool{"trainer:t1:2024-06-10": true}

	_, err := f.svc.Book(context.Background(), clientCaller, bookAt("09:00"))
	expectKind(t, err, ErrSlotLocked)
	if len(f.store.sessions) != 0 {
		t.Fatal("no session should be created while locked")
	}
}

func TestBook_StoreOverlapMapsToConflict(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.store.createErr = fmt.Errorf("insert session: %w", model.ErrTrainerOverlap)

	_, err := f.svc.Book(context.Background(), clientCaller, bookAt("09:00"))
	expectKind(t, err, ErrTrainerConflict)
	if got := f.store.packages["p1"].SessionsUsed; got != 0 {
		t.Fatalf("debit must roll back with the failed insert, got %d", got)
	}
}

func TestBook_StoreFailureIsPersistence(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.store.failListOn = client

	_, err := f.svc.Book(context.Background(), clientCaller, bookAt("09:00"))
	expectKind(t, err, ErrPersistenceFailure)
}

func TestBook_SideEffectFailuresBecomeWarnings(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})
	f.notifier.err = errors.New("broker down")
	f.calendar.failOn = trainer

	res, err := f.svc.Book(context.Background(), clientCaller, bookAt("09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", res.Warnings)
	}
	if len(f.store.sessions) != 1 {
		t.Fatal("session must stay committed")
	}
}

func TestBook_Forbidden(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10})

	_, err := f.svc.Book(context.Background(), Caller{UserID: "someone", Role: model.RoleClient}, bookAt("09:00"))
	expectKind(t, err, ErrForbidden)
	_, err = f.svc.Book(context.Background(), Caller{UserID: "t2", Role: model.RoleTrainer}, bookAt("09:00"))
	expectKind(t, err, ErrForbidden)
	if _, err := f.svc.Book(context.Background(), trainerCaller, bookAt("09:00")); err != nil {
		t.Fatalf("trainer booking for a client: %v", err)
	}
}

func TestReschedule_SameSlotIsUnchanged(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10, SessionsUsed: 1})
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, PackageID: "p1", Date: monday, StartTime: "10:00", EndTime: "11:00", Type: model.SessionPersonal})

	res, err := f.svc.Reschedule(context.Background(), clientCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "10:00", EndTime: "11:00"})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !res.Unchanged {
		t.Fatal("expected unchanged")
	}
	if len(f.store.sessions) != 1 || f.store.packages["p1"].SessionsUsed != 1 {
		t.Fatal("same-slot reschedule must not duplicate or debit")
	}
	if len(f.notifier.rescheduled) != 0 {
		t.Fatal("no notification expected for a no-op")
	}
}

func TestReschedule_OverlapWithOwnSlotAllowed(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 10, SessionsUsed: 1})
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, PackageID: "p1", Date: monday, StartTime: "10:00", EndTime: "11:00", Type: model.SessionPersonal})

	res, err := f.svc.Reschedule(context.Background(), trainerCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "10:30"})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if res.Session.StartTime != "10:30" || res.Session.EndTime != "11:30" {
		t.Fatalf("unexpected session %+v", res.Session)
	}
	if f.store.packages["p1"].SessionsUsed != 1 {
		t.Fatal("reschedule must not debit")
	}
	if len(f.notifier.rescheduled) != 1 {
		t.Fatal("expected a reschedule notification")
	}
}

func TestReschedule_ConflictsAndTransitions(t *testing.T) {
	f := newFixture(t)
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Type: model.SessionPersonal})
	f.addSession(model.Session{ID: "s2", ClientID: "c2", TrainerID: trainer, Date: monday, StartTime: "11:00", EndTime: "12:00", Type: model.SessionPersonal})
	f.addSession(model.Session{ID: "gone", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "10:00", EndTime: "11:00", Status: model.StatusCancelled})

	_, err := f.svc.Reschedule(context.Background(), clientCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "10:30"})
	expectKind(t, err, ErrTrainerConflict)

	_, err = f.svc.Reschedule(context.Background(), clientCaller, RescheduleRequest{SessionID: "gone", Date: monday, StartTime: "10:30"})
	expectKind(t, err, ErrInvalidTransition)

	_, err = f.svc.Reschedule(context.Background(), clientCaller, RescheduleRequest{SessionID: "missing", Date: monday, StartTime: "10:30"})
	expectKind(t, err, ErrSessionNotFound)

	_, err = f.svc.Reschedule(context.Background(), Caller{UserID: "c2", Role: model.RoleClient}, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "10:00"})
	expectKind(t, err, ErrForbidden)
}

func TestCancel_LegacySessionCreditsNewestPackage(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "old", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 5, SessionsUsed: 5, Status: model.PackageCompleted, PurchaseDate: testNow.AddDate(0, -2, 0)})
	f.addPackage(model.Package{ID: "new", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 5, SessionsUsed: 2, PurchaseDate: testNow.AddDate(0, -1, 0)})
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Type: model.SessionPersonal})

	res, err := f.svc.Cancel(context.Background(), trainerCaller, "s1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Package == nil || res.Package.ID != "new" || f.store.packages["new"].SessionsUsed != 1 {
		t.Fatalf("expected newest package credited, got %+v", res.Package)
	}
	if f.store.packages["old"].SessionsUsed != 5 {
		t.Fatal("older package must be untouched")
	}
}

func TestCancel_LegacySessionPrefersActivePackage(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "active", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 5, SessionsUsed: 2, PurchaseDate: testNow.AddDate(0, -3, 0)})
	f.addPackage(model.Package{ID: "expired", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 5, SessionsUsed: 5, Status: model.PackageExpired, PurchaseDate: testNow.AddDate(0, -1, 0)})
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Type: model.SessionPersonal})

	res, err := f.svc.Cancel(context.Background(), trainerCaller, "s1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Package == nil || res.Package.ID != "active" || f.store.packages["active"].SessionsUsed != 1 {
		t.Fatalf("expected active package credited, got %+v", res.Package)
	}
	if f.store.packages["expired"].SessionsUsed != 5 {
		t.Fatal("expired package must be untouched")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
}

func TestCancel_LegacySessionWarnsWhenOnlyExpiredPackage(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "expired", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 5, SessionsUsed: 5, Status: model.PackageExpired, PurchaseDate: testNow.AddDate(0, -1, 0)})
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Type: model.SessionPersonal})

	res, err := f.svc.Cancel(context.Background(), trainerCaller, "s1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Package == nil || res.Package.ID != "expired" {
		t.Fatalf("expected expired package credited as fallback, got %+v", res.Package)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "expired") {
		t.Fatalf("expected expired-package warning, got %v", res.Warnings)
	}
}

func TestCancel_ReactivatesCompletedPackage(t *testing.T) {
	f := newFixture(t)
	f.addPackage(model.Package{ID: "p1", ClientID: client, PackageType: model.SessionPersonal, SessionsIncluded: 1})

	res, err := f.svc.Book(context.Background(), clientCaller, bookAt("09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if f.store.packages["p1"].Status != model.PackageCompleted {
		t.Fatalf("expected completed after last session, got %s", f.store.packages["p1"].Status)
	}
	if _, err := f.svc.Cancel(context.Background(), clientCaller, res.Session.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if p := f.store.packages["p1"]; p.Status != model.PackageActive || p.SessionsUsed != 0 {
		t.Fatalf("expected active and unused, got %+v", p)
	}
}

func TestRescheduleRequestWorkflow(t *testing.T) {
	f := newFixture(t)
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Type: model.SessionPersonal})
	ctx := context.Background()

	_, err := f.svc.RequestReschedule(ctx, trainerCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "10:00"})
	expectKind(t, err, ErrForbidden)

	res, err := f.svc.RequestReschedule(ctx, clientCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "10:00"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.Session.RescheduleStatus != model.ReschedulePending || res.Session.Proposed == nil || res.Session.StartTime != "09:00" {
		t.Fatalf("unexpected session after request %+v", res.Session)
	}

	_, err = f.svc.RequestReschedule(ctx, clientCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "10:30"})
	expectKind(t, err, ErrInvalidTransition)

	_, err = f.svc.ApproveReschedule(ctx, clientCaller, "s1")
	expectKind(t, err, ErrForbidden)

	res, err = f.svc.ApproveReschedule(ctx, trainerCaller, "s1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	got := f.store.sessions["s1"]
	if got.StartTime != "10:00" || got.RescheduleStatus != model.RescheduleApproved || got.Proposed != nil {
		t.Fatalf("unexpected session after approve %+v", got)
	}
	if len(f.notifier.rescheduled) != 1 {
		t.Fatal("expected a reschedule notification on approval")
	}

	_, err = f.svc.DenyReschedule(ctx, trainerCaller, "s1")
	expectKind(t, err, ErrInvalidTransition)
}

func TestRescheduleRequestDenied(t *testing.T) {
	f := newFixture(t)
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Type: model.SessionPersonal})
	ctx := context.Background()

	if _, err := f.svc.RequestReschedule(ctx, clientCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "11:00", EndTime: "12:00"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := f.svc.DenyReschedule(ctx, trainerCaller, "s1")
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if res.Session.RescheduleStatus != model.RescheduleDenied || res.Session.Proposed != nil || res.Session.StartTime != "09:00" {
		t.Fatalf("unexpected session after deny %+v", res.Session)
	}
}

func TestApprove_ProposalTakenInTheMeantime(t *testing.T) {
	f := newFixture(t)
	f.addSession(model.Session{ID: "s1", ClientID: client, TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Type: model.SessionPersonal})
	ctx := context.Background()

	if _, err := f.svc.RequestReschedule(ctx, clientCaller, RescheduleRequest{SessionID: "s1", Date: monday, StartTime: "11:00"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	f.addSession(model.Session{ID: "s2", ClientID: "c2", TrainerID: trainer, Date: monday, StartTime: "11:00", EndTime: "12:00", Type: model.SessionPersonal})

	_, err := f.svc.ApproveReschedule(ctx, trainerCaller, "s1")
	expectKind(t, err, ErrTrainerConflict)
	if got := f.store.sessions["s1"]; got.StartTime != "09:00" || got.RescheduleStatus != model.ReschedulePending {
		t.Fatalf("failed approval must leave the request pending, got %+v", got)
	}
}

func TestSlots_Views(t *testing.T) {
	f := newFixture(t)
	f.store.windows[trainer] = []model.WeeklyWindow{{TrainerID: trainer, Weekday: time.Monday, StartTime: "09:00", EndTime: "10:00"}}
	f.store.unavailable["u1"] = model.UnavailableSlot{ID: "u1", TrainerID: trainer, Date: monday, StartTime: "09:30", EndTime: "10:00"}

	client, err := f.svc.Slots(context.Background(), trainer, monday, ViewClient)
	if err != nil {
		t.Fatalf("client slots: %v", err)
	}
	if len(client.Grid) != 2 || !client.Grid[0].Available || client.Grid[1].Available {
		t.Fatalf("unexpected client grid %+v", client.Grid)
	}

	tr, err := f.svc.Slots(context.Background(), trainer, monday, ViewTrainer)
	if err != nil {
		t.Fatalf("trainer slots: %v", err)
	}
	if len(tr.QuickPick) != 0 {
		t.Fatalf("09:00-10:00 overlaps the exclusion, got %v", tr.QuickPick)
	}

	_, err = f.svc.Slots(context.Background(), trainer, monday, "admin")
	expectKind(t, err, ErrInvalidInput)
}

func TestReplaceWeeklyAvailability(t *testing.T) {
	f := newFixture(t)
	windows := []model.WeeklyWindow{
		{Weekday: time.Tuesday, StartTime: "07:00:00", EndTime: "09:00"},
		{Weekday: time.Thursday, StartTime: "17:00", EndTime: "20:00"},
	}

	_, err := f.svc.ReplaceWeeklyAvailability(context.Background(), clientCaller, trainer, windows)
	expectKind(t, err, ErrForbidden)

	got, err := f.svc.ReplaceWeeklyAvailability(context.Background(), trainerCaller, trainer, windows)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(got) != 2 || got[0].StartTime != "07:00" || got[0].TrainerID != trainer {
		t.Fatalf("unexpected windows %+v", got)
	}
	if stored := f.store.windows[trainer]; len(stored) != 2 || stored[0].Weekday != time.Tuesday {
		t.Fatalf("expected the old Monday window replaced, got %+v", stored)
	}

	_, err = f.svc.ReplaceWeeklyAvailability(context.Background(), trainerCaller, trainer, []model.WeeklyWindow{{Weekday: time.Monday, StartTime: "10:00", EndTime: "09:00"}})
	expectKind(t, err, ErrInvalidSlot)
	if len(f.store.windows[trainer]) != 2 {
		t.Fatal("rejected replacement must keep the previous windows")
	}
}

func TestUnavailableLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUnavailable(ctx, trainerCaller, model.UnavailableSlot{TrainerID: trainer, Date: monday, StartTime: "09:00", EndTime: "10:00", Reason: "dentist"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := f.svc.ListUnavailable(ctx, trainer, monday)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one exclusion, got %v %v", list, err)
	}

	err = f.svc.DeleteUnavailable(ctx, Caller{UserID: "t2", Role: model.RoleTrainer}, "t2", u.ID)
	expectKind(t, err, ErrNotFound)

	if err := f.svc.DeleteUnavailable(ctx, trainerCaller, trainer, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.store.unavailable) != 0 {
		t.Fatal("expected exclusion deleted")
	}
}

func TestGrantPackage_ProviderEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	g := entitlements.Grant{ClientID: client, PackageType: model.SessionVirtual, SessionsIncluded: 8, Validity: 30 * 24 * time.Hour}
	ev := ProviderEvent{Provider: "stripe", EventID: "evt_1"}

	_, _, err := f.svc.GrantPackage(context.Background(), clientCaller, g, ev)
	expectKind(t, err, ErrForbidden)

	p, created, err := f.svc.GrantPackage(context.Background(), SystemCaller, g, ev)
	if err != nil || !created {
		t.Fatalf("grant: %v %v", created, err)
	}
	if p.PurchaseDate != testNow || p.ExpiryDate == nil {
		t.Fatalf("unexpected package %+v", p)
	}
	_, created, err = f.svc.GrantPackage(context.Background(), SystemCaller, g, ev)
	if err != nil || created {
		t.Fatalf("replayed event must not grant again: %v %v", created, err)
	}
	if len(f.store.packages) != 1 {
		t.Fatalf("expected one package, got %d", len(f.store.packages))
	}

	pkgs, err := f.svc.ListPackages(context.Background(), clientCaller, client)
	if err != nil || len(pkgs) != 1 {
		t.Fatalf("list packages: %v %v", pkgs, err)
	}
}

func TestErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("handler: %w", reject("booking.Book", KindClientConflict, "busy"))
	if !errors.Is(err, ErrClientConflict) || errors.Is(err, ErrTrainerConflict) {
		t.Fatal("errors.Is must compare kinds")
	}
	if KindOf(err) != KindClientConflict {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	if got := err.Error(); got != "handler: booking.Book: busy" {
		t.Fatalf("unexpected message %q", got)
	}
}
