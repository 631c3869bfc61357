package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/google/uuid"
)

// Faults - ошибки, которые MemStore вернёт вместо записи; nil - без ошибки
type Faults struct {
	ScheduleCreate error
	OutboxEnqueue  error
	Notification   error
}

type memData struct {
	lastID        int64
	labs          map[int64]model.Lab
	users         map[int64]model.User
	reservations  map[int64]model.Reservation
	schedules     map[int64]model.Schedule
	notifications map[int64]model.Notification
	outbox        map[int64]model.OutboxMessage
}

func newMemData() *memData {
	return &memData{
		labs:          map[int64]model.Lab{},
		users:         map[int64]model.User{},
		reservations:  map[int64]model.Reservation{},
		schedules:     map[int64]model.Schedule{},
		notifications: map[int64]model.Notification{},
		outbox:        map[int64]model.OutboxMessage{},
	}
}

func (d *memData) clone() *memData {
	c := &memData{lastID: d.lastID}
	c.labs = cloneMap(d.labs)
	c.users = cloneMap(d.users)
	c.reservations = cloneMap(d.reservations)
	c.schedules = cloneMap(d.schedules)
	c.notifications = cloneMap(d.notifications)
	c.outbox = cloneMap(d.outbox)
	return c
}

func cloneMap[T any](m map[int64]T) map[int64]T {
	out := make(map[int64]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) nextID() int64 {
	d.lastID++
	return d.lastID
}

// MemStore - repository.Store в памяти. Транзакции идут по одной на копии
// данных, которая заменяет состояние только если fn вернула nil.
type MemStore struct {
	txMu   sync.Mutex
	data   *memData
	now    func() time.Time
	faults Faults

	txCount  int
	onCommit func()
}

var _ repository.Store = (*MemStore)(nil)

func NewMemStore(now func() time.Time) *MemStore {
	if now == nil {
		now = time.Now
	}
	return &MemStore{data: newMemData(), now: now}
}

// SetFaults заменяет набор ошибок
func (s *MemStore) SetFaults(f Faults) {
	s.txMu.Lock()
	s.faults = f
	s.txMu.Unlock()
}

// SetCommitHook задаёт функцию, вызываемую после каждой успешной транзакции
func (s *MemStore) SetCommitHook(fn func()) {
	s.txMu.Lock()
	s.onCommit = fn
	s.txMu.Unlock()
}

// TxCount - число закоммиченных транзакций
func (s *MemStore) TxCount() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.txCount
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(&memView{store: s, data: work}); err != nil {
		return err
	}
	s.data = work
	s.txCount++
	if s.onCommit != nil {
		s.onCommit()
	}
	return nil
}

func (s *MemStore) autocommit() *memView { return &memView{store: s} }

func (s *MemStore) Labs() repository.LabStore                 { return s.autocommit().Labs() }
func (s *MemStore) Users() repository.UserStore               { return s.autocommit().Users() }
func (s *MemStore) Reservations() repository.ReservationStore { return s.autocommit().Reservations() }
func (s *MemStore) Schedules() repository.ScheduleStore       { return s.autocommit().Schedules() }
func (s *MemStore) Notifications() repository.NotificationStore {
	return s.autocommit().Notifications()
}
func (s *MemStore) Outbox() repository.OutboxStore { return s.autocommit().Outbox() }

func (s *MemStore) LockSlot(ctx context.Context, labID int64, date time.Time) error {
	return nil
}

// memView работает с копией транзакции, если data задана, иначе с
// закоммиченным состоянием под блокировкой хранилища
type memView struct {
	store *MemStore
	data  *memData
}

func (v *memView) do(fn func(d *memData) error) error {
	if v.data != nil {
		return fn(v.data)
	}
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	return fn(v.store.data)
}

func (v *memView) Labs() repository.LabStore                   { return memLabs{v} }
func (v *memView) Users() repository.UserStore                 { return memUsers{v} }
func (v *memView) Reservations() repository.ReservationStore   { return memReservations{v} }
func (v *memView) Schedules() repository.ScheduleStore         { return memSchedules{v} }
func (v *memView) Notifications() repository.NotificationStore { return memNotifications{v} }
func (v *memView) Outbox() repository.OutboxStore              { return memOutbox{v} }

func (v *memView) LockSlot(ctx context.Context, labID int64, date time.Time) error {
	return ctx.Err()
}

type memLabs struct{ v *memView }

func (m memLabs) Create(_ context.Context, lab *model.Lab) error {
	return m.v.do(func(d *memData) error {
		for _, l := range d.labs {
			if l.Name == lab.Name {
				return fmt.Errorf("create lab: %w", repository.ErrDuplicate)
			}
		}
		lab.ID = d.nextID()
		lab.CreatedAt = m.v.store.now()
		lab.UpdatedAt = lab.CreatedAt
		d.labs[lab.ID] = *lab
		return nil
	})
}

func (m memLabs) GetByID(_ context.Context, id int64) (*model.Lab, error) {
	var out *model.Lab
	err := m.v.do(func(d *memData) error {
		if l, ok := d.labs[id]; ok {
			out = &l
		}
		return nil
	})
	return out, err
}

func (m memLabs) List(_ context.Context) ([]*model.Lab, error) {
	var out []*model.Lab
	err := m.v.do(func(d *memData) error {
		for _, l := range d.labs {
			out = append(out, &l)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (m memLabs) Update(_ context.Context, lab *model.Lab) error {
	return m.v.do(func(d *memData) error {
		if _, ok := d.labs[lab.ID]; !ok {
			return errors.New("lab not found")
		}
		for id, l := range d.labs {
			if id != lab.ID && l.Name == lab.Name {
				return fmt.Errorf("update lab: %w", repository.ErrDuplicate)
			}
		}
		lab.UpdatedAt = m.v.store.now()
		d.labs[lab.ID] = *lab
		return nil
	})
}

func (m memLabs) Delete(_ context.Context, id int64) error {
	return m.v.do(func(d *memData) error {
		if _, ok := d.labs[id]; !ok {
			return errors.New("lab not found")
		}
		for _, s := range d.schedules {
			if s.LabID == id {
				return errors.New("delete lab: schedules reference lab")
			}
		}
		delete(d.labs, id)
		for rid, r := range d.reservations {
			if r.LabID == id {
				delete(d.reservations, rid)
			}
		}
		return nil
	})
}

type memUsers struct{ v *memView }

func (m memUsers) Create(_ context.Context, user *model.User) error {
	return m.v.do(func(d *memData) error {
		if user.TelegramID != nil {
			for _, u := range d.users {
				if u.TelegramID != nil && *u.TelegramID == *user.TelegramID {
					return fmt.Errorf("create user: %w", repository.ErrDuplicate)
				}
			}
		}
		user.ID = d.nextID()
		user.CreatedAt = m.v.store.now()
		d.users[user.ID] = *user
		return nil
	})
}

func (m memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := m.v.do(func(d *memData) error {
		if u, ok := d.users[id]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (m memUsers) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	var out *model.User
	err := m.v.do(func(d *memData) error {
		for _, u := range d.users {
			if u.TelegramID != nil && *u.TelegramID == telegramID {
				out = &u
				break
			}
		}
		return nil
	})
	return out, err
}

func (m memUsers) GetByIDs(_ context.Context, ids []int64) ([]*model.User, error) {
	out := []*model.User{}
	err := m.v.do(func(d *memData) error {
		for _, id := range ids {
			if u, ok := d.users[id]; ok {
				out = append(out, &u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (m memUsers) ListIDsByRole(_ context.Context, role model.Role) ([]int64, error) {
	var ids []int64
	err := m.v.do(func(d *memData) error {
		for id, u := range d.users {
			if u.Role == role {
				ids = append(ids, id)
			}
		}
		return nil
	})
	slices.Sort(ids)
	return ids, err
}

type memReservations struct{ v *memView }

func (m memReservations) Create(_ context.Context, r *model.Reservation) error {
	return m.v.do(func(d *memData) error {
		r.ID = d.nextID()
		r.CreatedAt = m.v.store.now()
		r.UpdatedAt = r.CreatedAt
		stored := *r
		stored.Lab, stored.Requester = nil, nil
		d.reservations[r.ID] = stored
		return nil
	})
}

func (m memReservations) GetByID(_ context.Context, id int64) (*model.Reservation, error) {
	var out *model.Reservation
	err := m.v.do(func(d *memData) error {
		if r, ok := d.reservations[id]; ok {
			out = &r
		}
		return nil
	})
	return out, err
}

func (m memReservations) filter(keep func(model.Reservation) bool, less func(a, b *model.Reservation) bool) ([]*model.Reservation, error) {
	var out []*model.Reservation
	err := m.v.do(func(d *memData) error {
		for _, r := range d.reservations {
			if keep(r) {
				out = append(out, &r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, err
}

func (m memReservations) ListByRequester(_ context.Context, requesterID int64) ([]*model.Reservation, error) {
	return m.filter(
		func(r model.Reservation) bool { return r.RequesterID == requesterID },
		func(a, b *model.Reservation) bool { return a.ID > b.ID },
	)
}

func (m memReservations) ListByStatus(_ context.Context, status model.ReservationStatus) ([]*model.Reservation, error) {
	return m.filter(
		func(r model.Reservation) bool { return r.Status == status },
		func(a, b *model.Reservation) bool { return a.ID < b.ID },
	)
}

func (m memReservations) ActiveOn(_ context.Context, labID int64, date time.Time) ([]*model.Reservation, error) {
	return m.filter(
		func(r model.Reservation) bool {
			return r.LabID == labID && r.Date.Equal(date) && r.Status.IsActive()
		},
		func(a, b *model.Reservation) bool { return a.StartTime < b.StartTime },
	)
}

func (m memReservations) UpdateStatus(_ context.Context, id int64, status model.ReservationStatus) error {
	return m.v.do(func(d *memData) error {
		r, ok := d.reservations[id]
		if !ok {
			return errors.New("reservation not found")
		}
		r.Status = status
		r.UpdatedAt = m.v.store.now()
		d.reservations[id] = r
		return nil
	})
}

func (m memReservations) Delete(_ context.Context, id int64) error {
	return m.v.do(func(d *memData) error {
		if _, ok := d.reservations[id]; !ok {
			return errors.New("reservation not found")
		}
		delete(d.reservations, id)
		for sid, s := range d.schedules {
			if s.ReservationID != nil && *s.ReservationID == id {
				delete(d.schedules, sid)
			}
		}
		return nil
	})
}

type memSchedules struct{ v *memView }

func (m memSchedules) Create(_ context.Context, s *model.Schedule) error {
	return m.v.do(func(d *memData) error {
		if err := m.v.store.faults.ScheduleCreate; err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		if _, ok := d.labs[s.LabID]; !ok {
			return errors.New("create schedule: lab does not exist")
		}
		if s.ReservationID != nil {
			for _, other := range d.schedules {
				if other.ReservationID != nil && *other.ReservationID == *s.ReservationID {
					return fmt.Errorf("create schedule: %w", repository.ErrDuplicate)
				}
			}
		}
		s.ID = d.nextID()
		s.CreatedAt = m.v.store.now()
		s.UpdatedAt = s.CreatedAt
		d.schedules[s.ID] = *s
		return nil
	})
}

func (m memSchedules) GetByID(_ context.Context, id int64) (*model.Schedule, error) {
	var out *model.Schedule
	err := m.v.do(func(d *memData) error {
		if s, ok := d.schedules[id]; ok {
			out = &s
		}
		return nil
	})
	return out, err
}

func (m memSchedules) List(_ context.Context, f model.ScheduleFilter) ([]*model.Schedule, error) {
	var out []*model.Schedule
	err := m.v.do(func(d *memData) error {
		for _, s := range d.schedules {
			switch {
			case f.LabID != 0 && s.LabID != f.LabID:
				continue
			case !f.From.IsZero() && s.Date.Before(f.From):
				continue
			case !f.To.IsZero() && s.Date.After(f.To):
				continue
			case f.GroupID != nil && (s.GroupID == nil || *s.GroupID != *f.GroupID):
				continue
			}
			out = append(out, &s)
		}
		return nil
	})
	sortSchedules(out)
	return out, err
}

func (m memSchedules) On(ctx context.Context, labID int64, date time.Time) ([]*model.Schedule, error) {
	return m.List(ctx, model.ScheduleFilter{LabID: labID, From: date, To: date})
}

func (m memSchedules) Update(_ context.Context, s *model.Schedule) error {
	return m.v.do(func(d *memData) error {
		cur, ok := d.schedules[s.ID]
		if !ok {
			return errors.New("schedule not found")
		}
		cur.LabID = s.LabID
		cur.Weekday = s.Weekday
		cur.Date = s.Date
		cur.StartTime = s.StartTime
		cur.EndTime = s.EndTime
		cur.CourseName = s.CourseName
		cur.LecturerID = s.LecturerID
		cur.LecturerName = s.LecturerName
		cur.UpdatedAt = m.v.store.now()
		d.schedules[s.ID] = cur
		s.UpdatedAt = cur.UpdatedAt
		return nil
	})
}

func (m memSchedules) Delete(_ context.Context, id int64) error {
	return m.v.do(func(d *memData) error {
		if _, ok := d.schedules[id]; !ok {
			return errors.New("schedule not found")
		}
		delete(d.schedules, id)
		return nil
	})
}

func (m memSchedules) DeleteByGroupID(_ context.Context, groupID uuid.UUID) (int64, error) {
	var n int64
	err := m.v.do(func(d *memData) error {
		for id, s := range d.schedules {
			if s.GroupID != nil && *s.GroupID == groupID {
				delete(d.schedules, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m memSchedules) DeleteByReservationID(_ context.Context, reservationID int64) (int64, error) {
	var n int64
	err := m.v.do(func(d *memData) error {
		for id, s := range d.schedules {
			if s.ReservationID != nil && *s.ReservationID == reservationID {
				delete(d.schedules, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m memSchedules) CountByLab(_ context.Context, labID int64) (int, error) {
	var n int
	err := m.v.do(func(d *memData) error {
		for _, s := range d.schedules {
			if s.LabID == labID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func sortSchedules(list []*model.Schedule) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

type memNotifications struct{ v *memView }

func (m memNotifications) Create(_ context.Context, n *model.Notification) error {
	return m.v.do(func(d *memData) error {
		if err := m.v.store.faults.Notification; err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		n.ID = d.nextID()
		n.CreatedAt = m.v.store.now()
		d.notifications[n.ID] = *n
		return nil
	})
}

func (m memNotifications) GetByID(_ context.Context, id int64) (*model.Notification, error) {
	var out *model.Notification
	err := m.v.do(func(d *memData) error {
		if n, ok := d.notifications[id]; ok {
			out = &n
		}
		return nil
	})
	return out, err
}

func (m memNotifications) ListByUser(_ context.Context, userID int64, unreadOnly bool) ([]*model.Notification, error) {
	var out []*model.Notification
	err := m.v.do(func(d *memData) error {
		for _, n := range d.notifications {
			if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
				continue
			}
			out = append(out, &n)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (m memNotifications) MarkRead(_ context.Context, id int64, at time.Time) error {
	return m.v.do(func(d *memData) error {
		n, ok := d.notifications[id]
		if !ok {
			return errors.New("notification not found")
		}
		if n.ReadAt == nil {
			n.ReadAt = &at
		}
		d.notifications[id] = n
		return nil
	})
}

type memOutbox struct{ v *memView }

func (m memOutbox) Enqueue(_ context.Context, msg *model.OutboxMessage) error {
	return m.v.do(func(d *memData) error {
		if err := m.v.store.faults.OutboxEnqueue; err != nil {
			return fmt.Errorf("enqueue outbox message: %w", err)
		}
		msg.ID = d.nextID()
		msg.CreatedAt = m.v.store.now()
		stored := *msg
		stored.Recipients = slices.Clone(msg.Recipients)
		d.outbox[msg.ID] = stored
		return nil
	})
}

func (m memOutbox) ClaimPending(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	var out []*model.OutboxMessage
	err := m.v.do(func(d *memData) error {
		for _, msg := range d.outbox {
			if msg.PublishedAt == nil {
				out = append(out, &msg)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (m memOutbox) MarkPublished(_ context.Context, id int64, at time.Time) error {
	return m.v.do(func(d *memData) error {
		msg, ok := d.outbox[id]
		if !ok {
			return errors.New("outbox message not found")
		}
		msg.PublishedAt = &at
		d.outbox[id] = msg
		return nil
	})
}

func (m memOutbox) MarkFailed(_ context.Context, id int64, reason string) error {
	return m.v.do(func(d *memData) error {
		msg, ok := d.outbox[id]
		if !ok {
			return errors.New("outbox message not found")
		}
		msg.Attempts++
		msg.LastError = &reason
		d.outbox[id] = msg
		return nil
	})
}
