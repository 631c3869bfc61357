package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/Freeeeeet/labportal/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type flakyChannel struct {
	name     string
	failures int

	mu    sync.Mutex
	calls map[int64]int
	sent  []int64
}

func (c *flakyChannel) Name() string { return c.name }

func (c *flakyChannel) Send(_ context.Context, to *model.User, _ model.NotificationPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[int64]int{}
	}
	c.calls[to.ID]++
	if c.calls[to.ID] <= c.failures {
		return errors.New("smtp: 451 try again later")
	}
	c.sent = append(c.sent, to.ID)
	return nil
}

type countingBroadcaster struct {
	mu    sync.Mutex
	count int
}

func (b *countingBroadcaster) Name() string { return "broadcast" }

func (b *countingBroadcaster) Broadcast(context.Context, model.NotificationPayload) error {
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	return nil
}

func newDispatchEnv(t *testing.T, attempts uint64) (*Dispatcher, *testfixtures.MemStore, []*model.User) {
	t.Helper()
	store := testfixtures.NewMemStore(testfixtures.NewClock(time.Time{}).NowFunc())
	users := []*model.User{
		testfixtures.MustUser(t, store, "ada", model.RoleAdmin),
		testfixtures.MustUser(t, store, "bo", model.RoleAdmin),
	}
	d := NewDispatcher(store.Users(), DispatcherConfig{Attempts: attempts, Backoff: time.Millisecond}, zaptest.NewLogger(t))
	return d, store, users
}

func envelopeFor(users ...*model.User) Envelope {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return Envelope{
		ID:         1,
		Kind:       model.NotificationReservationSubmitted,
		Recipients: ids,
		Payload: model.NotificationPayload{
			Kind:          model.NotificationReservationSubmitted,
			Title:         "New lab reservation request",
			Message:       "Sam requested A",
			URL:           "https://labs.campus.test/reservations/9",
			ReservationID: 9,
		},
	}
}

func TestDispatch_RetriesUntilDelivered(t *testing.T) {
	d, _, users := newDispatchEnv(t, 3)
	email := &flakyChannel{name: "email", failures: 2}
	d.AddChannel(email)

	require.NoError(t, d.Dispatch(context.Background(), envelopeFor(users...)))

	assert.ElementsMatch(t, []int64{users[0].ID, users[1].ID}, email.sent)
	assert.Equal(t, 3, email.calls[users[0].ID])
}

func TestDispatch_PermanentFailureDoesNotBlockOtherChannels(t *testing.T) {
	d, store, users := newDispatchEnv(t, 3)
	broken := &flakyChannel{name: "email", failures: 100}
	feed := service.NewNotificationService(store, service.Options{}, nil)
	broadcast := &countingBroadcaster{}
	d.AddChannel(broken).AddChannel(NewInAppChannel(feed)).AddBroadcaster(broadcast)

	require.NoError(t, d.Dispatch(context.Background(), envelopeFor(users...)))

	assert.Equal(t, 3, broken.calls[users[0].ID])
	assert.Empty(t, broken.sent)
	assert.Equal(t, 1, broadcast.count)

	for _, u := range users {
		list, err := store.Notifications().ListByUser(context.Background(), u.ID, true)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "New lab reservation request", list[0].Title)
		require.NotNil(t, list[0].ReservationID)
		assert.Equal(t, int64(9), *list[0].ReservationID)
	}
}

func TestDispatch_InAppStorageFailureGivesUp(t *testing.T) {
	d, store, users := newDispatchEnv(t, 2)
	store.SetFaults(testfixtures.Faults{Notification: errors.New("pool exhausted")})
	d.AddChannel(NewInAppChannel(service.NewNotificationService(store, service.Options{}, nil)))

	require.NoError(t, d.Dispatch(context.Background(), envelopeFor(users[0])))

	store.SetFaults(testfixtures.Faults{})
	list, err := store.Notifications().ListByUser(context.Background(), users[0].ID, false)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type addressless struct{ calls int }

func (a *addressless) Name() string { return "telegram" }

func (a *addressless) Send(context.Context, *model.User, model.NotificationPayload) error {
	a.calls++
	return ErrNoAddress
}

func TestDispatch_MissingAddressIsSkipped(t *testing.T) {
	d, _, users := newDispatchEnv(t, 3)
	ch := &addressless{}
	d.AddChannel(ch)

	require.NoError(t, d.Dispatch(context.Background(), envelopeFor(users[0])))
	assert.Equal(t, 1, ch.calls)
}

func TestDispatch_CancelledContext(t *testing.T) {
	d, _, users := newDispatchEnv(t, 3)
	d.AddChannel(&flakyChannel{name: "email", failures: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Dispatch(ctx, envelopeFor(users...)), context.Canceled)
}

func TestDecodeEnvelope(t *testing.T) {
	body, err := envelopeFor(&model.User{ID: 4}).Encode()
	require.NoError(t, err)

	env, err := DecodeEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, env.Recipients)
	assert.Equal(t, int64(9), env.Payload.ReservationID)

	for _, bad := range []string{
		`not json`,
		`{"kind":"lab_exploded","recipients":[1]}`,
		`{"kind":"reservation_submitted","recipients":[]}`,
	} {
		_, err := DecodeEnvelope([]byte(bad))
		assert.Error(t, err, bad)
	}
}
