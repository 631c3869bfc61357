package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSession struct {
	exchange string
	keys     []string
	sent     []amqp.Publishing
	confirm  error
	closed   bool
	shut     bool
}

func (s *fakeSession) Publish(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	if s.confirm != nil {
		return s.confirm
	}
	s.exchange = exchange
	s.keys = append(s.keys, key)
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSession) Closed() bool { return s.closed }

func (s *fakeSession) Close() error {
	s.shut = true
	return nil
}

func testPublisher(t *testing.T, sessions ...*fakeSession) (*Publisher, *int) {
	t.Helper()
	p := NewPublisher(PublisherConfig{Topology: Topology{Exchange: "labportal.notifications"}}, zaptest.NewLogger(t))
	p.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	dials := 0
	p.dial = func(context.Context) (session, error) {
		dials++
		if len(sessions) == 0 {
			return nil, errors.New("connection refused")
		}
		s := sessions[0]
		sessions = sessions[1:]
		return s, nil
	}
	return p, &dials
}

func outboxMessage(id int64) *model.OutboxMessage {
	return &model.OutboxMessage{
		ID:         id,
		Kind:       model.NotificationReservationStatusChanged,
		Recipients: []int64{3},
		Payload:    payload,
		CreatedAt:  time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_PublishesPersistentEnvelope(t *testing.T) {
	sess := &fakeSession{}
	p, dials := testPublisher(t, sess)

	require.NoError(t, p.Publish(context.Background(), outboxMessage(11)))
	require.NoError(t, p.Publish(context.Background(), outboxMessage(12)))

	assert.Equal(t, 1, *dials)
	assert.Equal(t, "labportal.notifications", sess.exchange)
	assert.Equal(t, []string{"reservation_status_changed", "reservation_status_changed"}, sess.keys)
	require.Len(t, sess.sent, 2)
	assert.Equal(t, "11", sess.sent[0].MessageId)
	assert.Equal(t, amqp.Persistent, sess.sent[0].DeliveryMode)
	assert.Equal(t, "application/json", sess.sent[0].ContentType)

	env, err := DecodeEnvelope(sess.sent[0].Body)
	require.NoError(t, err)
	assert.Equal(t, int64(11), env.ID)
	assert.Equal(t, []int64{3}, env.Recipients)
}

func TestPublisher_NackIsAnError(t *testing.T) {
	p, _ := testPublisher(t, &fakeSession{confirm: ErrNacked})

	err := p.Publish(context.Background(), outboxMessage(5))
	require.ErrorIs(t, err, ErrNacked)
	assert.Contains(t, err.Error(), "outbox 5")
}

func TestPublisher_ReconnectsAfterClose(t *testing.T) {
	first, second := &fakeSession{}, &fakeSession{}
	p, dials := testPublisher(t, first, second)

	require.NoError(t, p.Publish(context.Background(), outboxMessage(1)))
	first.closed = true
	require.NoError(t, p.Publish(context.Background(), outboxMessage(2)))

	assert.Equal(t, 2, *dials)
	assert.True(t, first.shut)
	assert.Len(t, first.sent, 1)
	require.Len(t, second.sent, 1)
	assert.Equal(t, "2", second.sent[0].MessageId)
}

func TestPublisher_DialRetriesThenGivesUp(t *testing.T) {
	p, dials := testPublisher(t)

	err := p.Publish(context.Background(), outboxMessage(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect rabbitmq")
	assert.Equal(t, 3, *dials)

	require.Error(t, p.Connect(context.Background()))
	assert.NoError(t, p.Close())
}

func TestPublisher_Close(t *testing.T) {
	sess := &fakeSession{}
	p, _ := testPublisher(t, sess)

	require.NoError(t, p.Connect(context.Background()))
	require.NoError(t, p.Close())
	assert.True(t, sess.shut)
}

type declareCall struct {
	op   string
	name string
	key  string
	args amqp.Table
}

type recordingDeclarer struct {
	calls []declareCall
	fail  string
}

func (d *recordingDeclarer) ExchangeDeclare(name, kind string, _, _, _, _ bool, args amqp.Table) error {
	d.calls = append(d.calls, declareCall{op: "exchange:" + kind, name: name, args: args})
	if d.fail == name {
		return errors.New("access refused")
	}
	return nil
}

func (d *recordingDeclarer) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	d.calls = append(d.calls, declareCall{op: "queue", name: name, args: args})
	if d.fail == name {
		return amqp.Queue{}, errors.New("precondition failed")
	}
	return amqp.Queue{Name: name}, nil
}

func (d *recordingDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	d.calls = append(d.calls, declareCall{op: "bind:" + exchange, name: name, key: key})
	return nil
}

func TestTopologyDeclare(t *testing.T) {
	topo := Topology{Exchange: "ex", Queue: "q", DLX: "dlx"}
	d := &recordingDeclarer{}
	require.NoError(t, topo.Declare(d))

	assert.Equal(t, []declareCall{
		{op: "exchange:topic", name: "dlx"},
		{op: "queue", name: "q.dlq"},
		{op: "bind:dlx", name: "q.dlq", key: "#"},
		{op: "exchange:topic", name: "ex"},
		{op: "queue", name: "q", args: amqp.Table{"x-dead-letter-exchange": "dlx"}},
		{op: "bind:ex", name: "q", key: "reservation_submitted"},
		{op: "bind:ex", name: "q", key: "reservation_status_changed"},
	}, d.calls)
}

func TestTopologyDeclare_StopsOnError(t *testing.T) {
	d := &recordingDeclarer{fail: "q"}
	err := Topology{Exchange: "ex", Queue: "q", DLX: "dlx"}.Declare(d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declare queue")
	for _, c := range d.calls {
		assert.NotEqual(t, "bind:ex", c.op)
	}
}
