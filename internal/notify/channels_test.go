package notify

import (
	"context"
	"testing"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = model.NotificationPayload{
	Kind:    model.NotificationReservationStatusChanged,
	Title:   "Reservation approved",
	Message: "Your reservation of A on Monday 2025-09-08 10:00-12:00 was approved",
	URL:     "https://labs.campus.test/reservations/5",
}

type recordingSender struct {
	params []*bot.SendMessageParams
}

func (r *recordingSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	r.params = append(r.params, p)
	return &models.Message{}, nil
}

func TestTelegramChannel(t *testing.T) {
	sender := &recordingSender{}
	c := NewTelegramChannel(sender, -100200)

	tg := int64(4242)
	require.NoError(t, c.Send(context.Background(), &model.User{TelegramID: &tg}, payload))
	assert.ErrorIs(t, c.Send(context.Background(), &model.User{}, payload), ErrNoAddress)
	require.NoError(t, c.Broadcast(context.Background(), payload))

	require.Len(t, sender.params, 2)
	assert.Equal(t, int64(4242), sender.params[0].ChatID)
	assert.Equal(t, int64(-100200), sender.params[1].ChatID)
	assert.Equal(t, "Reservation approved\n\n"+payload.Message+"\n"+payload.URL, sender.params[0].Text)

	quiet := NewTelegramChannel(sender, 0)
	require.NoError(t, quiet.Broadcast(context.Background(), payload))
	assert.Len(t, sender.params, 2)
}
