package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rakhi_store/internal/pkg/config"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeMessage() Message {
	return Message{
		To:       gofakeit.Email(),
		ToName:   gofakeit.Name(),
		From:     "orders@rakhi.example.com",
		FromName: "Rakhi Store",
		Subject:  "Order RK1 confirmed",
		HTML:     "<p>Thanks</p>",
		Text:     "Thanks",
	}
}

func TestBrevoSend(t *testing.T) {
	msg := fakeMessage()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/smtp/email", r.URL.Path)
		assert.Equal(t, "brevo-key", r.Header.Get("api-key"))

		var body brevoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, msg.From, body.Sender.Email)
		assert.Equal(t, "Rakhi Store", body.Sender.Name)
		require.Len(t, body.To, 1)
		assert.Equal(t, msg.To, body.To[0].Email)
		assert.Equal(t, msg.HTML, body.HTMLContent)
		assert.Equal(t, msg.Text, body.TextContent)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId": "<202608100930.123@smtp-relay.mailin.fr>"}`))
	}))
	defer srv.Close()

	s, err := NewBrevoSender(config.BrevoConfig{APIKey: "brevo-key", BaseURL: srv.URL}, time.Second, nil)
	require.NoError(t, err)

	id, err := s.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "<202608100930.123@smtp-relay.mailin.fr>", id)
}

func TestBrevoErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code": "x", "message": "nope"}`))
			}))
			defer srv.Close()

			s, _ := NewBrevoSender(config.BrevoConfig{APIKey: "k", BaseURL: srv.URL}, time.Second, nil)
			_, err := s.Send(context.Background(), fakeMessage())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestMessageValidate(t *testing.T) {
	msg := fakeMessage()
	assert.NoError(t, msg.Validate())

	bad := msg
	bad.To = "not-an-email"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMessage)

	bad = msg
	bad.HTML, bad.Text = "", ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMessage)

	bad = msg
	bad.From = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidMessage)
}

func TestNewSender(t *testing.T) {
	s, err := New(config.EmailConfig{Provider: "log"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderLog, s.Name())

	id, err := s.Send(context.Background(), fakeMessage())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = New(config.EmailConfig{Provider: "brevo"}, nil)
	assert.Error(t, err)

	_, err = New(config.EmailConfig{Provider: "sendgrid"}, nil)
	assert.Error(t, err)

	a, err := New(config.EmailConfig{Provider: "aliyun", Aliyun: config.DirectMail{AccessKeyID: "id", AccessKeySecret: "secret"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderAliyun, a.Name())
}
