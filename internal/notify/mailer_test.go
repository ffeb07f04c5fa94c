package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captured struct {
	from string
	to   []string
	raw  string
}

func capture(out *[]captured) gomail.SendFunc {
	return func(from string, to []string, msg io.WriterTo) error {
		var buf bytes.Buffer
		if _, err := msg.WriteTo(&buf); err != nil {
			return err
		}
		*out = append(*out, captured{from: from, to: to, raw: buf.String()})
		return nil
	}
}

func TestSendBuildsMultipartMessage(t *testing.T) {
	var sent []captured
	m := NewMailerWithSender("stock@example.com", capture(&sent))

	err := m.Send(context.Background(), Message{
		To:      []string{"a@example.com", " A@example.com ", "b@example.com", ""},
		Subject: "Low stock: 2 items",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "stock@example.com", sent[0].from)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sent[0].to)
	assert.Contains(t, sent[0].raw, "Subject: Low stock: 2 items")
	assert.Contains(t, sent[0].raw, "plain body")
	assert.Contains(t, sent[0].raw, "<p>html body</p>")
}

func TestSendRequiresRecipients(t *testing.T) {
	var sent []captured
	m := NewMailerWithSender("x@example.com", capture(&sent))
	require.Error(t, m.Send(context.Background(), Message{To: []string{" "}, Subject: "s", Text: "t"}))
	assert.Empty(t, sent)
}

func TestSendWrapsTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	m := NewMailerWithSender("x@example.com", gomail.SendFunc(func(string, []string, io.WriterTo) error { return boom }))
	err := m.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s", Text: "t"})
	// gomail formats sender errors with %v, so only the text survives.
	require.ErrorContains(t, err, "connection refused")
	require.ErrorContains(t, err, `notify: send "s"`)
}

func TestDisabledMailer(t *testing.T) {
	m := NewMailer(Config{})
	assert.False(t, m.Enabled())
	require.ErrorIs(t, m.Send(context.Background(), Message{To: []string{"a@example.com"}}), ErrDisabled)
}

func TestSplitAddresses(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, SplitAddresses("a@x.io, b@x.io,,A@x.io"))
	assert.Empty(t, SplitAddresses(""))
}
