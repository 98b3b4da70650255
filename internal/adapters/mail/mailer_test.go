package mail

import (
	"context"
	"testing"

	"school-library/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_Disabled(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{})
	assert.False(t, m.Enabled())

	err := m.Send(context.Background(), &Message{To: []string{"a@school.test"}, Subject: "hi"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSMTPMailer_Build(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{
		Host: "smtp.school.test",
		Port: 587,
		From: "library@school.test",
	})
	require.True(t, m.Enabled())
	assert.False(t, m.dialer.SSL)

	gm := m.build(&Message{
		To:      []string{"librarian@school.test"},
		ReplyTo: "parent@example.com",
		Subject: "Question",
		Body:    "Hello",
	})

	assert.Equal(t, []string{"library@school.test"}, gm.GetHeader("From"))
	assert.Equal(t, []string{"librarian@school.test"}, gm.GetHeader("To"))
	assert.Equal(t, []string{"parent@example.com"}, gm.GetHeader("Reply-To"))
	assert.Equal(t, []string{"Question"}, gm.GetHeader("Subject"))

	noReply := m.build(&Message{To: []string{"x@school.test"}, Subject: "s"})
	assert.Empty(t, noReply.GetHeader("Reply-To"))
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "smtp.school.test", Port: 25})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Send(ctx, &Message{To: []string{"a@school.test"}})
	assert.ErrorIs(t, err, context.Canceled)
}
