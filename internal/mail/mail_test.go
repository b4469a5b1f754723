package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codevault/internal/model"
)

func TestDefaults_AllKeysPresent(t *testing.T) {
	for _, key := range []string{KeyWelcome, KeySnippetApproved, KeySnippetRejected, KeyPasswordChanged, KeyTest} {
		tpl, ok := Default(key)
		require.True(t, ok, key)
		assert.True(t, tpl.IsDefault)
		assert.NotEmpty(t, tpl.Subject)
		assert.NotEmpty(t, SampleData(key), key)
	}
	_, ok := Default("nope")
	assert.False(t, ok)
	assert.Len(t, Defaults(), 5)
}

func TestRender_DefaultsWithSampleData(t *testing.T) {
	r := NewRenderer()
	for _, tpl := range Defaults() {
		t.Run(tpl.Key, func(t *testing.T) {
			subject, body, err := r.Render(tpl, SampleData(tpl.Key))
			require.NoError(t, err)
			assert.NotContains(t, subject, "<no value>")
			assert.NotContains(t, body, "<no value>")
			assert.NotContains(t, subject, "\n")
		})
	}
}

func TestRender_EscapesAndSanitizes(t *testing.T) {
	r := NewRenderer()
	tpl := model.EmailTemplate{
		Key:     "custom",
		Subject: "Hi {{.Name}}",
		Body:    `<p onclick="steal()">{{.Name}}</p><script>alert(1)</script>`,
	}

	subject, body, err := r.Render(tpl, map[string]any{"Name": "<b>Bob</b>"})
	require.NoError(t, err)

	assert.Equal(t, "Hi <b>Bob</b>", subject, "subjects are plain text")
	assert.Contains(t, body, "&lt;b&gt;Bob&lt;/b&gt;", "html/template escapes data")
	assert.NotContains(t, body, "<script>")
	assert.NotContains(t, body, "onclick")
}

func TestValidate(t *testing.T) {
	r := NewRenderer()
	assert.NoError(t, r.Validate(model.EmailTemplate{Subject: "{{.A}}", Body: "<p>{{.B}}</p>"}))
	assert.Error(t, r.Validate(model.EmailTemplate{Subject: "{{.A", Body: "ok"}))
	assert.Error(t, r.Validate(model.EmailTemplate{Subject: "ok", Body: "{{if}}"}))
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  []byte
		gotAuth smtp.Auth
	)
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "vault@example.com"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, msg
		return nil
	}

	err := m.Send(context.Background(), Message{To: "ada@example.com", Subject: "Grüße", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	raw := string(gotMsg)
	assert.Contains(t, raw, "To: ada@example.com\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.Contains(t, raw, "@example.com>")
	assert.True(t, strings.HasSuffix(raw, "<p>hi</p>"))
}

func TestSMTPMailer_Errors(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "h", Port: 25, From: "a@b.c"})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("550 rejected") }

	assert.Error(t, m.Send(context.Background(), Message{}), "no recipient")
	assert.ErrorContains(t, m.Send(context.Background(), Message{To: "x@y.z"}), "550 rejected")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "x@y.z"}), context.Canceled)
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.Send(context.Background(), Message{To: "ada@example.com", Subject: "hello"}))
	assert.Contains(t, buf.String(), "to=ada@example.com")
}
