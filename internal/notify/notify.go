// Package notify delivers alerts outside the database: by email through
// SendGrid and live over the stream hub.
package notify

import (
	"bytes"
	"context"
	"errors"
	"text/template"

	"github.com/apmanager001/tripmaps-sub000/internal/alert"

	jsoniter "github.com/json-iterator/go"
	pkgerrors "github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const emailPlain = `{{.Alert.Message}}
{{if .Link}}
Open: {{.Link}}
{{end}}
You can turn these emails off in your TripMaps settings.
`

var emailPlainTemplate = template.Must(template.New("email").Parse(emailPlain))

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Email sends alerts to recipients who have email alerts enabled.
type Email struct {
	client    mailSender
	from      *mail.Email
	publicURL string
}

func NewEmail(apiKey, fromAddress, publicURL string) *Email {
	return newEmail(sendgrid.NewSendClient(apiKey), fromAddress, publicURL)
}

func newEmail(client mailSender, fromAddress, publicURL string) *Email {
	return &Email{
		client:    client,
		from:      mail.NewEmail("TripMaps", fromAddress),
		publicURL: publicURL,
	}
}

func (e *Email) Notify(ctx context.Context, n alert.Notification) error {
	if !n.Recipient.EmailAlerts || n.Recipient.Email == "" {
		return nil
	}

	message := mail.NewV3Mail()
	message.From = e.from
	message.Subject = subject(n.Alert.Type)

	personalization := mail.NewPersonalization()
	personalization.To = append(personalization.To, mail.NewEmail("", n.Recipient.Email))
	message.AddPersonalizations(personalization)

	link := ""
	if n.Alert.TargetURL != "" {
		link = e.publicURL + n.Alert.TargetURL
	}
	text := &bytes.Buffer{}
	if err := emailPlainTemplate.Execute(text, struct {
		Alert alert.Alert
		Link  string
	}{n.Alert, link}); err != nil {
		return pkgerrors.Wrap(err, "could not render alert email")
	}
	message.AddContent(mail.NewContent("text/plain", text.String()))

	resp, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		return pkgerrors.Wrap(err, "could not send mail through SendGrid")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.Errorf("non-2xx response from SendGrid: %d %q", resp.StatusCode, resp.Body)
	}
	return nil
}

func subject(t alert.Type) string {
	switch t {
	case alert.TypeFollow:
		return "You have a new follower"
	case alert.TypeLike:
		return "Someone liked your map"
	case alert.TypeComment:
		return "New comment on your map"
	default:
		return "TripMaps alert"
	}
}

type Publisher interface {
	Publish(ctx context.Context, userID string, payload []byte) error
}

// Stream pushes the alert as JSON to the recipient's live channel.
type Stream struct {
	pub Publisher
}

func NewStream(pub Publisher) *Stream {
	return &Stream{pub: pub}
}

func (s *Stream) Notify(ctx context.Context, n alert.Notification) error {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(n.Alert)
	if err != nil {
		return pkgerrors.Wrap(err, "could not encode alert")
	}
	return s.pub.Publish(ctx, n.Alert.UserID, payload)
}

// Multi calls every notifier and joins their errors.
type Multi []alert.Notifier

func (m Multi) Notify(ctx context.Context, n alert.Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
