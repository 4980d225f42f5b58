// Package notify tells users about attempts that need their attention.
package notify

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks github.com/rhyrak/go-allocate/internal/notify Notifier

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rhyrak/go-allocate/pkg/model"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one notification.
type Message struct {
	Subject     string
	Text        string
	To          []mail.Address
	Attachments []Attachment
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg *Message) error
}

// ParseRecipients parses a comma separated address list.
func ParseRecipients(list string) ([]mail.Address, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	addrs, err := mail.ParseAddressList(list)
	if err != nil {
		return nil, err
	}
	out := make([]mail.Address, len(addrs))
	for i, a := range addrs {
		out[i] = *a
	}
	return out, nil
}

// Finished builds the message sent when an attempt reaches a terminal outcome.
func Finished(a *model.Attempt, to []mail.Address) *Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Attempt %s (%s, %s) finished.\n", a.ID, a.Kind, a.Objective)
	fmt.Fprintf(&b, "Outcome: %s\n", a.Outcome)
	if a.Outcome == model.Optimal {
		fmt.Fprintf(&b, "Score: %g\n", a.Score)
	}
	fmt.Fprintf(&b, "Construct time: %s\nCompute time: %s\n", a.ConstructTime, a.ComputeTime)
	if a.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", a.Message)
	}
	return &Message{
		Subject: fmt.Sprintf("%s attempt %s: %s", a.Kind, a.ID, a.Outcome),
		Text:    b.String(),
		To:      to,
	}
}

// Prepared builds the message carrying the model files of a deferred attempt.
func Prepared(a *model.Attempt, to []mail.Address, lp, mps []byte) *Message {
	text := fmt.Sprintf("Attempt %s (%s) is ready for an offline solve.\n"+
		"Solve one of the attached models and upload the solution file to attempt %s.\n", a.ID, a.Kind, a.ID)
	return &Message{
		Subject: fmt.Sprintf("%s attempt %s: model ready", a.Kind, a.ID),
		Text:    text,
		To:      to,
		Attachments: []Attachment{
			{Filename: a.ID + ".lp", ContentType: "text/plain", Content: lp},
			{Filename: a.ID + ".mps", ContentType: "text/plain", Content: mps},
		},
	}
}
