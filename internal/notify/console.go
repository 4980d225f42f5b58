package notify

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// Console prints messages instead of sending them.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	from mail.Address
	sent []Message
}

var _ Notifier = (*Console)(nil)

func NewConsole(w io.Writer, from mail.Address) *Console {
	return &Console{w: w, from: from}
}

func (c *Console) Notify(_ context.Context, msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.w, "From: %s\r\n", c.from.String())
	_, _ = fmt.Fprintf(c.w, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(c.w, "Subject: %s\r\n", msg.Subject)
	_, _ = fmt.Fprintf(c.w, "To: %s\r\n", joinAddresses(msg.To))
	for _, a := range msg.Attachments {
		_, _ = fmt.Fprintf(c.w, "Attachment: %s (%d bytes)\r\n", a.Filename, len(a.Content))
	}
	_, _ = fmt.Fprintf(c.w, "\r\n%s\r\n", msg.Text)
	c.sent = append(c.sent, *msg)
	return nil
}

// Sent returns the messages printed so far.
func (c *Console) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

func joinAddresses(addrs []mail.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
