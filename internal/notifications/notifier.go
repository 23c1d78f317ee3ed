package notifications

import "context"

// Message is one outbound email, already rendered. Template rendering
// happens in templates.go so every Notifier implementation stays a dumb
// transport.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
