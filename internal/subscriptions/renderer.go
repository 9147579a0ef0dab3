package subscriptions

import (
	"fmt"
	"strings"

	"github.com/bissquit/subscription-garden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MessageKind identifies a confirmation message.
type MessageKind string

// Confirmation message kinds.
const (
	MessageSubscribed   MessageKind = "subscribed"
	MessageUnsubscribed MessageKind = "unsubscribed"
)

// Message is a rendered confirmation email.
type Message struct {
	Kind    MessageKind
	To      string
	Subject string
	Body    string
}

// RenderConfirmation builds the confirmation message for a state change.
func RenderConfirmation(kind MessageKind, sub *domain.Subscription) Message {
	// A Caser keeps state between calls and cannot be shared.
	category := cases.Title(language.English).String(string(sub.Category))

	var subject string
	var body strings.Builder

	switch kind {
	case MessageUnsubscribed:
		subject = fmt.Sprintf("You have unsubscribed from %s", category)
		fmt.Fprintf(&body, "You will no longer receive %s updates at %s.\n\n", category, sub.Email)
		body.WriteString("If this was a mistake, you can subscribe again at any time.\n")
	default:
		subject = fmt.Sprintf("Subscribed to %s", category)
		fmt.Fprintf(&body, "You are now subscribed to %s updates at %s.\n\n", category, sub.Email)
		body.WriteString("If you did not request this subscription, you can unsubscribe at any time.\n")
	}

	return Message{
		Kind:    kind,
		To:      sub.Email,
		Subject: subject,
		Body:    body.String(),
	}
}
