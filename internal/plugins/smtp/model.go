// Package smtp provides outbound email: one-time codes, password reset
// codes and share notifications. Settings come from configuration only;
// the password is never stored in the database or shown in the UI.
package smtp

import (
	"fmt"
	"time"
)

// Settings holds the SMTP transport configuration.
type Settings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Encryption string // "starttls", "ssl", or "none".
	Timeout    time.Duration
}

// Status is the redacted view of Settings shown to admins.
type Status struct {
	Configured  bool   `json:"configured"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	From        string `json:"from,omitempty"`
	Encryption  string `json:"encryption,omitempty"`
	HasPassword bool   `json:"has_password"`
}

// Mail represents an email message to be sent.
type Mail struct {
	To      []string
	Subject string
	Body    string
}

// CodeMail is the message carrying a sign-in code.
func CodeMail(to, code string, lifetime time.Duration) Mail {
	return Mail{
		To:      []string{to},
		Subject: "Your Seif access code",
		Body: fmt.Sprintf("Hello,\r\n\r\nYou asked to sign in to Seif.\r\n\r\n"+
			"Your security code is: %s\r\n\r\n"+
			"The code is valid for %d minutes.\r\n\r\n"+
			"If you did not ask for this code, ignore this email.\r\n",
			code, int(lifetime.Minutes())),
	}
}

// ResetMail is the message carrying a password-reset code.
func ResetMail(to, code string, lifetime time.Duration) Mail {
	return Mail{
		To:      []string{to},
		Subject: "Seif password reset code",
		Body: fmt.Sprintf("Your password reset code is: %s\r\n\r\n"+
			"The code is valid for %d minutes.\r\n\r\n"+
			"If you did not ask for a reset, ignore this email.\r\n",
			code, int(lifetime.Minutes())),
	}
}

// ShareMail tells a recipient that something is waiting in their inbox.
// It never carries the shared content.
func ShareMail(to, sender, baseURL string) Mail {
	return Mail{
		To:      []string{to},
		Subject: "Something was shared with you in Seif",
		Body: fmt.Sprintf("%s shared an item with you.\r\n\r\n"+
			"Sign in to review it in your inbox: %s\r\n",
			sender, baseURL),
	}
}
