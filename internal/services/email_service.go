package services

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"resolvebot/internal/models"
)

// EmailService sends a copy of escalation notifications to a supervisor
// mailbox. It is an optional collaborator; lifecycle correctness never
// depends on it.
type EmailService interface {
	SendEscalationEmail(t *models.Task) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, toEmail string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
		to:     toEmail,
	}
}

func (s *emailService) SendEscalationEmail(t *models.Task) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", fmt.Sprintf("Task escalated: %s", shortID(t.ID)))

	due := "—"
	if t.DueDate != nil {
		due = t.DueDate.Format("2006-01-02")
	}
	body := fmt.Sprintf(`
		<h3>A tracked task has gone unanswered</h3>
		<p><strong>%s</strong></p>
		<p>Assignee: %s<br>
		Pings sent: %d (threshold %d)<br>
		Due: %s</p>
		<p>Task ID: <code>%s</code></p>
	`, html.EscapeString(t.Description), html.EscapeString(t.AssigneeName),
		t.PingCount, t.MaxPings, due, t.ID)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send escalation email: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
