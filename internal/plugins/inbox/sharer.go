package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/identity"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/plugins/smtp"
)

// Share failure reasons.
const (
	reasonSelfShare        = "SelfShare"
	reasonRecipientMissing = "Recipient_NotFound"
)

// AccountChecker reports whether an email belongs to an active account.
// auth.AuthService satisfies it.
type AccountChecker interface {
	IsActiveAccount(ctx context.Context, email string) (bool, error)
}

// Sharer delivers a copy of a vault record to another account. The
// secrets and notes plugins build the payload; Sharer checks the
// recipient, stores the message, notifies the recipient and audits.
type Sharer struct {
	repo     InboxRepository
	accounts AccountChecker
	mail     smtp.Sender
	audit    audit.Logger
	baseURL  string
	now      func() time.Time
}

// NewSharer creates a sharer. baseURL is linked in the notification mail.
func NewSharer(repo InboxRepository, accounts AccountChecker, mail smtp.Sender, auditLog audit.Logger, baseURL string, now func() time.Time) *Sharer {
	if now == nil {
		now = time.Now
	}
	return &Sharer{
		repo:     repo,
		accounts: accounts,
		mail:     mail,
		audit:    auditLog,
		baseURL:  baseURL,
		now:      now,
	}
}

// Share delivers m to recipientEmail. m must carry SenderKey, SourceKind,
// OriginalID and the payload. The recipient must be an active account
// other than the sender. A failed notification mail does not undo the
// delivery.
func (s *Sharer) Share(ctx context.Context, m Message, recipientEmail string) (*Message, error) {
	recipient, err := identity.ValidateEmail(recipientEmail, nil)
	if err != nil {
		appErr := apperror.NewValidation("enter the recipient's email address").WithReason(apperror.ReasonInvalidEmail)
		s.fail(ctx, m, identity.Normalize(recipientEmail), appErr)
		return nil, appErr
	}
	if recipient == m.SenderKey {
		appErr := apperror.NewValidation("you cannot share with yourself").WithReason(reasonSelfShare)
		s.fail(ctx, m, recipient, appErr)
		return nil, appErr
	}

	active, err := s.accounts.IsActiveAccount(ctx, recipient)
	if err != nil {
		appErr := apperror.NewInternal(fmt.Errorf("checking recipient: %w", err))
		s.fail(ctx, m, recipient, appErr)
		return nil, appErr
	}
	if !active {
		appErr := apperror.NewValidation("there is no account for that email address").WithReason(reasonRecipientMissing)
		s.fail(ctx, m, recipient, appErr)
		return nil, appErr
	}

	m.RecipientKey = recipient
	m.CreatedAt = s.now().UTC()
	m.SavedAt = nil
	if err := s.repo.Deliver(ctx, &m); err != nil {
		appErr := apperror.NewInternal(fmt.Errorf("delivering share: %w", err))
		s.fail(ctx, m, recipient, appErr)
		return nil, appErr
	}

	if err := smtp.Send(ctx, s.mail, smtp.ShareMail(recipient, m.SenderKey, s.baseURL)); err != nil {
		slog.Warn("failed to notify share recipient",
			slog.Int64("message_id", m.ID),
			slog.Any("error", err),
		)
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventMessageSend,
		TargetType: targetType(m.SourceKind),
		TargetID:   formatID(m.OriginalID),
		Details:    map[string]any{"to": recipient, "kind": m.SourceKind, "messageId": m.ID},
	})
	return &m, nil
}

func (s *Sharer) fail(ctx context.Context, m Message, recipient string, err error) {
	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventMessageSend,
		TargetType: targetType(m.SourceKind),
		TargetID:   formatID(m.OriginalID),
		Outcome:    audit.OutcomeFail,
		Reason:     apperror.ReasonOf(err),
		Details:    map[string]any{"to": recipient, "kind": m.SourceKind},
	})
}

func targetType(kind string) string {
	if kind == KindNote {
		return "Note"
	}
	return "Secret"
}
