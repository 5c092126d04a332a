package inbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
)

// Decrypter opens envelope ciphertext. *envelope.Cipher satisfies it.
type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

// InboxService defines the recipient-side operations on pending shares.
// Every method takes the validated owner key of the caller as recipient.
type InboxService interface {
	List(ctx context.Context, recipient string) ([]MessageView, error)
	RevealPassword(ctx context.Context, recipient string, id int64) (string, error)
	RevealDetails(ctx context.Context, recipient string, id int64) (string, error)

	// Accept saves the message into the recipient's vault, recording
	// ownerUser as the creator, and returns the new record.
	Accept(ctx context.Context, recipient, ownerUser string, id int64) (AcceptResponse, error)

	Discard(ctx context.Context, recipient string, id int64) error
}

// inboxService implements InboxService.
type inboxService struct {
	repo   InboxRepository
	cipher Decrypter
	audit  audit.Logger
	now    func() time.Time
}

// NewInboxService creates a new inbox service.
func NewInboxService(repo InboxRepository, cipher Decrypter, auditLog audit.Logger, now func() time.Time) InboxService {
	if now == nil {
		now = time.Now
	}
	return &inboxService{repo: repo, cipher: cipher, audit: auditLog, now: now}
}

// List returns the recipient's pending and saved shares.
func (s *inboxService) List(ctx context.Context, recipient string) ([]MessageView, error) {
	messages, err := s.repo.ListForRecipient(ctx, recipient, MaxListRows)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing inbox: %w", err))
	}
	views := make([]MessageView, 0, len(messages))
	for i := range messages {
		views = append(views, messages[i].View())
	}
	return views, nil
}

// RevealPassword decrypts the password of a shared secret.
func (s *inboxService) RevealPassword(ctx context.Context, recipient string, id int64) (string, error) {
	return s.reveal(ctx, recipient, id, audit.EventMessageViewPassword, func(m *Message) (string, bool) {
		return m.PasswordEnc, m.SourceKind == KindSecret
	})
}

// RevealDetails decrypts the details of a shared secret. A secret shared
// without details reveals "".
func (s *inboxService) RevealDetails(ctx context.Context, recipient string, id int64) (string, error) {
	return s.reveal(ctx, recipient, id, audit.EventMessageViewDetails, func(m *Message) (string, bool) {
		return m.DetailsEnc, m.SourceKind == KindSecret
	})
}

func (s *inboxService) reveal(ctx context.Context, recipient string, id int64, event string, field func(*Message) (string, bool)) (string, error) {
	m, err := s.find(ctx, recipient, id)
	if err != nil {
		s.fail(ctx, event, id, err)
		return "", err
	}
	enc, ok := field(m)
	if !ok {
		err := apperror.NewBadRequest("shared notes have no encrypted fields")
		s.fail(ctx, event, id, err)
		return "", err
	}

	plain, err := s.cipher.Decrypt(enc)
	if err != nil {
		appErr := apperror.NewDecrypt(err)
		s.fail(ctx, event, id, appErr)
		return "", appErr
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  event,
		TargetType: "InboxMessage",
		TargetID:   formatID(id),
		Details:    map[string]any{"sender": m.SenderKey},
	})
	return plain, nil
}

// Accept materializes the message for the recipient.
func (s *inboxService) Accept(ctx context.Context, recipient, ownerUser string, id int64) (AcceptResponse, error) {
	m, err := s.find(ctx, recipient, id)
	if err != nil {
		s.fail(ctx, audit.EventMessageSave, id, err)
		return AcceptResponse{}, err
	}
	if m.Saved() {
		err := apperror.NewConflict("this item was already saved to your vault")
		s.fail(ctx, audit.EventMessageSave, id, err)
		return AcceptResponse{}, err
	}

	newID, err := s.repo.Accept(ctx, recipient, ownerUser, id, s.now().UTC())
	if err != nil {
		if _, ok := err.(*apperror.AppError); !ok {
			err = apperror.NewInternal(fmt.Errorf("accepting share: %w", err))
		}
		s.fail(ctx, audit.EventMessageSave, id, err)
		return AcceptResponse{}, err
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventMessageSave,
		TargetType: "InboxMessage",
		TargetID:   formatID(id),
		Details:    map[string]any{"kind": m.SourceKind, "newId": newID, "sender": m.SenderKey},
	})
	return AcceptResponse{Kind: m.SourceKind, ID: newID}, nil
}

// Discard deletes the message.
func (s *inboxService) Discard(ctx context.Context, recipient string, id int64) error {
	if err := s.repo.Delete(ctx, recipient, id); err != nil {
		if _, ok := err.(*apperror.AppError); !ok {
			err = apperror.NewInternal(fmt.Errorf("discarding share: %w", err))
		}
		s.fail(ctx, audit.EventMessageDelete, id, err)
		return err
	}
	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventMessageDelete,
		TargetType: "InboxMessage",
		TargetID:   formatID(id),
	})
	return nil
}

func (s *inboxService) find(ctx context.Context, recipient string, id int64) (*Message, error) {
	if recipient == "" || id <= 0 {
		return nil, apperror.NewNotOwned()
	}
	m, err := s.repo.FindForRecipient(ctx, recipient, id)
	if err != nil {
		if _, ok := err.(*apperror.AppError); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding share: %w", err))
	}
	return m, nil
}

func (s *inboxService) fail(ctx context.Context, event string, id int64, err error) {
	s.audit.Log(ctx, audit.Entry{
		EventType:  event,
		TargetType: "InboxMessage",
		TargetID:   formatID(id),
		Outcome:    audit.OutcomeFail,
		Reason:     apperror.ReasonOf(err),
	})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
