package secrets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/plugins/inbox"
	"github.com/keyxmakerx/seif/internal/sanitize"
	"github.com/keyxmakerx/seif/internal/searchtoken"
)

// Cipher encrypts and decrypts secret fields. *envelope.Cipher satisfies it.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}

// Sharer delivers a copy of a record to another account. *inbox.Sharer
// satisfies it.
type Sharer interface {
	Share(ctx context.Context, m inbox.Message, recipientEmail string) (*inbox.Message, error)
}

// SecretService defines the business logic contract for secrets. owner is
// always the validated owner key of the session.
type SecretService interface {
	List(ctx context.Context, owner, query string, page int) (*ListResponse, error)
	Create(ctx context.Context, owner, ownerUser string, req CreateRequest) (*ListItem, error)
	RevealPassword(ctx context.Context, owner string, id int64) (string, error)
	RevealDetails(ctx context.Context, owner string, id int64) (string, error)
	Delete(ctx context.Context, owner string, id int64) error

	// Share copies the encrypted payload into the recipient's inbox.
	Share(ctx context.Context, owner string, id int64, recipientEmail string) error
}

// secretService implements SecretService.
type secretService struct {
	repo   SecretRepository
	cipher Cipher
	sharer Sharer
	audit  audit.Logger
	now    func() time.Time
}

// NewSecretService creates a new secret service.
func NewSecretService(repo SecretRepository, cipher Cipher, sharer Sharer, auditLog audit.Logger, now func() time.Time) SecretService {
	if now == nil {
		now = time.Now
	}
	return &secretService{repo: repo, cipher: cipher, sharer: sharer, audit: auditLog, now: now}
}

// List returns one page of the vault. A non-empty query is tokenized the
// same way details are indexed. Tokens long enough for the FULLTEXT index
// go to MATCH; a query with none of them uses substring matching instead.
func (s *secretService) List(ctx context.Context, owner, query string, page int) (*ListResponse, error) {
	opts := NewListOptions(page)
	query = strings.TrimSpace(query)

	var (
		items []ListItem
		total int
		err   error
	)
	if query == "" {
		items, total, err = s.repo.List(ctx, owner, opts)
	} else {
		items, total, err = s.repo.Search(ctx, owner, fullTextTerms(query), query, opts)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing secrets: %w", err))
	}
	if items == nil {
		items = []ListItem{}
	}

	return &ListResponse{
		Items:   items,
		Query:   query,
		Page:    opts.Page,
		PerPage: opts.PerPage,
		Total:   total,
		HasMore: opts.Offset()+len(items) < total,
	}, nil
}

// fullTextTerms returns the query tokens the FULLTEXT index can hold,
// joined by spaces.
func fullTextTerms(query string) string {
	var terms []string
	for _, tok := range searchtoken.Tokens(query) {
		if utf8.RuneCountInString(tok) >= FullTextMinToken {
			terms = append(terms, tok)
		}
	}
	return strings.Join(terms, " ")
}

// Create validates, encrypts and stores a new secret.
func (s *secretService) Create(ctx context.Context, owner, ownerUser string, req CreateRequest) (*ListItem, error) {
	title := sanitize.Text(req.Title)
	username := strings.TrimSpace(req.SavedUsername)
	details := strings.TrimSpace(req.Details)

	if err := validateCreate(title, username, req.Password, details); err != nil {
		s.audit.Log(ctx, audit.Entry{
			EventType:  audit.EventSecretCreate,
			TargetType: "Secret",
			Outcome:    audit.OutcomeFail,
			Reason:     apperror.ReasonOf(err),
		})
		return nil, err
	}

	passwordEnc, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("encrypting password: %w", err))
	}
	detailsEnc, err := s.cipher.Encrypt(details)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("encrypting details: %w", err))
	}

	secret := &Secret{
		OwnerKey:      owner,
		OwnerUser:     ownerUser,
		Title:         title,
		SavedUsername: username,
		PasswordEnc:   passwordEnc,
		DetailsEnc:    detailsEnc,
		DetailTokens:  searchtoken.Join(details),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.Create(ctx, secret); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating secret: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventSecretCreate,
		TargetType: "Secret",
		TargetID:   formatID(secret.ID),
		Details:    map[string]any{"title": secret.Title, "hasDetails": details != ""},
	})
	return &ListItem{
		ID:            secret.ID,
		Title:         secret.Title,
		SavedUsername: secret.SavedUsername,
		HasDetails:    secret.DetailsEnc != "",
		CreatedAt:     secret.CreatedAt,
	}, nil
}

// RevealPassword decrypts the stored password.
func (s *secretService) RevealPassword(ctx context.Context, owner string, id int64) (string, error) {
	return s.reveal(ctx, owner, id, audit.EventSecretViewPassword, func(sec *Secret) string { return sec.PasswordEnc })
}

// RevealDetails decrypts the stored details; a secret without details
// reveals "".
func (s *secretService) RevealDetails(ctx context.Context, owner string, id int64) (string, error) {
	return s.reveal(ctx, owner, id, audit.EventSecretViewDetails, func(sec *Secret) string { return sec.DetailsEnc })
}

func (s *secretService) reveal(ctx context.Context, owner string, id int64, event string, field func(*Secret) string) (string, error) {
	secret, err := s.find(ctx, owner, id)
	if err != nil {
		s.fail(ctx, event, id, err)
		return "", err
	}

	plain, err := s.cipher.Decrypt(field(secret))
	if err != nil {
		appErr := apperror.NewDecrypt(err)
		s.fail(ctx, event, id, appErr)
		return "", appErr
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  event,
		TargetType: "Secret",
		TargetID:   formatID(id),
	})
	return plain, nil
}

// Delete removes the secret.
func (s *secretService) Delete(ctx context.Context, owner string, id int64) error {
	var err error
	if owner == "" || id <= 0 {
		err = apperror.NewNotOwned()
	} else if err = s.repo.Delete(ctx, owner, id); err != nil {
		if _, ok := err.(*apperror.AppError); !ok {
			err = apperror.NewInternal(fmt.Errorf("deleting secret: %w", err))
		}
	}
	if err != nil {
		s.fail(ctx, audit.EventSecretDelete, id, err)
		return err
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventSecretDelete,
		TargetType: "Secret",
		TargetID:   formatID(id),
	})
	return nil
}

// Share sends a copy of the secret's ciphertext to the recipient's inbox.
func (s *secretService) Share(ctx context.Context, owner string, id int64, recipientEmail string) error {
	secret, err := s.find(ctx, owner, id)
	if err != nil {
		s.fail(ctx, audit.EventMessageSend, id, err)
		return err
	}

	_, err = s.sharer.Share(ctx, inbox.Message{
		SenderKey:     owner,
		SourceKind:    inbox.KindSecret,
		OriginalID:    secret.ID,
		Title:         secret.Title,
		SavedUsername: secret.SavedUsername,
		PasswordEnc:   secret.PasswordEnc,
		DetailsEnc:    secret.DetailsEnc,
		DetailTokens:  secret.DetailTokens,
	}, recipientEmail)
	return err
}

func (s *secretService) find(ctx context.Context, owner string, id int64) (*Secret, error) {
	if owner == "" || id <= 0 {
		return nil, apperror.NewNotOwned()
	}
	secret, err := s.repo.FindOwned(ctx, owner, id)
	if err != nil {
		if _, ok := err.(*apperror.AppError); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding secret: %w", err))
	}
	return secret, nil
}

func (s *secretService) fail(ctx context.Context, event string, id int64, err error) {
	s.audit.Log(ctx, audit.Entry{
		EventType:  event,
		TargetType: "Secret",
		TargetID:   formatID(id),
		Outcome:    audit.OutcomeFail,
		Reason:     apperror.ReasonOf(err),
	})
}

func validateCreate(title, username, password, details string) error {
	switch {
	case title == "":
		return apperror.NewValidation("title is required")
	case username == "":
		return apperror.NewValidation("username is required")
	case password == "":
		return apperror.NewValidation("password is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return apperror.NewValidation(fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		return apperror.NewValidation(fmt.Sprintf("username must be at most %d characters", MaxUsernameLength))
	case utf8.RuneCountInString(password) > MaxPasswordLength:
		return apperror.NewValidation(fmt.Sprintf("password must be at most %d characters", MaxPasswordLength))
	case utf8.RuneCountInString(details) > MaxDetailsLength:
		return apperror.NewValidation(fmt.Sprintf("details must be at most %d characters", MaxDetailsLength))
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
