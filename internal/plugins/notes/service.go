package notes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/plugins/inbox"
	"github.com/keyxmakerx/seif/internal/sanitize"
)

// Sharer delivers a copy of a record to another account. *inbox.Sharer
// satisfies it.
type Sharer interface {
	Share(ctx context.Context, m inbox.Message, recipientEmail string) (*inbox.Message, error)
}

// NoteService defines the business logic contract for notes.
type NoteService interface {
	List(ctx context.Context, owner, query string, page int) (*ListResponse, error)
	Create(ctx context.Context, owner, ownerUser string, req CreateRequest) (*Note, error)
	Delete(ctx context.Context, owner string, id int64) error
	Share(ctx context.Context, owner string, id int64, recipientEmail string) error
}

// noteService implements NoteService.
type noteService struct {
	repo   NoteRepository
	sharer Sharer
	audit  audit.Logger
	now    func() time.Time
}

// NewNoteService creates a new note service.
func NewNoteService(repo NoteRepository, sharer Sharer, auditLog audit.Logger, now func() time.Time) NoteService {
	if now == nil {
		now = time.Now
	}
	return &noteService{repo: repo, sharer: sharer, audit: auditLog, now: now}
}

// List returns one page of notes.
func (s *noteService) List(ctx context.Context, owner, query string, page int) (*ListResponse, error) {
	if page < 1 {
		page = 1
	}
	query = strings.TrimSpace(query)
	offset := (page - 1) * PerPage

	items, total, err := s.repo.List(ctx, owner, query, PerPage, offset)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing notes: %w", err))
	}
	if items == nil {
		items = []Note{}
	}
	return &ListResponse{
		Items:   items,
		Query:   query,
		Page:    page,
		PerPage: PerPage,
		Total:   total,
		HasMore: offset+len(items) < total,
	}, nil
}

// Create strips markup from the input, truncates it to the column sizes
// and stores the note. The body is required; the title is optional.
func (s *noteService) Create(ctx context.Context, owner, ownerUser string, req CreateRequest) (*Note, error) {
	title := sanitize.Truncate(sanitize.Text(req.Title), MaxTitleLength)
	body := sanitize.Truncate(sanitize.Text(req.Body), MaxBodyLength)

	if body == "" {
		err := apperror.NewValidation("note text is required")
		s.fail(ctx, audit.EventNoteAdd, 0, err)
		return nil, err
	}

	now := s.now().UTC()
	note := &Note{
		OwnerKey:  owner,
		OwnerUser: ownerUser,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, note); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating note: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventNoteAdd,
		TargetType: "Note",
		TargetID:   strconv.FormatInt(note.ID, 10),
	})
	return note, nil
}

// Delete removes the note.
func (s *noteService) Delete(ctx context.Context, owner string, id int64) error {
	var err error
	if owner == "" || id <= 0 {
		err = apperror.NewNotOwned()
	} else if err = s.repo.Delete(ctx, owner, id); err != nil {
		if _, ok := err.(*apperror.AppError); !ok {
			err = apperror.NewInternal(fmt.Errorf("deleting note: %w", err))
		}
	}
	if err != nil {
		s.fail(ctx, audit.EventNoteDelete, id, err)
		return err
	}

	s.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventNoteDelete,
		TargetType: "Note",
		TargetID:   strconv.FormatInt(id, 10),
	})
	return nil
}

// Share sends a copy of the note to the recipient's inbox.
func (s *noteService) Share(ctx context.Context, owner string, id int64, recipientEmail string) error {
	var note *Note
	var err error
	if owner == "" || id <= 0 {
		err = apperror.NewNotOwned()
	} else if note, err = s.repo.FindOwned(ctx, owner, id); err != nil {
		if _, ok := err.(*apperror.AppError); !ok {
			err = apperror.NewInternal(fmt.Errorf("finding note: %w", err))
		}
	}
	if err != nil {
		s.fail(ctx, audit.EventMessageSend, id, err)
		return err
	}

	_, err = s.sharer.Share(ctx, inbox.Message{
		SenderKey:  owner,
		SourceKind: inbox.KindNote,
		OriginalID: note.ID,
		Title:      note.Title,
		NoteBody:   note.Body,
	}, recipientEmail)
	return err
}

func (s *noteService) fail(ctx context.Context, event string, id int64, err error) {
	e := audit.Entry{
		EventType:  event,
		TargetType: "Note",
		Outcome:    audit.OutcomeFail,
		Reason:     apperror.ReasonOf(err),
	}
	if id > 0 {
		e.TargetID = strconv.FormatInt(id, 10)
	}
	s.audit.Log(ctx, e)
}
