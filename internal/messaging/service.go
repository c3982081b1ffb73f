package messaging

import (
	"context"
	"strings"

	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
)

// RequisitionDirectory confirms the thread's requisition exists in the
// caller's organization.
type RequisitionDirectory interface {
	Get(ctx context.Context, orgID, id int64) (requisition.Requisition, error)
}

// Service implements the conversation thread.
type Service struct {
	repo         Repository
	requisitions RequisitionDirectory
}

// NewService constructs a Service instance.
func NewService(repo Repository, requisitions RequisitionDirectory) *Service {
	return &Service{repo: repo, requisitions: requisitions}
}

// PostInput carries one user-authored message.
type PostInput struct {
	PRID        int64
	Body        string
	Attachments []Attachment
}

// Post appends a user message to the requisition's thread.
func (s *Service) Post(ctx context.Context, actor shared.Actor, in PostInput) (Message, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapMessagePost) {
		return Message{}, shared.ErrForbidden
	}
	in.Body = strings.TrimSpace(in.Body)
	if in.Body == "" && len(in.Attachments) == 0 {
		return Message{}, shared.NewSafeError("A message needs text or an attachment")
	}
	if _, err := s.requisitions.Get(ctx, actor.OrgID, in.PRID); err != nil {
		return Message{}, err
	}

	authorID := actor.UserID
	m := Message{
		PRID:        in.PRID,
		OrgID:       actor.OrgID,
		AuthorID:    &authorID,
		AuthorName:  actor.DisplayName,
		Body:        in.Body,
		Attachments: in.Attachments,
	}
	if err := s.repo.Insert(ctx, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// PostSystemNote appends a system-authored note, used by other subsystems
// to record workflow events in the thread.
func (s *Service) PostSystemNote(ctx context.Context, orgID, prID int64, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	m := Message{
		PRID:   prID,
		OrgID:  orgID,
		Body:   body,
		System: true,
	}
	return s.repo.Insert(ctx, &m)
}

// List returns the requisition's thread oldest first.
func (s *Service) List(ctx context.Context, actor shared.Actor, prID int64) ([]Message, error) {
	if _, err := s.requisitions.Get(ctx, actor.OrgID, prID); err != nil {
		return nil, err
	}
	return s.repo.ListForPR(ctx, actor.OrgID, prID)
}
