package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
)

type fakeRepo struct {
	messages []Message
	nextID   int64
}

func (f *fakeRepo) Insert(ctx context.Context, m *Message) error {
	f.nextID++
	m.ID = f.nextID
	for i := range m.Attachments {
		m.Attachments[i].MessageID = m.ID
	}
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeRepo) ListForPR(ctx context.Context, orgID, prID int64) ([]Message, error) {
	var out []Message
	for _, m := range f.messages {
		if m.OrgID == orgID && m.PRID == prID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeRequisitions struct{}

func (fakeRequisitions) Get(ctx context.Context, orgID, id int64) (requisition.Requisition, error) {
	if orgID == 1 && id == 100 {
		return requisition.Requisition{ID: 100, OrgID: 1}, nil
	}
	return requisition.Requisition{}, shared.ErrNotFound
}

func employee() shared.Actor {
	return shared.Actor{UserID: 7, DisplayName: "Eka Putri", Role: "EMPLOYEE", OrgID: 1}
}

func TestPostAppendsToThread(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, fakeRequisitions{})
	ctx := context.Background()

	msg, err := svc.Post(ctx, employee(), PostInput{PRID: 100, Body: "  Any update on delivery?  "})
	require.NoError(t, err)
	require.Equal(t, "Any update on delivery?", msg.Body)
	require.False(t, msg.System)
	require.NotNil(t, msg.AuthorID)
	require.Equal(t, int64(7), *msg.AuthorID)

	thread, err := svc.List(ctx, employee(), 100)
	require.NoError(t, err)
	require.Len(t, thread, 1)
}

func TestPostRequiresTextOrAttachment(t *testing.T) {
	svc := NewService(&fakeRepo{}, fakeRequisitions{})

	_, err := svc.Post(context.Background(), employee(), PostInput{PRID: 100, Body: "   "})
	require.Error(t, err)
	require.Equal(t, "A message needs text or an attachment", shared.UserSafeMessage(err))
}

func TestAttachmentOnlyMessageAllowed(t *testing.T) {
	svc := NewService(&fakeRepo{}, fakeRequisitions{})

	msg, err := svc.Post(context.Background(), employee(), PostInput{
		PRID:        100,
		Attachments: []Attachment{{DocumentKey: "messages/abc", FileName: "photo.png"}},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, msg.ID, msg.Attachments[0].MessageID)
}

func TestPostUnknownRequisition(t *testing.T) {
	svc := NewService(&fakeRepo{}, fakeRequisitions{})

	_, err := svc.Post(context.Background(), employee(), PostInput{PRID: 999, Body: "hello"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSystemNoteHasNoAuthor(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, fakeRequisitions{})
	ctx := context.Background()

	require.NoError(t, svc.PostSystemNote(ctx, 1, 100, "Invoice INV-1 uploaded"))

	thread, err := svc.List(ctx, employee(), 100)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	require.True(t, thread[0].System)
	require.Nil(t, thread[0].AuthorID)
}

func TestBlankSystemNoteDropped(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, fakeRequisitions{})

	require.NoError(t, svc.PostSystemNote(context.Background(), 1, 100, "  "))
	require.Empty(t, repo.messages)
}
