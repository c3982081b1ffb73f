package requisition

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/users"
)

// memRepo is an in-memory RepositoryPort whose WithTx snapshots state and
// restores it on error, mirroring a real rollback.
type memRepo struct {
	prs        map[int64]*Requisition
	nextID     int64
	nextItemID int64
	nextHistID int64
	txIDs      map[string]bool

	insertCount  int
	failInsertOn int
}

func newMemRepo() *memRepo {
	return &memRepo{
		prs:        make(map[int64]*Requisition),
		nextID:     1,
		nextItemID: 1,
		nextHistID: 1,
		txIDs:      make(map[string]bool),
	}
}

type memSnapshot struct {
	prs        map[int64]*Requisition
	nextID     int64
	nextItemID int64
	nextHistID int64
	txIDs      map[string]bool
}

func (m *memRepo) snapshot() memSnapshot {
	prs := make(map[int64]*Requisition, len(m.prs))
	for id, pr := range m.prs {
		cp := *pr
		cp.Items = append([]Item(nil), pr.Items...)
		cp.History = append([]HistoryEntry(nil), pr.History...)
		prs[id] = &cp
	}
	txIDs := make(map[string]bool, len(m.txIDs))
	for k, v := range m.txIDs {
		txIDs[k] = v
	}
	return memSnapshot{prs: prs, nextID: m.nextID, nextItemID: m.nextItemID, nextHistID: m.nextHistID, txIDs: txIDs}
}

func (m *memRepo) restore(s memSnapshot) {
	m.prs = s.prs
	m.nextID = s.nextID
	m.nextItemID = s.nextItemID
	m.nextHistID = s.nextHistID
	m.txIDs = s.txIDs
}

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memRepo) Get(ctx context.Context, orgID, id int64) (Requisition, error) {
	pr, ok := m.prs[id]
	if !ok || pr.OrgID != orgID {
		return Requisition{}, shared.ErrNotFound
	}
	cp := *pr
	cp.Items = append([]Item(nil), pr.Items...)
	cp.History = append([]HistoryEntry(nil), pr.History...)
	return cp, nil
}

func (m *memRepo) List(ctx context.Context, f ListFilters) ([]Requisition, int, error) {
	var out []Requisition
	for _, pr := range m.prs {
		if pr.OrgID != f.OrgID {
			continue
		}
		if f.Status != "" && pr.Status != f.Status {
			continue
		}
		if f.RequesterID != 0 && pr.RequesterID != f.RequesterID {
			continue
		}
		if f.ParentID != 0 && (pr.ParentID == nil || *pr.ParentID != f.ParentID) {
			continue
		}
		out = append(out, *pr)
	}
	return out, len(out), nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, orgID, id int64) (Requisition, error) {
	return m.Get(ctx, orgID, id)
}

func (m *memRepo) Insert(ctx context.Context, pr *Requisition) error {
	m.insertCount++
	if m.failInsertOn > 0 && m.insertCount == m.failInsertOn {
		return errors.New("insert failed")
	}
	if m.txIDs[pr.TransactionID] {
		return ErrDuplicateTransactionID
	}
	pr.ID = m.nextID
	m.nextID++
	m.txIDs[pr.TransactionID] = true
	cp := *pr
	m.prs[cp.ID] = &cp
	return nil
}

func (m *memRepo) InsertItems(ctx context.Context, prID int64, items []Item) ([]Item, error) {
	out := make([]Item, len(items))
	for i, it := range items {
		it.ID = m.nextItemID
		m.nextItemID++
		out[i] = it
	}
	m.prs[prID].Items = append(m.prs[prID].Items, out...)
	return out, nil
}

func (m *memRepo) AppendHistory(ctx context.Context, prID int64, e HistoryEntry) error {
	e.ID = m.nextHistID
	m.nextHistID++
	m.prs[prID].History = append(m.prs[prID].History, e)
	return nil
}

func (m *memRepo) UpdateStatus(ctx context.Context, id int64, from []string, to, hodStatus, financeStatus string) (bool, error) {
	pr, ok := m.prs[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, f := range from {
		if pr.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	pr.Status = to
	pr.HODStatus = hodStatus
	pr.FinanceStatus = financeStatus
	return true, nil
}

func (m *memRepo) SetCategory(ctx context.Context, id, categoryID int64) error {
	m.prs[id].CategoryID = &categoryID
	return nil
}

type fakeDirectory struct {
	hasHOD   bool
	profiles map[int64]users.Profile
}

func (f *fakeDirectory) OrgHasHOD(ctx context.Context, orgID int64) (bool, error) {
	return f.hasHOD, nil
}

func (f *fakeDirectory) GetProfile(ctx context.Context, userID int64) (users.Profile, error) {
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return users.Profile{UserID: userID}, nil
}

type fakeCategories struct {
	ids map[int64]bool
}

func (f *fakeCategories) CategoryExists(ctx context.Context, orgID, categoryID int64) (bool, error) {
	return f.ids[categoryID], nil
}

type fakeNotifier struct {
	actions []string
}

func (f *fakeNotifier) RequisitionStatusChanged(ctx context.Context, pr Requisition, action string) error {
	f.actions = append(f.actions, action)
	return nil
}

type fixture struct {
	repo       *memRepo
	directory  *fakeDirectory
	categories *fakeCategories
	notifier   *fakeNotifier
	svc        *Service
}

func newFixture(hasHOD bool) *fixture {
	repo := newMemRepo()
	dir := &fakeDirectory{hasHOD: hasHOD, profiles: map[int64]users.Profile{
		7: {UserID: 7, DisplayName: "Eka Putri", OrgID: 1, Department: "Operations"},
	}}
	cats := &fakeCategories{ids: map[int64]bool{5: true}}
	notifier := &fakeNotifier{}
	svc := NewService(repo, dir, cats, notifier, slog.Default())
	return &fixture{repo: repo, directory: dir, categories: cats, notifier: notifier, svc: svc}
}

func requester() shared.Actor {
	return shared.Actor{UserID: 7, DisplayName: "Eka Putri", Role: "EMPLOYEE", OrgID: 1}
}

func hodActor() shared.Actor {
	return shared.Actor{UserID: 8, DisplayName: "Budi Santoso", Role: "HOD", OrgID: 1}
}

func financeActor() shared.Actor {
	return shared.Actor{UserID: 9, DisplayName: "Sari Dewi", Role: "FINANCE", OrgID: 1}
}

func createPR(t *testing.T, fx *fixture) Requisition {
	t.Helper()
	pr, err := fx.svc.Create(context.Background(), requester(), CreateRequest{
		Items: []Item{
			{Description: "Laptop", Quantity: 2, UnitPrice: 100},
			{Description: "Mouse", Quantity: 1, UnitPrice: 50},
		},
	})
	require.NoError(t, err)
	return pr
}

func TestCreateSkipsHODWhenOrgHasNone(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)

	require.Equal(t, StatusPendingFinance, pr.Status)
	require.Equal(t, SubstatusSkipped, pr.HODStatus)
	require.Equal(t, SubstatusPending, pr.FinanceStatus)
	require.Equal(t, 250.0, pr.TotalAmount)
	require.Len(t, pr.History, 1)
	require.Equal(t, ActionCreated, pr.History[0].Action)
	require.Regexp(t, `^PR-\d{8}-\d{4}$`, pr.TransactionID)
	require.Equal(t, "Operations", pr.Department)
}

func TestCreateEntersHODQueue(t *testing.T) {
	fx := newFixture(true)
	pr := createPR(t, fx)

	require.Equal(t, StatusPendingHOD, pr.Status)
	require.Equal(t, SubstatusPending, pr.HODStatus)
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	fx := newFixture(false)
	_, err := fx.svc.Create(context.Background(), requester(), CreateRequest{})
	require.Error(t, err)
	require.Equal(t, "At least one item is required", shared.UserSafeMessage(err))
}

func TestCreateRejectsZeroQuantity(t *testing.T) {
	fx := newFixture(false)
	_, err := fx.svc.Create(context.Background(), requester(), CreateRequest{
		Items: []Item{{Description: "Laptop", Quantity: 0, UnitPrice: 10}},
	})
	require.Error(t, err)
	require.Equal(t, "Item quantity must be greater than zero", shared.UserSafeMessage(err))
}

func TestHODApproveMovesToFinanceQueue(t *testing.T) {
	fx := newFixture(true)
	pr := createPR(t, fx)

	updated, err := fx.svc.HODApprove(context.Background(), hodActor(), pr.ID, "looks fine")
	require.NoError(t, err)
	require.Equal(t, StatusPendingFinance, updated.Status)
	require.Equal(t, SubstatusApproved, updated.HODStatus)
	require.Equal(t, SubstatusPending, updated.FinanceStatus)

	stored, err := fx.repo.Get(context.Background(), 1, pr.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 2)
	require.Equal(t, ActionHODApproved, stored.History[1].Action)
	require.Equal(t, "looks fine", stored.History[1].Details)
	require.Equal(t, "Budi Santoso", stored.History[1].ActorName)
}

func TestReviewRequiresComment(t *testing.T) {
	fx := newFixture(true)
	pr := createPR(t, fx)

	_, err := fx.svc.HODDecline(context.Background(), hodActor(), pr.ID, "   ")
	require.Error(t, err)
	require.Equal(t, "A comment is required to approve or decline", shared.UserSafeMessage(err))

	stored, err := fx.repo.Get(context.Background(), 1, pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingHOD, stored.Status)
	require.Len(t, stored.History, 1)
}

func TestReviewRequiresCapability(t *testing.T) {
	fx := newFixture(true)
	pr := createPR(t, fx)

	_, err := fx.svc.HODApprove(context.Background(), requester(), pr.ID, "ok")
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = fx.svc.FinanceDecline(context.Background(), hodActor(), pr.ID, "ok")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestFinanceApproveAttachesCategory(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)

	updated, err := fx.svc.FinanceApprove(context.Background(), financeActor(), pr.ID, 5, "ok")
	require.NoError(t, err)
	require.Equal(t, StatusFinanceApprove, updated.Status)
	require.NotNil(t, updated.CategoryID)
	require.Equal(t, int64(5), *updated.CategoryID)

	stored, err := fx.repo.Get(context.Background(), 1, pr.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 2)
	require.Equal(t, ActionFinanceApproved, stored.History[1].Action)
}

func TestFinanceApproveRequiresKnownCategory(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)

	_, err := fx.svc.FinanceApprove(context.Background(), financeActor(), pr.ID, 99, "ok")
	require.Error(t, err)
	require.Equal(t, "The chosen category does not exist", shared.UserSafeMessage(err))

	_, err = fx.svc.FinanceApprove(context.Background(), financeActor(), pr.ID, 0, "ok")
	require.Error(t, err)
	require.Equal(t, "A category is required for finance approval", shared.UserSafeMessage(err))
}

func TestTerminalStatusNeverTransitions(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)

	_, err := fx.svc.FinanceDecline(context.Background(), financeActor(), pr.ID, "over budget")
	require.NoError(t, err)

	_, err = fx.svc.FinanceApprove(context.Background(), financeActor(), pr.ID, 5, "changed my mind")
	require.Error(t, err)
	require.Equal(t, "This requisition has already been finalized", shared.UserSafeMessage(err))

	stored, err := fx.repo.Get(context.Background(), 1, pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFinanceDecline, stored.Status)
	require.Len(t, stored.History, 2)
}

func splitGroups(pr Requisition) []SplitGroup {
	return []SplitGroup{
		{ItemIDs: []int64{pr.Items[0].ID}, Comment: "hardware"},
		{ItemIDs: []int64{pr.Items[1].ID}, Comment: "accessories"},
	}
}

func TestSplitCreatesChildrenAtomically(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)

	children, err := fx.svc.Split(context.Background(), financeActor(), pr.ID, splitGroups(pr))
	require.NoError(t, err)
	require.Len(t, children, 2)

	require.Equal(t, pr.TransactionID+"-1", children[0].TransactionID)
	require.Equal(t, pr.TransactionID+"-2", children[1].TransactionID)
	var childTotal float64
	for _, c := range children {
		require.Equal(t, StatusPendingFinance, c.Status)
		require.NotNil(t, c.ParentID)
		require.Equal(t, pr.ID, *c.ParentID)
		require.Len(t, c.History, 1)
		require.Equal(t, ActionSplitChildCreated, c.History[0].Action)
		childTotal += c.TotalAmount
	}
	require.Equal(t, pr.TotalAmount, childTotal)

	parent, err := fx.repo.Get(context.Background(), 1, pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSplit, parent.Status)
	require.Equal(t, ActionSplitByFinance, parent.History[len(parent.History)-1].Action)
}

func TestSplitRejectsIncompletePartition(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)
	ctx := context.Background()

	_, err := fx.svc.Split(ctx, financeActor(), pr.ID, []SplitGroup{
		{ItemIDs: []int64{pr.Items[0].ID}, Comment: "only one"},
		{ItemIDs: []int64{999}, Comment: "unknown"},
	})
	require.Error(t, err)
	require.Equal(t, "A split group references an item that is not on this requisition", shared.UserSafeMessage(err))

	_, err = fx.svc.Split(ctx, financeActor(), pr.ID, []SplitGroup{
		{ItemIDs: []int64{pr.Items[0].ID}, Comment: "a"},
		{ItemIDs: []int64{pr.Items[0].ID}, Comment: "b"},
	})
	require.Error(t, err)
	require.Equal(t, "An item cannot appear in more than one split group", shared.UserSafeMessage(err))

	_, err = fx.svc.Split(ctx, financeActor(), pr.ID, []SplitGroup{
		{ItemIDs: []int64{pr.Items[0].ID}, Comment: "a"},
		{ItemIDs: nil, Comment: "empty"},
	})
	require.Error(t, err)
	require.Equal(t, "A split needs at least two groups with items", shared.UserSafeMessage(err))

	_, err = fx.svc.Split(ctx, financeActor(), pr.ID, []SplitGroup{
		{ItemIDs: []int64{pr.Items[0].ID}, Comment: "a"},
		{ItemIDs: []int64{pr.Items[1].ID}, Comment: " "},
	})
	require.Error(t, err)
	require.Equal(t, "Every split group needs a comment", shared.UserSafeMessage(err))

	stored, err := fx.repo.Get(ctx, 1, pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingFinance, stored.Status)
	require.Len(t, stored.History, 1)
}

func TestSplitChildCannotBeSplitAgain(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)
	ctx := context.Background()

	children, err := fx.svc.Split(ctx, financeActor(), pr.ID, splitGroups(pr))
	require.NoError(t, err)

	child := children[0]
	_, err = fx.svc.Split(ctx, financeActor(), child.ID, []SplitGroup{
		{ItemIDs: []int64{child.Items[0].ID}, Comment: "a"},
		{ItemIDs: []int64{child.Items[0].ID}, Comment: "b"},
	})
	require.Error(t, err)
	require.Equal(t, "A requisition created by a split cannot be split again", shared.UserSafeMessage(err))
}

func TestSplitRollsBackOnChildInsertFailure(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)
	ctx := context.Background()

	// First insert was the parent; fail on the second child's insert.
	fx.repo.failInsertOn = 3

	_, err := fx.svc.Split(ctx, financeActor(), pr.ID, splitGroups(pr))
	require.Error(t, err)

	stored, err := fx.repo.Get(ctx, 1, pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingFinance, stored.Status)
	require.Len(t, stored.History, 1)

	list, total, err := fx.repo.List(ctx, ListFilters{OrgID: 1})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
}

func TestEmployeeSeesOnlyOwnRequisitions(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)
	ctx := context.Background()

	other := shared.Actor{UserID: 99, DisplayName: "Other", Role: "EMPLOYEE", OrgID: 1}
	_, err := fx.svc.Get(ctx, other, pr.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	list, _, err := fx.svc.List(ctx, other, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, list)

	mine, _, err := fx.svc.List(ctx, requester(), ListFilters{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestNotifierObservesTransitions(t *testing.T) {
	fx := newFixture(false)
	pr := createPR(t, fx)

	_, err := fx.svc.FinanceApprove(context.Background(), financeActor(), pr.ID, 5, "ok")
	require.NoError(t, err)
	require.Equal(t, []string{ActionCreated, ActionFinanceApproved}, fx.notifier.actions)
}
