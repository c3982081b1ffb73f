package quotation

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/masterdata"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
)

type memRepo struct {
	requests  map[int64]*QuoteRequest
	quotes    map[int64]*Quote
	nextID    int64
	prTotals  map[int64]float64
	prHistory map[int64][]requisition.HistoryEntry
}

func newMemRepo() *memRepo {
	return &memRepo{
		requests:  make(map[int64]*QuoteRequest),
		quotes:    make(map[int64]*Quote),
		nextID:    1,
		prTotals:  make(map[int64]float64),
		prHistory: make(map[int64][]requisition.HistoryEntry),
	}
}

type memState struct {
	requests  map[int64]*QuoteRequest
	quotes    map[int64]*Quote
	nextID    int64
	prTotals  map[int64]float64
	prHistory map[int64][]requisition.HistoryEntry
}

func (m *memRepo) snapshot() memState {
	s := memState{
		requests:  make(map[int64]*QuoteRequest, len(m.requests)),
		quotes:    make(map[int64]*Quote, len(m.quotes)),
		nextID:    m.nextID,
		prTotals:  make(map[int64]float64, len(m.prTotals)),
		prHistory: make(map[int64][]requisition.HistoryEntry, len(m.prHistory)),
	}
	for id, r := range m.requests {
		cp := *r
		s.requests[id] = &cp
	}
	for id, q := range m.quotes {
		cp := *q
		s.quotes[id] = &cp
	}
	for id, t := range m.prTotals {
		s.prTotals[id] = t
	}
	for id, h := range m.prHistory {
		s.prHistory[id] = append([]requisition.HistoryEntry(nil), h...)
	}
	return s
}

func (m *memRepo) restore(s memState) {
	m.requests = s.requests
	m.quotes = s.quotes
	m.nextID = s.nextID
	m.prTotals = s.prTotals
	m.prHistory = s.prHistory
}

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memRepo) CreateRequest(ctx context.Context, req *QuoteRequest) error {
	req.ID = m.nextID
	m.nextID++
	req.Status = RequestPending
	cp := *req
	m.requests[cp.ID] = &cp
	return nil
}

func (m *memRepo) GetRequest(ctx context.Context, id int64) (QuoteRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return QuoteRequest{}, shared.ErrNotFound
	}
	return *req, nil
}

func (m *memRepo) ListRequestsForSupplier(ctx context.Context, supplierID int64) ([]QuoteRequest, error) {
	var out []QuoteRequest
	for _, r := range m.requests {
		if r.SupplierID == supplierID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) ListRequestsForPR(ctx context.Context, orgID, prID int64) ([]QuoteRequest, error) {
	var out []QuoteRequest
	for _, r := range m.requests {
		if r.OrgID == orgID && r.PRID == prID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateRequestStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	req, ok := m.requests[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if req.Status == f {
			req.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) GetQuote(ctx context.Context, id int64) (Quote, error) {
	q, ok := m.quotes[id]
	if !ok {
		return Quote{}, shared.ErrNotFound
	}
	return *q, nil
}

func (m *memRepo) ListQuotesForPR(ctx context.Context, orgID, prID int64) ([]Quote, error) {
	var out []Quote
	for _, q := range m.quotes {
		if q.OrgID == orgID && q.PRID == prID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *memRepo) ListQuotesForSupplier(ctx context.Context, supplierID int64) ([]Quote, error) {
	var out []Quote
	for _, q := range m.quotes {
		if q.SupplierID == supplierID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *memRepo) GetQuoteForUpdate(ctx context.Context, id int64) (Quote, error) {
	return m.GetQuote(ctx, id)
}

func (m *memRepo) InsertQuote(ctx context.Context, q *Quote) error {
	for _, existing := range m.quotes {
		if existing.QuoteRequestID == q.QuoteRequestID && existing.SupplierID == q.SupplierID {
			return ErrDuplicateQuote
		}
	}
	q.ID = m.nextID
	m.nextID++
	q.Status = QuoteSubmitted
	cp := *q
	m.quotes[cp.ID] = &cp
	return nil
}

func (m *memRepo) UpdateQuoteStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	q, ok := m.quotes[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if q.Status == f {
			q.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) SiblingQuoteExists(ctx context.Context, prID, excludeID int64, status string) (bool, error) {
	for _, q := range m.quotes {
		if q.PRID == prID && q.ID != excludeID && q.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) RejectSiblingQuotes(ctx context.Context, prID, acceptedID int64) (int64, error) {
	var n int64
	for _, q := range m.quotes {
		if q.PRID == prID && q.ID != acceptedID && (q.Status == QuoteSubmitted || q.Status == QuoteAccepted) {
			q.Status = QuoteRejected
			n++
		}
	}
	return n, nil
}

func (m *memRepo) SetRequisitionTotal(ctx context.Context, prID int64, total float64) error {
	m.prTotals[prID] = total
	return nil
}

func (m *memRepo) AppendRequisitionHistory(ctx context.Context, prID int64, e requisition.HistoryEntry) error {
	m.prHistory[prID] = append(m.prHistory[prID], e)
	return nil
}

type fakeRequisitions struct {
	prs map[int64]requisition.Requisition
}

func (f *fakeRequisitions) Get(ctx context.Context, orgID, id int64) (requisition.Requisition, error) {
	pr, ok := f.prs[id]
	if !ok || pr.OrgID != orgID {
		return requisition.Requisition{}, shared.ErrNotFound
	}
	return pr, nil
}

type fakeSuppliers struct {
	byUser map[int64]masterdata.Supplier
	byID   map[int64]masterdata.Supplier
}

func (f *fakeSuppliers) SupplierForUser(ctx context.Context, userID int64) (masterdata.Supplier, error) {
	s, ok := f.byUser[userID]
	if !ok {
		return masterdata.Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (f *fakeSuppliers) SupplierInOrg(ctx context.Context, orgID, id int64) (masterdata.Supplier, error) {
	s, ok := f.byID[id]
	if !ok || s.OrgID != orgID {
		return masterdata.Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

type fixture struct {
	repo      *memRepo
	prs       *fakeRequisitions
	suppliers *fakeSuppliers
	svc       *Service
}

func newFixture() *fixture {
	repo := newMemRepo()
	prs := &fakeRequisitions{prs: map[int64]requisition.Requisition{
		100: {
			ID:     100,
			OrgID:  1,
			Status: requisition.StatusFinanceApprove,
			Items: []requisition.Item{
				{ID: 1, Description: "Laptop", Quantity: 2, UnitPrice: 100, Total: 200},
				{ID: 2, Description: "Mouse", Quantity: 1, UnitPrice: 50, Total: 50},
			},
			TotalAmount: 250,
		},
		101: {ID: 101, OrgID: 1, Status: requisition.StatusPendingFinance},
	}}
	suppliers := &fakeSuppliers{
		byUser: map[int64]masterdata.Supplier{
			20: {ID: 2, OrgID: 1, Name: "Acme Supplies", UserID: ptr(int64(20))},
			30: {ID: 3, OrgID: 1, Name: "Besta Traders", UserID: ptr(int64(30))},
		},
		byID: map[int64]masterdata.Supplier{
			2: {ID: 2, OrgID: 1, Name: "Acme Supplies"},
			3: {ID: 3, OrgID: 1, Name: "Besta Traders"},
		},
	}
	svc := NewService(repo, prs, suppliers, nil, slog.Default())
	return &fixture{repo: repo, prs: prs, suppliers: suppliers, svc: svc}
}

func ptr[T any](v T) *T { return &v }

func finance() shared.Actor {
	return shared.Actor{UserID: 9, DisplayName: "Sari Dewi", Role: "FINANCE", OrgID: 1}
}

func supplierActor(userID int64) shared.Actor {
	return shared.Actor{UserID: userID, DisplayName: "Supplier", Role: "SUPPLIER", OrgID: 1}
}

func sendRequest(t *testing.T, fx *fixture, supplierID int64) QuoteRequest {
	t.Helper()
	req, err := fx.svc.SendRequest(context.Background(), finance(), SendRequestInput{
		PRID:       100,
		SupplierID: supplierID,
		Message:    "please quote",
	})
	require.NoError(t, err)
	return req
}

func TestSendRequestSnapshotsItems(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)

	require.Equal(t, RequestPending, req.Status)
	require.Len(t, req.Items, 2)
	require.Equal(t, "Laptop", req.Items[0].Description)
	require.Equal(t, 200.0, req.Items[0].Total)
}

func TestSendRequestSubsetOfItems(t *testing.T) {
	fx := newFixture()
	req, err := fx.svc.SendRequest(context.Background(), finance(), SendRequestInput{
		PRID:       100,
		SupplierID: 2,
		ItemIDs:    []int64{2},
	})
	require.NoError(t, err)
	require.Len(t, req.Items, 1)
	require.Equal(t, "Mouse", req.Items[0].Description)
}

func TestSendRequestRequiresApprovedPR(t *testing.T) {
	fx := newFixture()
	_, err := fx.svc.SendRequest(context.Background(), finance(), SendRequestInput{PRID: 101, SupplierID: 2})
	require.Error(t, err)
	require.Equal(t, "Quotes can only be requested for finance-approved requisitions", shared.UserSafeMessage(err))
}

func TestSendRequestFanOut(t *testing.T) {
	fx := newFixture()
	sendRequest(t, fx, 2)
	sendRequest(t, fx, 3)

	requests, err := fx.svc.RequestsForPR(context.Background(), finance(), 100)
	require.NoError(t, err)
	require.Len(t, requests, 2)
}

func TestSupplierAcceptsOwnRequestOnly(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)
	ctx := context.Background()

	err := fx.svc.AcceptRequest(ctx, supplierActor(30), req.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, fx.svc.AcceptRequest(ctx, supplierActor(20), req.ID))
	stored, err := fx.repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, RequestAccepted, stored.Status)
}

func TestActingTwiceOnRequestFails(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)
	ctx := context.Background()

	require.NoError(t, fx.svc.AcceptRequest(ctx, supplierActor(20), req.ID))
	err := fx.svc.DeclineRequest(ctx, supplierActor(20), req.ID)
	require.Error(t, err)
	require.Equal(t, "This quote request is no longer pending", shared.UserSafeMessage(err))
}

func TestSubmitQuoteFlipsRequestToQuoted(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)
	ctx := context.Background()

	quote, err := fx.svc.SubmitQuote(ctx, supplierActor(20), SubmitQuoteInput{RequestID: req.ID, Amount: 230})
	require.NoError(t, err)
	require.Equal(t, QuoteSubmitted, quote.Status)
	require.Equal(t, 230.0, quote.Amount)

	stored, err := fx.repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, RequestQuoted, stored.Status)
}

func TestSubmitQuoteWithoutAcceptingFirst(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)

	_, err := fx.svc.SubmitQuote(context.Background(), supplierActor(20), SubmitQuoteInput{RequestID: req.ID, Amount: 230})
	require.NoError(t, err)
}

func TestSubmitQuoteOnDeclinedRequestFails(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)
	ctx := context.Background()

	require.NoError(t, fx.svc.DeclineRequest(ctx, supplierActor(20), req.ID))
	_, err := fx.svc.SubmitQuote(ctx, supplierActor(20), SubmitQuoteInput{RequestID: req.ID, Amount: 230})
	require.Error(t, err)
	require.Equal(t, "This quote request can no longer be quoted", shared.UserSafeMessage(err))
}

func TestSubmitQuoteTwiceFails(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)
	ctx := context.Background()

	_, err := fx.svc.SubmitQuote(ctx, supplierActor(20), SubmitQuoteInput{RequestID: req.ID, Amount: 230})
	require.NoError(t, err)
	_, err = fx.svc.SubmitQuote(ctx, supplierActor(20), SubmitQuoteInput{RequestID: req.ID, Amount: 220})
	require.Error(t, err)
	require.Equal(t, "You have already submitted a quote for this request", shared.UserSafeMessage(err))
}

func submitTwoQuotes(t *testing.T, fx *fixture) (Quote, Quote) {
	t.Helper()
	ctx := context.Background()
	reqA := sendRequest(t, fx, 2)
	reqB := sendRequest(t, fx, 3)
	quoteA, err := fx.svc.SubmitQuote(ctx, supplierActor(20), SubmitQuoteInput{RequestID: reqA.ID, Amount: 230})
	require.NoError(t, err)
	quoteB, err := fx.svc.SubmitQuote(ctx, supplierActor(30), SubmitQuoteInput{RequestID: reqB.ID, Amount: 240})
	require.NoError(t, err)
	return quoteA, quoteB
}

func TestAcceptQuoteRejectsSiblingsAtomically(t *testing.T) {
	fx := newFixture()
	quoteA, quoteB := submitTwoQuotes(t, fx)
	ctx := context.Background()

	accepted, err := fx.svc.AcceptQuote(ctx, finance(), quoteA.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteAccepted, accepted.Status)

	storedB, err := fx.repo.GetQuote(ctx, quoteB.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteRejected, storedB.Status)

	// Requisition total now reflects the accepted amount.
	require.Equal(t, 230.0, fx.repo.prTotals[100])

	history := fx.repo.prHistory[100]
	require.Len(t, history, 1)
	require.Equal(t, requisition.ActionQuoteAccepted, history[0].Action)
	require.Contains(t, history[0].Details, "Acme Supplies")
	require.Contains(t, history[0].Details, "auto-rejected")
}

func TestAcceptSecondQuoteAfterFirstFails(t *testing.T) {
	fx := newFixture()
	quoteA, quoteB := submitTwoQuotes(t, fx)
	ctx := context.Background()

	_, err := fx.svc.AcceptQuote(ctx, finance(), quoteA.ID)
	require.NoError(t, err)

	// The competing quote was already auto-rejected by the accept.
	_, err = fx.svc.AcceptQuote(ctx, finance(), quoteB.ID)
	require.Error(t, err)
	require.Equal(t, "Only submitted quotes can be accepted", shared.UserSafeMessage(err))

	accepted := 0
	for _, q := range fx.repo.quotes {
		if q.Status == QuoteAccepted {
			accepted++
		}
	}
	require.Equal(t, 1, accepted)
}

func TestAcceptQuoteTwiceFails(t *testing.T) {
	fx := newFixture()
	quoteA, _ := submitTwoQuotes(t, fx)
	ctx := context.Background()

	_, err := fx.svc.AcceptQuote(ctx, finance(), quoteA.ID)
	require.NoError(t, err)
	_, err = fx.svc.AcceptQuote(ctx, finance(), quoteA.ID)
	require.Error(t, err)
	require.Equal(t, "This quote has already been accepted", shared.UserSafeMessage(err))
}

func TestAcceptQuoteBlockedAfterSiblingInvoice(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	reqA := sendRequest(t, fx, 2)
	reqB := sendRequest(t, fx, 3)

	quoteA, err := fx.svc.SubmitQuote(ctx, supplierActor(20), SubmitQuoteInput{RequestID: reqA.ID, Amount: 230})
	require.NoError(t, err)
	_, err = fx.svc.AcceptQuote(ctx, finance(), quoteA.ID)
	require.NoError(t, err)
	// The winning supplier's invoice lands before the competitor quotes.
	fx.repo.quotes[quoteA.ID].Status = QuoteInvoiceUploaded

	quoteB, err := fx.svc.SubmitQuote(ctx, supplierActor(30), SubmitQuoteInput{RequestID: reqB.ID, Amount: 220})
	require.NoError(t, err)

	_, err = fx.svc.AcceptQuote(ctx, finance(), quoteB.ID)
	require.Error(t, err)
	require.Equal(t, "An invoice has already been uploaded against another quote for this requisition", shared.UserSafeMessage(err))

	storedA, err := fx.repo.GetQuote(ctx, quoteA.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteInvoiceUploaded, storedA.Status)
	storedB, err := fx.repo.GetQuote(ctx, quoteB.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteSubmitted, storedB.Status)
	// The requisition still carries the settled award's amount.
	require.Equal(t, 230.0, fx.repo.prTotals[100])
}

func TestAcceptQuoteRequiresCapability(t *testing.T) {
	fx := newFixture()
	quoteA, _ := submitTwoQuotes(t, fx)

	_, err := fx.svc.AcceptQuote(context.Background(), supplierActor(20), quoteA.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestManualRejectQuote(t *testing.T) {
	fx := newFixture()
	quoteA, quoteB := submitTwoQuotes(t, fx)
	ctx := context.Background()

	require.NoError(t, fx.svc.RejectQuote(ctx, finance(), quoteA.ID))
	storedA, err := fx.repo.GetQuote(ctx, quoteA.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteRejected, storedA.Status)

	// The other quote is untouched.
	storedB, err := fx.repo.GetQuote(ctx, quoteB.ID)
	require.NoError(t, err)
	require.Equal(t, QuoteSubmitted, storedB.Status)
}

func TestUnlinkedSupplierAccountCannotAct(t *testing.T) {
	fx := newFixture()
	req := sendRequest(t, fx, 2)

	err := fx.svc.AcceptRequest(context.Background(), supplierActor(99), req.ID)
	require.Error(t, err)
	require.Equal(t, "Your account is not linked to a supplier", shared.UserSafeMessage(err))
}
