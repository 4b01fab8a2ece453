package withdrawal

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage"
	"github.com/novadex/wallet-layer/internal/app/storage/memory"
	"github.com/novadex/wallet-layer/internal/dedup"
	"github.com/novadex/wallet-layer/internal/errors"
	"github.com/novadex/wallet-layer/internal/gateway"
)

const (
	userA      = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	recipientA = "0x1111111111111111111111111111111111111111"
)

type fakeAuthority struct {
	submitResp *gateway.AuthorityResponse
	submitErr  error
	statusResp *gateway.AuthorityResponse
	statusErr  error

	submitted []gateway.SubmitRequest
	queried   []string
}

func (f *fakeAuthority) Submit(_ context.Context, req gateway.SubmitRequest) (*gateway.AuthorityResponse, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResp, nil
}

func (f *fakeAuthority) QueryStatus(_ context.Context, requestID string) (*gateway.AuthorityResponse, error) {
	f.queried = append(f.queried, requestID)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResp, nil
}

type failingWithdrawalStore struct {
	storage.WithdrawalStore
	createErr error
	listErr   error
}

func (f *failingWithdrawalStore) CreateWithdrawal(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalRequest, error) {
	if f.createErr != nil {
		return wallet.WithdrawalRequest{}, f.createErr
	}
	return f.WithdrawalStore.CreateWithdrawal(ctx, req)
}

func (f *failingWithdrawalStore) ListWithdrawals(ctx context.Context, userAddress string) ([]wallet.WithdrawalRequest, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.WithdrawalStore.ListWithdrawals(ctx, userAddress)
}

func wantCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	se := errors.GetServiceError(err)
	if se == nil {
		t.Fatalf("expected service error with code %s, got %v", code, err)
	}
	if se.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, se.Code, se.Message)
	}
}

func TestCreateForwardsAndMirrors(t *testing.T) {
	store := memory.New()
	auth := &fakeAuthority{submitResp: &gateway.AuthorityResponse{RequestID: "req-1", Status: "pending"}}
	svc := New(store, auth, nil, nil)

	res, err := svc.Create(context.Background(), userA, "GAS", 2.5, recipientA)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if res.MirrorErr != nil {
		t.Fatalf("unexpected mirror error: %v", res.MirrorErr)
	}
	if res.Request.RequestID != "req-1" {
		t.Fatalf("expected authority request id, got %q", res.Request.RequestID)
	}
	if res.Request.Status != wallet.WithdrawalPending {
		t.Fatalf("mirror should start pending, got %s", res.Request.Status)
	}

	if len(auth.submitted) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(auth.submitted))
	}
	got := auth.submitted[0]
	if got.Token != "GAS" || got.Amount != 2.5 || got.Address != recipientA {
		t.Fatalf("unexpected submit payload: %+v", got)
	}
	if got.UserAddress != wallet.NormalizeAddress(userA) {
		t.Fatalf("user address not normalized: %q", got.UserAddress)
	}

	stored, err := store.GetWithdrawal(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("mirror row missing: %v", err)
	}
	if stored.UserAddress != wallet.NormalizeAddress(userA) {
		t.Fatalf("unexpected mirrored user: %q", stored.UserAddress)
	}
}

func TestCreateGeneratesRequestIDWhenAuthorityOmitsOne(t *testing.T) {
	store := memory.New()
	auth := &fakeAuthority{submitResp: &gateway.AuthorityResponse{Status: "pending"}}
	svc := New(store, auth, nil, nil)

	res, err := svc.Create(context.Background(), userA, "GAS", 1, recipientA)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if res.Request.RequestID == "" {
		t.Fatal("expected a generated request id")
	}
	if _, err := store.GetWithdrawal(context.Background(), res.Request.RequestID); err != nil {
		t.Fatalf("mirror row missing: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := New(memory.New(), &fakeAuthority{}, nil, nil)

	cases := []struct {
		name      string
		user      string
		token     string
		amount    float64
		recipient string
	}{
		{"bad recipient", userA, "GAS", 1, "not-an-address"},
		{"bad user", "0x123", "GAS", 1, recipientA},
		{"empty token", userA, "  ", 1, recipientA},
		{"zero amount", userA, "GAS", 0, recipientA},
		{"negative amount", userA, "GAS", -3, recipientA},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.user, tc.token, tc.amount, tc.recipient)
			wantCode(t, err, errors.CodeInvalidArgument)
		})
	}
}

func TestCreateSuppressesRapidDuplicates(t *testing.T) {
	auth := &fakeAuthority{submitResp: &gateway.AuthorityResponse{RequestID: "req-1", Status: "pending"}}
	svc := New(memory.New(), auth, nil, nil)

	if _, err := svc.Create(context.Background(), userA, "GAS", 2, recipientA); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := svc.Create(context.Background(), userA, "GAS", 2, recipientA)
	wantCode(t, err, errors.CodeDuplicateRequest)

	if len(auth.submitted) != 1 {
		t.Fatalf("suppressed request must not reach the authority, got %d submits", len(auth.submitted))
	}

	// A different amount is a different request and goes through.
	auth.submitResp = &gateway.AuthorityResponse{RequestID: "req-2", Status: "pending"}
	if _, err := svc.Create(context.Background(), userA, "GAS", 3, recipientA); err != nil {
		t.Fatalf("distinct request rejected: %v", err)
	}
}

func TestCreateAuthorityFailureLeavesNoMirror(t *testing.T) {
	store := memory.New()
	auth := &fakeAuthority{submitErr: errors.GatewayUnreachable(stderrors.New("connection refused"))}
	svc := New(store, auth, nil, nil)

	_, err := svc.Create(context.Background(), userA, "GAS", 1, recipientA)
	wantCode(t, err, errors.CodeGatewayUnreachable)

	reqs, err := store.ListWithdrawals(context.Background(), userA)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("no mirror row expected after authority failure, got %d", len(reqs))
	}
}

func TestCreateMirrorCollisionReturnsExisting(t *testing.T) {
	store := memory.New()
	existing := wallet.WithdrawalRequest{
		RequestID:        "req-1",
		UserAddress:      wallet.NormalizeAddress(userA),
		Token:            "GAS",
		Amount:           2,
		RecipientAddress: recipientA,
		Status:           wallet.WithdrawalApproved,
	}
	if _, err := store.CreateWithdrawal(context.Background(), existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	auth := &fakeAuthority{submitResp: &gateway.AuthorityResponse{RequestID: "req-1", Status: "pending"}}
	svc := New(store, auth, nil, nil)

	res, err := svc.Create(context.Background(), userA, "GAS", 2, recipientA)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if res.MirrorErr != nil {
		t.Fatalf("collision with known request is not an error: %v", res.MirrorErr)
	}
	if res.Request.Status != wallet.WithdrawalApproved {
		t.Fatalf("expected the existing mirror row back, got status %s", res.Request.Status)
	}
}

func TestCreateMirrorCollisionWithDifferentPayloadConflicts(t *testing.T) {
	store := memory.New()
	existing := wallet.WithdrawalRequest{
		RequestID:        "req-1",
		UserAddress:      "0x9999999999999999999999999999999999999999",
		Token:            "NEO",
		Amount:           7,
		RecipientAddress: recipientA,
		Status:           wallet.WithdrawalPending,
	}
	if _, err := store.CreateWithdrawal(context.Background(), existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	auth := &fakeAuthority{submitResp: &gateway.AuthorityResponse{RequestID: "req-1", Status: "pending"}}
	svc := New(store, auth, nil, nil)

	res, err := svc.Create(context.Background(), userA, "GAS", 2, recipientA)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	wantCode(t, res.MirrorErr, errors.CodeDuplicateRequestID)
}

func TestCreateMirrorFailureIsReportedSeparately(t *testing.T) {
	store := &failingWithdrawalStore{WithdrawalStore: memory.New(), createErr: stderrors.New("disk full")}
	auth := &fakeAuthority{submitResp: &gateway.AuthorityResponse{RequestID: "req-1", Status: "pending"}}
	svc := New(store, auth, nil, nil)

	res, err := svc.Create(context.Background(), userA, "GAS", 1, recipientA)
	if err != nil {
		t.Fatalf("authority accepted, create must not fail outright: %v", err)
	}
	if res.MirrorErr == nil {
		t.Fatal("expected mirror error to be reported")
	}
	wantCode(t, res.MirrorErr, errors.CodeStorageFailure)
	if res.Authority == nil || res.Authority.RequestID != "req-1" {
		t.Fatalf("authority response must survive the mirror failure: %+v", res.Authority)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	store := memory.New()
	svc := New(store, &fakeAuthority{}, nil, nil)
	seed := wallet.WithdrawalRequest{
		RequestID:        "req-1",
		UserAddress:      wallet.NormalizeAddress(userA),
		Token:            "GAS",
		Amount:           1,
		RecipientAddress: recipientA,
		Status:           wallet.WithdrawalPending,
	}
	if _, err := store.CreateWithdrawal(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), "req-1", wallet.WithdrawalApproved)
	if err != nil {
		t.Fatalf("pending to approved failed: %v", err)
	}
	if updated.Status != wallet.WithdrawalApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}

	if _, err := svc.UpdateStatus(context.Background(), "req-1", wallet.WithdrawalCompleted); err != nil {
		t.Fatalf("approved to completed failed: %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), "req-1", wallet.WithdrawalPending)
	wantCode(t, err, errors.CodeInvalidArgument)

	_, err = svc.UpdateStatus(context.Background(), "missing", wallet.WithdrawalApproved)
	wantCode(t, err, errors.CodeNotFound)

	_, err = svc.UpdateStatus(context.Background(), "req-1", wallet.WithdrawalStatus("shipped"))
	wantCode(t, err, errors.CodeInvalidArgument)
}

func TestStatusProxiesAndMirrors(t *testing.T) {
	store := memory.New()
	seed := wallet.WithdrawalRequest{
		RequestID:        "req-1",
		UserAddress:      wallet.NormalizeAddress(userA),
		Token:            "GAS",
		Amount:           1,
		RecipientAddress: recipientA,
		Status:           wallet.WithdrawalPending,
	}
	if _, err := store.CreateWithdrawal(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	auth := &fakeAuthority{statusResp: &gateway.AuthorityResponse{RequestID: "req-1", Status: "approved"}}
	svc := New(store, auth, nil, nil)

	resp, err := svc.Status(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if resp.Status != "approved" {
		t.Fatalf("unexpected proxied status: %q", resp.Status)
	}

	mirrored, err := store.GetWithdrawal(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("mirror read failed: %v", err)
	}
	if mirrored.Status != wallet.WithdrawalApproved {
		t.Fatalf("authority status not mirrored, got %s", mirrored.Status)
	}
}

func TestStatusMirrorsSkippedObservations(t *testing.T) {
	store := memory.New()
	seed := wallet.WithdrawalRequest{
		RequestID:        "req-1",
		UserAddress:      wallet.NormalizeAddress(userA),
		Token:            "GAS",
		Amount:           1,
		RecipientAddress: recipientA,
		Status:           wallet.WithdrawalPending,
	}
	if _, err := store.CreateWithdrawal(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// The authority approved and completed the request between polls; the
	// mirror never saw approved and must still converge.
	auth := &fakeAuthority{statusResp: &gateway.AuthorityResponse{RequestID: "req-1", Status: "completed"}}
	svc := New(store, auth, nil, nil)

	if _, err := svc.Status(context.Background(), "req-1"); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	mirrored, err := store.GetWithdrawal(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("mirror read failed: %v", err)
	}
	if mirrored.Status != wallet.WithdrawalCompleted {
		t.Fatalf("mirror stuck at %s, should be completed", mirrored.Status)
	}
}

func TestStatusUnknownLocallyStillAnswers(t *testing.T) {
	auth := &fakeAuthority{statusResp: &gateway.AuthorityResponse{RequestID: "req-x", Status: "approved"}}
	svc := New(memory.New(), auth, nil, nil)

	resp, err := svc.Status(context.Background(), "req-x")
	if err != nil {
		t.Fatalf("status must not fail when the mirror lacks the row: %v", err)
	}
	if resp.Status != "approved" {
		t.Fatalf("unexpected status: %q", resp.Status)
	}
}

func TestStatusGatewayErrorPropagates(t *testing.T) {
	auth := &fakeAuthority{statusErr: errors.GatewayTimeout(stderrors.New("deadline exceeded"))}
	svc := New(memory.New(), auth, nil, nil)

	_, err := svc.Status(context.Background(), "req-1")
	wantCode(t, err, errors.CodeGatewayTimeout)
}

func TestListDegradesOnStorageFailure(t *testing.T) {
	store := &failingWithdrawalStore{WithdrawalStore: memory.New(), listErr: stderrors.New("connection reset")}
	svc := New(store, &fakeAuthority{}, nil, nil)

	reqs, err := svc.List(context.Background(), userA)
	if err != nil {
		t.Fatalf("list must degrade, not fail: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected empty degraded view, got %d", len(reqs))
	}
}

func TestRefreshOnceReconcilesOpenRequests(t *testing.T) {
	store := memory.New()
	for _, seed := range []wallet.WithdrawalRequest{
		{RequestID: "req-1", UserAddress: wallet.NormalizeAddress(userA), Token: "GAS", Amount: 1, RecipientAddress: recipientA, Status: wallet.WithdrawalPending},
		{RequestID: "req-2", UserAddress: wallet.NormalizeAddress(userA), Token: "GAS", Amount: 2, RecipientAddress: recipientA, Status: wallet.WithdrawalApproved},
		{RequestID: "req-3", UserAddress: wallet.NormalizeAddress(userA), Token: "GAS", Amount: 3, RecipientAddress: recipientA, Status: wallet.WithdrawalRejected},
	} {
		if _, err := store.CreateWithdrawal(context.Background(), seed); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	auth := &fakeAuthority{statusResp: &gateway.AuthorityResponse{Status: "completed"}}
	svc := New(store, auth, dedup.NewCache(dedup.DefaultWindow), nil)
	ref := NewRefresher(svc, store, 0, nil)

	ref.refreshOnce(context.Background())

	// Rejected is terminal and must not be queried.
	if len(auth.queried) != 2 {
		t.Fatalf("expected 2 authority queries, got %d (%v)", len(auth.queried), auth.queried)
	}

	// Both open requests converge on the reported status, the pending one by
	// skipping the approved state it was never seen in.
	one, _ := store.GetWithdrawal(context.Background(), "req-1")
	if one.Status != wallet.WithdrawalCompleted {
		t.Fatalf("pending request should converge to completed, got %s", one.Status)
	}
	two, _ := store.GetWithdrawal(context.Background(), "req-2")
	if two.Status != wallet.WithdrawalCompleted {
		t.Fatalf("approved request should complete, got %s", two.Status)
	}
}

func TestRefreshOnceIgnoresUnknownReportedStatus(t *testing.T) {
	store := memory.New()
	seed := wallet.WithdrawalRequest{RequestID: "req-1", UserAddress: wallet.NormalizeAddress(userA), Token: "GAS", Amount: 1, RecipientAddress: recipientA, Status: wallet.WithdrawalPending}
	if _, err := store.CreateWithdrawal(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	auth := &fakeAuthority{statusResp: &gateway.AuthorityResponse{Status: "processing"}}
	svc := New(store, auth, nil, nil)
	NewRefresher(svc, store, 0, nil).refreshOnce(context.Background())

	got, _ := store.GetWithdrawal(context.Background(), "req-1")
	if got.Status != wallet.WithdrawalPending {
		t.Fatalf("unknown authority status must be ignored, got %s", got.Status)
	}
}
