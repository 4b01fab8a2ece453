package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage/memory"
	svcerrors "github.com/novadex/wallet-layer/internal/errors"
)

const userA = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func TestMutateSetSubtract(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	got, err := svc.Mutate(ctx, userA, "ETH", 5, wallet.OpAdd)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got != 5 {
		t.Fatalf("add on empty ledger: got %v, want 5", got)
	}

	got, err = svc.Mutate(ctx, userA, "ETH", 2, wallet.OpSubtract)
	if err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if got != 3 {
		t.Fatalf("subtract: got %v, want 3", got)
	}
}

func TestSubtractNeverGoesNegative(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if _, err := svc.Mutate(ctx, userA, "ETH", 3, wallet.OpSet); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := svc.Mutate(ctx, userA, "ETH", 10, wallet.OpSubtract)
	if err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if got != 0 {
		t.Fatalf("balance must floor at zero, got %v", got)
	}
}

func TestMutateValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"bad address", func() error {
			_, err := svc.Mutate(ctx, "not-an-address", "ETH", 1, wallet.OpAdd)
			return err
		}},
		{"empty token", func() error {
			_, err := svc.Mutate(ctx, userA, "", 1, wallet.OpAdd)
			return err
		}},
		{"negative amount", func() error {
			_, err := svc.Mutate(ctx, userA, "ETH", -1, wallet.OpAdd)
			return err
		}},
		{"unknown op", func() error {
			_, err := svc.Mutate(ctx, userA, "ETH", 1, "divide")
			return err
		}},
	}
	for _, c := range cases {
		err := c.call()
		se := svcerrors.GetServiceError(err)
		if se == nil || se.Code != svcerrors.CodeInvalidArgument {
			t.Fatalf("%s: expected InvalidArgument, got %v", c.name, err)
		}
	}
}

func TestConcurrentAdds(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Mutate(ctx, userA, "ETH", 10, wallet.OpAdd); err != nil {
				t.Errorf("concurrent add: %v", err)
			}
		}()
	}
	wg.Wait()

	balances, err := svc.Balances(ctx, userA)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances["ETH"] != 20 {
		t.Fatalf("lost update: got %v, want 20", balances["ETH"])
	}
}

func TestSyncAppliesSetPerToken(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	// Pre-existing balance must be overwritten, not accumulated.
	if _, err := svc.Mutate(ctx, userA, "ETH", 100, wallet.OpSet); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.Sync(ctx, userA, map[string]float64{"ETH": 5, "USDT": 42}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	balances, err := svc.Balances(ctx, userA)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances["ETH"] != 5 || balances["USDT"] != 42 {
		t.Fatalf("sync did not set balances: %#v", balances)
	}
}

func TestSyncValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if err := svc.Sync(ctx, "bogus", map[string]float64{"ETH": 1}); svcerrors.GetServiceError(err) == nil {
		t.Fatalf("expected invalid address error, got %v", err)
	}
	if err := svc.Sync(ctx, userA, nil); svcerrors.GetServiceError(err) == nil {
		t.Fatalf("expected empty balances error, got %v", err)
	}
}

func TestBalancesUnknownUserEmptyMap(t *testing.T) {
	svc := New(memory.New(), nil)
	balances, err := svc.Balances(context.Background(), userA)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances == nil || len(balances) != 0 {
		t.Fatalf("expected empty map, got %#v", balances)
	}
}

type failingLedger struct{}

func (failingLedger) MutateBalance(context.Context, string, string, float64, wallet.BalanceOp) (float64, error) {
	return 0, errors.New("store down")
}

func (failingLedger) GetBalances(context.Context, string) (map[string]float64, error) {
	return nil, errors.New("store down")
}

func TestBalancesDegradeOnStorageFailure(t *testing.T) {
	svc := New(failingLedger{}, nil)

	balances, err := svc.Balances(context.Background(), userA)
	if err != nil {
		t.Fatalf("read path must degrade, got error %v", err)
	}
	if len(balances) != 0 {
		t.Fatalf("expected empty map, got %#v", balances)
	}
}

func TestMutateSurfacesStorageFailure(t *testing.T) {
	svc := New(failingLedger{}, nil)

	_, err := svc.Mutate(context.Background(), userA, "ETH", 1, wallet.OpAdd)
	se := svcerrors.GetServiceError(err)
	if se == nil || se.Code != svcerrors.CodeStorageFailure {
		t.Fatalf("write path must surface storage failure, got %v", err)
	}
}
