package trading

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/internal/market"
	"github.com/hashimhashmi02/Exness-be/internal/storage"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

func testConfig() Config {
	return Config{
		Symbols:       []string{"SOLUSDT", "ETHUSDT"},
		SpreadBps:     100,
		PriceDecimals: 4,
		Leverages:     []int{1, 5, 10, 20, 100},
	}
}

func newTestService(t *testing.T) (*Service, *storage.Store, *market.PriceBook) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "trading.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	book := market.NewPriceBook()
	svc := NewService(store, book, testConfig())

	require.NoError(t, store.CreateAccount(context.Background(), "acct-1", 100000))
	return svc, store, book
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "SOLUSDT", NormalizeSymbol("sol"))
	assert.Equal(t, "SOLUSDT", NormalizeSymbol("SOLUSDT"))
	assert.Equal(t, "ETHUSDT", NormalizeSymbol(" eth "))
	assert.Equal(t, "", NormalizeSymbol(""))
}

func TestService_Open_SpreadScenario(t *testing.T) {
	svc, _, book := newTestService(t)
	ctx := context.Background()

	// SOLUSDT mark $100.00 at 4 decimals, 100 bps spread.
	book.Set("SOLUSDT", 1000000)

	res, err := svc.Open(ctx, "acct-1", OpenRequest{
		Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, quant.Price(1005000), res.EntryPrice, "long enters at the buy side")
	assert.Equal(t, int64(99000), res.BalanceCents)

	// Closing immediately at the same mark exits at the sell side.
	closed, err := svc.Close(ctx, "acct-1", res.PositionID)
	require.NoError(t, err)
	assert.Equal(t, quant.Price(995000), closed.ClosePrice)
	assert.Equal(t, int64(-99), closed.PnLCents)
	assert.Equal(t, int64(99901), closed.BalanceCents, "margin + pnl = 901 settles back")
}

func TestService_Open_ShortEntersAtSell(t *testing.T) {
	svc, _, book := newTestService(t)
	book.Set("SOLUSDT", 1000000)

	res, err := svc.Open(context.Background(), "acct-1", OpenRequest{
		Symbol: "SOLUSDT", Side: domain.SideShort, MarginCents: 1000, Leverage: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, quant.Price(995000), res.EntryPrice)
}

func TestService_Open_Validation(t *testing.T) {
	svc, store, book := newTestService(t)
	ctx := context.Background()
	book.Set("SOLUSDT", 1000000)

	cases := []struct {
		name string
		req  OpenRequest
	}{
		{"unsupported symbol", OpenRequest{Symbol: "doge", Side: domain.SideLong, MarginCents: 1000, Leverage: 10}},
		{"unknown side", OpenRequest{Symbol: "sol", Side: "SIDEWAYS", MarginCents: 1000, Leverage: 10}},
		{"zero margin", OpenRequest{Symbol: "sol", Side: domain.SideLong, MarginCents: 0, Leverage: 10}},
		{"negative margin", OpenRequest{Symbol: "sol", Side: domain.SideLong, MarginCents: -5, Leverage: 10}},
		{"disallowed leverage", OpenRequest{Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 3}},
		{"long stop above entry", OpenRequest{Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 10, StopLoss: 1010000}},
		{"long target below entry", OpenRequest{Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 10, TakeProfit: 1000000}},
		{"short stop below entry", OpenRequest{Symbol: "sol", Side: domain.SideShort, MarginCents: 1000, Leverage: 10, StopLoss: 900000}},
		{"short target above entry", OpenRequest{Symbol: "sol", Side: domain.SideShort, MarginCents: 1000, Leverage: 10, TakeProfit: 1100000}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Open(ctx, "acct-1", c.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	// No partial state: balance untouched, no positions created.
	acct, err := store.Account(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), acct.BalanceCents)
	positions, err := svc.Positions(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestService_Open_ValidBracketAccepted(t *testing.T) {
	svc, _, book := newTestService(t)
	book.Set("SOLUSDT", 1000000)

	_, err := svc.Open(context.Background(), "acct-1", OpenRequest{
		Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 10,
		StopLoss: 950000, TakeProfit: 1100000,
	})
	assert.NoError(t, err)

	_, err = svc.Open(context.Background(), "acct-1", OpenRequest{
		Symbol: "sol", Side: domain.SideShort, MarginCents: 1000, Leverage: 10,
		StopLoss: 1050000, TakeProfit: 900000,
	})
	assert.NoError(t, err)
}

func TestService_Open_PriceUnavailable(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Open(context.Background(), "acct-1", OpenRequest{
		Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 10,
	})
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestService_Open_InsufficientFunds(t *testing.T) {
	svc, _, book := newTestService(t)
	book.Set("SOLUSDT", 1000000)
	_, err := svc.Open(context.Background(), "acct-1", OpenRequest{
		Symbol: "sol", Side: domain.SideLong, MarginCents: 200000, Leverage: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestService_Close_OwnershipAndIdempotence(t *testing.T) {
	svc, store, book := newTestService(t)
	ctx := context.Background()
	book.Set("SOLUSDT", 1000000)
	require.NoError(t, store.CreateAccount(ctx, "acct-2", 100000))

	res, err := svc.Open(ctx, "acct-1", OpenRequest{
		Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 10,
	})
	require.NoError(t, err)

	// Another account cannot see, let alone close, the position.
	_, err = svc.Close(ctx, "acct-2", res.PositionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Close(ctx, "acct-1", res.PositionID)
	require.NoError(t, err)

	_, err = svc.Close(ctx, "acct-1", res.PositionID)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)

	_, err = svc.Close(ctx, "acct-1", "01INVALIDULID0000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_Close_ManualVsTriggeredRace(t *testing.T) {
	svc, store, book := newTestService(t)
	ctx := context.Background()
	book.Set("SOLUSDT", 1000000)

	res, err := svc.Open(ctx, "acct-1", OpenRequest{
		Symbol: "sol", Side: domain.SideLong, MarginCents: 1000, Leverage: 10,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var manualErr, triggeredErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, manualErr = svc.Close(ctx, "acct-1", res.PositionID)
	}()
	go func() {
		defer wg.Done()
		_, triggeredErr = svc.ForceClose(ctx, res.PositionID)
	}()
	wg.Wait()

	wins := 0
	for _, err := range []error{manualErr, triggeredErr} {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
		}
	}
	assert.Equal(t, 1, wins, "exactly one settlement")

	acct, err := store.Account(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(99901), acct.BalanceCents)
}

func TestStaticAuthenticator(t *testing.T) {
	auth := NewStaticAuthenticator()
	auth.Grant("token-1", "acct-1")

	id, err := auth.Authenticate(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", id)

	_, err = auth.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
