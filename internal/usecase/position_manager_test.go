package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/yishaiam518/papertrader/internal/domain"
	"github.com/yishaiam518/papertrader/internal/usecase"
)

func newBook(cash, commissionPct, slippagePct float64) *usecase.PositionManager {
	broker := usecase.NewPaperBroker(commissionPct, slippagePct)
	return usecase.NewPositionManager(cash, broker, nil)
}

func openSizing(shares int, stop, take float64) *domain.Sizing {
	return &domain.Sizing{
		Shares:     shares,
		Value:      float64(shares) * 100,
		StopLoss:   stop,
		TakeProfit: take,
		Reason:     "test sizing",
	}
}

func TestPositionManager_OpenAndClose(t *testing.T) {
	book := newBook(100000, 0, 0)
	at := windowStart

	pos, err := book.Open(entrySig("AAPL"), openSizing(100, 142.5, 165), 150, at)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if pos.Shares != 100 || !floatEquals(pos.AvgEntryPrice, 150) {
		t.Errorf("position = %d @ %v, want 100 @ 150", pos.Shares, pos.AvgEntryPrice)
	}
	if !floatEquals(pos.HighWaterMark, 150) || !floatEquals(pos.LastPrice, 150) {
		t.Errorf("marks = hwm %v last %v, want both 150", pos.HighWaterMark, pos.LastPrice)
	}
	// 100000 - 100*150 = 85000
	if !floatEquals(book.Cash(), 85000) {
		t.Errorf("cash after open = %v, want 85000", book.Cash())
	}

	trade, err := book.Close("AAPL", 160, at.AddDate(0, 0, 5), domain.ExitSignal)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	// (160-150)*100 with no fees
	if !floatEquals(trade.PnL, 1000) {
		t.Errorf("pnl = %v, want 1000", trade.PnL)
	}
	if !floatEquals(trade.PnLPct, 1000.0/15000.0) {
		t.Errorf("pnl pct = %v, want %v", trade.PnLPct, 1000.0/15000.0)
	}
	if trade.ExitReason != domain.ExitSignal {
		t.Errorf("exit reason = %s, want signal", trade.ExitReason)
	}
	if !floatEquals(book.Cash(), 101000) {
		t.Errorf("cash after close = %v, want 101000", book.Cash())
	}
	if _, ok := book.Position("AAPL"); ok {
		t.Error("position survived its close")
	}
	if got := len(book.Trades()); got != 1 {
		t.Errorf("ledger holds %d trades, want 1", got)
	}

	// A closed position is terminal; the symbol can be re-entered fresh.
	if _, err := book.Open(entrySig("AAPL"), openSizing(10, 0, 0), 160, at.AddDate(0, 0, 6)); err != nil {
		t.Fatalf("re-open after close: %v", err)
	}
}

func TestPositionManager_FlatRoundTripIsExactlyZero(t *testing.T) {
	book := newBook(100000, 0, 0)

	if _, err := book.Open(entrySig("AAPL"), openSizing(100, 0, 0), 150, windowStart); err != nil {
		t.Fatalf("Open: %v", err)
	}
	trade, err := book.Close("AAPL", 150, windowStart.AddDate(0, 0, 1), domain.ExitSignal)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if trade.PnL != 0 {
		t.Errorf("flat round trip pnl = %v, want exactly 0", trade.PnL)
	}
	if trade.PnLPct != 0 {
		t.Errorf("flat round trip pnl pct = %v, want exactly 0", trade.PnLPct)
	}
	if book.Cash() != 100000 {
		t.Errorf("cash = %v, want the full 100000 back", book.Cash())
	}
}

func TestPositionManager_FeesChargedBothSides(t *testing.T) {
	// 0.001 + 0.0005 per side of notional
	book := newBook(100000, 0.001, 0.0005)

	if _, err := book.Open(entrySig("AAPL"), openSizing(100, 0, 0), 150, windowStart); err != nil {
		t.Fatalf("Open: %v", err)
	}
	// entry: 15000 notional + 22.50 fees
	if !floatEquals(book.Cash(), 84977.5) {
		t.Errorf("cash after open = %v, want 84977.50", book.Cash())
	}

	trade, err := book.Close("AAPL", 160, windowStart.AddDate(0, 0, 1), domain.ExitSignal)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	// exit: 16000 notional - 24 fees; trade fees 22.50 + 24 = 46.50
	if !floatEquals(trade.Fees, 46.5) {
		t.Errorf("fees = %v, want 46.50", trade.Fees)
	}
	if !floatEquals(trade.PnL, 953.5) {
		t.Errorf("pnl = %v, want 1000 - 46.50 = 953.50", trade.PnL)
	}
	if !floatEquals(book.Cash(), 100953.5) {
		t.Errorf("cash after close = %v, want 100953.50", book.Cash())
	}
}

func TestPositionManager_OpenRejections(t *testing.T) {
	book := newBook(1000, 0, 0)

	// 100 shares at 150 cost 15000 against 1000 cash. The failed open must
	// leave no partial state behind.
	_, err := book.Open(entrySig("AAPL"), openSizing(100, 0, 0), 150, windowStart)
	if !errors.Is(err, domain.ErrInsufficientCash) {
		t.Fatalf("error = %v, want ErrInsufficientCash", err)
	}
	if book.Cash() != 1000 {
		t.Errorf("cash = %v, want untouched 1000", book.Cash())
	}
	if _, ok := book.Position("AAPL"); ok {
		t.Error("failed open left a position behind")
	}

	if _, err := book.Open(entrySig("AAPL"), openSizing(5, 0, 0), 100, windowStart); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = book.Open(entrySig("AAPL"), openSizing(5, 0, 0), 100, windowStart)
	if !errors.Is(err, domain.ErrSymbolAlreadyOpen) {
		t.Fatalf("error = %v, want ErrSymbolAlreadyOpen", err)
	}

	_, err = book.Open(entrySig("MSFT"), openSizing(0, 0, 0), 100, windowStart)
	if err == nil {
		t.Fatal("expected error for zero share count")
	}
}

func TestPositionManager_CloseWithoutPosition(t *testing.T) {
	book := newBook(1000, 0, 0)
	_, err := book.Close("AAPL", 100, windowStart, domain.ExitSignal)
	if !errors.Is(err, domain.ErrNoPosition) {
		t.Fatalf("error = %v, want ErrNoPosition", err)
	}
}

func TestPositionManager_MarkTrailingRatchet(t *testing.T) {
	book := newBook(100000, 0, 0)
	sz := &domain.Sizing{Shares: 100, StopLoss: 90, TrailingPct: 0.1}
	if _, err := book.Open(entrySig("AAPL"), sz, 100, windowStart); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// New high 120 drags the stop to 120*0.9 = 108.
	if err := book.Mark("AAPL", 120); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	pos, _ := book.Position("AAPL")
	if !floatEquals(pos.HighWaterMark, 120) {
		t.Errorf("hwm = %v, want 120", pos.HighWaterMark)
	}
	if !floatEquals(pos.StopLoss, 108) {
		t.Errorf("stop = %v, want 108", pos.StopLoss)
	}
	if !floatEquals(pos.UnrealizedPnL, 2000) {
		t.Errorf("unrealized = %v, want 2000", pos.UnrealizedPnL)
	}

	// A pullback marks the price but never loosens the stop.
	if err := book.Mark("AAPL", 110); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	pos, _ = book.Position("AAPL")
	if !floatEquals(pos.HighWaterMark, 120) || !floatEquals(pos.StopLoss, 108) {
		t.Errorf("pullback moved hwm/stop to %v/%v, want 120/108", pos.HighWaterMark, pos.StopLoss)
	}
	if !floatEquals(pos.LastPrice, 110) {
		t.Errorf("last price = %v, want 110", pos.LastPrice)
	}

	// The next high keeps ratcheting.
	if err := book.Mark("AAPL", 130); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	pos, _ = book.Position("AAPL")
	if !floatEquals(pos.StopLoss, 117) {
		t.Errorf("stop = %v, want 117", pos.StopLoss)
	}

	if err := book.Mark("MSFT", 100); !errors.Is(err, domain.ErrNoPosition) {
		t.Errorf("marking unknown symbol = %v, want ErrNoPosition", err)
	}
}

func TestPositionManager_CheckExit(t *testing.T) {
	at := windowStart
	hold := at.AddDate(0, 0, 10)

	tests := []struct {
		name       string
		close      float64
		barTime    time.Time
		wantReason domain.ExitReason
		wantHit    bool
	}{
		{name: "close under the stop", close: 89, barTime: at.AddDate(0, 0, 1), wantReason: domain.ExitStopLoss, wantHit: true},
		{name: "close exactly on the stop", close: 90, barTime: at.AddDate(0, 0, 1), wantReason: domain.ExitStopLoss, wantHit: true},
		{name: "close over the take", close: 121, barTime: at.AddDate(0, 0, 1), wantReason: domain.ExitTakeProfit, wantHit: true},
		{name: "close exactly on the take", close: 120, barTime: at.AddDate(0, 0, 1), wantReason: domain.ExitTakeProfit, wantHit: true},
		{name: "hold expiry on the boundary bar", close: 100, barTime: hold, wantReason: domain.ExitMaxHold, wantHit: true},
		{name: "one bar before expiry", close: 100, barTime: hold.AddDate(0, 0, -1), wantHit: false},
		{name: "quiet bar", close: 100, barTime: at.AddDate(0, 0, 1), wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := newBook(100000, 0, 0)
			sz := &domain.Sizing{Shares: 10, StopLoss: 90, TakeProfit: 120, MaxHoldUntil: hold}
			if _, err := book.Open(entrySig("AAPL"), sz, 100, at); err != nil {
				t.Fatalf("Open: %v", err)
			}

			bar := priceBar(tt.close)
			bar.Time = tt.barTime
			reason, hit := book.CheckExit("AAPL", bar)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if hit && reason != tt.wantReason {
				t.Errorf("reason = %s, want %s", reason, tt.wantReason)
			}
		})
	}

	t.Run("zero levels never trigger", func(t *testing.T) {
		book := newBook(100000, 0, 0)
		if _, err := book.Open(entrySig("AAPL"), openSizing(10, 0, 0), 100, at); err != nil {
			t.Fatalf("Open: %v", err)
		}
		bar := priceBar(0.01)
		bar.Time = at.AddDate(0, 10, 0)
		if reason, hit := book.CheckExit("AAPL", bar); hit {
			t.Errorf("unexpected %s exit with no levels set", reason)
		}
	})

	t.Run("no position", func(t *testing.T) {
		book := newBook(100000, 0, 0)
		if _, hit := book.CheckExit("AAPL", priceBar(1)); hit {
			t.Error("exit triggered without a position")
		}
	})
}

func TestPositionManager_RecordEquityMatchesHoldings(t *testing.T) {
	book := newBook(100000, 0, 0)
	if _, err := book.Open(entrySig("AAPL"), openSizing(100, 0, 0), 150, windowStart); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := book.Mark("AAPL", 160); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	// cash 85000 + 100*160 marked value
	pt := book.RecordEquity(windowStart.AddDate(0, 0, 1))
	if !floatEquals(pt.Value, 101000) {
		t.Errorf("equity point = %v, want 101000", pt.Value)
	}
	view := book.View()
	if !floatEquals(view.TotalValue, 101000) {
		t.Errorf("view total = %v, want 101000", view.TotalValue)
	}
	curve := book.Equity()
	if len(curve) != 1 || !floatEquals(curve[0].Value, 101000) {
		t.Errorf("curve = %+v, want one point at 101000", curve)
	}
}

func TestPositionManager_ViewIsReadOnly(t *testing.T) {
	book := newBook(100000, 0, 0)
	if _, err := book.Open(entrySig("AAPL"), openSizing(10, 0, 0), 100, windowStart); err != nil {
		t.Fatalf("Open: %v", err)
	}

	view := book.View()
	delete(view.Positions, "AAPL")
	if _, ok := book.Position("AAPL"); !ok {
		t.Error("mutating a view reached the portfolio")
	}
}

func TestPositionManager_SnapshotRestore(t *testing.T) {
	src := newBook(100000, 0, 0)
	if _, err := src.Open(entrySig("NVDA"), openSizing(10, 0, 0), 100, windowStart); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := src.Close("NVDA", 110, windowStart.AddDate(0, 0, 1), domain.ExitSignal); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.Open(entrySig("AAPL"), openSizing(20, 95, 130), 100, windowStart.AddDate(0, 0, 2)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	src.RecordEquity(windowStart.AddDate(0, 0, 2))

	snap := src.Snapshot()

	dst := newBook(0, 0, 0)
	dst.Restore(snap)

	if !floatEquals(dst.Cash(), src.Cash()) {
		t.Errorf("restored cash = %v, want %v", dst.Cash(), src.Cash())
	}
	pos, ok := dst.Position("AAPL")
	if !ok {
		t.Fatal("restored book lost the open position")
	}
	if pos.Shares != 20 || !floatEquals(pos.StopLoss, 95) || !floatEquals(pos.TakeProfit, 130) {
		t.Errorf("restored position = %+v", pos)
	}
	if len(dst.Equity()) != 1 {
		t.Errorf("restored curve has %d points, want 1", len(dst.Equity()))
	}
	// The ledger is not part of the snapshot; closed trades live in the
	// trade repository.
	if len(dst.Trades()) != 0 {
		t.Errorf("restore carried %d trades, want 0", len(dst.Trades()))
	}

	// The snapshot is a deep copy: marking the source must not leak in.
	if err := src.Mark("AAPL", 500); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	pos, _ = dst.Position("AAPL")
	if !floatEquals(pos.LastPrice, 100) {
		t.Errorf("snapshot shares state with its source, last price = %v", pos.LastPrice)
	}

	if _, err := src.Open(entrySig("MSFT"), openSizing(5, 0, 0), 100, windowStart.AddDate(0, 0, 3)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := []string{"AAPL", "MSFT"}
	got := src.OpenSymbols()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("open symbols = %v, want %v", got, want)
	}
}
