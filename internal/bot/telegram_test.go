package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"signalforge/internal/domain"
)

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	if n := StartTelegramBot("", 42, nil); n != nil {
		t.Fatalf("expected nil notifier without a token")
	}
}

func TestNotifySignalNilSafe(t *testing.T) {
	var n *Notifier
	n.NotifySignal(context.Background(), &domain.EnhancedSignal{Symbol: "BTCUSDT"}, "")
}

func TestFormatSignal(t *testing.T) {
	signal := &domain.EnhancedSignal{
		Symbol:      "BTCUSDT",
		Timeframe:   "1h",
		Direction:   domain.DirectionStrongBuy,
		Confidence:  0.91,
		EntryPrice:  97250.5,
		StopLoss:    95300,
		TakeProfits: []float64{100150, 103100, 108900},
		PositionPct: 0.042,
		Leverage:    10,
		RiskReward:  2.3,
		ValidUntil:  time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC),
	}

	msg := FormatSignal(signal, "breakout with strong volume confirmation")

	for _, want := range []string{
		"STRONG_BUY BTCUSDT 1h",
		"Confidence: 91%",
		"Entry: $97250.50",
		"Stop: $95300.00",
		"TP1: $100150.00",
		"TP3: $108900.00",
		"Size: 4.2% @ 10x",
		"Valid until: 2025-06-01 16:00 UTC",
		"breakout with strong volume confirmation",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatSignalSmallPricePrecision(t *testing.T) {
	signal := &domain.EnhancedSignal{
		Symbol:     "DOGEUSDT",
		Timeframe:  "4h",
		Direction:  domain.DirectionSell,
		EntryPrice: 0.2412,
		StopLoss:   0.2525,
	}
	msg := FormatSignal(signal, "")
	if !strings.Contains(msg, "Entry: $0.2412") {
		t.Fatalf("expected 4-decimal price for sub-dollar pairs:\n%s", msg)
	}
}
