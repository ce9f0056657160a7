package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"signalforge/internal/domain"

	tele "gopkg.in/telebot.v3"
)

// LatestReader serves the /latest command.
type LatestReader interface {
	GetLatest(ctx context.Context, symbol, timeframe string) (*domain.EnhancedSignal, error)
}

// Notifier pushes accepted signals to a Telegram chat and answers a
// few read-only commands. A nil Notifier is safe to call; delivery is
// simply skipped.
type Notifier struct {
	bot    *tele.Bot
	chatID int64
}

func StartTelegramBot(token string, chatID int64, latest LatestReader) *Notifier {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/latest", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send(fmt.Sprintf("Usage: /latest BTCUSDT [1h|4h]\nSupported: %s", strings.Join(domain.SupportedSymbols, ", ")))
		}
		symbol := strings.ToUpper(args[0])
		if !domain.IsSupportedSymbol(symbol) {
			return c.Send(fmt.Sprintf("Unknown symbol: %s\nSupported: %s", symbol, strings.Join(domain.SupportedSymbols, ", ")))
		}
		timeframe := "1h"
		if len(args) > 1 && domain.IsSupportedTimeframe(args[1]) {
			timeframe = args[1]
		}
		if latest == nil {
			return c.Send("Signal store unavailable")
		}
		signal, err := latest.GetLatest(context.Background(), symbol, timeframe)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching latest signal for %s: %v", symbol, err))
		}
		if signal == nil {
			return c.Send(fmt.Sprintf("No active signal for %s %s", symbol, timeframe))
		}
		return c.Send(FormatSignal(signal, ""))
	})

	log.Println("Telegram bot started")
	go b.Start()
	return &Notifier{bot: b, chatID: chatID}
}

// NotifySignal delivers one accepted signal. Failures are logged and
// dropped: chat delivery must never block or fail an evaluation.
func (n *Notifier) NotifySignal(ctx context.Context, signal *domain.EnhancedSignal, narrative string) {
	if n == nil || n.bot == nil || n.chatID == 0 || signal == nil {
		return
	}
	if _, err := n.bot.Send(tele.ChatID(n.chatID), FormatSignal(signal, narrative)); err != nil {
		log.Printf("telegram delivery failed for %s %s: %v", signal.Symbol, signal.Timeframe, err)
	}
}

// FormatSignal renders a signal as a plain-text chat message.
func FormatSignal(signal *domain.EnhancedSignal, narrative string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s\n", signal.Direction, signal.Symbol, signal.Timeframe)
	fmt.Fprintf(&sb, "Confidence: %.0f%%\n", signal.Confidence*100)
	fmt.Fprintf(&sb, "Entry: %s\n", formatPrice(signal.EntryPrice))
	fmt.Fprintf(&sb, "Stop: %s\n", formatPrice(signal.StopLoss))
	for i, tp := range signal.TakeProfits {
		fmt.Fprintf(&sb, "TP%d: %s\n", i+1, formatPrice(tp))
	}
	fmt.Fprintf(&sb, "Size: %.1f%% @ %.0fx\n", signal.PositionPct*100, signal.Leverage)
	fmt.Fprintf(&sb, "R:R: %.1f\n", signal.RiskReward)
	fmt.Fprintf(&sb, "Valid until: %s", signal.ValidUntil.UTC().Format("2006-01-02 15:04 UTC"))
	if narrative != "" {
		sb.WriteString("\n\n")
		sb.WriteString(narrative)
	}
	return sb.String()
}

func formatPrice(v float64) string {
	if v >= 100 {
		return fmt.Sprintf("$%.2f", v)
	}
	return fmt.Sprintf("$%.4f", v)
}
