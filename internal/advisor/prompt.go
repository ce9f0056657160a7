package advisor

import (
	"fmt"
	"strings"

	"signalforge/internal/domain"
)

const narratorPhilosophy = `You are the narration layer of an automated trading signal engine. The engine has already made its decision; your job is to explain it, NOT to second-guess it.

Rules:
- Write 2-3 sentences, plain text, no markdown. You are talking via Telegram.
- Explain the setup in terms of the data you are given: regime, trend strength, the model vote, and where the smart-money context came from.
- If the context source is a fallback, say the external data was unavailable and the signal rests on price action alone.
- Never invent data that is not in the context. Never add financial advice disclaimers.
- Mention the stop placement rationale only when volatility is elevated.`

// FormatSignalContext renders everything the narrator is allowed to
// talk about.
func FormatSignalContext(signal *domain.EnhancedSignal) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Signal: %s %s %s\n", signal.Direction, signal.Symbol, signal.Timeframe)
	fmt.Fprintf(&sb, "Confidence: %.2f\n", signal.Confidence)
	fmt.Fprintf(&sb, "Entry: %.4f, Stop: %.4f\n", signal.EntryPrice, signal.StopLoss)
	if len(signal.TakeProfits) > 0 {
		targets := make([]string, len(signal.TakeProfits))
		for i, tp := range signal.TakeProfits {
			targets[i] = fmt.Sprintf("%.4f", tp)
		}
		fmt.Fprintf(&sb, "Targets: %s\n", strings.Join(targets, ", "))
	}
	fmt.Fprintf(&sb, "Leverage: %.0fx, Risk/Reward: %.1f\n", signal.Leverage, signal.RiskReward)

	r := signal.Rationale
	fmt.Fprintf(&sb, "Regime: %s %s (volatility %s", r.Regime.Trend, r.Regime.Phase, r.Regime.Volatility)
	if r.Regime.CrisisMode {
		sb.WriteString(", CRISIS MODE")
	}
	sb.WriteString(")\n")
	fmt.Fprintf(&sb, "Trend strength (ADX): %.1f, RSI: %.1f\n", r.ADX, r.RSI)
	fmt.Fprintf(&sb, "Technical score: %.2f, Model probability: %.2f\n", r.TechnicalScore, r.EnsembleProb)
	fmt.Fprintf(&sb, "Smart-money boost: %+.3f (source: %s)\n", r.SmartMoneyBoost, r.ContextSource)

	if len(r.Checks) > 0 {
		sb.WriteString("Triggered checks:\n")
		for name, detail := range r.Checks {
			fmt.Fprintf(&sb, "  %s: %s\n", name, detail)
		}
	}

	return sb.String()
}
