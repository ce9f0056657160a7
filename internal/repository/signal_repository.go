package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signalforge/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const createSignalTables = `
CREATE TABLE IF NOT EXISTS signals (
    id            BIGSERIAL PRIMARY KEY,
    symbol        TEXT        NOT NULL,
    timeframe     TEXT        NOT NULL,
    direction     TEXT        NOT NULL,
    confidence    DOUBLE PRECISION NOT NULL,
    entry_price   DOUBLE PRECISION NOT NULL,
    stop_loss     DOUBLE PRECISION NOT NULL,
    take_profits  JSONB       NOT NULL,
    position_pct  DOUBLE PRECISION NOT NULL,
    leverage      DOUBLE PRECISION NOT NULL,
    risk_reward   DOUBLE PRECISION NOT NULL,
    kelly         DOUBLE PRECISION NOT NULL,
    rationale     JSONB       NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    valid_until   TIMESTAMPTZ NOT NULL,
    resolved      BOOLEAN     NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_signals_pair_time
    ON signals (symbol, timeframe, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_unresolved
    ON signals (valid_until) WHERE resolved = FALSE;

CREATE TABLE IF NOT EXISTS rejections (
    id          BIGSERIAL PRIMARY KEY,
    symbol      TEXT        NOT NULL,
    timeframe   TEXT        NOT NULL,
    gate        TEXT        NOT NULL,
    direction   TEXT        NOT NULL,
    technical   DOUBLE PRECISION NOT NULL,
    ensemble    DOUBLE PRECISION NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL,
    adx         DOUBLE PRECISION NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rejections_time ON rejections (created_at DESC);

CREATE TABLE IF NOT EXISTS outcomes (
    id          BIGSERIAL PRIMARY KEY,
    signal_id   BIGINT      NOT NULL REFERENCES signals (id),
    symbol      TEXT        NOT NULL,
    timeframe   TEXT        NOT NULL,
    direction   TEXT        NOT NULL,
    return_pct  DOUBLE PRECISION NOT NULL,
    win         BOOLEAN     NOT NULL,
    resolved_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_time ON outcomes (resolved_at DESC);
`

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

func (r *SignalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createSignalTables)
	return err
}

func (r *SignalRepository) InsertSignal(ctx context.Context, signal *domain.EnhancedSignal) (*domain.EnhancedSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.insert-signal")
	defer span.End()

	takeProfits, err := json.Marshal(signal.TakeProfits)
	if err != nil {
		return nil, fmt.Errorf("encode take profits: %w", err)
	}
	rationale, err := json.Marshal(signal.Rationale)
	if err != nil {
		return nil, fmt.Errorf("encode rationale: %w", err)
	}

	out := *signal
	err = r.pool.QueryRow(ctx, `
INSERT INTO signals (
    symbol, timeframe, direction, confidence,
    entry_price, stop_loss, take_profits,
    position_pct, leverage, risk_reward, kelly,
    rationale, created_at, valid_until
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`,
		signal.Symbol, signal.Timeframe, string(signal.Direction), signal.Confidence,
		signal.EntryPrice, signal.StopLoss, takeProfits,
		signal.PositionPct, signal.Leverage, signal.RiskReward, signal.KellyFraction,
		rationale, signal.CreatedAt.UTC(), signal.ValidUntil.UTC(),
	).Scan(&out.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSignals returns the newest signals first.
func (r *SignalRepository) ListSignals(ctx context.Context, symbol string, limit int) ([]domain.EnhancedSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-signals")
	defer span.End()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
SELECT id, symbol, timeframe, direction, confidence,
       entry_price, stop_loss, take_profits,
       position_pct, leverage, risk_reward, kelly,
       rationale, created_at, valid_until
FROM signals`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, symbol, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.EnhancedSignal
	for rows.Next() {
		var s domain.EnhancedSignal
		var direction string
		var takeProfits, rationale []byte
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Timeframe, &direction, &s.Confidence,
			&s.EntryPrice, &s.StopLoss, &takeProfits,
			&s.PositionPct, &s.Leverage, &s.RiskReward, &s.KellyFraction,
			&rationale, &s.CreatedAt, &s.ValidUntil,
		); err != nil {
			return nil, err
		}
		s.Direction = domain.Direction(direction)
		if err := json.Unmarshal(takeProfits, &s.TakeProfits); err != nil {
			return nil, fmt.Errorf("decode take profits for signal %d: %w", s.ID, err)
		}
		if err := json.Unmarshal(rationale, &s.Rationale); err != nil {
			return nil, fmt.Errorf("decode rationale for signal %d: %w", s.ID, err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// ListExpiredUnresolved returns signals whose validity window has
// passed but no outcome has been recorded yet.
func (r *SignalRepository) ListExpiredUnresolved(ctx context.Context, now time.Time, limit int) ([]domain.EnhancedSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-expired-unresolved")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, symbol, timeframe, direction, confidence,
       entry_price, stop_loss, take_profits,
       position_pct, leverage, risk_reward, kelly,
       rationale, created_at, valid_until
FROM signals
WHERE resolved = FALSE AND valid_until <= $1
ORDER BY valid_until ASC
LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.EnhancedSignal
	for rows.Next() {
		var s domain.EnhancedSignal
		var direction string
		var takeProfits, rationale []byte
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Timeframe, &direction, &s.Confidence,
			&s.EntryPrice, &s.StopLoss, &takeProfits,
			&s.PositionPct, &s.Leverage, &s.RiskReward, &s.KellyFraction,
			&rationale, &s.CreatedAt, &s.ValidUntil,
		); err != nil {
			return nil, err
		}
		s.Direction = domain.Direction(direction)
		if err := json.Unmarshal(takeProfits, &s.TakeProfits); err != nil {
			return nil, fmt.Errorf("decode take profits for signal %d: %w", s.ID, err)
		}
		if err := json.Unmarshal(rationale, &s.Rationale); err != nil {
			return nil, fmt.Errorf("decode rationale for signal %d: %w", s.ID, err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

func (r *SignalRepository) MarkResolved(ctx context.Context, signalID int64) error {
	_, span := r.tracer.Start(ctx, "signal-repo.mark-resolved")
	defer span.End()

	_, err := r.pool.Exec(ctx, `UPDATE signals SET resolved = TRUE WHERE id = $1`, signalID)
	return err
}

func (r *SignalRepository) InsertRejection(ctx context.Context, rejection *domain.Rejection) error {
	_, span := r.tracer.Start(ctx, "signal-repo.insert-rejection")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
INSERT INTO rejections (symbol, timeframe, gate, direction, technical, ensemble, confidence, adx, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rejection.Symbol, rejection.Timeframe, string(rejection.Gate), string(rejection.Direction),
		rejection.Technical, rejection.Ensemble, rejection.Confidence, rejection.ADX,
		rejection.CreatedAt.UTC(),
	)
	return err
}

func (r *SignalRepository) InsertOutcome(ctx context.Context, outcome domain.TradeOutcome) (*domain.TradeOutcome, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.insert-outcome")
	defer span.End()

	out := outcome
	err := r.pool.QueryRow(ctx, `
INSERT INTO outcomes (signal_id, symbol, timeframe, direction, return_pct, win, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		outcome.SignalID, outcome.Symbol, outcome.Timeframe, string(outcome.Direction),
		outcome.ReturnPct, outcome.Win, outcome.ResolvedAt.UTC(),
	).Scan(&out.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRecentOutcomes returns the newest resolved outcomes first.
func (r *SignalRepository) ListRecentOutcomes(ctx context.Context, limit int) ([]domain.TradeOutcome, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-recent-outcomes")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, signal_id, symbol, timeframe, direction, return_pct, win, resolved_at
FROM outcomes
ORDER BY resolved_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.TradeOutcome
	for rows.Next() {
		var o domain.TradeOutcome
		var direction string
		if err := rows.Scan(&o.ID, &o.SignalID, &o.Symbol, &o.Timeframe, &direction, &o.ReturnPct, &o.Win, &o.ResolvedAt); err != nil {
			return nil, err
		}
		o.Direction = domain.Direction(direction)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
