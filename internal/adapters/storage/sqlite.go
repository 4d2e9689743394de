package storage

// sqlite.go: persistencia del estado del bot.
//
// Estrategia:
//   - `bot_state`: UNA fila (id='current') con el snapshot completo. Las partes
//     anidadas (daily stats, pool de cuentas, goals, actividad reciente) van como
//     JSON. `is_running` es el flag del operador: SaveState lo escribe solo al
//     insertar, nunca lo pisa.
//   - `activity_log`: append-only, una fila por escenario ejecutado. Nunca se
//     poda; el índice (date, scenario, success) alimenta los resúmenes.
//   - Mismo SQL para SQLite (default) y Postgres: sqlx.Rebind adapta los
//     placeholders según el driver.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const stateID = "current"

const schema = `
CREATE TABLE IF NOT EXISTS bot_state (
    id              TEXT PRIMARY KEY,
    schema_version  INTEGER NOT NULL DEFAULT 1,
    last_updated    BIGINT  NOT NULL DEFAULT 0,
    is_running      INTEGER NOT NULL DEFAULT 1,
    started_at      BIGINT,
    daily_stats     TEXT    NOT NULL DEFAULT '{}',
    total_volume    DOUBLE PRECISION NOT NULL DEFAULT 0,
    account_pool    TEXT    NOT NULL DEFAULT '{}',
    goals           TEXT    NOT NULL DEFAULT '{}',
    recent_activity TEXT    NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS activity_log (
    id         TEXT PRIMARY KEY,
    created_at BIGINT  NOT NULL,
    date       TEXT    NOT NULL,
    scenario   TEXT    NOT NULL,
    success    INTEGER NOT NULL DEFAULT 0,
    details    TEXT,
    error      TEXT,
    volume     DOUBLE PRECISION NOT NULL DEFAULT 0,
    tx_hash    TEXT
);

CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at);
CREATE INDEX IF NOT EXISTS idx_activity_summary ON activity_log(date, scenario, success);
`

// Store implementa ports.StateStore sobre SQLite (pure Go, sin CGo) o Postgres.
type Store struct {
	db *sqlx.DB
}

// driverFor elige el driver según el esquema del DSN.
func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore abre (o crea) la base de datos y aplica el schema.
func NewStore(dsn string) (*Store, error) {
	driver := driverFor(dsn)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStore: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite es single-writer
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewStore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("storage.Ping: %w", err)
	}
	return nil
}

// Close cierra la base de datos.
func (s *Store) Close() error {
	return s.db.Close()
}

type stateRow struct {
	SchemaVersion  int           `db:"schema_version"`
	LastUpdated    int64         `db:"last_updated"`
	IsRunning      int           `db:"is_running"`
	StartedAt      sql.NullInt64 `db:"started_at"`
	DailyStats     string        `db:"daily_stats"`
	TotalVolume    float64       `db:"total_volume"`
	AccountPool    string        `db:"account_pool"`
	Goals          string        `db:"goals"`
	RecentActivity string        `db:"recent_activity"`
}

// LoadState lee el snapshot singleton.
func (s *Store) LoadState(ctx context.Context) (domain.BotState, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT schema_version, last_updated, is_running, started_at, daily_stats,
		       total_volume, account_pool, goals, recent_activity
		FROM bot_state WHERE id = ?`), stateID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BotState{}, domain.ErrNoState
	}
	if err != nil {
		return domain.BotState{}, fmt.Errorf("storage.LoadState: query: %w", err)
	}

	st := domain.BotState{
		SchemaVersion: row.SchemaVersion,
		LastUpdated:   fromMillis(row.LastUpdated),
		IsRunning:     row.IsRunning != 0,
		TotalVolume:   row.TotalVolume,
	}
	if row.StartedAt.Valid {
		t := fromMillis(row.StartedAt.Int64)
		st.StartedAt = &t
	}
	for _, part := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"daily_stats", row.DailyStats, &st.DailyStats},
		{"account_pool", row.AccountPool, &st.AccountPool},
		{"goals", row.Goals, &st.Goals},
		{"recent_activity", row.RecentActivity, &st.RecentActivity},
	} {
		if err := json.Unmarshal([]byte(part.raw), part.dst); err != nil {
			return domain.BotState{}, fmt.Errorf("storage.LoadState: decode %s: %w", part.name, err)
		}
	}
	return st, nil
}

// SaveState hace upsert del snapshot. Una fila nueva arranca con is_running=1;
// una existente conserva el flag que haya puesto el operador.
func (s *Store) SaveState(ctx context.Context, st domain.BotState) error {
	daily, err := json.Marshal(st.DailyStats)
	if err != nil {
		return fmt.Errorf("storage.SaveState: encode daily_stats: %w", err)
	}
	pool, err := json.Marshal(st.AccountPool)
	if err != nil {
		return fmt.Errorf("storage.SaveState: encode account_pool: %w", err)
	}
	goals, err := json.Marshal(st.Goals)
	if err != nil {
		return fmt.Errorf("storage.SaveState: encode goals: %w", err)
	}
	recent := st.RecentActivity
	if recent == nil {
		recent = []domain.ActivityEntry{}
	}
	activity, err := json.Marshal(recent)
	if err != nil {
		return fmt.Errorf("storage.SaveState: encode recent_activity: %w", err)
	}

	var startedAt sql.NullInt64
	if st.StartedAt != nil {
		startedAt = sql.NullInt64{Int64: st.StartedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bot_state
			(id, schema_version, last_updated, is_running, started_at, daily_stats,
			 total_volume, account_pool, goals, recent_activity)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version  = excluded.schema_version,
			last_updated    = excluded.last_updated,
			started_at      = excluded.started_at,
			daily_stats     = excluded.daily_stats,
			total_volume    = excluded.total_volume,
			account_pool    = excluded.account_pool,
			goals           = excluded.goals,
			recent_activity = excluded.recent_activity`),
		stateID, domain.SchemaVersion, st.LastUpdated.UnixMilli(),
		startedAt, string(daily), st.TotalVolume, string(pool), string(goals), string(activity),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveState: upsert: %w", err)
	}
	return nil
}

// RemoteRunning lee el flag del operador. Sin fila, el bot debe seguir corriendo.
func (s *Store) RemoteRunning(ctx context.Context) (bool, error) {
	var running int
	err := s.db.GetContext(ctx, &running, s.db.Rebind(`SELECT is_running FROM bot_state WHERE id = ?`), stateID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("storage.RemoteRunning: %w", err)
	}
	return running != 0, nil
}

// SetRemoteRunning escribe el flag del operador, creando la fila si no existe.
func (s *Store) SetRemoteRunning(ctx context.Context, running bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bot_state (id, schema_version, last_updated, is_running)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET is_running = excluded.is_running`),
		stateID, domain.SchemaVersion, time.Now().UnixMilli(), boolToInt(running),
	)
	if err != nil {
		return fmt.Errorf("storage.SetRemoteRunning: %w", err)
	}
	return nil
}

// ─── Activity log ────────────────────────────────────────────────────────────

type activityRow struct {
	ID        string         `db:"id"`
	CreatedAt int64          `db:"created_at"`
	Date      string         `db:"date"`
	Scenario  string         `db:"scenario"`
	Success   int            `db:"success"`
	Details   sql.NullString `db:"details"`
	Error     sql.NullString `db:"error"`
	Volume    float64        `db:"volume"`
	TxHash    sql.NullString `db:"tx_hash"`
}

// AppendActivity inserta una fila inmutable en el histórico.
func (s *Store) AppendActivity(ctx context.Context, e domain.ActivityEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("storage.AppendActivity: encode details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO activity_log (id, created_at, date, scenario, success, details, error, volume, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Timestamp.UnixMilli(), domain.DateKey(e.Timestamp), string(e.Scenario),
		boolToInt(e.Success), details, nullString(e.Error), e.Volume, nullString(e.TxHash),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendActivity: insert: %w", err)
	}
	return nil
}

// ActivityBetween devuelve las filas con created_at en [from, to), más antiguas primero.
func (s *Store) ActivityBetween(ctx context.Context, from, to time.Time) ([]domain.ActivityEntry, error) {
	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, created_at, date, scenario, success, details, error, volume, tx_hash
		FROM activity_log
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`),
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ActivityBetween: query: %w", err)
	}

	out := make([]domain.ActivityEntry, 0, len(rows))
	for _, r := range rows {
		e := domain.ActivityEntry{
			ID:        r.ID,
			Timestamp: fromMillis(r.CreatedAt),
			Scenario:  domain.ScenarioType(r.Scenario),
			Success:   r.Success != 0,
			Error:     r.Error.String,
			Volume:    r.Volume,
			TxHash:    r.TxHash.String,
		}
		if r.Details.Valid && r.Details.String != "" {
			if err := json.Unmarshal([]byte(r.Details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("storage.ActivityBetween: decode details %s: %w", r.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

type summaryRow struct {
	Date     string  `db:"date"`
	Scenario string  `db:"scenario"`
	Success  int     `db:"success"`
	Count    int64   `db:"count"`
	Volume   float64 `db:"volume"`
}

// ActivitySummary agrega el histórico por (date, scenario, success).
func (s *Store) ActivitySummary(ctx context.Context, from, to time.Time) ([]domain.ActivitySummaryRow, error) {
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT date, scenario, success, COUNT(*) AS count, COALESCE(SUM(volume), 0) AS volume
		FROM activity_log
		WHERE created_at >= ? AND created_at < ?
		GROUP BY date, scenario, success
		ORDER BY date, scenario, success`),
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ActivitySummary: query: %w", err)
	}

	out := make([]domain.ActivitySummaryRow, len(rows))
	for i, r := range rows {
		out[i] = domain.ActivitySummaryRow{
			Date:     r.Date,
			Scenario: domain.ScenarioType(r.Scenario),
			Success:  r.Success != 0,
			Count:    r.Count,
			Volume:   r.Volume,
		}
	}
	return out, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
