package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"salvage-radar/models"
	"salvage-radar/utils"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrOfferNotFound is logged when an analysis targets a lot that was never stored.
var ErrOfferNotFound = errors.New("offer not found")

// SQLStore persists offers and analyses in SQLite (a single local file) or
// PostgreSQL. Queries are written with ? placeholders and rebound per driver.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *utils.Logger
	now    func() time.Time
}

// NewSQLStore opens the database, runs schema migrations, and returns a
// ready-to-use SQLStore. For SQLite, dsn is the database file path.
func NewSQLStore(driver, dsn string, logger *utils.Logger) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("store: create db dir: %w", err)
			}
		}
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if driver == DriverSQLite {
		// One connection means one writer: attach-analysis transactions never interleave.
		db.SetMaxOpenConns(1)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed after retries: %w", err)
	}

	s := &SQLStore{db: db, driver: driver, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return s, nil
}

func (s *SQLStore) migrate() error {
	pk, fk, num, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER", "REAL", "TIMESTAMP"
	if s.driver == DriverPostgres {
		pk, fk, num, ts = "BIGSERIAL PRIMARY KEY", "BIGINT", "DOUBLE PRECISION", "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS offers (
			offer_id      ` + pk + `,
			lot_number    TEXT    UNIQUE NOT NULL,
			make          TEXT    NOT NULL,
			model         TEXT    NOT NULL,
			year          INTEGER NOT NULL,
			current_bid   ` + num + ` NOT NULL CHECK (current_bid >= 0),
			buy_now_price ` + num + `,
			damage        TEXT    NOT NULL DEFAULT '',
			title_status  TEXT    NOT NULL DEFAULT '',
			location      TEXT    NOT NULL DEFAULT '',
			sale_date     TEXT    NOT NULL DEFAULT '',
			image_url     TEXT    NOT NULL DEFAULT '',
			link          TEXT    NOT NULL,
			source        TEXT    NOT NULL DEFAULT '',
			first_seen    ` + ts + ` NOT NULL,
			last_updated  ` + ts + ` NOT NULL,
			is_analyzed   BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS ai_analysis (
			analysis_id          ` + pk + `,
			offer_id             ` + fk + ` NOT NULL REFERENCES offers (offer_id),
			market_value_pln     ` + num + ` NOT NULL,
			repair_cost_pln      ` + num + ` NOT NULL,
			transport_cost_pln   ` + num + ` NOT NULL DEFAULT 8000,
			customs_cost_pln     ` + num + ` NOT NULL,
			total_cost_pln       ` + num + ` NOT NULL,
			potential_profit_pln ` + num + ` NOT NULL,
			profit_margin        ` + num + ` NOT NULL,
			risk_score           INTEGER NOT NULL,
			recommendation       TEXT    NOT NULL CHECK (recommendation IN ('BUY', 'AVOID', 'CAUTION')),
			max_bid_price        ` + num + ` NOT NULL,
			detailed_analysis    TEXT    NOT NULL,
			analysis_date        ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_make ON offers (make, model, year)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_first_seen ON offers (first_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_profit ON ai_analysis (profit_margin, risk_score)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_offer ON ai_analysis (offer_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exists reports whether an offer with lotNumber is stored.
func (s *SQLStore) Exists(ctx context.Context, lotNumber string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT 1 FROM offers WHERE lot_number = ?`), lotNumber).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", lotNumber, err)
	}
	return true, nil
}

// Insert stores the offer unless its lot number is already present. It
// returns true only when a new row was created; on success the offer's ID
// and timestamps are filled in.
func (s *SQLStore) Insert(ctx context.Context, o *models.Offer) bool {
	if o == nil || strings.TrimSpace(o.LotNumber) == "" {
		s.logger.Error("[store] Refusing to insert offer without lot number")
		return false
	}

	now := s.now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO offers
			(lot_number, make, model, year, current_bid, buy_now_price, damage,
			 title_status, location, sale_date, image_url, link, source,
			 first_seen, last_updated, is_analyzed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lot_number) DO NOTHING
		RETURNING offer_id
	`),
		o.LotNumber, o.Make, o.Model, o.Year, o.CurrentBid, o.BuyNowPrice, o.Damage,
		o.TitleStatus, o.Location, o.SaleDate, o.ImageURL, o.Link, o.Source,
		now, now, false,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("[store] Offer %s already stored", o.LotNumber)
		return false
	}
	if err != nil {
		s.logger.Error("[store] Insert offer %s failed: %v", o.LotNumber, err)
		return false
	}

	o.ID = id
	o.FirstSeen = now
	o.LastUpdated = now
	o.IsAnalyzed = false
	return true
}

// AttachAnalysis records the analysis for lotNumber and marks the offer
// analyzed, in one transaction. Unknown lots and storage errors return false
// and leave the store unchanged.
func (s *SQLStore) AttachAnalysis(ctx context.Context, lotNumber string, a *models.Analysis) bool {
	if a == nil {
		s.logger.Error("[store] Nil analysis for offer %s", lotNumber)
		return false
	}

	if err := s.attach(ctx, lotNumber, a); err != nil {
		s.logger.Error("[store] Attach analysis to %s failed: %v", lotNumber, err)
		return false
	}

	s.logger.Info("[store] Analysis stored for offer %s", lotNumber)
	return true
}

func (s *SQLStore) attach(ctx context.Context, lotNumber string, a *models.Analysis) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var offerID int64
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT offer_id FROM offers WHERE lot_number = ?`), lotNumber).Scan(&offerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOfferNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}

	now := s.now().UTC()
	analysisDate := a.AnalysisDate
	if analysisDate.IsZero() {
		analysisDate = now
	}

	var analysisID int64
	err = tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO ai_analysis
			(offer_id, market_value_pln, repair_cost_pln, transport_cost_pln,
			 customs_cost_pln, total_cost_pln, potential_profit_pln, profit_margin,
			 risk_score, recommendation, max_bid_price, detailed_analysis, analysis_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING analysis_id
	`),
		offerID, a.MarketValue, a.RepairCost, a.TransportCost,
		a.CustomsCost, a.TotalCost, a.PotentialProfit, a.ProfitMargin,
		a.RiskScore, string(a.Recommendation), a.MaxBidPrice, a.DetailedAnalysis, analysisDate,
	).Scan(&analysisID)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE offers SET is_analyzed = ?, last_updated = ? WHERE offer_id = ?`),
		true, now, offerID,
	); err != nil {
		return fmt.Errorf("mark analyzed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	a.ID = analysisID
	a.OfferID = offerID
	a.AnalysisDate = analysisDate
	return nil
}

const offerColumns = `o.offer_id, o.lot_number, o.make, o.model, o.year, o.current_bid,
	o.buy_now_price, o.damage, o.title_status, o.location, o.sale_date, o.image_url,
	o.link, o.source, o.first_seen, o.last_updated, o.is_analyzed`

const analysisColumns = `a.analysis_id, a.offer_id, a.market_value_pln, a.repair_cost_pln,
	a.transport_cost_pln, a.customs_cost_pln, a.total_cost_pln, a.potential_profit_pln,
	a.profit_margin, a.risk_score, a.recommendation, a.max_bid_price,
	a.detailed_analysis, a.analysis_date`

type scanner interface {
	Scan(dest ...any) error
}

func scanOffer(row scanner, extra ...any) (*models.Offer, error) {
	o := &models.Offer{}
	var buyNow sql.NullFloat64
	dest := []any{
		&o.ID, &o.LotNumber, &o.Make, &o.Model, &o.Year, &o.CurrentBid,
		&buyNow, &o.Damage, &o.TitleStatus, &o.Location, &o.SaleDate, &o.ImageURL,
		&o.Link, &o.Source, &o.FirstSeen, &o.LastUpdated, &o.IsAnalyzed,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if buyNow.Valid {
		v := buyNow.Float64
		o.BuyNowPrice = &v
	}
	return o, nil
}

// ListUnanalyzed returns offers still waiting for an analysis, most recently
// first seen first.
func (s *SQLStore) ListUnanalyzed(ctx context.Context) ([]*models.Offer, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+offerColumns+`
		FROM offers o
		WHERE o.is_analyzed = ?
		ORDER BY o.first_seen DESC, o.offer_id DESC
	`), false)
	if err != nil {
		return nil, fmt.Errorf("store: list unanalyzed: %w", err)
	}
	defer rows.Close()

	var offers []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// ListQualified returns BUY-rated offers whose profit margin is at least
// minProfitMargin, best margin first.
func (s *SQLStore) ListQualified(ctx context.Context, minProfitMargin float64) ([]models.QualifiedOffer, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+offerColumns+`, `+analysisColumns+`
		FROM offers o
		JOIN ai_analysis a ON a.offer_id = o.offer_id
		WHERE a.recommendation = ? AND a.profit_margin >= ?
		ORDER BY a.profit_margin DESC, a.analysis_id ASC
	`), string(models.RecommendationBuy), minProfitMargin)
	if err != nil {
		return nil, fmt.Errorf("store: list qualified: %w", err)
	}
	defer rows.Close()

	var result []models.QualifiedOffer
	for rows.Next() {
		a := &models.Analysis{}
		var rec string
		o, err := scanOffer(rows,
			&a.ID, &a.OfferID, &a.MarketValue, &a.RepairCost,
			&a.TransportCost, &a.CustomsCost, &a.TotalCost, &a.PotentialProfit,
			&a.ProfitMargin, &a.RiskScore, &rec, &a.MaxBidPrice,
			&a.DetailedAnalysis, &a.AnalysisDate,
		)
		if err != nil {
			return nil, fmt.Errorf("store: scan qualified: %w", err)
		}
		a.Recommendation = models.Recommendation(rec)
		result = append(result, models.QualifiedOffer{Offer: o, Analysis: a})
	}
	return result, rows.Err()
}

// Stats returns row counts of both tables.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers`).Scan(&st.Offers); err != nil {
		return st, fmt.Errorf("store: count offers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM offers WHERE is_analyzed = ?`), true).Scan(&st.AnalyzedOffers); err != nil {
		return st, fmt.Errorf("store: count analyzed: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_analysis`).Scan(&st.Analyses); err != nil {
		return st, fmt.Errorf("store: count analyses: %w", err)
	}
	return st, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
