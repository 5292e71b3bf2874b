package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"section_bidding/internal/auction"
	"section_bidding/internal/models"

	"github.com/lib/pq"
)

var (
	ErrSectionNotFound = errors.New("database: section not found")
	ErrTxConflict      = errors.New("database: section transaction conflict")
)

type DBStore struct {
	DB         *sql.DB
	maxRetries int
}

func NewDBStore(db *sql.DB, maxRetries int) *DBStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &DBStore{DB: db, maxRetries: maxRetries}
}

func ConnectDB(driver, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func RunMigrations(db *sql.DB, migrationsDir string) error {
	if migrationsDir == "" {
		return fmt.Errorf("migrations directory not specified")
	}

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	if len(migrationFiles) == 0 {
		fmt.Println("No migration files found.")
		return nil
	}

	for _, fileName := range migrationFiles {
		filePath := filepath.Join(migrationsDir, fileName)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", fileName, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", fileName, err)
		}
		fmt.Printf("Applied migration: %s\n", fileName)
	}
	return nil
}

func (s *DBStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

const sectionColumns = `id, face_id, name, base_price, current_price, status, bidder_count, deadline, winner_investor_id, created_at, updated_at`

func scanSection(row interface{ Scan(...any) error }) (*models.Section, error) {
	var (
		sec      models.Section
		kind     string
		bidders  int
		deadline sql.NullTime
		winner   sql.NullInt64
	)
	err := row.Scan(
		&sec.ID, &sec.FaceID, &sec.Name, &sec.BasePrice, &sec.CurrentPrice,
		&kind, &bidders, &deadline, &winner, &sec.CreatedAt, &sec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sec.Status = statusFromRow(kind, bidders)
	if deadline.Valid {
		d := deadline.Time
		sec.Deadline = &d
	}
	if winner.Valid {
		w := winner.Int64
		sec.WinnerInvestorID = &w
	}
	return &sec, nil
}

func statusFromRow(kind string, bidders int) models.SectionStatus {
	switch models.StatusKind(kind) {
	case models.StatusClosed:
		return models.Closed()
	case models.StatusOpenWithBidders:
		return models.OpenWithBidders(bidders)
	default:
		return models.Open()
	}
}

func (s *DBStore) GetSection(ctx context.Context, sectionID int64) (*models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1`

	sec, err := scanSection(s.DB.QueryRowContext(ctx, query, sectionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	return sec, nil
}

func (s *DBStore) GetInvestor(ctx context.Context, investorID int64) (*models.Investor, error) {
	query := `SELECT id, name FROM investors WHERE id = $1`

	inv := &models.Investor{}
	err := s.DB.QueryRowContext(ctx, query, investorID).Scan(&inv.ID, &inv.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get investor: %w", err)
	}
	return inv, nil
}

func (s *DBStore) ListBidsBySection(ctx context.Context, sectionID int64) ([]models.Bid, error) {
	query := `
        SELECT id, section_id, investor_id, amount, bid_time, status
        FROM bids
        WHERE section_id = $1
        ORDER BY amount DESC, bid_time ASC`

	rows, err := s.DB.QueryContext(ctx, query, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.SectionID, &b.InvestorID, &b.Amount, &b.BidTime, &b.Status); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// GetSectionForBid resolves the section owning a bid. The second return is
// false when the bid does not exist.
func (s *DBStore) GetSectionForBid(ctx context.Context, bidID string) (int64, bool, error) {
	var sectionID int64
	err := s.DB.QueryRowContext(ctx, `SELECT section_id FROM bids WHERE id = $1`, bidID).Scan(&sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to resolve bid section: %w", err)
	}
	return sectionID, true, nil
}

func (s *DBStore) ListDueSectionIDs(ctx context.Context, today time.Time) ([]int64, error) {
	query := `
        SELECT id FROM sections
        WHERE deadline IS NOT NULL AND deadline < $1 AND status <> 'CLOSED'
        ORDER BY id`

	return s.listIDs(ctx, query, today)
}

func (s *DBStore) ListSectionIDs(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM sections ORDER BY id`)
}

func (s *DBStore) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list section ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan section id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateSection runs fn inside a transaction that holds a row lock on the
// section, so all price/status/bid-set mutations for one section are
// serialized while different sections proceed in parallel. Lock conflicts are
// retried a bounded number of times before surfacing ErrTxConflict.
func (s *DBStore) UpdateSection(ctx context.Context, sectionID int64, fn func(st *auction.SectionState) (auction.Changes, error)) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := s.updateSectionOnce(ctx, sectionID, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, lastErr)
}

func (s *DBStore) updateSectionOnce(ctx context.Context, sectionID int64, fn func(st *auction.SectionState) (auction.Changes, error)) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Bounded blocking on the row lock; surfaced as a retryable error.
	if _, err := tx.ExecContext(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	lockQuery := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1 FOR UPDATE`
	sec, err := scanSection(tx.QueryRowContext(ctx, lockQuery, sectionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrSectionNotFound
		}
		return fmt.Errorf("failed to lock section: %w", err)
	}

	bidsQuery := `
        SELECT id, section_id, investor_id, amount, bid_time, status
        FROM bids WHERE section_id = $1`
	rows, err := tx.QueryContext(ctx, bidsQuery, sectionID)
	if err != nil {
		return fmt.Errorf("failed to load bids: %w", err)
	}
	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.SectionID, &b.InvestorID, &b.Amount, &b.BidTime, &b.Status); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read bids: %w", err)
	}

	st := &auction.SectionState{Section: *sec, Bids: bids}
	changes, err := fn(st)
	if err != nil {
		return err
	}

	if err := applyChanges(ctx, tx, changes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func applyChanges(ctx context.Context, tx *sql.Tx, ch auction.Changes) error {
	sec := ch.Section
	var deadline any
	if sec.Deadline != nil {
		deadline = *sec.Deadline
	}
	var winner any
	if sec.WinnerInvestorID != nil {
		winner = *sec.WinnerInvestorID
	}
	_, err := tx.ExecContext(ctx, `
        UPDATE sections
        SET base_price = $2, current_price = $3, status = $4, bidder_count = $5,
            deadline = $6, winner_investor_id = $7, updated_at = $8
        WHERE id = $1`,
		sec.ID, sec.BasePrice, sec.CurrentPrice, string(sec.Status.Kind),
		sec.Status.Bidders, deadline, winner, sec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update section: %w", err)
	}

	// Deletes go first: a cancelled PENDING bid must leave the partial
	// unique index before a promotion writes the next PENDING row, and
	// demotions must land before a new PENDING row is inserted.
	for _, id := range ch.DeletedBids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bids WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete bid: %w", err)
		}
	}
	for _, b := range ch.UpdatedBids {
		if _, err := tx.ExecContext(ctx, `UPDATE bids SET status = $2 WHERE id = $1`, b.ID, b.Status); err != nil {
			return fmt.Errorf("failed to update bid status: %w", err)
		}
	}
	for _, b := range ch.CreatedBids {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO bids (id, section_id, investor_id, amount, bid_time, status)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			b.ID, b.SectionID, b.InvestorID, b.Amount, b.BidTime, b.Status)
		if err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}
	}
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03": // serialization failure, deadlock, lock timeout
			return true
		}
	}
	return false
}
