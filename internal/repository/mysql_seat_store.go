package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

const seatColumns = `ticket_id, event_id, category_name, seat_row, seat_column, is_available, is_reserved, last_reserver`

// MySQLSeatStore keeps seats in the seating_plan table.  Each Begin takes
// its own connection from the pool, so concurrent requests never share a
// session.
type MySQLSeatStore struct {
	db *sql.DB
}

// NewMySQLSeatStore returns a store bound to the given pool.
func NewMySQLSeatStore(db *sql.DB) *MySQLSeatStore { return &MySQLSeatStore{db: db} }

// DB exposes the underlying handle for health checks.
func (s *MySQLSeatStore) DB() *sql.DB { return s.db }

// Begin starts a READ COMMITTED transaction.  Row locks taken with
// SELECT ... FOR UPDATE provide the serialization; a weaker isolation level
// avoids InnoDB gap locks on the free-ticket index.
func (s *MySQLSeatStore) Begin(ctx context.Context) (SeatTx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &mysqlSeatTx{tx: tx, locked: make(map[uint64]model.Seat)}, nil
}

// ProvisionCategory inserts the category row and its seats in one
// transaction.  Seats are inserted in a single multi-row statement.
func (s *MySQLSeatStore) ProvisionCategory(ctx context.Context, c model.Category) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `INSERT INTO ticket_category
	           (event_id, category_name, layout, price_cents, start_row, end_row, start_column, end_column, pool_size)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var sr, er, sc, ec, ps sql.NullInt64
	if c.Layout == model.LayoutAssigned {
		sr = sql.NullInt64{Int64: int64(c.StartRow), Valid: true}
		er = sql.NullInt64{Int64: int64(c.EndRow), Valid: true}
		sc = sql.NullInt64{Int64: int64(c.StartColumn), Valid: true}
		ec = sql.NullInt64{Int64: int64(c.EndColumn), Valid: true}
	} else {
		ps = sql.NullInt64{Int64: int64(c.PoolSize), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, q, c.EventID.String(), c.Name, string(c.Layout), c.PriceCents, sr, er, sc, ec, ps); err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert category: %w", err)
	}

	seats := c.Seats()
	for start := 0; start < len(seats); start += insertBatch {
		end := min(start+insertBatch, len(seats))
		if err := insertSeats(ctx, tx, seats[start:end]); err != nil {
			if isDuplicate(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert seats: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// insertBatch keeps one INSERT well under the 65535 placeholder limit.
const insertBatch = 1000

func insertSeats(ctx context.Context, tx *sql.Tx, seats []model.Seat) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO seating_plan (event_id, category_name, seat_row, seat_column, is_available, is_reserved) VALUES `)
	args := make([]interface{}, 0, len(seats)*4)
	for i, seat := range seats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, TRUE, FALSE)")
		args = append(args, seat.EventID.String(), seat.Category, nullInt(seat.Row), nullInt(seat.Column))
	}
	_, err := tx.ExecContext(ctx, b.String(), args...)
	return err
}

// isDuplicate reports a unique key violation (ER_DUP_ENTRY).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// Categories lists the categories of an event ordered by name.
func (s *MySQLSeatStore) Categories(ctx context.Context, eventID uuid.UUID) ([]model.Category, error) {
	const q = `SELECT event_id, category_name, layout, price_cents, start_row, end_row, start_column, end_column, pool_size
	           FROM ticket_category WHERE event_id = ? ORDER BY category_name`
	rows, err := s.db.QueryContext(ctx, q, eventID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SeatMap returns committed seat state without taking locks.
func (s *MySQLSeatStore) SeatMap(ctx context.Context, eventID uuid.UUID, category string) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seating_plan WHERE event_id = ? AND category_name = ? ORDER BY ticket_id`
	rows, err := s.db.QueryContext(ctx, q, eventID.String(), category)
	if err != nil {
		return nil, err
	}
	return collectSeats(rows)
}

type mysqlSeatTx struct {
	tx     *sql.Tx
	locked map[uint64]model.Seat
	done   bool
}

func (t *mysqlSeatTx) GetAndUpdate(ctx context.Context, eventID uuid.UUID, ref model.SeatRef, fn model.TransitionFunc) (model.SeatFlags, model.SeatFlags, error) {
	if t.done {
		return model.SeatFlags{}, model.SeatFlags{}, ErrTxDone
	}
	var row *sql.Row
	if ref.IsTicket() {
		row = t.tx.QueryRowContext(ctx,
			`SELECT `+seatColumns+` FROM seating_plan WHERE event_id = ? AND ticket_id = ? FOR UPDATE`,
			eventID.String(), ref.TicketID)
	} else {
		row = t.tx.QueryRowContext(ctx,
			`SELECT `+seatColumns+` FROM seating_plan WHERE event_id = ? AND seat_row = ? AND seat_column = ? FOR UPDATE`,
			eventID.String(), ref.Row, ref.Column)
	}
	seat, err := scanSeat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SeatFlags{}, model.SeatFlags{}, ErrNotFound
	}
	if err != nil {
		return model.SeatFlags{}, model.SeatFlags{}, fmt.Errorf("lock seat: %w", err)
	}
	t.locked[seat.TicketID] = seat
	next, err := t.UpdateLocked(ctx, seat.TicketID, fn)
	if err != nil {
		return seat.Flags, seat.Flags, err
	}
	return seat.Flags, next, nil
}

func (t *mysqlSeatTx) LockCategory(ctx context.Context, eventID uuid.UUID, name string) (model.Category, error) {
	if t.done {
		return model.Category{}, ErrTxDone
	}
	const q = `SELECT event_id, category_name, layout, price_cents, start_row, end_row, start_column, end_column, pool_size
	           FROM ticket_category WHERE event_id = ? AND category_name = ? FOR UPDATE`
	c, err := scanCategory(t.tx.QueryRowContext(ctx, q, eventID.String(), name))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Category{}, ErrNotFound
	}
	if err != nil {
		return model.Category{}, fmt.Errorf("lock category: %w", err)
	}
	return c, nil
}

// SelectAndLockN selects and locks in one statement; there is no gap
// between reading availability and holding the rows.
func (t *mysqlSeatTx) SelectAndLockN(ctx context.Context, eventID uuid.UUID, category string, n int) ([]model.Seat, error) {
	if t.done {
		return nil, ErrTxDone
	}
	q := `SELECT ` + seatColumns + ` FROM seating_plan
	      WHERE event_id = ? AND category_name = ? AND is_available = TRUE AND is_reserved = FALSE
	      ORDER BY ticket_id
	      LIMIT ? FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, eventID.String(), category, n)
	if err != nil {
		return nil, fmt.Errorf("select free seats: %w", err)
	}
	seats, err := collectSeats(rows)
	if err != nil {
		return nil, err
	}
	t.remember(seats)
	return seats, nil
}

func (t *mysqlSeatTx) LockHeldBy(ctx context.Context, eventID, requester uuid.UUID, category string, scope HoldScope) ([]model.Seat, error) {
	if t.done {
		return nil, ErrTxDone
	}
	positional := "seat_row IS NOT NULL"
	if scope == ScopePool {
		positional = "seat_row IS NULL"
	}
	q := `SELECT ` + seatColumns + ` FROM seating_plan
	      WHERE event_id = ? AND category_name = ? AND last_reserver = ?
	        AND is_available = TRUE AND is_reserved = TRUE AND ` + positional + `
	      ORDER BY ticket_id FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, eventID.String(), category, requester.String())
	if err != nil {
		return nil, fmt.Errorf("select held seats: %w", err)
	}
	seats, err := collectSeats(rows)
	if err != nil {
		return nil, err
	}
	t.remember(seats)
	return seats, nil
}

func (t *mysqlSeatTx) UpdateLocked(ctx context.Context, ticketID uint64, fn model.TransitionFunc) (model.SeatFlags, error) {
	if t.done {
		return model.SeatFlags{}, ErrTxDone
	}
	seat, ok := t.locked[ticketID]
	if !ok {
		return model.SeatFlags{}, ErrNotLocked
	}
	next, err := fn(seat.Flags)
	if err != nil {
		return seat.Flags, err
	}
	if sameFlags(seat.Flags, next) {
		return next, nil
	}
	var reserver sql.NullString
	if next.LastReserver != nil {
		reserver = sql.NullString{String: next.LastReserver.String(), Valid: true}
	}
	const q = `UPDATE seating_plan SET is_available = ?, is_reserved = ?, last_reserver = ? WHERE ticket_id = ?`
	if _, err := t.tx.ExecContext(ctx, q, next.IsAvailable, next.IsReserved, reserver, ticketID); err != nil {
		return seat.Flags, fmt.Errorf("update seat %d: %w", ticketID, err)
	}
	seat.Flags = next
	t.locked[ticketID] = seat
	return next, nil
}

func (t *mysqlSeatTx) RecordPurchase(ctx context.Context, ticketID uint64, buyer uuid.UUID) error {
	if t.done {
		return ErrTxDone
	}
	const q = `INSERT INTO ticket_list (ticket_id, buyer_id) VALUES (?, ?)`
	if _, err := t.tx.ExecContext(ctx, q, ticketID, buyer.String()); err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("record purchase: %w", err)
	}
	return nil
}

func (t *mysqlSeatTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.tx.Commit()
}

func (t *mysqlSeatTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func (t *mysqlSeatTx) remember(seats []model.Seat) {
	for _, s := range seats {
		t.locked[s.TicketID] = s
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSeat(r rowScanner) (model.Seat, error) {
	var (
		s        model.Seat
		eventID  string
		row, col sql.NullInt64
		reserver sql.NullString
	)
	if err := r.Scan(&s.TicketID, &eventID, &s.Category, &row, &col, &s.Flags.IsAvailable, &s.Flags.IsReserved, &reserver); err != nil {
		return model.Seat{}, err
	}
	id, err := uuid.Parse(eventID)
	if err != nil {
		return model.Seat{}, fmt.Errorf("seat %d: bad event id: %w", s.TicketID, err)
	}
	s.EventID = id
	if row.Valid && col.Valid {
		rn, cn := int(row.Int64), int(col.Int64)
		s.Row, s.Column = &rn, &cn
	}
	if reserver.Valid && strings.TrimSpace(reserver.String) != "" {
		u, err := uuid.Parse(reserver.String)
		if err != nil {
			return model.Seat{}, fmt.Errorf("seat %d: bad reserver: %w", s.TicketID, err)
		}
		s.Flags.LastReserver = &u
	}
	return s, nil
}

func collectSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

func scanCategory(r rowScanner) (model.Category, error) {
	var (
		c                  model.Category
		eventID, layout    string
		sr, er, sc, ec, ps sql.NullInt64
	)
	if err := r.Scan(&eventID, &c.Name, &layout, &c.PriceCents, &sr, &er, &sc, &ec, &ps); err != nil {
		return model.Category{}, err
	}
	id, err := uuid.Parse(eventID)
	if err != nil {
		return model.Category{}, fmt.Errorf("category %q: bad event id: %w", c.Name, err)
	}
	c.EventID = id
	c.Layout = model.Layout(layout)
	c.StartRow, c.EndRow = int(sr.Int64), int(er.Int64)
	c.StartColumn, c.EndColumn = int(sc.Int64), int(ec.Int64)
	c.PoolSize = int(ps.Int64)
	return c, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
