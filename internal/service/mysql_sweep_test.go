package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// tableDB is a tiny database/sql driver serving the statements the MySQL
// store issues during a release sweep.  It has no locking of its own; the
// point is to count connections, not to emulate InnoDB.
type tableDB struct {
	mu       sync.Mutex
	event    uuid.UUID
	category string
	seats    map[int64]*tableSeat
	sold     map[int64]bool
	carts    map[string]map[int64]bool
	open     int
	maxOpen  int
}

type tableSeat struct {
	row, col  driver.Value
	available bool
	reserved  bool
	reserver  driver.Value
}

func newTableDB(event uuid.UUID, category string) *tableDB {
	return &tableDB{
		event:    event,
		category: category,
		seats:    map[int64]*tableSeat{},
		sold:     map[int64]bool{},
		carts:    map[string]map[int64]bool{},
	}
}

func (d *tableDB) hold(id int64, requester uuid.UUID, pooled bool) {
	s := &tableSeat{available: true, reserved: true, reserver: requester.String()}
	if !pooled {
		s.row, s.col = int64(1), id
	}
	d.seats[id] = s
}

func (d *tableDB) Connect(context.Context) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return &tableConn{db: d}, nil
}

func (d *tableDB) Driver() driver.Driver { return tableDriver{} }

type tableDriver struct{}

func (tableDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type tableConn struct{ db *tableDB }

func (c *tableConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (c *tableConn) Begin() (driver.Tx, error) { return tableTx{}, nil }
func (c *tableConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return tableTx{}, nil
}

func (c *tableConn) Close() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.open--
	return nil
}

type tableTx struct{}

func (tableTx) Commit() error { return nil }
func (tableTx) Rollback() error { return nil }

func (c *tableConn) QueryContext(_ context.Context, q string, args []driver.NamedValue) (driver.Rows, error) {
	d := c.db
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case strings.Contains(q, "FROM ticket_category"):
		if args[1].Value != d.category {
			return &tableRows{}, nil
		}
		return &tableRows{
			cols: []string{"event_id", "category_name", "layout", "price_cents", "start_row", "end_row", "start_column", "end_column", "pool_size"},
			data: [][]driver.Value{{d.event.String(), d.category, "POOL", int64(0), nil, nil, nil, nil, int64(len(d.seats))}},
		}, nil
	case strings.Contains(q, "last_reserver = ?"):
		pooled := strings.Contains(q, "seat_row IS NULL")
		rows := &tableRows{cols: []string{"ticket_id", "event_id", "category_name", "seat_row", "seat_column", "is_available", "is_reserved", "last_reserver"}}
		for id := int64(1); id <= int64(len(d.seats)); id++ {
			s := d.seats[id]
			if s == nil || !s.available || !s.reserved || s.reserver != args[2].Value || (s.row == nil) != pooled {
				continue
			}
			rows.data = append(rows.data, []driver.Value{id, d.event.String(), d.category, s.row, s.col, s.available, s.reserved, s.reserver})
		}
		return rows, nil
	case strings.HasPrefix(q, "SELECT EXISTS"):
		id := args[0].Value.(int64)
		committed := d.sold[id] || d.carts[args[1].Value.(string)][id]
		return &tableRows{cols: []string{"committed"}, data: [][]driver.Value{{committed}}}, nil
	}
	return nil, errors.New("unexpected query: " + q)
}

func (c *tableConn) ExecContext(_ context.Context, q string, args []driver.NamedValue) (driver.Result, error) {
	d := c.db
	d.mu.Lock()
	defer d.mu.Unlock()
	if !strings.HasPrefix(q, "UPDATE seating_plan") {
		return nil, errors.New("unexpected statement: " + q)
	}
	s := d.seats[args[3].Value.(int64)]
	s.available, s.reserved, s.reserver = args[0].Value.(bool), args[1].Value.(bool), args[2].Value
	return driver.RowsAffected(1), nil
}

type tableRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *tableRows) Columns() []string { return r.cols }
func (r *tableRows) Close() error { return nil }

func (r *tableRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.i])
	r.i++
	return nil
}

func TestReleaseHolds_MySQLStoreSingleConnection(t *testing.T) {
	ev, a := uuid.New(), uuid.New()
	tdb := newTableDB(ev, "GA")
	for id := int64(1); id <= 4; id++ {
		tdb.hold(id, a, true)
	}
	tdb.sold[1] = true
	cart := uuid.New()
	tdb.carts[cart.String()] = map[int64]bool{2: true}

	db := sql.OpenDB(tdb)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	svc := NewReservationService(repository.NewMySQLSeatStore(db), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	released, err := svc.ReleasePoolHolds(ctx, ev, a, "GA", cart)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, released)
	assert.Equal(t, 1, tdb.maxOpen)

	tdb.mu.Lock()
	defer tdb.mu.Unlock()
	assert.True(t, tdb.seats[1].reserved, "purchased ticket stays held")
	assert.True(t, tdb.seats[2].reserved, "carted ticket stays held")
	assert.False(t, tdb.seats[3].reserved)
	assert.Nil(t, tdb.seats[4].reserver)
}

func TestReleaseHolds_MySQLStoreConcurrentSweepsShareSmallPool(t *testing.T) {
	ev := uuid.New()
	tdb := newTableDB(ev, "GA")
	requesters := make([]uuid.UUID, 6)
	for i := range requesters {
		requesters[i] = uuid.New()
		tdb.hold(int64(i+1), requesters[i], true)
	}

	db := sql.OpenDB(tdb)
	db.SetMaxOpenConns(2)
	t.Cleanup(func() { _ = db.Close() })
	svc := NewReservationService(repository.NewMySQLSeatStore(db), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	errs := make([]error, len(requesters))
	for i, r := range requesters {
		wg.Add(1)
		go func(i int, r uuid.UUID) {
			defer wg.Done()
			_, errs[i] = svc.ReleasePoolHolds(ctx, ev, r, "GA", uuid.Nil)
		}(i, r)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "sweep %d", i)
	}
	assert.LessOrEqual(t, tdb.maxOpen, 2)

	tdb.mu.Lock()
	defer tdb.mu.Unlock()
	for id, s := range tdb.seats {
		assert.False(t, s.reserved, "ticket %d", id)
	}
}
