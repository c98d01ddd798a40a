package postgres

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tosti/internal/models"
	"tosti/internal/store"
)

func TestCreateShiftOverlapConcurrency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	admin := seedUser(t, ctx, pool, "admin", true)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Minute)
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(offset time.Duration) {
			defer wg.Done()
			_, err := st.CreateShift(ctx, store.CreateShiftInput{
				Caller:  admin,
				VenueID: venueID,
				Start:   start.Add(offset),
				End:     start.Add(offset + 2*time.Hour),
			})
			errs <- err
		}(time.Duration(i) * 30 * time.Minute)
	}
	wg.Wait()
	close(errs)

	var created, overlapped int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrOverlap):
			overlapped++
		default:
			t.Fatalf("create shift: %v", err)
		}
	}
	if created != 1 || overlapped != 1 {
		t.Fatalf("expected one shift and one overlap, got %d and %d", created, overlapped)
	}
}

func TestPlaceOrderRespectsTotalCapacity(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	admin := seedUser(t, ctx, pool, "admin", true)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	productID := seedProduct(t, ctx, pool, venueID, "Ham & cheese", "1.20", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, intPtr(3), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.PlaceOrder(ctx, store.PlaceOrderInput{
				Caller:    admin,
				ShiftID:   shiftID,
				ProductID: productID,
				Type:      models.OrderTypeOrdered,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	placed := 0
	for err := range errs {
		if err == nil {
			placed++
			continue
		}
		if !errors.Is(err, store.ErrQuotaExceeded) && !errors.Is(err, store.ErrClosed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if placed != 3 {
		t.Fatalf("expected 3 placed orders, got %d", placed)
	}

	shift, err := st.GetShift(ctx, shiftID)
	if err != nil {
		t.Fatalf("get shift: %v", err)
	}
	if shift.CanOrder {
		t.Fatalf("expected shift to close once capacity was reached")
	}
}

func TestPlaceOrderRespectsPerUserLimit(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	member := seedUser(t, ctx, pool, "member", false)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	grantObject(t, ctx, pool, member.ID, models.PermOrderInVenue, venueID)
	productID := seedProduct(t, ctx, pool, venueID, "Cheese", "1.00", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, nil, intPtr(2))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.PlaceOrder(ctx, store.PlaceOrderInput{Caller: member, ShiftID: shiftID, ProductID: productID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	placed := 0
	for err := range errs {
		if err == nil {
			placed++
		} else if !errors.Is(err, store.ErrQuotaExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if placed != 2 {
		t.Fatalf("expected 2 orders for the user, got %d", placed)
	}
}

func TestOrderPriceIsSnapshotted(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	admin := seedUser(t, ctx, pool, "admin", true)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	productID := seedProduct(t, ctx, pool, venueID, "Tosti", "1.20", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, nil, nil)

	order, err := st.PlaceOrder(ctx, store.PlaceOrderInput{Caller: admin, ShiftID: shiftID, ProductID: productID})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE products SET current_price = 2.50 WHERE id = $1`, productID); err != nil {
		t.Fatalf("update price: %v", err)
	}

	orders, err := st.ListOrders(ctx, admin, shiftID)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != order.ID {
		t.Fatalf("unexpected orders: %+v", orders)
	}
	if !orders[0].OrderPrice.Equal(decimal.RequireFromString("1.20")) {
		t.Fatalf("expected price 1.20, got %s", orders[0].OrderPrice)
	}
}

func TestOrderTimestampConstraints(t *testing.T) {
	ctx := context.Background()
	_, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	productID := seedProduct(t, ctx, pool, venueID, "Tosti", "1.20", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, nil, nil)

	_, err := pool.Exec(ctx, `
		INSERT INTO orders (shift_id, product_id, type, order_price, ready, ready_at)
		VALUES ($1, $2, 'ordered', 1.20, true, NULL)
	`, shiftID, productID)
	if err == nil {
		t.Fatalf("expected ready without ready_at to be rejected")
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO orders (shift_id, product_id, type, order_price, paid, paid_at)
		VALUES ($1, $2, 'ordered', 1.20, false, now())
	`, shiftID, productID)
	if err == nil {
		t.Fatalf("expected paid_at without paid to be rejected")
	}
}

func TestPlaceCartIsAtomic(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	member := seedUser(t, ctx, pool, "member", false)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	grantObject(t, ctx, pool, member.ID, models.PermOrderInVenue, venueID)
	a := seedProduct(t, ctx, pool, venueID, "Tosti", "1.20", false)
	b := seedProduct(t, ctx, pool, venueID, "Water", "0.50", true)
	shiftID := seedOpenShift(t, ctx, pool, venueID, nil, intPtr(1))

	_, err := st.PlaceCart(ctx, store.PlaceCartInput{Caller: member, ShiftID: shiftID, ProductIDs: []int64{b, a, a}})
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE shift_id = $1`, shiftID).Scan(&count); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no orders after rejected cart, got %d", count)
	}

	orders, err := st.PlaceCart(ctx, store.PlaceCartInput{Caller: member, ShiftID: shiftID, ProductIDs: []int64{b, a}})
	if err != nil {
		t.Fatalf("place cart: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
}

func TestFinalizeAndExportOnce(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	admin := seedUser(t, ctx, pool, "admin", true)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	productID := seedProduct(t, ctx, pool, venueID, "Tosti", "1.20", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := st.PlaceOrder(ctx, store.PlaceOrderInput{
			Caller: admin, ShiftID: shiftID, ProductID: productID, Paid: true, Ready: true,
		}); err != nil {
			t.Fatalf("place order: %v", err)
		}
	}

	shift, err := st.FinalizeShift(ctx, store.ShiftActionInput{Caller: admin, ShiftID: shiftID})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !shift.Finalized || shift.CanOrder {
		t.Fatalf("expected finalized closed shift, got %+v", shift)
	}
	if _, err := st.FinalizeShift(ctx, store.ShiftActionInput{Caller: admin, ShiftID: shiftID}); err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	keys, err := st.PendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("pending exports: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one ledger key, got %d", len(keys))
	}

	var mu sync.Mutex
	var pushed []models.LedgerDocument
	push := func(_ context.Context, doc models.LedgerDocument) error {
		mu.Lock()
		defer mu.Unlock()
		pushed = append(pushed, doc)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.RunExport(ctx, keys[0].ID, push); err != nil {
				t.Errorf("run export: %v", err)
			}
		}()
	}
	wg.Wait()
	if ran, err := st.RunExport(ctx, keys[0].ID, push); err != nil || ran {
		t.Fatalf("expected exported key to be skipped, ran=%v err=%v", ran, err)
	}

	if len(pushed) != 1 {
		t.Fatalf("expected a single push, got %d", len(pushed))
	}
	doc := pushed[0]
	if len(doc.Lines) != 1 || doc.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected ledger lines: %+v", doc.Lines)
	}

	var finalized int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE type = 'shift.finalized'`).Scan(&finalized); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if finalized != 1 {
		t.Fatalf("expected 1 shift.finalized event, got %d", finalized)
	}
}

func TestFinalizeRejectsOpenOrders(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	admin := seedUser(t, ctx, pool, "admin", true)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	productID := seedProduct(t, ctx, pool, venueID, "Tosti", "1.20", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, nil, nil)

	if _, err := st.PlaceOrder(ctx, store.PlaceOrderInput{Caller: admin, ShiftID: shiftID, ProductID: productID}); err != nil {
		t.Fatalf("place order: %v", err)
	}
	if _, err := st.FinalizeShift(ctx, store.ShiftActionInput{Caller: admin, ShiftID: shiftID}); !errors.Is(err, store.ErrState) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestMinimizeData(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	member := seedUser(t, ctx, pool, "member", false)
	stale := seedUser(t, ctx, pool, "stale", false)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	productID := seedProduct(t, ctx, pool, venueID, "Tosti", "1.20", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, nil, nil)

	now := time.Now().UTC()
	if _, err := pool.Exec(ctx, `
		INSERT INTO orders (shift_id, product_id, user_id, type, order_price, created)
		VALUES ($1, $2, $3, 'ordered', 1.20, $4)
	`, shiftID, productID, member.ID, now.Add(-40*24*time.Hour)); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, stale.ID, now.Add(-400*24*time.Hour)); err != nil {
		t.Fatalf("age user: %v", err)
	}

	result, err := st.MinimizeData(ctx, now)
	if err != nil {
		t.Fatalf("minimize: %v", err)
	}
	if result.OrdersCleared != 1 || result.UsersDeleted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := st.GetUser(ctx, stale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected stale user to be deleted, got %v", err)
	}

	again, err := st.MinimizeData(ctx, now)
	if err != nil {
		t.Fatalf("second minimize: %v", err)
	}
	if again != (store.MinimizeResult{}) {
		t.Fatalf("expected second run to be a no-op, got %+v", again)
	}
}

func TestUpdateShiftLimitsCoverPlacedOrders(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	admin := seedUser(t, ctx, pool, "admin", true)
	venueID := seedOrderVenue(t, ctx, pool, "tosti")
	productID := seedProduct(t, ctx, pool, venueID, "Cheese", "1.00", false)
	shiftID := seedOpenShift(t, ctx, pool, venueID, intPtr(5), nil)

	for i := 0; i < 3; i++ {
		if _, err := st.PlaceOrder(ctx, store.PlaceOrderInput{Caller: admin, ShiftID: shiftID, ProductID: productID}); err != nil {
			t.Fatalf("place order: %v", err)
		}
	}

	cases := []struct {
		name  string
		patch models.ShiftPatch
		ok    bool
	}{
		{"total below placed", models.ShiftPatch{MaxOrdersTotal: models.Some(intPtr(2))}, false},
		{"per-user below busiest user", models.ShiftPatch{MaxOrdersPerUser: models.Some(intPtr(2))}, false},
		{"total equal to placed", models.ShiftPatch{MaxOrdersTotal: models.Some(intPtr(3))}, true},
		{"per-user equal to busiest user", models.ShiftPatch{MaxOrdersPerUser: models.Some(intPtr(3))}, true},
	}
	for _, tt := range cases {
		_, err := st.UpdateShift(ctx, store.UpdateShiftInput{Caller: admin, ShiftID: shiftID, Patch: tt.patch})
		if tt.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, store.ErrQuotaExceeded) {
			t.Fatalf("%s: expected ErrQuotaExceeded, got %v", tt.name, err)
		}
	}

	shift, err := st.GetShift(ctx, shiftID)
	if err != nil {
		t.Fatalf("get shift: %v", err)
	}
	if shift.MaxOrdersTotal == nil || *shift.MaxOrdersTotal < shift.RestrictedOrders {
		t.Fatalf("shift over its limit: %+v", shift)
	}
}

func TestAuthenticateUserLoginRules(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	if _, err := pool.Exec(ctx, `
		INSERT INTO groups (name, auto_join_new_users, grants_staff_on_join) VALUES
			('members', true, false), ('board', false, true)
	`); err != nil {
		t.Fatalf("insert groups: %v", err)
	}

	issued := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	user, err := st.AuthenticateUser(ctx, store.LoginInput{Username: "s1", Email: "s1@example.org", IssuedAt: issued})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if user.LastLogin == nil || !user.LastLogin.Equal(issued) || user.IsStaff {
		t.Fatalf("unexpected user after first login: %+v", user)
	}
	var groups int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM user_groups WHERE user_id = $1`, user.ID).Scan(&groups); err != nil {
		t.Fatalf("count groups: %v", err)
	}
	if groups != 1 {
		t.Fatalf("expected auto-join group, got %d groups", groups)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO user_groups (user_id, group_id) SELECT $1, id FROM groups WHERE name = 'board'
	`, user.ID); err != nil {
		t.Fatalf("join board: %v", err)
	}

	// replaying the same token is not a new login
	again, err := st.AuthenticateUser(ctx, store.LoginInput{Username: "s1", IssuedAt: issued})
	if err != nil {
		t.Fatalf("replayed login: %v", err)
	}
	if again.IsStaff || again.ID != user.ID {
		t.Fatalf("replayed token changed the user: %+v", again)
	}

	later, err := st.AuthenticateUser(ctx, store.LoginInput{Username: "s1", IssuedAt: issued.Add(time.Minute)})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if !later.IsStaff || later.Email != "s1@example.org" {
		t.Fatalf("expected staff flag and kept email, got %+v", later)
	}
}

func TestReservationJoinAndDelete(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	creator := seedUser(t, ctx, pool, "creator", false)
	friend := seedUser(t, ctx, pool, "friend", false)
	admin := seedUser(t, ctx, pool, "admin", true)
	var venueID int64
	if err := pool.QueryRow(ctx, `
		INSERT INTO venues (name, slug, can_be_reserved) VALUES ('Hall', 'hall', true) RETURNING id
	`).Scan(&venueID); err != nil {
		t.Fatalf("insert venue: %v", err)
	}

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	reservation, err := st.CreateReservation(ctx, store.CreateReservationInput{
		Caller:  creator,
		VenueID: venueID,
		Title:   "Board games",
		Start:   start,
		End:     start.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if len(reservation.JoinCode) < 20 || reservation.Accepted != nil {
		t.Fatalf("unexpected reservation: %+v", reservation)
	}

	joined, err := st.JoinReservation(ctx, friend, reservation.JoinCode)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(joined.UsersAccess) != 1 || joined.UsersAccess[0] != friend.ID {
		t.Fatalf("expected friend in users access, got %v", joined.UsersAccess)
	}

	if err := st.DeleteReservation(ctx, friend, reservation.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden for non-creator, got %v", err)
	}

	accepted := true
	if _, err := st.SetReservationAccepted(ctx, store.SetAcceptedInput{Caller: admin, ReservationID: reservation.ID, Accepted: &accepted}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := st.DeleteReservation(ctx, creator, reservation.ID); !errors.Is(err, store.ErrState) {
		t.Fatalf("expected state error after review, got %v", err)
	}
	if err := st.DeleteReservation(ctx, admin, reservation.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := st.GetReservation(ctx, reservation.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected reservation to be gone, got %v", err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool, Options{})
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := fs.ReadFile(migrationFiles, "migrations/"+name)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func seedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, username string, superuser bool) models.User {
	t.Helper()
	user := models.User{Username: username, IsSuperuser: superuser, IsStaff: superuser}
	if err := pool.QueryRow(ctx, `
		INSERT INTO users (username, is_staff, is_superuser, last_login) VALUES ($1, $2, $2, now())
		RETURNING id, date_joined
	`, username, superuser).Scan(&user.ID, &user.DateJoined); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return user
}

func seedOrderVenue(t *testing.T, ctx context.Context, pool *pgxpool.Pool, slug string) int64 {
	t.Helper()
	var venueID, orderVenueID int64
	if err := pool.QueryRow(ctx, `
		INSERT INTO venues (name, slug) VALUES ($1, $1) RETURNING id
	`, slug).Scan(&venueID); err != nil {
		t.Fatalf("insert venue: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO order_venues (venue_id) VALUES ($1) RETURNING id
	`, venueID).Scan(&orderVenueID); err != nil {
		t.Fatalf("insert order venue: %v", err)
	}
	return orderVenueID
}

func seedProduct(t *testing.T, ctx context.Context, pool *pgxpool.Pool, orderVenueID int64, name, price string, exempt bool) int64 {
	t.Helper()
	var id int64
	if err := pool.QueryRow(ctx, `
		INSERT INTO products (name, current_price, ignore_shift_restrictions) VALUES ($1, $2, $3) RETURNING id
	`, name, decimal.RequireFromString(price), exempt).Scan(&id); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO product_venues (product_id, order_venue_id) VALUES ($1, $2)
	`, id, orderVenueID); err != nil {
		t.Fatalf("link product: %v", err)
	}
	return id
}

func seedOpenShift(t *testing.T, ctx context.Context, pool *pgxpool.Pool, orderVenueID int64, total, perUser *int) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	if err := pool.QueryRow(ctx, `
		INSERT INTO shifts (order_venue_id, start_at, end_at, can_order, max_orders_total, max_orders_per_user)
		VALUES ($1, $2, $3, true, $4, $5) RETURNING id
	`, orderVenueID, now.Add(-time.Hour), now.Add(time.Hour), total, perUser).Scan(&id); err != nil {
		t.Fatalf("insert shift: %v", err)
	}
	return id
}

func grantObject(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID int64, code string, orderVenueID int64) {
	t.Helper()
	if _, err := pool.Exec(ctx, `
		INSERT INTO object_permissions (user_id, code, object_type, object_id) VALUES ($1, $2, $3, $4)
	`, userID, code, models.ObjectOrderVenue, orderVenueID); err != nil {
		t.Fatalf("grant permission: %v", err)
	}
}

func intPtr(v int) *int {
	return &v
}
