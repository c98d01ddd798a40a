package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tosti/internal/models"
	"tosti/internal/music"
	"tosti/internal/store"
)

// fakeStore implements the methods the tests exercise; anything else panics
// through the nil embedded interface.
type fakeStore struct {
	store.Store
	placeFn        func(ctx context.Context, input store.PlaceOrderInput) (models.Order, error)
	cartFn         func(ctx context.Context, input store.PlaceCartInput) ([]models.Order, error)
	updateOrderFn  func(ctx context.Context, input store.UpdateOrderInput) (models.Order, error)
	finalizeFn     func(ctx context.Context, input store.ShiftActionInput) (models.Shift, error)
	getShiftFn     func(ctx context.Context, shiftID int64) (models.Shift, error)
	allowanceFn    func(ctx context.Context, caller models.User, shiftID, productID int64) (models.Allowance, error)
	reservationFn  func(ctx context.Context, id int64) (models.VenueReservation, error)
	getPlayerFn    func(ctx context.Context, slug string) (models.Player, error)
	credentialsFn  func(ctx context.Context, caller models.User, playerID int64, credentials []byte) error
	deleteOrderFn  func(ctx context.Context, caller models.User, shiftID, orderID int64) error
	submitBorrelFn func(ctx context.Context, input store.SubmitBorrelInput) (models.BorrelReservation, error)
}

func (f fakeStore) PlaceOrder(ctx context.Context, input store.PlaceOrderInput) (models.Order, error) {
	return f.placeFn(ctx, input)
}

func (f fakeStore) PlaceCart(ctx context.Context, input store.PlaceCartInput) ([]models.Order, error) {
	return f.cartFn(ctx, input)
}

func (f fakeStore) UpdateOrder(ctx context.Context, input store.UpdateOrderInput) (models.Order, error) {
	return f.updateOrderFn(ctx, input)
}

func (f fakeStore) FinalizeShift(ctx context.Context, input store.ShiftActionInput) (models.Shift, error) {
	return f.finalizeFn(ctx, input)
}

func (f fakeStore) GetShift(ctx context.Context, shiftID int64) (models.Shift, error) {
	return f.getShiftFn(ctx, shiftID)
}

func (f fakeStore) UserCanStillOrder(ctx context.Context, caller models.User, shiftID, productID int64) (models.Allowance, error) {
	return f.allowanceFn(ctx, caller, shiftID, productID)
}

func (f fakeStore) GetReservation(ctx context.Context, id int64) (models.VenueReservation, error) {
	return f.reservationFn(ctx, id)
}

func (f fakeStore) GetPlayer(ctx context.Context, slug string) (models.Player, error) {
	return f.getPlayerFn(ctx, slug)
}

func (f fakeStore) SetPlayerCredentials(ctx context.Context, caller models.User, playerID int64, credentials []byte) error {
	return f.credentialsFn(ctx, caller, playerID, credentials)
}

func (f fakeStore) DeleteOrder(ctx context.Context, caller models.User, shiftID, orderID int64) error {
	return f.deleteOrderFn(ctx, caller, shiftID, orderID)
}

func (f fakeStore) SubmitBorrelReservation(ctx context.Context, input store.SubmitBorrelInput) (models.BorrelReservation, error) {
	return f.submitBorrelFn(ctx, input)
}

type fakeMusic struct {
	MusicService
	searchFn func(ctx context.Context, slug string, user models.User, query string, max int) ([]models.TrackStub, error)
	playFn   func(ctx context.Context, slug string, user models.User) error
	volumeFn func(ctx context.Context, slug string, user models.User, volume int) error
}

func (f fakeMusic) Search(ctx context.Context, slug string, user models.User, query string, max int) ([]models.TrackStub, error) {
	return f.searchFn(ctx, slug, user, query, max)
}

func (f fakeMusic) Play(ctx context.Context, slug string, user models.User) error {
	return f.playFn(ctx, slug, user)
}

func (f fakeMusic) Volume(ctx context.Context, slug string, user models.User, volume int) error {
	return f.volumeFn(ctx, slug, user, volume)
}

var testUser = models.User{ID: 42, Username: "s1234567"}

func newTestHandler(st store.Store, m MusicService) *Handler {
	h := NewHandler(st, m)
	h.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return h
}

func serve(h *Handler, user models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(context.WithValue(req.Context(), userContextKey{}, user))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return errResp
}

func TestCreateOrderSuccess(t *testing.T) {
	st := fakeStore{
		placeFn: func(ctx context.Context, input store.PlaceOrderInput) (models.Order, error) {
			if input.ShiftID != 7 || input.ProductID != 3 || input.Caller.ID != testUser.ID {
				t.Fatalf("unexpected input: %+v", input)
			}
			if !input.At.Equal(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)) {
				t.Fatalf("unexpected order time: %s", input.At)
			}
			return models.Order{ID: 1, ShiftID: input.ShiftID, ProductID: input.ProductID, Type: models.OrderTypeOrdered}, nil
		},
	}
	h := newTestHandler(st, fakeMusic{})

	resp := serve(h, testUser, http.MethodPost, "/shifts/7/orders", map[string]interface{}{"product": 3})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	var order models.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if order.ID != 1 || order.Type != models.OrderTypeOrdered {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"closed", store.ErrClosed, http.StatusConflict, "closed"},
		{"quota", store.ErrQuotaExceeded, http.StatusConflict, "quota_exceeded"},
		{"forbidden", store.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"blacklisted", store.ErrBlacklisted, http.StatusForbidden, "blacklisted"},
		{"anonymous", store.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"missing product", store.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped", errors.Join(errors.New("context"), store.ErrWrongVenue), http.StatusConflict, "wrong_venue"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			st := fakeStore{
				placeFn: func(ctx context.Context, input store.PlaceOrderInput) (models.Order, error) {
					return models.Order{}, tt.err
				},
			}
			resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodPost, "/shifts/7/orders", map[string]interface{}{"product": 3})

			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.Code)
			}
			if got := decodeError(t, resp).Error.Code; got != tt.code {
				t.Fatalf("expected error code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	st := fakeStore{
		getShiftFn: func(ctx context.Context, shiftID int64) (models.Shift, error) {
			return models.Shift{}, errors.New("dial tcp 10.0.0.3:5432: refused")
		},
	}
	resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodGet, "/shifts/1", nil)

	errResp := decodeError(t, resp)
	if strings.Contains(errResp.Error.Message, "10.0.0.3") {
		t.Fatalf("internal error leaked: %s", errResp.Error.Message)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	h := newTestHandler(fakeStore{}, fakeMusic{})

	cases := []struct {
		name string
		path string
		body interface{}
		code string
	}{
		{"missing product", "/shifts/7/orders", map[string]interface{}{}, "bad_request"},
		{"unknown type", "/shifts/7/orders", map[string]interface{}{"product": 3, "type": "stolen"}, "bad_request"},
		{"unknown field", "/shifts/7/orders", map[string]interface{}{"product": 3, "price": "0.00"}, "invalid_json"},
		{"malformed json", "/shifts/7/orders", "{", "invalid_json"},
		{"bad shift id", "/shifts/abc/orders", map[string]interface{}{"product": 3}, "bad_request"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(h, testUser, http.MethodPost, tt.path, tt.body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Code)
			}
			if got := decodeError(t, resp).Error.Code; got != tt.code {
				t.Fatalf("expected error code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestCartPassesProducts(t *testing.T) {
	var got []int64
	st := fakeStore{
		cartFn: func(ctx context.Context, input store.PlaceCartInput) ([]models.Order, error) {
			got = input.ProductIDs
			orders := make([]models.Order, len(input.ProductIDs))
			for i, id := range input.ProductIDs {
				orders[i] = models.Order{ID: int64(i + 1), ProductID: id}
			}
			return orders, nil
		},
	}
	resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodPost, "/shifts/7/orders/cart", map[string]interface{}{"cart": []int64{3, 3, 5}})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Fatalf("unexpected cart: %v", got)
	}
}

func TestCartEmpty(t *testing.T) {
	st := fakeStore{
		cartFn: func(ctx context.Context, input store.PlaceCartInput) ([]models.Order, error) {
			return nil, store.ErrEmptyCart
		},
	}
	resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodPost, "/shifts/7/orders/cart", map[string]interface{}{"cart": []int64{}})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestUpdateOrderPatchPresence(t *testing.T) {
	st := fakeStore{
		updateOrderFn: func(ctx context.Context, input store.UpdateOrderInput) (models.Order, error) {
			if !input.Patch.Paid.Set || !input.Patch.Paid.Value {
				t.Fatalf("paid not set: %+v", input.Patch.Paid)
			}
			if input.Patch.Ready.Set {
				t.Fatalf("ready should be absent")
			}
			if !input.Patch.User.Set || input.Patch.User.Value != nil {
				t.Fatalf("user should be explicitly cleared: %+v", input.Patch.User)
			}
			return models.Order{ID: input.OrderID, Paid: true}, nil
		},
	}
	resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodPatch, "/shifts/7/orders/9", `{"paid": true, "user": null}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestDeleteOrder(t *testing.T) {
	st := fakeStore{
		deleteOrderFn: func(ctx context.Context, caller models.User, shiftID, orderID int64) error {
			if shiftID != 7 || orderID != 9 {
				t.Fatalf("unexpected ids %d/%d", shiftID, orderID)
			}
			return nil
		},
	}
	resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodDelete, "/shifts/7/orders/9", nil)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestFinalizeShiftWithOpenOrders(t *testing.T) {
	st := fakeStore{
		finalizeFn: func(ctx context.Context, input store.ShiftActionInput) (models.Shift, error) {
			if input.ShiftID != 4 {
				t.Fatalf("unexpected shift %d", input.ShiftID)
			}
			return models.Shift{}, store.ErrState
		},
	}
	resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodPost, "/shifts/4/finalize", nil)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestAllowance(t *testing.T) {
	cases := []struct {
		name      string
		allowance models.Allowance
		want      string
	}{
		{"unlimited", models.Unlimited(), `{"remaining":null}`},
		{"limited", models.Limited(2), `{"remaining":2}`},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			st := fakeStore{
				allowanceFn: func(ctx context.Context, caller models.User, shiftID, productID int64) (models.Allowance, error) {
					return tt.allowance, nil
				},
			}
			resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodGet, "/shifts/1/products/2/allowance", nil)

			if got := strings.TrimSpace(resp.Body.String()); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestGetReservationJoinCodeVisibility(t *testing.T) {
	creator := int64(42)
	st := fakeStore{
		reservationFn: func(ctx context.Context, id int64) (models.VenueReservation, error) {
			return models.VenueReservation{ID: id, CreatedByID: &creator, JoinCode: "abc123", UsersAccess: []int64{77}}, nil
		},
	}
	h := newTestHandler(st, fakeMusic{})

	cases := []struct {
		name string
		user models.User
		want string
	}{
		{"creator", testUser, "abc123"},
		{"joined user", models.User{ID: 77}, "abc123"},
		{"other user", models.User{ID: 5}, ""},
		{"anonymous", models.User{}, ""},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(h, tt.user, http.MethodGet, "/reservations/3", nil)
			var reservation models.VenueReservation
			if err := json.NewDecoder(resp.Body).Decode(&reservation); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if reservation.JoinCode != tt.want {
				t.Fatalf("expected join code %q, got %q", tt.want, reservation.JoinCode)
			}
		})
	}
}

func TestSubmitBorrelCollectsAmounts(t *testing.T) {
	st := fakeStore{
		submitBorrelFn: func(ctx context.Context, input store.SubmitBorrelInput) (models.BorrelReservation, error) {
			if input.AmountsUsed[10] != 4 || input.AmountsUsed[11] != 0 {
				t.Fatalf("unexpected amounts: %v", input.AmountsUsed)
			}
			at := input.At
			return models.BorrelReservation{ID: input.ReservationID, SubmittedAt: &at}, nil
		},
	}
	body := map[string]interface{}{"items": []map[string]int{{"id": 10, "amount_used": 4}, {"id": 11, "amount_used": 0}}}
	resp := serve(newTestHandler(st, fakeMusic{}), testUser, http.MethodPost, "/borrel/5/submit", body)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestMeRequiresLogin(t *testing.T) {
	resp := serve(newTestHandler(fakeStore{}, fakeMusic{}), models.User{}, http.MethodGet, "/me", nil)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestSearchRateLimited(t *testing.T) {
	m := fakeMusic{
		searchFn: func(ctx context.Context, slug string, user models.User, query string, max int) ([]models.TrackStub, error) {
			return nil, music.ErrRateLimited
		},
	}
	resp := serve(newTestHandler(fakeStore{}, m), testUser, http.MethodGet, "/players/marietje/search?query=abba", nil)

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", resp.Code)
	}
}

func TestSearchArguments(t *testing.T) {
	m := fakeMusic{
		searchFn: func(ctx context.Context, slug string, user models.User, query string, max int) ([]models.TrackStub, error) {
			if slug != "marietje" || query != "abba" || max != 3 {
				t.Fatalf("unexpected search %s %q %d", slug, query, max)
			}
			return []models.TrackStub{{ID: "t1", Name: "Waterloo"}}, nil
		},
	}
	resp := serve(newTestHandler(fakeStore{}, m), testUser, http.MethodGet, "/players/marietje/search?query=abba&maximum=3", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestSearchMaximum(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		want   int
		status int
	}{
		{"absent uses default", "/players/marietje/search?query=abba", music.DefaultSearchMax, http.StatusOK},
		{"zero", "/players/marietje/search?query=abba&maximum=0", 0, http.StatusBadRequest},
		{"not a number", "/players/marietje/search?query=abba&maximum=many", 0, http.StatusBadRequest},
		{"empty query", "/players/marietje/search?query=%20", 0, http.StatusBadRequest},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			m := fakeMusic{
				searchFn: func(ctx context.Context, slug string, user models.User, query string, max int) ([]models.TrackStub, error) {
					if max < 1 {
						return nil, store.ErrBadRequest
					}
					if max != tt.want {
						t.Fatalf("expected maximum %d, got %d", tt.want, max)
					}
					return []models.TrackStub{}, nil
				},
			}
			resp := serve(newTestHandler(fakeStore{}, m), testUser, http.MethodGet, tt.path, nil)

			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.Code)
			}
		})
	}
}

func TestPlayerControls(t *testing.T) {
	var played string
	var volume int
	m := fakeMusic{
		playFn: func(ctx context.Context, slug string, user models.User) error {
			played = slug
			return nil
		},
		volumeFn: func(ctx context.Context, slug string, user models.User, v int) error {
			if v > 100 {
				return store.ErrBadRequest
			}
			volume = v
			return nil
		},
	}
	h := newTestHandler(fakeStore{}, m)

	if resp := serve(h, testUser, http.MethodPatch, "/players/marietje/play", nil); resp.Code != http.StatusOK {
		t.Fatalf("play: expected status 200, got %d", resp.Code)
	}
	if played != "marietje" {
		t.Fatalf("play went to %q", played)
	}
	if resp := serve(h, testUser, http.MethodPatch, "/players/marietje/volume", map[string]int{"volume": 35}); resp.Code != http.StatusOK {
		t.Fatalf("volume: expected status 200, got %d", resp.Code)
	}
	if volume != 35 {
		t.Fatalf("expected volume 35, got %d", volume)
	}
	if resp := serve(h, testUser, http.MethodPatch, "/players/marietje/volume", map[string]int{"volume": 150}); resp.Code != http.StatusBadRequest {
		t.Fatalf("volume: expected status 400, got %d", resp.Code)
	}
}

func TestSetCredentials(t *testing.T) {
	var stored []byte
	st := fakeStore{
		getPlayerFn: func(ctx context.Context, slug string) (models.Player, error) {
			return models.Player{ID: 2, Slug: slug}, nil
		},
		credentialsFn: func(ctx context.Context, caller models.User, playerID int64, credentials []byte) error {
			stored = credentials
			return nil
		},
	}
	h := newTestHandler(st, fakeMusic{})

	if resp := serve(h, testUser, http.MethodPut, "/players/marietje/credentials", map[string]string{}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if resp := serve(h, testUser, http.MethodPut, "/players/marietje/credentials", map[string]string{"access_token": "tok"}); resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	if string(stored) != "tok" {
		t.Fatalf("unexpected credentials %q", stored)
	}
}
