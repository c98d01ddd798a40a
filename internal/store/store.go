package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"tosti/internal/models"
)

type LoginInput struct {
	Username    string
	Email       string
	DisplayName string
	IssuedAt    time.Time
}

// Grant targets either a user or a group. ObjectType and ObjectID are only
// used for object-level grants.
type Grant struct {
	UserID     *int64
	GroupID    *int64
	Code       string
	ObjectType string
	ObjectID   int64
}

type IdentityStore interface {
	AuthenticateUser(ctx context.Context, input LoginInput) (models.User, error)
	GetUser(ctx context.Context, id int64) (models.User, error)
	HasGlobalPermission(ctx context.Context, user models.User, code string) (bool, error)
	HasObjectPermission(ctx context.Context, user models.User, code, objectType string, objectID int64) (bool, error)
	IsBlacklisted(ctx context.Context, userID int64, subsystem string) (bool, error)
	AddUserToGroup(ctx context.Context, caller models.User, userID, groupID int64) error
	GrantPermission(ctx context.Context, caller models.User, grant Grant) error
	GrantObjectPermission(ctx context.Context, caller models.User, grant Grant) error
	RevokeObjectPermission(ctx context.Context, caller models.User, grant Grant) error
	MarkAgeVerified(ctx context.Context, caller models.User, userID int64, at time.Time) (models.User, error)
}

type VenueInput struct {
	Caller        models.User
	Name          string
	Slug          string
	Active        bool
	Color         string
	CanBeReserved bool
}

type CreateReservationInput struct {
	Caller        models.User
	VenueID       int64
	Title         string
	Start         time.Time
	End           time.Time
	AssociationID *int64
	Comments      string
}

type SetAcceptedInput struct {
	Caller        models.User
	ReservationID int64
	Accepted      *bool
}

type BorrelItemInput struct {
	Description    string
	AmountReserved int
	UnitPrice      decimal.Decimal
}

type CreateBorrelInput struct {
	Caller        models.User
	Title         string
	AssociationID *int64
	Start         time.Time
	End           time.Time
	Items         []BorrelItemInput
}

type SubmitBorrelInput struct {
	Caller        models.User
	ReservationID int64
	// AmountsUsed maps item id to the amount actually used.
	AmountsUsed map[int64]int
	At          time.Time
}

type VenueStore interface {
	CreateVenue(ctx context.Context, input VenueInput) (models.Venue, error)
	ListVenues(ctx context.Context, activeOnly bool) ([]models.Venue, error)
	GetVenue(ctx context.Context, slug string) (models.Venue, error)
	CreateOrderVenue(ctx context.Context, caller models.User, venueID int64) (models.OrderVenue, error)
	ListOrderVenues(ctx context.Context) ([]models.OrderVenue, error)
	CreateReservation(ctx context.Context, input CreateReservationInput) (models.VenueReservation, error)
	GetReservation(ctx context.Context, id int64) (models.VenueReservation, error)
	ListReservations(ctx context.Context, venueID int64, from, to time.Time) ([]models.VenueReservation, error)
	SetReservationAccepted(ctx context.Context, input SetAcceptedInput) (models.VenueReservation, error)
	JoinReservation(ctx context.Context, caller models.User, code string) (models.VenueReservation, error)
	DeleteReservation(ctx context.Context, caller models.User, id int64) error
	CreateBorrelReservation(ctx context.Context, input CreateBorrelInput) (models.BorrelReservation, error)
	GetBorrelReservation(ctx context.Context, id int64) (models.BorrelReservation, error)
	SubmitBorrelReservation(ctx context.Context, input SubmitBorrelInput) (models.BorrelReservation, error)
}

type ProductInput struct {
	Caller                  models.User
	Name                    string
	CategoryID              *int64
	Available               bool
	Orderable               bool
	IgnoreShiftRestrictions bool
	MaxAllowedPerShift      *int
	CurrentPrice            decimal.Decimal
	Barcode                 *string
	VenueIDs                []int64
}

type UpdateProductInput struct {
	ProductInput
	ProductID int64
}

type ProductFilter struct {
	OrderVenueID  int64
	OrderableOnly bool
	AvailableOnly bool
}

type CatalogStore interface {
	CreateCategory(ctx context.Context, caller models.User, name string) (models.ProductCategory, error)
	CreateProduct(ctx context.Context, input ProductInput) (models.Product, error)
	UpdateProduct(ctx context.Context, input UpdateProductInput) (models.Product, error)
	DeleteProduct(ctx context.Context, caller models.User, productID int64) error
	GetProduct(ctx context.Context, productID int64) (models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	ProductByBarcode(ctx context.Context, code string) (models.Product, error)
	UserCanStillOrder(ctx context.Context, caller models.User, shiftID, productID int64) (models.Allowance, error)
}

type CreateShiftInput struct {
	Caller           models.User
	VenueID          int64
	Start            time.Time
	End              time.Time
	MaxOrdersPerUser *int
	MaxOrdersTotal   *int
	AssigneeIDs      []int64
}

type UpdateShiftInput struct {
	Caller  models.User
	ShiftID int64
	Patch   models.ShiftPatch
	At      time.Time
}

type ShiftActionInput struct {
	Caller   models.User
	ShiftID  int64
	Minutes  int
	Capacity int
	UserID   int64
	At       time.Time
}

type ShiftFilter struct {
	ActiveOnly bool
	VenueID    int64
	At         time.Time
}

type ShiftStore interface {
	CreateShift(ctx context.Context, input CreateShiftInput) (models.Shift, error)
	GetShift(ctx context.Context, shiftID int64) (models.Shift, error)
	ListShifts(ctx context.Context, filter ShiftFilter) ([]models.Shift, error)
	UpdateShift(ctx context.Context, input UpdateShiftInput) (models.Shift, error)
	FinalizeShift(ctx context.Context, input ShiftActionInput) (models.Shift, error)
	ExtendShiftTime(ctx context.Context, input ShiftActionInput) (models.Shift, error)
	ExtendShiftCapacity(ctx context.Context, input ShiftActionInput) (models.Shift, error)
	AssignUser(ctx context.Context, input ShiftActionInput) (models.Shift, error)
}

type PlaceOrderInput struct {
	Caller       models.User
	ShiftID      int64
	ProductID    int64
	UserID       *int64
	Type         models.OrderType
	Paid         bool
	Ready        bool
	Deprioritize bool
	Prioritize   bool
	At           time.Time
}

type PlaceCartInput struct {
	Caller     models.User
	ShiftID    int64
	ProductIDs []int64
	At         time.Time
}

type ScanInput struct {
	Caller  models.User
	ShiftID int64
	Barcode string
	At      time.Time
}

type UpdateOrderInput struct {
	Caller  models.User
	ShiftID int64
	OrderID int64
	Patch   models.OrderPatch
	At      time.Time
}

type OrderStore interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (models.Order, error)
	PlaceCart(ctx context.Context, input PlaceCartInput) ([]models.Order, error)
	PlaceScanned(ctx context.Context, input ScanInput) (models.Order, error)
	UpdateOrder(ctx context.Context, input UpdateOrderInput) (models.Order, error)
	DeleteOrder(ctx context.Context, caller models.User, shiftID, orderID int64) error
	ListOrders(ctx context.Context, caller models.User, shiftID int64) ([]models.Order, error)
}

type RecordRequestInput struct {
	PlayerID    int64
	Track       models.Track
	RequestedBy *int64
	At          time.Time
}

type CreateControlEventInput struct {
	Caller           models.User
	ReservationID    int64
	RespectBlacklist bool
	Association      models.PermissionTriple
	Selected         models.PermissionTriple
	Everyone         models.PermissionTriple
}

type CreatePlayerInput struct {
	Caller      models.User
	Slug        string
	DisplayName string
	VenueID     *int64
}

type MusicStore interface {
	CreatePlayer(ctx context.Context, input CreatePlayerInput) (models.Player, error)
	SetPlayerCredentials(ctx context.Context, caller models.User, playerID int64, credentials []byte) error
	ListPlayers(ctx context.Context) ([]models.Player, error)
	GetPlayer(ctx context.Context, slug string) (models.Player, error)
	SetPlayerDevice(ctx context.Context, playerID int64, deviceID *string) error
	ActiveOverlay(ctx context.Context, player models.Player, user models.User, at time.Time) (models.Overlay, bool, error)
	RecordRequest(ctx context.Context, input RecordRequestInput) (models.QueueItem, error)
	CountRequestsSince(ctx context.Context, playerID, userID int64, since time.Time) (int, error)
	ListQueueItems(ctx context.Context, playerID int64, limit int) ([]models.QueueItem, error)
	CreateControlEvent(ctx context.Context, input CreateControlEventInput) (models.ControlEvent, error)
	JoinControlEvent(ctx context.Context, caller models.User, code string) (models.ControlEvent, error)
}

// ExportFunc delivers one ledger document to the sink.
type ExportFunc func(ctx context.Context, doc models.LedgerDocument) error

type LedgerStore interface {
	PendingExports(ctx context.Context, limit int) ([]models.LedgerExportKey, error)
	// RunExport locks the key, skips it when another run already succeeded
	// and records the outcome of push. It reports whether push was called.
	RunExport(ctx context.Context, keyID int64, push ExportFunc) (bool, error)
}

type MinimizeResult struct {
	OrdersCleared     int64
	QueueItemsCleared int64
	UsersDeleted      int64
}

type MaintenanceStore interface {
	MinimizeData(ctx context.Context, now time.Time) (MinimizeResult, error)
}

type OutboxEvent struct {
	ID        int64           `json:"-"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type OutboxStore interface {
	LatestOutboxID(ctx context.Context) (int64, error)
	ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]OutboxEvent, error)
}

type Store interface {
	IdentityStore
	VenueStore
	CatalogStore
	ShiftStore
	OrderStore
	MusicStore
}
