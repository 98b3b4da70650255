package repositories

import (
	"context"
	"time"

	"school-library/internal/adapters/persistence/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserRepository defines user repository interface
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	GetByMemberID(ctx context.Context, memberID uint) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UnlinkMember(ctx context.Context, memberID uint) error
	HardDelete(ctx context.Context, id uint) error
	List(ctx context.Context, filter UserFilter, offset, limit int) ([]*models.User, int64, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CountByRole(ctx context.Context, role string) (int64, error)
}

// RefreshTokenRepository defines refresh token repository interface
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uint) error
	DeleteByUserID(ctx context.Context, userID uint) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// MemberRepository defines member repository interface
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id uint) (*models.Member, error)
	Lock(ctx context.Context, id uint) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter MemberFilter, offset, limit int) ([]*models.Member, int64, error)
	ListAll(ctx context.Context) ([]*models.Member, error)
	ExistsByEmail(ctx context.Context, email string, excludeID uint) (bool, error)
}

// ItemRepository defines catalog item repository interface
type ItemRepository interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter ItemFilter, offset, limit int) ([]*models.Item, int64, error)
	ListAll(ctx context.Context) ([]*models.Item, error)
	Categories(ctx context.Context) ([]string, error)
	ExistsByISBN(ctx context.Context, isbn string, excludeID uint) (bool, error)
	// MarkUnavailable flips available from true to false. It reports false
	// when the item was not available, so two concurrent borrowers cannot
	// both win the last copy.
	MarkUnavailable(ctx context.Context, id uint) (bool, error)
	MarkAvailable(ctx context.Context, id uint) error
}

// LoanRepository defines loan repository interface
type LoanRepository interface {
	Create(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id uint) (*models.Loan, error)
	List(ctx context.Context, filter LoanFilter, offset, limit int) ([]*models.Loan, int64, error)
	ListByMember(ctx context.Context, memberID uint) ([]*models.Loan, error)
	ListOpen(ctx context.Context) ([]*models.Loan, error)
	ListAll(ctx context.Context) ([]*models.Loan, error)
	CountOpenByMember(ctx context.Context, memberID uint) (int64, error)
	CountOpenByItem(ctx context.Context, itemID uint) (int64, error)
	Close(ctx context.Context, id uint, returnedAt time.Time, fine decimal.Decimal) (bool, error)
	Renew(ctx context.Context, id uint, renewals int, dueAt time.Time) (bool, error)
	UpdateFine(ctx context.Context, id uint, fine decimal.Decimal) error
	SettleFine(ctx context.Context, id uint, at time.Time) (bool, error)
	DeleteByMember(ctx context.Context, memberID uint) error
}

// ReservationRepository defines reservation repository interface
type ReservationRepository interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id uint) (*models.Reservation, error)
	List(ctx context.Context, filter ReservationFilter, offset, limit int) ([]*models.Reservation, int64, error)
	ListByMember(ctx context.Context, memberID uint) ([]*models.Reservation, error)
	ListAll(ctx context.Context) ([]*models.Reservation, error)
	ExistsActive(ctx context.Context, memberID, itemID uint) (bool, error)
	// Resolve moves an active reservation to status. It reports false when
	// the reservation was no longer active.
	Resolve(ctx context.Context, id uint, status string, at time.Time, loanID *uint) (bool, error)
	CancelActiveByItem(ctx context.Context, itemID uint, at time.Time) (int64, error)
	DeleteByMember(ctx context.Context, memberID uint) error
}

// PolicyRepository defines policy configuration repository interface
type PolicyRepository interface {
	Get(ctx context.Context) (*models.PolicyConfig, error)
	Create(ctx context.Context, policy *models.PolicyConfig) error
	Save(ctx context.Context, policy *models.PolicyConfig) error
}

// ============================================================
// Filters
// ============================================================

// UserFilter narrows user listings
type UserFilter struct {
	Role   string
	Search string
}

// MemberFilter narrows member listings
type MemberFilter struct {
	Search     string
	Status     string
	ClassGroup string
	// BorrowersOnly keeps members with at least one loan
	BorrowersOnly bool
}

// ItemFilter narrows catalog listings
type ItemFilter struct {
	Search    string
	Category  string
	Author    string
	Available *bool
	YearFrom  int
	YearTo    int
	Sort      string
}

// LoanFilter narrows loan listings
type LoanFilter struct {
	MemberID uint
	ItemID   uint
	Status   string
	// Overdue asks the service to fill OverdueAt from its own clock
	Overdue bool
	// OverdueAt selects open loans due before the given instant
	OverdueAt *time.Time
}

// ReservationFilter narrows reservation listings
type ReservationFilter struct {
	MemberID uint
	ItemID   uint
	Status   string
}

// ============================================================
// Registry
// ============================================================

// Repositories groups all repositories bound to the same connection
type Repositories struct {
	db            *gorm.DB
	Users         UserRepository
	RefreshTokens RefreshTokenRepository
	Members       MemberRepository
	Items         ItemRepository
	Loans         LoanRepository
	Reservations  ReservationRepository
	Policy        PolicyRepository
}

// New creates all repositories on db
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Users:         NewUserRepository(db),
		RefreshTokens: NewRefreshTokenRepository(db),
		Members:       NewMemberRepository(db),
		Items:         NewItemRepository(db),
		Loans:         NewLoanRepository(db),
		Reservations:  NewReservationRepository(db),
		Policy:        NewPolicyRepository(db),
	}
}

// DB returns the underlying connection
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn with repositories bound to a single transaction.
// Returning an error from fn rolls everything back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
