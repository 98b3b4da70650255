package models

import (
	"time"

	"school-library/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Accounts
// ============================================================

// User represents users table (login accounts)
type User struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	MemberID            *uint          `gorm:"uniqueIndex" json:"member_id"`
	Username            string         `gorm:"uniqueIndex;size:80;not null" json:"username"`
	Email               string         `gorm:"uniqueIndex;size:120;not null" json:"email"`
	Password            string         `gorm:"size:255;not null" json:"-"`
	Role                string         `gorm:"size:20;not null;index" json:"role"`
	IsActive            bool           `gorm:"not null" json:"is_active"`
	Confirmed           bool           `gorm:"not null" json:"confirmed"`
	ConfirmationCode    string         `gorm:"size:16" json:"-"`
	ConfirmationExpires *time.Time     `json:"-"`
	Image               string         `gorm:"size:200" json:"image"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
	Member              *Member        `gorm:"foreignKey:MemberID" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse DTO
type UserResponse struct {
	ID        uint            `json:"id"`
	MemberID  *uint           `json:"member_id,omitempty"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	IsActive  bool            `json:"is_active"`
	Confirmed bool            `json:"confirmed"`
	Image     string          `json:"image,omitempty"`
	Member    *MemberResponse `json:"member,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	resp := &UserResponse{
		ID:        u.ID,
		MemberID:  u.MemberID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		Confirmed: u.Confirmed,
		Image:     u.Image,
		CreatedAt: u.CreatedAt,
	}
	if u.Member != nil {
		resp.Member = u.Member.ToResponse()
	}
	return resp
}

// LinkedMemberID returns the member id or 0 when the account is not linked
func (u *User) LinkedMemberID() uint {
	if u.MemberID == nil {
		return 0
	}
	return *u.MemberID
}

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// ============================================================
// Membership registry
// ============================================================

// Member represents members table (patrons)
type Member struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FirstName    string    `gorm:"size:100;not null" json:"first_name"`
	LastName     string    `gorm:"size:100;not null" json:"last_name"`
	Email        string    `gorm:"uniqueIndex;size:120;not null" json:"email"`
	Phone        string    `gorm:"size:20" json:"phone"`
	ClassGroup   string    `gorm:"size:50;index" json:"class_group"`
	Status       string    `gorm:"size:20;not null;index" json:"status"`
	RegisteredAt time.Time `gorm:"autoCreateTime" json:"registered_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}

// MemberResponse DTO
type MemberResponse struct {
	ID           uint      `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	ClassGroup   string    `json:"class_group,omitempty"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

func (m *Member) ToResponse() *MemberResponse {
	return &MemberResponse{
		ID:           m.ID,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		FullName:     m.FullName(),
		Email:        m.Email,
		Phone:        m.Phone,
		ClassGroup:   m.ClassGroup,
		Status:       m.Status,
		RegisteredAt: m.RegisteredAt,
	}
}

// ============================================================
// Catalog
// ============================================================

// Item represents items table (lendable catalog entries)
type Item struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"size:200;not null" json:"title"`
	Author          string         `gorm:"size:100;not null" json:"author"`
	ISBN            *string        `gorm:"uniqueIndex;size:13" json:"isbn"`
	PublicationYear int            `json:"publication_year"`
	Category        string         `gorm:"size:50;index" json:"category"`
	Summary         string         `gorm:"type:text" json:"summary"`
	ContentFile     string         `gorm:"size:255" json:"content_file"`
	CoverImage      string         `gorm:"size:255" json:"cover_image"`
	Available       bool           `gorm:"not null;index" json:"available"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Item) TableName() string {
	return "items"
}

func (i *Item) State() domain.ItemState {
	return domain.ItemState{ID: i.ID, Title: i.Title, Available: i.Available}
}

// ============================================================
// Circulation
// ============================================================

// Loan represents loans table
type Loan struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	MemberID      uint            `gorm:"index;not null" json:"member_id"`
	ItemID        uint            `gorm:"index;not null" json:"item_id"`
	BorrowedAt    time.Time       `gorm:"not null;index" json:"borrowed_at"`
	DueAt         time.Time       `gorm:"not null;index" json:"due_at"`
	ReturnedAt    *time.Time      `gorm:"index" json:"returned_at"`
	Status        string          `gorm:"size:20;not null;index" json:"status"`
	Renewals      int             `gorm:"not null" json:"renewals"`
	Fine          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"fine"`
	FineSettledAt *time.Time      `json:"fine_settled_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Member        *Member         `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Item          *Item           `gorm:"foreignKey:ItemID" json:"item,omitempty"`
}

func (Loan) TableName() string {
	return "loans"
}

// IsOpen reports whether the loan has not been returned
func (l *Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

// Snapshot converts the row into the engine's loan view
func (l *Loan) Snapshot() domain.LoanSnapshot {
	return domain.LoanSnapshot{
		ID:          l.ID,
		ItemID:      l.ItemID,
		DueAt:       l.DueAt,
		ReturnedAt:  l.ReturnedAt,
		Renewals:    l.Renewals,
		Fine:        l.Fine,
		FineSettled: l.FineSettledAt != nil,
	}
}

// Reservation represents reservations table
type Reservation struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	MemberID   uint       `gorm:"index;not null" json:"member_id"`
	ItemID     uint       `gorm:"index;not null" json:"item_id"`
	ReservedAt time.Time  `gorm:"not null;index" json:"reserved_at"`
	Status     string     `gorm:"size:20;not null;index" json:"status"`
	ResolvedAt *time.Time `json:"resolved_at"`
	LoanID     *uint      `json:"loan_id"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Member     *Member    `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Item       *Item      `gorm:"foreignKey:ItemID" json:"item,omitempty"`
}

func (Reservation) TableName() string {
	return "reservations"
}

// ============================================================
// Policy configuration (singleton row, id = 1)
// ============================================================

// PolicySingletonID is the primary key of the only policy row
const PolicySingletonID = 1

// PolicyConfig represents policy_configs table
type PolicyConfig struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	MaxLoans             int             `gorm:"not null" json:"max_loans"`
	LoanDurationDays     int             `gorm:"not null" json:"loan_duration_days"`
	MaxRenewals          int             `gorm:"not null" json:"max_renewals"`
	RenewalExtensionDays int             `gorm:"not null" json:"renewal_extension_days"`
	DailyFineRate        decimal.Decimal `gorm:"type:decimal(8,2);not null" json:"daily_fine_rate"`
	UpdatedBy            *uint           `json:"updated_by"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PolicyConfig) TableName() string {
	return "policy_configs"
}

// ToDomain converts the row into the policy value object
func (p *PolicyConfig) ToDomain() domain.Policy {
	return domain.Policy{
		MaxLoans:             p.MaxLoans,
		LoanDurationDays:     p.LoanDurationDays,
		MaxRenewals:          p.MaxRenewals,
		RenewalExtensionDays: p.RenewalExtensionDays,
		DailyFineRate:        p.DailyFineRate,
	}
}

// Apply copies the policy values onto the row
func (p *PolicyConfig) Apply(policy domain.Policy) {
	p.MaxLoans = policy.MaxLoans
	p.LoanDurationDays = policy.LoanDurationDays
	p.MaxRenewals = policy.MaxRenewals
	p.RenewalExtensionDays = policy.RenewalExtensionDays
	p.DailyFineRate = policy.DailyFineRate
}

// ============================================================
// Migration
// ============================================================

// AutoMigrate creates or updates all application tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Member{},
		&User{},
		&RefreshToken{},
		&Item{},
		&Loan{},
		&Reservation{},
		&PolicyConfig{},
	)
}
