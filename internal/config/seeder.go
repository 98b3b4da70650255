package config

import (
	"errors"
	"log"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/core/domain"
	"school-library/internal/pkg/password"

	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db  *gorm.DB
	cfg *Config
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, cfg *Config) *Seeder {
	return &Seeder{db: db, cfg: cfg}
}

// Run executes all seeders
func (s *Seeder) Run() error {
	log.Println("🌱 Running database seeders...")

	if err := s.seedPolicy(); err != nil {
		log.Printf("⚠️ Policy seeder skipped: %v", err)
	}

	if err := s.seedAdminUser(); err != nil {
		log.Printf("⚠️ Admin seeder skipped: %v", err)
	}

	log.Println("✅ Database seeding completed")
	return nil
}

// seedPolicy creates the policy row with defaults if it does not exist
func (s *Seeder) seedPolicy() error {
	var existing models.PolicyConfig
	err := s.db.Where("id = ?", models.PolicySingletonID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	row := &models.PolicyConfig{ID: models.PolicySingletonID}
	row.Apply(domain.DefaultPolicy())
	if err := s.db.Create(row).Error; err != nil {
		return err
	}

	log.Println("✅ Default loan policy created")
	return nil
}

// seedAdminUser seeds the admin account in development only.
// In production the first admin is created through /setup/admin or libadmin.
func (s *Seeder) seedAdminUser() error {
	if !s.cfg.IsDev() || s.cfg.Admin.Password == "" {
		return nil
	}

	var count int64
	s.db.Model(&models.User{}).Where("role = ?", domain.RoleAdmin.String()).Count(&count)
	if count > 0 {
		return nil
	}

	hashedPassword, err := password.Hash(s.cfg.Admin.Password)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:  s.cfg.Admin.Username,
		Email:     s.cfg.Admin.Email,
		Password:  hashedPassword,
		Role:      domain.RoleAdmin.String(),
		IsActive:  true,
		Confirmed: true,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Admin user created: %s", admin.Username)
	return nil
}
