package services

import (
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/config"

	"gorm.io/gorm"
)

// Container wires every service onto one database connection
type Container struct {
	Repos        *repositories.Repositories
	Notification *NotificationService
	Verification *VerificationService
	Auth         *AuthService
	User         *UserService
	Member       *MemberService
	Catalog      *CatalogService
	Policy       *PolicyService
	Circulation  *CirculationService
	Reservation  *ReservationService
	Statistics   *StatisticsService
	Report       *ReportService
	Contact      *ContactService
	Maintenance  *MaintenanceService
	Events       *EventHub
}

// NewContainer builds the services. The maintenance scheduler is created
// but not started.
func NewContainer(db *gorm.DB, cfg *config.Config, files FileStore, mailer Mailer) *Container {
	repos := repositories.New(db)
	notifier := NewNotificationService(mailer)
	verifier := NewVerificationService(repos.Users, notifier)
	policy := NewPolicyService(repos.Policy)
	events := NewEventHub()
	circulation := NewCirculationService(repos, policy)
	circulation.events = events
	reservation := NewReservationService(repos, policy)
	reservation.events = events

	return &Container{
		Repos:        repos,
		Notification: notifier,
		Verification: verifier,
		Auth:         NewAuthService(repos, verifier, cfg),
		User:         NewUserService(repos, files),
		Member:       NewMemberService(repos),
		Catalog:      NewCatalogService(repos, files),
		Policy:       policy,
		Circulation:  circulation,
		Reservation:  reservation,
		Statistics:   NewStatisticsService(repos, policy),
		Report:       NewReportService(repos, policy),
		Contact:      NewContactService(repos.Users, notifier, cfg.Mail.LibraryAddress),
		Maintenance:  NewMaintenanceService(circulation, notifier, repos.RefreshTokens, cfg.Cron),
		Events:       events,
	}
}
