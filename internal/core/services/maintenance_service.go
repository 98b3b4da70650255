package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/config"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single maintenance run
const jobTimeout = 5 * time.Minute

// MaintenanceService runs scheduled housekeeping: fine refresh, overdue
// reminders and expired token cleanup. Fines stay correct without it
// because they are evaluated on every read.
type MaintenanceService struct {
	circulation *CirculationService
	notifier    *NotificationService
	tokens      repositories.RefreshTokenRepository
	schedule    config.CronConfig
	cron        *cron.Cron
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(
	circulation *CirculationService,
	notifier *NotificationService,
	tokens repositories.RefreshTokenRepository,
	schedule config.CronConfig,
) *MaintenanceService {
	return &MaintenanceService{
		circulation: circulation,
		notifier:    notifier,
		tokens:      tokens,
		schedule:    schedule,
		cron:        cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the jobs and starts the scheduler
func (s *MaintenanceService) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"fine refresh", s.schedule.FineRefresh, s.RefreshFines},
		{"overdue reminders", s.schedule.OverdueReminder, s.SendOverdueReminders},
		{"token cleanup", s.schedule.TokenCleanup, s.CleanupTokens},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(job.name, job.run) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
	}

	s.cron.Start()
	log.Println("🚀 MaintenanceService started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *MaintenanceService) Stop() {
	<-s.cron.Stop().Done()
	log.Println("🛑 MaintenanceService stopped")
}

func (s *MaintenanceService) run(name string, job func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := job(ctx)
	if err != nil {
		log.Printf("❌ Maintenance %s failed: %v", name, err)
		return
	}
	log.Printf("✅ Maintenance %s done (%d)", name, n)
}

// RefreshFines persists the current fine of every open loan
func (s *MaintenanceService) RefreshFines(ctx context.Context) (int, error) {
	return s.circulation.RefreshFines(ctx)
}

// SendOverdueReminders mails each member with overdue loans once.
// It returns the number of reminders delivered.
func (s *MaintenanceService) SendOverdueReminders(ctx context.Context) (int, error) {
	overdue, err := s.circulation.OverdueLoans(ctx)
	if err != nil {
		return 0, err
	}

	byMember := map[uint][]*models.Loan{}
	var order []uint
	for _, l := range overdue {
		if _, seen := byMember[l.MemberID]; !seen {
			order = append(order, l.MemberID)
		}
		byMember[l.MemberID] = append(byMember[l.MemberID], l)
	}

	sent := 0
	for _, memberID := range order {
		loans := byMember[memberID]
		if loans[0].Member == nil {
			continue
		}
		if err := s.notifier.SendOverdueReminder(ctx, loans[0].Member, loans); err != nil {
			continue
		}
		sent++
	}
	return sent, nil
}

// CleanupTokens deletes expired refresh tokens
func (s *MaintenanceService) CleanupTokens(ctx context.Context) (int, error) {
	n, err := s.tokens.DeleteExpired(ctx)
	return int(n), err
}
