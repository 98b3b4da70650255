// Command libadmin runs operator tasks against the library database:
// first-run admin setup, table exports, fine refresh and policy inspection.
package main

import (
	"fmt"
	"log"
	"os"

	"school-library/internal/adapters/mail"
	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/storage"
	"school-library/internal/config"
	"school-library/internal/core/services"
)

func main() {
	root := newRootCmd(connect)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// connect loads the configuration and opens the same database the server
// uses. The returned func closes it.
func connect() (*services.Container, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := config.CloseDatabase(); err != nil {
			log.Printf("❌ Error closing database: %v", err)
		}
	}

	if err := models.AutoMigrate(db); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}

	files, err := storage.NewLocal(cfg.Upload.Dir, cfg.Upload.MaxSizeMB)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	return services.NewContainer(db, cfg, files, mail.NewSMTPMailer(cfg.Mail)), closeDB, nil
}
