package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"secretariat-data/internal/config"
	"secretariat-data/internal/database"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// apply-migration applies the embedded schema migrations and exits.
// With -list it only prints the migrations it knows about.
func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "-list" {
		migrations, err := database.LoadMigrations()
		if err != nil {
			log.Fatalf("Failed to load migrations: %v", err)
		}
		for _, m := range migrations {
			fmt.Printf("%04d %s\n", m.Version, m.Name)
		}
		return
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer database.Close(db)

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	applied, err := database.Migrate(ctx, db, logger)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Printf("✅ Migration completed successfully! (%d applied)\n", applied)
}
