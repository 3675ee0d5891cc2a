// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"traffic-monitor/backend/internal/config"
	"traffic-monitor/backend/internal/db"
	"traffic-monitor/backend/internal/security"
	userdomain "traffic-monitor/backend/internal/user/domain"
	userrepo "traffic-monitor/backend/internal/user/repository"
)

const (
	devUserEmail  = "dev@example.com"
	devAdminEmail = "admin@example.com"
	devPassword   = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set")
		os.Exit(1)
	}
	if cfg.IsProduction() {
		fmt.Fprintln(os.Stderr, "seed: refusing to run with APP_ENV=production")
		os.Exit(1)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := userrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed: lookup dev user: %v", err)
	}
	if existing != nil {
		log.Println("seed: dev data already present, nothing to do")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: hash password: %v", err)
	}

	now := time.Now().UTC()
	seedUsers := []*userdomain.User{
		{
			ID:           uuid.New().String(),
			Email:        devUserEmail,
			PasswordHash: hash,
			FirstName:    "Dev",
			LastName:     "User",
			Role:         userdomain.RoleUser,
			CreatedAt:    now,
		},
		{
			ID:           uuid.New().String(),
			Email:        devAdminEmail,
			PasswordHash: hash,
			FirstName:    "Dev",
			LastName:     "Admin",
			Role:         userdomain.RoleAdmin,
			CreatedAt:    now,
		},
	}
	for _, u := range seedUsers {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed: create %s: %v", u.Email, err)
		}
	}

	log.Printf("seed: created %d users (password %q)", len(seedUsers), devPassword)
}
