package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/swordot/portal/config"
	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/internal/domain/entity"
	"github.com/swordot/portal/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	dsn := cfg.PostgresDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	hasher, err := application.NewHasher(cfg.PasswordHasher)
	if err != nil {
		log.Fatalf("password hasher: %v", err)
	}

	name := "demo"
	email := "demo@sword.local"
	password := "demo123"
	digest, err := hasher.Hash(password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	var id int64
	err = db.QueryRow(`
		INSERT INTO accounts (name, email, password, type, premium_ends_at, creation)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET password = EXCLUDED.password
		RETURNING id
	`, name, email, digest, string(entity.AccountNormal), entity.PremiumNever, helpers.UnixSeconds(time.Now())).Scan(&id)
	if err != nil {
		log.Fatalf("failed to seed account: %v", err)
	}
	fmt.Printf("seeded account: id=%d name=%s email=%s password=%s hasher=%s\n", id, name, email, password, hasher.Name())

	if _, err := db.Exec(`
		INSERT INTO account_profiles (account_id, real_name, location)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING
	`, id, "Demo Player", "Thais"); err != nil {
		log.Fatalf("failed to seed profile: %v", err)
	}

	players := []entity.Character{
		{Name: "Demo Knight", Level: 35, Vocation: 4, Sex: 1, LookType: 131},
		{Name: "Demo Sorcerer", Level: 12, Vocation: 1, Sex: 0, LookType: 138},
	}
	for _, p := range players {
		if _, err := db.Exec(`
			INSERT INTO players (account_id, name, level, vocation, sex, looktype)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (name) DO NOTHING
		`, id, p.Name, p.Level, p.Vocation, p.Sex, p.LookType); err != nil {
			log.Fatalf("failed to seed player %s: %v", p.Name, err)
		}
	}
	fmt.Printf("ensured %d players for %s\n", len(players), name)
}
