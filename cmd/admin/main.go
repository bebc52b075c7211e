package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"classbank/internal/domain/ledger"
	"classbank/internal/domain/user"
	"classbank/internal/shared/auth"
	"classbank/internal/shared/config"
	"classbank/internal/store"
)

const usage = `ClassBank Admin CLI - Management commands for the ClassBank API

Usage:
  admin <command> [options]

Commands:
  seed-demo        Create the demo student's ledger if it is missing
  audit            Recompute stored balances from transaction logs and repair drift
  reset-password   Set a new password for a registered user

Examples:
  # Seed the demo classroom into a fresh store
  admin seed-demo

  # Audit every ledger
  admin audit

  # Audit one student
  admin audit --user-id=student_alice

  # Reset a password
  admin reset-password --user-id=student_alice --password=hunter2`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "seed-demo":
		runSeedDemo(os.Args[2:])
	case "audit":
		runAudit(os.Args[2:])
	case "reset-password":
		runResetPassword(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// setup loads config and opens the store. The CLI talks to the same
// backend as the API.
func setup() (*config.Config, store.Store) {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Store.Backend == "memory" {
		log.Fatal("The admin CLI needs a persistent store; set STORE_BACKEND=postgres")
	}

	pg, err := store.NewPostgres(cfg.Store.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")
	return cfg, pg
}

func runSeedDemo(args []string) {
	fs := flag.NewFlagSet("seed-demo", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, s := setup()
	ledgers := ledger.NewService(s, cfg.Classroom.WelcomeBonus)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exists, err := ledgers.Exists(ctx, user.DemoStudent.ID)
	if err != nil {
		log.Fatalf("Failed to check demo ledger: %v", err)
	}
	if exists {
		fmt.Println("Demo student ledger already present, nothing to do")
		return
	}

	if _, err := ledgers.CreateStarter(ctx, user.DemoStudent.ID, "Welcome bonus"); err != nil {
		log.Fatalf("Failed to seed demo ledger: %v", err)
	}
	fmt.Printf("Seeded %s with a %.0f welcome bonus\n", user.DemoStudent.ID, cfg.Classroom.WelcomeBonus)
}

func runAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	userID := fs.String("user-id", "", "Audit a single user instead of every ledger")
	timeoutStr := fs.String("timeout", "5m", "Timeout for the operation (e.g., 30s, 5m)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg, s := setup()
	ledgers := ledger.NewService(s, cfg.Classroom.WelcomeBonus)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ids := []string{*userID}
	if *userID == "" {
		keys, err := s.Keys(ctx, ledger.KeyPrefix)
		if err != nil {
			log.Fatalf("Failed to list ledgers: %v", err)
		}
		ids = ids[:0]
		for _, key := range keys {
			if id := ledger.UserIDFromKey(key); id != "" {
				ids = append(ids, id)
			}
		}
	}

	repairedCount := 0
	for _, id := range ids {
		drift, repaired, err := ledgers.Audit(ctx, id)
		if err != nil {
			log.Printf("Audit failed for %s: %v", id, err)
			continue
		}
		if repaired {
			fmt.Printf("%s: drift %.2f repaired\n", id, drift)
			repairedCount++
		}
	}
	fmt.Printf("Audited %d ledger(s), repaired %d\n", len(ids), repairedCount)
}

func runResetPassword(args []string) {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to update, e.g. student_alice")
	password := fs.String("password", "", "New password (minimum 3 characters)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userID == "" || *password == "" {
		fmt.Println("Error: --user-id and --password are required")
		fs.Usage()
		os.Exit(1)
	}
	if *userID == user.DemoStudent.ID || *userID == user.DemoAdmin.ID {
		log.Fatal("Demo account passwords are fixed and cannot be changed")
	}
	if len(*password) < 3 {
		log.Fatal("Password must be at least 3 characters")
	}

	_, s := setup()
	users := user.NewRegistry(s)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	if err := users.SetPassword(ctx, *userID, hash); err != nil {
		log.Fatalf("Failed to reset password for %s: %v", *userID, err)
	}
	fmt.Printf("Password updated for %s\n", *userID)
}
