package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS votes CASCADE`,
		`DROP TABLE IF EXISTS poll_options CASCADE`,
		`DROP TABLE IF EXISTS polls CASCADE`,
		`DROP TABLE IF EXISTS profiles CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		// Profiles mirror the identity provider's user records so poll
		// listings can show creator names without an extra upstream call.
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS polls (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Option text is unique per poll, case-insensitively, via a stored
		// folded copy. The constraint is deferred to commit so a reconcile
		// that swaps the texts of two options does not trip on the
		// intermediate state.
		`CREATE TABLE IF NOT EXISTS poll_options (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			poll_id UUID NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			text_fold TEXT NOT NULL GENERATED ALWAYS AS (LOWER(text)) STORED,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT poll_options_text_unique UNIQUE (poll_id, text_fold) DEFERRABLE INITIALLY DEFERRED
		)`,

		// One vote per user per poll, enforced by the database regardless
		// of what the application layer does.
		`CREATE TABLE IF NOT EXISTS votes (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			poll_id UUID NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			option_id UUID NOT NULL REFERENCES poll_options(id) ON DELETE NO ACTION,
			user_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT votes_poll_user_unique UNIQUE (poll_id, user_id)
		)`,

		// Indexes for common query patterns
		`CREATE INDEX IF NOT EXISTS idx_polls_active ON polls(is_active, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_polls_creator ON polls(created_by)`,
		`CREATE INDEX IF NOT EXISTS idx_poll_options_poll ON poll_options(poll_id, display_order)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_poll ON votes(poll_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_option ON votes(option_id)`,
	}

	for i, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i+1, err)
		}
		fmt.Printf("  Executed migration %d/%d\n", i+1, len(queries))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	// Seed a demo user
	userID := "seed-user-1"
	_, err := conn.Exec(ctx, `
		INSERT INTO profiles (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, userID, "demo@example.com", "Demo User")
	if err != nil {
		return fmt.Errorf("failed to seed profile: %w", err)
	}

	polls := []struct {
		title       string
		description string
		options     []string
	}{
		{
			title:       "Favorite programming language?",
			description: "Pick the language you reach for first.",
			options:     []string{"Go", "Rust", "Python", "TypeScript"},
		},
		{
			title:       "Tabs or spaces?",
			description: "",
			options:     []string{"Tabs", "Spaces"},
		},
	}

	for _, p := range polls {
		pollID := uuid.New().String()
		_, err := conn.Exec(ctx, `
			INSERT INTO polls (id, title, description, created_by)
			VALUES ($1, $2, $3, $4)
		`, pollID, p.title, p.description, userID)
		if err != nil {
			return fmt.Errorf("failed to seed poll %q: %w", p.title, err)
		}

		for i, text := range p.options {
			_, err := conn.Exec(ctx, `
				INSERT INTO poll_options (id, poll_id, text, display_order)
				VALUES ($1, $2, $3, $4)
			`, uuid.New().String(), pollID, text, i)
			if err != nil {
				return fmt.Errorf("failed to seed option %q: %w", text, err)
			}
		}

		fmt.Printf("  Seeded poll: %s\n", p.title)
	}

	return nil
}
