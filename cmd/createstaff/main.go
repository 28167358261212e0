// Command createstaff provisions a therapist or admin account in Postgres.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/johndosdos/haven/internal/auth"
	"github.com/johndosdos/haven/internal/database"
	"github.com/johndosdos/haven/internal/model"
)

func main() {
	if err := run(); err != nil {
		slog.Error("createstaff failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	email := flag.String("email", "", "staff email (required)")
	name := flag.String("name", "", "display name")
	role := flag.String("role", string(model.RoleTherapist), "therapist or admin")
	password := flag.String("password", os.Getenv("STAFF_PASSWORD"), "password, defaults to $STAFF_PASSWORD")
	dbURL := flag.String("db", os.Getenv("DB_URL"), "postgres URL, defaults to $DB_URL")
	flag.Parse()

	r := model.Role(strings.ToLower(*role))
	switch {
	case *email == "":
		return errors.New("-email is required")
	case len(*password) < 8:
		return errors.New("password must be at least 8 characters")
	case r != model.RoleTherapist && r != model.RoleAdmin:
		return fmt.Errorf("unsupported role %q", *role)
	case *dbURL == "":
		return errors.New("DB_URL environment variable is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dbURL)
	if err != nil {
		return fmt.Errorf("could not connect to the postgresql database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}

	staff, err := database.New(pool).CreateStaff(ctx, model.Staff{
		Email:          strings.ToLower(*email),
		Name:           *name,
		Role:           r,
		HashedPassword: hash,
	})
	if errors.Is(err, model.ErrConflict) {
		return fmt.Errorf("%s already exists", *email)
	}
	if err != nil {
		return err
	}

	slog.Info("staff account created", "id", staff.ID, "email", staff.Email, "role", staff.Role)
	return nil
}
