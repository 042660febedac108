package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/booking/internal/db"
)

// Seeds availability windows for a set of practitioners: weekday working
// hours over the next two weeks, with occasional split days. Practitioner
// ids are printed so the simulator can be pointed at them.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedPractitioners(context.Background(), pool, 25); err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding windows for %d practitioners", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	day := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	for i := 0; i < count; i++ {
		practitionerID := uuid.New()

		for d := 0; d < 14; d++ {
			date := day.AddDate(0, 0, d)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}

			morningStart := date.Add(time.Duration(gofakeit.Number(8, 10)) * time.Hour)
			if gofakeit.Bool() {
				// Split day: morning and afternoon windows with a gap.
				if err := insertWindow(ctx, tx, practitionerID, morningStart, date.Add(12*time.Hour)); err != nil {
					return err
				}
				if err := insertWindow(ctx, tx, practitionerID, date.Add(13*time.Hour), date.Add(17*time.Hour)); err != nil {
					return err
				}
			} else {
				if err := insertWindow(ctx, tx, practitionerID, morningStart, date.Add(17*time.Hour)); err != nil {
					return err
				}
			}
		}

		log.Printf("practitioner %s (%s)", practitionerID, gofakeit.Name())
	}

	return tx.Commit(ctx)
}

func insertWindow(ctx context.Context, tx pgx.Tx, practitionerID uuid.UUID, start, end time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO availability_windows (id, practitioner_id, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, uuid.New(), practitionerID, start, end)
	return err
}
