package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/booking/internal/db"
)

// Hammers the booking API with concurrent, mostly-overlapping requests for a
// small set of practitioners, then verifies against the database that no two
// confirmed appointments of any practitioner overlap.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	PostgresDSN string
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		Duration:    30 * time.Second,
		Workers:     20,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type Metrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusBadRequest:
		atomic.AddInt64(&m.Conflict, 1)
	case status == http.StatusNotFound || status == http.StatusForbidden:
		atomic.AddInt64(&m.Rejected, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) P95() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * 95 / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration+time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	practitioners, err := loadPractitioners(ctx, pool, 5)
	if err != nil {
		log.Fatalf("load practitioners: %v", err)
	}
	if len(practitioners) == 0 {
		log.Fatal("no seeded practitioners found, run cmd/seed first")
	}
	log.Printf("simulating against %d practitioners with %d workers for %s",
		len(practitioners), cfg.Workers, cfg.Duration)

	gofakeit.Seed(time.Now().UnixNano())

	metrics := &Metrics{}
	deadline := time.Now().Add(cfg.Duration)
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		requesterID := uuid.New()
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				p := practitioners[rand.Intn(len(practitioners))]
				attemptBooking(client, cfg.APIBaseURL, p, requesterID, metrics)
			}
		}()
	}
	wg.Wait()

	log.Printf("bookings: total=%d success=%d conflict=%d rejected=%d error=%d p95=%s",
		metrics.Total, metrics.Success, metrics.Conflict, metrics.Rejected, metrics.Error, metrics.P95())

	if err := verifyNoOverlaps(ctx, pool); err != nil {
		log.Fatalf("INVARIANT VIOLATED: %v", err)
	}
	log.Println("invariant holds: no practitioner has overlapping confirmed appointments")
}

func loadPractitioners(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT DISTINCT practitioner_id
		FROM availability_windows
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type bookingRequest struct {
	PractitionerID string    `json:"practitioner_id"`
	RequesterID    string    `json:"requester_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

func attemptBooking(client *http.Client, baseURL string, practitionerID, requesterID uuid.UUID, metrics *Metrics) {
	// Bookings cluster on the same few hours tomorrow so overlap attempts
	// are the common case, which is the point of the exercise.
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	start := day.Add(time.Duration(gofakeit.Number(9, 15)) * time.Hour).
		Add(time.Duration(gofakeit.Number(0, 3)) * 15 * time.Minute)
	end := start.Add(time.Duration(gofakeit.Number(1, 4)) * 15 * time.Minute)

	body, _ := json.Marshal(bookingRequest{
		PractitionerID: practitionerID.String(),
		RequesterID:    requesterID.String(),
		Start:          start,
		End:            end,
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&metrics.Error, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", requesterID.String())
	req.Header.Set("X-Actor-Role", "requester")

	began := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.Record(time.Since(began), 0)
		return
	}
	_ = resp.Body.Close()
	metrics.Record(time.Since(began), resp.StatusCode)
}

func verifyNoOverlaps(ctx context.Context, pool *pgxpool.Pool) error {
	row := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.practitioner_id = b.practitioner_id
		 AND a.id < b.id
		 AND a.status = 'confirmed'
		 AND b.status = 'confirmed'
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
	`)

	var overlapping int
	if err := row.Scan(&overlapping); err != nil {
		return err
	}
	if overlapping > 0 {
		return fmt.Errorf("%d overlapping confirmed appointment pairs", overlapping)
	}
	return nil
}
