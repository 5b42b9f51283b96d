package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"

	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/logger"
)

// SimConfig drives a contention run: every worker races for the same few
// slots so that the booking guard is exercised under load.
type SimConfig struct {
	APIBaseURL    string        `envconfig:"SIM_API_BASE_URL" default:"http://localhost:8080"`
	Duration      time.Duration `envconfig:"SIM_DURATION" default:"30s"`
	Workers       int           `envconfig:"SIM_WORKERS" default:"32"`
	HotSlots      int           `envconfig:"SIM_HOT_SLOTS" default:"5"`
	ReadRatio     float64       `envconfig:"SIM_READ_RATIO" default:"0.3"`
	OfferingLimit int           `envconfig:"SIM_OFFERING_LIMIT" default:"10"`
}

type target struct {
	OfferingID uuid.UUID
	Resources  int
	Start      time.Time
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, maxLatency time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Simulator struct {
	config  SimConfig
	targets []target
	client  *http.Client
	log     *logger.Logger

	mu      sync.Mutex
	booked  map[string]int
	created []uuid.UUID

	booking OperationMetrics
	slots   OperationMetrics
}

func main() {
	log := logger.New(logger.Config{Format: logger.FormatText, Service: "simulate"})

	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", "error", err)
	}
	var cfg SimConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("invalid config", "error", err)
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.HotSlots <= 0 {
		log.Fatal("SIM_WORKERS, SIM_DURATION and SIM_HOT_SLOTS must be > 0")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, db.PoolOptions{AppName: "simulate"})
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		booked: make(map[string]int),
	}
	if err := sim.loadTargets(ctx, pool); err != nil {
		log.Fatal("load targets", "error", err)
	}
	log.Info("simulation targets loaded", "slots", len(sim.targets), "workers", cfg.Workers, "duration", cfg.Duration)

	sim.Run()
	sim.PrintReport()
}

// loadTargets picks free offerings and asks the API for their next open
// slots. Paid offerings need a real charge and are skipped.
func (s *Simulator) loadTargets(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT o.id, count(r.resource_id)
		FROM offerings o
		JOIN offering_resources r ON r.offering_id = o.id
		WHERE o.price_amount = 0
		GROUP BY o.id
		LIMIT $1
	`, s.config.OfferingLimit)
	if err != nil {
		return fmt.Errorf("load offerings: %w", err)
	}
	type offering struct {
		id        uuid.UUID
		resources int
	}
	var offerings []offering
	for rows.Next() {
		var o offering
		if err := rows.Scan(&o.id, &o.resources); err != nil {
			rows.Close()
			return err
		}
		offerings = append(offerings, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	from := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Hour)
	to := from.Add(7 * 24 * time.Hour)
	for _, o := range offerings {
		starts, err := s.fetchSlots(ctx, o.id, from, to)
		if err != nil {
			return err
		}
		for _, start := range starts {
			if len(s.targets) == s.config.HotSlots {
				return nil
			}
			s.targets = append(s.targets, target{OfferingID: o.id, Resources: o.resources, Start: start})
		}
	}
	if len(s.targets) == 0 {
		return fmt.Errorf("no open slots found, run cmd/seed first")
	}
	return nil
}

func (s *Simulator) fetchSlots(ctx context.Context, offeringID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	url := fmt.Sprintf("%s/offerings/%s/slots?from=%s&to=%s", s.config.APIBaseURL, offeringID,
		from.Format(time.RFC3339), to.Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list slots: status %d", resp.StatusCode)
	}

	var body struct {
		Slots []struct {
			Start time.Time `json:"start"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	out := make([]time.Time, 0, len(body.Slots))
	for _, sl := range body.Slots {
		out = append(out, sl.Start)
	}
	return out, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}
	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context) {
	for ctx.Err() == nil {
		t := s.targets[rand.IntN(len(s.targets))]
		if rand.Float64() < s.config.ReadRatio {
			s.doListSlots(ctx, t)
		} else {
			s.doBooking(ctx, t)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, t target) {
	body, _ := json.Marshal(map[string]any{
		"offering_id": t.OfferingID,
		"start":       t.Start.Format(time.RFC3339),
		"timezone":    "UTC",
		"participant": map[string]string{"name": gofakeit.Name(), "email": gofakeit.Email()},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/bookings", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.booking.Record(latency, false, false)
		}
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&created)
		s.mu.Lock()
		s.booked[t.key()]++
		s.created = append(s.created, created.ID)
		s.mu.Unlock()
		s.booking.Record(latency, true, false)
	case http.StatusConflict:
		s.booking.Record(latency, false, true)
	default:
		s.booking.Record(latency, false, false)
	}
}

func (s *Simulator) doListSlots(ctx context.Context, t target) {
	start := time.Now()
	_, err := s.fetchSlots(ctx, t.OfferingID, t.Start, t.Start.Add(24*time.Hour))
	if ctx.Err() != nil {
		return
	}
	s.slots.Record(time.Since(start), err == nil, false)
}

func (t target) key() string {
	return t.OfferingID.String() + "@" + t.Start.Format(time.RFC3339)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("CONTENTION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s  Workers: %d  Hot slots: %d\n\n", s.config.Duration, s.config.Workers, len(s.targets))

	printOperationReport("Create booking", &s.booking)
	printOperationReport("List slots", &s.slots)

	// A slot may hold at most one booking per resource.
	violations := 0
	for _, t := range s.targets {
		got := s.booked[t.key()]
		status := "ok"
		if got > t.Resources {
			status = "DOUBLE BOOKED"
			violations++
		}
		fmt.Printf("  %s  booked=%d capacity=%d  %s\n", t.key(), got, t.Resources, status)
	}
	fmt.Printf("\nBookings created: %d, capacity violations: %d\n", len(s.created), violations)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, maxLatency := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), maxLatency.Round(time.Millisecond))
}
