package main

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"

	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/logger"
)

type seedConfig struct {
	Resources int     `envconfig:"SEED_RESOURCES" default:"40"`
	Offerings int     `envconfig:"SEED_OFFERINGS" default:"20"`
	// Share of offerings that require payment.
	PaidRatio float64 `envconfig:"SEED_PAID_RATIO" default:"0.3"`
}

var timezones = []string{
	"Asia/Bangkok",
	"Asia/Tokyo",
	"Europe/Berlin",
	"America/New_York",
	"America/Los_Angeles",
	"UTC",
}

var services = []string{
	"Consultation",
	"Haircut",
	"Massage",
	"Physiotherapy",
	"Tutoring",
	"Photo session",
	"Dental cleaning",
	"Personal training",
}

func main() {
	log := logger.New(logger.Config{Format: logger.FormatText, Service: "seed"})
	log.Info("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", "error", err)
	}
	var sc seedConfig
	if err := envconfig.Process("", &sc); err != nil {
		log.Fatal("seed config error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "seed"})
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", "error", err)
	}

	resources, err := seedResources(ctx, pool, log, sc.Resources)
	if err != nil {
		log.Fatal("seed resources", "error", err)
	}
	if err := seedOfferings(ctx, pool, log, resources, sc); err != nil {
		log.Fatal("seed offerings", "error", err)
	}

	log.Info("seed complete")
}

// seedResources inserts resources with weekday office hours in a random
// timezone. Every fifth resource also gets a Saturday overnight shift.
func seedResources(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger, count int) ([]uuid.UUID, error) {
	log.Info("seeding resources", "count", count)

	ids := make([]uuid.UUID, 0, count)
	batch := &pgx.Batch{}
	for i := 0; i < count; i++ {
		id := uuid.New()
		ids = append(ids, id)
		tz := timezones[gofakeit.Number(0, len(timezones)-1)]

		batch.Queue(`INSERT INTO resources (id, name, email) VALUES ($1, $2, $3)`,
			id, gofakeit.Name(), gofakeit.Email())

		for wd := time.Monday; wd <= time.Friday; wd++ {
			batch.Queue(`
				INSERT INTO availability_windows (id, resource_id, weekday, start_local, end_local, timezone)
				VALUES ($1, $2, $3, '09:00', '17:00', $4)
			`, uuid.New(), id, int(wd), tz)
		}
		if i%5 == 0 {
			batch.Queue(`
				INSERT INTO availability_windows (id, resource_id, weekday, start_local, end_local, timezone)
				VALUES ($1, $2, $3, '22:00', '02:00', $4)
			`, uuid.New(), id, int(time.Saturday), tz)
		}
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedOfferings(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger, resources []uuid.UUID, sc seedConfig) error {
	log.Info("seeding offerings", "count", sc.Offerings)

	durations := []int{30, 45, 60, 90}
	batch := &pgx.Batch{}
	for i := 0; i < sc.Offerings; i++ {
		id := uuid.New()
		var price int64
		if gofakeit.Float64Range(0, 1) < sc.PaidRatio {
			// Omise amounts are in the smallest currency unit.
			price = int64(gofakeit.Number(300, 3000)) * 100
		}

		batch.Queue(`
			INSERT INTO offerings (id, provider_id, name, slot_duration_minutes, slot_buffer_minutes,
				advance_min_minutes, advance_max_minutes, price_amount, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'THB')
		`, id, uuid.New(), services[gofakeit.Number(0, len(services)-1)],
			durations[gofakeit.Number(0, len(durations)-1)],
			gofakeit.RandomInt([]int{0, 5, 10, 15}),
			60, 60*24*30, price)

		staff := gofakeit.Number(1, 3)
		start := gofakeit.Number(0, len(resources)-1)
		for j := 0; j < staff && j < len(resources); j++ {
			batch.Queue(`INSERT INTO offering_resources (offering_id, resource_id) VALUES ($1, $2)`,
				id, resources[(start+j)%len(resources)])
		}
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}
