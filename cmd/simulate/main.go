// Command simulate drives concurrent booking traffic against a running API
// server and reports how many attempts won, collided or failed.
package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/db"
	"github.com/mediqueue/dental-scheduling/internal/logger"
	"github.com/mediqueue/dental-scheduling/internal/slot"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Days         int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	GuestRatio   float64
	PatientLimit int
	DentistLimit int
	PostgresDSN  string
}

// candidate is a bookable start seen on a schedule before the run began.
type candidate struct {
	DentistCode string
	Start       time.Time
}

type DataPool struct {
	Patients   []string
	Candidates []candidate

	mu           sync.RWMutex
	appointments []string
}

func (dp *DataPool) AddAppointment(code string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, code)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	Booking  OperationMetrics
	Confirm  OperationMetrics
	ReadByID OperationMetrics
	Schedule OperationMetrics
	Wait     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	logger.Init(getEnv("LOG_LEVEL", "info"), getEnv("APP_ENV", "dev"))
	log.Info().Msg("simulator starting")

	cfg, policy := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulation config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	dataPool, err := sim.loadDataPool(ctx, pgPool, policy)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	sim.pool = dataPool
	log.Info().Int("patients", len(dataPool.Patients)).Int("candidates", len(dataPool.Candidates)).Msg("data pool loaded")

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, clock.Policy) {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	policy, err := baseCfg.ClockPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("clinic clock")
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Days:         getInt("SIM_DAYS", 3),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		GuestRatio:   getFloat("SIM_GUEST_RATIO", 0.2),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		DentistLimit: getInt("SIM_DENTIST_LIMIT", 10),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg, policy
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// loadDataPool reads patients and dentists from Postgres, then asks the API
// for each dentist's upcoming schedules to collect bookable starts.
func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool, policy clock.Policy) (*DataPool, error) {
	dp := &DataPool{}

	patients, err := queryCodes(ctx, pool, `SELECT code FROM patients ORDER BY code LIMIT $1`, s.config.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dp.Patients = patients

	dentists, err := queryCodes(ctx, pool, `SELECT code FROM dentists WHERE is_active ORDER BY code LIMIT $1`, s.config.DentistLimit)
	if err != nil {
		return nil, fmt.Errorf("load dentists: %w", err)
	}

	today := policy.DateOf(policy.Now())
	for _, d := range dentists {
		for i := 0; i < s.config.Days; i++ {
			sched, err := s.fetchSchedule(ctx, d, today.AddDays(i))
			if err != nil {
				return nil, err
			}
			for _, sl := range sched.Slots {
				if sl.Status == slot.StatusBookable {
					dp.Candidates = append(dp.Candidates, candidate{DentistCode: d, Start: sl.Start})
				}
			}
		}
	}

	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dp.Candidates) == 0 {
		return nil, fmt.Errorf("no bookable slots found")
	}
	return dp, nil
}

func queryCodes(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]string, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

type scheduleResponse struct {
	Slots []slot.Slot `json:"slots"`
}

func (s *Simulator) fetchSchedule(ctx context.Context, dentist string, date clock.Date) (*scheduleResponse, error) {
	u := fmt.Sprintf("%s/dentists/%s/schedule?date=%s", s.config.APIBaseURL, url.PathEscape(dentist), date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule %s %s: %w", dentist, date, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch schedule %s %s: status %d", dentist, date, resp.StatusCode)
	}

	var sched scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&sched); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &sched, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var g errgroup.Group
	for i := 0; i < s.config.Workers; i++ {
		g.Go(func() error {
			s.worker(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doSchedule(ctx, rng)
			case 2:
				s.doWait(ctx, rng)
			}
		}
	}
}

// call performs one request and returns the status code with the body decoded
// into out when the call succeeded.
func (s *Simulator) call(ctx context.Context, method, path string, in, out any) (int, time.Duration, error) {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, 0, err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	}
	return resp.StatusCode, latency, nil
}

// doBooking aims at a start seen before the run, so workers collide on
// popular slots and the conflict count shows the double-booking guard at work.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Candidates[rng.Intn(len(s.pool.Candidates))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	reqBody := map[string]any{
		"dentist_code": c.DentistCode,
		"start":        c.Start,
		"origin":       "online",
	}
	if rng.Float64() < s.config.GuestRatio {
		reqBody["guest"] = map[string]string{
			"name":  gofakeit.Name(),
			"email": gofakeit.Email(),
			"phone": gofakeit.Phone(),
		}
	} else {
		reqBody["patient_code"] = patient
	}
	var created struct {
		Code string `json:"code"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments", reqBody, &created)
	if ctx.Err() != nil {
		return
	}
	if err == nil && status == http.StatusCreated && created.Code != "" {
		s.pool.AddAppointment(created.Code)
	}
	s.metrics.Booking.Record(latency, status, err)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	code, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments/"+code+"/confirm",
		map[string]string{"actor_code": "R-01"}, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Confirm.Record(latency, status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	code, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodGet, "/appointments/"+code, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ReadByID.Record(latency, status, err)
}

func (s *Simulator) doSchedule(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Candidates[rng.Intn(len(s.pool.Candidates))]
	path := fmt.Sprintf("/dentists/%s/schedule?date=%s", url.PathEscape(c.DentistCode), c.Start.Format(time.DateOnly))
	status, latency, err := s.call(ctx, http.MethodGet, path, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Schedule.Record(latency, status, err)
}

func (s *Simulator) doWait(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Candidates[rng.Intn(len(s.pool.Candidates))]
	status, latency, err := s.call(ctx, http.MethodGet, "/queue/wait?dentist_code="+url.QueryEscape(c.DentistCode), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Wait.Record(latency, status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Candidate slots: %d\n", len(s.pool.Candidates))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by code", &s.metrics.ReadByID)
	printOperationReport("Day schedule", &s.metrics.Schedule)
	printOperationReport("Wait estimate", &s.metrics.Wait)

	booked := atomic.LoadInt64(&s.metrics.Booking.Success)
	if booked > int64(len(s.pool.Candidates)) {
		fmt.Printf("WARNING: %d bookings succeeded for %d candidate slots\n", booked, len(s.pool.Candidates))
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
