package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/medistore/internal/version"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	headerIdemKey  = "Idempotency-Key"
)

type config struct {
	baseURL     string
	orders      int
	quantity    int
	stock       int
	concurrency int
	timeout     time.Duration
	price       decimal.Decimal
	sellerID    string
	customerTag string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	MedicineID      string           `json:"medicine_id"`
	Orders          int              `json:"orders"`
	Quantity        int              `json:"quantity"`
	InitialStock    int              `json:"initial_stock"`
	FinalStock      int              `json:"final_stock"`
	Succeeded       int64            `json:"succeeded"`
	Rejected        int64            `json:"rejected"`
	Failed          int64            `json:"failed"`
	RPS             float64          `json:"rps"`
	Codes           map[string]int64 `json:"codes"`
	LatencyMs       latencySummary   `json:"latency_ms"`
}

// violations возвращает нарушения инварианта остатка; пустой список означает успех.
func (r report) violations() []string {
	var out []string
	sold := int(r.Succeeded) * r.Quantity
	if sold > r.InitialStock {
		out = append(out, fmt.Sprintf("oversold: %d units ordered, stock was %d", sold, r.InitialStock))
	}
	if r.FinalStock < 0 {
		out = append(out, fmt.Sprintf("negative final stock: %d", r.FinalStock))
	}
	if want := r.InitialStock - sold; r.FinalStock != want {
		out = append(out, fmt.Sprintf("final stock %d, expected %d", r.FinalStock, want))
	}
	return out
}

type collector struct {
	mu        sync.Mutex
	succeeded int64
	rejected  int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

func newCollector() *collector {
	return &collector{codes: make(map[string]int64)}
}

// record учитывает ответ на создание заказа. code == 0 означает транспортную ошибку.
func (c *collector) record(code int, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch code {
	case http.StatusCreated:
		c.succeeded++
	case http.StatusConflict:
		c.rejected++
	default:
		c.failed++
	}
	label := "transport_error"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	c.codes[label]++
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) fill(r *report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r.Succeeded = c.succeeded
	r.Rejected = c.rejected
	r.Failed = c.failed
	r.Codes = make(map[string]int64, len(c.codes))
	for code, count := range c.codes {
		r.Codes[code] = count
	}
	r.LatencyMs = buildLatencySummary(c.latencies)
}

func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)

	var cfg config
	var priceValue string
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "marketplace REST base URL")
	fs.IntVar(&cfg.orders, "orders", 200, "number of concurrent order requests")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity per order")
	fs.IntVar(&cfg.stock, "stock", 50, "initial stock of the seeded medicine")
	fs.IntVar(&cfg.concurrency, "concurrency", 32, "number of requests in flight")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&priceValue, "price", "9.99", "unit price of the seeded medicine")
	fs.StringVar(&cfg.sellerID, "seller", "", "seller id; generated when empty")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("base-url is required")
	case cfg.orders <= 0:
		return cfg, errors.New("orders must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case cfg.stock < 0:
		return cfg, errors.New("stock must be >= 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case !cfg.price.IsPositive():
		return cfg, errors.New("price must be > 0")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, &http.Client{})
	if err != nil {
		log.WithError(err).Fatal("load test failed")
	}

	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			log.WithError(err).Fatal("failed to write report")
		}
	}

	if problems := result.violations(); len(problems) > 0 {
		for _, p := range problems {
			log.Error(p)
		}
		os.Exit(1)
	}
}

// run засевает препарат, параллельно отправляет заказы и сверяет итоговый остаток.
func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	if cfg.sellerID == "" {
		cfg.sellerID = "load-seller-" + runID
	}

	c := &client{base: cfg.baseURL, http: httpClient, timeout: cfg.timeout, userAgent: version.UserAgent("loadtest")}
	seller := actor{id: cfg.sellerID, role: "SELLER"}

	medicineID, err := seed(ctx, c, seller, cfg, runID)
	if err != nil {
		return report{}, err
	}

	col := newCollector()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i := 0; i < cfg.orders; i++ {
		index := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			placeOrder(gctx, c, cfg, medicineID, runID, index, col)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report{}, fmt.Errorf("order phase interrupted: %w", err)
	}

	var medicine medicineDTO
	code, err := c.do(ctx, http.MethodGet, "/api/medicines/"+medicineID, seller, "", nil, &medicine)
	if err != nil {
		return report{}, fmt.Errorf("read final stock: %w", err)
	}
	if code != http.StatusOK || medicine.Stock == nil {
		return report{}, fmt.Errorf("read final stock: unexpected status %d", code)
	}

	duration := time.Since(startedAt)
	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		MedicineID:      medicineID,
		Orders:          cfg.orders,
		Quantity:        cfg.quantity,
		InitialStock:    cfg.stock,
		FinalStock:      *medicine.Stock,
	}
	col.fill(&result)
	if duration > 0 {
		result.RPS = float64(cfg.orders) / duration.Seconds()
	}
	return result, nil
}

func seed(ctx context.Context, c *client, seller actor, cfg config, runID string) (string, error) {
	stock := cfg.stock
	var medicine medicineDTO
	code, err := c.do(ctx, http.MethodPost, "/api/seller/medicines", seller, "", map[string]any{
		"name":      "load-" + runID,
		"unit":      "pack",
		"basePrice": cfg.price,
		"stock":     &stock,
	}, &medicine)
	if err != nil {
		return "", fmt.Errorf("seed medicine: %w", err)
	}
	if code != http.StatusCreated || medicine.ID == "" {
		return "", fmt.Errorf("seed medicine: unexpected status %d", code)
	}

	code, err = c.do(ctx, http.MethodPatch, "/api/seller/medicines/"+medicine.ID+"/active", seller, "",
		map[string]any{"isActive": true}, nil)
	if err != nil {
		return "", fmt.Errorf("activate medicine: %w", err)
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("activate medicine: unexpected status %d", code)
	}
	return medicine.ID, nil
}

func placeOrder(ctx context.Context, c *client, cfg config, medicineID, runID string, index int, col *collector) {
	customer := actor{id: fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index), role: "CUSTOMER"}
	start := time.Now()
	code, err := c.do(ctx, http.MethodPost, "/api/orders", customer, fmt.Sprintf("lt-%s-%d", runID, index), map[string]any{
		"sellerId":        cfg.sellerID,
		"shippingAddress": "load test street 1",
		"items": []map[string]any{{
			"medicineId": medicineID,
			"quantity":   cfg.quantity,
			"price":      cfg.price,
		}},
	}, nil)
	if err != nil {
		log.WithError(err).WithField("order", index).Debug("order request failed")
		code = 0
	}
	col.record(code, time.Since(start))
}

type actor struct {
	id   string
	role string
}

type medicineDTO struct {
	ID    string `json:"id"`
	Stock *int   `json:"stock"`
}

type client struct {
	base      string
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

// do отправляет JSON-запрос от имени актора и декодирует ответ в out, если статус 2xx.
func (c *client) do(ctx context.Context, method, path string, as actor, idemKey string, in, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerUserID, as.id)
	req.Header.Set(headerUserRole, as.role)
	if idemKey != "" {
		req.Header.Set(headerIdemKey, idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "medicine=%s orders=%d qty=%d stock=%d->%d\n",
		result.MedicineID, result.Orders, result.Quantity, result.InitialStock, result.FinalStock)
	_, _ = fmt.Fprintf(w, "succeeded=%d rejected=%d failed=%d duration=%.2fs rps=%.2f\n",
		result.Succeeded, result.Rejected, result.Failed, result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.LatencyMs.Min, result.LatencyMs.Avg, result.LatencyMs.P50,
		result.LatencyMs.P95, result.LatencyMs.P99, result.LatencyMs.Max)

	labels := make([]string, 0, len(result.Codes))
	for label := range result.Codes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		_, _ = fmt.Fprintf(w, "status %s: %d\n", label, result.Codes[label])
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
