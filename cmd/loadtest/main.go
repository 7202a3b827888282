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
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultStock      = 1000
	defaultQuantity   = 1
	defaultMaxRetries = 5

	// statusTransport: код в отчёте для запросов, не получивших HTTP-ответа.
	statusTransport = 0
)

type loadMode string

const (
	modeReserve        loadMode = "reserve"
	modeReserveRelease loadMode = "reserve-release"
	modeReserveCommit  loadMode = "reserve-commit"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	stock       int
	quantity    int
	maxRetries  int
	skuPrefix   string
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

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// stockReport сверяет итоговые остатки товара с числом успешных операций.
type stockReport struct {
	ItemID           string `json:"item_id"`
	Initial          int    `json:"initial"`
	Available        int    `json:"available"`
	Reserved         int    `json:"reserved"`
	Committed        int    `json:"committed"`
	ExpectedReserved int    `json:"expected_reserved"`
	Rejected         int64  `json:"rejected"`
	Conflicts        int64  `json:"conflicts"`
	Conserved        bool   `json:"conserved"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Stock             *stockReport            `json:"stock,omitempty"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает вызов; ok задаёт вызывающий, потому что отказ по остатку для сценария не ошибка.
func (c *collector) record(method string, latency time.Duration, status int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.methods[method]
	if !found {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[statusLabel(status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[name]
	if !ok {
		return methodReport{}, false
	}
	return stats.report(), true
}

func (s *methodStats) report() methodReport {
	codesCopy := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codesCopy[code] = count
	}

	return methodReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		result.Methods[name] = stats.report()
	}
	return result
}

func statusLabel(status int) string {
	if status == statusTransport {
		return "transport_error"
	}
	return strconv.Itoa(status)
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "orderstock HTTP base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeReserve), "load mode: reserve | reserve-release | reserve-commit")
	flag.IntVar(&cfg.stock, "stock", defaultStock, "initial available quantity of the load item")
	flag.IntVar(&cfg.quantity, "quantity", defaultQuantity, "quantity per stock operation")
	flag.IntVar(&cfg.maxRetries, "max-retries", defaultMaxRetries, "retries with a fresh idempotency key after a version conflict")
	flag.StringVar(&cfg.skuPrefix, "sku-prefix", "LOAD", "sku prefix of the load item")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	if cfg.baseURL == "" {
		return cfg, errors.New("url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.stock < 0 {
		return cfg, errors.New("stock must be >= 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.maxRetries < 0 {
		return cfg, errors.New("max-retries must be >= 0")
	}
	if strings.TrimSpace(cfg.skuPrefix) == "" {
		return cfg, errors.New("sku-prefix is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeReserve:
		return modeReserve, nil
	case modeReserveRelease:
		return modeReserveRelease, nil
	case modeReserveCommit:
		return modeReserveCommit, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	cli := newClient(cfg.baseURL, cfg.timeout)
	result, err := execute(cfg, cli)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || (result.Stock != nil && !result.Stock.Conserved) {
		os.Exit(1)
	}
}

// tally — счётчики успешных складских операций за прогон.
type tally struct {
	reserved  atomic.Int64
	released  atomic.Int64
	committed atomic.Int64
	rejected  atomic.Int64
	conflicts atomic.Int64
}

// execute создаёт товар, гоняет сценарии параллельно и сверяет итоговые остатки.
func execute(cfg config, cli *client) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	item, err := cli.createItem(context.Background(), cfg, runID, col)
	if err != nil {
		return report{}, fmt.Errorf("create load item: %w", err)
	}

	counters := &tally{}
	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(cli, cfg, item.ID, id, runID, col, counters); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	final, status, err := cli.getItem(context.Background(), item.ID)
	if err != nil {
		return result, fmt.Errorf("read final stock (status %s): %w", statusLabel(status), err)
	}
	result.Stock = verifyStock(cfg.stock, final, counters)
	return result, nil
}

// verifyStock проверяет сохранение количества: available+reserved+committed равно начальному остатку.
func verifyStock(initial int, final itemView, counters *tally) *stockReport {
	committed := int(counters.committed.Load())
	expectedReserved := int(counters.reserved.Load()-counters.released.Load()) - committed

	return &stockReport{
		ItemID:           final.ID,
		Initial:          initial,
		Available:        final.Available,
		Reserved:         final.Reserved,
		Committed:        committed,
		ExpectedReserved: expectedReserved,
		Rejected:         counters.rejected.Load(),
		Conflicts:        counters.conflicts.Load(),
		Conserved: final.Available >= 0 && final.Reserved >= 0 &&
			final.Reserved == expectedReserved &&
			final.Available+final.Reserved+committed == initial,
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario резервирует количество и, в зависимости от режима, освобождает или списывает его.
// Нехватка остатка (422) считается штатным отказом, а не ошибкой сценария.
func runScenario(cli *client, cfg config, itemID string, index int, runID string, col *collector, counters *tally) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	scenarioOK := true
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioStatus, scenarioOK)
	}()

	status, err := cli.stockOperation(itemID, "reserve", cfg, fmt.Sprintf("lt-reserve-%s-%d", runID, index), col, counters)
	if err != nil {
		scenarioStatus, scenarioOK = status, false
		return err
	}
	if status == http.StatusUnprocessableEntity {
		counters.rejected.Add(1)
		scenarioStatus = status
		return nil
	}
	counters.reserved.Add(int64(cfg.quantity))

	var followUp string
	switch cfg.mode {
	case modeReserveRelease:
		followUp = "release"
	case modeReserveCommit:
		followUp = "commit"
	default:
		return nil
	}

	status, err = cli.stockOperation(itemID, followUp, cfg, fmt.Sprintf("lt-%s-%s-%d", followUp, runID, index), col, counters)
	if err == nil && status == http.StatusUnprocessableEntity {
		err = fmt.Errorf("%s rejected after successful reserve", followUp)
	}
	if err != nil {
		scenarioStatus, scenarioOK = status, false
		return err
	}

	if followUp == "release" {
		counters.released.Add(int64(cfg.quantity))
	} else {
		counters.committed.Add(int64(cfg.quantity))
	}
	return nil
}

type itemView struct {
	ID        string `json:"id"`
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Version   int64  `json:"version"`
}

type apiError struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// do отправляет JSON-запрос. Ошибка возвращается только без HTTP-ответа или при неразборчивом теле.
func (c *client) do(ctx context.Context, method, path, key string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return statusTransport, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return statusTransport, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return statusTransport, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Kind != "" {
			return resp.StatusCode, &responseError{status: resp.StatusCode, kind: apiErr.Error.Kind, message: apiErr.Error.Message}
		}
		return resp.StatusCode, &responseError{status: resp.StatusCode, message: strings.TrimSpace(string(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type responseError struct {
	status  int
	kind    string
	message string
}

func (e *responseError) Error() string {
	if e.kind == "" {
		return fmt.Sprintf("http %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("http %d %s: %s", e.status, e.kind, e.message)
}

func (c *client) createItem(ctx context.Context, cfg config, runID string, col *collector) (itemView, error) {
	body := map[string]any{
		"sku":       fmt.Sprintf("%s-%s", cfg.skuPrefix, runID),
		"name":      "Load test item",
		"price":     "1.00",
		"currency":  "USD",
		"category":  "loadtest",
		"available": cfg.stock,
	}

	var item itemView
	start := time.Now()
	status, err := c.do(ctx, http.MethodPost, "/v1/items", "lt-item-"+runID, body, &item)
	col.record("CreateItem", time.Since(start), status, err == nil)
	if err != nil {
		return itemView{}, err
	}
	if item.ID == "" {
		return itemView{}, errors.New("create response returned empty item id")
	}
	return item, nil
}

func (c *client) getItem(ctx context.Context, id string) (itemView, int, error) {
	var item itemView
	status, err := c.do(ctx, http.MethodGet, "/v1/items/"+id, "", nil, &item)
	return item, status, err
}

// stockOperation выполняет складскую операцию. Конфликт версий (409) повторяется с новым ключом,
// так как прежний ключ уже закреплён за неудачным ответом. 422 возвращается без ошибки.
func (c *client) stockOperation(itemID, operation string, cfg config, key string, col *collector, counters *tally) (int, error) {
	method := "Stock" + strings.ToUpper(operation[:1]) + operation[1:]
	body := map[string]any{"quantity": cfg.quantity}

	var (
		status int
		err    error
	)
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		attemptKey := key
		if attempt > 0 {
			attemptKey = fmt.Sprintf("%s-r%d", key, attempt)
		}

		start := time.Now()
		status, err = c.do(context.Background(), http.MethodPost, "/v1/items/"+itemID+"/stock/"+operation, attemptKey, body, nil)
		col.record(method, time.Since(start), status, err == nil)

		switch {
		case err == nil:
			return status, nil
		case status == http.StatusUnprocessableEntity:
			return status, nil
		case status == http.StatusConflict:
			counters.conflicts.Add(1)
			continue
		default:
			return status, err
		}
	}
	return status, fmt.Errorf("%s: retries exhausted: %w", operation, err)
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

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(w,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}

	if s := result.Stock; s != nil {
		_, _ = fmt.Fprintf(w,
			"stock: initial=%d available=%d reserved=%d committed=%d expected_reserved=%d rejected=%d conflicts=%d conserved=%t\n",
			s.Initial, s.Available, s.Reserved, s.Committed, s.ExpectedReserved, s.Rejected, s.Conflicts, s.Conserved,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
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

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
