package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/generator"
	httpserver "github.com/mbelshaw/dailyoffice-back/internal/http"
	"github.com/mbelshaw/dailyoffice-back/internal/http/handlers"
	"github.com/mbelshaw/dailyoffice-back/internal/ledger"
	"github.com/mbelshaw/dailyoffice-back/internal/queue"
	"github.com/mbelshaw/dailyoffice-back/internal/service"
	"github.com/mbelshaw/dailyoffice-back/internal/store"
	"github.com/mbelshaw/dailyoffice-back/internal/worker"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server          *httptest.Server
	generatorServer *httptest.Server
	cancel          context.CancelFunc
}

func main() {
	cachedTotal := flag.Int("cached-total", 400, "total cached document requests")
	cachedConcurrency := flag.Int("cached-concurrency", 32, "concurrency for cached document requests")
	generateTotal := flag.Int("generate-total", 120, "total cache-miss document requests")
	generateConcurrency := flag.Int("generate-concurrency", 16, "concurrency for cache-miss document requests")
	monthlyTotal := flag.Int("monthly-total", 150, "total monthly enqueue requests")
	monthlyConcurrency := flag.Int("monthly-concurrency", 24, "concurrency for monthly enqueue requests")
	pollTotal := flag.Int("poll-total", 200, "total job poll requests")
	pollConcurrency := flag.Int("poll-concurrency", 24, "concurrency for job poll requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()
	defer env.generatorServer.Close()

	client := &http.Client{Timeout: 30 * time.Second}

	// Warm one cache entry so the cached scenario measures pure hit latency.
	warmURL := env.server.URL + "/v1/documents?kind=morning&date=2025-12-25"
	if err := getExpect(client, warmURL, http.StatusOK); err != nil {
		log.Fatalf("failed to warm cache: %v", err)
	}

	cachedScenario := runScenario("documents_cached_hit", *cachedTotal, *cachedConcurrency, func(index int) error {
		return getExpect(client, warmURL, http.StatusOK)
	})

	generateScenario := runScenario("documents_inline_generate", *generateTotal, *generateConcurrency, func(index int) error {
		date := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, index)
		url := fmt.Sprintf(
			"%s/v1/documents?kind=evening&date=%s&nocache=1",
			env.server.URL,
			date.Format("2006-01-02"),
		)
		return getExpect(client, url, http.StatusOK)
	})

	monthlyScenario := runScenario("monthly_enqueue", *monthlyTotal, *monthlyConcurrency, func(index int) error {
		url := fmt.Sprintf(
			"%s/v1/documents?kind=%s&monthly=true&year=%d&month=%d&nocache=1",
			env.server.URL,
			[]string{"morning", "evening", "midday", "compline"}[index%4],
			2020+(index%6),
			(index%12)+1,
		)
		return getExpect(client, url, http.StatusAccepted)
	})

	// Polling an unknown job still exercises the full middleware and ledger
	// path; the 404 is the expected terminal answer here.
	pollScenario := runScenario("jobs_poll", *pollTotal, *pollConcurrency, func(index int) error {
		url := fmt.Sprintf("%s/v1/jobs/benchmark-%06d", env.server.URL, index)
		return getExpect(client, url, http.StatusNotFound)
	})

	results := []scenarioResult{
		cachedScenario,
		generateScenario,
		monthlyScenario,
		pollScenario,
	}

	slo := map[string]bool{
		"cached_document_p95_le_100ms":  cachedScenario.P95MS <= 100,
		"monthly_enqueue_p95_le_1000ms": monthlyScenario.P95MS <= 1000,
		"job_poll_p95_le_200ms":         pollScenario.P95MS <= 200,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	generatorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("0 obj stream data endobj\n"), 64)...)
		body = append(body, []byte("\n%%EOF\n")...)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	}))

	artifacts := store.NewMemoryArtifactStore(store.MemoryConfig{MaxEntries: 8192})
	jobs := ledger.NewMemoryJobsLedger()
	localQueue := queue.NewLocalQueue(4096, 3, logger)
	documentGenerator := generator.NewRemoteGenerator(generator.RemoteConfig{
		BaseURL: generatorServer.URL,
		Timeout: 10 * time.Second,
	})

	orchestrator := service.NewOrchestrator(service.OrchestratorDependencies{
		Store:     artifacts,
		Ledger:    jobs,
		Producer:  localQueue,
		Generator: documentGenerator,
		Logger:    logger,
	})

	api := handlers.NewAPI(orchestrator)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(localQueue, jobs, artifacts, documentGenerator, time.Minute, logger)
	go processor.Start(ctx)

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server:          server,
		generatorServer: generatorServer,
		cancel:          cancel,
	}, nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	result := scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
	return result
}

func getExpect(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
