package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
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

type integrationRuntime struct {
	server         *httptest.Server
	generatorCalls *atomic.Int64
	cancel         context.CancelFunc
}

// startIntegrationRuntime wires the full service against in-memory backends
// and a fake generator HTTP service that typesets a deterministic PDF.
func startIntegrationRuntime(t *testing.T) integrationRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	generatorCalls := &atomic.Int64{}
	generatorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		generatorCalls.Add(1)
		if r.URL.Query().Get("date") == "1900-01-01" {
			http.Error(w, "date out of supported range", http.StatusBadRequest)
			return
		}

		body := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("0 obj stream data endobj\n"), 64)...)
		body = append(body, []byte("% "+r.URL.RawQuery+"\n%%EOF\n")...)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	}))

	artifacts := store.NewMemoryArtifactStore(store.MemoryConfig{})
	jobs := ledger.NewMemoryJobsLedger()
	localQueue := queue.NewLocalQueue(2048, 3, logger)
	documentGenerator := generator.NewRemoteGenerator(generator.RemoteConfig{
		BaseURL: generatorServer.URL,
		Timeout: 5 * time.Second,
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
	return integrationRuntime{
		server:         server,
		generatorCalls: generatorCalls,
		cancel: func() {
			cancel()
			server.Close()
			generatorServer.Close()
		},
	}
}

func getRaw(t *testing.T, client *http.Client, url string) (*http.Response, []byte) {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return response, raw
}

func getJSON(t *testing.T, client *http.Client, url string) (int, map[string]any) {
	t.Helper()
	response, raw := getRaw(t, client, url)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response body (%d): %s", response.StatusCode, string(raw))
	}
	return response.StatusCode, decoded
}

// waitForJobPDF polls the job endpoint until it streams the finished PDF.
func waitForJobPDF(
	t *testing.T,
	client *http.Client,
	baseURL string,
	jobID string,
	timeout time.Duration,
) (*http.Response, []byte) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		response, raw := getRaw(t, client, fmt.Sprintf("%s/v1/jobs/%s", baseURL, jobID))
		if response.StatusCode != http.StatusOK {
			t.Fatalf("poll returned %d: %s", response.StatusCode, string(raw))
		}

		if strings.HasPrefix(response.Header.Get("Content-Type"), "application/pdf") {
			return response, raw
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode poll body: %s", string(raw))
		}
		jobStatus, _ := body["status"].(string)
		if jobStatus == "failed" {
			t.Fatalf("job %s failed: %+v", jobID, body)
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for job %s to complete", jobID)
	return nil, nil
}

func TestSingleDateDocumentMissThenHit(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	url := runtime.server.URL + "/v1/documents?kind=morning&date=2025-12-25"

	first, firstBody := getRaw(t, client, url)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.StatusCode, string(firstBody))
	}
	if got := first.Header.Get("X-Cache"); got != "MISS" {
		t.Fatalf("expected X-Cache MISS, got %q", got)
	}
	if !strings.HasPrefix(first.Header.Get("Content-Type"), "application/pdf") {
		t.Fatalf("expected PDF content type, got %q", first.Header.Get("Content-Type"))
	}
	if disposition := first.Header.Get("Content-Disposition"); !strings.Contains(disposition, "morning_prayer_2025-12-25.pdf") {
		t.Fatalf("unexpected content disposition %q", disposition)
	}
	if !bytes.HasPrefix(firstBody, []byte("%PDF-")) {
		t.Fatal("response body is not a PDF")
	}

	second, secondBody := getRaw(t, client, url)
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", second.StatusCode)
	}
	if got := second.Header.Get("X-Cache"); got != "HIT" {
		t.Fatalf("expected X-Cache HIT, got %q", got)
	}
	if !bytes.Equal(firstBody, secondBody) {
		t.Fatal("cache hit returned different bytes")
	}
	if calls := runtime.generatorCalls.Load(); calls != 1 {
		t.Fatalf("expected one generator call, got %d", calls)
	}
}

func TestSingleDateDocumentNocacheBypass(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	base := runtime.server.URL + "/v1/documents?kind=evening&date=2025-06-01"

	if response, body := getRaw(t, client, base); response.StatusCode != http.StatusOK {
		t.Fatalf("warm-up failed: %d %s", response.StatusCode, string(body))
	}

	bypass, _ := getRaw(t, client, base+"&nocache=1")
	if got := bypass.Header.Get("X-Cache"); got != "MISS" {
		t.Fatalf("nocache must regenerate, got X-Cache %q", got)
	}
	if calls := runtime.generatorCalls.Load(); calls != 2 {
		t.Fatalf("expected two generator calls, got %d", calls)
	}
}

func TestMonthlyDocumentAcceptedAndPolled(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, body := getJSON(t, client, baseURL+"/v1/documents?kind=morning&monthly=true&year=2025&month=11")
	if status != http.StatusAccepted {
		t.Fatalf("expected 202 for monthly compilation, got %d body=%+v", status, body)
	}
	jobID, _ := body["job_id"].(string)
	if strings.TrimSpace(jobID) == "" {
		t.Fatalf("expected job id, got %+v", body)
	}
	statusURL, _ := body["status_url"].(string)
	if statusURL != "/v1/jobs/"+jobID {
		t.Fatalf("unexpected status_url %q", statusURL)
	}

	response, pdf := waitForJobPDF(t, client, baseURL, jobID, 4*time.Second)
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatal("job result is not a PDF")
	}
	if disposition := response.Header.Get("Content-Disposition"); !strings.Contains(disposition, "morning_prayer_monthly_november_2025.pdf") {
		t.Fatalf("unexpected content disposition %q", disposition)
	}

	// The finished compilation is now cached; the same request hits directly.
	direct, _ := getRaw(t, client, baseURL+"/v1/documents?kind=morning&monthly=true&year=2025&month=11")
	if direct.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after completion, got %d", direct.StatusCode)
	}
	if got := direct.Header.Get("X-Cache"); got != "HIT" {
		t.Fatalf("expected X-Cache HIT after job completion, got %q", got)
	}
}

func TestDocumentValidationErrors(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	cases := []string{
		"/v1/documents?kind=vespers",
		"/v1/documents?kind=morning&date=25-12-2025",
		"/v1/documents?kind=morning&page=a4",
		"/v1/documents?kind=morning&monthly=true&month=13",
		"/v1/documents?kind=morning&monthly=true&psalm_cycle=45",
	}
	for _, path := range cases {
		status, body := getJSON(t, client, baseURL+path)
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d body=%+v", path, status, body)
		}
		envelope, ok := body["error"].(map[string]any)
		if !ok || fmt.Sprintf("%v", envelope["code"]) != "invalid_request" {
			t.Fatalf("expected invalid_request envelope for %s, got %+v", path, body)
		}
	}
}

func TestGeneratorFailureSurfacesAsBadGateway(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()

	status, body := getJSON(t, client, runtime.server.URL+"/v1/documents?kind=morning&date=1900-01-01")
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body=%+v", status, body)
	}
	envelope, ok := body["error"].(map[string]any)
	if !ok || fmt.Sprintf("%v", envelope["code"]) != "generation_failed" {
		t.Fatalf("expected generation_failed envelope, got %+v", body)
	}
}

func TestUnknownJobReturnsNotFound(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()

	status, body := getJSON(t, client, runtime.server.URL+"/v1/jobs/7b0e8f3a-0000-0000-0000-000000000000")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%+v", status, body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	status, body := getJSON(t, runtime.server.Client(), runtime.server.URL+"/healthz")
	if status != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", status)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health payload %+v", body)
	}
}
