package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

var ErrGeneratorUnavailable = errors.New("generator service is not configured")

type RemoteConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	AuthToken  string
}

// RemoteGenerator calls the document generator service over HTTP. The service
// fetches the liturgical content upstream and typesets the PDF; this client
// only moves parameters in and bytes out.
type RemoteGenerator struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	authToken  string
}

func NewRemoteGenerator(config RemoteConfig) *RemoteGenerator {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &RemoteGenerator{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
		authToken:  strings.TrimSpace(config.AuthToken),
	}
}

func (g *RemoteGenerator) Available() bool {
	return g.baseURL != ""
}

func (g *RemoteGenerator) Generate(ctx context.Context, request domain.Request) (domain.Artifact, error) {
	if !g.Available() {
		return domain.Artifact{}, ErrGeneratorUnavailable
	}

	endpoint := g.baseURL + "/generate?" + generateQuery(request).Encode()

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		artifact, callErr := g.callGenerateEndpoint(ctx, endpoint)
		if callErr == nil {
			return artifact, nil
		}
		lastErr = callErr

		if !isRetryableGeneratorError(callErr) || attempt == g.maxRetries {
			break
		}

		backoff := time.Duration(500*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return domain.Artifact{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown generator error")
	}
	return domain.Artifact{}, lastErr
}

func (g *RemoteGenerator) callGenerateEndpoint(ctx context.Context, endpoint string) (domain.Artifact, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("create generator request: %w", err)
	}
	httpRequest.Header.Set("Accept", "application/pdf")
	if g.authToken != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+g.authToken)
	}

	httpResponse, err := g.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return domain.Artifact{}, fmt.Errorf("generator timeout: %w", err)
		}
		return domain.Artifact{}, fmt.Errorf("generator transport error: %w", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("read generator body: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 700 {
			message = message[:700]
		}
		return domain.Artifact{}, &generatorHTTPError{
			StatusCode: httpResponse.StatusCode,
			Message:    message,
		}
	}

	contentType := httpResponse.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	return domain.Artifact{
		Body:        body,
		ContentType: contentType,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func generateQuery(request domain.Request) url.Values {
	values := url.Values{}
	values.Set("type", string(request.Kind))
	values.Set("remarkable", strconv.FormatBool(request.PageVariant == domain.PageRemarkable))

	if request.Shape == domain.ShapeRange {
		values.Set("monthly", "true")
		values.Set("year", strconv.Itoa(request.Year))
		values.Set("month", strconv.Itoa(request.Month))
		cycle := request.PsalmCycle
		if cycle == 0 {
			cycle = domain.DefaultPsalmCycle
		}
		values.Set("psalm_cycle", strconv.Itoa(cycle))
	} else {
		values.Set("date", request.Date)
	}
	return values
}

type generatorHTTPError struct {
	StatusCode int
	Message    string
}

func (e *generatorHTTPError) Error() string {
	return fmt.Sprintf("generator status %d: %s", e.StatusCode, e.Message)
}

func isRetryableGeneratorError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *generatorHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "tempor")
}
