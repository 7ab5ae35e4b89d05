package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"warden/internal/ceremony/models"
	"warden/internal/ceremony/softkey"
	identity "warden/internal/identity/models"
	"warden/internal/platform/config"
	"warden/internal/server"
)

const (
	rpID      = "warden.e2e"
	origin    = "https://warden.e2e"
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/121.0.0.0 Safari/537.36"
)

// TestContext holds state between test steps
type TestContext struct {
	App              *server.App
	Server           *httptest.Server
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	Subjects map[string]*identity.Subject
	Keys     map[string]*softkey.Authenticator
	Tokens   map[string]string

	// LastAssertion is the most recent login finish body, kept for replay.
	LastAssertion map[string]any
	// ActingToken is the access token of the impersonated session, if any.
	ActingToken string
}

// NewTestContext starts a warden instance with in-memory backends.
func NewTestContext() (*TestContext, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	cfg.Server.Environment = "test"
	cfg.Storage.Backend = "memory"
	cfg.RateLimit.Backend = "memory"
	cfg.Redis.URL = ""
	cfg.Kafka.Brokers = ""
	cfg.WebAuthn.RPID = rpID
	cfg.WebAuthn.Origins = []string{origin}

	app, err := server.Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	return &TestContext{
		App:        app,
		Server:     httptest.NewServer(app.Handler),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Subjects:   make(map[string]*identity.Subject),
		Keys:       make(map[string]*softkey.Authenticator),
		Tokens:     make(map[string]string),
	}, nil
}

// Close stops the HTTP server and releases the instance.
func (tc *TestContext) Close() error {
	tc.Server.Close()
	return tc.App.Close()
}

// EnsureUser creates the subject and a software authenticator for it.
func (tc *TestContext) EnsureUser(ctx context.Context, name string, role identity.Role) error {
	subject, err := tc.App.Identity.EnsureSubject(ctx, name+"@example.com", name, role, time.Now())
	if err != nil {
		return err
	}
	key, err := softkey.New(models.AlgES256, rpID, origin)
	if err != nil {
		return err
	}
	tc.Subjects[name] = subject
	tc.Keys[name] = key
	return nil
}

// SignIn issues tokens for name without a ceremony.
func (tc *TestContext) SignIn(ctx context.Context, name string) error {
	subject, ok := tc.Subjects[name]
	if !ok {
		return fmt.Errorf("unknown user %q", name)
	}
	pair, err := tc.App.Identity.IssuePair(ctx, identity.IssueRequest{SubjectID: subject.ID})
	if err != nil {
		return err
	}
	tc.Tokens[name] = pair.AccessToken
	return nil
}

// Do makes a request and stores the response. A nil body sends none.
func (tc *TestContext) Do(method, path, token string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.Server.URL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// DecodeResponse unmarshals the last response body into out.
func (tc *TestContext) DecodeResponse(out any) error {
	if err := json.Unmarshal(tc.LastResponseBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// GetResponseField extracts a top-level field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := tc.DecodeResponse(&data); err != nil {
		return nil, err
	}
	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	return strings.Contains(string(tc.LastResponseBody), text)
}

func (tc *TestContext) Status() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}
