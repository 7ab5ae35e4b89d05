package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"warden/internal/ceremony/models"
	"warden/internal/ceremony/softkey"
	identity "warden/internal/identity/models"
	"warden/internal/platform/config"
	id "warden/pkg/domain"
)

const (
	testRPID      = "warden.test"
	testOrigin    = "https://warden.test"
	testUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36"
)

type ServerSuite struct {
	suite.Suite
	app     *App
	subject *identity.Subject
	key     *softkey.Authenticator
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	cfg, err := config.Load("")
	s.Require().NoError(err)
	cfg.Server.Environment = "test"
	cfg.Storage.Backend = "memory"
	cfg.RateLimit.Backend = "memory"
	cfg.Redis.URL = ""
	cfg.Kafka.Brokers = ""
	cfg.WebAuthn.RPID = testRPID
	cfg.WebAuthn.Origins = []string{testOrigin}

	s.app, err = Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	s.Require().NoError(err)
	s.T().Cleanup(func() { s.NoError(s.app.Close()) })

	s.subject, err = s.app.Identity.EnsureSubject(context.Background(), "ada@example.com", "Ada", identity.RoleUser, time.Now())
	s.Require().NoError(err)
	s.key, err = softkey.New(models.AlgES256, testRPID, testOrigin)
	s.Require().NoError(err)
}

func (s *ServerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "198.51.100.10:40000"
	req.Header.Set("User-Agent", testUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.app.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](s *ServerSuite, rec *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func enc(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// enroll registers s.key for the subject using a bootstrap token.
func (s *ServerSuite) enroll() {
	bootstrap, err := s.app.Identity.IssuePair(context.Background(), identity.IssueRequest{SubjectID: s.subject.ID})
	s.Require().NoError(err)

	rec := s.do(http.MethodPost, "/credentials/register/start", bootstrap.AccessToken, map[string]string{"label": "Laptop key"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	opts := decode[models.CeremonyOptions](s, rec)

	att, err := s.key.Attest(opts.Challenge)
	s.Require().NoError(err)
	rec = s.do(http.MethodPost, "/credentials/register/finish", bootstrap.AccessToken, map[string]any{
		"challenge": opts.Challenge,
		"credential": map[string]any{
			"id":                 att.CredentialID.String(),
			"client_data_json":   enc(att.ClientDataJSON),
			"attestation_object": enc(att.AttestationObject),
			"transports":         att.Transports,
		},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *ServerSuite) assertionBody(challenge string) map[string]any {
	as, err := s.key.Assert(challenge)
	s.Require().NoError(err)
	return map[string]any{
		"challenge":  challenge,
		"subject_id": s.subject.ID.String(),
		"credential": map[string]any{
			"id":                 as.CredentialID.String(),
			"client_data_json":   enc(as.ClientDataJSON),
			"authenticator_data": enc(as.AuthenticatorData),
			"signature":          enc(as.Signature),
		},
	}
}

func (s *ServerSuite) TestRegisterThenLogin() {
	s.enroll()

	rec := s.do(http.MethodPost, "/auth/login/start", "", map[string]string{"subject_id": s.subject.ID.String()})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	opts := decode[models.CeremonyOptions](s, rec)
	s.Require().Equal([]id.CredentialID{s.key.ID}, opts.AllowCredentials)

	body := s.assertionBody(opts.Challenge)
	rec = s.do(http.MethodPost, "/auth/login/finish", "", body)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	login := decode[struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		SessionID    string `json:"session_id"`
	}](s, rec)
	s.NotEmpty(login.AccessToken)

	s.Run("the session is listed as current", func() {
		rec := s.do(http.MethodGet, "/sessions", login.AccessToken, nil)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		list := decode[struct {
			Sessions []struct {
				SessionID string `json:"session_id"`
				Current   bool   `json:"current"`
			} `json:"sessions"`
		}](s, rec)
		s.Require().Len(list.Sessions, 1)
		s.Equal(login.SessionID, list.Sessions[0].SessionID)
		s.True(list.Sessions[0].Current)
	})

	s.Run("the first login from a device raises a new device alert", func() {
		rec := s.do(http.MethodGet, "/alerts", login.AccessToken, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), "new_device")
	})

	s.Run("replaying the assertion fails because the challenge is gone", func() {
		rec := s.do(http.MethodPost, "/auth/login/finish", "", body)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("logout revokes the access token", func() {
		rec := s.do(http.MethodPost, "/auth/logout", login.AccessToken, nil)
		s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

		rec = s.do(http.MethodGet, "/sessions", login.AccessToken, nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *ServerSuite) TestLoginRateLimit() {
	for i := 0; i < 10; i++ {
		rec := s.do(http.MethodPost, "/auth/login/start", "", map[string]string{})
		s.Require().Equal(http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := s.do(http.MethodPost, "/auth/login/start", "", map[string]string{})

	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))
	s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))
}

func (s *ServerSuite) TestRequiresAuthentication() {
	rec := s.do(http.MethodGet, "/credentials", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *ServerSuite) TestMetricsAndHealth() {
	s.do(http.MethodPost, "/auth/login/start", "", map[string]string{})

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(strings.Contains(rec.Body.String(), "warden_ceremonies_started_total"))

	rec = s.do(http.MethodGet, "/health/live", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}
