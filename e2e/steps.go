package e2e

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"

	"warden/internal/ceremony/models"
	identity "warden/internal/identity/models"
)

type steps struct {
	tc func() *TestContext
}

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc func() *TestContext) {
	s := &steps{tc: tc}

	// Background steps
	ctx.Step(`^an? (user|admin) "([^"]*)"$`, s.aUser)
	ctx.Step(`^"([^"]*)" is signed in$`, s.isSignedIn)

	// Ceremony steps
	ctx.Step(`^"([^"]*)" registers a passkey labelled "([^"]*)"$`, s.registersPasskey)
	ctx.Step(`^"([^"]*)" logs in with the passkey$`, s.logsIn)
	ctx.Step(`^the last assertion is replayed$`, s.replaysAssertion)
	ctx.Step(`^"([^"]*)" logs out$`, s.logsOut)

	// Request steps
	ctx.Step(`^"([^"]*)" sends (GET|POST|DELETE) "([^"]*)"$`, s.sends)
	ctx.Step(`^an anonymous client sends POST "([^"]*)" (\d+) times$`, s.anonymousRepeated)

	// Impersonation steps
	ctx.Step(`^"([^"]*)" starts impersonating "([^"]*)"$`, s.startsImpersonating)
	ctx.Step(`^the impersonated session sends (GET|POST|DELETE) "([^"]*)"$`, s.impersonatedSends)

	// Rate limit steps
	ctx.Step(`^"([^"]*)" allowlists the client ip for "([^"]*)"$`, s.allowlistsClientIP)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, s.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, s.responseShouldContain)
	ctx.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, s.responseHeaderShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, s.responseFieldShouldEqual)
}

func enc(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func (s *steps) aUser(ctx context.Context, role, name string) error {
	r := identity.RoleUser
	if role == "admin" {
		r = identity.RoleAdmin
	}
	return s.tc().EnsureUser(ctx, name, r)
}

func (s *steps) isSignedIn(ctx context.Context, name string) error {
	return s.tc().SignIn(ctx, name)
}

func (s *steps) registersPasskey(ctx context.Context, name, label string) error {
	tc := s.tc()
	if err := tc.SignIn(ctx, name); err != nil {
		return err
	}
	token := tc.Tokens[name]
	if err := tc.Do(http.MethodPost, "/credentials/register/start", token, map[string]string{"label": label}); err != nil {
		return err
	}
	if err := s.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var opts models.CeremonyOptions
	if err := tc.DecodeResponse(&opts); err != nil {
		return err
	}
	att, err := tc.Keys[name].Attest(opts.Challenge)
	if err != nil {
		return err
	}
	return tc.Do(http.MethodPost, "/credentials/register/finish", token, map[string]any{
		"challenge": opts.Challenge,
		"credential": map[string]any{
			"id":                 att.CredentialID.String(),
			"client_data_json":   enc(att.ClientDataJSON),
			"attestation_object": enc(att.AttestationObject),
			"transports":         att.Transports,
		},
	})
}

func (s *steps) logsIn(_ context.Context, name string) error {
	tc := s.tc()
	subject, ok := tc.Subjects[name]
	if !ok {
		return fmt.Errorf("unknown user %q", name)
	}
	if err := tc.Do(http.MethodPost, "/auth/login/start", "", map[string]string{"subject_id": subject.ID.String()}); err != nil {
		return err
	}
	if err := s.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var opts models.CeremonyOptions
	if err := tc.DecodeResponse(&opts); err != nil {
		return err
	}
	as, err := tc.Keys[name].Assert(opts.Challenge)
	if err != nil {
		return err
	}
	tc.LastAssertion = map[string]any{
		"challenge":  opts.Challenge,
		"subject_id": subject.ID.String(),
		"credential": map[string]any{
			"id":                 as.CredentialID.String(),
			"client_data_json":   enc(as.ClientDataJSON),
			"authenticator_data": enc(as.AuthenticatorData),
			"signature":          enc(as.Signature),
		},
	}
	if err := tc.Do(http.MethodPost, "/auth/login/finish", "", tc.LastAssertion); err != nil {
		return err
	}
	if tc.Status() == http.StatusOK {
		var pair struct {
			AccessToken string `json:"access_token"`
		}
		if err := tc.DecodeResponse(&pair); err != nil {
			return err
		}
		tc.Tokens[name] = pair.AccessToken
	}
	return nil
}

func (s *steps) replaysAssertion(context.Context) error {
	tc := s.tc()
	if tc.LastAssertion == nil {
		return fmt.Errorf("no assertion to replay")
	}
	return tc.Do(http.MethodPost, "/auth/login/finish", "", tc.LastAssertion)
}

func (s *steps) logsOut(_ context.Context, name string) error {
	return s.tc().Do(http.MethodPost, "/auth/logout", s.tc().Tokens[name], nil)
}

func (s *steps) sends(_ context.Context, name, method, path string) error {
	tc := s.tc()
	var body any
	if method == http.MethodPost {
		body = map[string]any{}
	}
	return tc.Do(method, path, tc.Tokens[name], body)
}

func (s *steps) anonymousRepeated(_ context.Context, path string, times int) error {
	for range times {
		if err := s.tc().Do(http.MethodPost, path, "", map[string]any{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *steps) startsImpersonating(_ context.Context, admin, target string) error {
	tc := s.tc()
	subject, ok := tc.Subjects[target]
	if !ok {
		return fmt.Errorf("unknown user %q", target)
	}
	if err := tc.Do(http.MethodPost, "/admin/impersonation", tc.Tokens[admin], map[string]string{"target_id": subject.ID.String()}); err != nil {
		return err
	}
	if tc.Status() != http.StatusCreated {
		return nil
	}
	var pair struct {
		AccessToken string `json:"access_token"`
	}
	if err := tc.DecodeResponse(&pair); err != nil {
		return err
	}
	tc.ActingToken = pair.AccessToken
	return nil
}

func (s *steps) impersonatedSends(_ context.Context, method, path string) error {
	tc := s.tc()
	if tc.ActingToken == "" {
		return fmt.Errorf("no impersonation in progress")
	}
	var body any
	if method == http.MethodPost {
		body = map[string]any{"label": "Impersonated key"}
	}
	return tc.Do(method, path, tc.ActingToken, body)
}

// allowlistsClientIP allowlists the loopback address the test client
// connects from.
func (s *steps) allowlistsClientIP(_ context.Context, admin, reason string) error {
	return s.tc().Do(http.MethodPost, "/admin/ratelimit/allowlist", s.tc().Tokens[admin], map[string]string{
		"ip":     "127.0.0.1",
		"reason": reason,
	})
}

func (s *steps) expectStatus(want int) error {
	if got := s.tc().Status(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, string(s.tc().LastResponseBody))
	}
	return nil
}

func (s *steps) responseStatusShouldBe(_ context.Context, want int) error {
	return s.expectStatus(want)
}

func (s *steps) responseShouldContain(_ context.Context, text string) error {
	if !s.tc().ResponseContains(text) {
		return fmt.Errorf("response does not contain %q: %s", text, string(s.tc().LastResponseBody))
	}
	return nil
}

func (s *steps) responseHeaderShouldBe(_ context.Context, header, want string) error {
	tc := s.tc()
	if tc.LastResponse == nil {
		return fmt.Errorf("no response recorded")
	}
	if got := tc.LastResponse.Header.Get(header); got != want {
		return fmt.Errorf("expected header %s to be %q, got %q", header, want, got)
	}
	return nil
}

func (s *steps) responseFieldShouldEqual(_ context.Context, field, want string) error {
	value, err := s.tc().GetResponseField(field)
	if err != nil {
		return err
	}
	var got string
	switch v := value.(type) {
	case string:
		got = v
	case float64:
		got = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		got = strconv.FormatBool(v)
	default:
		got = fmt.Sprint(v)
	}
	if got != want {
		return fmt.Errorf("expected field %s to equal %q, got %q", field, want, got)
	}
	return nil
}
