package auth_test

//go:generate mockgen -source=auth.go -destination=mocks/mocks.go -package=mocks TokenValidator,RevocationChecker

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	id "warden/pkg/domain"
	"warden/pkg/platform/middleware/auth"
	"warden/pkg/platform/middleware/auth/mocks"
	"warden/pkg/requestcontext"
)

type RequireAuthSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	validator *mocks.MockTokenValidator
	checker   *mocks.MockRevocationChecker
	handler   http.Handler
	seen      struct {
		subject id.SubjectID
		actor   id.SubjectID
		hasAct  bool
		jti     string
	}
}

func TestRequireAuthSuite(t *testing.T) {
	suite.Run(t, new(RequireAuthSuite))
}

func (s *RequireAuthSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.validator = mocks.NewMockTokenValidator(s.ctrl)
	s.checker = mocks.NewMockRevocationChecker(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.handler = auth.RequireAuth(s.validator, s.checker, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.seen.subject = requestcontext.SubjectID(ctx)
		s.seen.actor, s.seen.hasAct = requestcontext.ActorID(ctx)
		s.seen.jti = requestcontext.TokenID(ctx)
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (s *RequireAuthSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RequireAuthSuite) serve(authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *RequireAuthSuite) TestRequireAuth() {
	subject := id.NewSubjectID()
	admin := id.NewSubjectID()

	s.Run("Given no bearer token When serving Then 401", func() {
		s.Equal(http.StatusUnauthorized, s.serve("").Code)
	})

	s.Run("Given an invalid token When serving Then 401", func() {
		s.validator.EXPECT().ValidateAccessToken("bad").Return(nil, errors.New("signature invalid"))
		s.Equal(http.StatusUnauthorized, s.serve("Bearer bad").Code)
	})

	s.Run("Given a revoked token When serving Then 401", func() {
		s.validator.EXPECT().ValidateAccessToken("tok").Return(&auth.Claims{SubjectID: subject.String(), JTI: "j1"}, nil)
		s.checker.EXPECT().IsRevoked(gomock.Any(), "j1").Return(true, nil)
		s.Equal(http.StatusUnauthorized, s.serve("Bearer tok").Code)
	})

	s.Run("Given the revocation store fails When serving Then 503", func() {
		s.validator.EXPECT().ValidateAccessToken("tok").Return(&auth.Claims{SubjectID: subject.String(), JTI: "j1"}, nil)
		s.checker.EXPECT().IsRevoked(gomock.Any(), "j1").Return(false, errors.New("redis down"))
		s.Equal(http.StatusServiceUnavailable, s.serve("Bearer tok").Code)
	})

	s.Run("Given an impersonated token When serving Then subject and actor are in context", func() {
		s.validator.EXPECT().ValidateAccessToken("tok").Return(&auth.Claims{
			SubjectID: subject.String(), JTI: "j2", ActorID: admin.String(),
		}, nil)
		s.checker.EXPECT().IsRevoked(gomock.Any(), "j2").Return(false, nil)

		s.Equal(http.StatusNoContent, s.serve("Bearer tok").Code)
		s.Equal(subject, s.seen.subject)
		s.True(s.seen.hasAct)
		s.Equal(admin, s.seen.actor)
		s.Equal("j2", s.seen.jti)
	})
}
