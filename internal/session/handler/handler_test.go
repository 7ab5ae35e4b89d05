package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"warden/internal/session/handler/mocks"
	"warden/internal/session/models"
	id "warden/pkg/domain"
	"warden/pkg/requestcontext"
	"warden/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithSubjectID(req.Context(), testutil.TestIDs.SubjectID1)
			ctx = requestcontext.WithSessionID(ctx, testutil.TestIDs.SessionID1)
			ctx = requestcontext.WithTime(ctx, s.now)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *HandlerSuite) serve(method, path string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestList_MarksCurrentSession() {
	current := testutil.NewSessionBuilder().WithID(testutil.TestIDs.SessionID1).Build()
	other := testutil.NewSessionBuilder().WithID(testutil.TestIDs.SessionID2).TrustedUntil(s.now.Add(time.Hour)).Build()
	s.service.EXPECT().ListSessions(gomock.Any(), testutil.TestIDs.SubjectID1).
		Return([]*models.Session{current, other}, nil)

	rec := s.serve(http.MethodGet, "/sessions", nil)

	s.Equal(http.StatusOK, rec.Code)
	var body struct {
		Sessions []map[string]any `json:"sessions"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Require().Len(body.Sessions, 2)
	s.Equal(true, body.Sessions[0]["current"])
	s.Equal(false, body.Sessions[1]["current"])
	s.Equal(true, body.Sessions[1]["trusted"])
	s.NotContains(body.Sessions[0], "ip_address", "raw network data stays server-side")
}

func (s *HandlerSuite) TestTerminateOthers_KeepsCurrentSession() {
	s.service.EXPECT().TerminateOtherSessions(gomock.Any(), testutil.TestIDs.SubjectID1, testutil.TestIDs.SessionID1).
		Return(2, nil)

	rec := s.serve(http.MethodPost, "/sessions/terminate-others", nil)

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"terminated":2}`, rec.Body.String())
}

func (s *HandlerSuite) TestTerminate() {
	s.Run("given a malformed id then it is rejected", func() {
		rec := s.serve(http.MethodDelete, "/sessions/nope", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("given an owned session then it is terminated", func() {
		sid := id.NewSessionID()
		s.service.EXPECT().TerminateSessionFor(gomock.Any(), testutil.TestIDs.SubjectID1, sid).Return(nil)
		rec := s.serve(http.MethodDelete, "/sessions/"+sid.String(), nil)
		s.Equal(http.StatusNoContent, rec.Code)
	})
}

func (s *HandlerSuite) TestTrust() {
	sid := id.NewSessionID()

	s.Run("given days out of range then validation fails", func() {
		rec := s.serve(http.MethodPost, "/sessions/"+sid.String()+"/trust", []byte(`{"days":365}`))
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("given a valid request then trust ends after the given days", func() {
		s.service.EXPECT().TrustSessionFor(gomock.Any(), testutil.TestIDs.SubjectID1, sid, s.now.Add(30*24*time.Hour)).Return(nil)
		rec := s.serve(http.MethodPost, "/sessions/"+sid.String()+"/trust", []byte(`{"days":30}`))
		s.Equal(http.StatusNoContent, rec.Code)
	})
}

func (s *HandlerSuite) TestAnomalies() {
	s.service.EXPECT().DetectAnomalies(gomock.Any(), testutil.TestIDs.SubjectID1).
		Return(&models.AnomalyReport{SubjectID: testutil.TestIDs.SubjectID1, DeviceCount: 2, NewDevice: true}, nil)

	rec := s.serve(http.MethodGet, "/sessions/anomalies", nil)

	s.Equal(http.StatusOK, rec.Code)
	var report models.AnomalyReport
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&report))
	s.Equal(2, report.DeviceCount)
	s.True(report.NewDevice)
}
