package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"warden/internal/alert/metrics"
	"warden/internal/alert/models"
	"warden/internal/alert/notifier/mocks"
	"warden/internal/alert/store"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/audit/publisher"
	auditmemory "warden/pkg/platform/audit/store/memory"
	"warden/pkg/requestcontext"
)

type AlertSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
	store    *store.InMemoryStore
	events   *auditmemory.Store
	metrics  *metrics.Metrics
	svc      *Service
	subject  id.SubjectID
}

func TestAlertSuite(t *testing.T) {
	suite.Run(t, new(AlertSuite))
}

func (s *AlertSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.store = store.NewInMemoryStore()
	s.events = auditmemory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.subject = id.NewSubjectID()
	svc, err := New(s.store,
		WithNotifier(s.notifier),
		WithAuditor(publisher.New(s.events)),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *AlertSuite) TearDownTest() {
	s.svc.Close()
}

func (s *AlertSuite) TestRaise() {
	s.Run("given a valid type when raising then the alert is recorded and notified", func() {
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, a *models.Alert) error {
				s.Equal(models.TypeNewDevice, a.Type)
				return nil
			})

		a, err := s.svc.Raise(s.ctx, s.subject, models.TypeNewDevice, map[string]string{"device": "Firefox on Linux"})
		s.Require().NoError(err)
		s.svc.Flush()

		s.False(a.IsResolved())
		s.Equal(requestcontext.Now(s.ctx), a.CreatedAt)
		stored, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal("Firefox on Linux", stored.Metadata["device"])
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Raised.WithLabelValues("new_device")))
	})

	s.Run("given an alert of the same type already open when raising then another is still recorded", func() {
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(2)

		_, err := s.svc.Raise(s.ctx, s.subject, models.TypeMultipleFailures, nil)
		s.Require().NoError(err)
		_, err = s.svc.Raise(s.ctx, s.subject, models.TypeMultipleFailures, nil)
		s.Require().NoError(err)
		s.svc.Flush()

		open, err := s.svc.ListUnresolved(s.ctx, s.subject)
		s.Require().NoError(err)
		count := 0
		for _, a := range open {
			if a.Type == models.TypeMultipleFailures {
				count++
			}
		}
		s.Equal(2, count)
	})

	s.Run("given a failing notifier when raising then the alert is still recorded", func() {
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

		a, err := s.svc.Raise(s.ctx, s.subject, models.TypeRecoveryCodeUsed, nil)
		s.Require().NoError(err)
		s.svc.Flush()

		_, err = s.store.FindByID(s.ctx, a.ID)
		s.NoError(err)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.NotifyFailures))
	})

	s.Run("given an unknown type when raising then validation fails", func() {
		_, err := s.svc.Raise(s.ctx, s.subject, models.Type("phishing"), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *AlertSuite) TestResolve() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	a, err := s.svc.Raise(s.ctx, s.subject, models.TypeImpossibleTravel, nil)
	s.Require().NoError(err)
	s.svc.Flush()

	s.Run("given an open alert when resolving twice then the first resolution time is kept", func() {
		s.Require().NoError(s.svc.Resolve(s.ctx, a.ID))
		first, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)

		later := requestcontext.WithTime(s.ctx, requestcontext.Now(s.ctx).Add(time.Hour))
		s.Require().NoError(s.svc.Resolve(later, a.ID))
		second, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)

		s.Equal(*first.ResolvedAt, *second.ResolvedAt)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Resolved))

		has, err := s.svc.HasUnresolved(s.ctx, s.subject, models.TypeImpossibleTravel)
		s.Require().NoError(err)
		s.False(has)
	})

	s.Run("given an unknown alert when resolving then it is not found", func() {
		err := s.svc.Resolve(s.ctx, id.NewAlertID())
		s.ErrorIs(err, dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonAlertNotFound, ""))
	})

	s.Run("resolution is audited once", func() {
		resolved := 0
		for _, e := range s.events.All() {
			if e.Action == audit.EventAlertResolved {
				resolved++
				s.Equal(s.subject, e.SubjectID)
			}
		}
		s.Equal(1, resolved)
	})
}

func (s *AlertSuite) TestResolveFor() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	a, err := s.svc.Raise(s.ctx, s.subject, models.TypeNewDevice, nil)
	s.Require().NoError(err)
	s.svc.Flush()

	s.Run("given another subject when resolving then the alert is not found and stays open", func() {
		err := s.svc.ResolveFor(s.ctx, id.NewSubjectID(), a.ID)
		s.True(dErrors.HasReason(err, dErrors.ReasonAlertNotFound))

		has, err := s.svc.HasUnresolved(s.ctx, s.subject, models.TypeNewDevice)
		s.Require().NoError(err)
		s.True(has)
	})

	s.Run("given the owner when resolving then the alert is resolved", func() {
		s.Require().NoError(s.svc.ResolveFor(s.ctx, s.subject, a.ID))
		has, err := s.svc.HasUnresolved(s.ctx, s.subject, models.TypeNewDevice)
		s.Require().NoError(err)
		s.False(has)
	})
}

func (s *AlertSuite) TestNotifyQueueIsBounded() {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *models.Alert) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		}).Times(2)

	svc, err := New(s.store,
		WithNotifier(s.notifier),
		WithNotifyBuffer(1),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	defer svc.Close()

	_, err = svc.Raise(s.ctx, s.subject, models.TypeNewDevice, nil)
	s.Require().NoError(err)
	<-started

	_, err = svc.Raise(s.ctx, s.subject, models.TypeNewDevice, nil)
	s.Require().NoError(err)
	third, err := svc.Raise(s.ctx, s.subject, models.TypeNewDevice, nil)
	s.Require().NoError(err, "a full queue never fails the raise")

	close(release)
	svc.Flush()

	_, err = s.store.FindByID(s.ctx, third.ID)
	s.NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.NotifyDropped))
}

func (s *AlertSuite) TestRaiseAfterCloseIsRecordedWithoutNotifying() {
	s.svc.Close()

	a, err := s.svc.Raise(s.ctx, s.subject, models.TypeImpossibleTravel, nil)
	s.Require().NoError(err)

	_, err = s.store.FindByID(s.ctx, a.ID)
	s.NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.NotifyDropped))
}
