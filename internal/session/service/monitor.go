package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	alert "warden/internal/alert/models"
	"warden/internal/session/metrics"
	"warden/internal/session/models"
	id "warden/pkg/domain"
)

// AlertRaiser is the slice of the alert service the monitor escalates through.
type AlertRaiser interface {
	Raise(ctx context.Context, subjectID id.SubjectID, alertType alert.Type, metadata map[string]string) (*alert.Alert, error)
	HasUnresolved(ctx context.Context, subjectID id.SubjectID, alertType alert.Type) (bool, error)
}

// ScanResult is a report plus the alerts raised from it.
type ScanResult struct {
	Report *models.AnomalyReport
	Raised []*alert.Alert
}

// Monitor turns anomaly reports into alerts, skipping types the subject
// already has open.
type Monitor struct {
	sessions *Service
	alerts   AlertRaiser
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewMonitor(sessions *Service, alerts AlertRaiser, m *metrics.Metrics, logger *slog.Logger) (*Monitor, error) {
	if sessions == nil || alerts == nil {
		return nil, errors.New("session service and alert raiser are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{sessions: sessions, alerts: alerts, metrics: m, logger: logger}, nil
}

// Scan evaluates the subject and raises each suggested alert without an open
// alert of the same type. An escalation failure for one type does not stop
// the others.
func (m *Monitor) Scan(ctx context.Context, subjectID id.SubjectID) (*ScanResult, error) {
	report, err := m.sessions.DetectAnomalies(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	res := &ScanResult{Report: report}
	var errs []error
	for _, alertType := range report.SuggestedAlerts {
		open, err := m.alerts.HasUnresolved(ctx, subjectID, alertType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if open {
			continue
		}
		a, err := m.alerts.Raise(ctx, subjectID, alertType, alertMetadata(report, alertType))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.metrics.IncAnomaly(string(alertType))
		res.Raised = append(res.Raised, a)
	}
	if len(res.Raised) > 0 {
		m.logger.InfoContext(ctx, "anomalies escalated",
			"subject_id", subjectID,
			"raised", len(res.Raised),
		)
	}
	return res, errors.Join(errs...)
}

func alertMetadata(r *models.AnomalyReport, alertType alert.Type) map[string]string {
	md := map[string]string{
		"active_sessions": strconv.Itoa(r.ActiveSessions),
		"device_count":    strconv.Itoa(r.DeviceCount),
	}
	switch alertType {
	case alert.TypeNewDevice:
		ids := make([]string, 0, len(r.NewDeviceSessions))
		for _, sid := range r.NewDeviceSessions {
			ids = append(ids, sid.String())
		}
		md["session_ids"] = strings.Join(ids, ",")
		md["devices"] = strings.Join(r.DeviceSignatures, "; ")
	case alert.TypeImpossibleTravel:
		md["location_count"] = strconv.Itoa(r.LocationCount)
	}
	return md
}
