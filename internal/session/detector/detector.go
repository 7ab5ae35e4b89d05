// Package detector computes anomaly reports from stored session state. It is
// a pure function of its inputs so it can run on any schedule.
package detector

import (
	"slices"
	"time"

	alert "warden/internal/alert/models"
	"warden/internal/session/device"
	"warden/internal/session/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/privacy"
)

// Detect evaluates the subject's active sessions against policy at now.
// Inactive sessions in the input are ignored.
func Detect(subjectID id.SubjectID, sessions []*models.Session, policy models.DetectorPolicy, now time.Time) *models.AnomalyReport {
	report := &models.AnomalyReport{SubjectID: subjectID, GeneratedAt: now}

	fingerprints := make(map[string]struct{})
	signatures := make(map[string]struct{})
	locations := make(map[string]struct{})
	recentLocations := make(map[string]struct{})

	for _, s := range sessions {
		if !s.Active || s.SubjectID != subjectID {
			continue
		}
		report.ActiveSessions++
		fingerprints[s.DeviceFingerprint] = struct{}{}
		signatures[device.Signature(s.UserAgent)] = struct{}{}

		if network, ok := privacy.Network(s.IPAddress); ok {
			locations[network.String()] = struct{}{}
			if policy.TravelWindow > 0 && now.Sub(s.LastActiveAt) <= policy.TravelWindow {
				recentLocations[network.String()] = struct{}{}
			}
		}
		if policy.NewDeviceWindow > 0 && now.Sub(s.FirstSeenAt) <= policy.NewDeviceWindow {
			report.NewDeviceSessions = append(report.NewDeviceSessions, s.ID)
		}
		if policy.StaleAfter > 0 && now.Sub(s.LastActiveAt) > policy.StaleAfter {
			report.StaleSessions = append(report.StaleSessions, s.ID)
		}
	}

	report.DeviceCount = len(fingerprints)
	report.DeviceSignatures = sortedKeys(signatures)
	report.LocationCount = len(locations)
	report.MultipleBrowsers = len(signatures) > 1
	report.MultipleLocations = len(locations) > 1
	report.NewDevice = len(report.NewDeviceSessions) > 0
	report.ExceedsConcurrent = policy.MaxConcurrent > 0 && report.ActiveSessions > policy.MaxConcurrent
	report.ImpossibleTravel = len(recentLocations) > 1

	if report.NewDevice {
		report.SuggestedAlerts = append(report.SuggestedAlerts, alert.TypeNewDevice)
	}
	if report.ImpossibleTravel {
		report.SuggestedAlerts = append(report.SuggestedAlerts, alert.TypeImpossibleTravel)
	}
	if report.ExceedsConcurrent {
		report.SuggestedAlerts = append(report.SuggestedAlerts, alert.TypeMultipleFailures)
	}
	return report
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
