package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/geofence"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync/queue"
)

// PunchKind is the time-clock event type.
type PunchKind string

const (
	PunchIn        PunchKind = "entrada"
	PunchLunchOut  PunchKind = "saida_almoco"
	PunchLunchBack PunchKind = "volta_almoco"
	PunchOut       PunchKind = "saida"
)

// Valid reports whether k is a known kind.
func (k PunchKind) Valid() bool {
	switch k {
	case PunchIn, PunchLunchOut, PunchLunchBack, PunchOut:
		return true
	}
	return false
}

// ParsePunchKind converts user input into a PunchKind.
func ParsePunchKind(s string) (PunchKind, error) {
	k := PunchKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown punch kind %q", s))
	}
	return k, nil
}

// PunchRequest is a time-clock punch as captured on the device.
type PunchRequest struct {
	EmployeeID int64
	Kind       PunchKind
	// Location is nil when the device could not get a fix.
	Location *geofence.GeoPoint
	// Site is nil when the employee has no assigned site.
	Site *geofence.Site
	// At defaults to now.
	At time.Time
}

type punchBody struct {
	EmployeeID int64              `json:"funcionarioId"`
	Kind       PunchKind          `json:"tipo"`
	Location   *geofence.GeoPoint `json:"localizacao,omitempty"`
	Timestamp  string             `json:"timestamp"`
}

// RecordPunch validates req against its site's geofence, then delivers or
// queues it. A punch outside the perimeter is refused with
// ErrOutsidePerimeter and never queued.
func (r *Recorder) RecordPunch(ctx context.Context, req PunchRequest) (Receipt, error) {
	if req.EmployeeID <= 0 {
		return Receipt{}, apperrors.New(apperrors.ErrInvalid, "employee id is required")
	}
	if !req.Kind.Valid() {
		return Receipt{}, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown punch kind %q", req.Kind))
	}

	status, result, err := r.checkLocation(req)
	if err != nil {
		return Receipt{GeofenceStatus: status, Geofence: result}, err
	}

	at := req.At
	if at.IsZero() {
		at = r.now()
	}
	payload, err := encode(punchBody{
		EmployeeID: req.EmployeeID,
		Kind:       req.Kind,
		Location:   req.Location,
		Timestamp:  isoTimestamp(at),
	})
	if err != nil {
		return Receipt{}, err
	}

	action, err := queue.NewAction(models.CategoryPunch, models.Target{Endpoint: PunchEndpoint}, payload)
	if err != nil {
		return Receipt{}, err
	}

	receipt, err := r.deliver(ctx, action)
	receipt.GeofenceStatus = status
	receipt.Geofence = result
	return receipt, err
}

func (r *Recorder) checkLocation(req PunchRequest) (GeofenceStatus, *geofence.Result, error) {
	if req.Site == nil {
		return GeofenceNotConfigured, nil, nil
	}
	zone, ok := req.Site.Zone()
	if !ok {
		logging.Debug("Site has no coordinates, skipping geofence", map[string]interface{}{"site_id": req.Site.ID})
		return GeofenceNotConfigured, nil, nil
	}

	var (
		result geofence.Result
		err    error
	)
	if req.Location == nil {
		result, err = geofence.Result{Indeterminate: true, RadiusMeters: zone.RadiusMeters}, geofence.ErrIndeterminate
	} else {
		result, err = geofence.Validate(*req.Location, zone)
	}
	if err != nil {
		if r.opts.RequireLocation {
			return GeofenceIndeterminate, &result, apperrors.Wrap(apperrors.ErrLocationRequired,
				"a verified location is required to punch at this site", err)
		}
		logging.Warn("Location could not be verified, accepting punch", map[string]interface{}{
			"site_id":     req.Site.ID,
			"employee_id": req.EmployeeID,
		})
		return GeofenceIndeterminate, &result, nil
	}

	if !result.Admitted {
		logging.Warn("Punch outside perimeter", map[string]interface{}{
			"site_id":         req.Site.ID,
			"employee_id":     req.EmployeeID,
			"distance_meters": result.DistanceMeters,
			"radius_meters":   result.RadiusMeters,
		})
		return GeofenceRejected, &result, apperrors.New(apperrors.ErrOutsidePerimeter, result.Message())
	}
	return GeofenceAdmitted, &result, nil
}
