// Package sites manages the irrigation site registry and its live device
// status readout.
package sites

import (
	"context"
	"sort"
	"strings"

	nuts "github.com/vaudience/go-nuts"

	apperrors "github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
	"github.com/hydroguard/hydroguard/internal/telemetry"
)

// Service reads and writes the sites collection in the shared store.
type Service struct {
	store store.Client
}

// NewService creates the site registry service.
func NewService(client store.Client) *Service {
	return &Service{store: client}
}

// Create registers a new site and returns its store-assigned id.
func (s *Service) Create(ctx context.Context, site models.Site, creatorUID string) (string, error) {
	if site.Name == "" || site.DeviceID == "" {
		return "", apperrors.NewValidationError("site name and device id are required", nil)
	}

	id, err := s.store.Append(ctx, store.SitesPath, map[string]any{
		"name":         site.Name,
		"district":     site.District,
		"village":      site.Village,
		"operatorId":   site.OperatorID,
		"operatorName": site.OperatorName,
		"deviceId":     site.DeviceID,
		"createdBy":    creatorUID,
		"ts":           store.ServerTimestamp,
	})
	if err != nil {
		return "", apperrors.NewStoreError("failed to save site", err)
	}

	nuts.L.Infof("[Sites] created site %s (%s) for device %s", id, site.Name, site.DeviceID)
	return id, nil
}

// Update applies a partial site update.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return apperrors.NewValidationError("no fields to update", nil)
	}
	if err := s.store.Update(ctx, store.SitesPath+"/"+id, fields); err != nil {
		return apperrors.NewStoreError("failed to update site", err)
	}
	return nil
}

// Get reads one site by id.
func (s *Service) Get(ctx context.Context, id string) (models.Site, error) {
	doc, err := s.store.Get(ctx, store.SitesPath+"/"+id)
	if err != nil {
		return models.Site{}, apperrors.NewStoreError("failed to read site", err)
	}
	if len(doc) == 0 {
		return models.Site{}, apperrors.NewNotFoundError("site not found", nil)
	}
	return siteFromDoc(id, doc), nil
}

// List reads all sites matching the filters, sorted by name. District and
// village match exactly (case-insensitive); search matches a substring of
// name, village or operator name.
func (s *Service) List(ctx context.Context, filters models.SiteFilters) ([]models.Site, error) {
	children, err := s.store.Children(ctx, store.SitesPath, 0)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to list sites", err)
	}

	out := make([]models.Site, 0, len(children))
	for _, child := range children {
		site := siteFromDoc(child.ID, child.Doc)
		if !matches(site, filters) {
			continue
		}
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Status reads the live device snapshot behind a site: latest telemetry
// plus the current control record. Missing telemetry yields zero readings,
// not an error; a site may be registered before its device first reports.
func (s *Service) Status(ctx context.Context, deviceID string) (models.SiteStatus, error) {
	status := models.SiteStatus{DeviceID: deviceID}

	tele, err := s.store.Get(ctx, store.TelemetryPath(deviceID))
	if err != nil {
		return status, apperrors.NewStoreError("failed to read telemetry", err)
	}
	if snap, err := telemetry.Extract(tele); err == nil {
		status.Humidity = snap.Humidity
		status.SoilMoisture = snap.SoilMoisture
		status.RainPct = snap.RainPct
		status.Bright = snap.SunlightBin == 1
	}

	control, err := s.store.Get(ctx, store.ControlPath(deviceID))
	if err != nil {
		return status, apperrors.NewStoreError("failed to read control state", err)
	}
	if mode := control.StringAny("", "mode"); mode != "" {
		status.Mode = models.Mode(mode)
	}
	status.PumpOn = control.BoolLike("status")

	return status, nil
}

// siteFromDoc tolerates the legacy field spellings found in records written
// by older clients.
func siteFromDoc(id string, doc store.Document) models.Site {
	return models.Site{
		ID:           id,
		Name:         doc.StringAny("", "name", "nama", "siteName"),
		District:     doc.StringAny("", "district", "kecamatan"),
		Village:      doc.StringAny("", "village", "desa"),
		OperatorID:   doc.StringAny("", "operatorId", "operator_id"),
		OperatorName: doc.StringAny("", "operatorName", "operator_name", "operator"),
		DeviceID:     doc.StringAny("", "deviceId", "device_id", "device"),
		CreatedBy:    doc.StringAny("", "createdBy", "created_by"),
	}
}

func matches(site models.Site, f models.SiteFilters) bool {
	if f.District != "" && !strings.EqualFold(site.District, f.District) {
		return false
	}
	if f.Village != "" && !strings.EqualFold(site.Village, f.Village) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(site.Name), needle) &&
			!strings.Contains(strings.ToLower(site.Village), needle) &&
			!strings.Contains(strings.ToLower(site.OperatorName), needle) {
			return false
		}
	}
	return true
}
