package sites

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
)

// fakeStore serves canned documents and records appends.
type fakeStore struct {
	docs     map[string]store.Document
	children map[string][]store.Child
	appends  []appendCall
}

type appendCall struct {
	path   string
	fields map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[string]store.Document),
		children: make(map[string][]store.Child),
	}
}

func (f *fakeStore) Get(ctx context.Context, path string) (store.Document, error) {
	return f.docs[path], nil
}

func (f *fakeStore) Update(ctx context.Context, path string, fields map[string]any) error {
	doc := f.docs[path]
	if doc == nil {
		doc = store.Document{}
		f.docs[path] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (f *fakeStore) Append(ctx context.Context, path string, fields map[string]any) (string, error) {
	f.appends = append(f.appends, appendCall{path: path, fields: fields})
	return "site-1", nil
}

func (f *fakeStore) Children(ctx context.Context, path string, since int64) ([]store.Child, error) {
	return f.children[path], nil
}

func (f *fakeStore) Watch(path string, h store.Handler) (store.Subscription, error) {
	return nil, nil
}

func (f *fakeStore) WatchChildren(path string, since int64, h store.Handler) (store.Subscription, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

func TestCreateRequiresNameAndDevice(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.Create(context.Background(), models.Site{Name: "Field A"}, "admin")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Create(context.Background(), models.Site{DeviceID: "HG-01"}, "admin")
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateAppendsWithServerTimestamp(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)

	id, err := svc.Create(context.Background(), models.Site{
		Name:     "Field A",
		Village:  "Sumberjo",
		DeviceID: "HG-01",
	}, "admin-uid")
	require.NoError(t, err)
	assert.Equal(t, "site-1", id)

	require.Len(t, f.appends, 1)
	call := f.appends[0]
	assert.Equal(t, store.SitesPath, call.path)
	assert.Equal(t, "Field A", call.fields["name"])
	assert.Equal(t, "admin-uid", call.fields["createdBy"])
	assert.Equal(t, store.ServerTimestamp, call.fields["ts"])
}

func TestListFilters(t *testing.T) {
	f := newFakeStore()
	f.children[store.SitesPath] = []store.Child{
		{ID: "s1", Doc: store.Document{"name": "North Field", "village": "Sumberjo", "deviceId": "HG-01"}},
		{ID: "s2", Doc: store.Document{"nama": "South Field", "desa": "Karangrejo", "device_id": "HG-02", "operator": "Ana"}},
	}
	svc := NewService(f)

	all, err := svc.List(context.Background(), models.SiteFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Sorted by name; legacy key spellings are read transparently.
	assert.Equal(t, "North Field", all[0].Name)
	assert.Equal(t, "HG-02", all[1].DeviceID)

	byVillage, err := svc.List(context.Background(), models.SiteFilters{Village: "karangrejo"})
	require.NoError(t, err)
	require.Len(t, byVillage, 1)
	assert.Equal(t, "South Field", byVillage[0].Name)

	bySearch, err := svc.List(context.Background(), models.SiteFilters{Search: "ana"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "s2", bySearch[0].ID)
}

func TestGetMissingSite(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStatusComposesTelemetryAndControl(t *testing.T) {
	f := newFakeStore()
	f.docs[store.TelemetryPath("HG-01")] = store.Document{
		"hum": "45", "soil": 30, "rain_pct": 70, "bright": true,
	}
	f.docs[store.ControlPath("HG-01")] = store.Document{
		"mode": "auto", "status": true,
	}
	svc := NewService(f)

	status, err := svc.Status(context.Background(), "HG-01")
	require.NoError(t, err)

	assert.Equal(t, 45.0, status.Humidity)
	assert.Equal(t, 30.0, status.SoilMoisture)
	assert.Equal(t, 70.0, status.RainPct)
	assert.True(t, status.Bright)
	assert.Equal(t, models.ModeAuto, status.Mode)
	assert.True(t, status.PumpOn)
}

func TestStatusToleratesSilentDevice(t *testing.T) {
	svc := NewService(newFakeStore())

	status, err := svc.Status(context.Background(), "HG-09")
	require.NoError(t, err)
	assert.Equal(t, "HG-09", status.DeviceID)
	assert.Zero(t, status.Humidity)
	assert.False(t, status.PumpOn)
}
