package accounts

import (
	"context"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydroguard/hydroguard/internal/config"
	apperrors "github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/notify"
	"github.com/hydroguard/hydroguard/internal/store"
)

// fakeStore backs the profile and notification paths in memory.
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
	return "n-1", nil
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

func newTestService(f *fakeStore) *Service {
	return NewService(
		config.KeycloakConfig{AdminEmail: "admin@example.com"},
		config.FeedConfig{OperatorScope: "operator"},
		f,
		notify.NewWriter(f),
	)
}

func TestParseClaims(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "uid-1",
		"email": "ana@example.com",
	}).SignedString([]byte("test"))
	require.NoError(t, err)

	claims, err := parseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", claims.UID)
	assert.Equal(t, "ana@example.com", claims.Email)
}

func TestParseClaimsRequiresSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "ana@example.com",
	}).SignedString([]byte("test"))
	require.NoError(t, err)

	_, err = parseClaims(token)
	assert.Error(t, err)
}

func TestApproveWritesDecisionAndNotifies(t *testing.T) {
	f := newFakeStore()
	f.docs[store.UserPath("u1")] = store.Document{"name": "Ana", "role": "operator"}
	svc := newTestService(f)

	require.NoError(t, svc.Approve(context.Background(), "u1"))

	profile := f.docs[store.UserPath("u1")]
	assert.Equal(t, true, profile["approved"])
	assert.Equal(t, "approved", profile["status"])
	assert.Equal(t, store.ServerTimestamp, profile["approvedAt"])
	assert.NotContains(t, profile, "rejectedAt")

	require.Len(t, f.appends, 1)
	note := f.appends[0]
	assert.Equal(t, store.NotificationsPath("operator"), note.path)
	assert.Equal(t, models.NotifTypeAccept, note.fields["type"])
	assert.Equal(t, "u1", note.fields["refId"])
	assert.True(t, strings.Contains(note.fields["message"].(string), "Ana"))
}

func TestRejectWritesDecisionAndNotifies(t *testing.T) {
	f := newFakeStore()
	f.docs[store.UserPath("u1")] = store.Document{"name": "Ana"}
	svc := newTestService(f)

	require.NoError(t, svc.Reject(context.Background(), "u1"))

	profile := f.docs[store.UserPath("u1")]
	assert.Equal(t, false, profile["approved"])
	assert.Equal(t, "rejected", profile["status"])
	assert.Equal(t, store.ServerTimestamp, profile["rejectedAt"])

	require.Len(t, f.appends, 1)
	assert.Equal(t, models.NotifTypeReject, f.appends[0].fields["type"])
}

func TestApproveUnknownRequest(t *testing.T) {
	svc := newTestService(newFakeStore())

	err := svc.Approve(context.Background(), "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListOperatorsFilters(t *testing.T) {
	f := newFakeStore()
	f.children[store.UsersPath] = []store.Child{
		{ID: "u1", Doc: store.Document{"name": "Ana", "email": "ana@example.com", "createdAt": int64(100)}},
		{ID: "u2", Doc: store.Document{"name": "Ben", "email": "ben@example.com", "status": "approved", "approvedAt": int64(200)}},
		{ID: "boss", Doc: store.Document{"name": "Root", "role": "admin", "createdAt": int64(300)}},
	}
	svc := newTestService(f)

	all, err := svc.ListOperators(context.Background(), models.OperatorFilters{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	pending, err := svc.ListOperators(context.Background(), models.OperatorFilters{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "u1", pending[0].UID)

	operators, err := svc.ListOperators(context.Background(), models.OperatorFilters{Role: "operator"})
	require.NoError(t, err)
	require.Len(t, operators, 2)

	byName, err := svc.ListOperators(context.Background(), models.OperatorFilters{Search: "ben"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, models.StatusApproved, byName[0].Status)
}

func TestUpdateProfileWritesOnlyChangedFields(t *testing.T) {
	f := newFakeStore()
	f.docs[store.UserPath("u1")] = store.Document{
		"name": "Ana", "email": "ana@example.com", "phone": "0812", "role": "operator",
	}
	svc := newTestService(f)

	err := svc.UpdateProfile(context.Background(), "u1", models.RoleAdmin, map[string]any{
		"name": "Ana Maria",
	})
	require.NoError(t, err)

	profile := f.docs[store.UserPath("u1")]
	assert.Equal(t, "Ana Maria", profile["name"])
	assert.Equal(t, "0812", profile["phone"])
}

func TestUpdateProfileRejectsEmptyChange(t *testing.T) {
	f := newFakeStore()
	f.docs[store.UserPath("u1")] = store.Document{"name": "Ana", "role": "operator"}
	svc := newTestService(f)

	err := svc.UpdateProfile(context.Background(), "u1", models.RoleOperator, map[string]any{})
	assert.True(t, apperrors.IsPolicy(err))
}
