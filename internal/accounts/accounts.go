// Package accounts implements the operator account lifecycle on Keycloak:
// registration, role-gated login, and the admin approve/reject flow. The
// identity provider owns credentials; the profile record in the document
// store owns role, approval state and display fields.
package accounts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/golang-jwt/jwt/v5"
	"github.com/itsatony/struccy"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/aggregate"
	"github.com/hydroguard/hydroguard/internal/config"
	apperrors "github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/notify"
	"github.com/hydroguard/hydroguard/internal/store"
)

// AdminScope is the notification log watched by administrator clients.
const AdminScope = "admin"

// Session is one authenticated login: the token pair plus the resolved
// profile.
type Session struct {
	Token   *gocloak.JWT           `json:"token"`
	Profile models.OperatorRequest `json:"profile"`
}

// Service wires Keycloak, the profile store and the notification writer.
type Service struct {
	kc       *gocloak.GoCloak
	cfg      config.KeycloakConfig
	feedCfg  config.FeedConfig
	store    store.Client
	notifier *notify.Writer
}

// NewService creates the account service.
func NewService(cfg config.KeycloakConfig, feedCfg config.FeedConfig, client store.Client, notifier *notify.Writer) *Service {
	return &Service{
		kc:       gocloak.NewClient(cfg.URL),
		cfg:      cfg,
		feedCfg:  feedCfg,
		store:    client,
		notifier: notifier,
	}
}

// RegisterOperator creates the credential account and the pending profile
// record, then notifies administrators. The profile is written with
// approved=false and an explicit pending status so the request board never
// has to guess about fresh accounts.
func (s *Service) RegisterOperator(ctx context.Context, name, email, phone, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return "", apperrors.NewValidationError("name, email and password are required", nil)
	}

	adminToken, err := s.kc.LoginClient(ctx, s.cfg.ClientID, s.cfg.ClientSecret, s.cfg.Realm)
	if err != nil {
		return "", apperrors.NewAuthError("identity provider unavailable", err)
	}

	uid, err := s.kc.CreateUser(ctx, adminToken.AccessToken, s.cfg.Realm, gocloak.User{
		Username:  gocloak.StringP(email),
		Email:     gocloak.StringP(email),
		FirstName: gocloak.StringP(name),
		Enabled:   gocloak.BoolP(true),
	})
	if err != nil {
		return "", apperrors.NewValidationError("account could not be created", err)
	}
	if err := s.kc.SetPassword(ctx, adminToken.AccessToken, uid, s.cfg.Realm, password, false); err != nil {
		return "", apperrors.NewAuthError("failed to set password", err)
	}

	err = s.store.Update(ctx, store.UserPath(uid), map[string]any{
		"name":      name,
		"email":     email,
		"phone":     phone,
		"role":      models.RoleOperator,
		"approved":  false,
		"status":    string(models.StatusPending),
		"createdAt": store.ServerTimestamp,
	})
	if err != nil {
		return "", apperrors.NewStoreError("failed to save profile", err)
	}

	s.pushNotification(ctx, AdminScope,
		fmt.Sprintf("New operator request from %s (%s)", name, email),
		models.LevelInfo, models.NotifTypeIn, uid)

	nuts.L.Infof("[Accounts] registered operator %s (%s)", uid, email)
	return uid, nil
}

// LoginAdmin authenticates against Keycloak and enforces the administrator
// email policy. A credential-valid login by any other account is signed out
// again before the policy error is returned, so no half-authenticated
// session survives.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (*Session, error) {
	token, claims, err := s.login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(claims.Email, s.cfg.AdminEmail) {
		s.signOut(ctx, token)
		return nil, apperrors.NewAuthorizationError("this account is not the administrator", nil)
	}

	profile, err := s.loadProfile(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Profile: profile}, nil
}

// LoginOperator authenticates an operator and enforces the role and
// approval policies. A missing profile is lazily created as pending (legacy
// accounts predate the profile record), which then fails the approval check
// like any other pending account.
func (s *Service) LoginOperator(ctx context.Context, email, password string) (*Session, error) {
	token, claims, err := s.login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	profile, err := s.ensureProfile(ctx, claims)
	if err != nil {
		s.signOut(ctx, token)
		return nil, err
	}

	if profile.Role != models.RoleOperator {
		s.signOut(ctx, token)
		return nil, apperrors.NewAuthorizationError("this account is not an operator", nil)
	}
	switch profile.Status {
	case models.StatusApproved:
	case models.StatusRejected:
		s.signOut(ctx, token)
		return nil, apperrors.NewAuthorizationError("your request was rejected", nil)
	default:
		s.signOut(ctx, token)
		return nil, apperrors.NewAuthorizationError("your account is awaiting approval", nil)
	}

	return &Session{Token: token, Profile: profile}, nil
}

// Approve marks an operator request approved and notifies the operator
// feed. The write is partial: it never touches display fields written since.
func (s *Service) Approve(ctx context.Context, uid string) error {
	return s.decide(ctx, uid, true)
}

// Reject marks an operator request rejected and notifies the operator feed.
func (s *Service) Reject(ctx context.Context, uid string) error {
	return s.decide(ctx, uid, false)
}

func (s *Service) decide(ctx context.Context, uid string, approve bool) error {
	doc, err := s.store.Get(ctx, store.UserPath(uid))
	if err != nil {
		return apperrors.NewStoreError("failed to read profile", err)
	}
	if len(doc) == 0 {
		return apperrors.NewNotFoundError("operator request not found", nil)
	}
	name := doc.StringAny(uid, "name", "nama", "fullName", "full_name")

	fields := map[string]any{"approved": approve}
	var msg, typ string
	if approve {
		fields["status"] = string(models.StatusApproved)
		fields["approvedAt"] = store.ServerTimestamp
		msg = fmt.Sprintf("Operator request from %s approved", name)
		typ = models.NotifTypeAccept
	} else {
		fields["status"] = string(models.StatusRejected)
		fields["rejectedAt"] = store.ServerTimestamp
		msg = fmt.Sprintf("Operator request from %s rejected", name)
		typ = models.NotifTypeReject
	}

	if err := s.store.Update(ctx, store.UserPath(uid), fields); err != nil {
		return apperrors.NewStoreError("failed to update request", err)
	}

	s.pushNotification(ctx, s.feedCfg.OperatorScope, msg, models.LevelInfo, typ, uid)
	return nil
}

// ListOperators reads all operator requests matching the filters, newest
// activity first. Search matches a substring of name or email.
func (s *Service) ListOperators(ctx context.Context, filters models.OperatorFilters) ([]models.OperatorRequest, error) {
	children, err := s.store.Children(ctx, store.UsersPath, 0)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to list operators", err)
	}

	nowMs := time.Now().UnixMilli()
	out := make([]models.OperatorRequest, 0, len(children))
	for _, child := range children {
		req := aggregate.RequestFromDoc(child.ID, child.Doc, nowMs)
		if filters.Role != "" && !strings.EqualFold(req.Role, filters.Role) {
			continue
		}
		if filters.Status != "" && !strings.EqualFold(string(req.Status), filters.Status) {
			continue
		}
		if filters.Search != "" {
			needle := strings.ToLower(filters.Search)
			if !strings.Contains(strings.ToLower(req.Name), needle) &&
				!strings.Contains(strings.ToLower(req.Email), needle) {
				continue
			}
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivityAt > out[j].ActivityAt })
	return out, nil
}

// Profile returns uid's profile filtered for the reader's role through the
// struccy read gates, so operators never see admin-only fields.
func (s *Service) Profile(ctx context.Context, uid, readerRole string) (map[string]any, error) {
	doc, err := s.store.Get(ctx, store.UserPath(uid))
	if err != nil {
		return nil, apperrors.NewStoreError("failed to read profile", err)
	}
	if len(doc) == 0 {
		return nil, apperrors.NewNotFoundError("profile not found", nil)
	}

	p := models.OperatorProfile{
		UID:   uid,
		Name:  doc.StringAny("", "name", "nama", "fullName", "full_name"),
		Email: doc.StringAny("", "email"),
		Phone: doc.StringAny("", "phone", "no_hp", "noHp"),
		Role:  doc.StringAny(models.RoleOperator, "role"),
	}
	filtered, err := struccy.StructToMapFieldsWithReadXS(&p, []string{readerRole})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to filter profile", err)
	}
	return filtered, nil
}

// UpdateProfile applies changes to uid's profile with the writer's role
// enforced through the struccy write gates. Fields the role may not write
// are dropped by the merge; only fields it actually changed are written.
func (s *Service) UpdateProfile(ctx context.Context, uid, writerRole string, changes map[string]any) error {
	existing, err := s.loadProfile(ctx, tokenClaims{UID: uid})
	if err != nil {
		return err
	}

	p := models.OperatorProfile{
		UID:   uid,
		Name:  existing.Name,
		Email: existing.Email,
		Phone: existing.Phone,
		Role:  existing.Role,
	}
	before := p
	if _, err := struccy.MergeMapStringFieldsToStruct(&p, changes, []string{writerRole}); err != nil {
		return apperrors.NewValidationError("invalid profile changes", err)
	}

	fields := map[string]any{}
	if p.Name != before.Name {
		fields["name"] = p.Name
	}
	if p.Phone != before.Phone {
		fields["phone"] = p.Phone
	}
	if p.Role != before.Role {
		fields["role"] = p.Role
	}
	if len(fields) == 0 {
		return apperrors.NewAuthorizationError("no writable fields in update", nil)
	}

	if err := s.store.Update(ctx, store.UserPath(uid), fields); err != nil {
		return apperrors.NewStoreError("failed to update profile", err)
	}
	return nil
}

// login runs the password grant and extracts identity claims from the
// returned access token. Claims are read unverified: the token just came
// from the provider over TLS and is not re-validated client side.
func (s *Service) login(ctx context.Context, email, password string) (*gocloak.JWT, tokenClaims, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, tokenClaims{}, apperrors.NewValidationError("email and password are required", nil)
	}

	token, err := s.kc.Login(ctx, s.cfg.ClientID, s.cfg.ClientSecret, s.cfg.Realm, email, password)
	if err != nil {
		return nil, tokenClaims{}, apperrors.NewAuthError("invalid credentials", err)
	}

	claims, err := parseClaims(token.AccessToken)
	if err != nil {
		s.signOut(ctx, token)
		return nil, tokenClaims{}, apperrors.NewAuthError("unreadable access token", err)
	}
	if claims.Email == "" {
		claims.Email = email
	}
	return token, claims, nil
}

// ensureProfile reads the profile, creating the pending default when absent.
func (s *Service) ensureProfile(ctx context.Context, claims tokenClaims) (models.OperatorRequest, error) {
	profile, err := s.loadProfile(ctx, claims)
	if err != nil {
		return models.OperatorRequest{}, err
	}
	if profile.CreatedAt > 0 || profile.Name != "" || profile.Email != "" {
		return profile, nil
	}

	err = s.store.Update(ctx, store.UserPath(claims.UID), map[string]any{
		"email":     claims.Email,
		"role":      models.RoleOperator,
		"approved":  false,
		"status":    string(models.StatusPending),
		"createdAt": store.ServerTimestamp,
	})
	if err != nil {
		return models.OperatorRequest{}, apperrors.NewStoreError("failed to create profile", err)
	}
	return s.loadProfile(ctx, claims)
}

func (s *Service) loadProfile(ctx context.Context, claims tokenClaims) (models.OperatorRequest, error) {
	doc, err := s.store.Get(ctx, store.UserPath(claims.UID))
	if err != nil {
		return models.OperatorRequest{}, apperrors.NewStoreError("failed to read profile", err)
	}
	return aggregate.RequestFromDoc(claims.UID, doc, time.Now().UnixMilli()), nil
}

// signOut invalidates the refresh token, best effort. A failed sign-out is
// logged; the policy error it accompanies is what the caller sees.
func (s *Service) signOut(ctx context.Context, token *gocloak.JWT) {
	if token == nil || token.RefreshToken == "" {
		return
	}
	if err := s.kc.Logout(ctx, s.cfg.ClientID, s.cfg.ClientSecret, s.cfg.Realm, token.RefreshToken); err != nil {
		nuts.L.Warnf("[Accounts] sign-out failed: %v", err)
	}
}

func (s *Service) pushNotification(ctx context.Context, scope, msg, level, typ, refID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Push(ctx, scope, msg, level, typ, refID); err != nil {
		nuts.L.Warnf("[Accounts] failed to push notification: %v", err)
	}
}

type tokenClaims struct {
	UID   string
	Email string
}

func parseClaims(accessToken string) (tokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return tokenClaims{}, err
	}

	out := tokenClaims{}
	if sub, ok := claims["sub"].(string); ok {
		out.UID = sub
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if out.UID == "" {
		return tokenClaims{}, fmt.Errorf("token has no subject")
	}
	return out, nil
}
