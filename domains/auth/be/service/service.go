// Package service issues and verifies context-bound credentials. A credential
// carries its school and season binding immutably: changing context always
// means minting a successor credential and revoking the old one, never
// rewriting a stored binding.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	schoolsvc "github.com/enrolly/enrolly-backend/domains/schools/be/service"
	seasonsvc "github.com/enrolly/enrolly-backend/domains/seasons/be/service"
	platformauth "github.com/enrolly/enrolly-backend/platform/go/auth"
)

// Sentinel errors returned by the service layer.
var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSeasonRequired     = errors.New("season is required at login")
	ErrUnknownSeason      = errors.New("unknown season")
	// ErrUnauthenticated covers missing, malformed, revoked and expired tokens.
	ErrUnauthenticated = errors.New("invalid or expired credential")
	// ErrAlreadyFinalized rejects selection calls on a credential whose
	// context is complete; bindings never mutate.
	ErrAlreadyFinalized = errors.New("credential context is already bound")
	ErrSchoolNotFound   = errors.New("school not found")
	ErrSeasonNotFound   = errors.New("season not found")
)

// User is the account the issuer authenticates.
type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
}

// Credential is a stored token record. Only the SHA-256 hash of the secret is
// kept; SchoolID/SeasonID stay nil on intermediate credentials.
type Credential struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	SchoolID  *uuid.UUID
	SeasonID  *uuid.UUID
	Finalized bool
	Abilities []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserRepository looks up accounts.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	Get(ctx context.Context, userID uuid.UUID) (User, error)
}

// CredentialRepository stores token records.
type CredentialRepository interface {
	Insert(ctx context.Context, c Credential) error
	GetByTokenHash(ctx context.Context, tokenHash string) (Credential, error)
	Revoke(ctx context.Context, credentialID uuid.UUID, now time.Time) error
}

// SeasonDirectory is the slice of the seasons domain the issuer needs.
type SeasonDirectory interface {
	Resolve(ctx context.Context, seasonID uuid.UUID) (seasonsvc.Season, error)
	GetCurrent(ctx context.Context, schoolID uuid.UUID) (seasonsvc.Season, error)
	ListForUser(ctx context.Context, schoolID, userID uuid.UUID) ([]seasonsvc.Season, error)
}

// SchoolDirectory is the slice of the schools domain the issuer needs.
type SchoolDirectory interface {
	Get(ctx context.Context, schoolID uuid.UUID) (schoolsvc.School, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]schoolsvc.School, error)
}

// AccessDirectory resolves roles and permissions for session snapshots.
type AccessDirectory interface {
	RoleFor(ctx context.Context, userID, seasonID uuid.UUID) (string, error)
	ResolvePermissions(ctx context.Context, userID, seasonID uuid.UUID) ([]string, error)
}

// Session is the issuer's answer to a successful authentication step. Role
// and Permissions are an informational snapshot taken at issuance; the gate
// re-resolves them live on every request. When Finalized is false the session
// carries the intermediate token plus the school list to choose from.
type Session struct {
	Token       string
	ExpiresAt   time.Time
	Finalized   bool
	User        User
	SchoolID    *uuid.UUID
	SeasonID    *uuid.UUID
	Role        string
	Permissions []string
	Schools     []schoolsvc.School
}

// Config carries the credential lifetimes.
type Config struct {
	TokenTTL     time.Duration
	SelectionTTL time.Duration
}

// Service implements the credential issuer and the tenant/period selection
// flow.
type Service struct {
	users       UserRepository
	credentials CredentialRepository
	seasons     SeasonDirectory
	schools     SchoolDirectory
	access      AccessDirectory
	cfg         Config
}

// New constructs a Service with required dependencies.
func New(users UserRepository, credentials CredentialRepository, seasons SeasonDirectory, schools SchoolDirectory, access AccessDirectory, cfg Config) *Service {
	if users == nil || credentials == nil || seasons == nil || schools == nil || access == nil {
		panic("auth service: all dependencies are required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.SelectionTTL <= 0 {
		cfg.SelectionTTL = 10 * time.Minute
	}
	return &Service{users: users, credentials: credentials, seasons: seasons, schools: schools, access: access, cfg: cfg}
}

// Login authenticates a user and immediately binds the credential to the
// given season; the school is derived from the season, never taken from the
// client. This is the staff path that skips the selection flow.
func (s *Service) Login(ctx context.Context, email, password string, seasonID uuid.UUID) (Session, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	if seasonID == uuid.Nil {
		return Session{}, ErrSeasonRequired
	}

	season, err := s.seasons.Resolve(ctx, seasonID)
	if err != nil {
		if errors.Is(err, seasonsvc.ErrNotFound) {
			return Session{}, ErrUnknownSeason
		}
		return Session{}, err
	}

	return s.mintFinalized(ctx, user, season.SchoolID, season.ID)
}

// Start authenticates a user without a season. When the user reaches exactly
// one school and that school has an active season, the context is unambiguous
// and the credential is finalized right away. Otherwise the caller gets a
// short-lived intermediate credential plus the schools to choose from.
func (s *Service) Start(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	schools, err := s.schools.ListForUser(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	if len(schools) == 1 {
		if season, ok, err := s.autoSeason(ctx, user.ID, schools[0].ID); err != nil {
			return Session{}, err
		} else if ok {
			return s.mintFinalized(ctx, user, schools[0].ID, season)
		}
	}

	return s.mintIntermediate(ctx, user, nil, schools)
}

// Schools lists the schools the credential's user may select.
func (s *Service) Schools(ctx context.Context, principal platformauth.Principal) ([]schoolsvc.School, error) {
	return s.schools.ListForUser(ctx, principal.UserID)
}

// SchoolSeasons lists the seasons of one of the user's schools in which the
// user holds a role. A school outside the user's reach reads as absent.
func (s *Service) SchoolSeasons(ctx context.Context, principal platformauth.Principal, schoolID uuid.UUID) ([]seasonsvc.Season, error) {
	if err := s.checkMembership(ctx, principal.UserID, schoolID); err != nil {
		return nil, err
	}
	return s.seasons.ListForUser(ctx, schoolID, principal.UserID)
}

// SelectSchool narrows an intermediate credential to a school. When the
// school has an active season the user belongs to, the context is complete
// and a finalized successor is minted; otherwise the successor is another
// intermediate carrying the school, and the caller proceeds to SelectSeason.
// Either way the predecessor credential is revoked.
func (s *Service) SelectSchool(ctx context.Context, principal platformauth.Principal, schoolID uuid.UUID) (Session, error) {
	if principal.Finalized {
		return Session{}, ErrAlreadyFinalized
	}
	if err := s.checkMembership(ctx, principal.UserID, schoolID); err != nil {
		return Session{}, err
	}
	user, err := s.users.Get(ctx, principal.UserID)
	if err != nil {
		return Session{}, err
	}

	if season, ok, err := s.autoSeason(ctx, user.ID, schoolID); err != nil {
		return Session{}, err
	} else if ok {
		session, err := s.mintFinalized(ctx, user, schoolID, season)
		if err != nil {
			return Session{}, err
		}
		return session, s.credentials.Revoke(ctx, principal.CredentialID, time.Now().UTC())
	}

	session, err := s.mintIntermediate(ctx, user, &schoolID, nil)
	if err != nil {
		return Session{}, err
	}
	return session, s.credentials.Revoke(ctx, principal.CredentialID, time.Now().UTC())
}

// SelectSeason completes the selection flow: the intermediate credential is
// replaced by a finalized successor bound to the chosen season.
func (s *Service) SelectSeason(ctx context.Context, principal platformauth.Principal, seasonID uuid.UUID) (Session, error) {
	if principal.Finalized {
		return Session{}, ErrAlreadyFinalized
	}

	season, err := s.seasons.Resolve(ctx, seasonID)
	if err != nil {
		if errors.Is(err, seasonsvc.ErrNotFound) {
			return Session{}, ErrSeasonNotFound
		}
		return Session{}, err
	}
	if principal.SchoolID != nil && *principal.SchoolID != season.SchoolID {
		return Session{}, ErrSeasonNotFound
	}
	if err := s.checkSeasonMembership(ctx, principal.UserID, season); err != nil {
		return Session{}, err
	}

	user, err := s.users.Get(ctx, principal.UserID)
	if err != nil {
		return Session{}, err
	}

	session, err := s.mintFinalized(ctx, user, season.SchoolID, season.ID)
	if err != nil {
		return Session{}, err
	}
	return session, s.credentials.Revoke(ctx, principal.CredentialID, time.Now().UTC())
}

// Verify resolves a raw bearer token into a Principal. Expired credentials
// are revoked on sight so the hash cannot be replayed later.
func (s *Service) Verify(ctx context.Context, token string) (platformauth.Principal, error) {
	credential, err := s.credentials.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return platformauth.Principal{}, ErrUnauthenticated
	}

	now := time.Now().UTC()
	if now.After(credential.ExpiresAt) {
		_ = s.credentials.Revoke(ctx, credential.ID, now)
		return platformauth.Principal{}, ErrUnauthenticated
	}

	user, err := s.users.Get(ctx, credential.UserID)
	if err != nil {
		return platformauth.Principal{}, ErrUnauthenticated
	}

	return platformauth.Principal{
		CredentialID: credential.ID,
		UserID:       credential.UserID,
		Email:        user.Email,
		SchoolID:     credential.SchoolID,
		SeasonID:     credential.SeasonID,
		Finalized:    credential.Finalized,
		Abilities:    credential.Abilities,
		IssuedAt:     credential.IssuedAt,
		ExpiresAt:    credential.ExpiresAt,
	}, nil
}

func (s *Service) authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Burn a comparison anyway so unknown emails cost the same as wrong
		// passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B4Vn6MJ8q4p1cBZkCmVuPjyXWmxu"), []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// autoSeason reports the school's active season when the user holds a role in
// it, which is the only situation where selection can be skipped.
func (s *Service) autoSeason(ctx context.Context, userID, schoolID uuid.UUID) (uuid.UUID, bool, error) {
	active, err := s.seasons.GetCurrent(ctx, schoolID)
	if errors.Is(err, seasonsvc.ErrNoActive) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}

	role, err := s.access.RoleFor(ctx, userID, active.ID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if role == "" {
		return uuid.Nil, false, nil
	}
	return active.ID, true, nil
}

func (s *Service) checkMembership(ctx context.Context, userID, schoolID uuid.UUID) error {
	schools, err := s.schools.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, school := range schools {
		if school.ID == schoolID {
			return nil
		}
	}
	return ErrSchoolNotFound
}

func (s *Service) checkSeasonMembership(ctx context.Context, userID uuid.UUID, season seasonsvc.Season) error {
	memberships, err := s.seasons.ListForUser(ctx, season.SchoolID, userID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		if m.ID == season.ID {
			return nil
		}
	}
	return ErrSeasonNotFound
}

func (s *Service) mintFinalized(ctx context.Context, user User, schoolID, seasonID uuid.UUID) (Session, error) {
	role, err := s.access.RoleFor(ctx, user.ID, seasonID)
	if err != nil {
		return Session{}, err
	}
	permissions, err := s.access.ResolvePermissions(ctx, user.ID, seasonID)
	if err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	credential := Credential{
		ID:        uuid.New(),
		UserID:    user.ID,
		SchoolID:  &schoolID,
		SeasonID:  &seasonID,
		Finalized: true,
		Abilities: permissions,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	token, err := s.storeCredential(ctx, &credential)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		ExpiresAt:   credential.ExpiresAt,
		Finalized:   true,
		User:        user,
		SchoolID:    &schoolID,
		SeasonID:    &seasonID,
		Role:        role,
		Permissions: permissions,
	}, nil
}

func (s *Service) mintIntermediate(ctx context.Context, user User, schoolID *uuid.UUID, schools []schoolsvc.School) (Session, error) {
	now := time.Now().UTC()
	credential := Credential{
		ID:        uuid.New(),
		UserID:    user.ID,
		SchoolID:  schoolID,
		Finalized: false,
		Abilities: []string{"select-context"},
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.SelectionTTL),
	}
	token, err := s.storeCredential(ctx, &credential)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		ExpiresAt:   credential.ExpiresAt,
		Finalized:   false,
		User:        user,
		SchoolID:    schoolID,
		Permissions: []string{},
		Schools:     schools,
	}, nil
}

func (s *Service) storeCredential(ctx context.Context, credential *Credential) (string, error) {
	token, err := mintToken(credential.ID)
	if err != nil {
		return "", err
	}
	credential.TokenHash = hashToken(token)
	if err := s.credentials.Insert(ctx, *credential); err != nil {
		return "", fmt.Errorf("storing credential: %w", err)
	}
	return token, nil
}

// mintToken builds the opaque secret `<credential-id>.<random hex>`. The id
// prefix is cosmetic for support tooling; verification goes through the hash.
func mintToken(credentialID uuid.UUID) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return credentialID.String() + "." + hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
