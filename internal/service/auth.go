package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/auth"
	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/repository"
)

const minPasswordLength = 10

// TokenPair is what login and refresh hand to the client.
type TokenPair struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ExpiresIn int    `json:"expires_in"`
}

// AuthService owns registration, login, and the refresh rotation
// protocol. Session state is authoritative server-side: an access token
// outlives its session only until the revocation check catches it.
type AuthService struct {
	users      repository.UserRepository
	workspaces repository.WorkspaceRepository
	sessions   repository.SessionRepository

	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	logger     *zap.Logger
}

func NewAuthService(
	users repository.UserRepository,
	workspaces repository.WorkspaceRepository,
	sessions repository.SessionRepository,
	jwtSecret string,
	accessTTL, refreshTTL time.Duration,
	bcryptCost int,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		workspaces: workspaces,
		sessions:   sessions,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates a workspace and its owner user.
func (s *AuthService) Register(ctx context.Context, email, password, workspaceName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errs.New(errs.InvalidInput, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, errs.New(errs.InvalidInput, "password too short")
	}
	if workspaceName == "" {
		workspaceName = email[:strings.Index(email, "@")] + "'s workspace"
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.New(errs.Conflict, "email already registered")
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "hash password", err)
	}

	workspace, err := s.workspaces.Create(ctx, workspaceName, "free")
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, workspace.ID, email, hash, models.RoleOwner)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("workspace_id", workspace.ID.String()),
	)
	return user, nil
}

// Login verifies the credentials and issues a fresh session. One generic
// error covers unknown email and wrong password. Hashes stored at a
// lower bcrypt cost than configured are transparently upgraded.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.IsActive || !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, nil, errs.New(errs.Unauthenticated, "invalid email or password")
	}

	if auth.NeedsRehash(user.PasswordHash, s.bcryptCost) {
		if newHash, err := auth.HashPassword(password, s.bcryptCost); err == nil {
			if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
				s.logger.Warn("password cost upgrade failed", zap.Error(err))
			}
		}
	}

	pair, err := s.issueSession(ctx, user, nil)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Refresh runs the rotation protocol. Presenting a revoked refresh
// credential is treated as a replay of a rotated token: the entire chain
// is revoked, forcing re-login on the legitimate holder and locking out
// the stolen credential.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	session, err := s.sessions.GetByRefreshHash(ctx, auth.HashRefreshToken(refreshToken))
	if err != nil {
		if errs.IsKind(err, errs.NotFound) {
			return nil, errs.New(errs.Unauthenticated, "invalid refresh token")
		}
		return nil, err
	}

	if session.Revoked {
		if err := s.sessions.RevokeChain(ctx, session.ID); err != nil {
			s.logger.Error("chain revocation failed", zap.Error(err))
		}
		s.logger.Warn("refresh token replay detected",
			zap.String("session_id", session.ID.String()),
			zap.String("user_id", session.UserID.String()),
		)
		return nil, errs.New(errs.Unauthenticated, "invalid refresh token")
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, errs.New(errs.Unauthenticated, "refresh token expired")
	}

	owner, err := s.userForSession(ctx, session)
	if err != nil {
		return nil, err
	}

	return s.issueRotated(ctx, owner, session)
}

// Logout revokes the whole rotation chain for the subject's session.
func (s *AuthService) Logout(ctx context.Context, subject models.Subject) error {
	return s.sessions.RevokeChain(ctx, subject.SessionID)
}

// IsSessionRevoked is the gateway's revocation check for access tokens.
func (s *AuthService) IsSessionRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return s.sessions.IsRevoked(ctx, sessionID)
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, parent *uuid.UUID) (*TokenPair, error) {
	refreshToken, refreshHash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "mint refresh token", err)
	}

	session := &models.Session{
		ID:               uuid.New(),
		UserID:           user.ID,
		WorkspaceID:      user.WorkspaceID,
		RefreshTokenHash: refreshHash,
		IssuedAt:         time.Now().UTC(),
		ExpiresAt:        time.Now().UTC().Add(s.refreshTTL),
		ParentSessionID:  parent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return s.tokenPair(user, session, refreshToken)
}

func (s *AuthService) issueRotated(ctx context.Context, user *models.User, presented *models.Session) (*TokenPair, error) {
	refreshToken, refreshHash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "mint refresh token", err)
	}

	parentID := presented.ID
	next := &models.Session{
		ID:               uuid.New(),
		UserID:           user.ID,
		WorkspaceID:      user.WorkspaceID,
		RefreshTokenHash: refreshHash,
		IssuedAt:         time.Now().UTC(),
		ExpiresAt:        time.Now().UTC().Add(s.refreshTTL),
		ParentSessionID:  &parentID,
	}
	if err := s.sessions.Rotate(ctx, presented.ID, next); err != nil {
		if errs.IsKind(err, errs.Conflict) {
			// Lost a concurrent rotation; surface as unauthenticated so
			// the client re-logs rather than retrying the stale token.
			return nil, errs.New(errs.Unauthenticated, "invalid refresh token")
		}
		return nil, err
	}

	return s.tokenPair(user, next, refreshToken)
}

func (s *AuthService) tokenPair(user *models.User, session *models.Session, refreshToken string) (*TokenPair, error) {
	subject := models.Subject{
		UserID:      user.ID,
		WorkspaceID: user.WorkspaceID,
		Role:        user.Role,
		SessionID:   session.ID,
	}
	access, err := auth.GenerateAccessToken(subject, s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "sign access token", err)
	}
	return &TokenPair{
		Access:    access,
		Refresh:   refreshToken,
		ExpiresIn: int(s.accessTTL.Seconds()),
	}, nil
}

func (s *AuthService) userForSession(ctx context.Context, session *models.Session) (*models.User, error) {
	subject := models.Subject{
		UserID:      session.UserID,
		WorkspaceID: session.WorkspaceID,
	}
	user, err := s.users.GetByID(ctx, subject, session.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errs.New(errs.Unauthenticated, "account disabled")
	}
	return user, nil
}
