package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/identity"
	applog "secretariat-data/internal/logger"
	"secretariat-data/internal/repository"

	"go.uber.org/zap"
)

// SessionKind 会话类型
type SessionKind string

const (
	SessionAdmin         SessionKind = "admin"
	SessionMember        SessionKind = "member"
	SessionDistrictChair SessionKind = "district_chair"
	SessionTownChair     SessionKind = "town_chair"
)

var homePaths = map[SessionKind]string{
	SessionAdmin:         "/dashboard",
	SessionMember:        "/member/home",
	SessionDistrictChair: "/district/dashboard",
	SessionTownChair:     "/town/dashboard",
}

// AdminIdentity 静态管理员账号
type AdminIdentity struct {
	Username string
	Password string
}

// AuthService 登录服务
type AuthService struct {
	creds       repository.CredentialsRepository
	sources     repository.SourcesRepository
	admin       AdminIdentity
	accessToken string
	logger      *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	creds repository.CredentialsRepository,
	sources repository.SourcesRepository,
	admin AdminIdentity,
	accessToken string,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		creds:       creds,
		sources:     sources,
		admin:       admin,
		accessToken: accessToken,
		logger:      logger,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username  string
	Password  string
	IPAddress string // 客户端 IP（用于日志）
	UserAgent string // 客户端 User-Agent（用于日志）
}

// MemberProfile 党员会话信息
type MemberProfile struct {
	MemberID     int64  `json:"memberId"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	DistrictID   int64  `json:"districtId,omitempty"`
	DistrictName string `json:"districtName,omitempty"`
	TownID       int64  `json:"townId,omitempty"`
	TownName     string `json:"townName,omitempty"`
}

// OrgProfile 区/镇主席会话信息
type OrgProfile struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DistrictID   int64  `json:"districtId,omitempty"` // town only
	ChairmanName string `json:"chairmanName"`
}

// Session 登录响应
type Session struct {
	Kind        SessionKind    `json:"kind"`
	AccessToken string         `json:"accessToken"`
	Username    string         `json:"username"`
	DisplayName string         `json:"displayName"`
	HomePath    string         `json:"homePath"`
	Member      *MemberProfile `json:"member,omitempty"`
	Org         *OrgProfile    `json:"org,omitempty"`
}

func (s *AuthService) fail(req LoginRequest, reason string, fields ...zap.Field) error {
	fields = append([]zap.Field{
		applog.Masked("username", strings.TrimSpace(req.Username)),
		zap.String("ip_address", req.IPAddress),
		zap.String("user_agent", req.UserAgent),
		zap.String("reason", reason),
	}, fields...)
	s.logger.Warn("User login failed", fields...)
	return ErrInvalidCredentials
}

func (s *AuthService) isAdmin(username, password string) bool {
	if s.admin.Username == "" || s.admin.Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.Password)) == 1
	return userOK && passOK
}

// Login resolves the static administrator first, then the credential store.
// Every failure returns ErrInvalidCredentials; the reason is only logged.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, s.fail(req, "missing_credentials")
	}

	if s.isAdmin(username, req.Password) {
		s.logger.Info("User login successful",
			zap.String("kind", string(SessionAdmin)),
			zap.String("ip_address", req.IPAddress),
		)
		return &Session{
			Kind:        SessionAdmin,
			AccessToken: s.accessToken,
			Username:    username,
			DisplayName: username,
			HomePath:    homePaths[SessionAdmin],
		}, nil
	}

	password := identity.DigitsOnly(req.Password)
	if password == "" {
		return nil, s.fail(req, "password_has_no_digits")
	}

	c, err := s.creds.FindByUsername(ctx, username)
	if err != nil {
		s.logger.Error("Failed to query credential", zap.Error(err))
		return nil, s.fail(req, "store_error")
	}
	if c == nil {
		return nil, s.fail(req, "user_not_found")
	}
	if subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) != 1 {
		return nil, s.fail(req, "password_mismatch", zap.String("source_kind", string(c.SourceKind)))
	}
	if !c.Active {
		return nil, s.fail(req, "inactive", zap.String("source_kind", string(c.SourceKind)))
	}

	session, err := s.buildSession(ctx, c)
	if err != nil {
		s.logger.Error("Failed to build session", zap.String("credential_id", c.ID), zap.Error(err))
		return nil, s.fail(req, "store_error")
	}
	if session == nil {
		return nil, s.fail(req, "source_missing",
			zap.String("source_kind", string(c.SourceKind)),
			zap.String("source_ref", c.SourceRef),
		)
	}

	s.logger.Info("User login successful",
		zap.String("kind", string(session.Kind)),
		zap.String("source_ref", c.SourceRef),
		zap.String("ip_address", req.IPAddress),
	)
	return session, nil
}

// buildSession returns nil when the record's source no longer exists.
func (s *AuthService) buildSession(ctx context.Context, c *domain.Credential) (*Session, error) {
	id, ok := domain.ParseRef(c.SourceRef)
	if !ok {
		return nil, nil
	}
	session := &Session{
		AccessToken: s.accessToken,
		Username:    c.Username,
	}

	switch c.SourceKind {
	case domain.SourceMember:
		m, err := s.sources.GetMember(ctx, id)
		if err != nil || m == nil {
			return nil, err
		}
		session.Kind = SessionMember
		session.DisplayName = m.FullName()
		session.Member = &MemberProfile{
			MemberID:     m.MemberID,
			FirstName:    m.FirstName,
			LastName:     m.LastName,
			DistrictID:   m.DistrictID,
			DistrictName: m.DistrictName,
			TownID:       m.TownID,
			TownName:     m.TownName,
		}
	case domain.SourceDistrictChair:
		d, err := s.sources.GetDistrictChair(ctx, id)
		if err != nil || d == nil {
			return nil, err
		}
		session.Kind = SessionDistrictChair
		session.DisplayName = firstNonEmpty(strings.TrimSpace(d.ChairmanName), c.DisplayName)
		session.Org = &OrgProfile{
			ID:           d.DistrictID,
			Name:         d.DistrictName,
			ChairmanName: session.DisplayName,
		}
	case domain.SourceTownChair:
		t, err := s.sources.GetTownChair(ctx, id)
		if err != nil || t == nil {
			return nil, err
		}
		session.Kind = SessionTownChair
		session.DisplayName = firstNonEmpty(strings.TrimSpace(t.ChairmanName), c.DisplayName)
		session.Org = &OrgProfile{
			ID:           t.TownID,
			Name:         t.TownName,
			DistrictID:   t.DistrictID,
			ChairmanName: session.DisplayName,
		}
	default:
		return nil, nil
	}
	session.HomePath = homePaths[session.Kind]
	return session, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
