package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"warden/internal/identity/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
)

// actorClaim follows the RFC 8693 "act" claim: the party acting on behalf of sub.
type actorClaim struct {
	Subject string `json:"sub"`
}

type tokenClaims struct {
	SessionID string          `json:"sid,omitempty"`
	Use       models.TokenUse `json:"use"`
	Actor     *actorClaim     `json:"act,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and validates HS256 token pairs.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJWTService(signingKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *JWTService) AccessTTL() time.Duration { return s.accessTTL }

// IssuePair mints an access and a refresh token with fresh JTIs.
func (s *JWTService) IssuePair(ctx context.Context, req models.IssueRequest) (*models.TokenPair, error) {
	now := requestcontext.Now(ctx)
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)
	if req.ShortLived && refreshExp.After(accessExp) {
		refreshExp = accessExp
	}

	accessJTI := uuid.NewString()
	access, err := s.sign(req, models.TokenUseAccess, accessJTI, now, accessExp)
	if err != nil {
		return nil, err
	}
	refreshJTI := uuid.NewString()
	refresh, err := s.sign(req, models.TokenUseRefresh, refreshJTI, now, refreshExp)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.accessTTL.Seconds()),
		SubjectID:        req.SubjectID,
		SessionID:        req.SessionID,
		ActorID:          req.ActorID,
		AccessTokenID:    accessJTI,
		RefreshTokenID:   refreshJTI,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *JWTService) sign(req models.IssueRequest, use models.TokenUse, jti string, now, exp time.Time) (string, error) {
	claims := tokenClaims{
		Use: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.SubjectID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	if !req.SessionID.IsNil() {
		claims.SessionID = req.SessionID.String()
	}
	if !req.ActorID.IsNil() {
		claims.Actor = &actorClaim{Subject: req.ActorID.String()}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	return signed, nil
}

// Validate checks signature, algorithm, issuer, audience, expiry and intended use.
func (s *JWTService) Validate(tokenString string, use models.TokenUse) (*models.Claims, error) {
	return s.validate(tokenString, use, time.Now())
}

// ValidateAt is Validate against an explicit clock.
func (s *JWTService) ValidateAt(tokenString string, use models.TokenUse, now time.Time) (*models.Claims, error) {
	return s.validate(tokenString, use, now)
}

func (s *JWTService) validate(tokenString string, use models.TokenUse, now time.Time) (*models.Claims, error) {
	if tokenString == "" {
		return nil, invalidToken("empty token")
	}
	claims := new(tokenClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, invalidToken("token expired")
		}
		return nil, invalidToken("invalid token")
	}
	if !parsed.Valid || claims.Use != use || claims.ID == "" {
		return nil, invalidToken("invalid token")
	}

	out := &models.Claims{Use: claims.Use, JTI: claims.ID, ExpiresAt: claims.ExpiresAt.Time}
	if out.SubjectID, err = id.ParseSubjectID(claims.Subject); err != nil || out.SubjectID.IsNil() {
		return nil, invalidToken("invalid subject")
	}
	if claims.SessionID != "" {
		if out.SessionID, err = id.ParseSessionID(claims.SessionID); err != nil {
			return nil, invalidToken("invalid session")
		}
	}
	if claims.Actor != nil {
		if out.ActorID, err = id.ParseSubjectID(claims.Actor.Subject); err != nil || out.ActorID.IsNil() {
			return nil, invalidToken("invalid actor")
		}
	}
	return out, nil
}

func invalidToken(msg string) error {
	return dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonTokenInvalid, msg)
}
