package usecases

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Koksbox/dream-interpreter/internal/entities"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	purposeTelegramLink = "tg_link"
	linkTokenTTL        = 15 * time.Minute
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthUsecase struct {
	identity      *IdentityResolver
	profiles      *ProfileService
	jwtSecret     []byte
	tokenTTL      time.Duration
	adminUsername string
	adminHash     []byte
	now           func() time.Time
}

func NewAuthUsecase(identity *IdentityResolver, profiles *ProfileService, secret string, tokenTTL time.Duration) *AuthUsecase {
	return &AuthUsecase{
		identity:  identity,
		profiles:  profiles,
		jwtSecret: []byte(secret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// WithAdmin enables admin login for username with a bcrypt hash.
func (uc *AuthUsecase) WithAdmin(username, passwordHash string) *AuthUsecase {
	uc.adminUsername = username
	uc.adminHash = []byte(passwordHash)
	return uc
}

type LoginInput struct {
	Phone     string
	Name      string
	BirthDate *time.Time
}

// Login resolves or registers the web user by phone and issues a token.
// Name and birth date are stored only when the user is new.
func (uc *AuthUsecase) Login(ctx context.Context, in LoginInput) (string, *entities.User, error) {
	user, created, err := uc.identity.Resolve(ctx, Credential{Channel: ChannelWeb, Phone: in.Phone})
	if err != nil {
		return "", nil, err
	}

	if created && (in.Name != "" || in.BirthDate != nil) {
		user, err = uc.profiles.Update(ctx, user.ID, in.Name, in.BirthDate)
		if err != nil {
			return "", nil, err
		}
	}

	token, err := uc.sign(jwt.MapClaims{
		"user_id": user.ID,
		"role":    RoleUser,
		"exp":     uc.now().Add(uc.tokenTTL).Unix(),
	})
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// AdminLogin checks the configured admin credentials.
func (uc *AuthUsecase) AdminLogin(username, password string) (string, error) {
	if len(uc.adminHash) == 0 || username != uc.adminUsername {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(uc.adminHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return uc.sign(jwt.MapClaims{
		"user_id": 0,
		"role":    RoleAdmin,
		"exp":     uc.now().Add(time.Hour * 12).Unix(),
	})
}

// IssueLinkToken creates a short-lived token the bot accepts in /start to
// link a Telegram account to userID. Telegram limits the start payload to 64
// characters of [A-Za-z0-9_-], so the token is <user_id>_<exp>_<mac> rather
// than a JWT.
func (uc *AuthUsecase) IssueLinkToken(userID int64) (string, error) {
	if userID <= 0 {
		return "", entities.ErrInvalidToken
	}
	payload := strconv.FormatInt(userID, 10) + "_" + strconv.FormatInt(uc.now().Add(linkTokenTTL).Unix(), 10)
	return payload + "_" + uc.linkMAC(payload), nil
}

// ParseLinkToken validates a token from IssueLinkToken.
func (uc *AuthUsecase) ParseLinkToken(token string) (int64, error) {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 {
		return 0, entities.ErrInvalidToken
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, entities.ErrInvalidToken
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || uc.now().Unix() > exp {
		return 0, entities.ErrInvalidToken
	}
	want := uc.linkMAC(parts[0] + "_" + parts[1])
	if !hmac.Equal([]byte(parts[2]), []byte(want)) {
		return 0, entities.ErrInvalidToken
	}
	return userID, nil
}

func (uc *AuthUsecase) linkMAC(payload string) string {
	h := hmac.New(sha256.New, uc.jwtSecret)
	h.Write([]byte(purposeTelegramLink + ":" + payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:16])
}

// LinkTelegram completes a deep-link: validates the token and attaches the
// Telegram account to the web user.
func (uc *AuthUsecase) LinkTelegram(ctx context.Context, tokenString, telegramID string) (*entities.User, error) {
	userID, err := uc.ParseLinkToken(tokenString)
	if err != nil {
		return nil, err
	}
	return uc.identity.Link(ctx, userID, telegramID)
}

func (uc *AuthUsecase) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}
