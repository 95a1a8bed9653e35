package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/usecases"
)

const (
	msgDescribeDream = "Пожалуйста, опишите свой сон."
	msgLimitReached  = "Лимит толкований на сегодня исчерпан."
)

// Pinger reports storage health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the services the web channel talks to.
type Deps struct {
	Dreams   *usecases.DreamService
	Profiles *usecases.ProfileService
	Auth     *usecases.AuthUsecase
	DB       Pinger
	Log      logging.Logger
	Location *time.Location
	BotName  string
}

type Handler struct {
	dreams   *usecases.DreamService
	profiles *usecases.ProfileService
	auth     *usecases.AuthUsecase
	db       Pinger
	log      logging.Logger
	loc      *time.Location
}

func NewHandler(deps Deps) *Handler {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		dreams:   deps.Dreams,
		profiles: deps.Profiles,
		auth:     deps.Auth,
		db:       deps.DB,
		log:      deps.Log,
		loc:      loc,
	}
}

func SetupRoutes(r *gin.Engine, deps Deps, middleware *Middleware) {
	h := NewHandler(deps)
	adminHandler := NewAdminHandler(deps.Auth, deps.Dreams.Ledger(), deps.Log)
	telegramHandler := NewTelegramHandler(deps.Auth, deps.BotName, deps.Log)

	r.Use(RequestLogger(deps.Log))
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", h.Healthz)

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", h.Login)
	}
	r.POST("/api/admin/login", adminHandler.Login)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.UserRequired())
	api.Use(middleware.RateLimitPerUser())
	{
		api.GET("/chat", h.GetChat)
		api.POST("/message", h.PostMessage)
		api.POST("/clear-chat", h.ClearChat)
		api.GET("/history", h.GetHistory)
		api.GET("/profile", h.GetProfile)
		api.PUT("/profile", h.UpdateProfile)

		telegramHandler.RegisterRoutes(api)
	}

	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthRequired())
	admin.Use(middleware.AdminRequired())
	{
		admin.POST("/users/:id/premium", adminHandler.SetPremium)
		admin.DELETE("/users/:id/premium", adminHandler.RevokePremium)
	}
}

// getUserID extracts user_id from JWT context. Zero means no user.
func getUserID(c *gin.Context) int64 {
	v, _ := c.Get("user_id")
	if uid, ok := v.(float64); ok && uid > 0 {
		return int64(uid)
	}
	return 0
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			h.log.Error(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Phone     string `json:"phone"`
		Name      string `json:"name"`
		BirthDate string `json:"birth_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidateLength(req.Phone, 1, MaxPhoneLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone is required"})
		return
	}

	birth, err := usecases.ParseBirthDate(SanitizeString(req.BirthDate), time.Now().In(h.loc))
	if err != nil {
		h.writeError(c, err)
		return
	}

	token, user, err := h.auth.Login(c.Request.Context(), usecases.LoginInput{
		Phone:     req.Phone,
		Name:      SanitizeString(req.Name),
		BirthDate: birth,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (h *Handler) GetChat(c *gin.Context) {
	userID := getUserID(c)
	session, turns, err := h.dreams.ActiveChat(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	quota, err := h.dreams.QuotaStatus(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"messages":   turns,
		"quota":      quota,
	})
}

func (h *Handler) PostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	text := TruncateString(strings.TrimSpace(SanitizeString(req.Text)), MaxMessageLength)

	reply, err := h.dreams.Interpret(c.Request.Context(), getUserID(c), text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !reply.Quota.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":        msgLimitReached,
			"show_upgrade": reply.Quota.ShowUpgrade,
			"resets_at":    reply.Quota.ResetsAt,
		})
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *Handler) ClearChat(c *gin.Context) {
	session, err := h.dreams.ClearChat(c.Request.Context(), getUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "session_id": session.ID})
}

func (h *Handler) GetHistory(c *gin.Context) {
	groups, err := h.dreams.History(c.Request.Context(), getUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if groups == nil {
		groups = []entities.DayGroup{}
	}
	c.JSON(http.StatusOK, gin.H{"history": groups})
}

func (h *Handler) GetProfile(c *gin.Context) {
	userID := getUserID(c)
	user, err := h.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	quota, err := h.dreams.QuotaStatus(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "quota": quota})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req struct {
		Name      string `json:"name"`
		BirthDate string `json:"birth_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	birth, err := usecases.ParseBirthDate(SanitizeString(req.BirthDate), time.Now().In(h.loc))
	if err != nil {
		h.writeError(c, err)
		return
	}
	user, err := h.profiles.Update(c.Request.Context(), getUserID(c), SanitizeString(req.Name), birth)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// writeError maps domain errors to HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	writeError(c, h.log, err)
}

func writeError(c *gin.Context, log logging.Logger, err error) {
	switch {
	case errors.Is(err, entities.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgDescribeDream})
	case errors.Is(err, entities.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный номер телефона."})
	case errors.Is(err, entities.ErrInvalidBirthDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Дата рождения должна быть в формате ДД.ММ.ГГГГ."})
	case errors.Is(err, entities.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, entities.ErrIdentityConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, entities.ErrInvalidToken), errors.Is(err, usecases.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	default:
		log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
