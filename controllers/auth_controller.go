package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/middleware"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// AuthController handles authentication related endpoints including local and third-party providers.
type AuthController struct {
	store  store.Store
	engine *services.Engine
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(st store.Store, engine *services.Engine) *AuthController {
	return &AuthController{store: st, engine: engine}
}

func tokenTTL() time.Duration {
	hours := config.Get().TokenTTLHours
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

// Register handles local account registration with bcrypt hashing.
// The account starts empty; the first session start credits the login bonus.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Confirm  string `json:"confirm"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	name := utils.SanitizeText(req.Name)
	if l := len([]rune(name)); l < 2 || l > 32 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "name must be 2-32 characters")
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid email address")
		return
	}
	if req.Password != req.Confirm {
		utils.Error(ctx, http.StatusBadRequest, 40002, "passwords do not match")
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}

	ip := ctx.ClientIP()
	if !utils.RegistrationAllowed(ip, a.engine.Now()) {
		utils.Error(ctx, http.StatusTooManyRequests, 42903, "too many registrations from this address today")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Provider:     "local",
	}
	if err := a.store.CreateAccount(ctx.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
			return
		}
		utils.Sugar.Errorf("create account failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}
	utils.RegistrationRecord(ip, a.engine.Now())
	if err := a.engine.Mirror(ctx.Request.Context(), user.ID); err != nil {
		utils.Sugar.Warnf("initial leaderboard entry for user %d failed: %v", user.ID, err)
	}

	a.issueSession(ctx, user)
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	email, _ := normalizeEmail(req.Email)
	if utils.LoginLocked(email) {
		utils.Error(ctx, http.StatusTooManyRequests, 42902, "too many failed attempts, try again later")
		return
	}
	user, err := a.store.AccountByEmail(ctx.Request.Context(), email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			utils.Sugar.Errorf("login lookup failed: %v", err)
		}
		utils.LoginFailRecord(email)
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.LoginFailRecord(email)
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}
	utils.LoginReset(email)

	a.issueSession(ctx, user)
}

// issueSession signs a token, runs the session-start accounting and answers with both.
// A failed accounting step does not fail the login; the client retries via /session/start.
func (a *AuthController) issueSession(ctx *gin.Context, user models.User) {
	token, err := utils.GenerateToken(user.ID, user.Email, tokenTTL())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	resp := gin.H{"token": token}
	state, err := a.engine.StartSession(ctx.Request.Context(), user.ID)
	if err != nil {
		utils.Sugar.Warnf("session start for user %d failed: %v", user.ID, err)
		resp["user"] = userResponse(user)
	} else {
		if fresh, err := a.store.Account(ctx.Request.Context(), user.ID); err == nil {
			user = fresh
		}
		resp["user"] = userResponse(user)
		resp["state"] = state
	}
	utils.Success(ctx, resp)
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(tokenTTL())
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}

	user, err := a.store.Account(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to load user")
		return
	}

	utils.Success(ctx, userResponse(user))
}

// UpdateProfile changes the display name and theme. A new name is mirrored to the leaderboard.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}

	var req struct {
		Name  string `json:"name"`
		Theme string `json:"theme"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	name := utils.SanitizeText(req.Name)
	if name != "" {
		if l := len([]rune(name)); l < 2 || l > 32 {
			utils.Error(ctx, http.StatusBadRequest, 40030, "name must be 2-32 characters")
			return
		}
	}
	theme := strings.ToLower(strings.TrimSpace(req.Theme))
	if theme != "" && theme != "light" && theme != "dark" {
		utils.Error(ctx, http.StatusBadRequest, 40030, "theme must be light or dark")
		return
	}

	user, err := a.store.UpdateProfile(ctx.Request.Context(), userID, name, theme)
	if err != nil {
		storeError(ctx, err, 50031, "failed to update profile")
		return
	}
	if name != "" {
		if err := a.engine.Mirror(ctx.Request.Context(), userID); err != nil {
			utils.Sugar.Warnf("leaderboard rename for user %d failed: %v", userID, err)
		}
	}

	utils.Success(ctx, userResponse(user))
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, provider, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}

	if !utils.ConsumeState(state, provider) {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}

	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()
	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "failed to exchange code")
		return
	}

	userInfo, err := fetchOAuthUser(reqCtx, provider, cfg.Client(reqCtx, token))
	if err != nil {
		utils.Sugar.Warnf("%s user info failed: %v", provider, err)
		utils.Error(ctx, http.StatusBadGateway, 50005, "failed to load provider profile")
		return
	}

	user, err := a.findOrCreateOAuthUser(ctx.Request.Context(), provider, userInfo)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.Error(ctx, http.StatusConflict, 40902, "email already registered with a password")
			return
		}
		utils.Sugar.Errorf("persist oauth user failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}

	a.issueSession(ctx, user)
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID          string
	DisplayName string
	Email       string
}

func fetchOAuthUser(ctx context.Context, provider string, client *http.Client) (*oauthUser, error) {
	switch provider {
	case "github":
		return fetchGitHubUser(ctx, client)
	case "google":
		return fetchGoogleUser(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func (a *AuthController) findOrCreateOAuthUser(ctx context.Context, provider string, data *oauthUser) (models.User, error) {
	user, err := a.store.AccountByProvider(ctx, provider, data.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, err
	}

	email, ok := normalizeEmail(data.Email)
	if !ok {
		// providers may hide the address; keep the unique column unique
		email = fmt.Sprintf("%s-%s@oauth.invalid", provider, data.ID)
	}
	name := truncateRunes(utils.SanitizeText(fallback(data.DisplayName, "player")), 32)
	user = models.User{
		Name:       name,
		Email:      email,
		Provider:   provider,
		ProviderID: data.ID,
	}
	if err := a.store.CreateAccount(ctx, &user); err != nil {
		return models.User{}, err
	}
	if err := a.engine.Mirror(ctx, user.ID); err != nil {
		utils.Sugar.Warnf("initial leaderboard entry for user %d failed: %v", user.ID, err)
	}
	return user, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
		return nil, err
	}

	email := payload.Email
	if email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
	}

	return &oauthUser{
		ID:          fmt.Sprintf("%d", payload.ID),
		DisplayName: fallback(payload.Name, payload.Login),
		Email:       email,
	}, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
		return nil, err
	}

	return &oauthUser{
		ID:          payload.ID,
		DisplayName: fallback(payload.Name, strings.Split(payload.Email, "@")[0]),
		Email:       payload.Email,
	}, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func normalizeEmail(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return raw, false
	}
	return raw, true
}

func userResponse(user models.User) gin.H {
	return gin.H{
		"id":                 user.ID,
		"name":               user.Name,
		"email":              user.Email,
		"provider":           user.Provider,
		"theme":              user.Theme,
		"points":             user.Points,
		"streak":             user.Streak,
		"last_login_date":    user.LastLoginDate,
		"challenge_progress": user.ChallengeProgress,
		"created_at":         user.CreatedAt,
	}
}
