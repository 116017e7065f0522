/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

// Package participant contains HTTP handlers of the site API: Slack sign-in,
// the session endpoints and the participant's data kept in Airtable.
package participant

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/internal/airtable"
	"github.com/mobgames/site/internal/session"
	"github.com/mobgames/site/internal/slack"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/restapi"
)

// Routes of the site API.
const (
	RouteLogin           = "/login"
	RouteSlackCallback   = "/api/auth/slack/callback"
	RouteLogout          = "/api/logout"
	RouteUser            = "/api/user"
	RouteAccessUserData  = "/api/user/accessUserData"
	RouteCreateUser      = "/api/user/createUser"
	RouteUpdateMinecraft = "/api/user/updateUserMinecraftAccount"

	// AppPath is where the user lands after signing in.
	AppPath = "/app"
)

// Error messages of the site API.
const (
	ErrMessageCodeRequired         = "Authorization code is required"
	ErrMessageSlackAuthFailed      = "Failed to authenticate with Slack"
	ErrMessageSlackUserInfoFailed  = "Failed to get user info from Slack"
	ErrMessageInvalidUserData      = "Invalid user data"
	ErrMessageNotAuthenticated     = "Not authenticated"
	ErrMessageInvalidSession       = "Invalid session data"
	ErrMessageInvalidSlackID       = "Invalid Slack ID"
	ErrMessageCheckUserFailed      = "Failed to check existing user"
	ErrMessageCreateUserFailed     = "Failed to create user"
	ErrMessageUsernameRequired     = "Minecraft username is required"
	ErrMessageUsernameTooShort     = "Minecraft username must be at least 3 characters"
	ErrMessageFindRecordFailed     = "Failed to find user record"
	ErrMessageRecordNotFound       = "User record not found"
	ErrMessageUpdateUsernameFailed = "Failed to update Minecraft username"
)

// SlackAPI is the part of the Slack Web API used by the handlers.
type SlackAPI interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*slack.OAuthAccess, error)
	UserIdentity(ctx context.Context, token string) (*slack.Identity, error)
}

// ProfileGetter returns workspace members (users.info), slack.ProfileCache implements it.
type ProfileGetter interface {
	UserInfo(ctx context.Context, token, userID string) (*slack.User, error)
}

// Store keeps participants, airtable.Store implements it.
type Store interface {
	FindBySlackID(ctx context.Context, slackID string) (airtable.Participant, error)
	EnsureParticipant(ctx context.Context, slackID string) (airtable.Participant, bool, error)
	UpdateMinecraftUsername(ctx context.Context, recordID, username string) (airtable.Participant, error)
}

// HandlerOpts represents dependencies of Handler.
type HandlerOpts struct {
	SlackConfig *slack.Config
	Slack       SlackAPI
	Profiles    ProfileGetter
	Store       Store
	Sessions    *session.Manager
	ErrorDomain string
}

// Handler serves the site API.
type Handler struct {
	slackCfg    *slack.Config
	slack       SlackAPI
	profiles    ProfileGetter
	store       Store
	sessions    *session.Manager
	errorDomain string
}

// NewHandler creates a new Handler.
func NewHandler(opts HandlerOpts) *Handler {
	return &Handler{
		slackCfg:    opts.SlackConfig,
		slack:       opts.Slack,
		profiles:    opts.Profiles,
		store:       opts.Store,
		sessions:    opts.Sessions,
		errorDomain: opts.ErrorDomain,
	}
}

// Register registers the site API routes. It may be used as httpserver.Routes.
func (h *Handler) Register(router chi.Router) {
	router.Get(RouteLogin, h.login)
	router.Get(RouteSlackCallback, h.slackCallback)
	router.Post(RouteLogout, h.logout)
	router.Get(RouteUser, h.user)
	router.Get(RouteAccessUserData, h.accessUserData)
	router.Post(RouteCreateUser, h.createUser)
	router.Put(RouteUpdateMinecraft, h.updateMinecraftAccount)
}

func (h *Handler) redirectURI(r *http.Request) string {
	if h.slackCfg.RedirectURL != "" {
		return h.slackCfg.RedirectURL
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
	}
	return proto + "://" + r.Host + RouteSlackCallback
}

func (h *Handler) login(rw http.ResponseWriter, r *http.Request) {
	http.Redirect(rw, r, h.slackCfg.LoginURL(h.redirectURI(r)), http.StatusFound)
}

func (h *Handler) slackCallback(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContextOrDisabled(ctx)

	code := r.URL.Query().Get("code")
	if code == "" {
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageCodeRequired, logger)
		return
	}

	access, err := h.slack.ExchangeCode(ctx, code, h.redirectURI(r))
	if err != nil {
		logger.Error("slack oauth code exchange failed", log.Error(err))
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageSlackAuthFailed, logger)
		return
	}
	userID := access.AuthedUser.ID
	if userID == "" {
		userID = "me"
	}
	user, err := h.profiles.UserInfo(ctx, access.Token(), userID)
	if err != nil {
		logger.Error("slack users.info failed", log.Error(err))
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageSlackUserInfoFailed, logger)
		return
	}

	name := user.DisplayName()
	if user.ID == "" || len(user.ID) > MaxSlackIDLength || name == "" || len(name) > MaxNameLength {
		logger.Error("invalid slack user data", log.String("slack_id", user.ID), log.Int("name_length", len(name)))
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageInvalidUserData, logger)
		return
	}
	slackID := SanitizeSlackID(user.ID)
	if len(slackID) < MinSlackIDLength || SanitizeName(name) == "" {
		logger.Error("slack user data is empty after sanitizing", log.String("slack_id", slackID))
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageInvalidUserData, logger)
		return
	}

	// The participant record is not required for signing in, it's created again on createUser.
	if p, created, ensureErr := h.store.EnsureParticipant(ctx, slackID); ensureErr != nil {
		logger.Error("failed to ensure participant record", log.String("slack_id", slackID), log.Error(ensureErr))
	} else if created {
		logger.Info("participant record created", log.String("slack_id", slackID), log.String("record_id", p.RecordID))
	}

	if err = h.sessions.Issue(rw, session.Data{SlackID: slackID, AccessToken: access.Token()}); err != nil {
		logger.Error("failed to issue session", log.Error(err))
		restapi.RespondInternalError(rw, h.errorDomain, logger)
		return
	}
	http.Redirect(rw, r, AppPath, http.StatusFound)
}

func (h *Handler) logout(rw http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(rw)
	restapi.RespondMessage(rw, http.StatusOK, "Logged out successfully", middleware.GetLoggerFromContextOrDisabled(r.Context()))
}

type userResponse struct {
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	SlackID string `json:"slackId"`
}

func (h *Handler) user(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContextOrDisabled(r.Context())
	sess, ok := h.requireSession(rw, r, logger)
	if !ok {
		return
	}
	identity, err := h.slack.UserIdentity(r.Context(), sess.AccessToken)
	if err != nil {
		logger.Warn("slack users.identity failed", log.Error(err))
		h.respondError(rw, http.StatusUnauthorized, restapi.ErrCodeUnauthorized, ErrMessageSlackUserInfoFailed, logger)
		return
	}
	restapi.RespondJSON(rw, userResponse{Name: identity.Name, Avatar: identity.Avatar(), SlackID: sess.SlackID}, logger)
}

type slackUserData struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Avatar  string `json:"avatar"`
	SlackID string `json:"slackId"`
}

type airtableUserData struct {
	RecordID          string  `json:"recordId"`
	SlackID           string  `json:"slackId"`
	MinecraftUsername *string `json:"minecraftUsername"`
}

type accessUserDataResponse struct {
	Slack    slackUserData     `json:"slack"`
	Airtable *airtableUserData `json:"airtable"`
}

func (h *Handler) accessUserData(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContextOrDisabled(ctx)
	sess, ok := h.requireSession(rw, r, logger)
	if !ok {
		return
	}
	user, err := h.profiles.UserInfo(ctx, sess.AccessToken, sess.SlackID)
	if err != nil {
		logger.Warn("slack users.info failed", log.Error(err))
		h.respondError(rw, http.StatusUnauthorized, restapi.ErrCodeUnauthorized, ErrMessageSlackUserInfoFailed, logger)
		return
	}

	resp := accessUserDataResponse{Slack: slackUserData{
		Name:    user.DisplayName(),
		Email:   user.Profile.Email,
		Avatar:  user.Avatar(),
		SlackID: sess.SlackID,
	}}
	p, err := h.store.FindBySlackID(ctx, SanitizeSlackID(sess.SlackID))
	switch {
	case err == nil:
		resp.Airtable = &airtableUserData{RecordID: p.RecordID, SlackID: p.SlackID}
		if p.MinecraftUsername != "" {
			resp.Airtable.MinecraftUsername = &p.MinecraftUsername
		}
	case errors.Is(err, airtable.ErrNotFound):
	default:
		logger.Error("failed to find participant record", log.Error(err))
	}
	restapi.RespondJSON(rw, resp, logger)
}

type createUserResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	SlackID string `json:"slackId"`
}

func (h *Handler) createUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContextOrDisabled(ctx)
	sess, ok := h.requireSession(rw, r, logger)
	if !ok {
		return
	}
	slackID := SanitizeSlackID(sess.SlackID)
	if len(slackID) < MinSlackIDLength {
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageInvalidSlackID, logger)
		return
	}

	p, err := h.store.FindBySlackID(ctx, slackID)
	if err == nil {
		restapi.RespondJSON(rw, createUserResponse{Message: "User already exists", UserID: p.RecordID, SlackID: slackID}, logger)
		return
	}
	if !errors.Is(err, airtable.ErrNotFound) {
		logger.Error("failed to find participant record", log.Error(err))
		h.respondError(rw, http.StatusInternalServerError, restapi.ErrCodeInternal, ErrMessageCheckUserFailed, logger)
		return
	}

	// EnsureParticipant repeats the lookup, so concurrent createUser calls don't produce duplicates in most cases.
	p, _, err = h.store.EnsureParticipant(ctx, slackID)
	if err != nil {
		logger.Error("failed to create participant record", log.Error(err))
		h.respondError(rw, http.StatusInternalServerError, restapi.ErrCodeInternal, ErrMessageCreateUserFailed, logger)
		return
	}
	logger.Info("participant record created", log.String("slack_id", slackID), log.String("record_id", p.RecordID))
	restapi.RespondJSON(rw, createUserResponse{Message: "User created successfully", UserID: p.RecordID, SlackID: slackID}, logger)
}

type updateMinecraftAccountRequest struct {
	MinecraftUsername string `json:"minecraftUsername"`
}

type updateMinecraftAccountResponse struct {
	Message           string `json:"message"`
	MinecraftUsername string `json:"minecraftUsername"`
	RecordID          string `json:"recordId"`
}

func (h *Handler) updateMinecraftAccount(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContextOrDisabled(ctx)
	sess, ok := h.requireSession(rw, r, logger)
	if !ok {
		return
	}

	var req updateMinecraftAccountRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errorDomain, err, logger)
		return
	}
	if req.MinecraftUsername == "" {
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageUsernameRequired, logger)
		return
	}
	username := SanitizeMinecraftUsername(req.MinecraftUsername)
	if len(username) < MinMinecraftUsernameLength {
		h.respondError(rw, http.StatusBadRequest, restapi.ErrCodeBadRequest, ErrMessageUsernameTooShort, logger)
		return
	}

	p, err := h.store.FindBySlackID(ctx, SanitizeSlackID(sess.SlackID))
	if err != nil {
		if errors.Is(err, airtable.ErrNotFound) {
			h.respondError(rw, http.StatusNotFound, restapi.ErrCodeNotFound, ErrMessageRecordNotFound, logger)
			return
		}
		logger.Error("failed to find participant record", log.Error(err))
		h.respondError(rw, http.StatusInternalServerError, restapi.ErrCodeInternal, ErrMessageFindRecordFailed, logger)
		return
	}

	updated, err := h.store.UpdateMinecraftUsername(ctx, p.RecordID, username)
	if err != nil {
		logger.Error("failed to update minecraft username", log.String("record_id", p.RecordID), log.Error(err))
		h.respondError(rw, http.StatusInternalServerError, restapi.ErrCodeInternal, ErrMessageUpdateUsernameFailed, logger)
		return
	}
	restapi.RespondJSON(rw, updateMinecraftAccountResponse{
		Message:           "Minecraft username updated successfully",
		MinecraftUsername: username,
		RecordID:          updated.RecordID,
	}, logger)
}

func (h *Handler) requireSession(rw http.ResponseWriter, r *http.Request, logger log.FieldLogger) (session.Data, bool) {
	sess, err := h.sessions.FromRequest(r)
	if err == nil {
		return sess, true
	}
	if errors.Is(err, session.ErrNoSession) {
		h.respondError(rw, http.StatusUnauthorized, restapi.ErrCodeUnauthorized, ErrMessageNotAuthenticated, logger)
		return session.Data{}, false
	}
	logger.Warn("invalid session cookie", log.Error(err))
	h.respondError(rw, http.StatusUnauthorized, restapi.ErrCodeUnauthorized, ErrMessageInvalidSession, logger)
	return session.Data{}, false
}

func (h *Handler) respondError(rw http.ResponseWriter, status int, code, message string, logger log.FieldLogger) {
	restapi.RespondError(rw, status, restapi.NewError(h.errorDomain, code, message), logger)
}
