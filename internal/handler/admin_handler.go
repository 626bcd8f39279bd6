package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"realchat/internal/app/db"
	"realchat/internal/pkg/auth/jwt"
	"realchat/internal/pkg/errs"
	"realchat/internal/pkg/logx"
	"realchat/internal/pkg/req"
	"realchat/internal/pkg/resp"
)

// operator names the authenticated caller of a debug endpoint. Development
// serves /debug without a token.
func operator(r *http.Request) string {
	if payload := jwt.GetPayloadFromContext(r); payload != nil {
		return payload.Subject
	}
	return "anonymous"
}

// HandleSessionStatus reports the registry and directory view of one user.
func HandleSessionStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := deps.Admin.Status(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			logx.Error(err, "Session status lookup failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageUnavailable))
			return
		}

		resp.RespondSuccess(w, r, status)
	}
}

// HandleForceCleanup drops every session of a user without broadcasting.
func HandleForceCleanup(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")

		dropped, err := deps.Admin.ForceCleanup(r.Context(), username)
		if err != nil {
			logx.Error(err, "Force cleanup could not update the directory",
				"operator", operator(r), "username", username, "dropped_sessions", dropped)
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageUnavailable))
			return
		}

		logx.Info("Force cleanup requested", "operator", operator(r), "username", username, "dropped_sessions", dropped)

		resp.RespondSuccess(w, r, map[string]any{
			"username":        username,
			"droppedSessions": dropped,
		})
	}
}

// HandleResetAllUsers clears every persisted online flag.
func HandleResetAllUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Admin.ResetAllUsers(r.Context()); err != nil {
			logx.Error(err, "Reset of all users failed", "operator", operator(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageUnavailable))
			return
		}

		logx.Info("All users reset to offline", "operator", operator(r))

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleLogAllSessions dumps the registry to the log and returns the snapshot.
func HandleLogAllSessions(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Admin.LogAllActiveSessions(r.Context())
		if err != nil {
			// The snapshot was logged; only archiving failed.
			logx.Error(err, "Session snapshot archiving failed")
		}

		resp.RespondSuccess(w, r, snap)
	}
}

// CreateUserInput is the body of POST /debug/users.
type CreateUserInput struct {
	Username string `json:"username" validate:"required,min=1,max=64,excludesall=/ "`
}

// HandleCreateUser adds an offline user to the directory.
func HandleCreateUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateUserInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Users.Create(r.Context(), input.Username)
		if err != nil {
			if errors.Is(err, db.ErrUserExists) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserExists, input.Username))
				return
			}
			logx.Error(err, "User creation failed", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageUnavailable))
			return
		}

		logx.Info("User created", "operator", operator(r), "username", u.Username)
		resp.RespondSuccess(w, r, u)
	}
}
