package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// credentialsRequest is the body of both register and login requests.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is returned on successful register and login.
type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the account HTTP endpoints.
type Handler struct {
	store  *Store
	tokens *TokenService
	logger *zap.Logger
}

// NewHandler creates the auth HTTP handler.
//
// Precondition: store, tokens, and logger must be non-nil.
func NewHandler(store *Store, tokens *TokenService, logger *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

// Register mounts the auth routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	acct, err := h.store.Register(req.Username, req.Password)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrAccountExists) {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	token, err := h.tokens.Issue(acct.Username)
	if err != nil {
		h.logger.Error("issuing token", zap.String("username", acct.Username), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "issuing token"})
		return
	}

	h.logger.Info("account registered", zap.String("username", acct.Username))
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, Username: acct.Username})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	acct, err := h.store.Authenticate(req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: ErrInvalidCredentials.Error()})
		return
	}

	token, err := h.tokens.Issue(acct.Username)
	if err != nil {
		h.logger.Error("issuing token", zap.String("username", acct.Username), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "issuing token"})
		return
	}

	h.logger.Info("account logged in", zap.String("username", acct.Username))
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, Username: acct.Username})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
