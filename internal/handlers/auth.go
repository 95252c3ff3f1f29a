package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"taskmarket/internal/audit"
	"taskmarket/internal/auth"
	"taskmarket/internal/database"
	"taskmarket/internal/models"
)

type AuthHandler struct {
	db *database.DB
}

func NewAuthHandler(db *database.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var user models.User
	err := h.db.Get(&user, `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM users WHERE email = $1
	`, req.Email)
	if err != nil {
		audit.LogWithIP(audit.EventLoginFailed, req.Email, "", r.RemoteAddr, nil)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		audit.LogWithIP(audit.EventLoginFailed, user.ID.String(), "", r.RemoteAddr, nil)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(user.ID.String(), user.Email, user.Role)
	if err != nil {
		log.Printf("Failed to generate token: %v", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	audit.LogWithIP(audit.EventLogin, user.ID.String(), "", r.RemoteAddr, nil)
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		http.Error(w, "Valid email is required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		http.Error(w, "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		http.Error(w, "Failed to register", http.StatusInternalServerError)
		return
	}

	var user models.User
	err = h.db.Get(&user, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, 'user')
		RETURNING id, email, password_hash, role, created_at, updated_at
	`, req.Email, hash)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		log.Printf("Failed to create user: %v", err)
		http.Error(w, "Failed to register", http.StatusInternalServerError)
		return
	}

	audit.LogWithIP(audit.EventUserCreated, user.ID.String(), "", r.RemoteAddr, nil)

	token, err := auth.GenerateToken(user.ID.String(), user.Email, user.Role)
	if err != nil {
		log.Printf("Failed to generate token: %v", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, LoginResponse{Token: token, User: user})
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value("claims").(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	err := h.db.Get(&user, `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`, claims.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
