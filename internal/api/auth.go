package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/handson"
	"github.com/MrEthical07/handson/cache"
)

const (
	msgRegistrationFailed = "User registration failed"
	msgInvalidLogin       = "Invalid username or password"
	msgInvalidBody        = "Invalid request body"
	msgInternal           = "Internal server error"
)

type registerRequest struct {
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirmPassword"`
	Roles           []string `json:"roles,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	_, err := s.Auth.Register(r.Context(), handson.RegisterRequest{
		Username:        strings.TrimSpace(body.Username),
		Email:           strings.TrimSpace(body.Email),
		Password:        body.Password,
		ConfirmPassword: body.ConfirmPassword,
		Roles:           body.Roles,
	})
	if err != nil {
		if handson.IsRegistrationRejection(err) {
			writeMessage(w, http.StatusBadRequest, msgRegistrationFailed)
			return
		}
		s.Logger.Error("registration failed", "error", err, "request_id", handson.RequestIDFromContext(r.Context()))
		writeMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}

	if err := s.Cache.Delete(r.Context(), cache.KeyAllUsers); err != nil {
		s.Logger.Warn("cache invalidate failed", "key", cache.KeyAllUsers, "error", err)
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(body.Username) == "" {
		writeMessage(w, http.StatusBadRequest, "Username is required")
		return
	}
	if body.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Password is required")
		return
	}

	res, err := s.Auth.Login(r.Context(), handson.LoginRequest{
		Username: strings.TrimSpace(body.Username),
		Password: body.Password,
	})
	if err != nil {
		if errors.Is(err, handson.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, msgInvalidLogin)
			return
		}
		s.Logger.Error("login failed", "error", err, "request_id", handson.RequestIDFromContext(r.Context()))
		writeMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt})
}
