package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/handson"
	"github.com/MrEthical07/handson/cache"
	"github.com/MrEthical07/handson/middleware"
)

// Profile is the public view of a user.
type Profile struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

func toProfile(u handson.UserRecord) Profile {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return Profile{ID: u.ID, Username: u.Username, Email: u.Email, Roles: roles, CreatedAt: u.CreatedAt}
}

func (s *server) listUsers(w http.ResponseWriter, r *http.Request) {
	var profiles []Profile
	if s.cacheGet(r.Context(), cache.KeyAllUsers, &profiles) {
		writeJSON(w, http.StatusOK, profiles)
		return
	}

	users, err := s.Users.List(r.Context())
	if err != nil {
		s.Logger.Error("list users failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}
	profiles = make([]Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, toProfile(u))
	}
	s.cacheSet(r.Context(), cache.KeyAllUsers, profiles)
	writeJSON(w, http.StatusOK, profiles)
}

func (s *server) userByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	s.writeProfile(w, r, id)
}

func (s *server) profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.writeProfile(w, r, id)
}

func (s *server) writeProfile(w http.ResponseWriter, r *http.Request, id int64) {
	key := cache.UserKey(id)
	var p Profile
	if s.cacheGet(r.Context(), key, &p) {
		writeJSON(w, http.StatusOK, p)
		return
	}

	u, err := s.Users.FindByID(r.Context(), id)
	if errors.Is(err, handson.ErrUserNotFound) {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.Logger.Error("find user failed", "user_id", id, "error", err)
		writeMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}
	p = toProfile(u)
	s.cacheSet(r.Context(), key, p)
	writeJSON(w, http.StatusOK, p)
}

// Cache faults are logged and treated as misses.
func (s *server) cacheGet(ctx context.Context, key string, dst any) bool {
	ok, err := s.Cache.Get(ctx, key, dst)
	if err != nil {
		s.Logger.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *server) cacheSet(ctx context.Context, key string, v any) {
	if err := s.Cache.Set(ctx, key, v, s.CacheTTL); err != nil {
		s.Logger.Warn("cache set failed", "key", key, "error", err)
	}
}
