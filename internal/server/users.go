package server

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/internal/userstore"
)

const minPasswordLen = 8

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	IsSuperuser bool   `json:"is_superuser"`
}

type updateUserRequest struct {
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	FullName    *string `json:"full_name"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userListResponse struct {
	Data  []*userstore.User `json:"data"`
	Count int               `json:"count"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 100)

	users, err := s.deps.Users.List(r.Context(), skip, limit)
	if err != nil {
		s.userError(w, err, "list users")
		return
	}
	total, err := s.deps.Users.Count(r.Context())
	if err != nil {
		s.userError(w, err, "count users")
		return
	}
	if users == nil {
		users = []*userstore.User{}
	}
	writeJSON(w, http.StatusOK, userListResponse{Data: users, Count: total})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "email is not a valid address")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	u, err := s.deps.Users.Create(r.Context(), req.Email, req.FullName, req.Password, req.IsSuperuser)
	if err != nil {
		s.userError(w, err, "create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := s.deps.Users.GetByID(r.Context(), id)
	if err != nil {
		s.userError(w, err, "get user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email != nil {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "email is not a valid address")
			return
		}
	}
	if req.Password != nil && len(*req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	u, err := s.deps.Users.Update(r.Context(), id, userstore.Update{
		Email:       req.Email,
		FullName:    req.FullName,
		Password:    req.Password,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		s.userError(w, err, "update user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Users.Delete(r.Context(), id); err != nil {
		s.userError(w, err, "delete user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	u, err := s.deps.Users.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, u)
	case errors.Is(err, userstore.ErrNotFound), errors.Is(err, userstore.ErrInvalidCredentials):
		// Unknown email and wrong password are indistinguishable on purpose.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		s.userError(w, err, "authenticate")
	}
}

// userError maps store sentinels to HTTP statuses.
func (s *Server) userError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, userstore.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already registered")
	default:
		s.logger.Error("user store failure", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
