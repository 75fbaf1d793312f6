package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankpilot/rankpilot/internal/userstore"
)

func createUser(t *testing.T, ts *httptest.Server, email string) userstore.User {
	t.Helper()
	resp := postJSON(t, ts.URL+"/users", map[string]any{
		"email":     email,
		"password":  "s3cret-pass",
		"full_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var u userstore.User
	decodeBody(t, resp, &u)
	return u
}

func TestCreateUser(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())

	u := createUser(t, ts, "alice@example.com")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Test User", u.FullName)
	assert.True(t, u.IsActive)
	assert.Empty(t, u.HashedPassword, "password hash must never be serialized")
}

func TestCreateUserValidation(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())

	resp := postJSON(t, ts.URL+"/users", map[string]any{"email": "not-an-email", "password": "s3cret-pass"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/users", map[string]any{"email": "alice@example.com", "password": "short"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateUserDuplicate(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())

	createUser(t, ts, "alice@example.com")
	resp := postJSON(t, ts.URL+"/users", map[string]any{
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetUser(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())
	u := createUser(t, ts, "alice@example.com")

	resp, err := http.Get(fmt.Sprintf("%s/users/%d", ts.URL, u.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got userstore.User
	decodeBody(t, resp, &got)
	assert.Equal(t, u.ID, got.ID)

	resp, err = http.Get(ts.URL + "/users/404")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListUsers(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		createUser(t, ts, e)
	}

	resp, err := http.Get(ts.URL + "/users")
	require.NoError(t, err)
	var all userListResponse
	decodeBody(t, resp, &all)
	assert.Equal(t, 3, all.Count)
	require.Len(t, all.Data, 3)

	resp, err = http.Get(ts.URL + "/users?skip=1&limit=1")
	require.NoError(t, err)
	var page userListResponse
	decodeBody(t, resp, &page)
	assert.Equal(t, 3, page.Count)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "b@example.com", page.Data[0].Email)
}

func TestUpdateUser(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())
	u := createUser(t, ts, "alice@example.com")

	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/users/%d", ts.URL, u.ID),
		jsonReader(t, map[string]any{"full_name": "Alice Liddell", "is_active": false}))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got userstore.User
	decodeBody(t, resp, &got)
	assert.Equal(t, "Alice Liddell", got.FullName)
	assert.False(t, got.IsActive)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestDeleteUser(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())
	u := createUser(t, ts, "alice@example.com")

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/users/%d", ts.URL, u.ID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(fmt.Sprintf("%s/users/%d", ts.URL, u.ID))
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestAuthenticateUser(t *testing.T) {
	ts := newTestServer(t, &stubSearch{}, &stubRunner{}, newMemStore())
	u := createUser(t, ts, "alice@example.com")

	resp := postJSON(t, ts.URL+"/users/authenticate", map[string]any{
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got userstore.User
	decodeBody(t, resp, &got)
	assert.Equal(t, u.ID, got.ID)

	resp = postJSON(t, ts.URL+"/users/authenticate", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/users/authenticate", map[string]any{
		"email":    "nobody@example.com",
		"password": "s3cret-pass",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
