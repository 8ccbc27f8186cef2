package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "anon-key", 2*time.Second)
}

func TestSignInWithPassword(t *testing.T) {
	userID := uuid.New()
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@safimatch.app", body["email"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_in":    3600,
			"user":          map[string]interface{}{"id": userID, "email": body["email"]},
		})
	})

	session, err := client.SignInWithPassword(context.Background(), "ana@safimatch.app", "segredo")
	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)
	assert.Equal(t, userID, session.User.ID)
}

func TestSignUpWithoutSession(t *testing.T) {
	userID := uuid.New()
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"nome": "Ana"}, body["data"])

		json.NewEncoder(w).Encode(map[string]interface{}{"id": userID, "email": "ana@safimatch.app"})
	})

	res, err := client.SignUp(context.Background(), "ana@safimatch.app", "segredo", map[string]interface{}{"nome": "Ana"})
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.Equal(t, userID, res.User.ID)
}

func TestErrorDecoding(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"msg", `{"code":400,"msg":"User already registered"}`, "User already registered"},
		{"oauth", `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, "Invalid login credentials"},
		{"empty", ``, "Bad Request"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tc.body))
			})

			_, err := client.SignInWithPassword(context.Background(), "x@y.z", "123")
			var gerr *Error
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)
			assert.Equal(t, tc.want, gerr.Message)
		})
	}
}

func TestSignOutUsesAccessToken(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logout", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.SignOut(context.Background(), "user-token"))
}

func TestListUsers(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/users", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"users":[{"id":"` + uuid.NewString() + `","email":"bia@safimatch.app"}]}`))
	}).WithAPIKey("service-key")

	users, err := client.ListUsers(context.Background(), 2, 50)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bia@safimatch.app", users[0].Email)
}
