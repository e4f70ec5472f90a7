package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listRequest struct {
	Path    string `json:"path"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Refresh bool   `json:"refresh"`
}

func writeListPage(w http.ResponseWriter, entries []Entry, total int) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    200,
		"message": "success",
		"data": map[string]interface{}{
			"content": entries,
			"total":   total,
		},
	})
}

func TestListAllDirsPagination(t *testing.T) {
	// 250 entries across three pages; every second entry is a file.
	const total = 250
	var requests []listRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/fs/list", r.URL.Path)
		var req listRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		start := (req.Page - 1) * req.PerPage
		var entries []Entry
		for i := start; i < start+req.PerPage && i < total; i++ {
			entries = append(entries, Entry{
				Name:  fmt.Sprintf("entry-%03d", i),
				IsDir: i%2 == 0,
			})
		}
		writeListPage(w, entries, total)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "")
	dirs, err := c.ListAllDirs(context.Background(), "/media")
	require.NoError(t, err)

	assert.Len(t, dirs, 125)
	assert.Equal(t, "entry-000", dirs[0])
	assert.Equal(t, "entry-248", dirs[len(dirs)-1])

	require.Len(t, requests, 3)
	for i, req := range requests {
		assert.Equal(t, "/media", req.Path)
		assert.Equal(t, i+1, req.Page)
		assert.Equal(t, 100, req.PerPage)
		assert.True(t, req.Refresh)
	}
}

func TestListAllDirsEmptyRoot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeListPage(w, nil, 0)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "")
	dirs, err := c.ListAllDirs(context.Background(), "/media")
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestListRemoteErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    500,
			"message": "object not found",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "")
	_, err := c.ListAllDirs(context.Background(), "/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object not found")
	assert.Contains(t, err.Error(), "/missing")
}

func TestLoginTokenIsSentOnList(t *testing.T) {
	var listAuth string
	logins := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			logins++
			var creds map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "admin", creds["username"])
			assert.Equal(t, "secret", creds["password"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    200,
				"message": "success",
				"data":    map[string]string{"token": "tok-123"},
			})
		case "/api/fs/list":
			listAuth = r.Header.Get("Authorization")
			writeListPage(w, []Entry{{Name: "Movies", IsDir: true}}, 1)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, "admin", "secret")
	dirs, err := c.ListAllDirs(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, []string{"Movies"}, dirs)
	assert.Equal(t, "tok-123", listAuth)
	assert.Equal(t, 1, logins)
}

func TestLoginFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    401,
			"message": "name or password incorrect",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "admin", "wrong")
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name or password incorrect")
}

func TestAnonymousListSkipsLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/fs/list", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeListPage(w, []Entry{{Name: "Shared", IsDir: true}}, 1)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "")
	dirs, err := c.ListAllDirs(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Shared"}, dirs)
}
