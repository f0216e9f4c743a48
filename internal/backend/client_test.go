package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_FolderShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/public/share/abc", r.URL.Path)
		w.Write([]byte(`{"name":"abc","path":"","is_dir":true,"items":[
			{"name":"a.jpg","path":"a.jpg","is_dir":false,"type":"image","size":100}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	result, err := c.List(context.Background(), "abc", "")
	require.NoError(t, err)
	assert.True(t, result.IsFolder())
	require.Len(t, result.Items, 1)
	assert.Equal(t, "a.jpg", result.Items[0].Name)
}

func TestList_SingleFileShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"clip.mp4","path":"clip.mp4","is_dir":false,"type":"video","size":5000}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	result, err := c.List(context.Background(), "abc", "")
	require.NoError(t, err)
	assert.False(t, result.IsFolder())
	assert.Equal(t, "clip.mp4", result.Name)
}

func TestList_NotFoundMapsTo404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.List(context.Background(), "missing", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateToken_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	err := c.ValidateToken(context.Background(), "bad-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid admin token")
}

func TestValidateToken_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	err := c.ValidateToken(context.Background(), "good-token")
	assert.NoError(t, err)
}

func TestDownloadZipURL(t *testing.T) {
	c := New("https://backend.example", 5*time.Second)
	assert.Equal(t, "https://backend.example/api/public/share/abc?download=1", c.DownloadZipURL("abc"))
}
