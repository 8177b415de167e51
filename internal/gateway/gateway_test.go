package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rekadana/opname/internal/config"
	"github.com/rekadana/opname/internal/errs"
	"github.com/rekadana/opname/internal/model"
)

func newClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.APIConfig{
		BaseURL:  srv.URL,
		APIPath:  "/api/v1",
		AuthPath: "/auth",
		MainPath: "/so",
		Timeout:  5 * time.Second,
	}, nil)
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/users/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "rahasia123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "username atau password salah"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "tok-1",
			"user":  model.UserProfile{ID: "u-1", Username: body["username"]},
		})
	})
	c, _ := newClient(t, mux)

	res, err := c.Login(context.Background(), "budi", "rahasia123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, "budi", res.User.Username)

	_, err = c.Login(context.Background(), "budi", "salah")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	assert.Contains(t, err.Error(), "username atau password salah")
}

func TestLoginMissingToken(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/users/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": model.UserProfile{ID: "u-1"}})
	})
	c, _ := newClient(t, mux)

	_, err := c.Login(context.Background(), "budi", "x")
	var be *errs.BackendError
	require.ErrorAs(t, err, &be)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/so/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer fresh":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": model.UserProfile{Username: "budi"}})
		case "Bearer stale":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": "tok-2", "user": model.UserProfile{Username: "budi"}})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token tidak valid"})
		}
	})
	c, _ := newClient(t, mux)

	res, err := c.ValidateToken(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Empty(t, res.Token, "still-valid responses carry no token")

	res, err = c.ValidateToken(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", res.Token)

	_, err = c.ValidateToken(context.Background(), "bad")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestListDrafts(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/so/records/drafts", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["office"] != "OFC1" {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "tidak ada draft"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []model.DraftRecord{
			{NoRefSO: "SO-001", TglSO: "2024-01-01", ItemsSO: 10, PersentaseSO: "40%"},
		}})
	})
	c, _ := newClient(t, mux)

	drafts, err := c.ListDrafts(context.Background(), "OFC1", "DPT1", "tok")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "SO-001", drafts[0].NoRefSO)
	assert.Equal(t, "40%", drafts[0].PersentaseSO)

	_, err = c.ListDrafts(context.Background(), "OTHER", "DPT1", "tok")
	var be *errs.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "tidak ada draft", be.Message)
}

func TestCheckItemEmptyResult(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/so/records/process", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []model.ItemRecord{}})
	})
	c, _ := newClient(t, mux)

	items, err := c.CheckItem(context.Background(), "SO-001", "UNKNOWN", "tok")
	require.NoError(t, err)
	assert.Empty(t, items, "unknown serial must come back as an empty slice, not an error")
}

func TestSaveItem(t *testing.T) {
	t.Parallel()
	var gotPath string
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/so/records/process/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]int{"saved": 5}})
	})
	c, _ := newClient(t, mux)

	req := model.SaveItemRequest{
		NoRef:       "SO-001",
		ItemID:      "BRG-1",
		Serial:      "SN123",
		ConditionID: "K1",
		Location:    "Gudang A",
		Username:    "budi",
	}
	require.NoError(t, c.SaveItem(context.Background(), req, "tok"))
	assert.Equal(t, "/api/v1/so/records/process/SO-001", gotPath)
	assert.Equal(t, "BRG-1", gotBody["nocode"])
	assert.Nil(t, gotBody["photo"], "photo must be explicit null when absent")
}

func TestListConditions(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/master/kondisi", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "kondisi": []model.ConditionCode{
			{IDKondisi: "K1", NameKondisi: "Baik"},
		}})
	})
	c, _ := newClient(t, mux)

	codes, err := c.ListConditions(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "Baik", codes[0].NameKondisi)
}

func TestUploadLog(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(logPath, []byte("line1\nline2\n"), 0o600))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/help/upload-log", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "disk penuh", r.FormValue("message"))
		assert.NotEmpty(t, r.FormValue("platform"))
		assert.NotEmpty(t, r.FormValue("timestamp"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c, _ := newClient(t, mux)

	require.NoError(t, c.UploadLog(context.Background(), "disk penuh", logPath, "tok"))
}

func TestTransportError(t *testing.T) {
	t.Parallel()
	c, srv := newClient(t, http.NewServeMux())
	srv.Close()

	_, err := c.Login(context.Background(), "budi", "x")
	assert.ErrorIs(t, err, errs.ErrTransport)
}

func TestStructuredErrorBodyPreferred(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/so/records/drafts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]string{"message": "database down"},
		})
	})
	c, _ := newClient(t, mux)

	_, err := c.ListDrafts(context.Background(), "OFC1", "DPT1", "tok")
	var be *errs.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "database down", be.Message)
}

func TestTimeoutSurfacesAsTransport(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/users/login", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"token": "late"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(config.APIConfig{
		BaseURL:  srv.URL,
		APIPath:  "/api/v1",
		AuthPath: "/auth",
		MainPath: "/so",
		Timeout:  50 * time.Millisecond,
	}, nil)

	_, err := c.Login(context.Background(), "budi", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
}
