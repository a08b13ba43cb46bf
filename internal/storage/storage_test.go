package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)), nil))
	return buf.Bytes()
}

func TestDecodeImagePayload(t *testing.T) {
	pngData := pngBytes(t)
	jpegData := jpegBytes(t)
	std := base64.StdEncoding.EncodeToString(pngData)

	tests := []struct {
		name     string
		payload  string
		wantType string
		wantData []byte
		wantErr  error
	}{
		{"raw base64 png", std, "image/png", pngData, nil},
		{"data url png", "data:image/png;base64," + std, "image/png", pngData, nil},
		{"data url lies about type", "data:image/png;base64," + base64.StdEncoding.EncodeToString(jpegData), "image/jpeg", jpegData, nil},
		{"url-safe base64", base64.RawURLEncoding.EncodeToString(jpegData), "image/jpeg", jpegData, nil},
		{"wrapped lines", std[:10] + "\n" + std[10:], "image/png", pngData, nil},
		{"gif", base64.StdEncoding.EncodeToString([]byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")), "image/gif", nil, nil},
		{"empty", "   ", "", nil, ErrEmptyImage},
		{"empty data url", "data:image/png;base64,", "", nil, ErrEmptyImage},
		{"not base64", "***", "", nil, ErrInvalidEncoding},
		{"data url without base64 marker", "data:image/png,abc", "", nil, ErrInvalidEncoding},
		{"text file", base64.StdEncoding.EncodeToString([]byte("hello world")), "", nil, ErrUnsupportedImage},
		{"pdf", base64.StdEncoding.EncodeToString([]byte("%PDF-1.7\n%âãÏÓ\n")), "", nil, ErrUnsupportedImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, contentType, err := DecodeImagePayload(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, contentType)
			if tt.wantData != nil {
				assert.Equal(t, tt.wantData, data)
			}
		})
	}
}

func TestObjectName(t *testing.T) {
	now := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)

	name := objectName(now, "image/webp")
	assert.True(t, strings.HasPrefix(name, "analyses/2026/03/04/"), name)
	assert.True(t, strings.HasSuffix(name, ".webp"), name)
	assert.NotEqual(t, name, objectName(now, "image/webp"))
	assert.True(t, strings.HasSuffix(objectName(now, "application/octet-stream"), ".bin"))
}

func TestDiskStoreUploadAndServe(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "http://localhost:8080/images/")
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	data := pngBytes(t)
	url, err := store.Upload(context.Background(), data, "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/images/analyses/2026/10/19/"), url)

	rel := strings.TrimPrefix(url, "http://localhost:8080/images/")
	onDisk, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	srv := httptest.NewServer(http.StripPrefix("/images", store.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/images/" + rel)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, data, body)

	listing, err := http.Get(srv.URL + "/images/analyses/")
	require.NoError(t, err)
	listing.Body.Close()
	assert.Equal(t, http.StatusNotFound, listing.StatusCode, "directory listings stay hidden")
}

func TestDiskStoreRejectsEmptyAndCanceled(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/images")
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), nil, "image/png")
	assert.ErrorIs(t, err, ErrEmptyImage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Upload(ctx, []byte{1}, "image/png")
	assert.ErrorIs(t, err, context.Canceled)
}

func newTestAzureClient(t *testing.T, serverURL string) *azblob.Client {
	t.Helper()
	client, err := azblob.NewClientWithNoCredential(serverURL+"/", &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	})
	require.NoError(t, err)
	return client
}

func TestAzureStoreUpload(t *testing.T) {
	data := jpegBytes(t)
	var gotPath, gotType, gotBlobType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotType = r.Header.Get("x-ms-blob-content-type")
		gotBlobType = r.Header.Get("x-ms-blob-type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	store := NewAzureStoreWithClient(newTestAzureClient(t, server.URL), "faces")
	url, err := store.Upload(context.Background(), data, "image/jpeg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/faces/analyses/"), gotPath)
	assert.True(t, strings.HasSuffix(gotPath, ".jpg"), gotPath)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, "BlockBlob", gotBlobType)
	assert.Equal(t, data, gotBody)
	assert.True(t, strings.HasPrefix(url, server.URL+"/faces/analyses"), url)
}

func TestAzureStorePublicBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	store := NewAzureStoreWithClient(newTestAzureClient(t, server.URL), "faces").
		WithPublicBaseURL("https://cdn.example.com/faces/")

	url, err := store.Upload(context.Background(), pngBytes(t), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/faces/analyses/"), url)
}

func TestAzureStoreUploadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-error-code", "AuthorizationFailure")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := NewAzureStoreWithClient(newTestAzureClient(t, server.URL), "faces")
	_, err := store.Upload(context.Background(), []byte{1, 2, 3}, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload failed")

	_, err = store.Upload(context.Background(), nil, "image/png")
	assert.True(t, errors.Is(err, ErrEmptyImage))
}

func TestAzureStoreEnsureContainer(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "container", r.URL.Query().Get("restype"))
		if calls == 1 {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.Header().Set("x-ms-error-code", "ContainerAlreadyExists")
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	store := NewAzureStoreWithClient(newTestAzureClient(t, server.URL), "faces")
	require.NoError(t, store.EnsureContainer(context.Background()))
	require.NoError(t, store.EnsureContainer(context.Background()))
	assert.Equal(t, 2, calls)
}
