package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specPath = "../../api/openapi/openapi.yaml"

func newRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, "http://127.0.0.1:8080"+target, nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestOpenAPIValidator_CheckRequest(t *testing.T) {
	v, err := LoadOpenAPIValidator(specPath)
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		wantErr bool
	}{
		{"subscribe", http.MethodPost, "/subscribe", `{"email":"a@x.com","category":"sports"}`, false},
		{"subscribe without category", http.MethodPost, "/subscribe", `{"email":"a@x.com"}`, true},
		{"unsubscribe with numeric email", http.MethodDelete, "/unsubscribe", `{"email":1,"category":"sports"}`, true},
		{"subscriptions", http.MethodGet, "/subscriptions?email=a@x.com&history=true", "", false},
		{"subscriptions without email", http.MethodGet, "/subscriptions", "", true},
		{"subscriptions with bad history", http.MethodGet, "/subscriptions?email=a@x.com&history=maybe", "", true},
		{"undocumented route", http.MethodGet, "/nope", "", true},
		{"health probe", http.MethodGet, "/healthz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.CheckRequest(newRequest(t, tt.method, tt.target), []byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpenAPIValidator_CheckResponse(t *testing.T) {
	v, err := LoadOpenAPIValidator(specPath)
	require.NoError(t, err)

	header := http.Header{"Content-Type": []string{"application/json"}}
	req := newRequest(t, http.MethodPost, "/subscribe")

	ok := `{"data":{"id":"0190b7a4-5c3e-7b8a-9d2f-1a2b3c4d5e6f","email":"a@x.com","category":"sports","created_at":"2026-01-02T03:04:05Z"}}`
	assert.NoError(t, v.CheckResponse(req, http.StatusOK, header, []byte(ok)))

	assert.NoError(t, v.CheckResponse(req, http.StatusBadRequest, header,
		[]byte(`{"error":{"message":"invalid email address"}}`)))

	assert.Error(t, v.CheckResponse(req, http.StatusOK, header, []byte(`{"data":{"email":"a@x.com"}}`)))
	assert.Error(t, v.CheckResponse(req, http.StatusTeapot, header, []byte(`{}`)))
}
