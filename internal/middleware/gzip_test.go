package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type payoutEcho struct {
	Amount float64 `json:"amount"`
	PixKey string  `json:"pix_key"`
}

func echoPayout(w http.ResponseWriter, r *http.Request) {
	var p payoutEcho
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestGzipMiddleware_DecodesRequestBody(t *testing.T) {
	body := gzipBytes(t, `{"amount": 150.5, "pix_key": "maria@example.com"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/affiliate/payouts", bytes.NewReader(body))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	GzipMiddleware(http.HandlerFunc(echoPayout)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got payoutEcho
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Amount != 150.5 || got.PixKey != "maria@example.com" {
		t.Fatalf("echo = %+v", got)
	}
}

func TestGzipMiddleware_RejectsBrokenGzip(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/affiliate/payouts", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	called := false
	GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if called {
		t.Fatalf("next handler must not run on a broken body")
	}
}

func TestGzipMiddleware_CompressesResponses(t *testing.T) {
	tests := []struct {
		name           string
		acceptEncoding string
		contentType    string
		wantGzip       bool
	}{
		{name: "json with gzip", acceptEncoding: "gzip", contentType: "application/json", wantGzip: true},
		{name: "json without gzip", acceptEncoding: "", contentType: "application/json", wantGzip: false},
		{name: "binary is left alone", acceptEncoding: "gzip", contentType: "image/png", wantGzip: false},
	}

	payload := strings.Repeat(`{"status":"requested","amount":40.5}`, 50)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, payload)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/affiliate/payouts", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			gotGzip := rec.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v", gotGzip, tt.wantGzip)
			}

			var r io.Reader = rec.Body
			if gotGzip {
				zr, err := gzip.NewReader(rec.Body)
				if err != nil {
					t.Fatalf("gzip reader: %v", err)
				}
				defer zr.Close()
				r = zr
			}
			data, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(data) != payload {
				t.Fatalf("body mismatch: got %d bytes, want %d", len(data), len(payload))
			}
		})
	}
}
