package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shineum/http-email/internal/credential"
	"github.com/shineum/http-email/internal/directory"
	"github.com/shineum/http-email/internal/handler"
	"github.com/shineum/http-email/internal/metrics"
	"github.com/shineum/http-email/internal/provider"
	"github.com/shineum/http-email/internal/request"
)

// fakeInvoker returns a fixed result and records the params it received.
type fakeInvoker struct {
	mu     sync.Mutex
	err    error
	params []request.Params
}

func (f *fakeInvoker) Handle(_ context.Context, params request.Params) (handler.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)

	out := handler.Outcome{InvocationID: "inv-1", State: handler.StateSent, Kind: handler.Classify(f.err)}
	if f.err != nil {
		out.State = handler.StateFailed
	}
	return out, f.err
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{}
	srv := New(Config{Invoker: inv})

	req := httptest.NewRequest(http.MethodPost, "/api/HttpEmail?user=alerts",
		strings.NewReader(`{"recipients":"ops@x.com","subject":"Down"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
		t.Errorf("body: got %q, want %q", got, "{}")
	}
	if got := rec.Header().Get(InvocationHeader); got != "inv-1" {
		t.Errorf("%s: got %q, want %q", InvocationHeader, got, "inv-1")
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type: got %q", got)
	}

	if len(inv.params) != 1 {
		t.Fatalf("invocations: got %d, want 1", len(inv.params))
	}
	p := inv.params[0]
	if p[request.ParamUser] != "alerts" || p[request.ParamRecipients] != "ops@x.com" || p[request.ParamSubject] != "Down" {
		t.Errorf("params: got %v", p)
	}
}

func TestSend_RoutesAndMethods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{method: http.MethodGet, path: "/api/HttpEmail?user=a&recipients=b@x.com", want: http.StatusOK},
		{method: http.MethodPost, path: "/api/HttpEmail", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/send?user=a&recipients=b@x.com", want: http.StatusOK},
		{method: http.MethodPost, path: "/api/send", want: http.StatusOK},
		{method: http.MethodDelete, path: "/api/HttpEmail", want: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/api/unknown", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()

			srv := New(Config{Invoker: &fakeInvoker{}})
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSend_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "missing field",
			err:        &request.MissingFieldError{Field: "recipients"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    `required field "recipients" is missing`,
		},
		{
			name:       "unknown user",
			err:        &directory.NotFoundError{User: "ghost"},
			wantStatus: http.StatusNotFound,
			wantMsg:    "ghost",
		},
		{
			name:       "ambiguous user",
			err:        &directory.AmbiguousError{User: "alerts", Count: 2},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "alerts",
		},
		{
			name:       "credential unavailable",
			err:        &credential.UnavailableError{Ref: "alerts-pw", Err: errors.New("forbidden")},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "alerts-pw",
		},
		{
			name:       "delivery failed",
			err:        &provider.DeliveryError{Stage: provider.StageAuth, Err: errors.New("535 authentication failed")},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "delivery failed at auth",
		},
		{
			name:       "directory unavailable",
			err:        &handler.DirectoryError{Source: "azurefile://email-app/emails.json", Err: errors.New("403")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "azurefile://email-app/emails.json",
		},
		{
			name:       "unexpected",
			err:        errors.New("nil pointer somewhere"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := New(Config{Invoker: &fakeInvoker{err: tt.err}})
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/HttpEmail", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}

			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
			}
			if !strings.Contains(body.Error, tt.wantMsg) {
				t.Errorf("error: got %q, want it to contain %q", body.Error, tt.wantMsg)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := New(Config{Invoker: &fakeInvoker{}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("body: got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	srv := New(Config{Invoker: &fakeInvoker{}, Gatherer: reg})
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `http_email_http_requests_total{method="GET",route="/healthz",status="200"}`) {
		t.Errorf("metrics output missing healthz request counter:\n%s", body)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind handler.Kind
		want int
	}{
		{kind: handler.KindNone, want: http.StatusOK},
		{kind: handler.KindMissingField, want: http.StatusBadRequest},
		{kind: handler.KindNotFound, want: http.StatusNotFound},
		{kind: handler.KindAmbiguous, want: http.StatusInternalServerError},
		{kind: handler.KindCredential, want: http.StatusBadGateway},
		{kind: handler.KindDelivery, want: http.StatusBadGateway},
		{kind: handler.KindDirectory, want: http.StatusInternalServerError},
		{kind: handler.KindInternal, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			if got := StatusFor(tt.kind); got != tt.want {
				t.Errorf("StatusFor(%q): got %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestListenAndServe_GracefulShutdown(t *testing.T) {
	t.Parallel()

	srv := New(Config{ListenAddr: "127.0.0.1:0", Invoker: &fakeInvoker{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		addr = srv.Addr()
	}
	if addr == "" {
		t.Fatal("server did not start listening")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
