package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miladsoleymani/eventcast/auth"
	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

func TestHTTPAuthorizer(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(error) bool
		want    core.Auth
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"auth":"key:sig","channel_data":"{\"user_id\":1}"}`,
			want:   core.Auth{Token: "key:sig", ChannelData: `{"user_id":1}`},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   "nope",
			wantErr: func(err error) bool {
				var ae *core.AuthorizationError
				return errors.As(err, &ae) && ae.Status == http.StatusForbidden && ae.Channel == "private-orders"
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			wantErr: func(err error) bool {
				var ae *core.AuthorizationError
				return errors.As(err, &ae)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			wantErr: func(err error) bool {
				var te *core.TransportError
				return errors.As(err, &te)
			},
		},
		{
			name:   "bad json",
			status: http.StatusOK,
			body:   "<html>",
			wantErr: func(err error) bool {
				var te *core.TransportError
				return errors.As(err, &te)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := auth.NewHTTPAuthorizer(broadcaster.AuthConfig{Endpoint: srv.URL}, srv.Client())
			got, err := a.Authorize(context.Background(), "1.2", "private-orders")
			if tt.wantErr != nil {
				if err == nil || !tt.wantErr(err) {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("authorize: %v", err)
			}
			if got != tt.want {
				t.Errorf("auth = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHTTPAuthorizer_Request(t *testing.T) {
	var (
		form   map[string]string
		header http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{
			"socket_id":    r.PostForm.Get("socket_id"),
			"channel_name": r.PostForm.Get("channel_name"),
			"team":         r.PostForm.Get("team"),
		}
		header = r.Header.Clone()
		_, _ = w.Write([]byte(`{"auth":"x"}`))
	}))
	defer srv.Close()

	a := auth.NewHTTPAuthorizer(broadcaster.AuthConfig{
		Endpoint:  srv.URL,
		Headers:   map[string]string{"Authorization": "Bearer t"},
		Params:    map[string]string{"team": "blue", "socket_id": "spoofed"},
		CSRFToken: "csrf",
	}, nil)
	if _, err := a.Authorize(context.Background(), "9.9", "presence-room"); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	if form["socket_id"] != "9.9" || form["channel_name"] != "presence-room" || form["team"] != "blue" {
		t.Errorf("form = %v", form)
	}
	if header.Get("Authorization") != "Bearer t" || header.Get("X-CSRF-TOKEN") != "csrf" {
		t.Errorf("headers = %v", header)
	}
}

func TestCached(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	next := core.AuthorizerFunc(func(_ context.Context, socketID, channel string) (core.Auth, error) {
		calls.Add(1)
		<-release
		return core.Auth{Token: socketID + ":" + channel}, nil
	})

	a, err := auth.Cached(next, time.Minute)
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.Authorize(context.Background(), "s", "private-a")
			if err != nil || got.Token != "s:private-a" {
				t.Errorf("authorize = %+v, %v", got, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if _, err := a.Authorize(context.Background(), "s", "private-a"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}

	a.Forget("s", "private-a")
	if _, err := a.Authorize(context.Background(), "s", "private-a"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("upstream calls after forget = %d, want 2", n)
	}
}

func TestCached_FailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	next := core.AuthorizerFunc(func(context.Context, string, string) (core.Auth, error) {
		calls.Add(1)
		return core.Auth{}, &core.AuthorizationError{Channel: "private-a", Status: 403}
	})

	a, err := auth.Cached(next, time.Minute)
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	defer a.Close()

	for range 2 {
		if _, err := a.Authorize(context.Background(), "s", "private-a"); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
}
