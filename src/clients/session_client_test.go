package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"userId": "user-1",
		"exp":    time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("client-test-key"))
	require.NoError(t, err)
	return token
}

type authStub struct {
	mu          sync.Mutex
	valid       bool
	renewCalls  int32
	accessToken string
	refresh     string
}

func (s *authStub) handler(t *testing.T, protected http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/check-session", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := s.valid
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]bool{"valid": valid},
		})
	})
	mux.HandleFunc("/api/v1/auth/renew-session", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.renewCalls, 1)
		s.mu.Lock()
		valid := s.valid
		access, refresh := s.accessToken, s.refresh
		s.mu.Unlock()
		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Renewals are slow enough that concurrent callers overlap.
		time.Sleep(20 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]string{
				"accessToken":  access,
				"refreshToken": refresh,
			},
		})
	})
	if protected != nil {
		mux.HandleFunc("/api/v1/budget", protected)
	}
	return mux
}

func TestDoAttachesAuthorization(t *testing.T) {
	var gotHeader string
	stub := &authStub{valid: true}
	server := httptest.NewServer(stub.handler(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSessionClient(server.URL, 5*time.Second)
	access := signTestToken(t, time.Hour)
	client.SetTokens(access, signTestToken(t, 7*24*time.Hour))

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/budget", nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer "+access, gotHeader)
	assert.EqualValues(t, 0, atomic.LoadInt32(&stub.renewCalls))
}

func TestDoRenewsBeforeExpiry(t *testing.T) {
	newAccess := signTestToken(t, time.Hour)
	stub := &authStub{
		valid:       true,
		accessToken: newAccess,
		refresh:     signTestToken(t, 7*24*time.Hour),
	}
	var gotHeader string
	server := httptest.NewServer(stub.handler(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSessionClient(server.URL, 5*time.Second)
	// Inside the two minute lookahead, so Do must renew first.
	client.SetTokens(signTestToken(t, 30*time.Second), signTestToken(t, 7*24*time.Hour))

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/budget", nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.EqualValues(t, 1, atomic.LoadInt32(&stub.renewCalls))
	assert.Equal(t, "Bearer "+newAccess, gotHeader)

	access, _ := client.Tokens()
	assert.Equal(t, newAccess, access)
}

func TestDoRetriesOnceAfter401(t *testing.T) {
	newAccess := signTestToken(t, time.Hour)
	stub := &authStub{
		valid:       true,
		accessToken: newAccess,
		refresh:     signTestToken(t, 7*24*time.Hour),
	}
	var calls int32
	server := httptest.NewServer(stub.handler(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSessionClient(server.URL, 5*time.Second)
	client.SetTokens(signTestToken(t, time.Hour), signTestToken(t, 7*24*time.Hour))

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/budget", nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&stub.renewCalls))
}

func TestConcurrentRenewalsCollapse(t *testing.T) {
	stub := &authStub{
		valid:       true,
		accessToken: signTestToken(t, time.Hour),
		refresh:     signTestToken(t, 7*24*time.Hour),
	}
	server := httptest.NewServer(stub.handler(t, nil))
	defer server.Close()

	client := NewSessionClient(server.URL, 5*time.Second)
	client.SetTokens(signTestToken(t, 30*time.Second), signTestToken(t, 7*24*time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, client.Renew(context.Background()))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&stub.renewCalls))
}

func TestExpiredSessionFiresCallbackAndClearsTokens(t *testing.T) {
	stub := &authStub{valid: false}
	server := httptest.NewServer(stub.handler(t, nil))
	defer server.Close()

	client := NewSessionClient(server.URL, 5*time.Second)
	client.SetTokens(signTestToken(t, 30*time.Second), signTestToken(t, 7*24*time.Hour))

	var fired bool
	client.OnSessionExpired(func() { fired = true })

	err := client.Renew(context.Background())
	assert.Error(t, err)
	assert.True(t, fired)

	access, refresh := client.Tokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestRenewWithoutTokens(t *testing.T) {
	client := NewSessionClient("http://localhost:0", time.Second)
	assert.Error(t, client.Renew(context.Background()))
}
