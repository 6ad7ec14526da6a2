package perf

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/fitcoach/access/internal/rbac"
)

func BenchmarkHasPermission(b *testing.B) {
	roles := rbac.Roles()
	perms := rbac.Permissions()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = rbac.HasPermission(roles[i%len(roles)], perms[i%len(perms)])
	}
}

func BenchmarkRequirePermission(b *testing.B) {
	mw := rbac.Middleware{Authenticator: rbac.AuthenticatorFunc(func(r *http.Request) (rbac.Principal, error) {
		return rbac.Principal{IdentityID: "bench", Role: rbac.RoleTeam}, nil
	})}
	handler := mw.RequirePermission(rbac.PermModerateCommunity, func(w http.ResponseWriter, r *http.Request, _ rbac.Principal) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/community", nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func TestGuardLatencyBudget(t *testing.T) {
	mw := rbac.Middleware{Authenticator: rbac.AuthenticatorFunc(func(r *http.Request) (rbac.Principal, error) {
		return rbac.Principal{IdentityID: "budget", Role: rbac.RoleMember}, nil
	})}
	handler := mw.RequireMinimumRole(rbac.RoleAdmin, func(w http.ResponseWriter, r *http.Request, _ rbac.Principal) {})

	samples := make([]time.Duration, 200)
	for i := range samples {
		req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
		start := time.Now()
		handler.ServeHTTP(httptest.NewRecorder(), req)
		samples[i] = time.Since(start)
	}
	if p95 := percentile95(samples); p95 > 5*time.Millisecond {
		t.Fatalf("guard latency regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
