package pipeline

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

func transparentRules() []domain.AliasRule {
	return []domain.AliasRule{
		{SourcePrefix: "/admin", TargetPrefix: "/api/admin", Mode: domain.AliasTransparent},
		{SourcePrefix: "/admin/legacy", TargetPrefix: "/api/v2/admin", Mode: domain.AliasTransparent},
	}
}

func TestAliasStage_Transparent(t *testing.T) {
	stage, err := NewAliasStage(transparentRules(), 0, discardLogger())
	if err != nil {
		t.Fatalf("NewAliasStage() error = %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{path: "/admin", want: "/api/admin"},
		{path: "/admin/products", want: "/api/admin/products"},
		{path: "/admin/products/42/", want: "/api/admin/products/42/"},
		{path: "/admin/legacy/orders", want: "/api/v2/admin/orders"},
		{path: "/administrator", want: "/administrator"},
		{path: "/api/admin/products", want: "/api/admin/products"},
		{path: "/api/products", want: "/api/products"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rc := newRC("POST", tt.path+"?page=2", `{"x":1}`, map[string]string{"Content-Type": "application/json"})

			out, err := stage.Process(context.Background(), rc)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			wantAction(t, out, ports.ActionContinue)

			if rc.CanonicalPath != tt.want {
				t.Errorf("CanonicalPath = %q, want %q", rc.CanonicalPath, tt.want)
			}
			if rc.OriginalPath != tt.path {
				t.Errorf("OriginalPath = %q, must stay %q", rc.OriginalPath, tt.path)
			}
			if rc.RawQuery != "page=2" || rc.Method != "POST" {
				t.Errorf("query/method changed: %q %q", rc.RawQuery, rc.Method)
			}
			if rc.Header.Get("Content-Type") != "application/json" {
				t.Error("headers changed")
			}
		})
	}
}

func TestAliasStage_AppliesOnce(t *testing.T) {
	rules := []domain.AliasRule{
		{SourcePrefix: "/admin", TargetPrefix: "/api/admin", Mode: domain.AliasTransparent},
		{SourcePrefix: "/api", TargetPrefix: "/v1/api", Mode: domain.AliasTransparent},
	}
	stage, err := NewAliasStage(rules, 0, discardLogger())
	if err != nil {
		t.Fatalf("NewAliasStage() error = %v", err)
	}

	rc := newRC("GET", "/admin/users", "", nil)
	if _, err := stage.Process(context.Background(), rc); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if rc.CanonicalPath != "/api/admin/users" {
		t.Errorf("CanonicalPath = %q, want a single rewrite to /api/admin/users", rc.CanonicalPath)
	}
}

func TestAliasStage_Redirect(t *testing.T) {
	rules := []domain.AliasRule{{SourcePrefix: "/admin", TargetPrefix: "/api/admin", Mode: domain.AliasRedirect}}

	tests := []struct {
		name       string
		status     int
		target     string
		wantStatus int
		wantLoc    string
	}{
		{name: "default 308 keeps query", target: "/admin/products?q=shoe&page=2", wantStatus: http.StatusPermanentRedirect, wantLoc: "/api/admin/products?q=shoe&page=2"},
		{name: "301 configured", status: http.StatusMovedPermanently, target: "/admin", wantStatus: http.StatusMovedPermanently, wantLoc: "/api/admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, err := NewAliasStage(rules, tt.status, discardLogger())
			if err != nil {
				t.Fatalf("NewAliasStage() error = %v", err)
			}
			rc := newRC("GET", tt.target, "", nil)

			out, err := stage.Process(context.Background(), rc)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			wantAction(t, out, ports.ActionRespond)

			if out.Response.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", out.Response.Status, tt.wantStatus)
			}
			if got := out.Response.Header.Get("Location"); got != tt.wantLoc {
				t.Errorf("Location = %q, want %q", got, tt.wantLoc)
			}
			if rc.Rewritten() {
				t.Error("redirect mode must not rewrite in place")
			}
		})
	}
}

func TestNewAliasStage_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		rules   []domain.AliasRule
		status  int
		wantErr string
	}{
		{
			name: "mixed modes",
			rules: []domain.AliasRule{
				{SourcePrefix: "/admin", TargetPrefix: "/api/admin", Mode: domain.AliasTransparent},
				{SourcePrefix: "/shop", TargetPrefix: "/api/products", Mode: domain.AliasRedirect},
			},
			wantErr: "mixes",
		},
		{
			name: "duplicate source",
			rules: []domain.AliasRule{
				{SourcePrefix: "/admin", TargetPrefix: "/api/admin", Mode: domain.AliasTransparent},
				{SourcePrefix: "/admin", TargetPrefix: "/api/v2", Mode: domain.AliasTransparent},
			},
			wantErr: "duplicate",
		},
		{
			name:    "target under source",
			rules:   []domain.AliasRule{{SourcePrefix: "/api", TargetPrefix: "/api/v1", Mode: domain.AliasTransparent}},
			wantErr: "loop",
		},
		{
			name:    "unknown mode",
			rules:   []domain.AliasRule{{SourcePrefix: "/a", TargetPrefix: "/b", Mode: "sometimes"}},
			wantErr: "unknown mode",
		},
		{
			name:    "bad redirect status",
			rules:   []domain.AliasRule{{SourcePrefix: "/a", TargetPrefix: "/b", Mode: domain.AliasRedirect}},
			status:  http.StatusFound,
			wantErr: "301 or 308",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAliasStage(tt.rules, tt.status, discardLogger())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestAliasStage_RulesSortedLongestFirst(t *testing.T) {
	stage, err := NewAliasStage(transparentRules(), 0, discardLogger())
	if err != nil {
		t.Fatalf("NewAliasStage() error = %v", err)
	}
	rules := stage.Rules()
	if rules[0].SourcePrefix != "/admin/legacy" {
		t.Errorf("first rule = %q, want the longest source", rules[0].SourcePrefix)
	}
}

func TestNewAliasStage_TrimsTrailingSlash(t *testing.T) {
	stage, err := NewAliasStage([]domain.AliasRule{
		{SourcePrefix: "/admin/", TargetPrefix: "/api/admin/", Mode: domain.AliasTransparent},
	}, 0, discardLogger())
	if err != nil {
		t.Fatalf("NewAliasStage() error = %v", err)
	}

	for path, want := range map[string]string{
		"/admin":          "/api/admin",
		"/admin/":         "/api/admin/",
		"/admin/products": "/api/admin/products",
	} {
		rc := newRC("GET", path, "", nil)
		out, err := stage.Process(context.Background(), rc)
		if err != nil {
			t.Fatalf("Process(%s) error = %v", path, err)
		}
		wantAction(t, out, ports.ActionContinue)
		if rc.CanonicalPath != want {
			t.Errorf("%s: CanonicalPath = %q, want %q", path, rc.CanonicalPath, want)
		}
	}

	if got := stage.Rules()[0]; got.SourcePrefix != "/admin" || got.TargetPrefix != "/api/admin" {
		t.Errorf("Rules()[0] = %+v, want trimmed prefixes", got)
	}
}
