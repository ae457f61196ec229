package server

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	if isSafeAbsPath("") {
		t.Fatalf("empty must be rejected")
	}
	abs := absAppPath()
	if !isSafeAbsPath(abs) {
		t.Fatalf("abs clean path should be allowed: %s", abs)
	}
	if !isSafeAbsPath(abs + string(filepath.Separator)) {
		t.Fatalf("trailing separator should be allowed")
	}
	if isSafeAbsPath("tmp/x") {
		t.Fatalf("relative path should be rejected")
	}
	sep := string(filepath.Separator)
	bad := sep + "tmp" + sep + ".." + sep + "etc"
	if isSafeAbsPath(bad) {
		t.Fatalf("path with traversal should be rejected: %s", bad)
	}
}

func FuzzIsSafeAbsPath(f *testing.F) {
	f.Add("/Applications/Mail.app")
	f.Add("../etc/passwd")
	f.Add("/a/./b")
	f.Add("")
	f.Fuzz(func(t *testing.T, p string) {
		if !isSafeAbsPath(p) {
			return
		}
		if !filepath.IsAbs(p) {
			t.Fatalf("accepted relative path %q", p)
		}
		for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
			if seg == ".." || seg == "." {
				t.Fatalf("accepted path with %q segment: %q", seg, p)
			}
		}
	})
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}
