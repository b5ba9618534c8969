package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vovakirdan/wirechat-client/internal/apitest"
	"github.com/vovakirdan/wirechat-client/internal/service/friends"
)

type harness struct {
	t       *testing.T
	backend *apitest.Backend
	base    []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend, ts := apitest.Start(t)
	dir := t.TempDir()
	t.Setenv("WIRECHAT_TOKEN_PATH", filepath.Join(dir, "token"))
	t.Setenv("WIRECHAT_CACHE_PATH", filepath.Join(dir, "cache.db"))
	return &harness{
		t:       t,
		backend: backend,
		base: []string{
			"--config", filepath.Join(dir, "config.yaml"),
			"--api-url", apitest.APIURL(ts),
			"--ws-url", apitest.WSURL(ts),
			"--log-level", "off",
		},
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, h.base...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("register", "alice", "--password", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out, "registered as alice") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = h.run("whoami")
	if err != nil || !strings.HasPrefix(out, "alice ") {
		t.Fatalf("whoami: %q %v", out, err)
	}

	if _, err := h.run("logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := h.run("whoami"); err == nil {
		t.Fatal("expected whoami to fail after logout")
	}

	out, err = h.run("login", "alice", "--password", "password1")
	if err != nil || !strings.Contains(out, "logged in as alice") {
		t.Fatalf("login: %q %v", out, err)
	}
}

func TestConversationAndFriendCommands(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("register", "carol", "--password", "password1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	dave, err := h.backend.CreateUser("dave", "password2")
	if err != nil {
		t.Fatalf("create dave: %v", err)
	}

	out, err := h.run("create", dave)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	chatID := strings.Fields(out)[0]

	out, err = h.run("conversations")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if !strings.Contains(out, chatID) || !strings.Contains(out, "dave") {
		t.Fatalf("conversation missing from %q", out)
	}

	if _, err := h.run("friends", "search", "da"); !errors.Is(err, friends.ErrQueryTooShort) {
		t.Fatalf("expected ErrQueryTooShort, got %v", err)
	}
	out, err = h.run("friends", "search", "dav")
	if err != nil || !strings.Contains(out, dave) {
		t.Fatalf("search: %q %v", out, err)
	}
	if out, err := h.run("friends", "request", dave); err != nil || strings.TrimSpace(out) != "ok" {
		t.Fatalf("request: %q %v", out, err)
	}
	if _, err := h.run("friends", "request", dave); !errors.Is(err, friends.ErrRequestAlreadyExists) {
		t.Fatalf("expected ErrRequestAlreadyExists, got %v", err)
	}
}
