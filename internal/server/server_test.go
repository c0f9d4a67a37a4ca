package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/appshell/internal/api"
	"github.com/eugenenazirov/appshell/internal/config"
	"github.com/eugenenazirov/appshell/internal/storage"
)

type testLoggers struct {
	t *testing.T
}

func (l testLoggers) Logger(name string) *zap.Logger {
	return zaptest.NewLogger(l.t).Named(name)
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Handler:        api.NewHandler(storage.NewMemoryBasket()),
		RouterOptions:  []api.RouterOption{api.WithLogging(false), api.WithRateLimit(0, 0)},
		Loggers:        testLoggers{t: t},
		ReloadDebounce: 10 * time.Millisecond,
	}
}

func resolvedWithGrace() config.Resolved {
	return config.Resolved{API: config.APISection{ShutdownGracePeriod: time.Second}}
}

func TestNewDefaultsPort(t *testing.T) {
	cfg := resolvedWithGrace()

	for _, kind := range []Kind{Hypercorn, Uvicorn} {
		backend, err := New(kind, cfg, "app-host", testDeps(t))
		if err != nil {
			t.Fatalf("New(%s) returned error: %v", kind, err)
		}
		if backend.Kind() != kind {
			t.Fatalf("expected kind %s, got %s", kind, backend.Kind())
		}
		if backend.Addr() != "app-host:5050" {
			t.Fatalf("%s: expected app-host:5050, got %s", kind, backend.Addr())
		}
	}
}

func TestNewUsesSectionPorts(t *testing.T) {
	cfg := resolvedWithGrace()
	cfg.Hypercorn = config.ServerSection{Port: 8443, HasPort: true}
	cfg.Uvicorn = config.ServerSection{Port: 9000, HasPort: true}

	hyper, _ := New(Hypercorn, cfg, "h", testDeps(t))
	if hyper.Addr() != "h:8443" {
		t.Fatalf("expected h:8443, got %s", hyper.Addr())
	}
	uvi, _ := New(Uvicorn, cfg, "h", testDeps(t))
	if uvi.Addr() != "h:9000" {
		t.Fatalf("expected h:9000, got %s", uvi.Addr())
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(Kind(7), resolvedWithGrace(), "h", testDeps(t)); !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" Uvicorn "); err != nil || k != Uvicorn {
		t.Fatalf("expected Uvicorn, got %v (%v)", k, err)
	}
	if _, err := ParseKind("gunicorn"); !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
	if Kind(9).String() != "Kind(9)" {
		t.Fatalf("unexpected String for unknown kind: %s", Kind(9))
	}
}

func TestHypercornConfigCopiesTLSFields(t *testing.T) {
	cfg := resolvedWithGrace()
	cfg.Hypercorn = config.ServerSection{SSLCertFile: "c.pem", SSLKeyFile: "k.pem", SSLKeyFilePwd: "pw"}

	hc := NewHypercornConfig(cfg, "h")
	if hc.CertFile != "c.pem" || hc.KeyFile != "k.pem" || hc.KeyPassword != "pw" {
		t.Fatalf("unexpected TLS fields: %+v", hc)
	}

	cfg.Hypercorn = config.ServerSection{SSLCertFile: "c.pem"}
	hc = NewHypercornConfig(cfg, "h")
	if !hc.TLSRequested() || hc.KeyFile != "" {
		t.Fatalf("expected partial TLS material to be passed through: %+v", hc)
	}
}

func TestUvicornTLSRequiresCompleteMaterial(t *testing.T) {
	tests := []struct {
		name    string
		section config.ServerSection
		want    bool
	}{
		{name: "all three", section: config.ServerSection{SSLCertFile: "c", SSLKeyFile: "k", SSLKeyFilePwd: "p"}, want: true},
		{name: "no password", section: config.ServerSection{SSLCertFile: "c", SSLKeyFile: "k"}},
		{name: "no key", section: config.ServerSection{SSLCertFile: "c", SSLKeyFilePwd: "p"}},
		{name: "nothing", section: config.ServerSection{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := resolvedWithGrace()
			cfg.Hypercorn = tt.section
			uc := NewUvicornConfig(cfg, "h")
			if (uc.TLS != nil) != tt.want {
				t.Fatalf("expected TLS enabled=%v, got %+v", tt.want, uc.TLS)
			}
		})
	}
}

func TestUvicornTLSIgnoresUvicornSection(t *testing.T) {
	cfg := resolvedWithGrace()
	cfg.Uvicorn = config.ServerSection{SSLCertFile: "c", SSLKeyFile: "k", SSLKeyFilePwd: "p"}

	if uc := NewUvicornConfig(cfg, "h"); uc.TLS != nil {
		t.Fatalf("expected TLS to come from the hypercorn section only")
	}
}

func TestUvicornConfigWatchesDirectoryFiles(t *testing.T) {
	cfg := resolvedWithGrace()
	cfg.Mode = config.DirectoryMode
	cfg.ConfigLocation = "/srv/config/dev.toml"
	cfg.LoggingLocation = "/srv/logging/logging.yaml"

	uc := NewUvicornConfig(cfg, "h")
	if !uc.Reload || len(uc.WatchPaths) != 2 {
		t.Fatalf("expected reload with two watched files, got %+v", uc)
	}

	cfg.Mode = config.ArchiveMode
	if uc := NewUvicornConfig(cfg, "h"); len(uc.WatchPaths) != 0 {
		t.Fatalf("expected no watched files in archive mode, got %v", uc.WatchPaths)
	}
}

type launcher interface {
	launchOn(ctx context.Context, ln net.Listener) error
}

// startBackend launches b on a loopback port and waits until it answers.
func startBackend(t *testing.T, b launcher, scheme string) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	base := scheme + "://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.launchOn(ctx, ln)
	}()

	client := testClient()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return base, cancel, done
			}
		}
		select {
		case err := <-done:
			cancel()
			t.Fatalf("backend exited early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	t.Fatalf("backend at %s never became healthy", base)
	return "", nil, nil
}

func testClient() *http.Client {
	return &http.Client{
		Timeout: time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
		},
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("backend did not stop")
		return nil
	}
}

func TestHypercornLaunchAndShutdown(t *testing.T) {
	backend := NewHypercornBackend(HypercornConfig{ShutdownGracePeriod: time.Second}, testDeps(t))

	base, cancel, done := startBackend(t, backend, "http")

	resp, err := testClient().Post(base+"/add_fruits?fruit=apple", "", nil)
	if err != nil {
		t.Fatalf("add fruit: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestHypercornServesTLSWithEncryptedKey(t *testing.T) {
	certFile, keyFile := writeCertificate(t, "s3cret")
	backend := NewHypercornBackend(HypercornConfig{
		CertFile:            certFile,
		KeyFile:             keyFile,
		KeyPassword:         "s3cret",
		ShutdownGracePeriod: time.Second,
	}, testDeps(t))

	_, cancel, done := startBackend(t, backend, "https")
	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestHypercornRejectsPartialTLS(t *testing.T) {
	certFile, _ := writeCertificate(t, "")
	backend := NewHypercornBackend(HypercornConfig{CertFile: certFile}, testDeps(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := backend.launchOn(context.Background(), ln); !errors.Is(err, ErrTLSMaterial) {
		t.Fatalf("expected ErrTLSMaterial, got %v", err)
	}
}

func TestUvicornLaunchAndShutdown(t *testing.T) {
	backend := NewUvicornBackend(UvicornConfig{ShutdownGracePeriod: time.Second}, testDeps(t))

	base, cancel, done := startBackend(t, backend, "http")

	resp, err := testClient().Get(base + "/fruits")
	if err != nil {
		t.Fatalf("list fruits: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestUvicornServesTLS(t *testing.T) {
	certFile, keyFile := writeCertificate(t, "s3cret")
	backend := NewUvicornBackend(UvicornConfig{
		TLS:                 &TLSMaterial{CertFile: certFile, KeyFile: keyFile, KeyPassword: "s3cret"},
		ShutdownGracePeriod: time.Second,
	}, testDeps(t))

	_, cancel, done := startBackend(t, backend, "https")
	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestUvicornReloadsOnWatchedFileChange(t *testing.T) {
	watched := filepath.Join(t.TempDir(), "dev.toml")
	if err := os.WriteFile(watched, []byte("[logging]\n"), 0o600); err != nil {
		t.Fatalf("write watched file: %v", err)
	}

	backend := NewUvicornBackend(UvicornConfig{
		Reload:              true,
		WatchPaths:          []string{watched},
		ShutdownGracePeriod: time.Second,
	}, testDeps(t))

	_, cancel, done := startBackend(t, backend, "http")
	defer cancel()

	if err := os.WriteFile(watched, []byte("[logging]\nlog_config = \"x.yaml\"\n"), 0o600); err != nil {
		t.Fatalf("modify watched file: %v", err)
	}

	if err := waitDone(t, done); !errors.Is(err, ErrReloadRequested) {
		t.Fatalf("expected ErrReloadRequested, got %v", err)
	}
}

func newTestWatcher(t *testing.T, paths ...string) *watcher {
	t.Helper()
	w, err := newWatcher(paths, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("newWatcher returned error: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWaitForChangeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := newTestWatcher(t, filepath.Join(t.TempDir(), "missing"))
	if _, ok := w.wait(ctx); ok {
		t.Fatalf("expected no change after cancellation")
	}
}

func TestWaitForChange(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		change func(path string) error
	}{
		{
			name: "creation",
			change: func(path string) error {
				return os.WriteFile(path, []byte("root: {}\n"), 0o600)
			},
		},
		{
			name:   "in place write",
			exists: true,
			change: func(path string) error {
				return os.WriteFile(path, []byte("[logging]\nlog_config = \"x.yaml\"\n"), 0o600)
			},
		},
		{
			name:   "rename over the original",
			exists: true,
			change: func(path string) error {
				tmp := path + ".swp"
				if err := os.WriteFile(tmp, []byte("[api]\n"), 0o600); err != nil {
					return err
				}
				return os.Rename(tmp, path)
			},
		},
		{
			name:   "removal",
			exists: true,
			change: os.Remove,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dev.toml")
			if tt.exists {
				if err := os.WriteFile(path, []byte("[logging]\n"), 0o600); err != nil {
					t.Fatalf("write file: %v", err)
				}
			}
			w := newTestWatcher(t, path)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tt.change(path); err != nil {
				t.Fatalf("change file: %v", err)
			}

			got, ok := w.wait(ctx)
			if !ok || got != path {
				t.Fatalf("expected change on %s, got %q (%v)", path, got, ok)
			}
		})
	}
}

func TestWaitForChangeIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, filepath.Join(dir, "dev.toml"))

	if err := os.WriteFile(filepath.Join(dir, "prod.toml"), []byte("[api]\n"), 0o600); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if got, ok := w.wait(ctx); ok {
		t.Fatalf("expected sibling writes to be ignored, got %q", got)
	}
}

func TestNewWatcherMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone", "dev.toml")
	if _, err := newWatcher([]string{missing}, 0); err == nil {
		t.Fatalf("expected an error for a missing directory")
	}
}
