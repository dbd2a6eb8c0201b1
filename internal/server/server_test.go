package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tinoosan/bankledger/internal/client"
	"github.com/tinoosan/bankledger/internal/password"
	"github.com/tinoosan/bankledger/internal/service/bank"
	"github.com/tinoosan/bankledger/internal/storage/memory"
	"github.com/tinoosan/bankledger/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// start runs a server on a loopback port and returns its address plus a
// stop function that waits for Serve to return.
func start(t *testing.T, cfg Config) (string, func() error) {
	t.Helper()
	l, err := bank.Open(context.Background(), memory.New(),
		bank.WithHasher(password.NewBcrypt(bcrypt.MinCost)), bank.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(cfg, l, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	actx, acancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer acancel()
	a := srv.Addr(actx)
	if a == nil {
		t.Fatalf("server never started listening")
	}
	addr := a.String()
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatalf("server did not stop")
			return nil
		}
	}
	t.Cleanup(func() { cancel() })
	return addr, stop
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestServeAndShutdown(t *testing.T) {
	ctx := context.Background()
	addr, stop := start(t, Config{IdleTimeout: 10 * time.Second, WriteTimeout: 5 * time.Second})

	c := dial(t, addr)
	resp, err := c.Register(ctx, "alice", "p1")
	if err != nil || !resp.OK {
		t.Fatalf("register: %v %+v", err, resp)
	}

	if err := stop(); err != nil {
		t.Fatalf("serve returned %v", err)
	}
	// The open session was closed by shutdown.
	if _, err := c.Login(ctx, "alice", "p1"); err == nil {
		t.Fatalf("expected transport error after shutdown")
	}
}

func TestMaxSessions(t *testing.T) {
	ctx := context.Background()
	addr, stop := start(t, Config{MaxSessions: 1, WriteTimeout: 5 * time.Second})
	defer func() { _ = stop() }()

	first := dial(t, addr)
	if resp, err := first.Register(ctx, "bob", "pw"); err != nil || !resp.OK {
		t.Fatalf("first session: %v %+v", err, resp)
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp wire.Response
	if err := wire.ReadFrame(conn, &resp); err != nil {
		t.Fatalf("read busy response: %v", err)
	}
	if resp.OK || resp.Message != "server busy" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	addr, stop := start(t, Config{})
	defer func() { _ = stop() }()

	a, b := dial(t, addr), dial(t, addr)
	if resp, _ := a.Register(ctx, "carol", "pw"); !resp.OK {
		t.Fatalf("register carol: %+v", resp)
	}
	if resp, _ := a.Login(ctx, "carol", "pw"); !resp.OK {
		t.Fatalf("login: %+v", resp)
	}
	// b never logged in; a's login must not leak into it.
	if resp, _ := b.Accounts(ctx); resp.OK || resp.Code != "auth_required" {
		t.Fatalf("expected auth_required on second session, got %+v", resp)
	}
	if resp, _ := a.Accounts(ctx); !resp.OK {
		t.Fatalf("accounts on logged in session: %+v", resp)
	}
}

func TestServerIsSingleUse(t *testing.T) {
	l, err := bank.Open(context.Background(), memory.New(), bank.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	srv := New(Config{}, l, testLogger())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	if a := srv.Addr(waitCtx); a != nil {
		t.Fatalf("Addr before Serve returned %v", a)
	}

	ln1, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln1) }()
	if srv.Addr(context.Background()) == nil {
		t.Fatalf("no address after Serve")
	}

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := srv.Serve(context.Background(), ln2); !errors.Is(err, ErrServerUsed) {
		t.Fatalf("second Serve returned %v", err)
	}
	if _, err := ln2.Accept(); err == nil {
		t.Fatalf("second listener left open")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
