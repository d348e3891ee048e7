package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/config"
	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/server"
)

func startSandbox(t *testing.T) string {
	t.Helper()
	srv, err := server.New(config.Config{
		AppName:                "PrimeWallet",
		AppEnv:                 "test",
		IdempotencyTTL:         time.Minute,
		LoginAttemptsPerMinute: 50,
		OpeningBalance:         decimal.NewFromInt(500),
	}, nil, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("build sandbox: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestWalletctlAgainstSandbox(t *testing.T) {
	t.Setenv("WALLET_API_URL", startSandbox(t))
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WALLET_EMAIL", "")
	t.Setenv("WALLET_PASSWORD", "")

	for _, who := range []string{"payer", "payee"} {
		email := who + "@example.com"
		if _, err := run(t, "register", "--name", who, "--email", email, "--password", "secret123"); err != nil {
			t.Fatalf("register %s: %v", who, err)
		}
		if _, err := run(t, "resend-verification", "--email", email); err != nil {
			t.Fatalf("verify %s: %v", who, err)
		}
	}

	payer := []string{"--email", "payer@example.com", "--password", "secret123"}
	out, err := run(t, append([]string{"balance"}, payer...)...)
	if err != nil || strings.TrimSpace(out) != "500.00 NGN" {
		t.Fatalf("balance: %q %v", out, err)
	}

	out, err = run(t, append([]string{"send", "payee@example.com", "120.25", "--note", "books"}, payer...)...)
	if err != nil || !strings.Contains(out, "379.75") {
		t.Fatalf("send: %q %v", out, err)
	}

	if _, err := run(t, append([]string{"send", "payee@example.com", "1000"}, payer...)...); err == nil || !strings.Contains(err.Error(), "Insufficient balance") {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	if _, err := run(t, append([]string{"send", "--resume", "no-such-attempt"}, payer...)...); err == nil || !strings.Contains(err.Error(), "already answered") {
		t.Fatalf("expected unknown attempt, got %v", err)
	}

	out, err = run(t, append([]string{"history", "--type", "debit"}, payer...)...)
	if err != nil || !strings.Contains(out, "payee") || !strings.Contains(out, "books") {
		t.Fatalf("history: %q %v", out, err)
	}

	if _, err := run(t, "history", "--type", "sideways"); err == nil {
		t.Fatalf("expected invalid --type to fail")
	}
	if _, err := run(t, "balance"); err == nil {
		t.Fatalf("expected balance without credentials to fail")
	}
}
