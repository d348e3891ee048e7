package wallet

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseWalletShapes(t *testing.T) {
	cases := map[string]string{
		"envelope list": `{"wallets":[{"id":7,"address":"PW-1","currency":"NGN","balance":"1,250.50"}]}`,
		"bare list":     `[{"id":"7","address":"PW-1","currency":"NGN","balance":1250.5}]`,
		"wrapped entry": `{"wallets":[{"wallet":{"id":7,"wallet_address":"PW-1","currency":"NGN","balance":"1250.50"}}]}`,
		"single object": `{"wallets":{"id":7,"address":"PW-1","currency":"NGN","balance":"1250.5"}}`,
		"data envelope": `{"data":[{"id":7,"address":"PW-1","currency":"NGN","balance":"1,250.5"}]}`,
	}
	want := decimal.RequireFromString("1250.5")
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, err := ParseWallet(json.RawMessage(body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if w == nil {
				t.Fatalf("expected wallet")
			}
			if w.ID != "7" || w.Address != "PW-1" {
				t.Fatalf("unexpected wallet %+v", w)
			}
			if !w.Balance.Equal(want) {
				t.Fatalf("expected balance %s, got %s", want, w.Balance)
			}
		})
	}
}

func TestParseWalletEmpty(t *testing.T) {
	for _, body := range []string{`{"wallets":[]}`, `[]`, `null`} {
		w, err := ParseWallet(json.RawMessage(body))
		if err != nil {
			t.Fatalf("parse %s: %v", body, err)
		}
		if w != nil {
			t.Fatalf("expected nil wallet for %s, got %+v", body, w)
		}
	}
}

func TestWalletDefaults(t *testing.T) {
	w, err := ParseWallet(json.RawMessage(`{"wallets":[{"id":1,"balance":"not-a-number"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.Currency != "NGN" {
		t.Fatalf("expected default currency NGN, got %s", w.Currency)
	}
	if !w.Balance.IsZero() {
		t.Fatalf("expected zero balance for garbage input, got %s", w.Balance)
	}
}

func TestParseUser(t *testing.T) {
	u, err := ParseUser(json.RawMessage(`{"user":{"id":42,"name":"Ada","email":"ada@example.com"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.ID != "42" || u.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}

	bare, err := ParseUser(json.RawMessage(`{"id":"u-1","email":"b@example.com"}`))
	if err != nil || bare.ID != "u-1" {
		t.Fatalf("bare user: %+v %v", bare, err)
	}

	if _, err := ParseUser(json.RawMessage(`{"message":"ok"}`)); err != ErrNoUser {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount(" 12,345.60 ")
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("12345.6")) {
		t.Fatalf("unexpected amount %s", got)
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Fatalf("expected error")
	}
}
