package wallet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoUser is returned when a response carries no recognisable user.
var ErrNoUser = errors.New("no user in response")

// ParseUser extracts the user from either {"user": {...}} or a bare object.
func ParseUser(data json.RawMessage) (*User, error) {
	if isNull(data) {
		return nil, ErrNoUser
	}
	var envelope struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	payload := data
	if !isNull(envelope.User) {
		payload = envelope.User
	}
	var user User
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" && user.Email == "" {
		return nil, ErrNoUser
	}
	return &user, nil
}

// ParseWallet extracts the first wallet of a /wallets response. It accepts
// {"wallets": [...]}, {"data": [...]}, a bare list or a single object, and
// unwraps {"wallet": {...}} entries. A response without wallets yields nil.
func ParseWallet(data json.RawMessage) (*Wallet, error) {
	if isNull(data) {
		return nil, nil
	}

	candidate := data
	if !isArray(data) {
		var envelope struct {
			Wallets json.RawMessage `json:"wallets"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("decode wallets: %w", err)
		}
		switch {
		case !isNull(envelope.Wallets):
			candidate = envelope.Wallets
		case !isNull(envelope.Data):
			candidate = envelope.Data
		}
	}

	if isArray(candidate) {
		var list []json.RawMessage
		if err := json.Unmarshal(candidate, &list); err != nil {
			return nil, fmt.Errorf("decode wallets: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		candidate = list[0]
	}
	if isNull(candidate) {
		return nil, nil
	}

	var wrapped struct {
		Wallet json.RawMessage `json:"wallet"`
		ID     json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(candidate, &wrapped); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}
	if !isNull(wrapped.Wallet) && isNull(wrapped.ID) {
		candidate = wrapped.Wallet
	}

	var w Wallet
	if err := json.Unmarshal(candidate, &w); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}
	return &w, nil
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isArray(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}
