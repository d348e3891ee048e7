package wallet

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/config"
)

// User represents the authenticated account reported by the backend. Fields
// beyond the ones below are kept verbatim in Raw.
type User struct {
	ID              string
	Name            string
	Email           string
	EmailVerifiedAt string
	Raw             json.RawMessage
}

// UnmarshalJSON accepts numeric or string identifiers.
func (u *User) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID              FlexString `json:"id"`
		Name            string     `json:"name"`
		Email           string     `json:"email"`
		EmailVerifiedAt string     `json:"email_verified_at"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*u = User{
		ID:              string(aux.ID),
		Name:            aux.Name,
		Email:           aux.Email,
		EmailVerifiedAt: aux.EmailVerifiedAt,
		Raw:             append(json.RawMessage(nil), b...),
	}
	return nil
}

// Wallet is a snapshot of the user's wallet.
type Wallet struct {
	ID       string
	Address  string
	Currency string
	Balance  decimal.Decimal
}

// UnmarshalJSON tolerates both address spellings, numeric ids and balances
// formatted with thousands separators.
func (w *Wallet) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID            FlexString `json:"id"`
		Address       string     `json:"address"`
		WalletAddress string     `json:"wallet_address"`
		Currency      string     `json:"currency"`
		Balance       FlexString `json:"balance"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	address := aux.Address
	if address == "" {
		address = aux.WalletAddress
	}
	currency := aux.Currency
	if currency == "" {
		currency = config.DefaultCurrency
	}
	// An unparseable balance reads as zero rather than failing the snapshot.
	balance, _ := ParseAmount(string(aux.Balance))
	*w = Wallet{
		ID:       string(aux.ID),
		Address:  address,
		Currency: currency,
		Balance:  balance,
	}
	return nil
}

// Clone returns a copy safe to hand to callers.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	cp := *w
	return &cp
}

// Clone returns a copy safe to hand to callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Raw = append(json.RawMessage(nil), u.Raw...)
	return &cp
}

// ParseAmount reads a money amount, ignoring thousands separators. An empty
// string is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(cleaned)
}

// FlexString decodes a JSON string, number or null into a string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}
