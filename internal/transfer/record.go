package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/wallet"
)

// Direction says whether money left or entered the wallet.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

const (
	defaultStatus      = "completed"
	defaultDescription = "No description"
	unknownParty       = "Unknown"
)

// Record is one transaction in canonical form.
type Record struct {
	ID                  string
	Direction           Direction
	Amount              decimal.Decimal
	Currency            string
	CounterpartyName    string
	CounterpartyAddress string
	Status              string
	Description         string
	Reference           string
	// Timestamp is the backend's value as sent; OccurredAt is its parsed
	// form, zero when the format is not recognised.
	Timestamp  string
	OccurredAt time.Time
}

type party struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type rawRecord struct {
	ID               wallet.FlexString `json:"id"`
	Type             string            `json:"type"`
	TransactionType  string            `json:"transaction_type"`
	Status           string            `json:"status"`
	CreatedAt        string            `json:"created_at"`
	Date             string            `json:"date"`
	Description      string            `json:"description"`
	Note             string            `json:"note"`
	Memo             string            `json:"memo"`
	Reference        string            `json:"reference"`
	Amount           wallet.FlexString `json:"amount"`
	Currency         string            `json:"currency"`
	Recipient        json.RawMessage   `json:"recipient"`
	RecipientName    string            `json:"recipient_name"`
	RecipientAddress string            `json:"recipient_address"`
	Sender           json.RawMessage   `json:"sender"`
	SenderName       string            `json:"sender_name"`
	SenderAddress    string            `json:"sender_address"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeRecord converts one backend transaction, whatever spelling it
// uses, into a Record.
func NormalizeRecord(data json.RawMessage) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("decode transaction: %w", err)
	}

	rec := Record{
		ID:          string(raw.ID),
		Direction:   directionOf(raw.Type, raw.TransactionType),
		Currency:    raw.Currency,
		Status:      firstNonEmpty(raw.Status, defaultStatus),
		Description: firstNonEmpty(raw.Description, raw.Note, raw.Memo, raw.Reference, defaultDescription),
		Reference:   raw.Reference,
		Timestamp:   firstNonEmpty(raw.CreatedAt, raw.Date),
	}
	if amount, err := wallet.ParseAmount(string(raw.Amount)); err == nil {
		rec.Amount = amount
	}
	rec.OccurredAt = parseTimestamp(rec.Timestamp)

	var counterparty party
	if rec.Direction == Debit {
		counterparty = partyOf(raw.Recipient, raw.RecipientName, raw.RecipientAddress)
	} else {
		counterparty = partyOf(raw.Sender, raw.SenderName, raw.SenderAddress)
	}
	rec.CounterpartyName = firstNonEmpty(counterparty.Name, unknownParty)
	rec.CounterpartyAddress = counterparty.Address
	return rec, nil
}

// NormalizeRecords accepts {transactions: [...]}, {data: [...]} or a bare array.
func NormalizeRecords(data json.RawMessage) ([]Record, error) {
	items, err := recordList(data)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := NormalizeRecord(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func recordList(data json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode transactions: %w", err)
		}
		return items, nil
	}
	var envelope struct {
		Transactions json.RawMessage `json:"transactions"`
		Data         json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	for _, candidate := range []json.RawMessage{envelope.Transactions, envelope.Data} {
		candidate = bytes.TrimSpace(candidate)
		if len(candidate) > 0 && candidate[0] == '[' {
			if err := json.Unmarshal(candidate, &items); err != nil {
				return nil, fmt.Errorf("decode transactions: %w", err)
			}
			return items, nil
		}
	}
	return nil, nil
}

// directionOf keeps an explicit type as the backend sent it, lowercased, even
// when it is neither credit nor debit; such records stay in the full list but
// in neither the sent nor the received view. Without a type, anything but a
// credit transaction_type is a debit.
func directionOf(explicit, fallback string) Direction {
	if d := strings.ToLower(strings.TrimSpace(explicit)); d != "" {
		return Direction(d)
	}
	if strings.EqualFold(strings.TrimSpace(fallback), string(Credit)) {
		return Credit
	}
	return Debit
}

func partyOf(nested json.RawMessage, name, address string) party {
	var p party
	trimmed := bytes.TrimSpace(nested)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		_ = json.Unmarshal(trimmed, &p)
	}
	return party{
		Name:    firstNonEmpty(p.Name, name),
		Address: firstNonEmpty(p.Address, address),
	}
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
