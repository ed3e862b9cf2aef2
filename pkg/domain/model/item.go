package model

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	ErrItemNotFound       = errors.New("item not found")
	ErrDuplicateID        = errors.New("item with this id already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrCorruptStore       = errors.New("shopping list document is corrupt")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// ItemID is compared by canonical string form, so "1" and 1 in a stored
// document refer to the same item.
type ItemID string

func (id *ItemID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ItemID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidInput
	}
	*id = ItemID(n.String())
	return nil
}

// Quantity tolerates arriving as a JSON number or a numeric string.
type Quantity int

func (q *Quantity) UnmarshalJSON(data []byte) error {
	parsed, err := ParseQuantity(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func ParseQuantity(value string) (Quantity, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, ErrInvalidInput
	}
	return Quantity(n), nil
}

// Price tolerates arriving as a JSON number or a numeric string.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	parsed, err := ParsePrice(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func ParsePrice(value string) (Price, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidInput
	}
	return Price(f), nil
}

type Item struct {
	ID            ItemID   `json:"id"`
	Name          string   `json:"name"`
	Quantity      Quantity `json:"quantity"`
	Description   string   `json:"description"`
	Price         Price    `json:"price"`
	AttachmentRef *string  `json:"attachmentRef"`
}

// ItemPatch carries the fields of a full or partial update. Nil fields keep
// the item's prior values; the id is immutable and cannot be patched.
type ItemPatch struct {
	Name        *string   `json:"name"`
	Quantity    *Quantity `json:"quantity"`
	Description *string   `json:"description"`
	Price       *Price    `json:"price"`
}

func (p ItemPatch) Apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	return item
}

// Upload is a pending attachment: the form field it arrived under, the
// client's original filename (its extension is preserved) and the content.
type Upload struct {
	Field   string
	Name    string
	Content io.Reader
}

// ItemRepository owns the persisted shopping list document. The whole
// document is read and replaced as a unit; serialization of concurrent
// read-modify-write cycles is the caller's responsibility.
type ItemRepository interface {
	LoadAll() ([]Item, error)
	ReplaceAll(items []Item) error
}

// AttachmentStore keeps uploaded files and addresses them by reference.
// Delete of a missing reference is not an error.
type AttachmentStore interface {
	Save(upload *Upload) (string, error)
	Delete(ref string) error
	Open(ref string) (io.ReadCloser, error)
}
