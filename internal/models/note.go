// Package models defines the domain types for chainpad.
package models

import (
	"strconv"
	"time"

	"github.com/starford/chainpad/internal/checksum"
)

// DefaultDateLayout is used when a note timestamp is rendered without an explicit layout.
const DefaultDateLayout = "2006-01-02 15:04:05"

// Note is a record owned by one account in the ledger store.
//
// Index is the note's position in the account's list at the time it was fetched.
// It is not a stable identifier: deleting a note at a lower index shifts it down.
// An Index of -1 means the store did not report a position for the record.
type Note struct {
	Index     int    `json:"index"`
	Content   string `json:"content"`
	Tag       string `json:"tag,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the store-assigned write time.
func (n Note) Time() time.Time {
	return time.Unix(n.Timestamp, 0)
}

// FormattedDate renders the timestamp in local time using layout
// (DefaultDateLayout when empty).
func (n Note) FormattedDate(layout string) string {
	if layout == "" {
		layout = DefaultDateLayout
	}
	return n.Time().Local().Format(layout)
}

// Fingerprint identifies the note's observable state independently of its index.
func (n Note) Fingerprint() string {
	return checksum.SumFields(strconv.FormatInt(n.Timestamp, 10), n.Content, n.Tag)
}

// Capabilities describes which optional fields a deployment supports.
type Capabilities struct {
	Tags   bool `yaml:"tags" json:"tags"`
	Search bool `yaml:"search" json:"search"`
}

// FullCapabilities enables every optional feature.
func FullCapabilities() Capabilities {
	return Capabilities{Tags: true, Search: true}
}
