package org

import "time"

// Profile is a brokerage organization reference row. The core only ever reads
// these; seat management and billing live elsewhere.
type Profile struct {
	ID        string
	Name      string
	Verified  bool
	CreatedAt time.Time
}
