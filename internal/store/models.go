package store

import "time"

// Caller is an external API consumer identified by an opaque id. It is
// created on registration and never destroyed; deactivation flips Active
// rather than deleting the row.
type Caller struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt  time.Time
	LastSeenAt time.Time

	// CallerID is the externally-visible opaque identifier, distinct from
	// the internal auto-increment primary key above.
	CallerID string `gorm:"uniqueIndex;size:32;not null"`

	Name  string `gorm:"size:255;not null"`
	Email string `gorm:"uniqueIndex;size:255;not null"`

	Active bool `gorm:"default:true"`

	// RateLimit is the per-caller request ceiling within the sliding
	// window; 0 means "use the configured default".
	RateLimit int `gorm:"not null;default:0"`

	// CredentialHash is the bcrypt hash of the caller's API key, used for
	// constant-time verification on every request.
	CredentialHash string `gorm:"size:255;not null"`

	// CredentialEncrypted is an AES-256-GCM encrypted copy of the API key,
	// retained so the plaintext can be recovered with auth.Cipher without
	// re-issuing it.
	CredentialEncrypted string `gorm:"size:512;not null"`
}

// ActivityRecord is a single immutable event representing one API call
// made by a caller. Appended once to the Durable Log Store, never
// mutated.
type ActivityRecord struct {
	ID uint `gorm:"primaryKey"`

	// CallerRowID references Caller.ID; CallerID is denormalized alongside
	// it so queries don't need a join for the common case.
	CallerRowID uint   `gorm:"index:idx_record_caller_ts,priority:1;not null"`
	CallerID    string `gorm:"index;size:32;not null"`

	// CredentialID denormalizes which credential was used, for audit.
	CredentialID string `gorm:"size:64"`

	Endpoint   string `gorm:"size:512;not null"`
	Method     string `gorm:"size:16;not null"`
	Status     int    `gorm:"not null"`
	ElapsedMs  int64  `gorm:"not null"`
	RemoteAddr string `gorm:"size:64"`
	UserAgent  string `gorm:"size:512"`

	Timestamp time.Time `gorm:"index:idx_record_caller_ts,priority:2;index:idx_record_ts;not null"`

	// ExpiresAt is computed from the retention policy at ingestion time. The
	// retention worker does not read it: DeleteOlderThan deletes by
	// Timestamp, whether ExpiresAt is set or nil.
	ExpiresAt *time.Time `gorm:"index"`
}
