package models

import "time"

type JobStatus string

const (
	JobInitializing JobStatus = "INITIALIZING"
	JobQueued       JobStatus = "QUEUED"
)

type BatchStatus string

const (
	BatchPending      BatchStatus = "PENDING"
	BatchRetryPending BatchStatus = "RETRY_PENDING"
	BatchSent         BatchStatus = "SENT"
)

// Audience selectors accepted by the submission endpoint.
const (
	TargetAllUsers = "all"
	TargetSelected = "selected"
)

// Job is one bulk-send request. The compiled HTML shell is rendered once at
// submission and reused for every recipient; the worker never re-renders it.
type Job struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	AdminName       string    `json:"adminName"`
	CompiledHTML    string    `json:"-"`
	TargetAudience  string    `json:"targetAudience"`
	Status          JobStatus `json:"status"`
	TotalRecipients int       `json:"totalRecipients"`
	TotalBatches    int       `json:"totalBatches"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Batch is a bounded chunk of a Job's recipients, processed as one atomic
// unit. Recipients are embedded so a single row read-modify-write covers the
// whole batch; Version is the optimistic concurrency token guarding that
// write.
type Batch struct {
	ID                string      `json:"id"`
	JobID             string      `json:"jobId"`
	BatchIndex        int         `json:"batchIndex"`
	Recipients        []Recipient `json:"recipients"`
	Status            BatchStatus `json:"status"`
	SentCount         int         `json:"sentCount"`
	FailedCount       int         `json:"failedCount"`
	ProcessedByWorker bool        `json:"processedByWorker"`
	Version           int64       `json:"-"`
	CreatedAt         time.Time   `json:"createdAt"`
	LastProcessedAt   *time.Time  `json:"lastProcessedAt,omitempty"`
}

type Recipient struct {
	Email     string     `json:"email"`
	FullName  string     `json:"fullName"`
	Sent      bool       `json:"sent"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	Retries   int        `json:"retries"`
	LastError string     `json:"lastError,omitempty"`
}

// Terminal reports whether the recipient needs no further delivery attempts:
// either the send succeeded or retries are exhausted.
func (r Recipient) Terminal(maxRetries int) bool {
	return r.Sent || r.Retries >= maxRetries
}

// Eligible reports whether the recipient should be attempted this cycle.
func (r Recipient) Eligible(maxRetries int) bool {
	return !r.Sent && r.Retries < maxRetries
}

// Terminal reports whether every recipient in the batch has reached a
// terminal state. A terminal batch is SENT and never regresses.
func (b *Batch) Terminal(maxRetries int) bool {
	if b.Status == BatchSent || b.ProcessedByWorker {
		return true
	}
	for _, r := range b.Recipients {
		if !r.Terminal(maxRetries) {
			return false
		}
	}
	return true
}

// RecountTotals recomputes SentCount and FailedCount from the embedded
// recipients. Each recipient's own sent/retries fields are the single source
// of truth, so a recipient that exhausted retries is counted exactly once no
// matter how many cycles observe it.
func (b *Batch) RecountTotals(maxRetries int) {
	sent, failed := 0, 0
	for _, r := range b.Recipients {
		switch {
		case r.Sent:
			sent++
		case r.Retries >= maxRetries:
			failed++
		}
	}
	b.SentCount = sent
	b.FailedCount = failed
}

// User is a row in the source-of-truth user table. Only the index sync reads
// it; sends go through the cached audience index.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
}

// AudienceIndex is the single cached snapshot of resolvable recipients,
// rebuilt wholesale by the sync operation.
type AudienceIndex struct {
	Entries     []IndexEntry `json:"emails"`
	LastUpdated time.Time    `json:"lastUpdated"`
	TotalCount  int          `json:"totalCount"`
}

// IndexEntry pairs a recipient email with its display label, formatted as
// "email (Full Name)" when the name is known.
type IndexEntry struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Product is the marketplace listing referenced by the ad-hoc delist email.
type Product struct {
	ID     string  `json:"id"`
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Brand  string  `json:"brand"`
	Price  float64 `json:"price"`
}
