// Package model holds the durable entities and transient structures shared
// across the relay core (spec.md §3).
package model

import "time"

// PublishedPost records one upstream item successfully relayed downstream.
// Keys: (SourceID, PostID) unique; DownstreamStatusID unique when non-empty.
type PublishedPost struct {
	ID                 int64
	SourceID           string
	PostID             string
	PostURL            string
	DownstreamStatusID string
	PlatformURI        string
	PublishedAt        time.Time
}

// SourceState is the one-row-per-source scheduling and error-tracking record.
type SourceState struct {
	SourceID    string
	LastCheck   *time.Time
	LastSuccess *time.Time
	PostsToday  int
	LastReset   time.Time // date-granularity
	ErrorCount  int
	LastError   string
	DisabledAt  *time.Time
	UpdatedAt   time.Time
}

// ActivityAction enumerates the activity_log.action check constraint.
type ActivityAction string

const (
	ActionFetch          ActivityAction = "fetch"
	ActionPublish        ActivityAction = "publish"
	ActionSkip           ActivityAction = "skip"
	ActionError          ActivityAction = "error"
	ActionProfileSync    ActivityAction = "profile_sync"
	ActionMediaUpload    ActivityAction = "media_upload"
	ActionTransientError ActivityAction = "transient_error"
)

// ActivityLogEntry is one append-only diagnostic row.
type ActivityLogEntry struct {
	ID        int64
	SourceID  *string
	Action    ActivityAction
	Details   map[string]interface{}
	CreatedAt time.Time
}

// EditBufferEntry is a short-lived record of a recently seen item, used by
// the edit-detection engine to recognize delete-and-repost duplicates.
type EditBufferEntry struct {
	ID                 int64
	SourceID           string
	PostID             string
	Username           string
	TextNormalized     string
	TextHash           string
	DownstreamStatusID string
	CreatedAt          time.Time
}

// Author identifies the upstream author of a post.
type Author struct {
	Username    string
	DisplayName string
}

// Media is one upstream attachment awaiting re-upload downstream.
type Media struct {
	URL      string
	MimeType string
	AltText  string
}

// QuotedPost is the minimal shape of a post quoted by another post.
type QuotedPost struct {
	ID   string
	URL  string
	Text string
}

// UniformPost is the platform-independent shape every upstream adapter
// converts its native items into (spec.md §6, "Upstream adapter interface").
type UniformPost struct {
	ID             string
	URL            string
	Text           string
	PublishedAt    time.Time
	Author         Author
	Media          []Media
	IsRepost       bool
	IsQuote        bool
	IsReply        bool
	IsThreadPost   bool
	ReplyToHandle  string
	PlatformURI    string
	HasVideo       bool
	QuotedPost     *QuotedPost
}
