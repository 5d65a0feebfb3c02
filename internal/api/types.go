package api

import (
	"encoding/json"
	"time"
)

// envelope is the response wrapper used by every endpoint. Upload responses
// carry per-file outcomes in Results instead of Data.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Results json.RawMessage `json:"results"`
}

// StorageStats is the server's view of a user's storage consumption.
type StorageStats struct {
	TotalSize       int64   `json:"totalSize"`
	Quota           int64   `json:"quota"`
	RemainingQuota  int64   `json:"remainingQuota"`
	UsagePercentage float64 `json:"usagePercentage"`
	FilesCount      int     `json:"filesCount"`
}

// User is the authenticated user's profile. StorageStats is nil when the
// server did not report usage.
type User struct {
	ID           string        `json:"id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	IsAdmin      bool          `json:"isAdmin"`
	StorageStats *StorageStats `json:"storageStats,omitempty"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	c := *u
	if u.StorageStats != nil {
		stats := *u.StorageStats
		c.StorageStats = &stats
	}

	return &c
}

// TokenPair is an access/refresh token pair issued by login or refresh.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is the data payload of a successful login.
type LoginResult struct {
	TokenPair
	User *User `json:"user"`
}

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Confirmation is the server's acknowledgement of an action that returns no
// resource, such as registration or logout.
type Confirmation struct {
	Message string `json:"message"`
}

// Entry types.
const (
	EntryFile   = "file"
	EntryFolder = "folder"
)

// Entry is a file or folder in the remote namespace.
type Entry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// IsFolder reports whether the entry is a folder.
func (e *Entry) IsFolder() bool { return e.Type == EntryFolder }

// UnmarshalJSON accepts either "id" or "_id" for the identifier and tolerates
// a missing or empty lastModified.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID           string `json:"id"`
		MongoID      string `json:"_id"` //nolint:tagliatelle // server field name
		Name         string `json:"name"`
		Path         string `json:"path"`
		Type         string `json:"type"`
		Size         int64  `json:"size"`
		LastModified string `json:"lastModified"`
	}

	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*e = Entry{
		ID:   raw.ID,
		Name: raw.Name,
		Path: raw.Path,
		Type: raw.Type,
		Size: raw.Size,
	}

	if e.ID == "" {
		e.ID = raw.MongoID
	}

	if raw.LastModified != "" {
		if t, err := time.Parse(time.RFC3339, raw.LastModified); err == nil {
			e.LastModified = t
		}
	}

	return nil
}

// Listing is one page of a folder's contents.
type Listing struct {
	Path  string  `json:"path"`
	Items []Entry `json:"items"`
	Total int     `json:"total"`
}

// FolderInfo describes a folder and its aggregate contents.
type FolderInfo struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	FilesCount int       `json:"filesCount"`
	TotalSize  int64     `json:"totalSize"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FileInfo is the metadata of a stored object.
type FileInfo struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	LastModified time.Time `json:"lastModified"`
}

// DownloadLink is a short-lived URL for fetching file content.
type DownloadLink struct {
	DownloadURL string `json:"downloadUrl"`
	FileName    string `json:"fileName"`
	ExpiresIn   int    `json:"expiresIn"`
}

// ShareOptions controls a new share link. A nil MaxAccess means unlimited.
type ShareOptions struct {
	ExpiresIn int    `json:"expiresIn"`
	MaxAccess *int   `json:"maxAccess"`
	Password  string `json:"password,omitempty"`
}

// DefaultShareExpiryDays is the share lifetime used when none is given.
const DefaultShareExpiryDays = 7

// Share is a public link to a file.
type Share struct {
	ID          string    `json:"id"`
	FileID      string    `json:"fileId"`
	FileName    string    `json:"fileName"`
	ShortCode   string    `json:"shortCode"`
	ShareURL    string    `json:"shareUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	MaxAccess   *int      `json:"maxAccess"`
	AccessCount int       `json:"accessCount"`
	IsActive    bool      `json:"isActive"`
	HasPassword bool      `json:"hasPassword"`
}

// PublicShare is what an anonymous visitor sees for a share code.
type PublicShare struct {
	FileName         string    `json:"fileName"`
	FileSize         int64     `json:"fileSize"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RequiresPassword bool      `json:"requiresPassword"`
}

// UploadResult is the per-file outcome reported by the upload endpoint.
type UploadResult struct {
	Success      bool   `json:"success"`
	OriginalName string `json:"originalName"`
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	Error        string `json:"error"`
}
