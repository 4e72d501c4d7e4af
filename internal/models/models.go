package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FileType is the kind of a node in the file hierarchy.
type FileType string

const (
	TypeFolder FileType = "folder"
	TypeFile   FileType = "file"
	TypeImage  FileType = "image"
)

// Valid reports whether t is one of the accepted kinds.
func (t FileType) Valid() bool {
	switch t {
	case TypeFolder, TypeFile, TypeImage:
		return true
	}
	return false
}

// RootID is the parentId sentinel for the top of the hierarchy.
const RootID = "0"

// ParentID identifies the parent folder of a file. The zero value and "0"
// both mean the hierarchy root. Clients may send it as a JSON number or
// string; the root is rendered back as the number 0.
type ParentID string

// IsRoot reports whether p points at the hierarchy root.
func (p ParentID) IsRoot() bool {
	return p == "" || p == RootID
}

// String returns the stored form of p.
func (p ParentID) String() string {
	if p.IsRoot() {
		return RootID
	}
	return string(p)
}

func (p ParentID) MarshalJSON() ([]byte, error) {
	if p.IsRoot() {
		return []byte("0"), nil
	}
	return json.Marshal(string(p))
}

func (p *ParentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = RootID
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ParentID(s).normalized()
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid parentId %s", data)
	}
	*p = ParentID(strconv.FormatInt(n, 10)).normalized()
	return nil
}

func (p ParentID) normalized() ParentID {
	if p.IsRoot() {
		return RootID
	}
	return p
}

// User is a registered account.
type User struct {
	CreatedAt    time.Time `json:"-"`
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
}

// Identity is the authenticated caller: only the public user fields.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Identity projects the public fields of u.
func (u *User) Identity() *Identity {
	return &Identity{ID: u.ID, Email: u.Email}
}

// File is a node of the hierarchy. LocalPath is set iff Type is not a folder
// and names the original blob; it is never serialized to clients.
type File struct {
	CreatedAt time.Time `json:"-"`
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Type      FileType  `json:"type"`
	ParentID  ParentID  `json:"parentId"`
	LocalPath string    `json:"-"`
	IsPublic  bool      `json:"isPublic"`
}

// IsFolder reports whether f is a folder.
func (f *File) IsFolder() bool {
	return f.Type == TypeFolder
}

// OwnedBy reports whether f belongs to the given user.
func (f *File) OwnedBy(userID string) bool {
	return userID != "" && f.UserID == userID
}

// ThumbnailJob is the payload of a thumbnail generation job. Only stable
// identifiers travel through the queue.
type ThumbnailJob struct {
	FileID string `json:"fileId"`
	UserID string `json:"userId"`
}

// WelcomeJob is the payload of a welcome notification job.
type WelcomeJob struct {
	UserID string `json:"userId"`
}

// ThumbnailWidths are the derivative widths generated for every image.
var ThumbnailWidths = []int{500, 250, 100}

// ValidThumbnailWidth reports whether width is one of ThumbnailWidths.
func ValidThumbnailWidth(width int) bool {
	for _, w := range ThumbnailWidths {
		if w == width {
			return true
		}
	}
	return false
}

// DerivativePath names the derivative of the blob at localPath for width.
func DerivativePath(localPath string, width int) string {
	return localPath + "_" + strconv.Itoa(width)
}
