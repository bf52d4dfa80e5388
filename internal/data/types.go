package data

import (
	"time"

	"github.com/google/uuid"
)

// Revision numbers start at 1 and grow without gaps between the page's
// earliest retained revision and its latest.
type Revision uint32

// PageID identifies a page. UUIDv7, so ids sort by creation time.
type PageID struct {
	uuid.UUID
}

// NewPageID issues a fresh time-prefixed page id.
func NewPageID() PageID {
	return PageID{uuid.Must(uuid.NewV7())}
}

// ParsePageID parses the canonical string form of a page id.
func ParsePageID(s string) (PageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PageID{}, err
	}
	return PageID{u}, nil
}

// Bytes returns the 16-byte key form of the id.
func (id PageID) Bytes() []byte {
	b := id.UUID
	return b[:]
}

func pageIDFromBytes(b []byte) (PageID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return PageID{}, err
	}
	return PageID{u}, nil
}

// AssetID identifies an uploaded asset. UUIDv7.
type AssetID struct {
	uuid.UUID
}

// NewAssetID issues a fresh time-prefixed asset id.
func NewAssetID() AssetID {
	return AssetID{uuid.Must(uuid.NewV7())}
}

// ParseAssetID parses the canonical string form of an asset id.
func ParseAssetID(s string) (AssetID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AssetID{}, err
	}
	return AssetID{u}, nil
}

// Bytes returns the 16-byte key form of the id.
func (id AssetID) Bytes() []byte {
	b := id.UUID
	return b[:]
}

func assetIDFromBytes(b []byte) (AssetID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return AssetID{}, err
	}
	return AssetID{u}, nil
}

// LockToken authenticates the holder of a page lock. UUIDv7; the time
// prefix equals the lock issue instant.
type LockToken struct {
	uuid.UUID
}

// NewLockToken issues a fresh lock token.
func NewLockToken() LockToken {
	return LockToken{uuid.Must(uuid.NewV7())}
}

// ParseLockToken parses the canonical string form of a lock token.
func ParseLockToken(s string) (LockToken, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return LockToken{}, err
	}
	return LockToken{u}, nil
}

// Bytes returns the 16-byte key form of the token.
func (t LockToken) Bytes() []byte {
	b := t.UUID
	return b[:]
}

// UserID identifies a registered user.
type UserID struct {
	uuid.UUID
}

// NewUserID issues a fresh user id.
func NewUserID() UserID {
	return UserID{uuid.Must(uuid.NewV7())}
}

// Bytes returns the 16-byte key form of the id.
func (id UserID) Bytes() []byte {
	b := id.UUID
	return b[:]
}

// PageIndex is the per-page index record: either a full page or a draft
// that has no revisions yet.
type PageIndex struct {
	Kind  string     `json:"kind"` // "page" or "draft"
	Page  *PageInfo  `json:"page,omitempty"`
	Draft *DraftInfo `json:"draft,omitempty"`
}

const (
	indexKindPage  = "page"
	indexKindDraft = "draft"
)

// IsDraft reports whether the index entry is a draft.
func (x *PageIndex) IsDraft() bool {
	return x.Kind == indexKindDraft
}

// LockToken returns the lock token linked from the entry, if any. Drafts
// carry their lock in the lock table only, keyed by page id scan.
func (x *PageIndex) LockToken() *LockToken {
	if x.Page != nil {
		return x.Page.LockToken
	}
	return nil
}

// PageInfo is the index record of a promoted page.
type PageInfo struct {
	ID              PageID     `json:"id"`
	Path            string     `json:"path"`
	PathDeleted     bool       `json:"path_deleted"` // path is the last-deleted path, not a live one
	Latest          Revision   `json:"latest"`
	Earliest        Revision   `json:"earliest"`
	LockToken       *LockToken `json:"lock_token,omitempty"`
	RenameRevisions []Revision `json:"rename_revisions"`
}

// NewPageInfo builds the index record for a page promoted at revision 1.
func NewPageInfo(id PageID, path string) *PageInfo {
	return &PageInfo{
		ID:              id,
		Path:            path,
		Latest:          1,
		Earliest:        1,
		RenameRevisions: []Revision{1},
	}
}

// PushRenameRevision records rev as a revision on which the path changed.
func (p *PageInfo) PushRenameRevision(rev Revision) {
	p.RenameRevisions = append(p.RenameRevisions, rev)
}

// DropRenameRevisionsBelow removes rename history entries evicted by
// compaction. The creation entry survives only while revision 1 does.
func (p *PageInfo) DropRenameRevisionsBelow(keepFrom Revision) {
	kept := p.RenameRevisions[:0]
	for _, rev := range p.RenameRevisions {
		if rev >= keepFrom {
			kept = append(kept, rev)
		}
	}
	p.RenameRevisions = kept
}

// DraftInfo is the index record of a page-in-creation.
type DraftInfo struct {
	ID   PageID `json:"id"`
	Path string `json:"path"`
}

// PageSource is one stored revision of a page.
type PageSource struct {
	Revision  Revision    `json:"revision"`
	Timestamp string      `json:"timestamp"`
	UserName  string      `json:"user_name"`
	Rename    *RenameInfo `json:"rename,omitempty"`
	Source    string      `json:"source"`
}

// RenameInfo records a path change carried on a revision. From is absent on
// the creation revision. LinkRefs maps every internal link in the source at
// that revision to the page id it resolved to, nil when the target did not
// exist.
type RenameInfo struct {
	From     *string            `json:"from,omitempty"`
	To       string             `json:"to"`
	LinkRefs map[string]*PageID `json:"link_refs"`
}

// LockInfo is the state of a held page lock.
type LockInfo struct {
	Token    LockToken `json:"token"`
	PageID   PageID    `json:"page_id"`
	UserName string    `json:"user_name"`
	Expire   time.Time `json:"expire"`
}

// NewLockInfo issues a lock on the page for user, expiring after ttl.
func NewLockInfo(pageID PageID, userName string, ttl time.Duration, now time.Time) *LockInfo {
	return &LockInfo{
		Token:    NewLockToken(),
		PageID:   pageID,
		UserName: userName,
		Expire:   now.Add(ttl),
	}
}

// Expired reports whether the lock has passed its TTL.
func (l *LockInfo) Expired(now time.Time) bool {
	return !l.Expire.After(now)
}

// Renew rotates the token and pushes the expiry out by ttl. The previous
// token is dead the moment the renewal commits.
func (l *LockInfo) Renew(ttl time.Duration, now time.Time) {
	l.Token = NewLockToken()
	l.Expire = now.Add(ttl)
}

// AssetInfo is the metadata record of an uploaded asset. A nil PageID
// means the owning page was hard-deleted and the asset is a zombie.
type AssetInfo struct {
	ID        AssetID `json:"id"`
	PageID    *PageID `json:"page_id,omitempty"`
	FileName  string  `json:"file_name"`
	Mime      string  `json:"mime"`
	Size      int64   `json:"size"`
	UserName  string  `json:"user_name"`
	Timestamp string  `json:"timestamp"`
	Deleted   bool    `json:"deleted"`
}

// IsZombie reports whether the asset lost its owner to a hard delete.
func (a *AssetInfo) IsZombie() bool {
	return a.PageID == nil
}

// UserInfo is a registered user record.
type UserInfo struct {
	ID           UserID `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
}
