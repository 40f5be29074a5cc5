// Package presence tracks who is looking at a document right now.
// Each user has one Redis hash holding their latest position; a set
// per document indexes who to look at. Liveness is decided at read
// time against a 30 second window, so there is no janitor to run.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"paperbase/api/internal/store"
)

// Window is how long a heartbeat counts as "active".
const Window = 30 * time.Second

// keyTTL bounds storage for users who never come back. It plays no
// part in liveness; the window does that.
const keyTTL = 24 * time.Hour

// Viewer is one active participant on a document.
type Viewer struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Cursor      string    `json:"cursor,omitempty"`
	LastSeen    time.Time `json:"lastSeen"`
}

// userDirectory resolves user IDs to display names. Records whose user
// no longer resolves are dropped from listings.
type userDirectory interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
}

type Tracker struct {
	client *redis.Client
	users  userDirectory
	now    func() time.Time
}

func NewTracker(client *redis.Client, users userDirectory) *Tracker {
	return &Tracker{client: client, users: users, now: time.Now}
}

func userKey(userID string) string {
	return "presence:user:" + userID
}

func docKey(documentID string) string {
	return "presence:doc:" + documentID
}

// Heartbeat blind-upserts the user's presence record and registers them
// on the document's member set.
func (t *Tracker) Heartbeat(ctx context.Context, userID, documentID, workspaceID, cursor string) error {
	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, userKey(userID), map[string]any{
		"document_id":  documentID,
		"workspace_id": workspaceID,
		"cursor":       cursor,
		"last_seen":    strconv.FormatInt(t.now().UTC().UnixMilli(), 10),
		"active":       "1",
	})
	pipe.Expire(ctx, userKey(userID), keyTTL)
	pipe.SAdd(ctx, docKey(documentID), userID)
	pipe.Expire(ctx, docKey(documentID), keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// SetInactive flips the user's record inactive. No-op when the user has
// no record at all.
func (t *Tracker) SetInactive(ctx context.Context, userID string) error {
	exists, err := t.client.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("check presence: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := t.client.HSet(ctx, userKey(userID), "active", "0").Err(); err != nil {
		return fmt.Errorf("set inactive: %w", err)
	}
	return nil
}

// ListActiveForDocument returns everyone active on the document inside
// the window, excluding the caller. Members whose record went stale,
// moved to another document, or whose user no longer resolves are
// pruned from the set as they are found.
func (t *Tracker) ListActiveForDocument(ctx context.Context, documentID, excludeUserID string) ([]Viewer, error) {
	members, err := t.client.SMembers(ctx, docKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read document members: %w", err)
	}

	cutoff := t.now().UTC().Add(-Window)
	viewers := make([]Viewer, 0, len(members))
	var prune []string
	for _, userID := range members {
		record, err := t.client.HGetAll(ctx, userKey(userID)).Result()
		if err != nil {
			return nil, fmt.Errorf("read presence record: %w", err)
		}
		if len(record) == 0 || record["document_id"] != documentID {
			prune = append(prune, userID)
			continue
		}
		millis, err := strconv.ParseInt(record["last_seen"], 10, 64)
		if err != nil {
			prune = append(prune, userID)
			continue
		}
		// Active means strictly inside the window: a heartbeat exactly
		// Window old has already expired.
		lastSeen := time.UnixMilli(millis).UTC()
		if record["active"] != "1" || !lastSeen.After(cutoff) {
			continue
		}
		if userID == excludeUserID {
			continue
		}
		user, err := t.users.GetUserByID(ctx, userID)
		if err != nil {
			prune = append(prune, userID)
			continue
		}
		viewers = append(viewers, Viewer{
			UserID:      userID,
			DisplayName: user.DisplayName,
			Cursor:      record["cursor"],
			LastSeen:    lastSeen,
		})
	}

	if len(prune) > 0 {
		// Best effort; pruned members were filtered either way.
		_ = t.client.SRem(ctx, docKey(documentID), prune).Err()
	}
	return viewers, nil
}
