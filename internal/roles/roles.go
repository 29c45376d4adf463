// Package roles resolves a caller's tenant-membership role, the input to
// column redaction. The lookup is an external collaborator from the query
// engine's point of view: failures degrade to the least-privileged role
// instead of failing the view.
package roles

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

// DefaultRole is the least-privileged role, assumed on lookup failure or
// absence of a membership record.
const DefaultRole = "user"

// Lookup resolves the role of (email, project).
type Lookup interface {
	ProjectRole(ctx context.Context, email, projectID string) (string, error)
}

// Resolve wraps a lookup with the degradation contract: any error or
// missing membership yields DefaultRole.
func Resolve(ctx context.Context, lookup Lookup, email, projectID string) string {
	if email == "" || projectID == "" {
		return DefaultRole
	}
	role, err := lookup.ProjectRole(ctx, email, projectID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"project_id": projectID,
		}).WithError(err).Warn("role lookup failed, using default role")
		return DefaultRole
	}
	if role == "" {
		return DefaultRole
	}
	return role
}

// DBLookup reads memberships from the project_members table.
type DBLookup struct {
	db *gorm.DB
}

// NewDBLookup returns a lookup over the given database handle.
func NewDBLookup(db *gorm.DB) *DBLookup {
	return &DBLookup{db: db}
}

// ProjectRole implements Lookup.
func (l *DBLookup) ProjectRole(ctx context.Context, email, projectID string) (string, error) {
	var member models.ProjectMember
	err := l.db.WithContext(ctx).
		Where("email = ? AND project_id = ?", email, projectID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultRole, nil
	}
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

// CachedLookup is a Redis read-through cache in front of another lookup.
// Roles change rarely; a short TTL keeps revocations timely.
type CachedLookup struct {
	next    Lookup
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewCachedLookup wraps next with a Redis cache.
func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration) *CachedLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{next: next, client: client, ttl: ttl, timeout: 2 * time.Second}
}

func (l *CachedLookup) key(email, projectID string) string {
	return "whispey:project-role:" + projectID + ":" + email
}

// ProjectRole implements Lookup. Cache failures fall through to the
// underlying lookup; only the lookup's own errors propagate.
func (l *CachedLookup) ProjectRole(ctx context.Context, email, projectID string) (string, error) {
	key := l.key(email, projectID)

	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	cached, err := l.client.Get(opCtx, key).Result()
	cancel()
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		logrus.WithError(err).Debug("role cache read failed")
	}

	role, err := l.next.ProjectRole(ctx, email, projectID)
	if err != nil {
		return "", err
	}

	opCtx, cancel = context.WithTimeout(ctx, l.timeout)
	if err := l.client.Set(opCtx, key, role, l.ttl).Err(); err != nil {
		logrus.WithError(err).Debug("role cache write failed")
	}
	cancel()

	return role, nil
}
