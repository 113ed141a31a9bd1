package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// accessRecord is the GORM model backing the Postgres access table.
// Grounded on the teacher's RabbitLog model shape (db/postgres.go).
type accessRecord struct {
	UserID          string `gorm:"primaryKey;column:user_id"`
	ResourceID      string `gorm:"primaryKey;column:resource_id"`
	AccessLevel     string `gorm:"column:access_level"`
	ExplicitDeny    bool   `gorm:"column:explicit_deny"`
	TeamMemberships string `gorm:"column:team_memberships"` // comma-separated
	TeamGrants      string `gorm:"column:team_grants"`      // comma-separated "team:level" pairs
	Roles           string `gorm:"column:roles"`            // comma-separated
}

func (accessRecord) TableName() string { return "access_grants" }

// Postgres reads access records from a PostgreSQL table via GORM.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres opens a connection pool against dsn. Pool sizing follows the
// teacher's pattern of bounding idle/open connections explicitly.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, sdaperr.Wrap(sdaperr.Unavailable, "failed to connect to postgres", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, sdaperr.Wrap(sdaperr.Unavailable, "failed to obtain sql.DB handle", err)
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return &Postgres{db: db}, nil
}

func (p *Postgres) GetAccess(ctx context.Context, userID, resourceID string) (Snapshot, error) {
	var rec accessRecord
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return empty(), nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Snapshot{}, sdaperr.New(sdaperr.Timeout, "postgres access lookup timed out")
	}
	if err != nil {
		return Snapshot{}, sdaperr.Wrap(sdaperr.Unavailable, "postgres access lookup failed", err)
	}

	return Snapshot{
		AccessLevel:     ParseLevel(rec.AccessLevel),
		ExplicitDeny:    rec.ExplicitDeny,
		TeamMemberships: splitCSV(rec.TeamMemberships),
		TeamGrants:      parseTeamGrantsCSV(rec.TeamGrants),
		Roles:           splitCSV(rec.Roles),
		SourceTimestamp: time.Now(),
	}, nil
}

// parseTeamGrantsCSV parses a "team1:write,team2:admin" column value into a
// team-id→Level map, matching the couchdb backend's teamGrants semantics.
func parseTeamGrantsCSV(s string) map[string]Level {
	if s == "" {
		return nil
	}
	out := make(map[string]Level)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		team, level, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(team)] = ParseLevel(strings.TrimSpace(level))
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
