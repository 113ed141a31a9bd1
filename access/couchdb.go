package access

import (
	"context"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // registers the "couch" driver

	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

// CouchDB reads access records from a CouchDB database keyed by document id
// "<userID>:<resourceID>". Grounded on the teacher's CouchDBService / kivik
// client wiring.
type CouchDB struct {
	client *kivik.Client
	db     *kivik.DB
}

// accessDoc is the stored shape of one access record. TeamGrants maps a
// team identifier to the level name that team is granted on this resource,
// independent of the record's own accessLevel.
type accessDoc struct {
	AccessLevel     string            `json:"accessLevel"`
	ExplicitDeny    bool              `json:"explicitDeny"`
	TeamMemberships []string          `json:"teamMemberships"`
	TeamGrants      map[string]string `json:"teamGrants"`
	Roles           []string          `json:"roles"`
}

// NewCouchDB dials url and opens dbName. It does not create the database;
// the metadata store is owned by another system.
func NewCouchDB(ctx context.Context, url, dbName string) (*CouchDB, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, sdaperr.Wrap(sdaperr.Unavailable, "failed to connect to couchdb", err)
	}
	return &CouchDB{client: client, db: client.DB(dbName)}, nil
}

func (c *CouchDB) GetAccess(ctx context.Context, userID, resourceID string) (Snapshot, error) {
	row := c.db.Get(ctx, docID(userID, resourceID))
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return empty(), nil
		}
		if ctx.Err() == context.DeadlineExceeded {
			return Snapshot{}, sdaperr.New(sdaperr.Timeout, "couchdb access lookup timed out")
		}
		return Snapshot{}, sdaperr.Wrap(sdaperr.Unavailable, "couchdb access lookup failed", row.Err())
	}

	var doc accessDoc
	if err := row.ScanDoc(&doc); err != nil {
		return Snapshot{}, sdaperr.Wrap(sdaperr.Unavailable, "couchdb access document malformed", err)
	}

	return Snapshot{
		AccessLevel:     ParseLevel(doc.AccessLevel),
		ExplicitDeny:    doc.ExplicitDeny,
		TeamMemberships: doc.TeamMemberships,
		TeamGrants:      parseTeamGrants(doc.TeamGrants),
		Roles:           doc.Roles,
		SourceTimestamp: time.Now(),
	}, nil
}

func docID(userID, resourceID string) string {
	return userID + ":" + resourceID
}

// parseTeamGrants converts the stored team-id→level-name map into a
// team-id→Level map, dropping unrecognized level names to LevelNone rather
// than rejecting the whole document.
func parseTeamGrants(raw map[string]string) map[string]Level {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]Level, len(raw))
	for team, level := range raw {
		out[team] = ParseLevel(level)
	}
	return out
}
