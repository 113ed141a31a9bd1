//go:build integration

package access

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=testuser password=testpass dbname=testdb sslmode=disable", host, port.Port())
	return dsn, func() { _ = container.Terminate(ctx) }
}

func TestPostgresGetAccess_Integration(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()

	src, err := NewPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, src.db.AutoMigrate(&accessRecord{}))

	require.NoError(t, src.db.Create(&accessRecord{
		UserID:          "u1",
		ResourceID:      "doc1",
		AccessLevel:     "share",
		ExplicitDeny:    false,
		TeamMemberships: "teamA,teamB",
		TeamGrants:      "teamA:write,teamB:admin",
		Roles:           "member",
	}).Error)

	snap, err := src.GetAccess(context.Background(), "u1", "doc1")
	require.NoError(t, err)
	require.Equal(t, LevelShare, snap.AccessLevel)
	require.ElementsMatch(t, []string{"teamA", "teamB"}, snap.TeamMemberships)
	require.Equal(t, LevelWrite, snap.TeamGrants["teamA"])
	require.Equal(t, LevelAdmin, snap.TeamGrants["teamB"])

	snap2, err := src.GetAccess(context.Background(), "u1", "missing")
	require.NoError(t, err)
	require.Equal(t, LevelNone, snap2.AccessLevel)
}
