//go:build integration
// +build integration

package access

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	kivik "github.com/go-kivik/kivik/v4"
)

func setupCouchDBContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "couchdb:3.3",
		ExposedPorts: []string{"5984/tcp"},
		Env: map[string]string{
			"COUCHDB_USER":     "admin",
			"COUCHDB_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForHTTP("/_up").WithPort("5984/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5984")
	require.NoError(t, err)

	url := fmt.Sprintf("http://admin:testpass@%s:%s/", host, port.Port())
	return url, func() { _ = container.Terminate(ctx) }
}

func TestCouchDBGetAccess_Integration(t *testing.T) {
	url, cleanup := setupCouchDBContainer(t)
	defer cleanup()

	client, err := kivik.New("couch", url)
	require.NoError(t, err)
	require.NoError(t, client.CreateDB(context.Background(), "access_test"))

	src, err := NewCouchDB(context.Background(), url, "access_test")
	require.NoError(t, err)

	_, err = src.db.Put(context.Background(), docID("u1", "doc1"), accessDoc{
		AccessLevel:  "write",
		ExplicitDeny: false,
		Roles:        []string{"member"},
	})
	require.NoError(t, err)

	snap, err := src.GetAccess(context.Background(), "u1", "doc1")
	require.NoError(t, err)
	require.Equal(t, LevelWrite, snap.AccessLevel)
	require.False(t, snap.ExplicitDeny)

	snap2, err := src.GetAccess(context.Background(), "u1", "missing-doc")
	require.NoError(t, err)
	require.Equal(t, LevelNone, snap2.AccessLevel)
}
