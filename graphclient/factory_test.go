package graphclient

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenCredentialReturnsExchangedToken(t *testing.T) {
	expires := time.Now().Add(5 * time.Minute)
	cred := staticTokenCredential{token: "delegated-token", expiresOn: expires}

	tok, err := cred.GetToken(context.Background(), policy.TokenRequestOptions{Scopes: []string{"https://graph.microsoft.com/.default"}})
	require.NoError(t, err)
	require.Equal(t, "delegated-token", tok.Token)
	require.Equal(t, expires, tok.ExpiresOn)
}
