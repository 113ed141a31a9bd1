// Package graphclient implements the Graph Client Factory (component D): it
// produces delegated (user-context) and app-only (background worker) Graph
// SDK clients for Microsoft Graph, neither ever exposing a raw token to the
// caller. The Graph SDK clients send their requests over the SDK's default
// HTTP client, not through the resilience fabric. Grounded on
// the teacher's cloud/azuregraph.go azidentity + msgraph-sdk-go wiring
// (NewGraphServiceClientWithCredentials plus typed resource builders).
package graphclient

import (
	"context"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"

	"github.com/spaarke-dev/sdap-bff/obo"
	"github.com/spaarke-dev/sdap-bff/principal"
)

// Config carries the parameters needed to build Graph clients.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Factory builds Graph clients. It owns no per-request state; every method
// is safe for concurrent use.
type Factory struct {
	cfg       Config
	cred      *azidentity.ClientSecretCredential
	exchanger *obo.Exchanger
}

// New builds a Factory. resilienceTransport should be a *resilience.Transport
// (component E); it carries only the app-only credential's own token
// acquisition. Graph API requests made by the returned clients do not use it.
func New(cfg Config, exchanger *obo.Exchanger, resilienceTransport http.RoundTripper) (*Factory, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret,
		&azidentity.ClientSecretCredentialOptions{
			ClientOptions: azcore.ClientOptions{Transport: &http.Client{Transport: resilienceTransport}},
		})
	if err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, cred: cred, exchanger: exchanger}, nil
}

// staticTokenCredential adapts an already-exchanged bearer token (produced
// by obo.Exchanger) to azcore.TokenCredential, so the same
// NewGraphServiceClientWithCredentials constructor the teacher uses for
// app-only access also builds the per-request delegated client.
type staticTokenCredential struct {
	token     string
	expiresOn time.Time
}

func (s staticTokenCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: s.token, ExpiresOn: s.expiresOn}, nil
}

// Client wraps a per-request Microsoft Graph SDK client. Handlers never see
// the underlying bearer token or azcore.TokenCredential.
type Client struct {
	sdk *msgraphsdk.GraphServiceClient
}

// DelegatedClient obtains (via the OBO exchanger) a downstream token scoped
// to Microsoft Graph on behalf of principal p, using assertion as the
// inbound user token, and returns a Client built on top of it.
func (f *Factory) DelegatedClient(ctx context.Context, p *principal.Principal, assertion string) (*Client, error) {
	tok, err := f.exchanger.Exchange(ctx, assertion, f.cfg.Scopes)
	if err != nil {
		return nil, err
	}
	cred := staticTokenCredential{token: tok, expiresOn: time.Now().Add(5 * time.Minute)}
	sdk, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, f.cfg.Scopes)
	if err != nil {
		return nil, err
	}
	return &Client{sdk: sdk}, nil
}

// AppOnlyClient acquires an application-permission token directly from Azure
// AD (no OBO exchange, no user context) for background worker paths, and
// returns a Client built on the same credential the resilience-wrapped
// transport was configured on in New.
func (f *Factory) AppOnlyClient(ctx context.Context) (*Client, error) {
	sdk, err := msgraphsdk.NewGraphServiceClientWithCredentials(f.cred, f.cfg.Scopes)
	if err != nil {
		return nil, err
	}
	return &Client{sdk: sdk}, nil
}

// DriveItemContent downloads the raw bytes of a drive item's content stream,
// mirroring the teacher's typed-builder call chain
// (Users().ByUserId(...).MailFolders().ByMailFolderId(...).Messages().Get)
// applied to the drives/items/content resource SDAP's preview route proxies.
func (c *Client) DriveItemContent(ctx context.Context, driveID, itemID string) ([]byte, error) {
	return c.sdk.Drives().
		ByDriveId(driveID).
		Items().
		ByDriveItemId(itemID).
		Content().
		Get(ctx, nil)
}
