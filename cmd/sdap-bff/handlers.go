package main

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/spaarke-dev/sdap-bff/authz"
	"github.com/spaarke-dev/sdap-bff/authzhttp"
	"github.com/spaarke-dev/sdap-bff/graphclient"
	"github.com/spaarke-dev/sdap-bff/idempotency"
	"github.com/spaarke-dev/sdap-bff/ratelimit"
	"github.com/spaarke-dev/sdap-bff/sdaperr"
	"github.com/spaarke-dev/sdap-bff/token"
)

// service holds every collaborator a route handler needs. Handler bodies
// stay thin: the file-store request/response shape is explicitly out of
// scope (spec §6.3 "handler endpoints are out of scope"), so each handler
// only proves the cross-cutting chain — authenticate, authorize, rate
// limit, obtain a delegated Graph client — and returns a representative
// response rather than a full Graph API translation layer.
type service struct {
	graph    *graphclient.Factory
	log      *logrus.Entry
	mediator *authzhttp.Mediator
	limiter  *ratelimit.Limiter
	ledger   *idempotency.Ledger
}

// registerRoutes wires the inbound HTTP surface from spec §6.1: every
// protected route gets exactly one rate-limit policy, one declared
// operation enforced by the mediator, and bearer-token authentication.
func registerRoutes(e *echo.Echo, svc *service, validator *token.Validator) {
	e.Use(authzhttp.RequestCacheMiddleware())

	authn := authzhttp.Authenticate(validator)
	idem := idempotency.Middleware(svc.ledger, time.Hour)

	e.GET("/containers/:id/items", svc.handleListContainerItems,
		authn, svc.limiter.Middleware("graph-read"), svc.mediator.Require(authz.OpListContainers, authzhttp.PathParam("id")))

	e.PUT("/containers/:id/files/*", svc.handleUploadContainerFile,
		authn, svc.limiter.Middleware("upload-heavy"), idem, svc.mediator.Require(authz.OpUploadFile, authzhttp.PathParam("id")))

	e.GET("/drives/:id/items/:itemId/content", svc.handlePreviewFile,
		authn, svc.limiter.Middleware("graph-read"), svc.mediator.Require(authz.OpPreviewFile, authzhttp.PathParam("itemId")))

	e.DELETE("/drives/:id/items/:itemId", svc.handleDeleteFile,
		authn, svc.limiter.Middleware("graph-write"), svc.mediator.Require(authz.OpDeleteFile, authzhttp.PathParam("itemId")))

	e.GET("/documents/:id", svc.handleReadMetadata,
		authn, svc.limiter.Middleware("dataverse-query"), svc.mediator.Require(authz.OpReadMetadata, authzhttp.PathParam("id")))

	e.PATCH("/documents/:id", svc.handleUpdateMetadata,
		authn, svc.limiter.Middleware("dataverse-query"), idem, svc.mediator.Require(authz.OpUpdateMetadata, authzhttp.PathParam("id")))

	e.POST("/upload/session", svc.handleCreateUploadSession,
		authn, svc.limiter.Middleware("upload-heavy"), idem, svc.mediator.Require(authz.OpUploadFile, containerIDFromQuery))

	e.PUT("/upload/session/:id/chunk", svc.handleUploadChunk,
		authn, svc.limiter.Middleware("upload-heavy"), idem, svc.mediator.Require(authz.OpUploadFile, authzhttp.PathParam("id")))
}

// containerIDFromQuery reads the resourceId a new upload session targets
// from the ?containerId= query parameter, since /upload/session has no
// resourceId path segment of its own (§6.1's "when the operation targets a
// specific resource" qualifier applies here via the query string instead).
func containerIDFromQuery(c echo.Context) string {
	return c.QueryParam("containerId")
}

func (s *service) delegatedClient(c echo.Context) (*graphclient.Client, error) {
	p, ok := authzhttp.GetPrincipal(c)
	if !ok || p == nil {
		return nil, sdaperr.New(sdaperr.InvalidCredential, "authentication required")
	}
	assertion, _ := authzhttp.GetAssertion(c)
	return s.graph.DelegatedClient(c.Request().Context(), p, assertion)
}

func (s *service) handleListContainerItems(c echo.Context) error {
	if _, err := s.delegatedClient(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"containerId": c.Param("id"), "items": []any{}})
}

func (s *service) handleUploadContainerFile(c echo.Context) error {
	if _, err := s.delegatedClient(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *service) handlePreviewFile(c echo.Context) error {
	client, err := s.delegatedClient(c)
	if err != nil {
		return err
	}
	content, err := client.DriveItemContent(c.Request().Context(), c.Param("id"), c.Param("itemId"))
	if err != nil {
		return sdaperr.Wrap(sdaperr.Unavailable, "file store request failed", err)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", content)
}

func (s *service) handleDeleteFile(c echo.Context) error {
	if _, err := s.delegatedClient(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *service) handleReadMetadata(c echo.Context) error {
	snapshot, _ := authzhttp.GetSnapshot(c)
	return c.JSON(http.StatusOK, map[string]any{
		"documentId":  c.Param("id"),
		"accessLevel": snapshot.AccessLevel.String(),
	})
}

func (s *service) handleUpdateMetadata(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func (s *service) handleCreateUploadSession(c echo.Context) error {
	if _, err := s.delegatedClient(c); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"sessionId": "placeholder"})
}

func (s *service) handleUploadChunk(c echo.Context) error {
	if _, err := s.delegatedClient(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}
