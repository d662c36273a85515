package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"freightdesk/internal/config"
	"freightdesk/internal/featureflags"
	"freightdesk/internal/middleware"
	"freightdesk/internal/models"
	"freightdesk/internal/notifications"
	"freightdesk/internal/repository"
	"freightdesk/internal/service"
	"freightdesk/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a Server directly to avoid re-registering Prometheus
// collectors across tests. Redis is nil: events degrade to no-ops.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	db := testutil.NewTestDB(t)
	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notifier := notifications.NewNotifier(nil)

	return &Server{
		config: &config.Config{
			JWTSecret:    "test-secret-test-secret-test-secret",
			Env:          "test",
			FeatureFlags: "live_changes=on",
		},
		db:              db,
		workflowRepo:    workflowRepo,
		auditRepo:       auditRepo,
		notifier:        notifier,
		featureFlags:    featureflags.NewManager("live_changes=on"),
		workflowService: service.NewWorkflowService(workflowRepo, auditRepo, notifier),
	}
}

// mountAs wires the workflow routes behind a stub auth layer that injects the
// given actor, mirroring what AuthRequired sets in locals.
func mountAs(app *fiber.App, s *Server, actorID, role string, roles ...string) {
	inject := func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalActorID, actorID)
		c.Locals(middleware.LocalActorRole, role)
		c.Locals(middleware.LocalCapabilities, models.ResolveCapabilities(roles))
		return c.Next()
	}

	api := app.Group("/api", inject)
	workflow := api.Group("/workflow/:kind")
	workflow.Post("/entities", s.RegisterEntity)
	workflow.Get("/entities", s.ListEntities)
	workflow.Post("/entities/:id/transitions", s.ApplyTransition)
	workflow.Get("/entities/:id/audit", s.GetEntityAudit)
	workflow.Get("/entities/:id", s.GetEntity)
	api.Get("/audit", s.QueryAudit)
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, payload
}

func registerCarrier(t *testing.T, app *fiber.App, entityID string) {
	t.Helper()
	resp, _ := doJSON(t, app, http.MethodPost, "/api/workflow/carrier/entities",
		`{"entity_id":"`+entityID+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRegisterEntityEndpoint(t *testing.T) {
	s := newTestServer(t)
	app := fiber.New()
	mountAs(app, s, "adm-1", "admin", "admin")

	resp, body := doJSON(t, app, http.MethodPost, "/api/workflow/carrier/entities",
		`{"entity_id":"CAR-100"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var entity models.WorkflowEntity
	require.NoError(t, json.Unmarshal(body, &entity))
	assert.Equal(t, models.StatusPending, entity.ApprovalStatus)
	assert.Equal(t, uint64(1), entity.Version)

	// Duplicate registration conflicts.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/workflow/carrier/entities",
		`{"entity_id":"CAR-100"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown kind is a validation failure.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/workflow/shipment/entities",
		`{"entity_id":"SHP-1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestApplyTransitionEndpoint(t *testing.T) {
	s := newTestServer(t)

	adminApp := fiber.New()
	mountAs(adminApp, s, "adm-1", "admin", "admin")
	managerApp := fiber.New()
	mountAs(managerApp, s, "mgr-1", "manager", "manager")
	accountsApp := fiber.New()
	mountAs(accountsApp, s, "acc-1", "accounts", "accounts")

	registerCarrier(t, adminApp, "CAR-1")

	t.Run("forbidden without capability", func(t *testing.T) {
		resp, body := doJSON(t, accountsApp, http.MethodPost,
			"/api/workflow/carrier/entities/CAR-1/transitions",
			`{"transition":"approve_manager"}`)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		var errResp models.ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, models.CodeForbidden, errResp.Code)
	})

	t.Run("manager approves", func(t *testing.T) {
		resp, body := doJSON(t, managerApp, http.MethodPost,
			"/api/workflow/carrier/entities/CAR-1/transitions",
			`{"transition":"approve_manager","notes":"docs look complete"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var entity models.WorkflowEntity
		require.NoError(t, json.Unmarshal(body, &entity))
		assert.Equal(t, models.StatusManagerApproved, entity.ApprovalStatus)
		assert.Equal(t, uint64(2), entity.Version)
	})

	t.Run("skipping a stage is invalid state", func(t *testing.T) {
		resp, body := doJSON(t, managerApp, http.MethodPost,
			"/api/workflow/carrier/entities/CAR-1/transitions",
			`{"transition":"approve_manager"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var errResp models.ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, models.CodeInvalidState, errResp.Code)
	})

	t.Run("accounts completes approval", func(t *testing.T) {
		resp, body := doJSON(t, accountsApp, http.MethodPost,
			"/api/workflow/carrier/entities/CAR-1/transitions",
			`{"transition":"approve_accounts"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var entity models.WorkflowEntity
		require.NoError(t, json.Unmarshal(body, &entity))
		assert.Equal(t, models.StatusApproved, entity.ApprovalStatus)
		assert.Equal(t, uint64(3), entity.Version)
	})

	t.Run("unknown transition", func(t *testing.T) {
		resp, _ := doJSON(t, adminApp, http.MethodPost,
			"/api/workflow/carrier/entities/CAR-1/transitions",
			`{"transition":"fast_track"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("missing entity", func(t *testing.T) {
		resp, _ := doJSON(t, managerApp, http.MethodPost,
			"/api/workflow/carrier/entities/CAR-404/transitions",
			`{"transition":"approve_manager"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRejectRequiresReasonOverHTTP(t *testing.T) {
	s := newTestServer(t)
	app := fiber.New()
	mountAs(app, s, "adm-1", "admin", "admin")

	registerCarrier(t, app, "CAR-1")

	resp, body := doJSON(t, app, http.MethodPost,
		"/api/workflow/carrier/entities/CAR-1/transitions",
		`{"transition":"reject"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, models.CodeValidation, errResp.Code)

	resp, body = doJSON(t, app, http.MethodPost,
		"/api/workflow/carrier/entities/CAR-1/transitions",
		`{"transition":"reject","reason":"duplicate of CAR-9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entity models.WorkflowEntity
	require.NoError(t, json.Unmarshal(body, &entity))
	assert.Equal(t, models.StatusRejected, entity.ApprovalStatus)
	require.NotNil(t, entity.RejectionReason)
	assert.Equal(t, "duplicate of CAR-9", *entity.RejectionReason)
}

func TestDisableToggleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminApp := fiber.New()
	mountAs(adminApp, s, "adm-1", "admin", "admin")
	managerApp := fiber.New()
	mountAs(managerApp, s, "mgr-1", "manager", "manager")

	registerCarrier(t, adminApp, "CAR-1")

	// Managers cannot toggle suspension.
	resp, _ := doJSON(t, managerApp, http.MethodPost,
		"/api/workflow/carrier/entities/CAR-1/transitions",
		`{"transition":"disable"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := doJSON(t, adminApp, http.MethodPost,
		"/api/workflow/carrier/entities/CAR-1/transitions",
		`{"transition":"disable"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entity models.WorkflowEntity
	require.NoError(t, json.Unmarshal(body, &entity))
	assert.True(t, entity.IsDisabled)
	assert.Equal(t, models.StatusPending, entity.ApprovalStatus, "disable must not change the stage")

	// Repeating the disable is a no-op: same version, 200.
	resp, body = doJSON(t, adminApp, http.MethodPost,
		"/api/workflow/carrier/entities/CAR-1/transitions",
		`{"transition":"disable"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again models.WorkflowEntity
	require.NoError(t, json.Unmarshal(body, &again))
	assert.Equal(t, entity.Version, again.Version)
}

func TestEntityAuditEndpoint(t *testing.T) {
	s := newTestServer(t)
	app := fiber.New()
	mountAs(app, s, "adm-1", "admin", "admin")

	registerCarrier(t, app, "CAR-1")
	resp, _ := doJSON(t, app, http.MethodPost,
		"/api/workflow/carrier/entities/CAR-1/transitions",
		`{"transition":"approve_manager"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodGet, "/api/workflow/carrier/entities/CAR-1/audit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Records []models.AuditRecord `json:"records"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Equal(t, 2, payload.Count)
	assert.Equal(t, models.ActionCreated, payload.Records[0].Action)
	assert.Equal(t, models.ActionManagerApproved, payload.Records[1].Action)
	assert.Equal(t, "adm-1", payload.Records[1].ActorID)
}

func TestQueryAuditEndpointFilters(t *testing.T) {
	s := newTestServer(t)
	app := fiber.New()
	mountAs(app, s, "adm-1", "admin", "admin")

	registerCarrier(t, app, "CAR-1")
	resp, _ := doJSON(t, app, http.MethodPost, "/api/workflow/dispatch/entities",
		`{"entity_id":"DSP-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodGet, "/api/audit?kind=carrier", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Records []models.AuditRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Records, 1)
	assert.Equal(t, models.EntityKindCarrier, payload.Records[0].EntityKind)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/audit?action=teleported", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/audit?from=yesterday", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListEntitiesEndpoint(t *testing.T) {
	s := newTestServer(t)
	app := fiber.New()
	mountAs(app, s, "adm-1", "admin", "admin")

	registerCarrier(t, app, "CAR-1")
	registerCarrier(t, app, "CAR-2")

	resp, body := doJSON(t, app, http.MethodGet, "/api/workflow/carrier/entities?status=pending", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Entities []models.WorkflowEntity `json:"entities"`
		Count    int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 2, payload.Count)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/workflow/carrier/entities?status=limbo", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
