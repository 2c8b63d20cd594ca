package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chartline/internal/catalog"
	"chartline/internal/classify"
	"chartline/internal/domain"
	"chartline/internal/engine"
	"chartline/internal/engine/auth"
	"chartline/internal/registry"
	"chartline/internal/stats"
	"chartline/internal/store"
)

const devTokenTTL = 12 * time.Hour

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid approval transition rejected -> approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"rejected\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the chartline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Chartline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCatalog(group, cfg.Engine)
	registerClassify(group, cfg.Engine)
	registerLibrary(group, cfg.Engine)
	registerArtifacts(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	if cfg.Auth.AllowDevHeaders {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var om auth.OrgMismatchError
	if errors.As(err, &om) {
		return newAPIError(http.StatusForbidden, "forbidden_org", err.Error(), map[string]any{"org_id": om.Requested})
	}
	if errors.Is(err, auth.ErrUnauthenticated) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var te domain.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": te.From, "to": te.To})
	}
	var pe *registry.PersistError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusServiceUnavailable, "persistence_failed", "storage unavailable, nothing was changed", map[string]any{"op": pe.Op})
	}
	if errors.Is(err, engine.ErrNotImplemented) {
		return newAPIError(http.StatusNotImplemented, "not_implemented", err.Error(), nil)
	}
	if errors.Is(err, domain.ErrInvalid) || errors.Is(err, store.ErrInvalidOrg) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// viewerFor resolves the caller and checks it may address orgID.
func viewerFor(ctx context.Context, e engine.Engine, orgID string) (domain.Viewer, error) {
	v, authErr := viewerFromContext(ctx)
	if authErr != nil {
		return domain.Viewer{}, authErr
	}
	if err := e.Auth.EnsureViewer(v, orgID); err != nil {
		return domain.Viewer{}, handleError(err)
	}
	return v, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// applyAuthSecurity marks organization routes as requiring a bearer token; catalog,
// classification and health stay open.
func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	orgsPrefix := path.Join("/", basePath, "orgs")
	mePath := path.Join("/", basePath, "me")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if strings.HasPrefix(route, orgsPrefix) || route == mePath {
				op.Security = security
				continue
			}
			op.Security = []map[string][]string{}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Chartline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type templatesOutput struct {
	Body TemplatesResponse `json:"body"`
}

func templatesBody(items []domain.Template) *templatesOutput {
	return &templatesOutput{Body: TemplatesResponse{Items: nonNilSlice(items)}}
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "catalog-categories",
		Method:      http.MethodGet,
		Path:        "/catalog/categories",
		Summary:     "List template categories",
		Tags:        []string{"catalog"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CategoriesResponse `json:"body"`
	}, error) {
		return &struct {
			Body CategoriesResponse `json:"body"`
		}{Body: CategoriesResponse{Items: nonNilSlice(e.Catalog.Categories())}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "catalog-search",
		Method:      http.MethodGet,
		Path:        "/catalog/templates",
		Summary:     "Search templates",
		Tags:        []string{"catalog"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Query     string   `query:"query"`
		Category  string   `query:"category" enum:"sales,marketing,finance,operations,hr,customer,general"`
		Shape     string   `query:"shape" enum:"bar,line,area,pie,doughnut,scatter,radar,polar_area"`
		Tags      []string `query:"tags"`
		MinRating float64  `query:"min_rating" minimum:"0" maximum:"5"`
	}) (*templatesOutput, error) {
		f := catalog.Filter{
			Query:     input.Query,
			Category:  domain.Category(input.Category),
			Shape:     domain.Shape(input.Shape),
			Tags:      input.Tags,
			MinRating: input.MinRating,
		}
		return templatesBody(e.Catalog.Search(f)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "catalog-template",
		Method:      http.MethodGet,
		Path:        "/catalog/templates/{template_id}",
		Summary:     "Get template",
		Tags:        []string{"catalog"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TemplateID string `path:"template_id"`
	}) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		t, ok := e.Catalog.Template(input.TemplateID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "template not found", map[string]any{"template_id": input.TemplateID})
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: t}, nil
	})

	for _, ranked := range []struct {
		name string
		list func() []domain.Template
	}{
		{"featured", e.Catalog.Featured},
		{"popular", e.Catalog.Popular},
		{"recent", e.Catalog.Recent},
	} {
		huma.Register(api, huma.Operation{
			OperationID: "catalog-" + ranked.name,
			Method:      http.MethodGet,
			Path:        "/catalog/" + ranked.name,
			Summary:     "List " + ranked.name + " templates",
			Tags:        []string{"catalog"},
		}, func(ctx context.Context, _ *struct{}) (*templatesOutput, error) {
			return templatesBody(ranked.list()), nil
		})
	}
}

func registerClassify(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "classify",
		Method:      http.MethodPost,
		Path:        "/classify",
		Summary:     "Classify a chart request",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ClassifyRequest `json:"body"`
	}) (*struct {
		Body classify.Result `json:"body"`
	}, error) {
		return &struct {
			Body classify.Result `json:"body"`
		}{Body: e.Classify(input.Body.Prompt)}, nil
	})
}

type orgPath struct {
	OrgID string `path:"org_id"`
}

type artifactsOutput struct {
	Body ArtifactsResponse `json:"body"`
}

func registerLibrary(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "org-library",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/library",
		Summary:     "Viewer library",
		Tags:        []string{"library"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body registry.Library `json:"body"`
	}, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		lib, err := e.Library(ctx, v)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body registry.Library `json:"body"`
		}{Body: lib}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-stats",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/stats",
		Summary:     "Library statistics",
		Tags:        []string{"library"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body stats.Stats `json:"body"`
	}, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		s, err := e.Stats(ctx, v)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body stats.Stats `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-pending",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/pending",
		Summary:     "Artifacts awaiting the viewer's decision",
		Tags:        []string{"library"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *orgPath) (*artifactsOutput, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		items, err := e.Pending(ctx, v)
		if err != nil {
			return nil, handleError(err)
		}
		return &artifactsOutput{Body: ArtifactsResponse{Items: nonNilSlice(items)}}, nil
	})
}

type artifactPath struct {
	OrgID      string `path:"org_id"`
	ArtifactID string `path:"artifact_id"`
}

type artifactOutput struct {
	Body domain.OrgArtifact `json:"body"`
}

func registerArtifacts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-artifact",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/artifacts",
		Summary:       "Generate a chart, optionally saving it to the organization",
		Tags:          []string{"artifacts"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string          `path:"org_id"`
		Body  GenerateRequest `json:"body"`
	}) (*struct {
		Body GenerateResponse `json:"body"`
	}, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		vis, err := domain.ParseVisibility(input.Body.Visibility)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "visibility"})
		}
		res, err := e.Generate(ctx, v, engine.GenerateRequest{
			Prompt:              input.Body.Prompt,
			IncludeAlternatives: input.Body.IncludeAlternatives,
			SaveToOrganization:  input.Body.SaveToOrganization,
			Visibility:          vis,
			RequestApproval:     input.Body.RequestApproval,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !res.OK {
			return nil, newAPIError(http.StatusUnprocessableEntity, "generation_failed", res.Reason, map[string]any{"retryable": res.Retryable})
		}
		return &struct {
			Body GenerateResponse `json:"body"`
		}{Body: generateResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/artifacts/{artifact_id}",
		Summary:     "Get artifact",
		Tags:        []string{"artifacts"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *artifactPath) (*artifactOutput, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		a, err := e.Get(ctx, v, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &artifactOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-artifact",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/artifacts/{artifact_id}",
		Summary:     "Append a version",
		Tags:        []string{"artifacts"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		OrgID      string                `path:"org_id"`
		ArtifactID string                `path:"artifact_id"`
		Body       UpdateArtifactRequest `json:"body"`
	}) (*artifactOutput, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		a, err := e.Update(ctx, v, input.ArtifactID, versionUpdate(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &artifactOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-artifact",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/artifacts/{artifact_id}",
		Summary:     "Delete artifact (not supported)",
		Tags:        []string{"artifacts"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusNotImplemented},
	}, func(ctx context.Context, input *artifactPath) (*struct{}, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		if err := e.Delete(ctx, v, input.ArtifactID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-artifact",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/artifacts/{artifact_id}/approval",
		Summary:     "Approve, reject or request changes",
		Tags:        []string{"artifacts"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		OrgID      string          `path:"org_id"`
		ArtifactID string          `path:"artifact_id"`
		Body       ApprovalRequest `json:"body"`
	}) (*artifactOutput, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		a, err := e.Approve(ctx, v, domain.ApprovalRequest{
			ArtifactID: input.ArtifactID,
			Action:     domain.ApprovalAction(input.Body.Action),
			Reason:     input.Body.Reason,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &artifactOutput{Body: a}, nil
	})

	for _, action := range []struct {
		name    string
		summary string
		run     func(context.Context, domain.Viewer, string) (domain.OrgArtifact, error)
	}{
		{"submit", "Submit for review", e.Submit},
		{"install", "Record an install", e.Install},
	} {
		huma.Register(api, huma.Operation{
			OperationID: action.name + "-artifact",
			Method:      http.MethodPost,
			Path:        "/orgs/{org_id}/artifacts/{artifact_id}/" + action.name,
			Summary:     action.summary,
			Tags:        []string{"artifacts"},
			Errors: []int{
				http.StatusUnauthorized,
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
				http.StatusServiceUnavailable,
			},
		}, func(ctx context.Context, input *artifactPath) (*artifactOutput, error) {
			v, err := viewerFor(ctx, e, input.OrgID)
			if err != nil {
				return nil, err
			}
			a, err := action.run(ctx, v, input.ArtifactID)
			if err != nil {
				return nil, handleError(err)
			}
			return &artifactOutput{Body: a}, nil
		})
	}
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		v, err := viewerFor(ctx, e, input.OrgID)
		if err != nil {
			return nil, err
		}
		items, err := e.Events(ctx, v, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Items: nonNilSlice(items)}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current viewer",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			Viewer:   p.Viewer,
			Elevated: e.Auth.Policy.IsElevated(p.Viewer.Role),
			Source:   p.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		viewer := strings.TrimSpace(input.Body.ViewerID)
		org := strings.TrimSpace(input.Body.OrgID)
		if viewer == "" || org == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "viewer_id and org_id are required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, domain.Viewer{
			ID:    viewer,
			OrgID: org,
			Role:  input.Body.Role,
			Name:  input.Body.Name,
			Email: input.Body.Email,
		}, devTokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
