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

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fleetline/internal/config"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/repo"
	"fleetline/internal/report"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"incomplete_required_items"`
	Message string         `json:"message" example:"2 required item(s) outstanding"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"outstanding\":2}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Fleetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
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
	hcfg := huma.DefaultConfig("Fleetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerFleetStatus(group, cfg.Engine)
	registerMissions(group, cfg.Engine)
	registerItems(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerReport(router, basePath, cfg.Engine)
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
	var ioe engine.InvalidOperationError
	if errors.As(err, &ioe) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_operation", err.Error(), map[string]any{"item_id": ioe.ItemID, "kind": ioe.Kind, "op": ioe.Op})
	}
	var ire engine.IncompleteRequiredItemsError
	if errors.As(err, &ire) {
		return newAPIError(http.StatusUnprocessableEntity, "incomplete_required_items", err.Error(), map[string]any{"outstanding": ire.Outstanding})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "not in catalog"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func actorID(header string) string {
	if header == "" {
		return "api"
	}
	return header
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

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Fleetline API Docs</title>
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

func registerFleetStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "fleet-status",
		Method:      http.MethodGet,
		Path:        "/fleet/status",
		Summary:     "Mission counts by effective status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		counts, err := e.FleetStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-mission",
		Method:      http.MethodPost,
		Path:        "/missions",
		Summary:     "Create mission",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Actor string               `header:"X-Actor-Id"`
		Body  CreateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		items := make([]engine.ItemDraft, 0, len(input.Body.Items))
		for _, it := range input.Body.Items {
			items = append(items, engine.ItemDraft{
				ID:          stringOrEmpty(it.ID),
				Text:        it.Text,
				Description: stringOrEmpty(it.Description),
				Kind:        it.Kind,
				Required:    it.Required,
			})
		}
		m, err := e.CreateMission(ctx, engine.MissionCreateOptions{
			ID:           stringOrEmpty(input.Body.ID),
			Title:        input.Body.Title,
			Description:  stringOrEmpty(input.Body.Description),
			Vessel:       input.Body.Vessel,
			AssignedBy:   domain.Party{ID: input.Body.AssignedBy.ID, Name: input.Body.AssignedBy.Name, Role: input.Body.AssignedBy.Role},
			AssignedTo:   domain.Party{ID: input.Body.AssignedTo.ID, Name: input.Body.AssignedTo.Name, Role: input.Body.AssignedTo.Role},
			DueDate:      input.Body.DueDate,
			Priority:     stringOrEmpty(input.Body.Priority),
			MissionNotes: stringOrEmpty(input.Body.MissionNotes),
			Items:        items,
			ActorID:      actorID(input.Actor),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, engine.CanComplete(m.Items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		Vessel     string `query:"vessel"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedMissions `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		missions, err := e.ListMissions(ctx, repo.MissionFilters{
			Status:          input.Status,
			Vessel:          input.Vessel,
			AssigneeID:      input.AssigneeID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedMissions{Items: []MissionResponse{}}
		if len(missions) > limit {
			resp.NextCursor = composeCursor(missions[limit].CreatedAt, missions[limit].ID)
			missions = missions[:limit]
		}
		for _, m := range missions {
			// List rows carry no items; the stored progress is kept
			// current on every mutation, so 100 means no required item
			// is outstanding.
			resp.Items = append(resp.Items, missionResponse(m, m.Progress == 100))
		}
		return &struct {
			Body paginatedMissions `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, engine.CanComplete(m.Items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission",
		Method:      http.MethodPatch,
		Path:        "/missions/{id}",
		Summary:     "Update mission metadata",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string               `path:"id"`
		Actor string               `header:"X-Actor-Id"`
		Body  UpdateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		opts := engine.MissionUpdateOptions{
			ID:           input.ID,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			Vessel:       input.Body.Vessel,
			Priority:     input.Body.Priority,
			DueDate:      input.Body.DueDate,
			MissionNotes: input.Body.MissionNotes,
			ActorID:      actorID(input.Actor),
		}
		if input.Body.AssignedTo != nil {
			opts.AssignedTo = &domain.Party{
				ID:   input.Body.AssignedTo.ID,
				Name: input.Body.AssignedTo.Name,
				Role: input.Body.AssignedTo.Role,
			}
		}
		m, err := e.UpdateMission(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, engine.CanComplete(m.Items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/complete",
		Summary:     "Request mission completion",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Actor string `header:"X-Actor-Id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.RequestCompletion(ctx, input.ID, actorID(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, engine.CanComplete(m.Items))}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "toggle-item",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/items/{item_id}/toggle",
		Summary:     "Toggle an acknowledge item",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		ItemID string `path:"item_id"`
		Actor  string `header:"X-Actor-Id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.ToggleItem(ctx, input.ID, input.ItemID, actorID(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, engine.CanComplete(m.Items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attach-evidence",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/items/{item_id}/evidence",
		Summary:     "Attach evidence to an item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string                `path:"id"`
		ItemID string                `path:"item_id"`
		Actor  string                `header:"X-Actor-Id"`
		Body   AttachEvidenceRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.AttachEvidence(ctx, input.ID, input.ItemID, engine.Evidence{
			Name:   input.Body.Name,
			MIME:   input.Body.MIME,
			Data:   input.Body.Data,
			Signer: input.Body.Signer,
		}, actorID(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, engine.CanComplete(m.Items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-item-note",
		Method:      http.MethodPut,
		Path:        "/missions/{id}/items/{item_id}/note",
		Summary:     "Set an item note",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string         `path:"id"`
		ItemID string         `path:"item_id"`
		Actor  string         `header:"X-Actor-Id"`
		Body   SetNoteRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.SetItemNote(ctx, input.ID, input.ItemID, input.Body.Note, actorID(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, engine.CanComplete(m.Items))}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		Limit     int    `query:"limit" default:"50"`
		MissionID string `query:"mission_id"`
		Type      string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		evts, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.MissionID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]EventResponse, 0, len(evts))
		for _, evt := range evts {
			resp = append(resp, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: resp}, nil
	})
}

// registerReport serves the PDF on a raw chi route since the response
// body is binary, not a JSON envelope.
func registerReport(r chi.Router, basePath string, e engine.Engine) {
	gen := report.New(e.Evidence, reportSettings(e))
	r.Get(path.Join(basePath, "missions/{id}/report"), func(w http.ResponseWriter, req *http.Request) {
		m, err := e.GetMission(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeErrorJSON(w, handleError(err))
			return
		}
		pdf, err := gen.Generate(req.Context(), m)
		if err != nil {
			writeErrorJSON(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "mission-"+m.ID+".pdf"))
		w.Write(pdf)
	})
}

func reportSettings(e engine.Engine) config.ReportSettings {
	if e.Config == nil {
		return config.ReportSettings{}
	}
	return e.Config.Report
}

func writeErrorJSON(w http.ResponseWriter, serr huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serr.GetStatus())
	if ae, ok := serr.(*apiError); ok {
		json.NewEncoder(w).Encode(map[string]any{"error": ae.Body})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"error": apiErrorBody{Code: "internal_error", Message: serr.Error()}})
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

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
