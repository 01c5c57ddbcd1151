// Package api exposes the report engine over HTTP as a JSON API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/export"
	"github.com/rpattn/reportql/internal/repository"
	"github.com/rpattn/reportql/internal/schema"
	"github.com/rpattn/reportql/internal/service"
	"github.com/rpattn/reportql/pkg/validator"
)

// Handler serves the report API. With debug set, error responses include
// the underlying error text; otherwise clients get a generic message.
type Handler struct {
	service   *service.Service
	schema    schema.Provider
	validator *validator.DefinitionValidator
	logger    zerolog.Logger
	debug     bool
}

func NewHandler(svc *service.Service, provider schema.Provider, logger zerolog.Logger, debug bool) *Handler {
	return &Handler{
		service:   svc,
		schema:    provider,
		validator: validator.NewDefinitionValidator(provider),
		logger:    logger,
		debug:     debug,
	}
}

// Routes mounts every endpoint on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/reports", func(r chi.Router) {
		r.Get("/", h.listReports)
		r.Post("/", h.createReport)
		r.Post("/validate", h.validateReport)

		r.Route("/{reportID}", func(r chi.Router) {
			r.Get("/", h.getReport)
			r.Put("/", h.updateReport)
			r.Delete("/", h.deleteReport)

			r.Get("/results", h.reportResults)
			r.Get("/export", h.exportReport)

			r.Post("/columns", h.addColumn)
			r.Post("/columns/reorder", h.reorderColumns)
			r.Put("/columns/{columnID}", h.updateColumn)
			r.Delete("/columns/{columnID}", h.deleteColumn)

			r.Post("/filters", h.addFilter)
			r.Put("/filters/{filterID}", h.updateFilter)
			r.Delete("/filters/{filterID}", h.deleteFilter)

			r.Post("/groupings", h.addGrouping)
			r.Delete("/groupings/{groupingID}", h.deleteGrouping)

			r.Post("/calculated-fields", h.addCalculatedField)
			r.Delete("/calculated-fields/{fieldID}", h.deleteCalculatedField)
		})
	})

	r.Get("/api/schema/{entityType}/fields", h.schemaFields)

	return r
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.ListReports(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, defs)
}

func (h *Handler) createReport(w http.ResponseWriter, r *http.Request) {
	var def domain.ReportDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeBadRequest(w, "invalid report payload")
		return
	}
	if result := h.validator.Validate(def); !result.IsValid {
		h.writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	created, err := h.service.CreateReport(r.Context(), def)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) validateReport(w http.ResponseWriter, r *http.Request) {
	var def domain.ReportDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeBadRequest(w, "invalid report payload")
		return
	}
	h.writeJSON(w, http.StatusOK, h.validator.Validate(def))
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	def, err := h.service.GetReport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

func (h *Handler) updateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	var def domain.ReportDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeBadRequest(w, "invalid report payload")
		return
	}
	def.ID = id
	updated, err := h.service.UpdateReport(r.Context(), def)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	if err := h.service.DeleteReport(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reportResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	page, err := h.service.Execute(r.Context(), id, executeParams(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	def, rs, err := h.service.ExecuteAll(r.Context(), id, executeParams(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", def.Name+".xlsx"))
	if err := export.WriteWorkbook(w, def.Name, def.VisibleColumns(), rs); err != nil {
		h.logger.Error().Err(err).Stringer("report_id", id).Msg("export failed")
	}
}

func (h *Handler) addColumn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	var col domain.ReportColumn
	if err := json.NewDecoder(r.Body).Decode(&col); err != nil {
		h.writeBadRequest(w, "invalid column payload")
		return
	}
	created, err := h.service.AddColumn(r.Context(), id, col)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateColumn(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	columnID, ok := h.pathID(w, r, "columnID")
	if !ok {
		return
	}
	var col domain.ReportColumn
	if err := json.NewDecoder(r.Body).Decode(&col); err != nil {
		h.writeBadRequest(w, "invalid column payload")
		return
	}
	col.ID = columnID
	updated, err := h.service.UpdateColumn(r.Context(), reportID, col)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteColumn(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	columnID, ok := h.pathID(w, r, "columnID")
	if !ok {
		return
	}
	if err := h.service.DeleteColumn(r.Context(), reportID, columnID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reorderColumns(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	var payload struct {
		ColumnIDs []uuid.UUID `json:"column_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeBadRequest(w, "invalid reorder payload")
		return
	}
	if err := h.service.ReorderColumns(r.Context(), reportID, payload.ColumnIDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addFilter(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	var filter domain.ReportFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		h.writeBadRequest(w, "invalid filter payload")
		return
	}
	created, err := h.service.AddFilter(r.Context(), reportID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateFilter(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	filterID, ok := h.pathID(w, r, "filterID")
	if !ok {
		return
	}
	var filter domain.ReportFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		h.writeBadRequest(w, "invalid filter payload")
		return
	}
	filter.ID = filterID
	updated, err := h.service.UpdateFilter(r.Context(), reportID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteFilter(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	filterID, ok := h.pathID(w, r, "filterID")
	if !ok {
		return
	}
	if err := h.service.DeleteFilter(r.Context(), reportID, filterID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addGrouping(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	var grouping domain.ReportGrouping
	if err := json.NewDecoder(r.Body).Decode(&grouping); err != nil {
		h.writeBadRequest(w, "invalid grouping payload")
		return
	}
	created, err := h.service.AddGrouping(r.Context(), reportID, grouping)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteGrouping(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	groupingID, ok := h.pathID(w, r, "groupingID")
	if !ok {
		return
	}
	if err := h.service.DeleteGrouping(r.Context(), reportID, groupingID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addCalculatedField(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	var field domain.CalculatedField
	if err := json.NewDecoder(r.Body).Decode(&field); err != nil {
		h.writeBadRequest(w, "invalid calculated field payload")
		return
	}
	created, err := h.service.AddCalculatedField(r.Context(), reportID, field)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteCalculatedField(w http.ResponseWriter, r *http.Request) {
	reportID, ok := h.pathID(w, r, "reportID")
	if !ok {
		return
	}
	fieldID, ok := h.pathID(w, r, "fieldID")
	if !ok {
		return
	}
	if err := h.service.DeleteCalculatedField(r.Context(), reportID, fieldID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// schemaFields lists the reportable fields of an entity type: its own
// fields, one-hop relation fields and two-hop indirect relation fields,
// each addressed by its full path.
func (h *Handler) schemaFields(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	direct, ok := h.schema.FieldsOf(entityType)
	if !ok {
		h.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown entity type %q", entityType))
		return
	}

	type fieldInfo struct {
		Path  string `json:"path"`
		Kind  string `json:"kind,omitempty"`
		Label string `json:"label"`
	}
	var fields []fieldInfo
	for _, f := range direct {
		if f.IsRelation {
			continue
		}
		fields = append(fields, fieldInfo{Path: f.Name, Kind: string(f.Kind), Label: f.Name})
	}
	for _, rel := range schema.RelationFields(h.schema, entityType) {
		related, ok := h.schema.FieldsOf(rel.RelatedType)
		if !ok {
			continue
		}
		for _, f := range related {
			if f.IsRelation {
				continue
			}
			path := rel.Name + domain.PathSeparator + f.Name
			fields = append(fields, fieldInfo{Path: path, Kind: string(f.Kind), Label: path})
		}
	}
	for _, indirect := range schema.IndirectRelations(h.schema, entityType) {
		related, ok := h.schema.FieldsOf(indirect.RelatedType)
		if !ok {
			continue
		}
		for _, f := range related {
			if f.IsRelation {
				continue
			}
			path := indirect.Path + domain.PathSeparator + f.Name
			fields = append(fields, fieldInfo{Path: path, Kind: string(f.Kind), Label: path})
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"entity_type": entityType,
		"fields":      fields,
	})
}

func executeParams(r *http.Request) service.ExecuteParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return service.ExecuteParams{
		Page:          page,
		PageSize:      pageSize,
		SortField:     q.Get("sort"),
		SortDirection: q.Get("direction"),
		BypassCache:   q.Get("refresh") == "1" || q.Get("refresh") == "true",
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeBadRequest(w, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("encode response")
	}
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, msg string) {
	h.writeJSONError(w, http.StatusBadRequest, msg)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var queryErr *service.QueryError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNoVisibleColumns):
		h.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &queryErr):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("query backend error")
		h.writeJSONError(w, http.StatusBadGateway, h.errorDetail(err, "query backend unavailable"))
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.writeJSONError(w, http.StatusInternalServerError, h.errorDetail(err, "internal error"))
	}
}

func (h *Handler) errorDetail(err error, generic string) string {
	if h.debug {
		return err.Error()
	}
	return generic
}
