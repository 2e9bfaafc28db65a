package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/metacord-io/metacord/internal/schemas"
)

// handleGetType resolves one analysis type.
// GET /api/v1/schemas/{name}?version=&hideSchema=
//
// The path segment accepts either a bare name (resolved to the latest version,
// or to ?version= when given) or a canonical "name:version" identifier.
//
// Response codes:
//   - 200 OK: the resolved analysis type
//   - 400 Bad Request: malformed name, identifier or query parameter
//   - 404 Not Found: name never registered, or version does not exist
func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	hideSchema, problem := parseBoolParam(r, "hideSchema")
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	var (
		resolved *schemas.AnalysisType
		err      error
	)

	if strings.Contains(name, ":") {
		resolved, err = s.types.ResolveID(r.Context(), name)
	} else {
		var version int

		version, problem = parseIntParam(r, "version", 0)
		if problem != nil {
			WriteErrorResponse(w, r, s.logger, problem)

			return
		}

		resolved, err = s.types.Resolve(r.Context(), name, version)
	}

	if err != nil {
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	response := AnalysisTypeResponse{
		ID:        resolved.ID(),
		Name:      resolved.Name,
		Version:   resolved.Version,
		FileTypes: resolved.FileTypes,
		CreatedAt: resolved.CreatedAt,
	}
	if !hideSchema {
		response.Schema = resolved.Schema
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// handleListTypes lists registered analysis types.
// GET /api/v1/schemas?names=&versions=&hideSchema=&offset=&limit=
//
// names and versions are comma-separated filters; offset/limit control paging.
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	filter := schemas.ListFilter{
		Names: parseListParam(r, "names"),
	}

	versions, problem := parseIntListParam(r, "versions")
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	filter.Versions = versions

	if filter.HideSchema, problem = parseBoolParam(r, "hideSchema"); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if filter.Offset, problem = parseIntParam(r, "offset", 0); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if filter.Limit, problem = parseIntParam(r, "limit", 0); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	page, err := s.types.List(r.Context(), filter)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, problemFromError(err))

		return
	}

	types := make([]AnalysisTypeResponse, 0, len(page.Types))

	for _, t := range page.Types {
		entry := AnalysisTypeResponse{
			ID:        t.ID(),
			Name:      t.Name,
			Version:   t.Version,
			FileTypes: t.FileTypes,
			CreatedAt: t.CreatedAt,
		}
		if !filter.HideSchema {
			entry.Schema = t.Schema
		}

		types = append(types, entry)
	}

	s.writeJSON(w, r, http.StatusOK, ListTypesResponse{
		Types:  types,
		Total:  page.Total,
		Offset: page.Offset,
		Limit:  page.Limit,
	})
}

// parseBoolParam parses an optional boolean query parameter.
func parseBoolParam(r *http.Request, name string) (bool, *ProblemDetail) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, BadRequest(name + " must be a boolean")
	}

	return value, nil
}

// parseIntParam parses an optional integer query parameter.
func parseIntParam(r *http.Request, name string, fallback int) (int, *ProblemDetail) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, BadRequest(name + " must be an integer")
	}

	return value, nil
}

// parseListParam parses an optional comma-separated string query parameter.
func parseListParam(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}

	var out []string

	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

// parseIntListParam parses an optional comma-separated integer query parameter.
func parseIntListParam(r *http.Request, name string) ([]int, *ProblemDetail) {
	var out []int

	for _, part := range parseListParam(r, name) {
		value, err := strconv.Atoi(part)
		if err != nil {
			return nil, BadRequest(name + " must be a comma-separated list of integers")
		}

		out = append(out, value)
	}

	return out, nil
}
