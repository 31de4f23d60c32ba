package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// getOpenAPISpec serves the OpenAPI 3.1.0 document for the console API
func (s *Server) getOpenAPISpec(c *gin.Context) {
	c.JSON(http.StatusOK, s.openAPIDocument())
}

func (s *Server) openAPIDocument() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.1.0",
		"info": map[string]interface{}{
			"title":       "userdesk console API",
			"description": "Browse, search, edit and delete users of the user backend.",
			"version":     Version,
		},
		"servers": []map[string]interface{}{
			{"url": "http://" + s.cfg.Addr(), "description": "This console"},
		},
		"paths":      s.getOpenAPIPaths(),
		"components": s.getOpenAPIComponents(),
	}
}

func ref(schema string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + schema}
}

func jsonContent(schema string) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": ref(schema)},
	}
}

// operation builds one path operation. An empty request schema means the
// operation takes no body.
func operation(summary, tag, request, response string, errorStatuses ...string) map[string]interface{} {
	responses := map[string]interface{}{
		"200": map[string]interface{}{
			"description": "Success",
			"content":     jsonContent(response),
		},
	}
	for _, status := range errorStatuses {
		responses[status] = errorResponse(status)
	}
	op := map[string]interface{}{
		"summary":   summary,
		"tags":      []string{tag},
		"responses": responses,
	}
	if request != "" {
		op["requestBody"] = map[string]interface{}{
			"required": true,
			"content":  jsonContent(request),
		}
	}
	return op
}

var errorDescriptions = map[string]string{
	"400": "Invalid request or rejected view operation",
	"401": "Not signed in or session expired",
	"404": "Not found",
	"409": "Conflict",
	"429": "Too many attempts",
	"502": "User backend error",
}

func errorResponse(status string) map[string]interface{} {
	return map[string]interface{}{
		"description": errorDescriptions[status],
		"content":     jsonContent("ErrorResponse"),
	}
}

// getOpenAPIPaths returns all API paths for the OpenAPI document
func (s *Server) getOpenAPIPaths() map[string]interface{} {
	idParam := []map[string]interface{}{{
		"name":     "id",
		"in":       "path",
		"required": true,
		"schema":   map[string]interface{}{"type": "string", "pattern": "^[A-Za-z0-9_-]{1,64}$"},
	}}
	withID := func(op map[string]interface{}) map[string]interface{} {
		op["parameters"] = idParam
		return op
	}
	refresh := operation("Refresh the user list", "View", "", "RefreshResponse", "401")
	refresh["parameters"] = []map[string]interface{}{{
		"name":        "wait",
		"in":          "query",
		"description": "Wait for the refresh outcome",
		"schema":      map[string]interface{}{"type": "boolean"},
	}}

	return map[string]interface{}{
		"/health": map[string]interface{}{
			"get": operation("Health check", "Health", "", "HealthResponse"),
		},
		"/api/v1/session/login": map[string]interface{}{
			"post": operation("Sign in", "Session", "LoginRequest", "SessionResponse", "400", "401", "429", "502"),
		},
		"/api/v1/session/logout": map[string]interface{}{
			"post": operation("Sign out", "Session", "", "SimpleResponse"),
		},
		"/api/v1/session": map[string]interface{}{
			"get": operation("Current session", "Session", "", "SessionResponse", "401"),
		},
		"/api/v1/session/password": map[string]interface{}{
			"post": operation("Change password", "Session", "ChangePasswordRequest", "SimpleResponse", "400", "401", "502"),
		},
		"/api/v1/view": map[string]interface{}{
			"get": operation("Current table view", "View", "", "ViewResponse", "401"),
		},
		"/api/v1/view/query": map[string]interface{}{
			"post": operation("Set the search query", "View", "QueryRequest", "ViewResponse", "400", "401"),
		},
		"/api/v1/view/sort": map[string]interface{}{
			"post": operation("Click a column header", "View", "SortRequest", "ViewResponse", "400", "401"),
		},
		"/api/v1/view/page": map[string]interface{}{
			"post": operation("Navigate pages", "View", "PageRequest", "ViewResponse", "400", "401"),
		},
		"/api/v1/view/page-size": map[string]interface{}{
			"post": operation("Set the page size", "View", "PageSizeRequest", "ViewResponse", "400", "401"),
		},
		"/api/v1/view/selection": map[string]interface{}{
			"post": operation("Change the selection", "View", "SelectionRequest", "ViewResponse", "400", "401"),
		},
		"/api/v1/view/refresh": map[string]interface{}{
			"post": refresh,
		},
		"/api/v1/users/selected": map[string]interface{}{
			"get": operation("Selected users", "Users", "", "RecordsResponse", "401"),
		},
		"/api/v1/users/bulk-delete": map[string]interface{}{
			"post": operation("Delete the selected users", "Users", "BulkDeleteRequest", "BulkDeleteResponse", "400", "401", "409"),
		},
		"/api/v1/users/{id}/profile": map[string]interface{}{
			"get": withID(operation("Load a profile", "Users", "", "ProfileResponse", "401", "404", "502")),
			"put": withID(operation("Edit and save a profile", "Users", "ProfileUpdate", "ProfileResponse", "400", "401", "404", "409", "502")),
		},
		"/api/v1/users/{id}/profile/reload": map[string]interface{}{
			"post": withID(operation("Discard edits and reload a profile", "Users", "", "ProfileResponse", "401", "404", "502")),
		},
		"/api/v1/metrics": map[string]interface{}{
			"get": operation("In-process metrics", "Health", "", "MetricsResponse", "401", "404"),
		},
	}
}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func envelope(data interface{}) map[string]interface{} {
	return object([]string{"code", "message"}, map[string]interface{}{
		"code":    map[string]interface{}{"type": "integer", "example": 200},
		"message": map[string]interface{}{"type": "string"},
		"data":    data,
	})
}

var (
	str     = map[string]interface{}{"type": "string"}
	integer = map[string]interface{}{"type": "integer"}
	boolean = map[string]interface{}{"type": "boolean"}
	strMap  = map[string]interface{}{"type": "object", "additionalProperties": str}
	anyObj  = map[string]interface{}{"type": "object"}
)

// getOpenAPIComponents returns all schema components
func (s *Server) getOpenAPIComponents() map[string]interface{} {
	return map[string]interface{}{
		"schemas": map[string]interface{}{
			"LoginRequest": object([]string{"username", "password"}, map[string]interface{}{
				"username": str, "password": map[string]interface{}{"type": "string", "format": "password"},
			}),
			"ChangePasswordRequest": object([]string{"old_password", "new_password"}, map[string]interface{}{
				"old_password": str, "new_password": str,
			}),
			"QueryRequest": object(nil, map[string]interface{}{"query": str}),
			"SortRequest":  object([]string{"key"}, map[string]interface{}{"key": str}),
			"PageRequest": object([]string{"op"}, map[string]interface{}{
				"op": map[string]interface{}{
					"type": "string",
					"enum": []string{"first", "prev", "previous", "next", "last", "goto"},
				},
				"page": integer,
			}),
			"PageSizeRequest": object([]string{"size"}, map[string]interface{}{
				"size": map[string]interface{}{"type": "integer", "minimum": 1},
			}),
			"SelectionRequest": object([]string{"action"}, map[string]interface{}{
				"action": map[string]interface{}{
					"type": "string",
					"enum": []string{"toggle", "select_page", "toggle_page", "clear"},
				},
				"id": str,
			}),
			"BulkDeleteRequest": object([]string{"confirm", "expected_count"}, map[string]interface{}{
				"confirm": boolean, "expected_count": integer,
			}),
			"ProfileUpdate": object(nil, map[string]interface{}{
				"fields":    strMap,
				"interests": map[string]interface{}{"type": "array", "items": str},
			}),
			"User": object([]string{"id"}, map[string]interface{}{
				"id": str, "name": str, "email": str, "bio": str, "phone": str, "website": str,
				"interests":   map[string]interface{}{"type": "array", "items": str},
				"role":        str,
				"permissions": map[string]interface{}{"type": "array", "items": str},
				"last_login":  str,
				"is_active":   boolean,
			}),
			"View": object(nil, map[string]interface{}{
				"columns":        map[string]interface{}{"type": "array", "items": anyObj},
				"rows":           map[string]interface{}{"type": "array", "items": anyObj},
				"query":          str,
				"sort":           anyObj,
				"page":           integer,
				"page_size":      integer,
				"total_pages":    integer,
				"match_count":    integer,
				"total_records":  integer,
				"selected_count": integer,
				"page_selected":  boolean,
				"has_prev":       boolean,
				"has_next":       boolean,
				"loading":        boolean,
				"fetch_error":    str,
			}),
			"ViewResponse":     envelope(ref("View")),
			"RecordsResponse":  envelope(map[string]interface{}{"type": "array", "items": anyObj}),
			"SimpleResponse":   envelope(map[string]interface{}{"type": "null"}),
			"SessionResponse":  envelope(object(nil, map[string]interface{}{"user": ref("User"), "is_admin": boolean})),
			"RefreshResponse":  envelope(object(nil, map[string]interface{}{"seq": integer, "outcome": str, "view": ref("View")})),
			"ProfileResponse":  envelope(object(nil, map[string]interface{}{"user": ref("User"), "errors": strMap, "dirty": boolean, "bio_preview": str})),
			"BulkDeleteResponse": envelope(object(nil, map[string]interface{}{
				"deleted":     map[string]interface{}{"type": "array", "items": str},
				"failed":      strMap,
				"refresh_seq": integer,
			})),
			"HealthResponse": object([]string{"status", "timestamp", "version"}, map[string]interface{}{
				"status": str, "timestamp": map[string]interface{}{"type": "string", "format": "date-time"},
				"version": str, "uptime": str, "checks": strMap,
			}),
			"MetricsResponse": object(nil, map[string]interface{}{"timestamp": str, "uptime": str, "metrics": anyObj}),
			"ErrorResponse": object([]string{"code", "message"}, map[string]interface{}{
				"code": integer, "message": str, "error": str, "details": anyObj, "request_id": str,
			}),
		},
	}
}

// generateOpenAPIJSON renders the OpenAPI document as indented JSON
func (s *Server) generateOpenAPIJSON() ([]byte, error) {
	return json.MarshalIndent(s.openAPIDocument(), "", "  ")
}
