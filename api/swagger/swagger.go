package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EdVault API",
        "description": "Gated delivery of paid educational content: approval workflow, entitlements, secure viewing sessions",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Token issuance"},
        {"name": "Content", "description": "Upload and approval workflow"},
        {"name": "Entitlement", "description": "Access decisions"},
        {"name": "Sessions", "description": "Secure viewing sessions"},
        {"name": "Media", "description": "Artifact delivery"},
        {"name": "Audit", "description": "Audit trail query and export"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/content": {
            "post": {
                "tags": ["Content"],
                "summary": "Upload content",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "courseId", "in": "formData", "required": true, "type": "string"},
                    {"name": "unitId", "in": "formData", "required": true, "type": "string"},
                    {"name": "topicId", "in": "formData", "type": "string"},
                    {"name": "kind", "in": "formData", "required": true, "type": "string"},
                    {"name": "viewDurationSeconds", "in": "formData", "type": "integer"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/content/pending": {
            "get": {
                "tags": ["Content"],
                "summary": "List pending content",
                "parameters": [
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/content/{id}/approve": {
            "post": {
                "tags": ["Content"],
                "summary": "Approve content",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApproveContentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"},
                    "409": {"description": "Illegal state transition"}
                }
            }
        },
        "/content/{id}/reject": {
            "post": {
                "tags": ["Content"],
                "summary": "Reject content",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectContentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"},
                    "409": {"description": "Illegal state transition"}
                }
            }
        },
        "/content/{id}/premium": {
            "patch": {
                "tags": ["Content"],
                "summary": "Update premium flag",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetPremiumRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/content/{id}": {
            "delete": {
                "tags": ["Content"],
                "summary": "Delete content",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/entitlement": {
            "get": {
                "tags": ["Entitlement"],
                "summary": "Resolve entitlement",
                "parameters": [
                    {"name": "content", "in": "query", "required": true, "type": "string"},
                    {"name": "viewer", "in": "query", "required": false, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start viewing session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Access denied"},
                    "409": {"description": "View limit reached or session already active"},
                    "503": {"description": "Audit log unavailable"}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get viewing session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/heartbeat": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Session heartbeat",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Session ended"}
                }
            }
        },
        "/sessions/{id}/security-event": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Report security violation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SecurityEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Session ended"}
                }
            }
        },
        "/sessions/{id}/end": {
            "post": {
                "tags": ["Sessions"],
                "summary": "End viewing session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/EndSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/media/{token}": {
            "get": {
                "tags": ["Media"],
                "summary": "Fetch media artifact",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Artifact bytes"},
                    "403": {"description": "Invalid or expired token"},
                    "410": {"description": "Session ended"}
                }
            }
        },
        "/audit/events": {
            "get": {
                "tags": ["Audit"],
                "summary": "Query audit trail",
                "parameters": [
                    {"name": "eventType", "in": "query", "type": "string"},
                    {"name": "viewerId", "in": "query", "type": "string"},
                    {"name": "sessionId", "in": "query", "type": "string"},
                    {"name": "since", "in": "query", "type": "string"},
                    {"name": "until", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/exports": {
            "post": {
                "tags": ["Audit"],
                "summary": "Request audit export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AuditExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/exports/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Export status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/export-files/{token}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Download export file",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV bytes"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "ApproveContentRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"},
                "isPremium": {"type": "boolean"},
                "gatingYear": {"type": "integer"}
            }
        },
        "RejectContentRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            },
            "required": ["notes"]
        },
        "SetPremiumRequest": {
            "type": "object",
            "properties": {
                "isPremium": {"type": "boolean"},
                "gatingYear": {"type": "integer"}
            }
        },
        "StartSessionRequest": {
            "type": "object",
            "properties": {
                "contentItemId": {"type": "string"},
                "viewerId": {"type": "string"},
                "agreementAccepted": {"type": "boolean"}
            },
            "required": ["contentItemId", "agreementAccepted"]
        },
        "SecurityEventRequest": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"}
            },
            "required": ["kind"]
        },
        "EndSessionRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "AuditExportRequest": {
            "type": "object",
            "properties": {
                "eventType": {"type": "string"},
                "viewerId": {"type": "string"},
                "since": {"type": "string"},
                "until": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
