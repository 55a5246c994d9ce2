package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Exam Bridge API",
        "description": "Bridges scanned examination answer scripts into the LMS",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Uploads", "description": "Scan intake"},
        {"name": "Artifacts", "description": "Artifact lifecycle"},
        {"name": "Reports", "description": "Student reports"},
        {"name": "Queue", "description": "Submission queue"},
        {"name": "Mappings", "description": "Subject and student mappings"},
        {"name": "Ledger", "description": "Audit ledger"},
        {"name": "Exports", "description": "Register exports"}
    ],
    "paths": {
        "/uploads": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Upload one scanned answer script",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"},
                    {"name": "examRound", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already occupied"},
                    "423": {"description": "Second attempt locked"}
                }
            }
        },
        "/uploads/bulk": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Upload a batch of scanned answer scripts",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "files", "in": "formData", "required": true, "type": "file"},
                    {"name": "examRound", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Per-file outcomes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/uploads/probe": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Check whether upload slots are already occupied",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProbeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts": {
            "get": {
                "tags": ["Artifacts"],
                "summary": "List artifacts",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "registerNumber", "in": "query", "type": "string"},
                    {"name": "subjectCode", "in": "query", "type": "string"},
                    {"name": "examRound", "in": "query", "type": "string"},
                    {"name": "includeDeleted", "in": "query", "type": "boolean"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/stats": {
            "get": {
                "tags": ["Artifacts"],
                "summary": "Workflow statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{id}": {
            "get": {
                "tags": ["Artifacts"],
                "summary": "Get artifact detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Artifacts"],
                "summary": "Soft-delete an artifact",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DeleteArtifactRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Illegal transition"}
                }
            }
        },
        "/artifacts/{id}/content": {
            "get": {
                "tags": ["Artifacts"],
                "summary": "Download the stored scan",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Scan bytes"}
                }
            }
        },
        "/artifacts/{id}/replace": {
            "post": {
                "tags": ["Artifacts"],
                "summary": "Replace an artifact with corrected metadata",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceArtifactRequest"}}
                ],
                "responses": {
                    "201": {"description": "Replacement artifact", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{id}/reset": {
            "post": {
                "tags": ["Artifacts"],
                "summary": "Return a QUEUED or FAILED artifact to PENDING_REVIEW",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{id}/clear-transaction": {
            "post": {
                "tags": ["Artifacts"],
                "summary": "Clear the student transaction id",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{id}/unlock-attempt": {
            "post": {
                "tags": ["Artifacts"],
                "summary": "Reopen the second attempt slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{id}/transaction": {
            "post": {
                "tags": ["Artifacts"],
                "summary": "Record the student's LMS confirmation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{id}/reports": {
            "get": {
                "tags": ["Reports"],
                "summary": "List reports on an artifact",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Reports"],
                "summary": "Open a report against an artifact",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IssueReportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/{id}/resolve": {
            "post": {
                "tags": ["Reports"],
                "summary": "Resolve an open report",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ResolveReportRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Withdrawn or already resolved"}
                }
            }
        },
        "/reports/{id}/withdraw": {
            "post": {
                "tags": ["Reports"],
                "summary": "Withdraw a report",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/WithdrawReportRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/artifacts/{id}/enqueue": {
            "post": {
                "tags": ["Queue"],
                "summary": "Queue an artifact for LMS delivery",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already queued or wrong state"}
                }
            }
        },
        "/artifacts/{id}/queue-entry": {
            "get": {
                "tags": ["Queue"],
                "summary": "Get the in-flight queue entry for an artifact",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No in-flight entry"}
                }
            }
        },
        "/queue": {
            "get": {
                "tags": ["Queue"],
                "summary": "Queue snapshot",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/drain": {
            "post": {
                "tags": ["Queue"],
                "summary": "Run one manual drain pass",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DrainRequest"}}
                ],
                "responses": {
                    "200": {"description": "Per-entry outcomes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/mappings/subjects": {
            "get": {
                "tags": ["Mappings"],
                "summary": "List subject mappings",
                "parameters": [
                    {"name": "activeOnly", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Mappings"],
                "summary": "Create or update a subject mapping",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertSubjectMappingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/mappings/subjects/{id}": {
            "delete": {
                "tags": ["Mappings"],
                "summary": "Deactivate a subject mapping",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/mappings/subjects/{id}/verify": {
            "post": {
                "tags": ["Mappings"],
                "summary": "Mark a subject mapping as verified against the LMS",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/mappings/students": {
            "get": {
                "tags": ["Mappings"],
                "summary": "List student mappings",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Mappings"],
                "summary": "Create or update a student mapping",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertStudentMappingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/mappings/students/{id}": {
            "delete": {
                "tags": ["Mappings"],
                "summary": "Delete a student mapping",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/mappings/coverage": {
            "post": {
                "tags": ["Mappings"],
                "summary": "Check mapping coverage for planned uploads",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProbeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger": {
            "get": {
                "tags": ["Ledger"],
                "summary": "List audit ledger entries",
                "parameters": [
                    {"name": "artifactId", "in": "query", "type": "string"},
                    {"name": "actor", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{id}/ledger": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Full ledger history of one artifact",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/register": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the upload register",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "examRound", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Rendered register"}
                }
            }
        }
    },
    "definitions": {
        "ProbeRequest": {
            "type": "object",
            "properties": {
                "items": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ProbeItem"}
                }
            },
            "required": ["items"]
        },
        "ProbeItem": {
            "type": "object",
            "properties": {
                "registerNumber": {"type": "string"},
                "subjectCode": {"type": "string"},
                "examRound": {"type": "string"}
            },
            "required": ["registerNumber", "subjectCode"]
        },
        "ReplaceArtifactRequest": {
            "type": "object",
            "properties": {
                "registerNumber": {"type": "string"},
                "subjectCode": {"type": "string"},
                "originalFilename": {"type": "string"},
                "resolveReports": {"type": "boolean"}
            }
        },
        "DeleteArtifactRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "IssueReportRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"}
            },
            "required": ["description"]
        },
        "ResolveReportRequest": {
            "type": "object",
            "properties": {
                "note": {"type": "string"}
            }
        },
        "WithdrawReportRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "DrainRequest": {
            "type": "object",
            "properties": {
                "maxItems": {"type": "integer"}
            }
        },
        "UpsertSubjectMappingRequest": {
            "type": "object",
            "properties": {
                "subjectCode": {"type": "string"},
                "examRound": {"type": "string"},
                "courseId": {"type": "integer"},
                "assignmentId": {"type": "integer"}
            },
            "required": ["subjectCode", "examRound", "courseId", "assignmentId"]
        },
        "UpsertStudentMappingRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "registerNumber": {"type": "string"}
            },
            "required": ["username", "registerNumber"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
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
