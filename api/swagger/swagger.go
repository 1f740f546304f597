package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Capital Declarations API",
        "description": "Capital declaration lifecycle and client portal",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Declarations",
            "description": "Declaration lifecycle for firm staff"
        },
        {
            "name": "Timeline",
            "description": "Merged status and communication history"
        },
        {
            "name": "Communications",
            "description": "Client interaction log"
        },
        {
            "name": "Documents",
            "description": "Uploaded document review"
        },
        {
            "name": "Portal",
            "description": "Public client portal"
        },
        {
            "name": "Ops",
            "description": "Operational endpoints"
        }
    ],
    "paths": {
        "/declarations": {
            "get": {
                "tags": [
                    "Declarations"
                ],
                "summary": "List declarations",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "description": "Comma separated statuses"
                    },
                    {
                        "name": "assignedTo",
                        "in": "query",
                        "type": "string",
                        "description": "Assigned staff ID"
                    },
                    {
                        "name": "clientId",
                        "in": "query",
                        "type": "string",
                        "description": "Client ID"
                    },
                    {
                        "name": "taxYear",
                        "in": "query",
                        "type": "integer",
                        "description": "Tax year"
                    },
                    {
                        "name": "overdue",
                        "in": "query",
                        "type": "boolean",
                        "description": "Only overdue declarations"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "description": "Page number"
                    },
                    {
                        "name": "pageSize",
                        "in": "query",
                        "type": "integer",
                        "description": "Page size"
                    },
                    {
                        "name": "sortBy",
                        "in": "query",
                        "type": "string",
                        "description": "Sort column"
                    },
                    {
                        "name": "sortOrder",
                        "in": "query",
                        "type": "string",
                        "description": "asc or desc"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Create a draft declaration",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateDeclarationRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}": {
            "get": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Get a declaration",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/transitions": {
            "post": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Change declaration status",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/TransitionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "No-op or concurrent change",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/send": {
            "post": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Send the portal link to the client",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/SendToClientRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/token": {
            "post": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Issue a new portal link",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Disable the portal link",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/declarations/{id}/assignment": {
            "patch": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Assign a declaration",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AssignmentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/deadlines": {
            "patch": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Replace declaration due dates",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DeadlinesRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/penalty": {
            "patch": {
                "tags": [
                    "Declarations"
                ],
                "summary": "Replace late-filing penalty details",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/PenaltyRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "Owner or admin only",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/timeline": {
            "get": {
                "tags": [
                    "Timeline"
                ],
                "summary": "Declaration timeline",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "description": "Maximum entries, 0 for all"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/timeline/export": {
            "get": {
                "tags": [
                    "Timeline"
                ],
                "summary": "Download the declaration timeline",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/pdf",
                    "text/csv"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "pdf",
                            "csv"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/communications": {
            "get": {
                "tags": [
                    "Communications"
                ],
                "summary": "List client communications",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Communications"
                ],
                "summary": "Log a client communication",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateCommunicationRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/documents": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "List uploaded documents",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/documents/{documentId}/status": {
            "patch": {
                "tags": [
                    "Documents"
                ],
                "summary": "Approve or reject a document",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "documentId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Document ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ReviewDocumentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/declarations/{id}/documents/{documentId}/download-link": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Create a signed download link",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "documentId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Document ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/documents/download": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Download a document with a signed token",
                "produces": [
                    "application/octet-stream"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "403": {
                        "description": "Invalid or expired link",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/portal/{token}": {
            "get": {
                "tags": [
                    "Portal"
                ],
                "summary": "Open the client portal",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Portal token"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Invalid link",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/portal/{token}/declarations/{id}/documents": {
            "post": {
                "tags": [
                    "Portal"
                ],
                "summary": "Upload a document through the client portal",
                "consumes": [
                    "multipart/form-data"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Portal token"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    },
                    {
                        "name": "fileType",
                        "in": "formData",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "file",
                        "in": "formData",
                        "required": true,
                        "type": "file"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "410": {
                        "description": "Link expired",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "413": {
                        "description": "File too large",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "415": {
                        "description": "Unsupported file type",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/portal/{token}/declarations/{id}/complete": {
            "post": {
                "tags": [
                    "Portal"
                ],
                "summary": "Tell the firm all documents were uploaded",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Portal token"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Declaration ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "410": {
                        "description": "Link expired",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": [
                    "Ops"
                ],
                "summary": "Process counters",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "CreateDeclarationRequest": {
            "type": "object",
            "required": [
                "clientId",
                "taxYear"
            ],
            "properties": {
                "clientId": {
                    "type": "string",
                    "format": "uuid"
                },
                "taxYear": {
                    "type": "integer"
                },
                "assignedTo": {
                    "type": "string",
                    "format": "uuid"
                },
                "taxAuthorityDueDate": {
                    "type": "string",
                    "format": "date-time"
                },
                "internalDueDate": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "TransitionRequest": {
            "type": "object",
            "required": [
                "status"
            ],
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "draft",
                        "sent",
                        "in_progress",
                        "waiting_documents",
                        "documents_received",
                        "reviewing",
                        "in_preparation",
                        "pending_approval",
                        "submitted",
                        "waiting",
                        "completed"
                    ]
                },
                "note": {
                    "type": "string"
                }
            }
        },
        "SendToClientRequest": {
            "type": "object",
            "properties": {
                "channel": {
                    "type": "string",
                    "enum": [
                        "email",
                        "whatsapp",
                        "none"
                    ]
                }
            }
        },
        "AssignmentRequest": {
            "type": "object",
            "properties": {
                "assignedTo": {
                    "type": "string",
                    "format": "uuid"
                }
            }
        },
        "DeadlinesRequest": {
            "type": "object",
            "properties": {
                "taxAuthorityDueDate": {
                    "type": "string",
                    "format": "date-time"
                },
                "internalDueDate": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "PenaltyRequest": {
            "type": "object",
            "properties": {
                "wasSubmittedLate": {
                    "type": "boolean"
                },
                "amount": {
                    "type": "string"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "pending",
                        "appealed",
                        "reduced",
                        "cancelled",
                        "paid"
                    ]
                },
                "receivedDate": {
                    "type": "string",
                    "format": "date-time"
                },
                "appealDate": {
                    "type": "string",
                    "format": "date-time"
                },
                "paidDate": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "CreateCommunicationRequest": {
            "type": "object",
            "required": [
                "type",
                "direction"
            ],
            "properties": {
                "type": {
                    "type": "string",
                    "enum": [
                        "phone_call",
                        "whatsapp",
                        "note",
                        "letter"
                    ]
                },
                "direction": {
                    "type": "string",
                    "enum": [
                        "outbound",
                        "inbound"
                    ]
                },
                "subject": {
                    "type": "string"
                },
                "content": {
                    "type": "string"
                },
                "outcome": {
                    "type": "string"
                },
                "communicatedAt": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "ReviewDocumentRequest": {
            "type": "object",
            "required": [
                "status"
            ],
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "approved",
                        "rejected",
                        "pending"
                    ]
                },
                "note": {
                    "type": "string"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
