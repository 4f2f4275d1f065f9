package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Parade Registry API",
        "description": "Vehicle registration, QR credentials and gate validation for the Pase del Niño Viajero parade",
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
            "name": "Registrations",
            "description": "Public registration form"
        },
        {
            "name": "Authentication",
            "description": "Operator sessions"
        },
        {
            "name": "Validation",
            "description": "Gate validation station"
        },
        {
            "name": "Notifications",
            "description": "Confirmation emails and QR downloads"
        },
        {
            "name": "Admin",
            "description": "Admin panel"
        }
    ],
    "paths": {
        "/registrations": {
            "post": {
                "tags": [
                    "Registrations"
                ],
                "summary": "Register a vehicle",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateRegistrationRequest"
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
                    },
                    "409": {
                        "description": "Duplicate document or email",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "429": {
                        "description": "Too many requests",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/catalog": {
            "get": {
                "tags": [
                    "Registrations"
                ],
                "summary": "Form catalogs",
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
        "/auth/login": {
            "post": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Authenticate operator",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/LoginRequest"
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
                    "401": {
                        "description": "Invalid credentials",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Logout current session",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": [
                    "Authentication"
                ],
                "summary": "Current operator",
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
        },
        "/validations": {
            "post": {
                "tags": [
                    "Validation"
                ],
                "summary": "Validate a scanned QR code",
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
                            "$ref": "#/definitions/ValidationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Validation outcome",
                        "schema": {
                            "$ref": "#/definitions/ValidationResult"
                        }
                    },
                    "429": {
                        "description": "Duplicate scan",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "500": {
                        "description": "Error del sistema",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/validations/history": {
            "get": {
                "tags": [
                    "Validation"
                ],
                "summary": "Recent attempts of the current operator",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
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
        "/notifications/welcome": {
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Send a confirmation email",
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
                            "$ref": "#/definitions/WelcomeEmailRequest"
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
                    "400": {
                        "description": "Missing email",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "500": {
                        "description": "Error sending email",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/notifications/welcome-http": {
            "get": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Send a confirmation email (query string)",
                "parameters": [
                    {
                        "name": "email",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "nombreCompleto",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "{\"success\":true}"
                    },
                    "400": {
                        "description": "{\"error\":\"Missing email\"}"
                    },
                    "500": {
                        "description": "{\"error\":\"Error sending email\"}"
                    }
                }
            },
            "post": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Send a confirmation email (JSON or form body)",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/WelcomeEmailRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "{\"success\":true}"
                    },
                    "400": {
                        "description": "{\"error\":\"Missing email\"}"
                    },
                    "500": {
                        "description": "{\"error\":\"Error sending email\"}"
                    }
                }
            },
            "options": {
                "tags": [
                    "Notifications"
                ],
                "summary": "CORS preflight",
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/qr": {
            "get": {
                "tags": [
                    "Notifications"
                ],
                "summary": "Download a QR code through a signed link",
                "produces": [
                    "image/png"
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
                        "description": "PNG image"
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
        "/admin/registrations": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "List registrations",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "documento",
                        "in": "query",
                        "type": "string"
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
        "/admin/registrations/export.csv": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Export registrations as CSV",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "text/csv"
                ],
                "parameters": [
                    {
                        "name": "documento",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "CSV attachment"
                    }
                }
            }
        },
        "/admin/registrations/export.pdf": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Export registrations as PDF",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/pdf"
                ],
                "parameters": [
                    {
                        "name": "documento",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "PDF attachment"
                    }
                }
            }
        },
        "/admin/registrations/{id}": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Registration detail",
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
                        "type": "string"
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
            },
            "patch": {
                "tags": [
                    "Admin"
                ],
                "summary": "Correct registration contact data",
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
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateRegistrationRequest"
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
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Email already used",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Admin"
                ],
                "summary": "Delete registration",
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
                        "type": "string"
                    },
                    {
                        "name": "confirm",
                        "in": "query",
                        "required": true,
                        "type": "boolean"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Confirmation required",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/admin/registrations/{id}/qr": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Registration QR image",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "image/png"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "PNG image"
                    },
                    "404": {
                        "description": "No QR yet",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/admin/notifications/dead-letters": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Failed notifications",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
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
        "/admin/stats": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Registry totals",
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
        },
        "/admin/metrics": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Runtime counters",
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
        "CreateRegistrationRequest": {
            "type": "object",
            "properties": {
                "nombreCompleto": {
                    "type": "string"
                },
                "documentoIdentificacion": {
                    "type": "string"
                },
                "telefono": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "tematica": {
                    "type": "string"
                },
                "tematicaDetalle": {
                    "type": "string"
                },
                "tipoVehiculo": {
                    "type": "string"
                },
                "placa": {
                    "type": "string"
                }
            },
            "required": [
                "nombreCompleto",
                "documentoIdentificacion",
                "telefono",
                "email",
                "tematica",
                "tipoVehiculo",
                "placa"
            ]
        },
        "UpdateRegistrationRequest": {
            "type": "object",
            "properties": {
                "nombreCompleto": {
                    "type": "string"
                },
                "telefono": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "placa": {
                    "type": "string"
                }
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "username": {
                    "type": "string"
                },
                "password": {
                    "type": "string"
                }
            },
            "required": [
                "username",
                "password"
            ]
        },
        "ValidationRequest": {
            "type": "object",
            "properties": {
                "codigo": {
                    "type": "string"
                }
            },
            "required": [
                "codigo"
            ]
        },
        "ValidationResult": {
            "type": "object",
            "properties": {
                "valido": {
                    "type": "boolean"
                },
                "estado": {
                    "type": "string",
                    "enum": [
                        "success",
                        "invalid_format",
                        "not_found",
                        "mismatch",
                        "already_validated"
                    ]
                },
                "titulo": {
                    "type": "string"
                },
                "mensaje": {
                    "type": "string"
                },
                "registro": {
                    "type": "object"
                },
                "validadoAt": {
                    "type": "string"
                },
                "validadoPor": {
                    "type": "string"
                }
            }
        },
        "WelcomeEmailRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "nombreCompleto": {
                    "type": "string"
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
