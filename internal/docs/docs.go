// Package docs holds the OpenAPI document of the admin API, registered with
// swag and served by http-swagger under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/admin/apis": {
            "get": {
                "description": "Returns every deployed API in dispatch order",
                "produces": ["application/json"],
                "tags": ["apis"],
                "summary": "List deployed APIs",
                "responses": {
                    "200": {
                        "description": "Deployed APIs",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.APISummary"}}
                    }
                }
            }
        },
        "/admin/apis/reorder": {
            "post": {
                "description": "Re-sorts the table by context specificity and returns the new dispatch order",
                "produces": ["application/json"],
                "tags": ["apis"],
                "summary": "Reorder APIs",
                "responses": {
                    "200": {
                        "description": "Dispatch order",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {"type": "array", "items": {"type": "string"}}
                        }
                    }
                }
            }
        },
        "/admin/apis/{name}": {
            "get": {
                "description": "Returns the definition the named API was deployed from",
                "produces": ["application/json"],
                "tags": ["apis"],
                "summary": "Get API definition",
                "parameters": [
                    {"type": "string", "description": "API name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "API definition", "schema": {"$ref": "#/definitions/deployer.Definition"}},
                    "404": {"description": "API not found", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            },
            "put": {
                "description": "Deploys the definition in the body, in YAML or JSON, replacing an API of the same name",
                "consumes": ["application/json", "application/yaml"],
                "produces": ["application/json"],
                "tags": ["apis"],
                "summary": "Deploy API",
                "parameters": [
                    {"type": "string", "description": "API name", "name": "name", "in": "path", "required": true},
                    {"description": "API definition", "name": "definition", "in": "body", "required": true, "schema": {"$ref": "#/definitions/deployer.Definition"}}
                ],
                "responses": {
                    "200": {"description": "Deployed definition", "schema": {"$ref": "#/definitions/deployer.Definition"}},
                    "400": {"description": "Invalid definition", "schema": {"$ref": "#/definitions/handlers.errorResponse"}},
                    "409": {"description": "Context and version clash with another API", "schema": {"$ref": "#/definitions/handlers.errorResponse"}},
                    "413": {"description": "Definition too large", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            },
            "delete": {
                "tags": ["apis"],
                "summary": "Undeploy API",
                "parameters": [
                    {"type": "string", "description": "API name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "API undeployed"},
                    "404": {"description": "API not found", "schema": {"$ref": "#/definitions/handlers.errorResponse"}}
                }
            }
        },
        "/admin/pool": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pool"],
                "summary": "Connection pool status",
                "responses": {
                    "200": {"description": "Pool status", "schema": {"$ref": "#/definitions/handlers.PoolStatus"}}
                }
            }
        },
        "/admin/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["statistics"],
                "summary": "Dispatch statistics",
                "responses": {
                    "200": {"description": "Dispatch counters", "schema": {"$ref": "#/definitions/routing.EngineMetrics"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Healthy", "schema": {"$ref": "#/definitions/handlers.healthResponse"}},
                    "503": {"description": "A dependency is unhealthy", "schema": {"$ref": "#/definitions/handlers.healthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "circuitbreaker.Stats": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "state": {"type": "string"},
                "requests": {"type": "integer"},
                "consecutive_failures": {"type": "integer"},
                "total_failures": {"type": "integer"},
                "total_successes": {"type": "integer"}
            }
        },
        "connpool.Stats": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "leased": {"type": "integer"},
                "idle": {"type": "integer"},
                "max": {"type": "integer"}
            }
        },
        "deployer.Definition": {
            "type": "object",
            "required": ["context", "name", "resources"],
            "properties": {
                "name": {"type": "string"},
                "context": {"type": "string"},
                "version": {"type": "string"},
                "versionType": {"type": "string", "enum": ["none", "context", "url"]},
                "versionSource": {"type": "string", "enum": ["path", "query", "header"]},
                "versionParam": {"type": "string"},
                "host": {"type": "string"},
                "port": {"type": "integer", "maximum": 65535, "minimum": 0},
                "resources": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/deployer.ResourceDefinition"}}
            }
        },
        "deployer.ResourceDefinition": {
            "type": "object",
            "required": ["methods"],
            "properties": {
                "name": {"type": "string"},
                "methods": {"type": "array", "minItems": 1, "items": {"type": "string"}},
                "urlMapping": {"type": "string"},
                "uriTemplate": {"type": "string"},
                "bindsTo": {"type": "array", "items": {"type": "string"}},
                "contentType": {"type": "string"},
                "userAgent": {"type": "string"},
                "protocol": {"type": "string", "enum": ["http", "https"]},
                "endpoint": {"type": "string"}
            }
        },
        "handlers.APISummary": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "context": {"type": "string"},
                "effectiveContext": {"type": "string"},
                "version": {"type": "string"},
                "host": {"type": "string"},
                "port": {"type": "integer"},
                "specificity": {"type": "integer"},
                "resources": {"type": "integer"}
            }
        },
        "handlers.PoolStatus": {
            "type": "object",
            "properties": {
                "leased": {"type": "integer"},
                "idle": {"type": "integer"},
                "maxPerRoute": {"type": "integer"},
                "routes": {"type": "array", "items": {"$ref": "#/definitions/connpool.Stats"}},
                "breakers": {"type": "array", "items": {"$ref": "#/definitions/circuitbreaker.Stats"}}
            }
        },
        "handlers.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "allowed": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.healthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "uptime": {"type": "string"},
                "apis": {"type": "integer"},
                "dispatch": {"$ref": "#/definitions/routing.EngineMetrics"},
                "checks": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "routing.EngineMetrics": {
            "type": "object",
            "properties": {
                "total_requests": {"type": "integer"},
                "matched": {"type": "integer"},
                "api_not_found": {"type": "integer"},
                "resource_not_found": {"type": "integer"},
                "bad_request": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Mediation Router Admin API",
	Description:      "Deploys APIs and reports dispatch and connection pool state.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
