// Package api contains the OpenAPI documentation generated by swag.
package api

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
        "/": {
            "get": {
                "description": "Entrypoint for the API, listing all endpoints",
                "tags": ["General"],
                "summary": "API root",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/healthz": {
            "get": {
                "description": "Returns the application health and, if not healthy, an error",
                "produces": ["application/json"],
                "tags": ["General"],
                "summary": "Get health",
                "responses": {"204": {"description": "No Content"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/version": {
            "get": {
                "description": "Returns the software version of the API",
                "tags": ["General"],
                "summary": "API version",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/balances": {
            "get": {
                "description": "Returns the balance sheets of a fiscal year",
                "produces": ["application/json"],
                "tags": ["Balances"],
                "summary": "Get balances",
                "parameters": [
                    {"type": "string", "description": "Fiscal year. Defaults to the current one.", "name": "fiscalYear", "in": "query"},
                    {"type": "string", "description": "Filter by entity type", "name": "entityType", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/balances/rollover": {
            "post": {
                "description": "Carries the closing balances of a fiscal year over to the opening balances of the next one",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Balances"],
                "summary": "Roll over fiscal year",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/balances/{entityType}/{entityId}": {
            "get": {
                "description": "Returns the balance of an entity with the monthly breakdown of its transactions",
                "produces": ["application/json"],
                "tags": ["Balances"],
                "summary": "Get balance",
                "parameters": [
                    {"type": "string", "description": "Type of the entity", "name": "entityType", "in": "path", "required": true},
                    {"type": "string", "description": "ID of the entity", "name": "entityId", "in": "path", "required": true},
                    {"type": "string", "description": "Fiscal year. Defaults to the current one.", "name": "fiscalYear", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/allocations": {
            "post": {
                "description": "Saves the allocation plan of a fiscal year and updates the allocated amounts of all balance sheets",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Allocations"],
                "summary": "Save allocation plan",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/allocations/{fiscalYear}": {
            "get": {
                "description": "Returns the allocation plan of a fiscal year",
                "produces": ["application/json"],
                "tags": ["Allocations"],
                "summary": "Get allocation plan",
                "parameters": [
                    {"type": "string", "description": "Fiscal year", "name": "fiscalYear", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/transactions": {
            "get": {
                "description": "Returns a list of transactions, newest first",
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Get transactions",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "500": {"description": "Internal Server Error"}}
            },
            "post": {
                "description": "Records a transaction and deducts its amount from the balance of the entity",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Create transaction",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/transactions/export": {
            "get": {
                "description": "Returns all transactions matching the filter as an Excel workbook, newest first",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["Transactions"],
                "summary": "Export transactions",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/transactions/{id}": {
            "get": {
                "description": "Returns a specific transaction with its transfer history",
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Get transaction",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}
            },
            "delete": {
                "description": "Deletes a transaction and gives its amount back to the balance",
                "tags": ["Transactions"],
                "summary": "Delete transaction",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "500": {"description": "Internal Server Error"}}
            },
            "patch": {
                "description": "Updates an existing transaction. Only values to be updated need to be specified.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Update transaction",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/transactions/{id}/cancel": {
            "post": {
                "description": "Cancels a transaction and gives its amount back to the balance",
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Cancel transaction",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/transactions/{id}/complete": {
            "post": {
                "description": "Deducts the amount of a pending transaction from the balance",
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Complete transaction",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/transactions/{id}/undo": {
            "post": {
                "description": "Reverts the last transfer of a transaction. Balances are not changed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Transactions"],
                "summary": "Undo transfer",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/v1/transfers": {
            "post": {
                "description": "Moves the active transaction of a person to another person",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Transfers"],
                "summary": "Transfer transaction",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "",
	Host:             "",
	BasePath:         "",
	Schemes:          []string{},
	Title:            "",
	Description:      "",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
