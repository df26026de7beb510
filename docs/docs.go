// Package docs holds the swagger document served at /swagger.
// Regenerate with: swag init -g server/main.go
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
        "/auth/register": {"post": {"tags": ["auth"], "summary": "Register an organizer account", "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}}},
        "/auth/login": {"post": {"tags": ["auth"], "summary": "Log in", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "403": {"description": "Forbidden"}}}},
        "/auth/refresh": {"post": {"tags": ["auth"], "summary": "Exchange a refresh token for a new pair", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "403": {"description": "Forbidden"}}}},
        "/auth/me": {"get": {"tags": ["auth"], "summary": "Current user", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/auth/change-password": {"put": {"tags": ["auth"], "summary": "Change password", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/events": {"get": {"tags": ["events"], "summary": "Browse published events", "responses": {"200": {"description": "OK"}}}},
        "/events/{id}": {"get": {"tags": ["events"], "summary": "Event detail with live availability", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/checkout/session": {"post": {"tags": ["checkout"], "summary": "Create a checkout session and hold tickets", "parameters": [{"type": "string", "name": "Idempotency-Key", "in": "header"}], "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}, "422": {"description": "Unprocessable Entity"}}}},
        "/checkout/orders/{id}": {"get": {"tags": ["checkout"], "summary": "Order state and remaining hold", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "email", "in": "query", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/checkout/orders/{id}/payment": {"post": {"tags": ["checkout"], "summary": "Start payment with a gateway", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}, "502": {"description": "Bad Gateway"}}}},
        "/checkout/orders/{id}/cancel": {"post": {"tags": ["checkout"], "summary": "Cancel a pending order", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}}},
        "/webhooks/{gateway}": {"post": {"tags": ["payments"], "summary": "Payment provider notification", "parameters": [{"type": "string", "name": "gateway", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "502": {"description": "Bad Gateway"}}}},
        "/tickets/orders/{orderId}": {"get": {"tags": ["tickets"], "summary": "Tickets of a paid order", "parameters": [{"type": "string", "name": "orderId", "in": "path", "required": true}, {"type": "string", "name": "email", "in": "query", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/staff/tickets/check-in": {"post": {"tags": ["tickets"], "summary": "Check a ticket in at the door", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}},
        "/staff/tickets/event/{eventId}/attendance": {"get": {"tags": ["tickets"], "summary": "Issued and checked-in tickets of an event", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "eventId", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}}},
        "/admin/metrics": {"get": {"tags": ["admin"], "summary": "Platform-wide organizer, event, order and revenue counts", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/admin/organizers": {"get": {"tags": ["admin"], "summary": "List organizers", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "status", "in": "query"}, {"type": "integer", "name": "limit", "in": "query"}], "responses": {"200": {"description": "OK"}, "422": {"description": "Unprocessable Entity"}}}},
        "/admin/organizers/{id}/approve": {"post": {"tags": ["admin"], "summary": "Activate an organizer account", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/admin/organizers/{id}/suspend": {"post": {"tags": ["admin"], "summary": "Suspend an organizer account", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/admin/organizers/{id}/fee-plan": {"post": {"tags": ["admin"], "summary": "Assign an organizer fee plan", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}},
        "/admin/orders/{id}": {"get": {"tags": ["admin"], "summary": "Order with buyer, payment and tickets", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/admin/orders/{id}/resend-tickets": {"post": {"tags": ["admin"], "summary": "Send a paid order's tickets again", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"202": {"description": "Accepted"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}},
        "/organizer/dashboard": {"get": {"tags": ["organizer"], "summary": "Organizer dashboard", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/organizer/complimentary/stats": {"get": {"tags": ["organizer"], "summary": "Complimentary allowance per event", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/organizer/events/{id}/metrics": {"get": {"tags": ["organizer"], "summary": "Sales and attendance of an event", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}}},
        "/organizer/events/{id}/orders": {"get": {"tags": ["organizer"], "summary": "Orders of an event, newest first", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "integer", "name": "limit", "in": "query"}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}},
        "/organizer/events/{id}/complimentary": {"post": {"tags": ["organizer"], "summary": "Issue complimentary tickets", "security": [{"BearerAuth": []}], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Boxoffice API",
	Description:      "Ticket checkout, payment settlement and check-in.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
