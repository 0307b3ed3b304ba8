package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Academy Billing API",
        "description": "Billing engine for academy subscriptions: recurring invoices, payments and reconciliation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Invoices", "description": "Invoice ledger and generation"},
        {"name": "Payments", "description": "Checkout, direct charges and provider webhooks"},
        {"name": "Enrollments", "description": "Billing contracts"},
        {"name": "Finance", "description": "Financial reporting"}
    ],
    "paths": {
        "/invoices": {
            "get": {
                "tags": ["Invoices"],
                "summary": "List invoices",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "month", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Invoices"],
                "summary": "Create an ad-hoc invoice",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAdhocInvoiceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/invoices/generate": {
            "post": {
                "tags": ["Invoices"],
                "summary": "Generate recurring invoices for a reference month",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateInvoicesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/invoices/{id}": {
            "get": {
                "tags": ["Invoices"],
                "summary": "Get invoice",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/invoices/{id}/attempts": {
            "get": {
                "tags": ["Invoices"],
                "summary": "List payment attempts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/invoices/{id}/receipt": {
            "get": {
                "tags": ["Invoices"],
                "summary": "Download PDF receipt",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "produces": ["application/pdf"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/invoices/{id}/checkout": {
            "post": {
                "tags": ["Payments"],
                "summary": "Create a hosted checkout session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/invoices/{id}/pay": {
            "post": {
                "tags": ["Payments"],
                "summary": "Charge an invoice directly",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DirectPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/webhook": {
            "post": {
                "tags": ["Payments"],
                "summary": "Receive a payment provider notification",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PaymentNotification"}}
                ],
                "responses": {
                    "200": {"description": "Acknowledged"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Register a billing contract",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEnrollmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Deactivate a billing contract",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/finance/summary": {
            "get": {
                "tags": ["Finance"],
                "summary": "Monthly financial summary",
                "parameters": [
                    {"name": "year", "in": "query", "required": true, "type": "integer"},
                    {"name": "month", "in": "query", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/finance/export": {
            "get": {
                "tags": ["Finance"],
                "summary": "Export a month's invoices as CSV",
                "parameters": [
                    {"name": "year", "in": "query", "required": true, "type": "integer"},
                    {"name": "month", "in": "query", "required": true, "type": "integer"}
                ],
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "Invoice": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "enrollment_id": {"type": "string"},
                "amount": {"type": "integer"},
                "reference_year": {"type": "integer"},
                "reference_month": {"type": "integer"},
                "due_date": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "PAID"]},
                "type": {"type": "string", "enum": ["TUITION", "ADHOC"]},
                "description": {"type": "string"},
                "payment_date": {"type": "string"},
                "payment_method": {"type": "string"},
                "external_payment_id": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "Enrollment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "class_id": {"type": "string"},
                "status": {"type": "string", "enum": ["ACTIVE", "INACTIVE"]},
                "base_monthly_fee": {"type": "integer"},
                "discount_amount": {"type": "integer"},
                "discount_reason": {"type": "string"},
                "due_day": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        },
        "GenerateInvoicesRequest": {
            "type": "object",
            "properties": {
                "year": {"type": "integer"},
                "month": {"type": "integer"}
            },
            "required": ["year", "month"]
        },
        "CreateAdhocInvoiceRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "amount": {"type": "integer"},
                "description": {"type": "string"},
                "due_date": {"type": "string"}
            },
            "required": ["student_id", "amount", "description", "due_date"]
        },
        "CreateEnrollmentRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "class_id": {"type": "string"},
                "base_monthly_fee": {"type": "integer"},
                "discount_amount": {"type": "integer"},
                "discount_reason": {"type": "string"},
                "due_day": {"type": "integer"}
            },
            "required": ["student_id", "class_id", "base_monthly_fee", "due_day"]
        },
        "DirectPaymentRequest": {
            "type": "object",
            "properties": {
                "payment_type": {"type": "string", "enum": ["bank_transfer", "gopay", "qris", "credit_card"]},
                "bank": {"type": "string"},
                "card_token": {"type": "string"}
            }
        },
        "PaymentNotification": {
            "type": "object",
            "properties": {
                "event_name": {"type": "string"},
                "transaction_id": {"type": "string"},
                "order_id": {"type": "string"},
                "transaction_status": {"type": "string"},
                "payment_type": {"type": "string"},
                "gross_amount": {"type": "string"},
                "signature_key": {"type": "string"}
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
