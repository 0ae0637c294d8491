package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SIS Registrar API",
        "description": "Academic calendar, schedules, enrollment and student billing",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Calendar", "description": "Academic years, semesters and enrollment windows"},
        {"name": "Schedules", "description": "Room and teacher schedule blocks"},
        {"name": "Enrollments", "description": "Enrollment lifecycle and add/drop"},
        {"name": "Finance", "description": "Financial records, payments and receipts"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/calendar/current": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Current academic year, semester and window flags",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No current academic year"}
                }
            }
        },
        "/academic-years": {
            "post": {
                "tags": ["Calendar"],
                "summary": "Create academic year",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAcademicYearRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure or duplicate name"}
                }
            }
        },
        "/academic-years/{id}/current": {
            "put": {
                "tags": ["Calendar"],
                "summary": "Mark academic year as current",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/academic-years/{id}/semesters": {
            "get": {
                "tags": ["Calendar"],
                "summary": "List semesters of a year",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Calendar"],
                "summary": "Create semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSemesterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/semesters/{id}/status": {
            "put": {
                "tags": ["Calendar"],
                "summary": "Update semester status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSemesterStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List schedule blocks",
                "parameters": [
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "room", "in": "query", "type": "string"},
                    {"name": "day", "in": "query", "type": "integer"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Schedules"],
                "summary": "Create schedule block",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleBlockRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure or conflicting blocks", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/check": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Dry-run conflict detection",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleBlockRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get schedule block",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Schedules"],
                "summary": "Replace schedule block slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleBlockRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure or conflicting blocks"}
                }
            },
            "delete": {
                "tags": ["Schedules"],
                "summary": "Cancel schedule block",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cancelled"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "academicYearId", "in": "query", "type": "string"},
                    {"name": "semesterId", "in": "query", "type": "string"},
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
                "summary": "Submit enrollment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEnrollmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure, closed window or duplicate enrollment"}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment with subjects and financial record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/approve": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Approve pending enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Enrollment is not pending"}
                }
            }
        },
        "/enrollments/{id}/reject": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Reject pending enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectEnrollmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/subjects": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Add and drop subjects",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddDropRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Closed add/drop period or invalid subjects"}
                }
            }
        },
        "/enrollments/{id}/financial-record": {
            "get": {
                "tags": ["Finance"],
                "summary": "Get the financial record of an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/financial-records/{id}": {
            "get": {
                "tags": ["Finance"],
                "summary": "Get financial record with payment history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/financial-records/{id}/payments": {
            "post": {
                "tags": ["Finance"],
                "summary": "Record a payment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddPaymentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/financial-records/{id}/receipts/{receiptNumber}": {
            "get": {
                "tags": ["Finance"],
                "summary": "Regenerate a payment receipt",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "receiptNumber", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "description": "json or pdf"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "CreateAcademicYearRequest": {
            "type": "object",
            "required": ["name", "start_date", "end_date"],
            "properties": {
                "name": {"type": "string"},
                "start_date": {"type": "string", "format": "date-time"},
                "end_date": {"type": "string", "format": "date-time"},
                "is_current": {"type": "boolean"}
            }
        },
        "CreateSemesterRequest": {
            "type": "object",
            "required": ["name", "start_date", "end_date", "enrollment_start", "enrollment_end"],
            "properties": {
                "name": {"type": "string"},
                "start_date": {"type": "string", "format": "date-time"},
                "end_date": {"type": "string", "format": "date-time"},
                "enrollment_start": {"type": "string", "format": "date-time"},
                "enrollment_end": {"type": "string", "format": "date-time"},
                "late_enrollment_start": {"type": "string", "format": "date-time"},
                "late_enrollment_end": {"type": "string", "format": "date-time"},
                "late_penalty_fee": {"type": "string"},
                "add_drop_start": {"type": "string", "format": "date-time"},
                "add_drop_end": {"type": "string", "format": "date-time"},
                "midterm_start": {"type": "string", "format": "date-time"},
                "midterm_end": {"type": "string", "format": "date-time"},
                "finals_start": {"type": "string", "format": "date-time"},
                "finals_end": {"type": "string", "format": "date-time"},
                "grade_submission_deadline": {"type": "string", "format": "date-time"}
            }
        },
        "UpdateSemesterStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["PENDING", "ONGOING", "COMPLETED"]}
            }
        },
        "ScheduleBlockRequest": {
            "type": "object",
            "required": ["subject_id", "section", "teacher_id", "room", "day_of_week", "start_minute", "end_minute"],
            "properties": {
                "subject_id": {"type": "string"},
                "section": {"type": "string"},
                "teacher_id": {"type": "string"},
                "room": {"type": "string"},
                "day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
                "start_minute": {"type": "integer"},
                "end_minute": {"type": "integer"},
                "is_recurring": {"type": "boolean"},
                "except_dates": {"type": "array", "items": {"type": "string"}}
            }
        },
        "CreateEnrollmentRequest": {
            "type": "object",
            "required": ["academic_year_id", "semester_id", "subjects"],
            "properties": {
                "student_id": {"type": "string"},
                "academic_year_id": {"type": "string"},
                "semester_id": {"type": "string"},
                "subjects": {"type": "array", "items": {"$ref": "#/definitions/SubjectSelection"}}
            }
        },
        "SubjectSelection": {
            "type": "object",
            "required": ["subject_id", "section"],
            "properties": {
                "subject_id": {"type": "string"},
                "section": {"type": "string"}
            }
        },
        "RejectEnrollmentRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "AddDropRequest": {
            "type": "object",
            "properties": {
                "add": {"type": "array", "items": {"$ref": "#/definitions/SubjectSelection"}},
                "drop": {"type": "array", "items": {"$ref": "#/definitions/DropSelection"}}
            }
        },
        "DropSelection": {
            "type": "object",
            "required": ["subject_id"],
            "properties": {
                "subject_id": {"type": "string"},
                "remarks": {"type": "string"}
            }
        },
        "AddPaymentRequest": {
            "type": "object",
            "required": ["amount", "method"],
            "properties": {
                "amount": {"type": "string"},
                "method": {"type": "string", "enum": ["CASH", "CHECK", "BANK_TRANSFER", "ONLINE"]}
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
                "conflicts": {"type": "array", "items": {"type": "object"}},
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
