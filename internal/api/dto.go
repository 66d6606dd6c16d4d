// Package api implements the Intent API (spec §4.5, §6.1): the
// authenticated HTTP surface that creates, reads, updates, deletes,
// pauses, and resumes routes.
package api

import (
	"time"

	"github.com/yanizio/routemgr/internal/route"
)

// routeBody is the PUT request body. via/dev are plain strings ("" means
// absent) so route.New can apply its own presence and format checks.
type routeBody struct {
	To       string     `json:"to"`
	Via      string     `json:"via"`
	Dev      string     `json:"dev"`
	CreateAt *time.Time `json:"create_at"`
	DeleteAt *time.Time `json:"delete_at"`
}

// routeUpdateBody is the PATCH request body. Pointer fields distinguish
// "absent from body" (nil) from "present" (non-nil, possibly pointing at
// an empty string) per spec §4.5.2's via/dev mutual-exclusion rule.
type routeUpdateBody struct {
	To       string     `json:"to"`
	Via      *string    `json:"via"`
	Dev      *string    `json:"dev"`
	CreateAt *time.Time `json:"create_at"`
	DeleteAt *time.Time `json:"delete_at"`
}

// toBody is shared by DELETE, pause, and activate.
type toBody struct {
	To string `json:"to"`
}

type routesResponse struct {
	DatabaseRoutes []route.Record `json:"database_routes"`
	SystemRoutes   []string       `json:"system_routes"`
}

type deletedRoutesResponse struct {
	DeletedRoutes []route.Deleted `json:"deleted_routes"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}
