// Package route defines the RouteRecord and DeletedRecord domain model
// (spec §3) and the construction/validation functions that replace
// declarative field validators with explicit, testable constructors.
package route

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/yanizio/routemgr/internal/apperr"
)

// Status is the administrative/lifecycle state of a RouteRecord.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusPaused  Status = "paused"
	StatusDeleted Status = "deleted"
)

// Record is the persisted representation of a declared route (spec §3).
// To is the primary key; at most one Record may exist per To.
type Record struct {
	To       string     `db:"to"        json:"to"`
	Via      *string    `db:"via"       json:"via,omitempty"`
	Dev      *string    `db:"dev"       json:"dev,omitempty"`
	CreateAt time.Time  `db:"create_at" json:"create_at"`
	DeleteAt *time.Time `db:"delete_at" json:"delete_at,omitempty"`
	Active   bool       `db:"active"    json:"active"`
	Status   Status     `db:"status"    json:"status"`
}

// Deleted is the historical snapshot appended when a Record is removed.
type Deleted struct {
	ID        int64      `db:"id"         json:"-"`
	To        string     `db:"to"         json:"to"`
	Via       *string    `db:"via"        json:"via,omitempty"`
	Dev       *string    `db:"dev"        json:"dev,omitempty"`
	CreateAt  time.Time  `db:"create_at"  json:"create_at"`
	DeleteAt  *time.Time `db:"delete_at"  json:"delete_at,omitempty"`
	Status    Status     `db:"status"     json:"status"`
	RemovedAt time.Time  `db:"removed_at" json:"removed_at"`
}

// Patch carries the subset of fields a PATCH request may overwrite. A nil
// field leaves the stored value untouched; ClearVia/ClearDev force a field
// to NULL (used for the via/dev mutual-exclusion rule on PATCH).
type Patch struct {
	Via      *string
	ClearVia bool
	Dev      *string
	ClearDev bool
	CreateAt *time.Time
	DeleteAt *time.Time
}

// Phase is the time-derived classification of a window relative to now.
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseActive  Phase = "active"
	PhaseExpired Phase = "expired"
)

// Classify implements spec §4.5.1's phase function.
func Classify(createAt time.Time, deleteAt *time.Time, now time.Time) Phase {
	if deleteAt != nil && !deleteAt.After(now) {
		return PhaseExpired
	}
	if createAt.After(now) {
		return PhasePending
	}
	return PhaseActive
}

// InWindow reports whether now falls inside [createAt, deleteAt).
func InWindow(createAt time.Time, deleteAt *time.Time, now time.Time) bool {
	if createAt.After(now) {
		return false
	}
	return deleteAt == nil || deleteAt.After(now)
}

// NewInput is the validated input to New, built by the API layer from a
// decoded request body.
type NewInput struct {
	To       string
	Via      string
	Dev      string
	CreateAt *time.Time
	DeleteAt *time.Time
}

// InterfaceLister reports the egress interfaces present on the host.
// net.Interfaces satisfies this; tests inject a fake.
type InterfaceLister func() ([]net.Interface, error)

// New validates in, applies create_at defaulting, and returns a Record in
// status "pending" (the caller/API layer derives the actual phase-specific
// status via Classify before handing the record to the store). Invariants
// 1 and 2 from spec §3 are enforced here; invariant 6 (uniqueness) is the
// store's responsibility.
func New(in NewInput, now time.Time, interfaces InterfaceLister) (Record, error) {
	to := strings.TrimSpace(in.To)
	if to == "" {
		return Record{}, apperr.Validation("to is required")
	}
	if _, _, err := parseAddrOrNetwork(to); err != nil {
		return Record{}, apperr.Validation("to: %v", err)
	}

	via := strings.TrimSpace(in.Via)
	dev := strings.TrimSpace(in.Dev)
	if via == "" && dev == "" {
		return Record{}, apperr.Validation("route must include at least one of via or dev")
	}

	if via != "" {
		if net.ParseIP(via) == nil {
			return Record{}, apperr.Validation("via: %q is not a valid IP address", via)
		}
	}
	if dev != "" {
		if err := checkInterfaceExists(dev, interfaces); err != nil {
			return Record{}, err
		}
	}

	// Timezone-awareness is enforced at the JSON boundary: time.Time always
	// decodes from an RFC3339 string that carries an offset, so by the time
	// CreateAt/DeleteAt reach this constructor they are already tz-aware.
	createAt := now
	if in.CreateAt != nil {
		createAt = *in.CreateAt
	}

	var deleteAt *time.Time
	if in.DeleteAt != nil {
		d := *in.DeleteAt
		if !d.After(now) {
			return Record{}, apperr.Validation("delete_at %s has already passed", d)
		}
		if d.Before(createAt) {
			return Record{}, apperr.Validation("delete_at %s precedes create_at %s", d, createAt)
		}
		deleteAt = &d
	}

	rec := Record{
		To:       to,
		CreateAt: createAt,
		DeleteAt: deleteAt,
		Status:   StatusPending,
	}
	if via != "" {
		rec.Via = &via
	}
	if dev != "" {
		rec.Dev = &dev
	}
	return rec, nil
}

func checkInterfaceExists(dev string, interfaces InterfaceLister) error {
	if interfaces == nil {
		interfaces = net.Interfaces
	}
	ifaces, err := interfaces()
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "enumerating network interfaces", err)
	}
	for _, ifc := range ifaces {
		if ifc.Name == dev {
			return nil
		}
	}
	return apperr.Validation("dev: %q does not name a network interface on this host", dev)
}

// parseAddrOrNetwork accepts either a bare IPv4/IPv6 address or a CIDR
// network, matching spec §3's "to" field contract.
func parseAddrOrNetwork(s string) (net.IP, *net.IPNet, error) {
	if strings.Contains(s, "/") {
		ip, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return nil, nil, fmt.Errorf("%q is not a valid CIDR network: %w", s, err)
		}
		return ip, ipnet, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, nil, fmt.Errorf("%q is not a valid IP address or CIDR network", s)
	}
	return ip, nil, nil
}
