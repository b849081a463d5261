// Package metrics defines and registers the custom Prometheus metrics for the
// identity API. It is the single source of truth for metric names, labels and
// help strings.
//
// All metrics are registered with the default registry at package init via
// promauto; HTTP request metrics come from the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// ── Authentication ────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - result: "success", "unknown_user", "bad_password", "missing_credentials" or "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// RegistrationsTotal counts registration attempts.
// Label:
//   - result: "success", "duplicate_username", "validation_failed" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// TokensIssuedTotal counts signed tokens handed out.
var TokensIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of bearer tokens issued.",
	},
)

// ── Roles ─────────────────────────────────────────────────────────────────────

// RolesCreatedTotal counts role creation attempts.
// Label:
//   - result: "success", "duplicate" or "error"
var RolesCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roles_created_total",
		Help:      "Total number of role creation attempts, by result.",
	},
	[]string{"result"},
)

// RoleAssignmentChangesTotal counts user-role update requests.
// Labels:
//   - action: "add" or "remove"
//   - result: "changed", "noop", "user_not_found" or "error"
var RoleAssignmentChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_assignment_changes_total",
		Help:      "Total number of user-role update requests, by action and result.",
	},
	[]string{"action", "result"},
)

// RoleCacheLookupsTotal counts role-set cache lookups.
// Label:
//   - result: "hit", "miss" or "error"
var RoleCacheLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_cache_lookups_total",
		Help:      "Total number of role-set cache lookups, labelled by result (hit/miss/error).",
	},
	[]string{"result"},
)
