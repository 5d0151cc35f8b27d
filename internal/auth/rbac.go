package auth

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"moviegraph/internal/apperrors"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Objects and actions checked by the enforcer.
const (
	ObjMovies          = "movies"
	ObjPersons         = "persons"
	ObjReviews         = "reviews"
	ObjWatchlists      = "watchlists"
	ObjUsers           = "users"
	ObjImports         = "imports"
	ObjRecommendations = "recommendations"

	ActWrite   = "write"
	ActRun     = "run"
	ActManage  = "manage"
	ActReadAny = "read_any"
)

// Enforcer answers role-based permission questions.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the embedded RBAC model and policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RBAC model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}

	return &Enforcer{enforcer: enforcer}, nil
}

func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Allowed reports whether role may perform action on object.
func (e *Enforcer) Allowed(role, object, action string) (bool, error) {
	ok, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return ok, nil
}

// Authorize returns middleware that lets through only users whose role may
// perform action on object. It must run after RequireAuth.
func (e *Enforcer) Authorize(object, action, denied string, errs *apperrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := GetUserFromContext(r.Context())
			if err != nil {
				errs.Handle(w, r, err)
				return
			}

			ok, err := e.Allowed(user.Role, object, action)
			if err != nil {
				errs.Handle(w, r, apperrors.NewInternalError("authorization failed").WithCause(err))
				return
			}
			if !ok {
				errs.Handle(w, r, apperrors.NewForbiddenError(denied))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
