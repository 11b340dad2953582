package middleware

import (
	"strings"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"

	RoleAdmin    = "admin"
	RoleRetailer = "retailer"
	RoleChannel  = "channel"

	actorKey = "kickback.actor"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

var defaultPolicies = [][]string{
	{RoleAdmin, "/api/admin/*", "^(GET|POST|PUT|DELETE)$"},
	{RoleRetailer, "/api/retailer/*", "^GET$"},
	{RoleRetailer, "/api/kickback/sales", "^POST$"},
	{RoleChannel, "/api/kickback/sales", "^POST$"},
}

var defaultGroupings = [][]string{
	{RoleAdmin, RoleRetailer},
}

// Actor is the authenticated caller of a request.
type Actor struct {
	Email string
	Role  string
}

type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer loads the casbin model and policy named in ACCESS_CONTROL, or
// the built-in role policy when none is configured.
func NewAuthorizer(cfg *config.Config) (*Authorizer, error) {
	ac := cfg.AccessControl
	if ac.Model != "" && ac.Policy != "" {
		e, err := casbin.NewEnforcer(ac.Model, ac.Policy)
		if err != nil {
			return nil, err
		}
		zap.L().Info("[Auth] loaded access control policy", zap.String("policy", ac.Policy))
		return &Authorizer{enforcer: e}, nil
	}

	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: e}, nil
}

// Authorize resolves the caller from the identity headers and checks the
// route against the policy.
func (a *Authorizer) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor{
			Email: strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
			Role:  strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))),
		}
		if actor.Role == "" {
			_ = c.Error(errutil.Unauthorized("missing caller role", nil))
			c.Abort()
			return
		}
		if actor.Role != RoleChannel && actor.Email == "" {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}

		ok, err := a.enforcer.Enforce(actor.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			_ = c.Error(errutil.Internal("authorization failed", err))
			c.Abort()
			return
		}
		if !ok {
			_ = c.Error(errutil.Forbidden("access denied", nil))
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the caller stored by Authorize.
func ActorFrom(c *gin.Context) Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(Actor); ok {
			return a
		}
	}
	return Actor{}
}
