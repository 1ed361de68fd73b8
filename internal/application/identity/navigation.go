package identity

import (
	"fmt"
	"sync/atomic"

	"github.com/saasbooks/backend/internal/domain/identity"
	"github.com/spf13/viper"
)

// Group is the navigation group a principal resolves into. The role
// string on the user is the single authoritative permission model;
// group membership is derived from it.
type Group string

const (
	GroupMultiTenant Group = "Multi-Tenant"
	GroupTenant      Group = "Tenant"
	GroupPublic      Group = "public"
)

// MenuItem is one entry of a navigation menu.
type MenuItem struct {
	Name     string     `json:"name" mapstructure:"name"`
	Path     string     `json:"path" mapstructure:"path"`
	Icon     string     `json:"icon,omitempty" mapstructure:"icon"`
	Children []MenuItem `json:"children,omitempty" mapstructure:"children"`
}

// NavigationConfig is the static role to menu mapping. It is loaded at
// startup and swapped atomically on reload; resolvers never mutate it.
type NavigationConfig struct {
	// MultiTenant is the platform operations menu.
	MultiTenant []MenuItem `mapstructure:"multi_tenant"`
	// Tenant maps tenant role names to their menus.
	Tenant map[string][]MenuItem `mapstructure:"tenant"`
	// Public is served to unknown roles.
	Public []MenuItem `mapstructure:"public"`
	// Permissions maps role names to permission codes.
	Permissions map[string][]string `mapstructure:"permissions"`
}

// NavigationResult is the navigation and permission projection
// returned on login and from the navigation endpoint.
type NavigationResult struct {
	Role        string     `json:"role"`
	Navigation  []MenuItem `json:"navigation"`
	Permissions []string   `json:"permissions"`
	UserType    string     `json:"user_type"`
	Group       Group      `json:"group"`
}

// NavigationResolver resolves a principal's role into its navigation.
// Reads are lock-free; reloads swap the snapshot pointer.
type NavigationResolver struct {
	snapshot atomic.Pointer[NavigationConfig]
}

// NewNavigationResolver creates a resolver over an initial
// configuration. A nil config yields empty navigation for every role.
func NewNavigationResolver(cfg *NavigationConfig) *NavigationResolver {
	r := &NavigationResolver{}
	if cfg != nil {
		r.snapshot.Store(cfg)
	}
	return r
}

// Reload swaps in a new configuration snapshot. In-flight resolutions
// keep reading the old one.
func (r *NavigationResolver) Reload(cfg *NavigationConfig) {
	r.snapshot.Store(cfg)
}

// LoadFile reads a navigation configuration file and swaps it in. On
// failure the previous snapshot stays active and the error is returned;
// a resolver that never loaded anything serves empty navigation.
func (r *NavigationResolver) LoadFile(path string) error {
	cfg, err := LoadNavigationFile(path)
	if err != nil {
		return err
	}
	r.Reload(cfg)
	return nil
}

// Resolve produces the navigation for a role. Platform staff resolve
// into the Multi-Tenant group; roles with a configured tenant menu into
// the Tenant group; everything else falls back to public.
func (r *NavigationResolver) Resolve(role identity.Role) NavigationResult {
	cfg := r.snapshot.Load()
	if cfg == nil {
		cfg = &NavigationConfig{}
	}

	res := NavigationResult{
		Role:        string(role),
		Navigation:  []MenuItem{},
		Permissions: []string{},
	}
	if perms, ok := cfg.Permissions[string(role)]; ok {
		res.Permissions = append(res.Permissions, perms...)
	}

	switch {
	case role.IsPlatformStaff():
		res.Group = GroupMultiTenant
		res.UserType = "platform"
		res.Navigation = append(res.Navigation, cfg.MultiTenant...)
	default:
		menu, ok := cfg.Tenant[string(role)]
		if !ok {
			res.Group = GroupPublic
			res.UserType = "public"
			res.Navigation = append(res.Navigation, cfg.Public...)
			break
		}
		res.Group = GroupTenant
		res.UserType = "tenant"
		res.Navigation = append(res.Navigation, menu...)
	}
	return res
}

// LoadNavigationFile parses a navigation configuration file (TOML,
// YAML or JSON by extension).
func LoadNavigationFile(path string) (*NavigationConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read navigation config: %w", err)
	}
	var cfg NavigationConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse navigation config: %w", err)
	}
	return &cfg, nil
}

// DefaultNavigationConfig is the built-in menu set used when no
// navigation file is deployed.
func DefaultNavigationConfig() *NavigationConfig {
	return &NavigationConfig{
		MultiTenant: []MenuItem{
			{Name: "Tenants", Path: "/admin/tenants", Icon: "building"},
			{Name: "Audit Logs", Path: "/admin/audit-logs", Icon: "list"},
			{Name: "Security Events", Path: "/admin/security-events", Icon: "shield"},
		},
		Tenant: map[string][]MenuItem{
			string(identity.RoleTenantOwner): {
				{Name: "Dashboard", Path: "/dashboard", Icon: "home"},
				{Name: "Invoices", Path: "/invoices", Icon: "file"},
				{Name: "Accounts", Path: "/accounts", Icon: "book"},
				{Name: "Team", Path: "/settings/users", Icon: "users"},
				{Name: "Settings", Path: "/settings", Icon: "gear"},
			},
			string(identity.RoleAccountant): {
				{Name: "Dashboard", Path: "/dashboard", Icon: "home"},
				{Name: "Invoices", Path: "/invoices", Icon: "file"},
				{Name: "Accounts", Path: "/accounts", Icon: "book"},
			},
			string(identity.RoleCFO): {
				{Name: "Dashboard", Path: "/dashboard", Icon: "home"},
				{Name: "Invoices", Path: "/invoices", Icon: "file"},
				{Name: "Accounts", Path: "/accounts", Icon: "book"},
				{Name: "Reports", Path: "/reports", Icon: "chart"},
			},
			string(identity.RoleTenantMember): {
				{Name: "Dashboard", Path: "/dashboard", Icon: "home"},
			},
		},
		Public: []MenuItem{
			{Name: "Login", Path: "/login"},
		},
		Permissions: map[string][]string{
			string(identity.RolePlatformAdmin): {"tenant:*", "audit:*", "security:*"},
			string(identity.RoleTenantOwner):   {"invoice:*", "account:*", "user:*", "settings:*"},
			string(identity.RoleAccountant):    {"invoice:*", "account:read", "account:write"},
			string(identity.RoleCFO):           {"invoice:read", "account:read", "report:*"},
			string(identity.RoleTenantMember):  {"invoice:read"},
		},
	}
}
