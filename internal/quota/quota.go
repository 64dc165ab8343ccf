// Package quota tracks per-identity storage limits and roles. Usage is
// never stored; it is asked from the artifact store on every admission.
package quota

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"mediagrab/internal/jsonfile"
	"mediagrab/internal/media"
)

// FileName is the settings document inside the managed directory.
const FileName = "user-settings.json"

// Unlimited is the limit value that disables the check.
const Unlimited int64 = -1

// DefaultLimit applies to identities without an explicit limit.
const DefaultLimit int64 = 5 << 30

// Role is an identity's privilege level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q (want user or admin)", s)
	}
}

// UsageSource reports the live storage usage of an identity.
type UsageSource interface {
	Usage(identity string) uint64
}

// Record is the effective quota state of one identity.
type Record struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
	Limit    int64  `json:"storageLimitBytes"`
	Usage    uint64 `json:"currentUsageBytes"`
}

// Options configures a Manager.
type Options struct {
	DefaultLimit int64
	Admins       []string
	Log          zerolog.Logger
}

type settings struct {
	StorageLimits map[string]int64 `json:"storageLimits"`
	UserRoles     map[string]Role  `json:"userRoles"`
}

// Manager admits new artifacts against identity limits. Admission and the
// settings file share one critical section.
type Manager struct {
	path  string
	usage UsageSource
	opts  Options
	log   zerolog.Logger

	mu sync.Mutex
	s  settings
}

// Open loads settings from dir and seeds the configured admin identities.
func Open(dir string, usage UsageSource, opts Options) (*Manager, error) {
	if opts.DefaultLimit == 0 {
		opts.DefaultLimit = DefaultLimit
	}
	m := &Manager{
		path:  filepath.Join(dir, FileName),
		usage: usage,
		opts:  opts,
		log:   opts.Log.With().Str("component", "quota").Logger(),
	}
	if _, err := jsonfile.Load(m.path, &m.s); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if m.s.StorageLimits == nil {
		m.s.StorageLimits = make(map[string]int64)
	}
	if m.s.UserRoles == nil {
		m.s.UserRoles = make(map[string]Role)
	}

	seeded := false
	for _, id := range opts.Admins {
		if m.s.UserRoles[id] != RoleAdmin || m.s.StorageLimits[id] != Unlimited {
			m.s.UserRoles[id] = RoleAdmin
			m.s.StorageLimits[id] = Unlimited
			seeded = true
		}
	}
	if seeded {
		if err := m.save(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Get returns the effective record for identity, including current usage.
func (m *Manager) Get(identity string) Record {
	m.mu.Lock()
	role, limit := m.roleLocked(identity), m.limitLocked(identity)
	m.mu.Unlock()

	return Record{Identity: identity, Role: role, Limit: limit, Usage: m.usage.Usage(identity)}
}

// Admit checks whether identity may store size more bytes.
func (m *Manager) Admit(identity string, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitLocked(identity, size)
}

// Commit admits size for identity and, if allowed, runs record while still
// holding the admission lock, so concurrent commits cannot together exceed
// the limit.
func (m *Manager) Commit(identity string, size uint64, record func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.admitLocked(identity, size); err != nil {
		return err
	}
	return record()
}

// SetRole assigns a role. Admins get an unlimited quota; demoting an admin
// restores the default limit.
func (m *Manager) SetRole(identity string, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.UserRoles[identity] = role
	switch {
	case role == RoleAdmin:
		m.s.StorageLimits[identity] = Unlimited
	case m.s.StorageLimits[identity] == Unlimited:
		delete(m.s.StorageLimits, identity)
	}
	m.log.Info().Str("identity", identity).Str("role", string(role)).Msg("role changed")
	return m.save()
}

// SetLimit assigns a storage limit in bytes; Unlimited disables the check.
func (m *Manager) SetLimit(identity string, limit int64) error {
	if limit < Unlimited {
		return fmt.Errorf("invalid limit %d", limit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.StorageLimits[identity] = limit
	m.log.Info().Str("identity", identity).Int64("limit", limit).Msg("limit changed")
	return m.save()
}

func (m *Manager) admitLocked(identity string, size uint64) error {
	if m.roleLocked(identity) == RoleAdmin {
		return nil
	}
	limit := m.limitLocked(identity)
	if limit < 0 {
		return nil
	}

	usage := m.usage.Usage(identity)
	if usage+size > uint64(limit) {
		return &media.QuotaError{Identity: identity, Limit: limit, Usage: usage, Candidate: size}
	}
	return nil
}

func (m *Manager) roleLocked(identity string) Role {
	if r, ok := m.s.UserRoles[identity]; ok {
		return r
	}
	return RoleUser
}

func (m *Manager) limitLocked(identity string) int64 {
	if l, ok := m.s.StorageLimits[identity]; ok {
		return l
	}
	return m.opts.DefaultLimit
}

func (m *Manager) save() error {
	if err := jsonfile.Save(m.path, m.s); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
