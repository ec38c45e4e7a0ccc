// Package sandbox compiles declarative sandbox configurations into
// container-engine launch arguments and runs them. The builder is pure
// and fails closed: a compiled argv can never contain a blocked bind
// target, host networking, or an unconfined kernel-hardening profile.
package sandbox

import (
	"strconv"
	"time"
)

// WorkspaceAccessMode controls how the workspace is mounted in the sandbox.
type WorkspaceAccessMode string

const (
	// WorkspaceNone means no workspace is mounted (most secure).
	WorkspaceNone WorkspaceAccessMode = "none"

	// WorkspaceReadOnly mounts the workspace as read-only (default).
	WorkspaceReadOnly WorkspaceAccessMode = "ro"

	// WorkspaceReadWrite mounts the workspace with read-write access.
	WorkspaceReadWrite WorkspaceAccessMode = "rw"
)

// Config is the declarative sandbox configuration for a scope.
type Config struct {
	// Enabled turns sandboxed execution on for the scope.
	Enabled bool `yaml:"enabled"`

	// HostWorkspace is the host directory mounted as the workspace.
	HostWorkspace string `yaml:"host_workspace"`

	// ContainerWorkspace is the in-container workspace path.
	// Defaults to /workspace.
	ContainerWorkspace string `yaml:"container_workspace"`

	// WorkspaceAccess is the workspace mount mode: none, ro, rw.
	WorkspaceAccess WorkspaceAccessMode `yaml:"workspace_access"`

	// ContainerPrefix prefixes generated container names.
	ContainerPrefix string `yaml:"container_prefix"`

	// Policy is the container hardening policy.
	Policy ContainerPolicy `yaml:"policy"`
}

// DefaultConfig returns the default sandbox configuration.
func DefaultConfig() Config {
	return Config{
		ContainerWorkspace: "/workspace",
		WorkspaceAccess:    WorkspaceReadOnly,
		ContainerPrefix:    "anima-sbx-",
		Policy: ContainerPolicy{
			Image:   "anima-sandbox:bookworm-slim",
			Workdir: "/workspace",
			Network: "none",
			CapDrop: []string{"ALL"},
		},
	}
}

// ContainerPolicy describes an isolated execution environment: image,
// mounts, network, resource limits, and kernel-hardening profiles.
type ContainerPolicy struct {
	Image        string `yaml:"image"`
	Workdir      string `yaml:"workdir"`
	ReadOnlyRoot bool   `yaml:"read_only_root"`

	// Tmpfs lists in-container tmpfs mount points.
	Tmpfs []string `yaml:"tmpfs"`

	// Network is the container network mode. "host" is always rejected.
	Network string `yaml:"network"`

	// User is the uid:gid spec the container runs as.
	User string `yaml:"user"`

	// CapDrop lists dropped capabilities.
	CapDrop []string `yaml:"cap_drop"`

	// Env is the container environment.
	Env map[string]string `yaml:"env"`

	// Resource limits. Zero values are omitted from the argv.
	PidsLimit  int     `yaml:"pids_limit"`
	Memory     string  `yaml:"memory"`
	MemorySwap string  `yaml:"memory_swap"`
	CPUs       float64 `yaml:"cpus"`

	// Ulimits maps limit names to values.
	Ulimits map[string]Ulimit `yaml:"ulimits"`

	// SeccompProfile and ApparmorProfile reference kernel-hardening
	// profiles. "unconfined" is always rejected.
	SeccompProfile  string `yaml:"seccomp_profile"`
	ApparmorProfile string `yaml:"apparmor_profile"`

	// DNS lists resolver addresses for the container.
	DNS []string `yaml:"dns"`

	// ExtraHosts lists host:ip mappings added to /etc/hosts.
	ExtraHosts []string `yaml:"extra_hosts"`

	// Binds lists caller-supplied host:container[:mode] mounts. Each is
	// validated against the blocked-path set before any argv is emitted.
	Binds []string `yaml:"binds"`

	// ToolAllow and ToolDeny filter which agent tools may run inside
	// the sandbox. Enforcement happens at dispatch, not in the argv.
	ToolAllow []string `yaml:"tool_allow"`
	ToolDeny  []string `yaml:"tool_deny"`

	// Browser configures the optional browser bridge.
	Browser *BrowserBridgeConfig `yaml:"browser"`
}

// Ulimit is a soft/hard resource limit pair. When Hard is zero the limit
// renders as a bare value.
type Ulimit struct {
	Soft int64 `yaml:"soft"`
	Hard int64 `yaml:"hard"`
}

// BrowserBridgeConfig configures the in-sandbox browser bridge: the
// container reaches the host bridge through an extra-host mapping and a
// well-known environment variable.
type BrowserBridgeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	HostName string `yaml:"host_name"` // defaults to host.anima.internal
	HostIP   string `yaml:"host_ip"`   // defaults to host-gateway
	Port     int    `yaml:"port"`
}

// ContainerName generates a container name for a scope at a point in
// time. The creation timestamp keeps names unique across successive
// runs for the same scope so a stale container never collides with a
// fresh one.
func (c Config) ContainerName(scopeKey string, createdAt time.Time) string {
	prefix := c.ContainerPrefix
	if prefix == "" {
		prefix = "anima-sbx-"
	}
	return prefix + sanitizeNamePart(scopeKey) + "-" + strconv.FormatInt(createdAt.UnixMilli(), 10)
}

// sanitizeNamePart keeps container names within the engine's allowed
// character set.
func sanitizeNamePart(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
