package sandbox

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Reserved label keys stamped onto every sandbox container.
const (
	LabelSandbox   = "anima.sandbox"
	LabelScopeKey  = "anima.sessionKey"
	LabelCreatedAt = "anima.createdAtMs"
)

// IsolationError reports a policy that would break isolation. Build
// fails closed: no argv is returned and the caller must not retry with
// the same policy.
type IsolationError struct {
	Reason string
}

func (e *IsolationError) Error() string {
	return "sandbox isolation violation: " + e.Reason
}

// blockedBindPaths are bind targets that hand the container control of
// the host: the container engine's own sockets and top-level OS
// directories. Both the host and container side of every caller-supplied
// bind are checked. The implicit workspace mount is internally
// constructed and is not subject to this list.
var blockedBindPaths = map[string]bool{
	"/":                        true,
	"/run":                     true,
	"/var/run":                 true,
	"/var/run/docker.sock":     true,
	"/run/docker.sock":         true,
	"/run/podman/podman.sock":  true,
	"/proc":                    true,
	"/sys":                     true,
	"/dev":                     true,
	"/etc":                     true,
	"/boot":                    true,
	"/root":                    true,
}

// CreateSpec is the input to BuildCreateArgs.
type CreateSpec struct {
	// Name is the container name.
	Name string

	// Config carries the workspace layout and container policy.
	Config Config

	// ScopeKey identifies the session scope the sandbox belongs to.
	ScopeKey string

	// CreatedAtMs is the creation timestamp in unix milliseconds.
	CreatedAtMs int64

	// Labels are caller-supplied labels, merged after the reserved ones
	// and never overriding them.
	Labels map[string]string
}

// BuildCreateArgs compiles a sandbox create specification into container
// engine arguments ("create" onward). It validates isolation invariants
// before emitting any argv and returns an IsolationError on the first
// violation.
//
// Flag order is deterministic but not contractual except for flag/value
// adjacency.
func BuildCreateArgs(spec CreateSpec) ([]string, error) {
	policy := spec.Config.Policy

	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	args := []string{"create", "--name", spec.Name}

	labels := map[string]string{
		LabelSandbox:   "1",
		LabelScopeKey:  spec.ScopeKey,
		LabelCreatedAt: strconv.FormatInt(spec.CreatedAtMs, 10),
	}
	for key, value := range spec.Labels {
		if _, reserved := labels[key]; reserved {
			continue
		}
		labels[key] = value
	}
	for _, key := range sortedKeys(labels) {
		args = append(args, "--label", key+"="+labels[key])
	}

	if policy.ReadOnlyRoot {
		args = append(args, "--read-only")
	}
	for _, mount := range policy.Tmpfs {
		args = append(args, "--tmpfs", mount)
	}
	if policy.Network != "" {
		args = append(args, "--network", policy.Network)
	}
	if policy.User != "" {
		args = append(args, "--user", policy.User)
	}
	for _, capability := range policy.CapDrop {
		args = append(args, "--cap-drop", capability)
	}

	args = append(args, "--security-opt", "no-new-privileges")
	if policy.SeccompProfile != "" {
		args = append(args, "--security-opt", "seccomp="+policy.SeccompProfile)
	}
	if policy.ApparmorProfile != "" {
		args = append(args, "--security-opt", "apparmor="+policy.ApparmorProfile)
	}

	for _, server := range policy.DNS {
		args = append(args, "--dns", server)
	}
	extraHosts := policy.ExtraHosts
	if bridge := policy.Browser; bridge != nil && bridge.Enabled {
		extraHosts = append(append([]string{}, extraHosts...), bridge.hostMapping())
	}
	for _, mapping := range extraHosts {
		args = append(args, "--add-host", mapping)
	}

	if policy.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(policy.PidsLimit))
	}
	if policy.Memory != "" {
		args = append(args, "--memory", policy.Memory)
	}
	if policy.MemorySwap != "" {
		args = append(args, "--memory-swap", policy.MemorySwap)
	}
	if policy.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(policy.CPUs, 'f', -1, 64))
	}
	for _, name := range sortedKeys(policy.Ulimits) {
		args = append(args, "--ulimit", renderUlimit(name, policy.Ulimits[name]))
	}

	for _, key := range sortedKeys(policy.Env) {
		args = append(args, "--env", key+"="+policy.Env[key])
	}
	if bridge := policy.Browser; bridge != nil && bridge.Enabled {
		args = append(args, "--env", bridge.envVar())
	}

	// Implicit workspace mount; internally constructed, not subject to
	// the bind blocklist.
	if spec.Config.WorkspaceAccess != WorkspaceNone && spec.Config.HostWorkspace != "" {
		containerPath := spec.Config.ContainerWorkspace
		if containerPath == "" {
			containerPath = "/workspace"
		}
		mode := spec.Config.WorkspaceAccess
		if mode == "" {
			mode = WorkspaceReadOnly
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", spec.Config.HostWorkspace, containerPath, mode))
	}

	for _, bind := range policy.Binds {
		args = append(args, "-v", bind)
	}

	if policy.Workdir != "" {
		args = append(args, "-w", policy.Workdir)
	}

	args = append(args, policy.Image)
	return args, nil
}

// validatePolicy applies the fail-closed isolation checks.
func validatePolicy(policy ContainerPolicy) error {
	if policy.Image == "" {
		return &IsolationError{Reason: "image is required"}
	}
	if policy.Network == "host" {
		return &IsolationError{Reason: `network mode "host" is blocked`}
	}
	if policy.SeccompProfile == "unconfined" {
		return &IsolationError{Reason: `seccomp profile "unconfined" is blocked`}
	}
	if policy.ApparmorProfile == "unconfined" {
		return &IsolationError{Reason: `apparmor profile "unconfined" is blocked`}
	}
	for _, bind := range policy.Binds {
		if err := validateBind(bind); err != nil {
			return err
		}
	}
	return nil
}

// validateBind checks one host:container[:mode] bind against the
// blocked-path set.
func validateBind(bind string) error {
	parts := strings.Split(bind, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return &IsolationError{Reason: fmt.Sprintf("malformed bind %q", bind)}
	}
	hostPath, containerPath := parts[0], parts[1]
	if hostPath == "" || containerPath == "" {
		return &IsolationError{Reason: fmt.Sprintf("malformed bind %q", bind)}
	}
	for _, target := range []string{hostPath, containerPath} {
		if blockedBindPaths[path.Clean(target)] {
			return &IsolationError{Reason: fmt.Sprintf("bind %q: blocked path %q", bind, target)}
		}
	}
	return nil
}

// renderUlimit renders name=soft:hard, or a bare value when the limit
// has no soft/hard split.
func renderUlimit(name string, limit Ulimit) string {
	if limit.Hard != 0 {
		return fmt.Sprintf("%s=%d:%d", name, limit.Soft, limit.Hard)
	}
	return fmt.Sprintf("%s=%d", name, limit.Soft)
}

func (b *BrowserBridgeConfig) hostMapping() string {
	name := b.HostName
	if name == "" {
		name = "host.anima.internal"
	}
	ip := b.HostIP
	if ip == "" {
		ip = "host-gateway"
	}
	return name + ":" + ip
}

func (b *BrowserBridgeConfig) envVar() string {
	name := b.HostName
	if name == "" {
		name = "host.anima.internal"
	}
	port := b.Port
	if port == 0 {
		port = 8064
	}
	return fmt.Sprintf("ANIMA_BROWSER_BRIDGE=http://%s:%d", name, port)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
