package valueobject

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyProject = errors.New("project is required")
	ErrEmptyEnv     = errors.New("env is required")
)

// Target names one live secret: a project and one of its environments
type Target struct {
	Project string `json:"project"`
	Env     string `json:"env"`
}

func NewTarget(project, env string) (Target, error) {
	project = strings.TrimSpace(project)
	env = strings.TrimSpace(env)
	if project == "" {
		return Target{}, ErrEmptyProject
	}
	if env == "" {
		return Target{}, ErrEmptyEnv
	}
	return Target{Project: project, Env: env}, nil
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.Project, t.Env)
}

// TargetRegistry is the immutable project -> environments map configured at startup.
type TargetRegistry struct {
	targets map[string]map[string]struct{}
}

// NewTargetRegistry copies projects so later mutation of the input has no effect.
func NewTargetRegistry(projects map[string][]string) TargetRegistry {
	targets := make(map[string]map[string]struct{}, len(projects))
	for project, envs := range projects {
		set := make(map[string]struct{}, len(envs))
		for _, env := range envs {
			if env = strings.TrimSpace(env); env != "" {
				set[env] = struct{}{}
			}
		}
		targets[strings.TrimSpace(project)] = set
	}
	return TargetRegistry{targets: targets}
}

func (r TargetRegistry) Contains(t Target) bool {
	envs, ok := r.targets[t.Project]
	if !ok {
		return false
	}
	_, ok = envs[t.Env]
	return ok
}

func (r TargetRegistry) Projects() []string {
	projects := make([]string, 0, len(r.targets))
	for p := range r.targets {
		projects = append(projects, p)
	}
	sort.Strings(projects)
	return projects
}

func (r TargetRegistry) Envs(project string) []string {
	envs := make([]string, 0, len(r.targets[project]))
	for e := range r.targets[project] {
		envs = append(envs, e)
	}
	sort.Strings(envs)
	return envs
}

func (r TargetRegistry) Len() int {
	n := 0
	for _, envs := range r.targets {
		n += len(envs)
	}
	return n
}
