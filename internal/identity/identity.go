// Package identity reads the CI run metadata merged into every telemetry record.
package identity

import "os"

// Context holds the GitHub Actions run identity. Fields are empty when the
// corresponding variable is unset; they are always serialized.
type Context struct {
	RunID      string `json:"gh_run_id"`
	SHA        string `json:"gh_sha"`
	RefName    string `json:"gh_ref_name"`
	Workflow   string `json:"gh_workflow"`
	Job        string `json:"gh_job"`
	Actor      string `json:"gh_actor"`
	Repository string `json:"gh_repository"`
	RunAttempt string `json:"gh_run_attempt"`
}

// variables maps each environment variable to the field it fills.
var variables = []struct {
	name  string
	field func(*Context) *string
}{
	{"GITHUB_RUN_ID", func(c *Context) *string { return &c.RunID }},
	{"GITHUB_SHA", func(c *Context) *string { return &c.SHA }},
	{"GITHUB_REF_NAME", func(c *Context) *string { return &c.RefName }},
	{"GITHUB_WORKFLOW", func(c *Context) *string { return &c.Workflow }},
	{"GITHUB_JOB", func(c *Context) *string { return &c.Job }},
	{"GITHUB_ACTOR", func(c *Context) *string { return &c.Actor }},
	{"GITHUB_REPOSITORY", func(c *Context) *string { return &c.Repository }},
	{"GITHUB_RUN_ATTEMPT", func(c *Context) *string { return &c.RunAttempt }},
}

// Build resolves the identity through lookup. A nil lookup yields an empty Context.
func Build(lookup func(string) string) Context {
	var c Context
	if lookup == nil {
		return c
	}
	for _, v := range variables {
		*v.field(&c) = lookup(v.name)
	}
	return c
}

// FromEnv builds the identity from the process environment.
func FromEnv() Context {
	return Build(os.Getenv)
}
