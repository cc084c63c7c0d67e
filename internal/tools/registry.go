package tools

import (
	"fmt"

	"github.com/relaylane/router/internal/routing"
)

// DefaultDefinitions returns the registry's reference tool set. Bash and
// read are the security-reviewed reference pair; write, edit, glob, grep,
// and web_search round out a usable local/workspace toolbox.
func DefaultDefinitions() []routing.ToolDefinition {
	return []routing.ToolDefinition{
		{
			ID:          string(ToolBash),
			Name:        "bash",
			Description: "Executes a shell command and returns its combined stdout/stderr.",
			Category:    string(categoryShell),
			Parameters: map[string]routing.ParamSpec{
				"command": {Type: routing.ParamString, Description: "the command line to run"},
			},
			RequiredParams: []string{"command"},
		},
		{
			ID:          string(ToolRead),
			Name:        "read",
			Description: "Reads a file's contents from the workspace.",
			Category:    string(categoryGeneric),
			Parameters: map[string]routing.ParamSpec{
				"path": {Type: routing.ParamString, Description: "file path to read"},
			},
			RequiredParams: []string{"path"},
		},
		{
			ID:          string(ToolWrite),
			Name:        "write",
			Description: "Writes content to a file, creating or overwriting it.",
			Category:    string(categoryFileTransfer),
			Parameters: map[string]routing.ParamSpec{
				"path":    {Type: routing.ParamString, Description: "file path to write"},
				"content": {Type: routing.ParamString, Description: "file contents"},
			},
			RequiredParams: []string{"path", "content"},
		},
		{
			ID:          string(ToolEdit),
			Name:        "edit",
			Description: "Replaces an exact substring within an existing file.",
			Category:    string(categoryGeneric),
			Parameters: map[string]routing.ParamSpec{
				"path":       {Type: routing.ParamString, Description: "file path to edit"},
				"old_string": {Type: routing.ParamString, Description: "text to find"},
				"new_string": {Type: routing.ParamString, Description: "replacement text"},
			},
			RequiredParams: []string{"path", "old_string", "new_string"},
		},
		{
			ID:          string(ToolGlob),
			Name:        "glob",
			Description: "Finds files matching a glob pattern.",
			Category:    string(categoryGeneric),
			Parameters: map[string]routing.ParamSpec{
				"pattern": {Type: routing.ParamString, Description: "glob pattern"},
			},
			RequiredParams: []string{"pattern"},
		},
		{
			ID:          string(ToolGrep),
			Name:        "grep",
			Description: "Searches file contents using a regular expression.",
			Category:    string(categoryGeneric),
			Parameters: map[string]routing.ParamSpec{
				"pattern":          {Type: routing.ParamString, Description: "regular expression"},
				"glob":             {Type: routing.ParamString, Description: "restrict search to files matching this glob", Optional: true},
				"case_insensitive": {Type: routing.ParamBoolean, Description: "match case-insensitively", Optional: true},
			},
			RequiredParams: []string{"pattern"},
		},
		{
			ID:          string(ToolWebSearch),
			Name:        "web_search",
			Description: "Searches the web and returns ranked sources.",
			Category:    string(categoryGeneric),
			Parameters: map[string]routing.ParamSpec{
				"query":        {Type: routing.ParamString, Description: "search query"},
				"max_results":  {Type: routing.ParamNumber, Description: "maximum sources to return", Optional: true},
				"search_depth": {Type: routing.ParamString, Description: "basic or advanced", Optional: true},
			},
			RequiredParams: []string{"query"},
		},
	}
}

// primaryParams maps a tool ID to the params key that becomes
// ToolRequest.Input.
var primaryParams = map[string]string{
	string(ToolBash):      "command",
	string(ToolRead):      "path",
	string(ToolWrite):     "path",
	string(ToolEdit):      "path",
	string(ToolGlob):      "pattern",
	string(ToolGrep):      "pattern",
	string(ToolWebSearch): "query",
}

// SecurityPolicy carries the operator-tunable risk-pattern and blocked-path
// lists for the bash/read/write tools. A zero-value SecurityPolicy (or a nil
// *SecurityPolicy passed to NewDefaultRegistry) leaves each tool's
// hardcoded reference defaults in place.
type SecurityPolicy struct {
	BashDestructivePatterns []string
	BashNetworkPatterns     []string
	BashSystemPatterns      []string
	ReadBlockedPaths        []string
	WriteBlockedPaths       []string
}

// NewDefaultRegistry builds a Registry and registers the reference tool set
// with both the registry and executor. webSearchAPIKey may be empty, in
// which case web_search validation fails closed rather than calling out.
// A nil policy keeps every tool's built-in reference security defaults.
func NewDefaultRegistry(executor *Executor, webSearchAPIKey string, policy *SecurityPolicy) (*Registry, error) {
	registry := NewRegistry()
	if policy == nil {
		policy = &SecurityPolicy{}
	}

	concrete := map[string]Tool{
		string(ToolBash): NewBashTool(WithRiskPatterns(
			policy.BashDestructivePatterns,
			policy.BashNetworkPatterns,
			policy.BashSystemPatterns,
		)),
		string(ToolRead):      NewReadTool(WithReadBlockedPaths(policy.ReadBlockedPaths)),
		string(ToolWrite):     NewWriteTool(WithWriteBlockedPaths(policy.WriteBlockedPaths)),
		string(ToolEdit):      NewEditTool(),
		string(ToolGlob):      NewGlobTool(),
		string(ToolGrep):      NewGrepTool(),
		string(ToolWebSearch): NewWebSearchTool(WithAPIKey(webSearchAPIKey)),
	}

	for _, def := range DefaultDefinitions() {
		tool, ok := concrete[def.ID]
		if !ok {
			return nil, fmt.Errorf("no concrete tool for definition id %q", def.ID)
		}
		if err := executor.Register(tool); err != nil {
			return nil, err
		}
		if err := registry.Register(def, tool, primaryParams[def.ID]); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
