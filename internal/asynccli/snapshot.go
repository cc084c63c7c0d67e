package asynccli

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// snapshotWorkspace walks workspacePath recursively and returns the set of
// file paths (relative to workspacePath) present, skipping directories named
// in exclude (e.g. "node_modules", ".git").
func snapshotWorkspace(workspacePath string, exclude map[string]bool) (map[string]struct{}, error) {
	snapshot := make(map[string]struct{})
	if workspacePath == "" {
		return snapshot, nil
	}

	err := filepath.WalkDir(workspacePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A workspace that doesn't exist yet is not a snapshot error;
			// the CLI process may be the one creating it.
			if path == workspacePath {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != workspacePath && exclude[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workspacePath, path)
		if err != nil {
			rel = path
		}
		snapshot[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// diffCreatedFiles computes (post-snapshot minus pre-snapshot) relative to
// workspacePath, unioned with any outputFiles the runner reported directly
// (a provider may surface paths outside the walked tree, e.g. a temp dir).
func diffCreatedFiles(workspacePath string, pre map[string]struct{}, outputFiles []string, exclude map[string]bool) []string {
	post, err := snapshotWorkspace(workspacePath, exclude)
	if err != nil {
		post = map[string]struct{}{}
	}

	created := make(map[string]struct{})
	for rel := range post {
		if _, existed := pre[rel]; !existed {
			created[filepath.Join(workspacePath, rel)] = struct{}{}
		}
	}
	for _, f := range outputFiles {
		created[f] = struct{}{}
	}

	return sortedKeys(created)
}

// scriptExtensions are generator files users rarely want delivered in
// preference to the documents they produced.
var scriptExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".sh": true, ".rb": true, ".pl": true,
}

// documentExtensions are the tangible outputs a CLI delegation run is
// usually asked to produce.
var documentExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".xlsx": true, ".csv": true, ".pptx": true,
	".png": true, ".jpg": true, ".jpeg": true, ".txt": true, ".md": true, ".json": true,
}

// applyScriptFilter drops script files from the created set when at least
// one document was also created; the user asked for the output, not the
// generator. If only scripts (or neither category) were created, everything
// is kept.
func applyScriptFilter(files []string) []string {
	hasDocument := false
	for _, f := range files {
		if documentExtensions[strings.ToLower(filepath.Ext(f))] {
			hasDocument = true
			break
		}
	}
	if !hasDocument {
		return files
	}

	retained := make([]string, 0, len(files))
	for _, f := range files {
		if scriptExtensions[strings.ToLower(filepath.Ext(f))] {
			continue
		}
		retained = append(retained, f)
	}
	return retained
}
