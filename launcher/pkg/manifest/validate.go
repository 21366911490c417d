package manifest

import (
	"fmt"
	"path"
	"strings"
)

// ValidationResult carries every problem found in a manifest. An empty Errors
// slice means the manifest may be admitted to the pool.
type ValidationResult struct {
	Errors []string
}

func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Err joins all collected messages into a single error, or nil when valid.
// The joined string is what failure results surface to callers and the UI.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("manifest validation failed: %s", strings.Join(r.Errors, "; "))
}

// Validate checks a manifest's internal consistency before it is admitted to
// the pool. It is a pure function: no I/O, no side effects, and it collects
// every error instead of stopping at the first.
func Validate(m *ContentManifest) ValidationResult {
	var result ValidationResult
	add := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	if m == nil {
		add("manifest is nil")
		return result
	}

	if m.Id.IsZero() {
		add("id must not be empty")
	} else if err := checkIdValue(m.Id.String()); err != nil {
		add("invalid id: %v", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		add("name must not be empty")
	}
	if strings.TrimSpace(m.Version) == "" {
		add("version must not be empty")
	}

	// Base manifests (game installations and clients) have their contents
	// supplied externally; everything else must declare something to install.
	if len(m.Files) == 0 && len(m.RequiredDirectories) == 0 && !m.IsBaseType() {
		add("manifest of type %q must declare at least one file or required directory", m.ContentType)
	}

	for i, f := range m.Files {
		if strings.TrimSpace(f.RelativePath) == "" {
			add("files[%d]: relativePath must not be empty", i)
			continue
		}
		if err := CheckRelativePath(f.RelativePath); err != nil {
			add("files[%d]: %v", i, err)
		}
		if f.SourceType == SourceUnknown {
			add("files[%d] (%s): sourceType is unknown", i, f.RelativePath)
		}
		switch f.SourceType {
		case SourceContentAddressable:
			if f.Hash == "" {
				add("files[%d] (%s): contentAddressable files require a hash", i, f.RelativePath)
			}
		case SourceRemoteDownload:
			if f.DownloadUrl == "" {
				add("files[%d] (%s): remoteDownload files require a downloadUrl", i, f.RelativePath)
			}
		case SourcePatchFile:
			if f.PatchSourceFile == "" {
				add("files[%d] (%s): patchFile files require a patchSourceFile", i, f.RelativePath)
			}
		}
	}

	for i, dir := range m.RequiredDirectories {
		if err := CheckRelativePath(dir); err != nil {
			add("requiredDirectories[%d]: %v", i, err)
		}
	}

	return result
}

// CheckRelativePath rejects paths that could escape a workspace or storage
// root: absolute paths, drive letters, and any ".." element. Both slash styles
// are normalized before checking since manifests are shared across platforms.
func CheckRelativePath(p string) error {
	normalized := strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(normalized, "/") {
		return fmt.Errorf("path %q is absolute", p)
	}
	if len(normalized) >= 2 && normalized[1] == ':' {
		return fmt.Errorf("path %q contains a drive letter", p)
	}
	cleaned := path.Clean(normalized)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path %q escapes the root", p)
	}
	for _, element := range strings.Split(normalized, "/") {
		if element == ".." {
			return fmt.Errorf("path %q contains a traversal sequence", p)
		}
	}
	return nil
}
