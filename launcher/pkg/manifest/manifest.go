// Package manifest defines the Go-native content manifest model for the
// launcher: the unit of installable content, its declared files and
// dependencies, validation, and identity. Manifests are persisted as UTF-8
// JSON documents with stable camelCase field names; unknown fields are ignored
// on read so older binaries can load manifests written by newer ones.
package manifest

// ContentManifest is the unit of installable content managed by the pool.
type ContentManifest struct {
	Id                  Id                  `json:"id"`
	Name                string              `json:"name"`
	Version             string              `json:"version"`
	ContentType         ContentType         `json:"contentType"`
	TargetGame          TargetGame          `json:"targetGame"`
	Publisher           *PublisherInfo      `json:"publisher,omitempty"`
	Files               []File              `json:"files,omitempty"`
	Dependencies        []ContentDependency `json:"dependencies,omitempty"`
	RequiredDirectories []string            `json:"requiredDirectories,omitempty"`
}

// IsBaseType reports whether the manifest's contents are supplied externally
// (a detected game installation or client) and may therefore declare no files.
func (m *ContentManifest) IsBaseType() bool {
	return m.ContentType == GameInstallation || m.ContentType == GameClient
}

// TotalDeclaredSize returns the sum of all declared file sizes.
func (m *ContentManifest) TotalDeclaredSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// File is one declared file entry in a manifest. RelativePath is the
// destination relative to a workspace root and must never escape it.
type File struct {
	RelativePath string `json:"relativePath"`
	// Hash and Size identify the content when SourceType is ContentAddressable.
	Hash string `json:"hash,omitempty"`
	Size int64  `json:"size"`

	SourceType SourceType `json:"sourceType"`
	// DownloadUrl is required when SourceType is RemoteDownload.
	DownloadUrl string `json:"downloadUrl,omitempty"`
	// PatchSourceFile is required when SourceType is PatchFile.
	PatchSourceFile string `json:"patchSourceFile,omitempty"`
	// PackagePath optionally locates the file inside an archive when
	// SourceType is ExtractedPackage.
	PackagePath string `json:"packagePath,omitempty"`

	IsExecutable bool            `json:"isExecutable,omitempty"`
	Permissions  FilePermissions `json:"permissions,omitempty"`
}

// FilePermissions carries Unix-style permission bits for a declared file.
// Serialized as a plain number; zero means "use platform defaults".
type FilePermissions uint32

// PublisherInfo is optional attribution and update-source metadata.
type PublisherInfo struct {
	Name      string `json:"name"`
	UpdateUrl string `json:"updateUrl,omitempty"`
}

// ContentDependency names another manifest that should be installed before
// this one is usable.
type ContentDependency struct {
	Id   Id             `json:"id"`
	Kind DependencyKind `json:"kind"`
	// MinVersion is compared using CompareVersions when resolving.
	MinVersion string `json:"minVersion,omitempty"`
}
