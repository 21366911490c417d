package manifest

// Builder assembles a ContentManifest and validates it once at Build. It is a
// plain value: the order of With* calls never matters and no state is deferred,
// so a half-built manifest can never leak into the pool.
type Builder struct {
	manifest ContentManifest
}

// NewBuilder starts a manifest with its mandatory identity fields.
func NewBuilder(id Id, name, version string) *Builder {
	return &Builder{manifest: ContentManifest{
		Id:      id,
		Name:    name,
		Version: version,
	}}
}

func (b *Builder) WithContentType(t ContentType) *Builder {
	b.manifest.ContentType = t
	return b
}

func (b *Builder) WithTargetGame(g TargetGame) *Builder {
	b.manifest.TargetGame = g
	return b
}

func (b *Builder) WithPublisher(p PublisherInfo) *Builder {
	b.manifest.Publisher = &p
	return b
}

func (b *Builder) WithFile(f File) *Builder {
	b.manifest.Files = append(b.manifest.Files, f)
	return b
}

// WithContentFile is shorthand for the common case of a CAS-backed file.
func (b *Builder) WithContentFile(relativePath, hash string, size int64) *Builder {
	return b.WithFile(File{
		RelativePath: relativePath,
		Hash:         hash,
		Size:         size,
		SourceType:   SourceContentAddressable,
	})
}

func (b *Builder) WithDependency(d ContentDependency) *Builder {
	b.manifest.Dependencies = append(b.manifest.Dependencies, d)
	return b
}

func (b *Builder) WithRequiredDirectory(dir string) *Builder {
	b.manifest.RequiredDirectories = append(b.manifest.RequiredDirectories, dir)
	return b
}

// Build validates the accumulated manifest and returns it. The builder can be
// reused after a failed Build once the reported problems are fixed.
func (b *Builder) Build() (*ContentManifest, error) {
	m := b.manifest
	if result := Validate(&m); !result.OK() {
		return nil, result.Err()
	}
	return &m, nil
}
