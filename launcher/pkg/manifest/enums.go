package manifest

import (
	"encoding/json"
	"fmt"
)

// ContentType categorizes what a manifest installs.
type ContentType int

const (
	UnknownContent ContentType = iota
	GameInstallation
	GameClient
	MapPack
	Mod
	PublisherReferral
	ContentReferral
)

var contentTypeNames = map[ContentType]string{
	GameInstallation:  "gameInstallation",
	GameClient:        "gameClient",
	MapPack:           "mapPack",
	Mod:               "mod",
	PublisherReferral: "publisherReferral",
	ContentReferral:   "contentReferral",
}

func (t ContentType) String() string {
	if name, ok := contentTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ContentTypeFromString returns UnknownContent for unrecognized input rather
// than failing so manifests written by newer versions still load.
func ContentTypeFromString(s string) ContentType {
	for t, name := range contentTypeNames {
		if name == s {
			return t
		}
	}
	return UnknownContent
}

func (t ContentType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ContentType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("contentType must be a string: %w", err)
	}
	*t = ContentTypeFromString(s)
	return nil
}

// TargetGame identifies which game variant the content applies to.
type TargetGame int

const (
	UnknownGame TargetGame = iota
	Generals
	ZeroHour
)

var targetGameNames = map[TargetGame]string{
	Generals: "generals",
	ZeroHour: "zeroHour",
}

func (g TargetGame) String() string {
	if name, ok := targetGameNames[g]; ok {
		return name
	}
	return "unknown"
}

func TargetGameFromString(s string) TargetGame {
	for g, name := range targetGameNames {
		if name == s {
			return g
		}
	}
	return UnknownGame
}

func (g TargetGame) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *TargetGame) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("targetGame must be a string: %w", err)
	}
	*g = TargetGameFromString(s)
	return nil
}

// SourceType says where the bytes for a declared file come from.
type SourceType int

const (
	SourceUnknown SourceType = iota
	// SourceContentAddressable files are stored in the CAS keyed by Hash.
	SourceContentAddressable
	// SourceRemoteDownload files are fetched from DownloadUrl by an external
	// download client.
	SourceRemoteDownload
	// SourceGameInstallation files are copied from a detected local install.
	SourceGameInstallation
	// SourceExtractedPackage files come from within an archive.
	SourceExtractedPackage
	// SourcePatchFile files are produced by patching PatchSourceFile.
	SourcePatchFile
)

var sourceTypeNames = map[SourceType]string{
	SourceContentAddressable: "contentAddressable",
	SourceRemoteDownload:     "remoteDownload",
	SourceGameInstallation:   "gameInstallation",
	SourceExtractedPackage:   "extractedPackage",
	SourcePatchFile:          "patchFile",
}

func (s SourceType) String() string {
	if name, ok := sourceTypeNames[s]; ok {
		return name
	}
	return "unknown"
}

func SourceTypeFromString(str string) SourceType {
	for s, name := range sourceTypeNames {
		if name == str {
			return s
		}
	}
	return SourceUnknown
}

func (s SourceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SourceType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("sourceType must be a string: %w", err)
	}
	*s = SourceTypeFromString(str)
	return nil
}

// DependencyKind distinguishes hard requirements from suggestions.
type DependencyKind int

const (
	DependencyRequired DependencyKind = iota
	DependencySuggested
)

func (k DependencyKind) String() string {
	if k == DependencySuggested {
		return "suggested"
	}
	return "required"
}

func (k DependencyKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *DependencyKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("dependency kind must be a string: %w", err)
	}
	if s == "suggested" {
		*k = DependencySuggested
	} else {
		*k = DependencyRequired
	}
	return nil
}
