package manifest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// Info is the flattened view of a manifest that filter expressions evaluate
// against.
type Info struct {
	Id      string // Normalized manifest id
	Name    string
	Version string
	Type    string // ContentType name (e.g. "mod", "mapPack")
	Game    string // TargetGame name (e.g. "zeroHour")
	Files   int    // Number of declared files
	Size    int64  // Total declared size in bytes
}

// InfoFromManifest flattens a manifest for filtering.
func InfoFromManifest(m *ContentManifest) Info {
	return Info{
		Id:      m.Id.Normalized(),
		Name:    m.Name,
		Version: m.Version,
		Type:    m.ContentType.String(),
		Game:    m.TargetGame.String(),
		Files:   len(m.Files),
		Size:    m.TotalDeclaredSize(),
	}
}

var (
	sizeRe  = regexp.MustCompile(`\b(?i)(size)\s*(<=|>=|<|>|!=|==)\s*([0-9]+(?:\.[0-9]+)?(?:B|KB|MB|GB|TB|KiB|MiB|GiB|TiB))\b`)
	identRe = regexp.MustCompile(`\b(?i)(id|name|version|type|game|files|size)\b`)

	filterFieldMap = map[string]string{
		"id": "Id", "name": "Name", "version": "Version",
		"type": "Type", "game": "Game", "files": "Files", "size": "Size",
	}
	filterUnitFactors = map[string]float64{
		"B":  1,
		"KB": 1e3, "MB": 1e6, "GB": 1e9, "TB": 1e12,
		"KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30, "TiB": 1 << 40,
	}
)

const FilterHelp = "Filter manifests by expression: fields(id/name/version/type/game <string>, " +
	"files <int>, size <bytes[like 1B, 2KB, 3MiB, 4GiB]>); operators(==,!=,<,>,<=,>=); " +
	"helpers(glob([name|id], pattern), regex([name|id], pattern)); logic(and|or|not); " +
	"Example: --filter=\"type == 'mod' and game == 'zeroHour' and size < 500MiB\""

// InfoFilter reports whether a manifest should be kept.
type InfoFilter func(Info) (bool, error)

// CompileFilter turns a DSL expression into a filter function.
func CompileFilter(query string) (InfoFilter, error) {
	q := preprocessFilter(query)

	prog, err := expr.Compile(q,
		expr.Env(Info{}),
		expr.Function("bytes", func(params ...any) (any, error) { return parseFilterBytes(params[0].(string)) }),
		expr.Function("glob", func(params ...any) (any, error) { return filepath.Match(params[1].(string), params[0].(string)) }),
		expr.Function("regex", func(params ...any) (any, error) { return regexp.MatchString(params[1].(string), params[0].(string)) }),
	)
	if err != nil {
		return nil, err
	}

	return func(info Info) (bool, error) {
		out, err := expr.Run(prog, info)
		if err != nil {
			return false, fmt.Errorf("filter eval %q on %s: %w", query, info.Id, err)
		}
		result, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("filter expression resulted in a non-boolean value of type %T. Make sure your filter is a valid comparison (e.g., 'size>100MB')", out)
		}
		return result, nil
	}, nil
}

// preprocessFilter applies the DSL→Go rewrites: size-unit literals become
// bytes() calls and lowercase field names map to Info struct fields.
func preprocessFilter(q string) string {
	q = sizeRe.ReplaceAllString(q, `$1 $2 bytes("$3")`)
	q = identRe.ReplaceAllStringFunc(q, func(s string) string {
		if goF, ok := filterFieldMap[strings.ToLower(s)]; ok {
			return goF
		}
		return s
	})
	return q
}

// parseFilterBytes converts size strings like "3MiB" into byte counts.
func parseFilterBytes(sizeStr string) (int64, error) {
	i := len(sizeStr)
	for i > 0 && (sizeStr[i-1] < '0' || sizeStr[i-1] > '9') {
		i--
	}
	num, unit := sizeStr[:i], strings.TrimSpace(sizeStr[i:])
	if unit == "" {
		unit = "B"
	}
	mul, ok := filterUnitFactors[unit]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q", unit)
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", sizeStr, err)
	}
	return int64(f * mul), nil
}

// SearchQuery filters manifests in SearchManifests. All set fields are
// AND-combined; zero values match everything.
type SearchQuery struct {
	// SearchTerm matches case-insensitively against Name or Id.
	SearchTerm  string
	ContentType ContentType
	TargetGame  TargetGame
	// Filter is an optional DSL expression (see FilterHelp).
	Filter string
}

// Matches applies the term, type, and game filters. The DSL Filter is compiled
// and applied by the caller so compilation errors surface once per search, not
// once per manifest.
func (q SearchQuery) Matches(m *ContentManifest) bool {
	if q.SearchTerm != "" {
		term := strings.ToLower(q.SearchTerm)
		if !strings.Contains(strings.ToLower(m.Name), term) &&
			!strings.Contains(m.Id.Normalized(), term) {
			return false
		}
	}
	if q.ContentType != UnknownContent && m.ContentType != q.ContentType {
		return false
	}
	if q.TargetGame != UnknownGame && m.TargetGame != q.TargetGame {
		return false
	}
	return true
}
