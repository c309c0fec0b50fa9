// Package catalog holds the reference table of test types and parameter
// definitions and resolves free-text parameter names against it.
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

//go:embed catalog.yaml
var embedded []byte

const defaultCacheSize = 512

// minFuzzyRunes is the shortest name that may be matched by edit distance.
const minFuzzyRunes = 5

type fileParameter struct {
	Code           string   `yaml:"code"`
	Name           string   `yaml:"name"`
	Unit           string   `yaml:"unit"`
	DataType       string   `yaml:"data_type"`
	Aliases        []string `yaml:"aliases"`
	ReferenceRange any      `yaml:"reference_range"`
}

type fileTestType struct {
	Code        string          `yaml:"code"`
	Name        string          `yaml:"name"`
	Category    string          `yaml:"category"`
	Description string          `yaml:"description"`
	Keywords    []string        `yaml:"keywords"`
	Parameters  []fileParameter `yaml:"parameters"`
}

type catalogFile struct {
	TestTypes []fileTestType `yaml:"test_types"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	testTypes []entity.TestType
	byType    map[string]int
	params    []entity.ParameterDefinition
	byCode    map[string]int
	byAlias   map[string]int
	perType   map[string][]int

	resolved *lru.Cache[string, string]
	logger   *slog.Logger
}

// Default returns the embedded catalog.
func Default(logger *slog.Logger) (*Catalog, error) {
	return Parse(embedded, defaultCacheSize, logger)
}

// Load reads a catalog file, or the embedded one when path is empty.
func Load(path string, cacheSize int, logger *slog.Logger) (*Catalog, error) {
	if path == "" {
		return Parse(embedded, cacheSize, logger)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data, cacheSize, logger)
}

// Parse builds a catalog from YAML. Codes and aliases must be unique.
func Parse(data []byte, cacheSize int, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}

	c := &Catalog{
		byType:   map[string]int{},
		byCode:   map[string]int{},
		byAlias:  map[string]int{},
		perType:  map[string][]int{},
		resolved: cache,
		logger:   logger,
	}
	for _, tt := range f.TestTypes {
		code := strings.ToUpper(strings.TrimSpace(tt.Code))
		if code == "" {
			return nil, fmt.Errorf("catalog: test type without code")
		}
		if _, dup := c.byType[code]; dup {
			return nil, fmt.Errorf("catalog: duplicate test type %s", code)
		}
		category, _ := constants.Canonicalize(tt.Category)
		keywords := make([]string, 0, len(tt.Keywords))
		for _, k := range tt.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		c.byType[code] = len(c.testTypes)
		c.testTypes = append(c.testTypes, entity.TestType{
			Code:        code,
			Name:        tt.Name,
			Category:    string(category),
			Description: tt.Description,
			Keywords:    keywords,
		})

		for _, p := range tt.Parameters {
			def := entity.ParameterDefinition{
				Code:           strings.ToUpper(strings.TrimSpace(p.Code)),
				Name:           p.Name,
				Unit:           p.Unit,
				DataType:       entity.ParseDataType(p.DataType),
				ReferenceRange: entity.ParseRefRange(p.ReferenceRange),
				TestTypeCode:   code,
			}
			if def.Code == "" {
				return nil, fmt.Errorf("catalog: parameter without code in %s", code)
			}
			if _, dup := c.byCode[def.Code]; dup {
				return nil, fmt.Errorf("catalog: duplicate parameter code %s", def.Code)
			}
			idx := len(c.params)
			for _, a := range p.Aliases {
				a = normalizeName(a)
				if a == "" {
					continue
				}
				if prev, dup := c.byAlias[a]; dup {
					return nil, fmt.Errorf("catalog: alias %q used by %s and %s", a, c.params[prev].Code, def.Code)
				}
				c.byAlias[a] = idx
				def.Aliases = append(def.Aliases, a)
			}
			c.byCode[def.Code] = idx
			c.perType[code] = append(c.perType[code], idx)
			c.params = append(c.params, def)
		}
	}
	logger.Debug("catalog.loaded", "test_types", len(c.testTypes), "parameters", len(c.params))
	return c, nil
}

// TestTypes returns all test types in file order.
func (c *Catalog) TestTypes() []entity.TestType {
	out := make([]entity.TestType, len(c.testTypes))
	copy(out, c.testTypes)
	return out
}

func (c *Catalog) TestType(code string) (entity.TestType, bool) {
	i, ok := c.byType[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return entity.TestType{}, false
	}
	return c.testTypes[i], true
}

// Parameters returns the definitions of a test type in file order.
func (c *Catalog) Parameters(testType string) []entity.ParameterDefinition {
	idxs := c.perType[strings.ToUpper(testType)]
	out := make([]entity.ParameterDefinition, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, c.params[i])
	}
	return out
}

// AllParameters returns every definition in file order.
func (c *Catalog) AllParameters() []entity.ParameterDefinition {
	out := make([]entity.ParameterDefinition, len(c.params))
	copy(out, c.params)
	return out
}

// Lookup finds a definition by code, case-insensitively.
func (c *Catalog) Lookup(code string) (entity.ParameterDefinition, bool) {
	i, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return entity.ParameterDefinition{}, false
	}
	return c.params[i], true
}

// Resolve maps a code, alias or display name to a definition. Tiers, in order:
// exact code, exact alias, display-name substring within testType, then an alias or
// name within edit distance 1.
func (c *Catalog) Resolve(name, testType string) (entity.ParameterDefinition, bool) {
	n := normalizeName(name)
	if n == "" {
		return entity.ParameterDefinition{}, false
	}
	testType = strings.ToUpper(strings.TrimSpace(testType))
	key := testType + "\x00" + n
	if code, ok := c.resolved.Get(key); ok {
		if code == "" {
			return entity.ParameterDefinition{}, false
		}
		return c.Lookup(code)
	}

	def, ok := c.resolve(n, testType)
	if ok {
		c.resolved.Add(key, def.Code)
	} else {
		c.resolved.Add(key, "")
	}
	return def, ok
}

func (c *Catalog) resolve(n, testType string) (entity.ParameterDefinition, bool) {
	if i, ok := c.byCode[strings.ToUpper(n)]; ok {
		return c.params[i], true
	}
	if i, ok := c.byCode[SynthesizeCode(n)]; ok {
		return c.params[i], true
	}
	if i, ok := c.byAlias[n]; ok {
		return c.params[i], true
	}

	scope := c.perType[testType]
	if len(scope) == 0 {
		scope = make([]int, len(c.params))
		for i := range c.params {
			scope[i] = i
		}
	}

	if utf8.RuneCountInString(n) >= 3 {
		for _, i := range scope {
			if strings.Contains(strings.ToLower(c.params[i].Name), n) {
				return c.params[i], true
			}
		}
	}

	if utf8.RuneCountInString(n) < minFuzzyRunes {
		return entity.ParameterDefinition{}, false
	}
	best, bestDist := -1, 2
	for _, i := range scope {
		p := c.params[i]
		for _, a := range append([]string{strings.ToLower(p.Name)}, p.Aliases...) {
			if utf8.RuneCountInString(a) < minFuzzyRunes {
				continue
			}
			if d := levenshtein.Distance(n, a, nil); d < bestDist {
				best, bestDist = i, d
			}
		}
	}
	if best >= 0 {
		c.logger.Debug("catalog.resolve.fuzzy", "name", n, "code", c.params[best].Code, "distance", bestDist)
		return c.params[best], true
	}
	return entity.ParameterDefinition{}, false
}

// ResolveOrSynthesize resolves name or derives a new definition for it. The
// synthesized definition is numeric when rawValue coerces to a number.
func (c *Catalog) ResolveOrSynthesize(name, testType, rawValue string) entity.ParameterDefinition {
	if def, ok := c.Resolve(name, testType); ok {
		return def
	}
	return Synthesize(name, testType, rawValue)
}

// Synthesize derives a definition for a parameter missing from the catalog.
func Synthesize(name, testType, rawValue string) entity.ParameterDefinition {
	dt := entity.DataText
	if _, ok := entity.CoerceNumeric(rawValue); ok {
		dt = entity.DataNumeric
	}
	display := strings.TrimSpace(name)
	return entity.ParameterDefinition{
		Code:         SynthesizeCode(display),
		Name:         display,
		DataType:     dt,
		TestTypeCode: strings.ToUpper(testType),
		Synthesized:  true,
	}
}

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	reCodeJunk = regexp.MustCompile(`[^A-Z0-9_%]`)
)

// SynthesizeCode uppercases name and turns whitespace into underscores. Other
// punctuation is dropped so the result is a valid parameter code.
func SynthesizeCode(name string) string {
	code := strings.ToUpper(strings.TrimSpace(name))
	code = reSpaces.ReplaceAllString(code, "_")
	code = reCodeJunk.ReplaceAllString(code, "")
	code = strings.Trim(code, "_")
	if code == "" {
		return "UNNAMED"
	}
	if code[0] < 'A' || code[0] > 'Z' {
		code = "P_" + code
	}
	return code
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ":=.,;")
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}
