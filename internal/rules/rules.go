// Package rules loads the per-domain content selector table.
//
// A rule file is YAML: either a top-level list of {domain, selector} entries
// or a mapping whose "rules" key holds that list.
package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hyperifyio/tomd/internal/errs"
)

// DefaultFile is looked up relative to the working directory when no rule
// file is given.
const DefaultFile = "rule.yml"

// Rule binds a domain to a CSS selector for its main content.
type Rule struct {
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
}

// Table is a read-only set of rules, at most one per domain.
type Table struct {
	rules    []Rule
	byDomain map[string]string
}

// NewTable builds a table. Later duplicates of a domain replace earlier ones.
func NewTable(rules []Rule) *Table {
	t := &Table{byDomain: make(map[string]string, len(rules))}
	for _, r := range rules {
		d := normalizeDomain(r.Domain)
		if _, seen := t.byDomain[d]; !seen {
			t.rules = append(t.rules, Rule{Domain: d})
		}
		t.byDomain[d] = r.Selector
	}
	for i := range t.rules {
		t.rules[i].Selector = t.byDomain[t.rules[i].Domain]
	}
	return t
}

// Len reports the number of distinct domains.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Rules returns a copy of the rules in first-seen order.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	return append([]Rule(nil), t.rules...)
}

// Match returns the rule whose domain equals host or is a dot-suffix of it.
// The longest matching domain wins.
func (t *Table) Match(host string) (Rule, bool) {
	if t == nil || len(t.byDomain) == 0 {
		return Rule{}, false
	}
	h := normalizeDomain(host)
	for h != "" {
		if sel, ok := t.byDomain[h]; ok {
			return Rule{Domain: h, Selector: sel}, true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return Rule{}, false
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(d), "."))
	return strings.TrimPrefix(d, "www.")
}

// Parse decodes a rule file body. Any malformed entry fails the whole file.
func Parse(data []byte) ([]Rule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}
	list := root.Content[0]
	if list.Kind == yaml.MappingNode {
		list = mappingValue(list, "rules")
		if list == nil {
			return nil, errors.New(`expected a list of rules or a "rules" key`)
		}
	}
	if list.Kind == yaml.ScalarNode && list.Tag == "!!null" {
		return nil, nil
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of rules", list.Line)
	}
	out := make([]Rule, 0, len(list.Content))
	for i, item := range list.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("entry %d (line %d): expected a mapping with domain and selector", i, item.Line)
		}
		var r Rule
		if err := item.Decode(&r); err != nil {
			return nil, fmt.Errorf("entry %d (line %d): %w", i, item.Line, err)
		}
		r.Domain = strings.TrimSpace(r.Domain)
		r.Selector = strings.TrimSpace(r.Selector)
		if r.Domain == "" {
			return nil, fmt.Errorf("entry %d (line %d): missing domain", i, item.Line)
		}
		if r.Selector == "" {
			return nil, fmt.Errorf("entry %d (line %d) for domain %q: missing selector", i, item.Line, r.Domain)
		}
		out = append(out, r)
	}
	return out, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Loader reads and memoizes rule tables per path. The zero value reads from
// the OS filesystem and is safe for concurrent use.
type Loader struct {
	// ReadFile overrides file access, mainly for tests.
	ReadFile func(path string) ([]byte, error)

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	once  sync.Once
	table *Table
	err   error
}

// Load returns the table at path. explicit marks a user-supplied path: if it
// is missing that is RuleFileNotFound, while a missing default file yields an
// empty table. Each distinct path is read at most once.
func (l *Loader) Load(path string, explicit bool) (*Table, error) {
	path = filepath.Clean(path)
	key := path
	if explicit {
		key = "explicit:" + path
	}
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	l.mu.Unlock()

	e.once.Do(func() { e.table, e.err = l.load(path, explicit) })
	return e.table, e.err
}

func (l *Loader) load(path string, explicit bool) (*Table, error) {
	read := l.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return nil, errs.New(errs.ErrRuleFileNotFound, errs.StageRules, path, err)
			}
			return NewTable(nil), nil
		}
		return nil, errs.New(errs.ErrInvalidRuleFile, errs.StageRules, path, err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidRuleFile, errs.StageRules, path, err)
	}
	return NewTable(parsed), nil
}

// Resolve picks the table for a request: an explicit path replaces the
// default file entirely.
func (l *Loader) Resolve(explicitPath, defaultPath string) (*Table, error) {
	if strings.TrimSpace(explicitPath) != "" {
		return l.Load(explicitPath, true)
	}
	if defaultPath == "" {
		defaultPath = DefaultFile
	}
	return l.Load(defaultPath, false)
}

var process Loader

// Shared returns the process-wide loader.
func Shared() *Loader { return &process }

// Load reads path through the process-wide loader.
func Load(path string, explicit bool) (*Table, error) {
	return process.Load(path, explicit)
}
