package labels

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Category partitions labeled wallets.
type Category string

const (
	Exchange     Category = "exchange"
	Organization Category = "organization"
)

// Groups maps a label (exchange or organization name) to its addresses.
type Groups map[string][]string

// File is the on-disk label format.
type File struct {
	Exchange     Groups `json:"exchange"`
	Organization Groups `json:"organization"`
}

// Index maps addresses to labels. Lookups are case-insensitive.
// An Index is immutable once built and safe for concurrent reads.
type Index struct {
	exchange     map[string]string
	organization map[string]string
}

// NewIndex builds an Index from exchange and organization groups.
// An address listed as both is treated as an exchange.
func NewIndex(exchange, organization Groups) *Index {
	idx := &Index{
		exchange:     make(map[string]string),
		organization: make(map[string]string),
	}
	for _, label := range sortedLabels(exchange) {
		for _, addr := range exchange[label] {
			key := normalize(addr)
			if key == "" {
				continue
			}
			if _, ok := idx.exchange[key]; !ok {
				idx.exchange[key] = label
			}
		}
	}
	for _, label := range sortedLabels(organization) {
		for _, addr := range organization[label] {
			key := normalize(addr)
			if key == "" {
				continue
			}
			if _, ok := idx.exchange[key]; ok {
				continue
			}
			if _, ok := idx.organization[key]; !ok {
				idx.organization[key] = label
			}
		}
	}
	return idx
}

// Load reads a label file and merges it over fallback. A missing file yields
// the fallback alone.
func Load(path string, fallback File) (*Index, error) {
	file := File{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("parse labels %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read labels %s: %w", path, err)
		}
	}

	return NewIndex(
		Merge(file.Exchange, fallback.Exchange),
		Merge(file.Organization, fallback.Organization),
	), nil
}

// Merge combines primary and fallback groups. Addresses are deduplicated
// case-insensitively per label and blanks are dropped; primary order wins.
func Merge(primary, fallback Groups) Groups {
	out := make(Groups, len(primary)+len(fallback))
	seen := make(map[string]map[string]struct{})
	add := func(label, addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		set, ok := seen[label]
		if !ok {
			set = make(map[string]struct{})
			seen[label] = set
		}
		key := strings.ToLower(addr)
		if _, dup := set[key]; dup {
			return
		}
		set[key] = struct{}{}
		out[label] = append(out[label], addr)
	}
	for label, addrs := range primary {
		for _, addr := range addrs {
			add(label, addr)
		}
	}
	for label, addrs := range fallback {
		for _, addr := range addrs {
			add(label, addr)
		}
	}
	return out
}

// Lookup returns the label and category of addr.
func (i *Index) Lookup(addr string) (string, Category, bool) {
	if i == nil {
		return "", "", false
	}
	key := normalize(addr)
	if label, ok := i.exchange[key]; ok {
		return label, Exchange, true
	}
	if label, ok := i.organization[key]; ok {
		return label, Organization, true
	}
	return "", "", false
}

// Label returns the label of addr, or "" when unknown.
func (i *Index) Label(addr string) string {
	label, _, _ := i.Lookup(addr)
	return label
}

func (i *Index) IsExchange(addr string) bool {
	if i == nil {
		return false
	}
	_, ok := i.exchange[normalize(addr)]
	return ok
}

func (i *Index) IsOrganization(addr string) bool {
	if i == nil {
		return false
	}
	_, ok := i.organization[normalize(addr)]
	return ok
}

// IsSpecial reports whether addr is an exchange or organization wallet.
func (i *Index) IsSpecial(addr string) bool {
	return i.IsExchange(addr) || i.IsOrganization(addr)
}

// Size returns the number of exchange and organization addresses.
func (i *Index) Size() (exchange, organization int) {
	if i == nil {
		return 0, 0
	}
	return len(i.exchange), len(i.organization)
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func sortedLabels(groups Groups) []string {
	out := make([]string, 0, len(groups))
	for label := range groups {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
