// Package catalog turns icon names into download targets.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/afero"
)

// Placeholder is substituted with the normalized icon name in a file pattern.
const Placeholder = "{name}"

// ErrInvalidName is returned for names that cannot map to a safe local file.
var ErrInvalidName = errors.New("invalid icon name")

// DefaultNames is the built-in list of skill icons fetched when no other list is given.
var DefaultNames = []string{
	"Attack",
	"Strength",
	"Defence",
	"Ranged",
	"Prayer",
	"Magic",
	"Runecraft",
	"Construction",
	"Hitpoints",
	"Agility",
	"Herblore",
	"Thieving",
	"Crafting",
	"Fletching",
	"Slayer",
	"Hunter",
	"Mining",
	"Smithing",
	"Fishing",
	"Cooking",
	"Firemaking",
	"Woodcutting",
	"Farming",
	"Sailing",
}

// Icon is a single download target.
type Icon struct {
	// Name is the name as given by the user.
	Name string `json:"name"`
	// FileName is the wiki file name, also used as the local file name.
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// Resolver maps names onto URLs under a base URL.
type Resolver struct {
	base    *url.URL
	pattern string
}

// NewResolver validates baseURL and pattern and returns a Resolver.
func NewResolver(baseURL, pattern string) (*Resolver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be an absolute http(s) URL", baseURL)
	}
	if !strings.Contains(pattern, Placeholder) {
		return nil, fmt.Errorf("file pattern %q must contain %s", pattern, Placeholder)
	}
	return &Resolver{base: u, pattern: pattern}, nil
}

// Resolve builds the Icon for a single name. Spaces become underscores and
// apostrophes are dropped, as in the wiki's image file names
// ("Ava's device" -> "Avas_device").
func (r *Resolver) Resolve(name string) (Icon, error) {
	trimmed := strings.TrimSpace(name)
	normalized := strings.Join(strings.Fields(strings.ReplaceAll(trimmed, "'", "")), "_")
	if normalized == "" {
		return Icon{}, fmt.Errorf("%w: empty name %q", ErrInvalidName, name)
	}

	fileName := strings.ReplaceAll(r.pattern, Placeholder, normalized)
	if fileName == "." || strings.ContainsAny(fileName, `/\`) || strings.Contains(fileName, "..") {
		return Icon{}, fmt.Errorf("%w: %q maps to unsafe file name %q", ErrInvalidName, name, fileName)
	}

	return Icon{
		Name:     trimmed,
		FileName: fileName,
		URL:      r.base.JoinPath(url.PathEscape(fileName)).String(),
	}, nil
}

// ResolveAll resolves names in order and stops at the first invalid one.
func (r *Resolver) ResolveAll(names []string) ([]Icon, error) {
	icons := make([]Icon, 0, len(names))
	for _, name := range names {
		icon, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		icons = append(icons, icon)
	}
	return icons, nil
}

// LoadNames reads a list of names, one per line. Blank lines and lines
// starting with '#' are ignored and duplicates are dropped, keeping order.
func LoadNames(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open names file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read names file %s: %w", path, err)
	}
	return Dedupe(lines), nil
}

// Dedupe trims names, drops blanks and comments, and removes repeats.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || strings.HasPrefix(n, "#") {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
