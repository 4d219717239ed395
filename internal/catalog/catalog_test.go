package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolver(t *testing.T) {
	_, err := NewResolver("https://oldschool.runescape.wiki/images/", "{name}_icon.png")
	require.NoError(t, err)

	_, err = NewResolver("oldschool.runescape.wiki/images", "{name}.png")
	assert.Error(t, err)

	_, err = NewResolver("file:///tmp/icons", "{name}.png")
	assert.Error(t, err)

	_, err = NewResolver("https://example.org/", "icon.png")
	assert.ErrorContains(t, err, Placeholder)
}

func TestResolver_Resolve(t *testing.T) {
	r, err := NewResolver("https://oldschool.runescape.wiki/images/", "{name}_icon.png")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want Icon
	}{
		{
			name: "simple",
			in:   "Attack",
			want: Icon{Name: "Attack", FileName: "Attack_icon.png", URL: "https://oldschool.runescape.wiki/images/Attack_icon.png"},
		},
		{
			name: "spaces become underscores",
			in:   "  Hit   points ",
			want: Icon{Name: "Hit   points", FileName: "Hit_points_icon.png", URL: "https://oldschool.runescape.wiki/images/Hit_points_icon.png"},
		},
		{
			name: "apostrophes are dropped",
			in:   "Ava's device",
			want: Icon{Name: "Ava's device", FileName: "Avas_device_icon.png", URL: "https://oldschool.runescape.wiki/images/Avas_device_icon.png"},
		},
		{
			name: "reserved characters are escaped",
			in:   "Q?uest",
			want: Icon{Name: "Q?uest", FileName: "Q?uest_icon.png", URL: "https://oldschool.runescape.wiki/images/Q%3Fuest_icon.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestResolver_ResolveBaseWithoutTrailingSlash(t *testing.T) {
	r, err := NewResolver("https://example.org/w/images", "{name}.png")
	require.NoError(t, err)

	icon, err := r.Resolve("Magic")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/w/images/Magic.png", icon.URL)
}

func TestResolver_RejectsUnsafeNames(t *testing.T) {
	r, err := NewResolver("https://example.org/", "{name}.png")
	require.NoError(t, err)

	for _, name := range []string{"", "   ", "'", " ' ' ", "../etc/passwd", `a\b`, "nested/name", ".."} {
		_, err := r.Resolve(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestResolver_RejectsCurrentDirectory(t *testing.T) {
	r, err := NewResolver("https://example.org/", Placeholder)
	require.NoError(t, err)

	_, err = r.Resolve(".")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestResolver_ResolveAll(t *testing.T) {
	r, err := NewResolver("https://example.org/", "{name}.png")
	require.NoError(t, err)

	icons, err := r.ResolveAll([]string{"Mining", "Smithing"})
	require.NoError(t, err)
	require.Len(t, icons, 2)
	assert.Equal(t, "Mining.png", icons[0].FileName)
	assert.Equal(t, "Smithing.png", icons[1].FileName)

	_, err = r.ResolveAll([]string{"Mining", "../x"})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestResolver_DefaultNamesAllResolve(t *testing.T) {
	r, err := NewResolver("https://oldschool.runescape.wiki/images/", "{name}_icon.png")
	require.NoError(t, err)

	icons, err := r.ResolveAll(DefaultNames)
	require.NoError(t, err)
	assert.Len(t, icons, len(DefaultNames))
}

func TestLoadNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "# skills\nAttack\n\n  Strength  \nAttack\n# trailing comment\nHit points\n"
	require.NoError(t, afero.WriteFile(fs, "/names.txt", []byte(content), 0o644))

	names, err := LoadNames(fs, "/names.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"Attack", "Strength", "Hit points"}, names)
}

func TestLoadNames_MissingFile(t *testing.T) {
	_, err := LoadNames(afero.NewMemMapFs(), "/nope.txt")
	assert.ErrorContains(t, err, "open names file")
}

func TestDedupe(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{" a", "b", "a ", "#c", ""}))
}
