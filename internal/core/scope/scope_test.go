package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_InScope(t *testing.T) {
	tests := []struct {
		name      string
		dirs      []string
		sourceDir string
		want      bool
	}{
		{"empty filter allows everything", nil, "/anything/at/all", true},
		{"blank lines only allow everything", []string{"", "  "}, "/data/tv", true},
		{"exact match", []string{"/data/movies"}, "/data/movies", true},
		{"descendant", []string{"/data/movies"}, "/data/movies/x", true},
		{"deep descendant", []string{"/data/movies"}, "/data/movies/x/y/z", true},
		{"sibling", []string{"/data/movies"}, "/data/tv", false},
		{"segment prefix is not ancestry", []string{"/data/movie"}, "/data/movie2", false},
		{"parent is not in scope", []string{"/data/movies"}, "/data", false},
		{"trailing slash in config", []string{"/data/movies/"}, "/data/movies/x", true},
		{"unclean source dir", []string{"/data/movies"}, "/data/tv/../movies/x", true},
		{"second entry matches", []string{"/data/tv", "/data/movies"}, "/data/movies/a", true},
		{"root enables everything absolute", []string{"/"}, "/data/a", true},
		{"relative source never matches absolute dir", []string{"/data"}, "data/a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.dirs)
			assert.Equal(t, tt.want, f.InScope(tt.sourceDir))
		})
	}
}

func TestNew_CleansEntries(t *testing.T) {
	f := New([]string{" /data/movies/ ", "", "/data/tv"})
	assert.True(t, f.InScope("/data/movies/Heat (1995)"))
	assert.True(t, f.InScope("/data/tv"))
	assert.False(t, f.InScope("/data/music"))

	blank := New([]string{"", "  "})
	assert.True(t, blank.InScope("/anywhere"), "only blank entries leaves every directory in scope")
}
