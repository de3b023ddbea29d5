package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"simple", "foo", "foo"},
		{"lower case", "Shaders/Basic.GLSL", "shaders/basic.glsl"},
		{"backslashes", `shaders\basic.glsl`, "shaders/basic.glsl"},
		{"mixed separators", `Textures\Terrain/grass.png`, "textures/terrain/grass.png"},
		{"leading slash", "/etc/config.ini", "etc/config.ini"},
		{"trailing slash", "etc/", "etc"},
		{"double slashes", "a//b///c", "a/b/c"},
		{"dot segments", "./a/./b", "a/b"},
		{"only slashes", "///", ""},
		{"dotdot preserved", "a/../b", "a/../b"},
		{"unicode fold", "Ä/Ö.txt", "ä/ö.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "normalize must be idempotent")
		})
	}
}

func TestNormalize_VariantsAgree(t *testing.T) {
	want := Normalize("shaders/basic.glsl")
	for _, v := range []string{
		"SHADERS/BASIC.GLSL",
		`shaders\basic.glsl`,
		`Shaders\\Basic.glsl`,
		"/shaders//basic.glsl",
	} {
		assert.Equal(t, want, Normalize(v), v)
	}
}

func TestBase(t *testing.T) {
	assert.Equal(t, ".", Base(""))
	assert.Equal(t, "basic.glsl", Base("shaders/basic.glsl"))
	assert.Equal(t, "file", Base("file"))
	assert.Equal(t, "dir", Base("a/dir/"))
}
