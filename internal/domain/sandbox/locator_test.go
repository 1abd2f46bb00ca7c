package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocator(t *testing.T) {
	l := Locator{
		BaseURL: "https://cdn.example.com/plugins/plugin-a",
		Paths: map[string]string{
			"lib":        "vendor/lib",
			"lib/jquery": "https://code.example.com/jquery-3.7",
		},
	}

	tests := []struct {
		name string
		want string
	}{
		{"main", "https://cdn.example.com/plugins/plugin-a/main.js"},
		{"views/list", "https://cdn.example.com/plugins/plugin-a/views/list.js"},
		{"lib/util", "https://cdn.example.com/plugins/plugin-a/vendor/lib/util.js"},
		{"lib/jquery", "https://code.example.com/jquery-3.7.js"},
		{"library", "https://cdn.example.com/plugins/plugin-a/library.js"},
		{"https://other.example.com/x.js", "https://other.example.com/x.js"},
		{"/abs/x", "/abs/x"},
		{"plain.js", "plain.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Locate(tt.name))
		})
	}
}

func TestLocatorFilesystemBase(t *testing.T) {
	l := Locator{BaseURL: "plugins/plugin-a"}
	assert.Equal(t, "plugins/plugin-a/main.js", l.Locate("main"))
	assert.Equal(t, "plugins/plugin-a/util.js", l.Locate("./util"))
	assert.Equal(t, "main.js", Locator{}.Locate("main"))
}
