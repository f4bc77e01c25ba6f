package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Key
	}{
		{"canonical", "com.example/com.example.MainActivity", Key{"com.example", "com.example.MainActivity"}},
		{"short class", "com.example/.MainActivity", Key{"com.example", "com.example.MainActivity"}},
		{"legacy wrapper", "ComponentInfo{com.example/com.example.Main}", Key{"com.example", "com.example.Main"}},
		{"whitespace", "  com.example/Main \n", Key{"com.example", "Main"}},
		{"class with slash", "com.example/a/b", Key{"com.example", "a/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"com.example",
		"/MainActivity",
		"com.example/",
		"/",
		"com example/Main",
		"ComponentInfo{}",
	}

	for _, in := range inputs {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrMalformed, "Parse(%q)", in)
	}
}

func TestRoundTrip(t *testing.T) {
	keys := []Key{
		MustNew("com.example", "com.example.MainActivity"),
		MustNew("com.example", ".Settings"),
		MustNew("a", "b"),
		MustNew("org.adw.launcher", "org.adw.launcher.Launcher$Inner"),
		MustNew("com.foo", "x/y"),
	}

	for _, k := range keys {
		parsed, err := Parse(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestValidate_Literals(t *testing.T) {
	tests := []struct {
		name  string
		key   Key
		valid bool
	}{
		{"normalized", Key{Package: "com.foo", Class: "com.foo.Main"}, true},
		{"foreign class", Key{Package: "com.foo", Class: "org.bar.Main"}, true},
		{"short class", Key{Package: "com.foo", Class: ".Main"}, false},
		{"padded class", Key{Package: "com.foo", Class: " com.foo.Main "}, false},
		{"padded package", Key{Package: "com.foo ", Class: "Main"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if !tt.valid {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)

			// Every key Validate accepts survives the round trip.
			parsed, err := Parse(tt.key.String())
			require.NoError(t, err)
			assert.Equal(t, tt.key, parsed)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "Main")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = New("com.example", "")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = New("com/example", "Main")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestKey_Comparable(t *testing.T) {
	a := MustNew("com.example", ".Main")
	b, err := Parse("com.example/com.example.Main")
	require.NoError(t, err)

	assert.Equal(t, a, b)

	m := map[Key]int{a: 1}
	assert.Equal(t, 1, m[b])
}

func TestPackagePrefix_DoesNotMatchLongerPackage(t *testing.T) {
	prefix := PackagePrefix("com.foo")
	other := MustNew("com.foobar", "Main").String()

	assert.NotEqual(t, prefix, other[:len(prefix)])
}

func TestKey_TextMarshaling(t *testing.T) {
	k := MustNew("com.example", ".Main")

	data, err := json.Marshal(map[string]Key{"id": k})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"com.example/com.example.Main"}`, string(data))

	var decoded struct {
		ID Key `yaml:"id"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("id: com.example/.Main\n"), &decoded))
	assert.Equal(t, k, decoded.ID)
}
