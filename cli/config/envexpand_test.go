package config

import "testing"

func TestExpand(t *testing.T) {
	env := map[string]string{
		"TOKEN": "123:abc",
		"EMPTY": "",
		"USERS": "1,2",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "token: ${TOKEN}", "token: 123:abc"},
		{"unset", "token: ${MISSING}", "token: "},
		{"default when unset", "root: ${MISSING:-./staging}", "root: ./staging"},
		{"default when empty", "root: ${EMPTY:-./staging}", "root: ./staging"},
		{"default ignored when set", "token: ${TOKEN:-nope}", "token: 123:abc"},
		{"multiple", "${TOKEN}|${USERS}", "123:abc|1,2"},
		{"no vars", "plain text", "plain text"},
		{"bare dollar untouched", "cost: $5", "cost: $5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expand(tt.input, lookup); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnv_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("BUNDLEBOT_TEST_VAR", "hello")

	if got := ExpandEnv("value: ${BUNDLEBOT_TEST_VAR}"); got != "value: hello" {
		t.Errorf("got %q", got)
	}
}
