package mask_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/rise-and-shine/aggregate/mask"
)

func pairs(om *orderedmap.OrderedMap[string, any]) []any {
	if om == nil {
		return nil
	}
	out := make([]any, 0, om.Len()*2)
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key, pair.Value)
	}
	return out
}

func TestStructToOrdMap(t *testing.T) {
	type dbConfig struct {
		Host     string `yaml:"host"`
		Password string `yaml:"password" mask:"true"`
	}
	type customer struct {
		Name   string `rel:"full_name"`
		ApiKey string `rel:"api_key" mask:"true"`
		Hidden string `json:"-"`
	}
	token := "tok_123"

	tests := []struct {
		name  string
		input any
		want  []any
	}{
		{
			name:  "plain fields keep declaration order",
			input: struct{ Z, A string }{"z", "a"},
			want:  []any{"Z", "z", "A", "a"},
		},
		{
			name:  "masked string",
			input: dbConfig{Host: "localhost", Password: "secret"},
			want:  []any{"host", "localhost", "password", "***masked-string***"},
		},
		{
			name:  "rel tag names and json skip",
			input: customer{Name: "john", ApiKey: "sk-1", Hidden: "x"},
			want:  []any{"full_name", "john", "api_key", "***masked-string***"},
		},
		{
			name: "nested struct flattened with prefix",
			input: struct {
				Name string
				DB   dbConfig `yaml:"db"`
			}{Name: "svc", DB: dbConfig{Host: "h", Password: "p"}},
			want: []any{"Name", "svc", "db.host", "h", "db.password", "***masked-string***"},
		},
		{
			name: "masked pointer and nil pointer",
			input: struct {
				Token *string `mask:"true"`
				Empty *string `mask:"true"`
			}{Token: &token},
			want: []any{"Token", "***masked-string***", "Empty", nil},
		},
		{
			name: "masked non-string kinds",
			input: struct {
				Age    int            `mask:"true"`
				Active bool           `mask:"true"`
				Tags   []string       `mask:"true"`
				Attrs  map[string]int `mask:"true"`
			}{Age: 30, Active: true, Tags: []string{"a"}, Attrs: map[string]int{"x": 1}},
			want: []any{
				"Age", "***masked-int***",
				"Active", "***masked-bool***",
				"Tags", "***masked-slice***",
				"Attrs", "***masked-map***",
			},
		},
		{
			name: "zero values pass through unmasked",
			input: struct {
				Password string `mask:"true"`
			}{},
			want: []any{"Password", ""},
		},
		{
			name: "unexported fields are skipped",
			input: struct {
				Public string
				secret string
			}{Public: "pub"},
			want: []any{"Public", "pub"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mask.StructToOrdMap(tt.input)
			assert.Equal(t, tt.want, pairs(got))
		})
	}
}

func TestStructToOrdMap_NilInput(t *testing.T) {
	assert.Nil(t, mask.StructToOrdMap(nil))
}

func TestStructToOrdMap_PointerInput(t *testing.T) {
	type request struct {
		Username string
		Password string `mask:"true"`
	}

	got := mask.StructToOrdMap(&request{Username: "john", Password: "secret"})
	assert.Equal(t, []any{"Username", "john", "Password", "***masked-string***"}, pairs(got))
}
