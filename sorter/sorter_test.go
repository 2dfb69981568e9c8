// Package sorter_test contains tests for the sorter package.
package sorter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-and-shine/aggregate/schema"
	"github.com/rise-and-shine/aggregate/sorter"
)

func TestMakeFromStr(t *testing.T) {
	tests := []struct {
		name          string
		sortString    string
		allowedFields []string
		expected      sorter.SortOpts
	}{
		{
			name:          "empty string",
			sortString:    "",
			allowedFields: []string{"name", "created_at"},
			expected:      nil,
		},
		{
			name:          "valid single sort option",
			sortString:    "name:asc",
			allowedFields: []string{"name", "created_at"},
			expected: sorter.Make(
				sorter.Opt{F: "name", D: "asc"},
			),
		},
		{
			name:          "valid multiple sort options",
			sortString:    "name:asc,created_at:desc",
			allowedFields: []string{"name", "created_at"},
			expected: sorter.Make(
				sorter.Opt{F: "name", D: "asc"},
				sorter.Opt{F: "created_at", D: "desc"},
			),
		},
		{
			name:          "field not in allowed list",
			sortString:    "name:asc,age:desc",
			allowedFields: []string{"name", "created_at"},
			expected: sorter.Make(
				sorter.Opt{F: "name", D: "asc"},
			),
		},
		{
			name:          "invalid direction",
			sortString:    "name:ascending,created_at:desc",
			allowedFields: []string{"name", "created_at"},
			expected: sorter.Make(
				sorter.Opt{F: "created_at", D: "desc"},
			),
		},
		{
			name:          "missing colon",
			sortString:    "name_asc,created_at:desc",
			allowedFields: []string{"name", "created_at"},
			expected: sorter.Make(
				sorter.Opt{F: "created_at", D: "desc"},
			),
		},
		{
			name:          "whitespace tolerated",
			sortString:    " name : asc ",
			allowedFields: []string{"name"},
			expected: sorter.Make(
				sorter.Opt{F: "name", D: "asc"},
			),
		},
		{
			name:          "nothing allowed",
			sortString:    "name:asc",
			allowedFields: nil,
			expected:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sorter.MakeFromStr(tt.sortString, tt.allowedFields...))
		})
	}
}

func TestMakeForEntity(t *testing.T) {
	type item struct {
		ID    int64 `rel:"id,pk,autoincrement"`
		Label string
	}
	type order struct {
		schema.BaseEntity `rel:"table:orders"`

		ID        int64 `rel:"id,pk,autoincrement"`
		Ref       string
		Items     []item
		CreatedAt time.Time
	}

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register((*order)(nil)))
	entity, err := reg.EntityOf((*order)(nil))
	require.NoError(t, err)

	// id and value columns are sortable; container columns are not
	got := sorter.MakeForEntity("id:asc,ref:desc,items:asc,missing:desc", entity)
	assert.Equal(t, sorter.Make(
		sorter.Opt{F: "id", D: sorter.Asc},
		sorter.Opt{F: "ref", D: sorter.Desc},
	), got)
}

func TestOptToSQL(t *testing.T) {
	assert.Equal(t, "name asc", sorter.Opt{F: "name", D: sorter.Asc}.ToSQL())
	assert.Equal(t, "created_at desc", sorter.Opt{F: "created_at", D: sorter.Desc}.ToSQL())
}
