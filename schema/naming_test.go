// Package schema_test contains tests for the schema package.
package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rise-and-shine/aggregate/schema"
)

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single word", input: "Order", expected: "order"},
		{name: "two words", input: "OrderItem", expected: "order_item"},
		{name: "trailing abbreviation", input: "OrderID", expected: "order_id"},
		{name: "leading abbreviation", input: "HTTPStatus", expected: "http_status"},
		{name: "inner abbreviation", input: "ParentIDRef", expected: "parent_id_ref"},
		{name: "already lower", input: "order", expected: "order"},
		{name: "single letter", input: "X", expected: "x"},
		{name: "empty", input: "", expected: ""},
		{name: "digits", input: "AddressV2", expected: "address_v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, schema.SnakeCase(tt.input))
		})
	}
}
