package sqlite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			"plain file",
			"snagtrack_prod.db",
			"snagtrack_prod.db?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)",
		},
		{
			"file with existing options",
			"snagtrack_prod.db?_loc=auto",
			"snagtrack_prod.db?_loc=auto&_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)",
		},
		{
			"in-memory",
			":memory:",
			":memory:?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := connectionDSN(tt.dsn)
			assert.Equal(t, tt.want, got)
			// A second "?" would make everything after it part of the first
			// option's value, silently dropping the pragmas.
			assert.Equal(t, 1, strings.Count(got, "?"))
		})
	}
}
