package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).GetOptions()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.False(t, opts.IgnoreArrayOrder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "identical",
			actual:   `{"address":"aa:bb","rssi":-40}`,
			expected: `{"address":"aa:bb","rssi":-40}`,
			match:    true,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"address":"aa:bb","rssi":-40,"seen":3}`,
			expected: `{"address":"aa:bb"}`,
			match:    true,
		},
		{
			name:     "extra keys reported when strict",
			opts:     []JSONOption{WithIgnoreExtraKeys(false)},
			actual:   `{"address":"aa:bb","seen":3}`,
			expected: `{"address":"aa:bb"}`,
		},
		{
			name:     "presence placeholder matches any value",
			actual:   `{"address":"aa:bb","last_seen":"2025-01-01T00:00:00Z"}`,
			expected: `{"address":"aa:bb","last_seen":"<<PRESENCE>>"}`,
			match:    true,
		},
		{
			name:     "presence placeholder requires the key",
			actual:   `{"address":"aa:bb"}`,
			expected: `{"address":"aa:bb","last_seen":"<<PRESENCE>>"}`,
		},
		{
			name:     "value mismatch",
			actual:   `{"rssi":-41}`,
			expected: `{"rssi":-40}`,
		},
		{
			name:     "root arrays",
			actual:   `[{"a":1},{"a":2}]`,
			expected: `[{"a":1},{"a":2}]`,
			match:    true,
		},
		{
			name:     "array order matters by default",
			actual:   `[{"a":2},{"a":1}]`,
			expected: `[{"a":1},{"a":2}]`,
		},
		{
			name:     "array order ignored on request",
			opts:     []JSONOption{WithIgnoreArrayOrder(true)},
			actual:   `[{"a":2},{"a":1}]`,
			expected: `[{"a":1},{"a":2}]`,
			match:    true,
		},
		{
			name:     "ignored fields dropped at any depth",
			opts:     []JSONOption{WithIgnoredFields("attempt"), WithIgnoreExtraKeys(false)},
			actual:   `{"items":[{"address":"aa","attempt":"x"}],"attempt":"y"}`,
			expected: `{"items":[{"address":"aa","attempt":"z"}]}`,
			match:    true,
		},
		{
			name:     "invalid actual",
			actual:   `{`,
			expected: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewJSONAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, diff)
			} else {
				assert.NotEmpty(t, diff)
			}
		})
	}
}

func TestJSONAsserter_AssertReportsFailure(t *testing.T) {
	rec := &recordingT{}
	NewJSONAsserter(rec).AssertValue(map[string]int{"rssi": -41}, `{"rssi":-40}`)

	assert.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "JSON assertion failed")
}

func TestTextAsserter(t *testing.T) {
	t.Run("trailing whitespace and surrounding blank lines ignored by default", func(t *testing.T) {
		rec := &recordingT{}
		NewTextAsserter(rec).Assert("\nADDRESS   RSSI  \naa:bb     -40\n\n", "ADDRESS   RSSI\naa:bb     -40")
		assert.Empty(t, rec.errors)
	})

	t.Run("strict mode sees trailing whitespace", func(t *testing.T) {
		diff := NewTextAsserter(t).
			WithOptions(WithIgnoreTrailingWhitespace(false)).
			Diff("a  \nb", "a\nb")
		assert.NotEmpty(t, diff)
	})

	t.Run("diff is unified", func(t *testing.T) {
		diff := NewTextAsserter(t).Diff("one\ntwo\n", "one\nthree\n")
		assert.Contains(t, diff, "--- expected")
		assert.Contains(t, diff, "+++ actual")
		assert.Contains(t, diff, "-three")
		assert.Contains(t, diff, "+two")
	})

	t.Run("colors", func(t *testing.T) {
		diff := NewTextAsserter(t).WithOptions(WithEnableColors(true)).Diff("a", "b")
		assert.Contains(t, diff, "\x1b[")
	})
}
