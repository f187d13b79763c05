package cache_test

import (
	"testing"

	"stratus-backend/domain/cache"
	appErrors "stratus-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_EncodeDecodeRoundTrip(t *testing.T) {
	// Arrange
	key, err := cache.NewKey(cache.NamespaceSecurityGroups, "acct1", "us-east", "sg-1")
	require.NoError(t, err)

	// Act
	token := key.Encode()
	decoded, err := cache.Decode(token)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "security-groups:acct1:us-east:sg-1", token)
	assert.True(t, key.Equal(decoded))
}

func TestNewKey_RejectsWrongArity(t *testing.T) {
	_, err := cache.NewKey(cache.NamespaceClusters, "acct1")

	require.Error(t, err)
	assert.True(t, appErrors.IsInvalidField(err))
}

func TestNewKey_RejectsDelimiterInField(t *testing.T) {
	_, err := cache.NewKey(cache.NamespaceApplications, "bad:name")

	require.Error(t, err)
	assert.True(t, appErrors.IsInvalidField(err))
}

func TestNewKey_RejectsUnknownNamespace(t *testing.T) {
	_, err := cache.NewKey(cache.Namespace("instances"), "acct1")

	require.Error(t, err)
	assert.True(t, appErrors.IsInvalidField(err))
}

func TestDecode_MalformedTokens(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no fields", "clusters"},
		{"unknown namespace", "instances:acct1:web"},
		{"too few fields", "security-groups:acct1:sg-1"},
		{"too many fields", "clusters:acct1:web:extra"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cache.Decode(tc.token)

			require.Error(t, err)
			assert.True(t, appErrors.IsMalformedKey(err))
		})
	}
}

func TestKey_Field(t *testing.T) {
	key, err := cache.NewKey(cache.NamespaceSecurityGroups, "acct1", "us-east", "sg-1")
	require.NoError(t, err)

	assert.Equal(t, "acct1", key.Field("account"))
	assert.Equal(t, "us-east", key.Field("region"))
	assert.Equal(t, "sg-1", key.Field("name"))
	assert.Equal(t, "", key.Field("missing"))
}

func TestMatchScope(t *testing.T) {
	cases := []struct {
		pattern string
		scope   string
		want    bool
	}{
		{"*", "acct1:us-east:sg-1", true},
		{"acct1:*", "acct1:us-east:sg-1", true},
		{"acct1:us-east:*", "acct1:us-east:sg-1", true},
		{"acct1:us-west:*", "acct1:us-east:sg-1", false},
		{"acct2:*", "acct1:us-east:sg-1", false},
		{"acct1:us-east:sg-?", "acct1:us-east:sg-1", true},
		{"acct1:us-east:sg-?", "acct1:us-east:sg-12", false},
		{"*:sg-1", "acct1:us-east:sg-1", true},
		{"acct1:web", "acct1:web", true},
		{"acct1:web", "acct1:webapp", false},
		{"", "", true},
		{"*", "", true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, cache.MatchScope(tc.pattern, tc.scope),
			"pattern %q against %q", tc.pattern, tc.scope)
	}
}

func TestLiteralPrefix(t *testing.T) {
	assert.Equal(t, "acct1:us-east:", cache.LiteralPrefix("acct1:us-east:*"))
	assert.Equal(t, "", cache.LiteralPrefix("*"))
	assert.Equal(t, "acct1:", cache.LiteralPrefix("acct1:?-east:*"))
	assert.Equal(t, "acct1:web", cache.LiteralPrefix("acct1:web"))
}
