package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	c, err := Parse("sk-proj.merlin.k_2J6Hqk3.abcdefghijklmnopqrstuvwxyz012345")
	require.NoError(t, err)
	assert.Equal(t, "merlin", c.ProjectID)
	assert.Equal(t, "k_2J6Hqk3", c.KeyID)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz012345", c.Secret)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"wrong prefix":        "sk-user.merlin.k_2J6Hqk3.abcdefghijklmnop",
		"three segments":      "sk-proj.merlin.k_2J6Hqk3",
		"empty project":       "sk-proj..k_2J6Hqk3.abcdefghijklmnop",
		"empty secret":        "sk-proj.merlin.k_2J6Hqk3.",
		"short secret":        "sk-proj.merlin.k_2J6Hqk3.abc",
		"bad key prefix":      "sk-proj.merlin.x_2J6Hqk3.abcdefghijklmnop",
		"key id too short":    "sk-proj.merlin.k_abc.abcdefghijklmnop",
		"project too long":    "sk-proj." + strings.Repeat("a", 65) + ".k_2J6Hqk3.abcdefghijklmnop",
		"project bad char":    "sk-proj.mer!lin.k_2J6Hqk3.abcdefghijklmnop",
		"secret bad char":     "sk-proj.merlin.k_2J6Hqk3.abcdefghijklmn@p",
		"empty string":        "",
		"just the prefix":     "sk-proj",
		"secret over 128":     "sk-proj.merlin.k_2J6Hqk3." + strings.Repeat("a", 129),
		"whitespace in token": "sk-proj.merlin.k_2J6Hqk3.abcdefghijklm nop",
	}
	for name, bearer := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(bearer)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		keyID, err := NewKeyID()
		require.NoError(t, err)
		secret, err := NewSecret()
		require.NoError(t, err)

		bearer := Format("merlin", keyID, secret)
		c, err := Parse(bearer)
		require.NoError(t, err)
		assert.Equal(t, Credential{ProjectID: "merlin", KeyID: keyID, Secret: secret}, c)
		assert.Equal(t, bearer, c.String())
	}
}

func TestNewKeyIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewKeyID()
		require.NoError(t, err)
		assert.Len(t, id, len("k_")+keyIDRandomLen)
		assert.True(t, strings.HasPrefix(id, "k_"))
		assert.NotContains(t, id, ".")
		seen[id] = true
	}
	// 62^7 space; 100 draws colliding would indicate a broken source.
	assert.Len(t, seen, 100)
}

func TestNewSecretShape(t *testing.T) {
	s, err := NewSecret()
	require.NoError(t, err)
	assert.Len(t, s, secretLen)
	assert.NotContains(t, s, ".")
	for _, r := range s {
		assert.Contains(t, secretAlphabet, string(r))
	}
}
