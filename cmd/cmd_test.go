package cmd

import (
	"bytes"
	"strings"
	"testing"

	"homenotes/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "cli-test-secret-that-is-32-chars-long"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "homenotes version dev")
}

func TestTokenIssuesVerifiableToken(t *testing.T) {
	t.Setenv("HOMENOTES_JWT_SECRET", testSecret)
	out, err := run(t, "token", "--uid", "u42", "--name", "Ann")
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer(testSecret)
	require.NoError(t, err)
	user, err := issuer.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u42", user.UID)
	assert.Equal(t, "Ann", user.Name)
}

func TestTokenNeedsSecret(t *testing.T) {
	t.Setenv("HOMENOTES_JWT_SECRET", "")
	_, err := run(t, "token", "--uid", "u1")
	assert.Error(t, err)
}
