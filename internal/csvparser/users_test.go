package csvparser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsers(t *testing.T) {
	csv := "Email,FullName\nada@x.com,Ada Lovelace\nBOB@X.com,Bob\n,Missing\n"

	users, err := ParseUsers(strings.NewReader(csv), 0)
	require.NoError(t, err)

	require.Len(t, users, 2)
	assert.Equal(t, "ada@x.com", users[0].Email)
	assert.Equal(t, "Ada Lovelace", users[0].FullName)
	assert.Equal(t, "bob@x.com", users[1].Email)
	assert.NotEmpty(t, users[0].ID)
}

func TestParseUsersHeaderVariants(t *testing.T) {
	users, err := ParseUsers(strings.NewReader("email,Name\na@x.com,Ada\n"), 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ada", users[0].FullName)
}

func TestParseUsersNoEmailColumn(t *testing.T) {
	_, err := ParseUsers(strings.NewReader("Name\nAda\n"), 0)
	assert.ErrorContains(t, err, "Email column")
}

func TestParseUsersEmpty(t *testing.T) {
	_, err := ParseUsers(strings.NewReader("Email,FullName\n"), 0)
	assert.ErrorContains(t, err, "at least one data row")
}

func TestParseUsersMaxRows(t *testing.T) {
	csv := "Email\na@x.com\nb@x.com\nc@x.com\n"

	users, err := ParseUsers(strings.NewReader(csv), 2)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestParseUsersSkipsMalformedRows(t *testing.T) {
	csv := "Email,FullName\na@x.com,Ada\nb@x.com\nc@x.com,Cleo\n"

	users, err := ParseUsers(strings.NewReader(csv), 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "c@x.com", users[1].Email)
}
