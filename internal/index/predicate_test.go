package index

import (
	"testing"

	"github.com/BradenHooton/directory-search/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var predicateStructure = models.IndexStructure{
	{Name: "id", Type: models.FieldTypeString, Key: true, Filterable: true},
	{Name: "organisations", Type: models.FieldTypeStringSet, Filterable: true},
	{Name: "statusId", Type: models.FieldTypeInt64, Filterable: true},
	{Name: "lastLogin", Type: models.FieldTypeInt64, Filterable: true},
}

func TestBuildPredicate_Rendering(t *testing.T) {
	tests := []struct {
		name    string
		filters []Filter
		want    string
	}{
		{
			name:    "string set any of",
			filters: []Filter{{Field: "organisations", Values: []string{"org1", "org2"}}},
			want:    "organisations/any(x: search.in(x, 'org1,org2', ','))",
		},
		{
			name:    "int64 or'ed equality",
			filters: []Filter{{Field: "statusId", Values: []string{"1", "2"}}},
			want:    "(statusId eq 1 or statusId eq 2)",
		},
		{
			name:    "string equality escapes quotes",
			filters: []Filter{{Field: "id", Values: []string{"o'neil"}}},
			want:    "id eq 'o''neil'",
		},
		{
			name:    "last login never",
			filters: []Filter{{Field: "lastLogin", Values: []string{"0"}}},
			want:    "lastLogin eq 0",
		},
		{
			name:    "last login ever",
			filters: []Filter{{Field: "lastLogin", Values: []string{"1"}}},
			want:    "lastLogin ne 0",
		},
		{
			name:    "last login since",
			filters: []Filter{{Field: "lastLogin", Values: []string{"1700000000000"}}},
			want:    "lastLogin ge 1700000000000",
		},
		{
			name: "conditions are and'ed",
			filters: []Filter{
				{Field: "statusId", Values: []string{"1"}},
				{Field: "lastLogin", Values: []string{"0", "1700000000000"}},
			},
			want: "statusId eq 1 and (lastLogin eq 0 or lastLogin ge 1700000000000)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := BuildPredicate("users", predicateStructure, tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestBuildPredicate_InvalidInt64(t *testing.T) {
	_, err := BuildPredicate("users", predicateStructure, []Filter{{Field: "statusId", Values: []string{"active"}}})
	assert.Error(t, err)
}

func TestPredicate_Matches(t *testing.T) {
	p, err := BuildPredicate("users", predicateStructure, []Filter{
		{Field: "organisations", Values: []string{"org2"}},
		{Field: "lastLogin", Values: []string{"1"}},
	})
	require.NoError(t, err)

	assert.True(t, p.Matches(models.Document{"organisations": []string{"org1", "org2"}, "lastLogin": int64(5)}))
	assert.False(t, p.Matches(models.Document{"organisations": []string{"org1"}, "lastLogin": int64(5)}))
	assert.False(t, p.Matches(models.Document{"organisations": []string{"org2"}}))
}

func TestPredicate_EmptyMatchesEverything(t *testing.T) {
	p, err := BuildPredicate("users", predicateStructure, nil)
	require.NoError(t, err)

	assert.Equal(t, "", p.String())
	assert.True(t, p.Matches(models.Document{"id": "u1"}))
}
