package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepoEntityValidate(t *testing.T) {
	valid := &RepoEntity{ID: 1, User: "golang", Name: "go"}
	assert.NoError(t, valid.Validate())

	missingID := &RepoEntity{User: "golang", Name: "go"}
	err := missingID.Validate()
	assert.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)

	missingName := &RepoEntity{ID: 1, User: "golang"}
	assert.Error(t, missingName.Validate())
}

func TestRepoEntityDiffOnlyReportsChangedFields(t *testing.T) {
	old := &RepoEntity{ID: 1, User: "golang", Name: "go", StarCount: 100, ForkCount: 10, Description: "The Go language"}
	fresh := &RepoEntity{ID: 1, User: "golang", Name: "go", StarCount: 120, ForkCount: 10, Description: "The Go language"}

	changed := fresh.Diff(old)
	assert.Equal(t, map[string]interface{}{"star_count": 120}, changed)
}

func TestRepoEntityDiffUnchanged(t *testing.T) {
	e := &RepoEntity{ID: 1, User: "golang", Name: "go", StarCount: 100}
	assert.Empty(t, e.Diff(e))
}

func TestContributorEntityValidate(t *testing.T) {
	assert.NoError(t, (&ContributorEntity{ID: 2, Login: "gopher"}).Validate())
	assert.Error(t, (&ContributorEntity{ID: 2}).Validate())
	assert.Error(t, (&ContributorEntity{Login: "gopher"}).Validate())
}

func TestEventEntityNeverUpdates(t *testing.T) {
	a := &EventEntity{ID: 9, Type: "WatchEvent", RepoID: 1, ActorLogin: "x"}
	b := &EventEntity{ID: 9, Type: "PushEvent", RepoID: 1, ActorLogin: "y"}
	assert.Empty(t, a.Diff(b))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}
