package diag_test

import (
	"testing"

	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/stretchr/testify/assert"
)

func TestListAssignsStableSequentialIDs(t *testing.T) {
	var l diag.List
	l.Add(diag.New(diag.CategoryOther, diag.SeverityInfo, "a", "", diag.RemediationNone))
	l.Add(diag.New(diag.CategoryOther, diag.SeverityWarning, "b", "", diag.RemediationNone))

	items := l.Items()
	assert.Equal(t, 0, items[0].ID)
	assert.Equal(t, 1, items[1].ID)
}

func TestMergePreservesOrderAndReassignsIDs(t *testing.T) {
	var l diag.List
	l.Add(diag.New(diag.CategoryOther, diag.SeverityInfo, "a", "", diag.RemediationNone))
	l.Merge([]diag.Diagnostic{
		diag.New(diag.CategoryOther, diag.SeverityInfo, "b", "", diag.RemediationNone),
		diag.New(diag.CategoryOther, diag.SeverityInfo, "c", "", diag.RemediationNone),
	})
	items := l.Items()
	assert.Equal(t, []string{"a", "b", "c"}, titles(items))
	assert.Equal(t, 0, items[0].ID)
	assert.Equal(t, 2, items[2].ID)
}

func titles(items []diag.Diagnostic) []string {
	out := make([]string, len(items))
	for i, d := range items {
		out[i] = d.Title
	}
	return out
}

func TestAtOffsetDoesNotMutateOriginal(t *testing.T) {
	base := diag.New(diag.CategoryOther, diag.SeverityInfo, "a", "", diag.RemediationNone)
	withOffset := base.AtOffset(42)
	assert.Nil(t, base.Offset)
	assert.NotNil(t, withOffset.Offset)
	assert.Equal(t, int64(42), *withOffset.Offset)
}

func TestReportPredicates(t *testing.T) {
	r := diag.ContainerReport{Diagnostics: []diag.Diagnostic{
		diag.New(diag.CategoryOther, diag.SeverityWarning, "w", "", diag.RemediationRemux),
	}}
	assert.False(t, r.HasErrors())
	assert.True(t, r.HasWarnings())
	assert.True(t, r.IsRemuxFixable())

	r.Diagnostics = append(r.Diagnostics, diag.New(diag.CategoryOther, diag.SeverityError, "e", "", diag.RemediationReencode))
	assert.True(t, r.HasErrors())
	assert.False(t, r.IsRemuxFixable())
}
