package adapter_test

import (
	"strings"
	"testing"

	"github.com/rendiffdev/containerintegrity/internal/adapter"
	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/stretchr/testify/assert"
)

func TestToMediaIssueMapsStructuralCategory(t *testing.T) {
	d := diag.New(diag.CategoryBoxStructure, diag.SeverityError, "Invalid Box Size", "detail", diag.RemediationReencode)
	issue := adapter.ToMediaIssue(d)
	assert.Equal(t, adapter.IssueContainerStructure, issue.Type)
	assert.Equal(t, diag.SeverityError, issue.Severity)
	assert.True(t, strings.Contains(issue.Description, "reencode"))
}

func TestToMediaIssueMapsMetadataCategory(t *testing.T) {
	d := diag.New(diag.CategorySampleTable, diag.SeverityWarning, "title", "detail", diag.RemediationNone)
	issue := adapter.ToMediaIssue(d)
	assert.Equal(t, adapter.IssueContainerMetadata, issue.Type)
}

func TestCorrelateDecodeFailureEscalatesMetadataWarning(t *testing.T) {
	d := diag.New(diag.CategorySampleTable, diag.SeverityWarning, "title", "detail", diag.RemediationNone)
	issues := adapter.ToMediaIssues([]diag.Diagnostic{d})

	escalated := adapter.CorrelateDecodeFailure(issues, adapter.DecodeFailure{Severity: diag.SeverityError})

	assert.Equal(t, diag.SeverityError, escalated[0].Severity)
	assert.True(t, strings.HasSuffix(escalated[0].Description, "This is the likely cause of the decode failure below."))
}

func TestCorrelateDecodeFailureNoOpWithoutDecodeError(t *testing.T) {
	d := diag.New(diag.CategorySampleTable, diag.SeverityWarning, "title", "detail", diag.RemediationNone)
	issues := adapter.ToMediaIssues([]diag.Diagnostic{d})

	unchanged := adapter.CorrelateDecodeFailure(issues, adapter.DecodeFailure{Severity: diag.SeverityWarning})

	assert.Equal(t, diag.SeverityWarning, unchanged[0].Severity)
}
