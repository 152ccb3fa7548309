// Package adapter translates the core's Diagnostic vocabulary into the
// downstream analyzer's generic MediaIssue shape, and correlates container
// diagnostics with a downstream decode-failure signal.
package adapter

import (
	"fmt"

	"github.com/rendiffdev/containerintegrity/internal/diag"
)

// IssueType is the generic downstream issue-type enum.
type IssueType string

const (
	IssueDecodeError         IssueType = "decodeError"
	IssueTimestampGap        IssueType = "timestampGap"
	IssueTruncation          IssueType = "truncation"
	IssueMissingTrack        IssueType = "missingTrack"
	IssueCorruptHeader       IssueType = "corruptHeader"
	IssueUnsupportedCodec    IssueType = "unsupportedCodec"
	IssueContainerStructure  IssueType = "containerStructure"
	IssueContainerMetadata   IssueType = "containerMetadata"
	IssueOther               IssueType = "other"
)

// categoryIssueType maps a diagnostic category to the downstream issue
// type: structural categories become containerStructure, metadata-ish
// categories become containerMetadata, everything else is other.
var categoryIssueType = map[diag.Category]IssueType{
	diag.CategoryBoxStructure:       IssueContainerStructure,
	diag.CategoryTruncatedAtom:      IssueContainerStructure,
	diag.CategoryMissingAtom:        IssueContainerStructure,
	diag.CategoryPartitionStructure: IssueContainerStructure,

	diag.CategorySampleTable:       IssueContainerMetadata,
	diag.CategorySyncSampleTable:   IssueContainerMetadata,
	diag.CategoryCompositionTime:   IssueContainerMetadata,
	diag.CategoryEditList:          IssueContainerMetadata,
	diag.CategoryIndexTable:        IssueContainerMetadata,
	diag.CategoryEssenceDescriptor: IssueContainerMetadata,
	diag.CategoryNALStructure:      IssueContainerMetadata,

	diag.CategoryContinuityCounter: IssueOther,
	diag.CategoryProgramTable:      IssueOther,
	diag.CategoryOther:             IssueOther,
}

// MediaIssue is the downstream analyzer's generic issue record.
type MediaIssue struct {
	Type        IssueType
	Severity    diag.Severity
	Timestamp   *float64
	FrameNumber *int
	Description string
}

const decodeCorrelationSuffix = "This is the likely cause of the decode failure below."

// ToMediaIssue translates one Diagnostic into a MediaIssue, appending its
// remediation and player-note (if any) as bracketed suffixes.
func ToMediaIssue(d diag.Diagnostic) MediaIssue {
	issueType, ok := categoryIssueType[d.Category]
	if !ok {
		issueType = IssueOther
	}

	desc := fmt.Sprintf("%s: %s", d.Title, d.Detail)
	if d.Remediation != diag.RemediationNone {
		desc += fmt.Sprintf(" [remediation: %s]", d.Remediation)
	}
	if d.PlayerNote != "" {
		desc += fmt.Sprintf(" [player note: %s]", d.PlayerNote)
	}

	return MediaIssue{
		Type:        issueType,
		Severity:    d.Severity,
		Description: desc,
	}
}

// ToMediaIssues translates an ordered diagnostic list.
func ToMediaIssues(diagnostics []diag.Diagnostic) []MediaIssue {
	out := make([]MediaIssue, 0, len(diagnostics))
	for _, d := range diagnostics {
		out = append(out, ToMediaIssue(d))
	}
	return out
}

// DecodeFailure is the downstream signal correlated against container
// diagnostics: a decode error was observed on the same file.
type DecodeFailure struct {
	Severity diag.Severity
}

// CorrelateDecodeFailure runs the adapter's sole post-hoc transformation:
// when a downstream decode failure occurred, every containerMetadata-typed
// warning issue is escalated to an error and its description is suffixed
// with the likely-cause note. Diagnostics themselves are never mutated;
// this operates purely on the already-translated MediaIssue list.
func CorrelateDecodeFailure(issues []MediaIssue, failure DecodeFailure) []MediaIssue {
	if failure.Severity != diag.SeverityError {
		return issues
	}
	out := make([]MediaIssue, len(issues))
	for i, issue := range issues {
		if issue.Type == IssueContainerMetadata && issue.Severity == diag.SeverityWarning {
			issue.Severity = diag.SeverityError
			issue.Description = issue.Description + " " + decodeCorrelationSuffix
		}
		out[i] = issue
	}
	return out
}
