// containerintegrity-cli inspects one or more local container files and
// prints each file's diagnostic report, without involving the HTTP host at all.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/inspector"
)

var (
	version = "1.0.0"

	outputJSON bool
	depthFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "containerintegrity-cli",
		Short:   "Container-integrity inspection tool",
		Version: version,
		Long: `containerintegrity-cli walks the structural scaffolding of ISOBMFF
(MP4/MOV/M4V/3GP) and MXF (OP1a/OPAtom) files and reports every detectable
box/KLV corruption, index inconsistency, or spec violation it finds, without
decoding any compressed essence.`,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <file> [files...]",
		Short: "Inspect one or more container files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInspect,
	}
	inspectCmd.Flags().StringVarP(&depthFlag, "depth", "d", "standard", "inspection depth: quick, standard, thorough")
	inspectCmd.Flags().BoolVar(&outputJSON, "json", false, "emit machine-readable JSON instead of a table")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("containerintegrity-cli version %s\n", version)
		},
	}

	rootCmd.AddCommand(inspectCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseDepth(s string) (diag.Depth, error) {
	switch strings.ToLower(s) {
	case "quick":
		return diag.DepthQuick, nil
	case "standard", "":
		return diag.DepthStandard, nil
	case "thorough":
		return diag.DepthThorough, nil
	default:
		return "", fmt.Errorf("unknown depth %q: must be quick, standard, or thorough", s)
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	depth, err := parseDepth(depthFlag)
	if err != nil {
		return err
	}

	registry := inspector.NewDefaultRegistry()
	exitCode := 0

	for i, path := range args {
		if i > 0 && !outputJSON {
			fmt.Println(strings.Repeat("-", 72))
		}

		report, matched, err := registry.Inspect(path, depth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		if !matched {
			fmt.Fprintf(os.Stderr, "%s: no inspector recognizes this file\n", path)
			exitCode = 1
			continue
		}
		if report.HasErrors() {
			exitCode = 1
		}

		if outputJSON {
			printJSON(path, report)
		} else {
			printTable(path, report)
		}
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

type jsonResult struct {
	File   string              `json:"file"`
	Report diag.ContainerReport `json:"report"`
}

func printJSON(path string, report diag.ContainerReport) {
	out, err := json.MarshalIndent(jsonResult{File: path, Report: report}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to marshal report: %v\n", path, err)
		return
	}
	fmt.Println(string(out))
}

func printTable(path string, report diag.ContainerReport) {
	fmt.Printf("File:      %s\n", filepath.Base(path))
	fmt.Printf("Container: %s\n", report.ContainerType)

	errors, warnings, infos := countBySeverity(report.Diagnostics)
	fmt.Printf("Summary:   %d error(s), %d warning(s), %d info\n", errors, warnings, infos)
	fmt.Printf("Remux-fixable: %v\n", report.IsRemuxFixable())
	fmt.Println()

	if len(report.Diagnostics) == 0 {
		fmt.Println("  No diagnostics.")
		return
	}

	sorted := sortedBySeverityThenOffset(report.Diagnostics)
	for _, d := range sorted {
		offset := "-"
		if d.Offset != nil {
			offset = fmt.Sprintf("%d", *d.Offset)
		}
		fmt.Printf("  [%-7s] %-22s %-18s offset=%-10s %s\n",
			strings.ToUpper(string(d.Severity)), d.Category, d.Title, offset, d.Remediation)
		fmt.Printf("            %s\n", d.Detail)
		if d.PlayerNote != "" {
			fmt.Printf("            player note: %s\n", d.PlayerNote)
		}
	}
}

func countBySeverity(ds []diag.Diagnostic) (errors, warnings, infos int) {
	for _, d := range ds {
		switch d.Severity {
		case diag.SeverityError:
			errors++
		case diag.SeverityWarning:
			warnings++
		case diag.SeverityInfo:
			infos++
		}
	}
	return
}

// severityRank orders diagnostics error-first for display, matching the
// host-facing ordering guarantee described for the adapter (errors surface
// before warnings and info).
func severityRank(s diag.Severity) int {
	switch s {
	case diag.SeverityError:
		return 0
	case diag.SeverityWarning:
		return 1
	default:
		return 2
	}
}

func sortedBySeverityThenOffset(ds []diag.Diagnostic) []diag.Diagnostic {
	out := make([]diag.Diagnostic, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if ri != rj {
			return ri < rj
		}
		oi, oj := out[i].Offset, out[j].Offset
		if oi == nil && oj == nil {
			return false
		}
		if oi == nil {
			return false
		}
		if oj == nil {
			return true
		}
		return *oi < *oj
	})
	return out
}
