package mxf

import (
	"fmt"
	"sort"

	"github.com/rendiffdev/containerintegrity/internal/bitreader"
	"github.com/rendiffdev/containerintegrity/internal/diag"
)

// indexSegmentPrefix is the first 14 bytes shared by every index table
// segment key.
var indexSegmentPrefix = [14]byte{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x53, 0x01, 0x01, 0x0D, 0x01, 0x02, 0x01, 0x01, 0x10}

// largeFileThreshold is the rough size above which a missing RIP is worth
// flagging (files this large benefit the most from a tail-of-file index).
const largeFileThreshold = 1 << 20

// Inspect walks and cross-validates an MXF byte range, returning a full
// container report. Depth has no bearing on MXF inspection: every check
// described here runs regardless, since none of it involves essence
// sampling.
func Inspect(r *bitreader.Reader) diag.ContainerReport {
	fileSize := r.Size()
	var list diag.List

	rip, ripOK := ParseRIP(r, fileSize)
	partitions := collectPartitions(r, fileSize, rip, ripOK)
	sort.Slice(partitions, func(i, j int) bool { return partitions[i].FileOffset < partitions[j].FileOffset })

	checkPartitionStructure(partitions, &list)
	checkKAGAlignment(partitions, &list)
	checkOPConformance(partitions, &list)
	checkIndexTables(r, partitions, &list)
	checkRIP(r, rip, ripOK, partitions, fileSize, &list)
	checkTruncation(partitions, fileSize, &list)
	checkKLVIntegrity(r, partitions, &list)
	checkEssenceContainerConsistency(partitions, &list)
	emitCodecIdentification(partitions, &list)

	var header *Partition
	for i := range partitions {
		if partitions[i].Kind == PartitionHeader {
			header = &partitions[i]
			break
		}
	}

	metadata := diag.ContainerMetadata{}
	for _, p := range partitions {
		metadata.MXFPartitionLabels = append(metadata.MXFPartitionLabels, string(p.Kind))
	}
	if header != nil {
		metadata.MXFOperationalPattern = OperationalPatternName(header.OperationalPattern)
	}

	return diag.ContainerReport{
		ContainerType: diag.ContainerMXF,
		Diagnostics:   list.Items(),
		Metadata:      metadata,
	}
}

// collectPartitions discovers partition packs. RIP entries are the
// authoritative source of partition offsets; the header at offset 0 is
// always attempted directly since well-formed files always start with one.
// When no valid RIP is present, the header's footerPartition field is used
// as a best-effort way to also reach the footer.
func collectPartitions(r *bitreader.Reader, fileSize int64, rip RIP, ripOK bool) []Partition {
	seen := make(map[int64]bool)
	var out []Partition

	add := func(offset int64) {
		if offset < 0 || offset >= fileSize || seen[offset] {
			return
		}
		klv, ok := ReadKLV(r, offset, fileSize)
		if !ok || !IsPartitionPackKey(klv.Key) {
			return
		}
		p, ok := ParsePartitionPack(r, klv, offset)
		if !ok {
			return
		}
		seen[offset] = true
		out = append(out, p)
	}

	add(0)

	if ripOK {
		for _, e := range rip.Entries {
			add(int64(e.ByteOffset))
		}
	} else if len(out) > 0 && out[0].FooterPartition > 0 {
		add(int64(out[0].FooterPartition))
	}

	return out
}

func checkPartitionStructure(partitions []Partition, list *diag.List) {
	if len(partitions) == 0 || partitions[0].Kind != PartitionHeader || partitions[0].FileOffset != 0 {
		list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityError,
			"Missing Header Partition",
			"no Header partition pack was found at file offset 0",
			diag.RemediationReencode))
		return
	}
	header := partitions[0]

	hasFooter := false
	footerValues := make(map[uint64]bool)
	for _, p := range partitions {
		footerValues[p.FooterPartition] = true
		if p.Kind == PartitionFooter {
			hasFooter = true
		}
	}
	if !hasFooter {
		if header.Status == StatusClosedComplete {
			list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityError,
				"Missing Footer Partition",
				"the header partition claims the file is closed and complete but no Footer partition was found",
				diag.RemediationRemux))
		} else {
			list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityWarning,
				"Missing Footer Partition",
				"no Footer partition was found",
				diag.RemediationNone))
		}
	}
	if len(footerValues) > 1 {
		list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityWarning,
			"Disagreeing Footer Partition Offsets",
			"partitions declare different footerPartition offsets",
			diag.RemediationNone))
	}

	switch header.Status {
	case StatusOpenIncomplete, StatusClosedIncomplete:
		list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityWarning,
			"Incomplete Header Partition",
			fmt.Sprintf("header partition status is %s", header.Status),
			diag.RemediationNone))
	case StatusOpenComplete:
		list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityInfo,
			"Open Header Partition",
			"header partition status is OpenComplete",
			diag.RemediationNone))
	}

	for i := 1; i < len(partitions); i++ {
		if partitions[i].PreviousPartition != uint64(partitions[i-1].FileOffset) {
			list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityError,
				"Broken Partition Chain",
				fmt.Sprintf("partition at offset %d declares previousPartition %d, expected %d",
					partitions[i].FileOffset, partitions[i].PreviousPartition, partitions[i-1].FileOffset),
				diag.RemediationRemux).AtOffset(partitions[i].FileOffset))
		}
	}
}

func checkKAGAlignment(partitions []Partition, list *diag.List) {
	for _, p := range partitions {
		if p.KAGSize > 1 && p.FileOffset%int64(p.KAGSize) != 0 {
			list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityInfo,
				"KAG Misalignment",
				fmt.Sprintf("partition at offset %d is not aligned to its KAG size %d", p.FileOffset, p.KAGSize),
				diag.RemediationNone).AtOffset(p.FileOffset))
		}
	}
}

func checkOPConformance(partitions []Partition, list *diag.List) {
	if len(partitions) == 0 {
		return
	}
	header := partitions[0]
	opName := OperationalPatternName(header.OperationalPattern)
	if opName == unknownOperationalPatternName {
		list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityWarning,
			"Unknown Operational Pattern",
			"operational pattern UL bytes 12-13 do not match any recognized OP1/OP2/OP3/OPAtom item or package code",
			diag.RemediationNone))
	} else if opName != "OP1a" {
		list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityInfo,
			"Non-OP1a Operational Pattern",
			fmt.Sprintf("operational pattern is %s, not OP1a", opName),
			diag.RemediationNone))
	}

	bodySIDs := make(map[uint32]bool)
	for _, p := range partitions {
		if p.BodySID != 0 {
			bodySIDs[p.BodySID] = true
		}
	}
	if len(bodySIDs) > 1 {
		list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityWarning,
			"Multiple Essence Streams",
			fmt.Sprintf("%d distinct bodySID values were declared across partitions", len(bodySIDs)),
			diag.RemediationNone))
	}

	if len(header.EssenceContainerULs) == 0 {
		list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityWarning,
			"No Declared Essence Containers",
			"the header partition declares zero essence container ULs",
			diag.RemediationNone))
	}
}

func checkIndexTables(r *bitreader.Reader, partitions []Partition, list *diag.List) {
	var totalDeclared uint64
	anyParsed := false
	for _, p := range partitions {
		totalDeclared += p.IndexByteCount
		if p.IndexByteCount == 0 {
			continue
		}
		start := p.KLVValueEnd + int64(p.HeaderByteCount)
		end := start + int64(p.IndexByteCount)
		if end > r.Size() {
			continue
		}
		klvs, _ := WalkKLVs(r, start, end)
		for _, k := range klvs {
			if matchesPrefix(k.Key, indexSegmentPrefix[:]) {
				anyParsed = true
			}
		}
	}
	if totalDeclared > 0 && !anyParsed {
		list.Add(diag.New(diag.CategoryIndexTable, diag.SeverityWarning,
			"Index Declared But Not Found",
			"partitions declare nonzero index byte counts but no index table segments were parsed",
			diag.RemediationNone))
	}
	hasEssence := false
	for _, p := range partitions {
		if p.BodySID != 0 {
			hasEssence = true
		}
	}
	if hasEssence && totalDeclared == 0 {
		list.Add(diag.New(diag.CategoryIndexTable, diag.SeverityInfo,
			"No Index Table",
			"essence is present but no index table is declared; seeking requires a linear scan",
			diag.RemediationNone))
	}
}

func matchesPrefix(k Key, prefix []byte) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, b := range prefix {
		if k[i] != b {
			return false
		}
	}
	return true
}

func checkRIP(r *bitreader.Reader, rip RIP, ripOK bool, partitions []Partition, fileSize int64, list *diag.List) {
	if !ripOK {
		if fileSize > largeFileThreshold {
			list.Add(diag.New(diag.CategoryIndexTable, diag.SeverityInfo,
				"Missing Random Index Pack",
				"no Random Index Pack was found at the file tail",
				diag.RemediationNone))
		}
		return
	}
	partitionOffsets := make(map[int64]bool)
	for _, p := range partitions {
		partitionOffsets[p.FileOffset] = true
	}
	for _, e := range rip.Entries {
		off := int64(e.ByteOffset)
		if off >= fileSize {
			list.Add(diag.New(diag.CategoryIndexTable, diag.SeverityError,
				"RIP Entry Beyond EOF",
				fmt.Sprintf("RIP entry declares byte offset %d but the file is %d bytes", off, fileSize),
				diag.RemediationRemux))
			continue
		}
		if !partitionOffsets[off] {
			list.Add(diag.New(diag.CategoryIndexTable, diag.SeverityWarning,
				"RIP Entry Without Partition",
				fmt.Sprintf("RIP entry points at offset %d, where no partition pack key was found", off),
				diag.RemediationNone).AtOffset(off))
		}
	}
}

func checkTruncation(partitions []Partition, fileSize int64, list *diag.List) {
	for _, p := range partitions {
		if p.Kind == PartitionHeader && p.FooterPartition > 0 && int64(p.FooterPartition) >= fileSize {
			list.Add(diag.New(diag.CategoryTruncatedAtom, diag.SeverityError,
				"Footer Offset Beyond EOF",
				fmt.Sprintf("header declares footerPartition %d but the file is %d bytes", p.FooterPartition, fileSize),
				diag.RemediationReencode))
		}
		end := p.KLVValueEnd + int64(p.HeaderByteCount) + int64(p.IndexByteCount)
		if end > fileSize {
			list.Add(diag.New(diag.CategoryTruncatedAtom, diag.SeverityError,
				"Partition Metadata Exceeds File",
				fmt.Sprintf("partition at offset %d declares a metadata+index end of %d, past the file size %d", p.FileOffset, end, fileSize),
				diag.RemediationReencode).AtOffset(p.FileOffset))
		}
	}
}

func checkKLVIntegrity(r *bitreader.Reader, partitions []Partition, list *diag.List) {
	for _, p := range partitions {
		areaEnd := p.KLVValueEnd + int64(p.HeaderByteCount) + int64(p.IndexByteCount)
		if areaEnd > r.Size() {
			continue
		}
		_, ok := WalkKLVs(r, p.KLVValueEnd, areaEnd)
		if !ok {
			list.Add(diag.New(diag.CategoryPartitionStructure, diag.SeverityWarning,
				"Malformed KLV In Partition",
				fmt.Sprintf("a KLV in the metadata/index area of the partition at offset %d exceeds that area's bounds", p.FileOffset),
				diag.RemediationNone).AtOffset(p.FileOffset))
		}
	}
}

func checkEssenceContainerConsistency(partitions []Partition, list *diag.List) {
	if len(partitions) == 0 {
		return
	}
	header := partitions[0]
	headerSet := make(map[string]bool)
	for _, ul := range header.EssenceContainerULs {
		headerSet[HexKey(ul)] = true
	}
	for _, p := range partitions {
		if p.Kind != PartitionBody || len(p.EssenceContainerULs) == 0 {
			continue
		}
		bodySet := make(map[string]bool)
		for _, ul := range p.EssenceContainerULs {
			bodySet[HexKey(ul)] = true
		}
		if !sameSet(headerSet, bodySet) {
			list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityWarning,
				"Essence Container Mismatch",
				fmt.Sprintf("body partition at offset %d declares %d essence container UL(s), header declares %d, and they differ",
					p.FileOffset, len(bodySet), len(headerSet)),
				diag.RemediationNone).AtOffset(p.FileOffset))
		}
	}
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// essenceCodecNames maps the codec-identifying byte (UL byte 13) of an
// essence container UL matching the informational prefix to a human label.
var essenceCodecNames = map[byte]string{
	0x01: "D-10",
	0x02: "MPEG-2 Video",
	0x03: "MPEG-2 LongGOP",
	0x04: "AES3/PCM",
	0x05: "JPEG 2000",
	0x10: "AVC",
	0x11: "AVC-Intra",
	0x12: "VC-3",
	0x13: "VC-1",
	0x20: "HEVC",
	0x21: "ProRes",
	0x22: "FFV1",
}

// essenceContainerInfoPrefix is the fixed portion of an essence container
// UL this lookup recognizes: bytes 0-4 and 8-11 are checked; the codec is
// read from byte 13; the other bytes are not checked.
var essenceContainerInfoPrefix = [5]byte{0x06, 0x0E, 0x2B, 0x34, 0x04}

func emitCodecIdentification(partitions []Partition, list *diag.List) {
	if len(partitions) == 0 {
		return
	}
	seen := make(map[string]bool)
	var names []string
	for _, ul := range partitions[0].EssenceContainerULs {
		if ul[0] != essenceContainerInfoPrefix[0] || ul[1] != essenceContainerInfoPrefix[1] ||
			ul[2] != essenceContainerInfoPrefix[2] || ul[3] != essenceContainerInfoPrefix[3] ||
			ul[4] != essenceContainerInfoPrefix[4] || ul[8] != 0x0D || ul[9] != 0x01 ||
			ul[10] != 0x03 || ul[11] != 0x01 {
			continue
		}
		name, known := essenceCodecNames[ul[13]]
		if !known {
			name = fmt.Sprintf("Essence 0x%02X", ul[13])
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	list.Add(diag.New(diag.CategoryEssenceDescriptor, diag.SeverityInfo,
		"Declared Essence",
		fmt.Sprintf("declared essence container types: %v", names),
		diag.RemediationNone))
}
