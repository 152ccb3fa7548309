package isobmff_test

import "encoding/binary"

// box prepends a 32-bit size and 4-byte type to payload, mirroring the
// on-disk box header this package parses.
func box(typ string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], typ)
	copy(out[8:], payload)
	return out
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// fullBox builds a version-0, flags-0 full-box prologue followed by body.
func fullBox(typ string, body []byte) []byte {
	return box(typ, concat([]byte{0, 0, 0, 0}, body))
}

func mdhdBox(timescale, duration uint32) []byte {
	body := concat(
		make([]byte, 8), // creation + modification time
		u32(timescale),
		u32(duration),
		[]byte{0x55, 0xC4, 0, 0}, // language + pre_defined
	)
	return fullBox("mdhd", body)
}

func hdlrBox(handlerType string) []byte {
	body := concat(
		make([]byte, 4), // pre_defined
		[]byte(handlerType),
		make([]byte, 12), // reserved
		[]byte{0},        // name
	)
	return fullBox("hdlr", body)
}

func sttsBox(entries [][2]uint32) []byte {
	body := u32(uint32(len(entries)))
	for _, e := range entries {
		body = concat(body, u32(e[0]), u32(e[1]))
	}
	return fullBox("stts", body)
}

func stssBox(sampleNumbers []uint32) []byte {
	body := u32(uint32(len(sampleNumbers)))
	for _, n := range sampleNumbers {
		body = concat(body, u32(n))
	}
	return fullBox("stss", body)
}

func stscBox(entries [][3]uint32) []byte {
	body := u32(uint32(len(entries)))
	for _, e := range entries {
		body = concat(body, u32(e[0]), u32(e[1]), u32(e[2]))
	}
	return fullBox("stsc", body)
}

func stszUniform(size, count uint32) []byte {
	body := concat(u32(size), u32(count))
	return fullBox("stsz", body)
}

func stszPerSample(sizes []uint32) []byte {
	body := concat(u32(0), u32(uint32(len(sizes))))
	for _, s := range sizes {
		body = concat(body, u32(s))
	}
	return fullBox("stsz", body)
}

func stcoBox(offsets []uint32) []byte {
	body := u32(uint32(len(offsets)))
	for _, o := range offsets {
		body = concat(body, u32(o))
	}
	return fullBox("stco", body)
}

func elstBoxV0(entries [][4]int32) []byte {
	body := u32(uint32(len(entries)))
	for _, e := range entries {
		body = concat(body,
			u32(uint32(e[0])), u32(uint32(e[1])),
			u16(uint16(e[2])), u16(uint16(e[3])))
	}
	return fullBox("elst", body)
}

func avcCBox(sps, pps []byte) []byte {
	body := []byte{1, 0x64, 0, 0x1F, 0xFF}
	numSPS := byte(0)
	if len(sps) > 0 {
		numSPS = 1
	}
	body = append(body, 0xE0|numSPS)
	if len(sps) > 0 {
		body = concat(body, u16(uint16(len(sps))), sps)
	}
	numPPS := byte(0)
	if len(pps) > 0 {
		numPPS = 1
	}
	body = append(body, numPPS)
	if len(pps) > 0 {
		body = concat(body, u16(uint16(len(pps))), pps)
	}
	return box("avcC", body)
}

// videoSampleEntry wraps children (e.g. avcC) in the 78-byte fixed
// VisualSampleEntry preamble this package's codec-config lookup skips.
func videoSampleEntry(children ...[]byte) []byte {
	preamble := make([]byte, 70)
	body := concat(preamble, concat(children...))
	return box("avc1", body)
}

func stsdBox(sampleEntry []byte) []byte {
	body := concat(u32(1), sampleEntry)
	return fullBox("stsd", body)
}

// nalSample builds one ISOBMFF-style length-prefixed NAL sample with a
// 4-byte length size.
func nalSample(nalType byte, payload []byte) []byte {
	nal := append([]byte{nalType}, payload...)
	return concat(u32(uint32(len(nal))), nal)
}

type trackSpec struct {
	handlerType string
	timescale   uint32
	stts        [][2]uint32
	stss        []uint32
	stsc        [][3]uint32
	stsz        []byte
	stco        []uint32
	stsd        []byte
	elst        []byte
}

func trakBox(spec trackSpec) []byte {
	var stblChildren []byte
	if spec.stsd != nil {
		stblChildren = concat(stblChildren, spec.stsd)
	}
	stblChildren = concat(stblChildren, sttsBox(spec.stts))
	if spec.stss != nil {
		stblChildren = concat(stblChildren, stssBox(spec.stss))
	}
	if spec.stsc != nil {
		stblChildren = concat(stblChildren, stscBox(spec.stsc))
	}
	if spec.stsz != nil {
		stblChildren = concat(stblChildren, spec.stsz)
	}
	if spec.stco != nil {
		stblChildren = concat(stblChildren, stcoBox(spec.stco))
	}

	minf := box("minf", box("stbl", stblChildren))
	mdia := box("mdia", concat(mdhdBox(spec.timescale, 0), hdlrBox(spec.handlerType), minf))

	trakChildren := mdia
	if spec.elst != nil {
		trakChildren = concat(trakChildren, box("edts", spec.elst))
	}
	return box("trak", trakChildren)
}

func moovBox(traks ...[]byte) []byte {
	return box("moov", concat(traks...))
}

func ftypBox() []byte {
	return box("ftyp", concat([]byte("isom"), u32(0), []byte("isomiso2mp41")))
}
