package binlogstream

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Position identifies a point in one binlog file of a log family: the
// file's wire name (e.g. "mysql-bin.000123") and the byte offset of an
// event within it.
type Position struct {
	File   string
	Offset uint32
}

// fileNamePattern matches a binlog file name's "basename.NNN...N" shape.
// The numeric suffix is captured separately so its width (including any
// leading zeros) can be recovered byte-for-byte by Decode.
var fileNamePattern = regexp.MustCompile(`^(.+)\.(\d{1,17})$`)

// Ordering is the result of comparing two Positions.
type Ordering int

const (
	Less Ordering = iota
	Equal
	Greater
	// Incomparable is returned when two Positions belong to different log
	// families (their basenames differ) and so have no defined order.
	Incomparable
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "Less"
	case Equal:
		return "Equal"
	case Greater:
		return "Greater"
	default:
		return "Incomparable"
	}
}

// splitFileName splits a binlog file name into its basename and numeric
// suffix (kept as a string, to preserve leading zeros and width), or
// reports ok=false if the name doesn't match "basename.NNN...N".
func splitFileName(file string) (basename, suffix string, ok bool) {
	m := fileNamePattern.FindStringSubmatch(file)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Compare orders two Positions. Positions in different log families (their
// file basenames differ) are Incomparable; otherwise the numeric binlog
// suffix is compared, with ties broken on Offset.
func Compare(a, b Position) Ordering {
	aBase, aSuffix, aOK := splitFileName(a.File)
	bBase, bSuffix, bOK := splitFileName(b.File)
	if !aOK || !bOK || aBase != bBase {
		return Incomparable
	}
	// Suffixes up to 17 decimal digits always fit in a uint64, so numeric
	// comparison after ParseUint is safe; a parse failure here means the
	// regex already rejected anything non-decimal.
	an, _ := strconv.ParseUint(aSuffix, 10, 64)
	bn, _ := strconv.ParseUint(bSuffix, 10, 64)
	switch {
	case an < bn:
		return Less
	case an > bn:
		return Greater
	case a.Offset < b.Offset:
		return Less
	case a.Offset > b.Offset:
		return Greater
	default:
		return Equal
	}
}

// ReplicationOffset is the opaque, totally-ordered 128-bit checkpoint a
// caller persists between restarts, plus the log basename needed to
// reconstruct the wire file name. The 128 bits split into two 64-bit
// words:
//
//	High: bits 123-127 (suffix width, 1..17) | bits 64-122 (numeric suffix)
//	Low:  bits 0-63 (byte offset)
//
// Width occupies the top 5 bits of High (width << 59), the numeric suffix
// the bottom 59 bits, so that High == Low == 0 never occurs for a validly
// encoded offset (width is always >= 1) and two offsets from the same log
// family compare correctly as plain (High, Low) tuples.
type ReplicationOffset struct {
	Basename string
	High     uint64
	Low      uint64
}

const suffixWidthBits = 59
const suffixMask = (uint64(1) << suffixWidthBits) - 1

// Encode packs a Position into a ReplicationOffset. It fails with
// *InvalidBinlogNameError if File has no "." separator, and with
// *InvalidBinlogSuffixError if the suffix is not purely decimal or its
// width falls outside [1,17].
func Encode(pos Position) (ReplicationOffset, error) {
	basename, suffix, ok := splitFileName(pos.File)
	if !ok {
		dot := strings.LastIndexByte(pos.File, '.')
		if dot <= 0 {
			return ReplicationOffset{}, &InvalidBinlogNameError{File: pos.File}
		}
		return ReplicationOffset{}, &InvalidBinlogSuffixError{File: pos.File, Suffix: pos.File[dot+1:]}
	}
	width := len(suffix)
	if width < 1 || width > 17 {
		return ReplicationOffset{}, &InvalidBinlogSuffixError{File: pos.File, Suffix: suffix}
	}
	suffixNum, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil || suffixNum > suffixMask {
		return ReplicationOffset{}, &InvalidBinlogSuffixError{File: pos.File, Suffix: suffix}
	}
	return ReplicationOffset{
		Basename: basename,
		High:     uint64(width)<<suffixWidthBits | suffixNum,
		Low:      uint64(pos.Offset),
	}, nil
}

// Decode reconstructs a Position from a ReplicationOffset. It is
// infallible: any value produced by Encode round-trips byte-for-byte,
// including leading zeros in the suffix.
func Decode(off ReplicationOffset) Position {
	width := int(off.High >> suffixWidthBits)
	suffixNum := off.High & suffixMask
	suffix := fmt.Sprintf("%0*d", width, suffixNum)
	return Position{
		File:   off.Basename + "." + suffix,
		Offset: uint32(off.Low),
	}
}

// CompareOffsets orders two ReplicationOffsets the same way Compare orders
// the Positions they decode to, without the intermediate string work.
func CompareOffsets(a, b ReplicationOffset) Ordering {
	if a.Basename != b.Basename {
		return Incomparable
	}
	aSuffix, bSuffix := a.High&suffixMask, b.High&suffixMask
	switch {
	case aSuffix < bSuffix:
		return Less
	case aSuffix > bSuffix:
		return Greater
	case a.Low < b.Low:
		return Less
	case a.Low > b.Low:
		return Greater
	default:
		return Equal
	}
}
