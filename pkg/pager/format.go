package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// File layout constants.
const (
	// PageSize is the size of every page in the database file.
	PageSize = 4096

	// HeaderSize is the size of the header block at the start of page 0,
	// including the magic bytes. The rest of page 0 is unused.
	HeaderSize = 300

	// headerPage holds the database header.
	headerPage uint64 = 0

	// indexPage holds the metadata of the system index document.
	indexPage uint64 = 1

	// firstUserPage is the lowest page number handed out for documents.
	firstUserPage uint64 = 2
)

// magic identifies a database file. It is the first 4 bytes of page 0.
var magic = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

// Header field offsets (bytes from file start).
const (
	offMagic     = 0x000 // [4]byte
	offHeaderCRC = 0x004 // uint32, CRC32-C of the block with this field zeroed
	offBody      = 0x008 // uvarint page_size, last_used_page, free count, free pages
)

// maxCountLen bounds the encoded length of the free-page count. The body is
// smaller than 1<<14 bytes so the count never needs more than 2 bytes; 3 is
// the uvarint length reserved for a uint16.
const maxCountLen = 3

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// header is the decoded form of the header block.
type header struct {
	PageSize     uint64
	LastUsedPage uint64
	// FreePages is a LIFO stack: the last element is reused first.
	FreePages []uint64
}

// encodeHeader serializes h into a HeaderSize block.
//
// If the free list does not fit, the oldest entries (front of the stack) are
// left out. The number of omitted pages is returned so the caller can report
// it; those pages are simply never reused after a reopen.
func encodeHeader(h header) ([]byte, int) {
	buf := make([]byte, HeaderSize)
	copy(buf[offMagic:], magic[:])

	body := buf[offBody:]
	pos := binary.PutUvarint(body, h.PageSize)
	pos += binary.PutUvarint(body[pos:], h.LastUsedPage)

	// Walk the stack from the top until the next entry would not fit.
	budget := len(body) - pos - maxCountLen
	keep := len(h.FreePages)

	for i := len(h.FreePages) - 1; i >= 0; i-- {
		n := uvarintLen(h.FreePages[i])
		if n > budget {
			keep = len(h.FreePages) - 1 - i

			break
		}

		budget -= n
	}

	kept := h.FreePages[len(h.FreePages)-keep:]

	pos += binary.PutUvarint(body[pos:], uint64(len(kept)))
	for _, page := range kept {
		pos += binary.PutUvarint(body[pos:], page)
	}

	binary.LittleEndian.PutUint32(buf[offHeaderCRC:], computeHeaderCRC(buf))

	return buf, len(h.FreePages) - keep
}

// decodeHeader parses a HeaderSize block. The magic must already have been
// checked by the caller.
func decodeHeader(buf []byte) (header, error) {
	if len(buf) != HeaderSize {
		return header{}, fmt.Errorf("header block is %d bytes, want %d: %w", len(buf), HeaderSize, ErrDecode)
	}

	if !bytes.Equal(buf[offMagic:offMagic+len(magic)], magic[:]) {
		return header{}, fmt.Errorf("magic mismatch: %w", ErrCorrupt)
	}

	stored := binary.LittleEndian.Uint32(buf[offHeaderCRC:])
	if stored != computeHeaderCRC(buf) {
		return header{}, fmt.Errorf("header checksum mismatch: %w", ErrCorrupt)
	}

	r := uvarintReader{buf: buf[offBody:]}

	var h header

	h.PageSize = r.next()
	h.LastUsedPage = r.next()
	count := r.next()

	if r.err != nil {
		return header{}, fmt.Errorf("header: %w", r.err)
	}

	if count > uint64(r.remaining()) {
		return header{}, fmt.Errorf("header: free page count %d exceeds block: %w", count, ErrDecode)
	}

	h.FreePages = make([]uint64, 0, count)
	for range count {
		h.FreePages = append(h.FreePages, r.next())
	}

	if r.err != nil {
		return header{}, fmt.Errorf("header free pages: %w", r.err)
	}

	if h.LastUsedPage < indexPage {
		return header{}, fmt.Errorf("header: last used page %d: %w", h.LastUsedPage, ErrCorrupt)
	}

	seen := make(map[uint64]struct{}, len(h.FreePages))
	for _, page := range h.FreePages {
		if page < firstUserPage || page > h.LastUsedPage {
			return header{}, fmt.Errorf("header: free page %d outside [%d, %d]: %w", page, firstUserPage, h.LastUsedPage, ErrCorrupt)
		}

		if _, dup := seen[page]; dup {
			return header{}, fmt.Errorf("header: free page %d listed twice: %w", page, ErrCorrupt)
		}

		seen[page] = struct{}{}
	}

	return h, nil
}

// computeHeaderCRC calculates the CRC32-C checksum of the header block with
// the crc field treated as zero.
func computeHeaderCRC(buf []byte) uint32 {
	tmp := make([]byte, HeaderSize)
	copy(tmp, buf)

	for i := offHeaderCRC; i < offHeaderCRC+4; i++ {
		tmp[i] = 0
	}

	return crc32.Checksum(tmp, castagnoli)
}

func uvarintLen(v uint64) int {
	var tmp [binary.MaxVarintLen64]byte

	return binary.PutUvarint(tmp[:], v)
}

// uvarintReader reads consecutive uvarints and remembers the first error.
type uvarintReader struct {
	buf []byte
	pos int
	err error
}

func (r *uvarintReader) next() uint64 {
	if r.err != nil {
		return 0
	}

	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.err = fmt.Errorf("bad uvarint at offset %d: %w", r.pos, ErrDecode)

		return 0
	}

	r.pos += n

	return v
}

// bytes reads a uvarint length followed by that many bytes. The returned
// slice aliases the underlying buffer.
func (r *uvarintReader) bytes() []byte {
	n := r.next()
	if r.err != nil {
		return nil
	}

	if n > uint64(r.remaining()) {
		r.err = fmt.Errorf("length %d at offset %d exceeds buffer: %w", n, r.pos, ErrDecode)

		return nil
	}

	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)

	return out
}

func (r *uvarintReader) remaining() int {
	return len(r.buf) - r.pos
}
