package extract

import (
	"io"
	"strconv"
	"time"

	"golang.org/x/xerrors"
)

// cpio "new ASCII" (newc) format support, enough to unpack the payload
// produced by rpm2cpio.

const (
	cpioMagic      = "070701"
	cpioHeaderSize = 110
	cpioTrailer    = "TRAILER!!!"
)

// CpioHeader describes a single member of a cpio archive.
type CpioHeader struct {
	Name    string
	Mode    int64
	Size    int64
	ModTime time.Time
}

// IsDir tells whether the member is a directory.
func (h *CpioHeader) IsDir() bool {
	return h.Mode&0170000 == 040000
}

// CpioReader provides sequential access to the members of a cpio archive
// in the newc format.
type CpioReader struct {
	r         io.Reader
	pos       int64
	remaining int64
}

func NewCpioReader(r io.Reader) *CpioReader {
	return &CpioReader{r: r}
}

func (cr *CpioReader) skip(n int64) error {
	written, err := io.CopyN(io.Discard, cr.r, n)
	cr.pos += written
	if err != nil {
		return xerrors.Errorf("failed to skip %d bytes of the cpio archive: %w", n, err)
	}
	return nil
}

// align4 skips up to three bytes so that the reader position is a multiple
// of four. Both headers and file data start at such offsets.
func (cr *CpioReader) align4() error {
	if pad := (4 - cr.pos%4) % 4; pad > 0 {
		return cr.skip(pad)
	}
	return nil
}

func (cr *CpioReader) read(n int64) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(cr.r, buf)
	cr.pos += int64(read)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func parseHex(field []byte) (int64, error) {
	value, err := strconv.ParseInt(string(field), 16, 64)
	if err != nil {
		return 0, xerrors.Errorf("malformed cpio header field '%s': %w", field, err)
	}
	return value, nil
}

// Next advances to the next member of the archive. It returns io.EOF when
// the trailer record is reached.
func (cr *CpioReader) Next() (*CpioHeader, error) {
	if err := cr.skip(cr.remaining); err != nil {
		return nil, err
	}
	cr.remaining = 0
	if err := cr.align4(); err != nil {
		return nil, err
	}

	raw, err := cr.read(cpioHeaderSize)
	if err != nil {
		return nil, xerrors.Errorf("failed to read a cpio header: %w", err)
	}
	if string(raw[:6]) != cpioMagic {
		return nil, xerrors.Errorf("bad magic number '%s', not a newc cpio archive", raw[:6])
	}

	// fields of 8 hex digits follow the magic: inode, mode, uid, gid,
	// nlink, mtime, filesize, devmajor, devminor, rdevmajor, rdevminor,
	// namesize, check
	field := func(i int) []byte { return raw[6+8*i : 6+8*(i+1)] }

	mode, err := parseHex(field(1))
	if err != nil {
		return nil, err
	}
	mtime, err := parseHex(field(5))
	if err != nil {
		return nil, err
	}
	size, err := parseHex(field(6))
	if err != nil {
		return nil, err
	}
	nameSize, err := parseHex(field(11))
	if err != nil {
		return nil, err
	}

	rawName, err := cr.read(nameSize)
	if err != nil {
		return nil, xerrors.Errorf("failed to read a cpio member name: %w", err)
	}
	name := string(rawName[:len(rawName)-1]) // drop the trailing NUL
	if err := cr.align4(); err != nil {
		return nil, err
	}

	if name == cpioTrailer {
		return nil, io.EOF
	}

	cr.remaining = size
	return &CpioHeader{
		Name:    name,
		Mode:    mode,
		Size:    size,
		ModTime: time.Unix(mtime, 0),
	}, nil
}

// Read reads the data of the current member.
func (cr *CpioReader) Read(p []byte) (int, error) {
	if cr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > cr.remaining {
		p = p[:cr.remaining]
	}
	n, err := cr.r.Read(p)
	cr.pos += int64(n)
	cr.remaining -= int64(n)
	return n, err
}
