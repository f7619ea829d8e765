package log

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/augurdb/augur/db"
	"github.com/augurdb/augur/util"
)

// Reader reads sequential records written by Writer. Every record is a
// complete logical record on its own, so there is no FIRST/MIDDLE/LAST
// reassembly: any on-disk type other than recordFull is a corruption
// signal, not an instruction to keep reading.
type Reader struct {
	src       io.Reader
	verifyCRC bool
}

func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, verifyCRC: true}
}

func (r *Reader) ReadRecord() ([]byte, error) {
	data, t, err := r.readPhysicalRecord()
	if err != nil {
		return nil, err
	}

	switch t {
	case recordFull:
		return data, nil
	case recordEOF:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: WAL record has non-full type %d", db.ErrCorruption, t)
	}
}

func (r *Reader) readPhysicalRecord() ([]byte, recordType, error) {
	header, err := r.readFull(headerSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, recordEOF, nil
		}
		return nil, recordBad, err
	}

	length := int(binary.LittleEndian.Uint16(header[4:6]))
	t := recordType(header[6])

	data, err := r.readFull(length)
	if err != nil {
		return nil, recordBad, fmt.Errorf("%w: truncated WAL record", db.ErrCorruption)
	}

	if r.verifyCRC {
		h := util.NewCRC32C()
		h.Write(header[6:7])
		h.Write(data)
		expected := util.UnmaskCRC32(binary.LittleEndian.Uint32(header[0:4]))
		if h.Sum32() != expected {
			return nil, recordBad, fmt.Errorf("%w: WAL record checksum mismatch", db.ErrCorruption)
		}
	}

	return data, t, nil
}

// readFull reads exactly n bytes. A clean EOF with nothing read yet is
// reported as io.EOF; anything partial is a truncated record.
func (r *Reader) readFull(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r.src, buf)
	if err != nil {
		if errors.Is(err, io.EOF) && read == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
