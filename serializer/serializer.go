/**

common serialize/deserialize functions

 */
package serializer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// writes the field length, then the field to the writer
func WriteFieldBytes(buf *bufio.Writer, bytes []byte) error {
	//write field length
	size := uint32(len(bytes))
	if err := binary.Write(buf, binary.LittleEndian, &size); err != nil {
		return err
	}
	// write field
	n, err := buf.Write(bytes);
	if err != nil {
		return err
	}
	if uint32(n) != size {
		return fmt.Errorf("unexpected num bytes written. Expected %v, got %v", size, n)
	}
	return nil
}

// read field bytes
func ReadFieldBytes(buf *bufio.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(buf, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	bytes := make([]byte, size)
	if _, err := io.ReadFull(buf, bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}

// WriteString writes a length-prefixed UTF8 string.
func WriteString(buf *bufio.Writer, s string) error {
	return WriteFieldBytes(buf, []byte(s))
}

// ReadString reads a length-prefixed UTF8 string.
func ReadString(buf *bufio.Reader) (string, error) {
	b, err := ReadFieldBytes(buf)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteUint64 writes a fixed-width 64 bit field.
func WriteUint64(buf *bufio.Writer, v uint64) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

// ReadUint64 reads a fixed-width 64 bit field.
func ReadUint64(buf *bufio.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(buf, binary.LittleEndian, &v)
	return v, err
}

// WriteUint32 writes a fixed-width 32 bit field.
func WriteUint32(buf *bufio.Writer, v uint32) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

// ReadUint32 reads a fixed-width 32 bit field.
func ReadUint32(buf *bufio.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(buf, binary.LittleEndian, &v)
	return v, err
}

// WriteBool writes a single byte boolean field.
func WriteBool(buf *bufio.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	return buf.WriteByte(b)
}

// ReadBool reads a single byte boolean field.
func ReadBool(buf *bufio.Reader) (bool, error) {
	b, err := buf.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// WriteTime writes a time.Time as a unix-nano int64 field.
func WriteTime(buf *bufio.Writer, t time.Time) error {
	return binary.Write(buf, binary.LittleEndian, t.UnixNano())
}

// ReadTime reads a time.Time written by WriteTime.
func ReadTime(buf *bufio.Reader) (time.Time, error) {
	var nanos int64
	if err := binary.Read(buf, binary.LittleEndian, &nanos); err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

// WriteStringSlice writes a length-prefixed sequence of strings.
func WriteStringSlice(buf *bufio.Writer, ss []string) error {
	if err := WriteUint32(buf, uint32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := WriteString(buf, s); err != nil {
			return err
		}
	}
	return nil
}

// ReadStringSlice reads a sequence written by WriteStringSlice.
func ReadStringSlice(buf *bufio.Reader) ([]string, error) {
	n, err := ReadUint32(buf)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := ReadString(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
