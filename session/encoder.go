package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Record layout, version 1. The fixed-size header keeps RevokedAt and
// RefreshHash at known byte offsets so Lua scripts can rewrite them in
// place without decoding the variable-length tail.
//
//	offset  size  field
//	0       1     version
//	1       8     revokedAt (int64 BE, 0 = active)
//	9       8     createdAt (int64 BE)
//	17      8     expiresAt (int64 BE)
//	25      32    refreshHash (sha256)
//	57      1     userID length, then userID bytes
//	...     1     role length, then role bytes
const recordVersionV1 = 1

const fixedHeaderSize = 57

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, s.RevokedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(s.RefreshHash[:])

	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("invalid userID length")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.Role) > 255 {
		return nil, errors.New("role too long")
	}
	buf.WriteByte(byte(len(s.Role)))
	buf.WriteString(s.Role)

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	if len(data) < fixedHeaderSize+2 {
		return nil, errors.New("session record too short")
	}

	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	if err := binary.Read(reader, binary.BigEndian, &s.RevokedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	s.UserID = string(userID)

	roleLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	role := make([]byte, roleLen)
	if _, err := io.ReadFull(reader, role); err != nil {
		return nil, err
	}
	s.Role = string(role)

	return s, nil
}
