package session

import (
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

const (
	sessionFormatVersionCurrent = 1

	fieldVersion    = "v"
	fieldUserID     = "uid"
	fieldIP         = "ip"
	fieldUserAgent  = "ua"
	fieldRefresh    = "rh"
	fieldCreatedAt  = "ca"
	fieldLastActive = "la"
	fieldExpiresAt  = "ea"
)

// ErrCorrupt is returned when a stored record cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// encodeFields flattens s into HSET field/value pairs. Timestamps are unix
// milliseconds so Lua scripts can compare them numerically.
func encodeFields(s *Session) []interface{} {
	return []interface{}{
		fieldVersion, sessionFormatVersionCurrent,
		fieldUserID, s.UserID,
		fieldIP, s.IP,
		fieldUserAgent, s.UserAgent,
		fieldRefresh, hex.EncodeToString(s.RefreshHash[:]),
		fieldCreatedAt, s.CreatedAt.UnixMilli(),
		fieldLastActive, s.LastActive.UnixMilli(),
		fieldExpiresAt, s.ExpiresAt.UnixMilli(),
	}
}

func decodeFields(id string, fields map[string]string) (*Session, error) {
	version, err := strconv.Atoi(fields[fieldVersion])
	if err != nil || version < 1 || version > sessionFormatVersionCurrent {
		return nil, ErrCorrupt
	}

	s := &Session{
		ID:        id,
		UserID:    fields[fieldUserID],
		IP:        fields[fieldIP],
		UserAgent: fields[fieldUserAgent],
	}
	if s.UserID == "" {
		return nil, ErrCorrupt
	}

	rh, err := hex.DecodeString(fields[fieldRefresh])
	if err != nil || len(rh) != len(s.RefreshHash) {
		return nil, ErrCorrupt
	}
	copy(s.RefreshHash[:], rh)

	if s.CreatedAt, err = decodeMillis(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if s.LastActive, err = decodeMillis(fields[fieldLastActive]); err != nil {
		return nil, err
	}
	if s.ExpiresAt, err = decodeMillis(fields[fieldExpiresAt]); err != nil {
		return nil, err
	}

	return s, nil
}

func decodeMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, ErrCorrupt
	}
	return time.UnixMilli(ms), nil
}

func hashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
