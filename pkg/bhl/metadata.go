package bhl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
)

const maxTLVPayload = 255

func encodeMetadata(meta Metadata) ([]byte, error) {
	var buf bytes.Buffer

	if meta.HasFilename {
		if !utf8.ValidString(meta.Filename) {
			return nil, fmt.Errorf("bhl: filename is not valid UTF-8")
		}
		if err := writeTLV(&buf, tlvFilename, []byte(meta.Filename)); err != nil {
			return nil, err
		}
	}

	if meta.HasModTime {
		var payload [8]byte
		binary.BigEndian.PutUint64(payload[:], uint64(meta.ModTime.Unix()))
		if err := writeTLV(&buf, tlvModTime, payload[:]); err != nil {
			return nil, err
		}
	}

	for _, t := range meta.Unknown {
		if err := writeTLV(&buf, string(t.Type[:]), t.Payload); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeTLV(buf *bytes.Buffer, typeCode string, payload []byte) error {
	if len(typeCode) != 3 {
		return fmt.Errorf("bhl: TLV type code must be 3 bytes, got %q", typeCode)
	}
	if len(payload) > maxTLVPayload {
		return fmt.Errorf("bhl: TLV %q payload too long: %d bytes", typeCode, len(payload))
	}

	buf.WriteString(typeCode)
	buf.WriteByte(byte(len(payload)))
	buf.Write(payload)

	return nil
}

// decodeMetadata parses the metadata TLV region. Unknown type codes are
// preserved (not discarded) on Metadata.Unknown so a future re-encode can
// round-trip them; a TLV whose declared length exceeds what remains in the
// region is Malformed.
func decodeMetadata(region []byte) (Metadata, error) {
	var meta Metadata

	for len(region) > 0 {
		if len(region) < 4 {
			return Metadata{}, fmt.Errorf("%w: truncated TLV header", bhlerr.ErrMalformed)
		}

		var typeCode [3]byte
		copy(typeCode[:], region[:3])
		payloadLen := int(region[3])
		region = region[4:]

		if payloadLen > len(region) {
			return Metadata{}, fmt.Errorf("%w: TLV %q declares %d bytes, only %d remain", bhlerr.ErrMalformed, typeCode, payloadLen, len(region))
		}

		payload := append([]byte(nil), region[:payloadLen]...)
		region = region[payloadLen:]

		switch string(typeCode[:]) {
		case tlvFilename:
			if !utf8.Valid(payload) {
				return Metadata{}, fmt.Errorf("%w: FNM is not valid UTF-8", bhlerr.ErrMalformed)
			}
			meta.Filename = string(payload)
			meta.HasFilename = true
		case tlvModTime:
			if len(payload) != 8 {
				return Metadata{}, fmt.Errorf("%w: FDT payload must be 8 bytes", bhlerr.ErrMalformed)
			}
			secs := binary.BigEndian.Uint64(payload)
			meta.ModTime = time.Unix(int64(secs), 0).UTC()
			meta.HasModTime = true
		default:
			meta.Unknown = append(meta.Unknown, TLV{Type: typeCode, Payload: payload})
		}
	}

	return meta, nil
}
