// Package savefile implements the versioned save file envelope and crash-safe storage of save files.
//
// Every save file starts with an 8 byte magic header and a little-endian int32 version. Version 2 bodies are DEFLATE
// compressed CBOR. Version 1 bodies are CBOR obfuscated with a cyclic XOR of the magic header and are only read.
package savefile

import (
	"bytes"
	"encoding/binary"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/flate"
	"github.com/myrjola/novella/internal/errors"
	"io"
	"log/slog"
)

const (
	// Magic starts every save file.
	Magic = "NOVELSAV"
	// VersionLegacy is the XOR obfuscated format.
	VersionLegacy int32 = 1
	// VersionCurrent is the DEFLATE compressed format written by Encode.
	VersionCurrent int32 = 2
)

var (
	ErrBadHeader           = errors.NewSentinel("save file header is invalid")
	ErrIncompatibleVersion = errors.NewSentinel("save file version is not supported")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Encode writes payload in the current version.
func Encode(w io.Writer, payload any) error {
	return EncodeVersion(w, VersionCurrent, payload)
}

// EncodeVersion writes payload in the given version.
func EncodeVersion(w io.Writer, version int32, payload any) error {
	if version != VersionLegacy && version != VersionCurrent {
		return errors.Wrap(ErrIncompatibleVersion, "encode save file", slog.Int("version", int(version)))
	}
	body, err := encMode.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal save payload")
	}
	if _, err = io.WriteString(w, Magic); err != nil {
		return errors.Wrap(err, "write save header")
	}
	if err = binary.Write(w, binary.LittleEndian, version); err != nil {
		return errors.Wrap(err, "write save version")
	}

	if version == VersionLegacy {
		xorMagic(body)
		if _, err = w.Write(body); err != nil {
			return errors.Wrap(err, "write legacy save body")
		}
		return nil
	}

	fw, err := flate.NewWriter(w, flate.DefaultCompression)
	if err != nil {
		return errors.Wrap(err, "create deflate writer")
	}
	if _, err = fw.Write(body); err != nil {
		return errors.Wrap(err, "write compressed save body")
	}
	if err = fw.Close(); err != nil {
		return errors.Wrap(err, "flush compressed save body")
	}
	return nil
}

// Decode reads a save file of any supported version into payload.
func Decode(r io.Reader, payload any) error {
	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return errors.Wrap(ErrBadHeader, "read save header", slog.String("cause", err.Error()))
	}
	if !bytes.Equal(header, []byte(Magic)) {
		return errors.Wrap(ErrBadHeader, "unexpected magic", slog.String("magic", string(header)))
	}
	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return errors.Wrap(ErrBadHeader, "read save version", slog.String("cause", err.Error()))
	}

	var body []byte
	switch {
	case version > VersionCurrent:
		return errors.Wrap(ErrIncompatibleVersion, "decode save file",
			slog.Int("version", int(version)), slog.Int("supported", int(VersionCurrent)))
	case version == VersionCurrent:
		fr := flate.NewReader(r)
		defer fr.Close()
		var err error
		if body, err = io.ReadAll(fr); err != nil {
			return errors.Wrap(err, "decompress save body")
		}
	case version == VersionLegacy:
		var err error
		if body, err = io.ReadAll(r); err != nil {
			return errors.Wrap(err, "read legacy save body")
		}
		xorMagic(body)
	default:
		return errors.Wrap(ErrBadHeader, "invalid save version", slog.Int("version", int(version)))
	}

	if err := decMode.Unmarshal(body, payload); err != nil {
		return errors.Wrap(err, "unmarshal save payload", slog.Int("version", int(version)))
	}
	return nil
}

func xorMagic(data []byte) {
	for i := range data {
		data[i] ^= Magic[i%len(Magic)]
	}
}
