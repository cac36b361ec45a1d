package checkpoint

import (
	"bytes"
	"github.com/fxamacker/cbor/v2"
	"github.com/myrjola/novella/internal/errors"
	"image"
	"image/jpeg"
	"time"
)

// BookmarkType is derived from the save ID range of a slot.
type BookmarkType int

const (
	BookmarkTypeAutoSave   BookmarkType = 101
	BookmarkTypeQuickSave  BookmarkType = 201
	BookmarkTypeNormalSave BookmarkType = 301
)

func (t BookmarkType) String() string {
	switch t {
	case BookmarkTypeAutoSave:
		return "auto"
	case BookmarkTypeQuickSave:
		return "quick"
	default:
		return "normal"
	}
}

// BookmarkTypeOf classifies saveID. IDs from 301 are normal saves, from 201 quick saves and everything below auto
// saves.
func BookmarkTypeOf(saveID int) BookmarkType {
	switch {
	case saveID >= int(BookmarkTypeNormalSave):
		return BookmarkTypeNormalSave
	case saveID >= int(BookmarkTypeQuickSave):
		return BookmarkTypeQuickSave
	default:
		return BookmarkTypeAutoSave
	}
}

// ScreenshotQuality is the JPEG quality of bookmark thumbnails.
const ScreenshotQuality = 85

// Bookmark is a save slot.
type Bookmark struct {
	NodeHistory   *NodeHistory
	DialogueIndex int
	Description   string
	CreationTime  time.Time
	// VariablesHash identifies the reached record of the bookmarked dialogue.
	VariablesHash uint64
	// Screenshot is a JPEG thumbnail.
	Screenshot           []byte
	GlobalSaveIdentifier string
}

// SetScreenshot encodes img as the thumbnail.
func (b *Bookmark) SetScreenshot(img image.Image) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: ScreenshotQuality}); err != nil {
		return errors.Wrap(err, "encode screenshot")
	}
	b.Screenshot = buf.Bytes()
	return nil
}

// DecodeScreenshot decodes the thumbnail. It returns nil without error when there is none.
func (b *Bookmark) DecodeScreenshot() (image.Image, error) {
	if len(b.Screenshot) == 0 {
		return nil, nil //nolint:nilnil // absent screenshot is not an error
	}
	img, err := jpeg.Decode(bytes.NewReader(b.Screenshot))
	if err != nil {
		return nil, errors.Wrap(err, "decode screenshot")
	}
	return img, nil
}

type bookmarkWire struct {
	NodeHistory          *NodeHistory `cbor:"1,keyasint"`
	DialogueIndex        int          `cbor:"2,keyasint"`
	Description          string       `cbor:"3,keyasint,omitempty"`
	CreationTime         int64        `cbor:"4,keyasint"`
	VariablesHash        uint64       `cbor:"5,keyasint"`
	Screenshot           []byte       `cbor:"6,keyasint,omitempty"`
	GlobalSaveIdentifier string       `cbor:"7,keyasint"`
}

// MarshalCBOR encodes the bookmark. The creation time is stored with nanosecond precision.
func (b *Bookmark) MarshalCBOR() ([]byte, error) {
	history := b.NodeHistory
	if history == nil {
		history = NewNodeHistory()
	}
	data, err := cbor.Marshal(bookmarkWire{
		NodeHistory:          history,
		DialogueIndex:        b.DialogueIndex,
		Description:          b.Description,
		CreationTime:         b.CreationTime.UnixNano(),
		VariablesHash:        b.VariablesHash,
		Screenshot:           b.Screenshot,
		GlobalSaveIdentifier: b.GlobalSaveIdentifier,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal bookmark")
	}
	return data, nil
}

// UnmarshalCBOR decodes data written by MarshalCBOR.
func (b *Bookmark) UnmarshalCBOR(data []byte) error {
	var w bookmarkWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "unmarshal bookmark")
	}
	if w.NodeHistory == nil {
		w.NodeHistory = NewNodeHistory()
	}
	*b = Bookmark{
		NodeHistory:          w.NodeHistory,
		DialogueIndex:        w.DialogueIndex,
		Description:          w.Description,
		CreationTime:         time.Unix(0, w.CreationTime).UTC(),
		VariablesHash:        w.VariablesHash,
		Screenshot:           w.Screenshot,
		GlobalSaveIdentifier: w.GlobalSaveIdentifier,
	}
	return nil
}
