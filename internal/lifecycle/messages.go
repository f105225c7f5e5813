package lifecycle

import (
	"errors"
	"fmt"
	"html"

	"github.com/JakeFAU/linkloader/internal/media"
)

// ErrorLogName is the file name of the operator report document.
const ErrorLogName = "error_log.txt"

// maxErrorRunes bounds the error text shown in a status message.
const maxErrorRunes = 500

// FailureMessage is the short status text for a known failure.
func FailureMessage(kind media.ContentKind, err error) string {
	if errors.Is(err, media.ErrDeliveryFailed) {
		return "❌ Upload failed."
	}
	switch kind {
	case media.KindPhotoGallery:
		return "❌ Gallery download failed."
	case media.KindAudioOnly:
		return "❌ Audio download error."
	default:
		return "❌ Video download error."
	}
}

// UnexpectedMessage renders an unexpected error for the requester.
func UnexpectedMessage(err error) string {
	return fmt.Sprintf("Uh-oh. Houston, we have a problem:\n<blockquote expandable>%s</blockquote>",
		html.EscapeString(bound(err.Error(), maxErrorRunes)))
}

// OperatorCaption is the caption attached to the operator report.
func OperatorCaption(err error) string {
	return fmt.Sprintf("🚨 <b>Something happened...</b>\n<blockquote expandable>%s</blockquote>\n",
		html.EscapeString(bound(err.Error(), maxErrorRunes)))
}

func bound(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
