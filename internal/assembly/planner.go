// Package assembly turns fetched assets (or cached references) plus the
// requester's preferences into an ordered list of delivery units, and runs
// that plan against a transport.
package assembly

import (
	"html"
	"strings"

	"github.com/JakeFAU/linkloader/internal/media"
)

// MaxBatch is the largest photo group a single delivery unit may carry.
const MaxBatch = 10

// SourceButtonText labels the link back to the original post.
const SourceButtonText = "🔗 OG Link"

// Input is everything the planner needs for one request.
type Input struct {
	CanonicalURL string
	Kind         media.ContentKind
	// Caption is the rendered base caption, before preferences are applied.
	Caption     string
	TrackTitle  string
	TrackArtist string
	Photos      []media.Asset
	Video       *media.Asset
	Audio       *media.Asset
}

// Plan is the ordered delivery for one request.
type Plan struct {
	Units []media.DeliveryUnit
	// Caption is the base caption to cache, independent of preferences.
	Caption string
}

// Empty reports whether nothing would be delivered.
func (p Plan) Empty() bool {
	return len(p.Units) == 0
}

// Build lays out the delivery. Primary assets come first, then a standalone
// caption message when the description is sent separately, then audio. When
// audio is the only asset it is delivered as the primary one, whatever the
// kind and the audio preference.
func Build(in Input, prefs media.UserPreferences) Plan {
	caption := decorate(in, prefs)
	var buttons []media.Button
	if prefs.IncludeSourceButton {
		buttons = []media.Button{{Text: SourceButtonText, URL: in.CanonicalURL}}
	}

	plan := Plan{Caption: in.Caption}
	standalone := prefs.DescriptionSeparate && caption != ""

	switch {
	case in.Kind == media.KindAudioOnly || (in.Video == nil && len(in.Photos) == 0):
		if in.Audio == nil {
			return plan
		}
		audio := audioUnit(in, *in.Audio)
		if !prefs.DescriptionSeparate {
			audio.Assets[0].Caption = caption
			audio.Buttons = buttons
		}
		plan.Units = append(plan.Units, audio)
		if standalone {
			plan.Units = append(plan.Units, textUnit(caption, buttons))
		}
		return plan

	case len(in.Photos) > 0 && (in.Kind == media.KindPhotoGallery || in.Video == nil):
		for start := 0; start < len(in.Photos); start += MaxBatch {
			end := min(start+MaxBatch, len(in.Photos))
			batch := make([]media.Asset, 0, end-start)
			for _, a := range in.Photos[start:end] {
				a.Caption = ""
				batch = append(batch, a)
			}
			if start == 0 && !prefs.DescriptionSeparate {
				batch[0].Caption = caption
			}
			plan.Units = append(plan.Units, media.DeliveryUnit{Kind: media.UnitPhotoGroup, Assets: batch})
		}

	case in.Video != nil:
		video := *in.Video
		video.Caption = ""
		unit := media.DeliveryUnit{Kind: media.UnitVideo, Assets: []media.Asset{video}}
		if !prefs.DescriptionSeparate {
			unit.Assets[0].Caption = caption
			unit.Buttons = buttons
		}
		plan.Units = append(plan.Units, unit)
	}

	if standalone {
		plan.Units = append(plan.Units, textUnit(caption, buttons))
	}
	if prefs.IncludeAudio && in.Audio != nil {
		plan.Units = append(plan.Units, audioUnit(in, *in.Audio))
	}
	return plan
}

// decorate applies the description and source link preferences.
func decorate(in Input, prefs media.UserPreferences) string {
	if !prefs.IncludeDescription || strings.TrimSpace(in.Caption) == "" {
		return ""
	}
	if prefs.IncludeSourceButton {
		return in.Caption
	}
	return in.Caption + "\n\n" + html.EscapeString(in.CanonicalURL)
}

func audioUnit(in Input, a media.Asset) media.DeliveryUnit {
	a.Caption = ""
	return media.DeliveryUnit{
		Kind:      media.UnitAudio,
		Assets:    []media.Asset{a},
		Title:     in.TrackTitle,
		Performer: in.TrackArtist,
	}
}

func textUnit(text string, buttons []media.Button) media.DeliveryUnit {
	return media.DeliveryUnit{Kind: media.UnitText, Text: text, Buttons: buttons}
}
