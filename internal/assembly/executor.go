package assembly

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/metrics"
)

// Delivered collects the references returned by the transport.
type Delivered struct {
	VideoRef  string
	AudioRef  string
	PhotoRefs []string
	Units     int

	// PhotosIncomplete is set when a photo group after a delivered one was
	// rejected or never sent. Such photo refs are not a whole gallery.
	PhotosIncomplete bool
}

// CacheUpdate converts what was delivered into a partial cache write. Photo
// refs are written only for a fully delivered gallery, and the caption only
// alongside a primary artifact.
func (d Delivered) CacheUpdate(caption string) media.CacheUpdate {
	var u media.CacheUpdate
	if d.VideoRef != "" {
		u.VideoRef = media.StringPtr(d.VideoRef)
	}
	if d.AudioRef != "" {
		u.AudioRef = media.StringPtr(d.AudioRef)
	}
	if len(d.PhotoRefs) > 0 && !d.PhotosIncomplete {
		u.PhotoRefs = append([]string(nil), d.PhotoRefs...)
	}
	if caption != "" && !u.Empty() {
		u.Caption = media.StringPtr(caption)
	}
	return u
}

// Refs lists every reference in delivery order.
func (d Delivered) Refs() []string {
	out := append([]string(nil), d.PhotoRefs...)
	if d.VideoRef != "" {
		out = append(out, d.VideoRef)
	}
	if d.AudioRef != "" {
		out = append(out, d.AudioRef)
	}
	return out
}

// Executor sends a plan unit by unit.
type Executor struct {
	transport media.Transport
	logger    *zap.Logger
}

// NewExecutor wraps a transport.
func NewExecutor(transport media.Transport, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{transport: transport, logger: logger}
}

// Execute delivers units in order and stops at the first rejection. The
// references gathered before the failure are returned with an error wrapping
// media.ErrDeliveryFailed.
func (e *Executor) Execute(ctx context.Context, target media.Target, plan Plan) (Delivered, error) {
	var out Delivered
	for i, unit := range plan.Units {
		refs, err := e.transport.Deliver(ctx, target, unit)
		if err != nil {
			out.PhotosIncomplete = hasPhotoGroup(plan.Units[i:])
			return out, fmt.Errorf("%w: unit %d (%s): %w", media.ErrDeliveryFailed, i, unit.Kind, err)
		}
		out.Units++
		metrics.ObserveDeliveryUnit(string(unit.Kind))

		switch unit.Kind {
		case media.UnitPhotoGroup:
			out.PhotoRefs = append(out.PhotoRefs, refs...)
		case media.UnitVideo:
			if len(refs) > 0 {
				out.VideoRef = refs[0]
			}
		case media.UnitAudio:
			if len(refs) > 0 {
				out.AudioRef = refs[0]
			}
		case media.UnitText:
		}
		e.logger.Debug("delivered unit",
			zap.Int("index", i),
			zap.String("unit_kind", string(unit.Kind)),
			zap.Int("refs", len(refs)))
	}
	return out, nil
}

func hasPhotoGroup(units []media.DeliveryUnit) bool {
	for _, u := range units {
		if u.Kind == media.UnitPhotoGroup {
			return true
		}
	}
	return false
}
