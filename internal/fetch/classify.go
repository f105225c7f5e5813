package fetch

import (
	"sort"

	"github.com/JakeFAU/linkloader/internal/extract"
	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/metadata"
)

// sidecarPriority orders which job's info file describes the request.
var sidecarPriority = []media.JobKind{media.JobVideo, media.JobGallery, media.JobAudio}

// classify rebuilds the asset lists from every job's files. Failed jobs
// still contribute whatever they left behind. Audio comes from the audio job
// or a gallery, never from a video job's leftovers.
func classify(r *Result) {
	r.Photos, r.Videos, r.Audio, r.Sidecar = nil, nil, "", ""

	var dedicatedAudio, otherAudio []string
	sidecars := make(map[media.JobKind][]string)
	for _, job := range r.Jobs {
		for _, p := range job.Outcome.Paths {
			switch extract.Classify(p) {
			case extract.ClassPhoto:
				r.Photos = append(r.Photos, p)
			case extract.ClassVideo:
				r.Videos = append(r.Videos, p)
			case extract.ClassAudio:
				switch job.Kind {
				case media.JobAudio:
					dedicatedAudio = append(dedicatedAudio, p)
				case media.JobGallery:
					otherAudio = append(otherAudio, p)
				case media.JobVideo:
				}
			case extract.ClassSidecar:
				sidecars[job.Kind] = append(sidecars[job.Kind], p)
			case extract.ClassOther:
			}
		}
	}
	sort.Strings(r.Photos)
	sort.Strings(r.Videos)
	sort.Strings(dedicatedAudio)
	sort.Strings(otherAudio)

	switch {
	case len(dedicatedAudio) > 0:
		r.Audio = dedicatedAudio[0]
	case len(otherAudio) > 0:
		r.Audio = otherAudio[0]
	}
	for _, kind := range sidecarPriority {
		if s := metadata.FindSidecar(sidecars[kind]); s != "" {
			r.Sidecar = s
			return
		}
	}
}
