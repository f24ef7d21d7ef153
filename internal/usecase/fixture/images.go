package fixture

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

// ImageResolver makes sure an image is present locally before a container is created.
type ImageResolver struct {
	runtime out.ContainerRuntime
	auth    *out.RegistryAuth
	log     *log.Logger
}

// NewImageResolver creates a resolver. auth may be nil for anonymous pulls.
func NewImageResolver(runtime out.ContainerRuntime, auth *out.RegistryAuth, logger *log.Logger) *ImageResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &ImageResolver{runtime: runtime, auth: auth, log: logger}
}

// Ensure checks for imageRef locally and pulls it when absent.
// An image that is already present is never pulled again.
func (r *ImageResolver) Ensure(ctx context.Context, imageRef string) error {
	images, err := r.runtime.ListImages(ctx, imageRef)
	if err != nil {
		return &domain.ImagePullError{Image: imageRef, Cause: err}
	}
	if len(images) > 0 {
		r.log.Debug("Image already present", "image", imageRef, "id", images[0].ID)
		return nil
	}

	name, tag := splitImageRef(imageRef)
	r.log.Info("Pulling image", "image", name, "tag", tag)

	var pullErr error
	err = r.runtime.PullImage(ctx, name, tag, r.auth, func(p out.PullProgress) {
		if p.ErrorMessage != "" {
			if pullErr == nil {
				pullErr = errors.New(p.ErrorMessage)
			}
			return
		}
		r.log.Debug("Pull progress", "image", imageRef, "status", p.Status, "layer", p.ID)
	})
	if err == nil {
		err = pullErr
	}
	if err != nil {
		return &domain.ImagePullError{Image: imageRef, Cause: err}
	}

	r.log.Info("Image pulled", "image", imageRef)
	return nil
}

// splitImageRef separates the tag, taken from after the last ':'. A colon that
// belongs to a registry host ("localhost:5000/app") is not a tag separator.
// Digest references carry no tag. A missing tag yields "" and is passed
// through as such.
func splitImageRef(ref string) (name, tag string) {
	if strings.Contains(ref, "@") {
		return ref, ""
	}
	i := strings.LastIndex(ref, ":")
	if i < 0 || strings.Contains(ref[i+1:], "/") {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}
