package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/bnema/ephemera/internal/boundaries/out"
)

const defaultRegistry = "docker.io"

// ListImages lists local images matching reference.
func (r *Runtime) ListImages(ctx context.Context, reference string) ([]out.ImageSummary, error) {
	images, err := r.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", reference)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	result := make([]out.ImageSummary, 0, len(images))
	for _, img := range images {
		result = append(result, out.ImageSummary{ID: img.ID, RepoTags: img.RepoTags})
	}
	return result, nil
}

// PullImage pulls ref:tag and reports every progress message. An empty tag
// is left for the daemon to default.
func (r *Runtime) PullImage(ctx context.Context, ref, tag string, auth *out.RegistryAuth, progress func(out.PullProgress)) error {
	imageRef := ref
	if tag != "" {
		imageRef = ref + ":" + tag
	}
	log := r.log.With("action", "PullImage", "image", imageRef)

	opts := image.PullOptions{}
	if auth != nil {
		encoded, err := encodeAuth(ref, auth)
		if err != nil {
			return err
		}
		opts.RegistryAuth = encoded
		log.Debug("Pulling with credentials", "username", auth.Username)
	}

	reader, err := r.client.ImagePull(ctx, imageRef, opts)
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// The response must be read to completion for the pull to complete.
	if err := decodePullProgress(reader, progress); err != nil {
		return fmt.Errorf("failed to read pull response: %w", err)
	}

	log.Debug("Image pull finished")
	return nil
}

func decodePullProgress(rd io.Reader, progress func(out.PullProgress)) error {
	dec := json.NewDecoder(rd)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if progress == nil {
			continue
		}

		ev := out.PullProgress{Status: msg.Status, ID: msg.ID}
		if msg.Error != nil && msg.Error.Message != "" {
			ev.ErrorMessage = msg.Error.Message
		} else if msg.ErrorMessage != "" { //nolint:staticcheck // older daemons only send the flat field
			ev.ErrorMessage = msg.ErrorMessage //nolint:staticcheck
		}
		progress(ev)
	}
}

// encodeAuth builds the X-Registry-Auth header value.
func encodeAuth(ref string, auth *out.RegistryAuth) (string, error) {
	server := auth.ServerAddress
	if server == "" {
		server = registryHost(ref)
	}

	// Podman is strict about the encoding; StdEncoding works with both.
	authConfigBytes, err := json.Marshal(registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: server,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth config: %w", err)
	}
	return base64.StdEncoding.EncodeToString(authConfigBytes), nil
}

// registryHost extracts the registry from an image reference
// ("registry.example.com/app" -> "registry.example.com"). References without
// a registry component belong to Docker Hub.
func registryHost(ref string) string {
	first, _, found := strings.Cut(ref, "/")
	if !found {
		return defaultRegistry
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return defaultRegistry
}
