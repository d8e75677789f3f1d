package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"
)

// PullImage pulls an image and drains the progress stream. The daemon does
// nothing until the stream is consumed, so this blocks until the pull is
// complete.
func PullImage(ctx context.Context, imageRef string) error {
	if err := CheckIfInitialized(); err != nil {
		return err
	}

	reader, err := dockerCli.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}
	defer reader.Close()

	return drainDaemonStream(reader)
}

// BuildImage builds an image from a tar build context and tags it. Returns
// an error when the daemon reports a build failure inside the stream.
func BuildImage(ctx context.Context, buildContext io.Reader, tag string) error {
	if err := CheckIfInitialized(); err != nil {
		return err
	}

	resp, err := dockerCli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	return drainDaemonStream(resp.Body)
}

// drainDaemonStream consumes a pull/build progress stream and surfaces any
// embedded daemon error.
func drainDaemonStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("error reading daemon response: %w", err)
		}
		if msg.Error != nil {
			return fmt.Errorf("daemon error: %s", msg.Error.Message)
		}
		if msg.Stream != "" {
			log.Debug("daemon", "stream", strings.TrimRight(msg.Stream, "\n"))
		}
	}
}

// GetImageIDByName resolves an image reference to its ID in the local engine.
func GetImageIDByName(ctx context.Context, imageName string) (string, error) {
	images, err := dockerCli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to list images: %w", err)
	}

	normalizedName, tag := normalizeImageName(imageName)
	tagPattern := createTagPattern(tag)

	for _, img := range images {
		for _, repoTag := range img.RepoTags {
			if repoTag == imageName || repoTag == "docker.io/"+imageName ||
				repoTag == "localhost/"+imageName {
				return img.ID, nil
			}

			normalizedRepoTag, repoTagValue := normalizeImageName(repoTag)
			if (normalizedRepoTag == normalizedName ||
				normalizedRepoTag == "docker.io/"+normalizedName) &&
				tagPattern.MatchString(repoTagValue) {
				return img.ID, nil
			}
		}
	}

	return "", fmt.Errorf("image not found: %s", imageName)
}

func normalizeImageName(name string) (string, string) {
	parts := strings.SplitN(name, ":", 2)
	normalizedName := parts[0]
	tag := "latest"
	if len(parts) > 1 {
		tag = parts[1]
	}

	normalizedName = strings.TrimPrefix(normalizedName, "docker.io/")
	return normalizedName, tag
}

func createTagPattern(tag string) *regexp.Regexp {
	if tag == "" || tag == "latest" {
		return regexp.MustCompile(`.*`)
	}

	// Match the tag exactly or as a prefix so "1.0" matches "1.0.1" and
	// "1.0-alpine".
	escapedTag := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`^` + escapedTag + `($|[\.-])`)
}

// ImageExists reports whether an image with this reference is present
// locally.
func ImageExists(ctx context.Context, imageRef string) bool {
	_, err := GetImageIDByName(ctx, imageRef)
	return err == nil
}

// GetImageInfo returns the inspect payload for an image.
func GetImageInfo(ctx context.Context, imageID string) (*types.ImageInspect, error) {
	info, _, err := dockerCli.ImageInspectWithRaw(ctx, imageID)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetImageSize returns the size in bytes of an image.
func GetImageSize(ctx context.Context, imageID string) (int64, error) {
	info, err := GetImageInfo(ctx, imageID)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}
