package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/rs/zerolog/log"

	"github.com/codewandler/relay/internal/pipeline"
)

// Builder builds a container image from a checked-out source tree.
type Builder struct {
	client *Client

	// Image is the image repository, e.g. registry.local/team/webapp.
	Image string
	// Tag is the tag applied to built images.
	Tag string
	// Dockerfile is the path of the Dockerfile within the build context.
	Dockerfile string
}

// NewBuilder returns a build backend tagging images as image:tag.
func NewBuilder(client *Client, image, tag string) *Builder {
	return &Builder{
		client:     client,
		Image:      image,
		Tag:        tag,
		Dockerfile: "Dockerfile",
	}
}

// Build tars the checked-out tree and runs a docker build. The captured build
// log is returned for the stage audit trail.
func (b *Builder) Build(ctx context.Context, src pipeline.CheckoutResult) (pipeline.BuildResult, error) {
	imageRef := fmt.Sprintf("%s:%s", b.Image, b.Tag)

	buildContext, err := tarDirectory(src.Dir)
	if err != nil {
		return pipeline.BuildResult{}, fmt.Errorf("unable to create build context: %w", err)
	}

	log.Debug().Str("image", imageRef).Str("dir", src.Dir).Msg("building image")

	resp, err := b.client.dc.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{imageRef},
		Dockerfile: b.Dockerfile,
		Remove:     true,
	})
	if err != nil {
		return pipeline.BuildResult{}, fmt.Errorf("unable to build image: %w", err)
	}
	defer resp.Body.Close()

	output, err := collectStream(resp.Body)
	if err != nil {
		return pipeline.BuildResult{Output: output}, fmt.Errorf("image build failed: %w", err)
	}

	return pipeline.BuildResult{ImageRef: imageRef, Output: output}, nil
}

// streamMessage is one line of the docker build/push JSON stream.
type streamMessage struct {
	Stream      string `json:"stream,omitempty"`
	Status      string `json:"status,omitempty"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail,omitempty"`
}

// collectStream drains a docker JSON message stream into plain text, turning
// an embedded errorDetail into an error.
func collectStream(r io.Reader) (string, error) {
	var out strings.Builder
	dec := json.NewDecoder(r)

	for {
		var msg streamMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return out.String(), fmt.Errorf("unable to decode daemon response: %w", err)
		}

		if msg.Stream != "" {
			out.WriteString(msg.Stream)
		}
		if msg.Status != "" {
			out.WriteString(msg.Status)
			out.WriteString("\n")
		}
		if msg.ErrorDetail != nil {
			return out.String(), fmt.Errorf("%s", msg.ErrorDetail.Message)
		}
	}

	return out.String(), nil
}

// tarDirectory packs dir into an in-memory tar archive, skipping the .git
// directory.
func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
