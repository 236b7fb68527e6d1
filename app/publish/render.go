package publish

import (
	"fmt"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/bucket"
)

type Artifact struct {
	Path    string
	Version Version
	Data    []byte
}

// RenderError reports a version that could not be rendered. The other versions still publish.
type RenderError struct {
	Version Version
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Version, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Render produces every bucket artifact for every version, plus single-alert artifacts for
// singles. A version that fails to render contributes no artifacts and one RenderError.
func Render(buckets []bucket.Bucket, singles []*alert.Alert) ([]Artifact, []*RenderError) {
	var (
		artifacts []Artifact
		failures  []*RenderError
	)

	for _, version := range Versions {
		rendered, err := renderVersion(version, buckets, singles)
		if err != nil {
			failures = append(failures, &RenderError{Version: version, Err: err})
			continue
		}
		artifacts = append(artifacts, rendered...)
	}

	return artifacts, failures
}

func renderVersion(version Version, buckets []bucket.Bucket, singles []*alert.Alert) ([]Artifact, error) {
	var artifacts []Artifact

	for _, b := range buckets {
		path, err := BucketPath(version, b.Key)
		if err != nil {
			return nil, err
		}

		data, err := ProjectList(version, b.Alerts)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", b.Key, err)
		}

		artifacts = append(artifacts, Artifact{Path: path, Version: version, Data: data})
	}

	for _, a := range singles {
		paths := AlertPaths(version, a.ID)
		if len(paths) == 0 {
			break
		}

		data, err := Project(version, a)
		if err != nil {
			return nil, fmt.Errorf("alert %d: %w", a.ID, err)
		}

		for _, path := range paths {
			artifacts = append(artifacts, Artifact{Path: path, Version: version, Data: data})
		}
	}

	return artifacts, nil
}
