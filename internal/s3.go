package internal

import (
	"fmt"
	"strings"
)

// ParseS3URI parses S3 URIs in format s3://bucket/key.
//
// Both bucket and key must be non-empty.
func ParseS3URI(text string) (bucket, key string, err error) {
	if !strings.HasPrefix(text, "s3://") {
		return "", "", fmt.Errorf("text does not start with s3://")
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(text, "s3://"), "/")
	switch {
	case bucket == "":
		return "", "", fmt.Errorf("missing bucket in %q", text)
	case key == "":
		return "", "", fmt.Errorf("missing key in %q", text)
	}

	return
}
