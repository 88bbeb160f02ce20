package gitsrc

import (
	"fmt"
	"strings"
)

// Repository is a parsed git remote.
type Repository struct {
	Owner     string
	Name      string
	RemoteURL string
}

// ParseRemoteURL splits a remote URL into owner and repository name. The
// scp-like SSH form (git@host:owner/repo.git) and http(s) URLs are accepted;
// RemoteURL keeps the input unchanged for cloning. Nested group paths stay
// part of the name.
func ParseRemoteURL(rawURL string) (Repository, error) {
	stripped := strings.TrimSuffix(rawURL, ".git")

	var path string
	switch {
	case strings.HasPrefix(stripped, "git@"):
		_, after, found := strings.Cut(stripped[len("git@"):], ":")
		if !found {
			return Repository{}, fmt.Errorf("remote %q is not a valid SSH URL", rawURL)
		}
		path = after
	case strings.HasPrefix(stripped, "https://"), strings.HasPrefix(stripped, "http://"):
		trimmed := strings.TrimPrefix(strings.TrimPrefix(stripped, "https://"), "http://")
		_, after, found := strings.Cut(trimmed, "/")
		if !found {
			return Repository{}, fmt.Errorf("remote %q has no repository path", rawURL)
		}
		path = after
	default:
		return Repository{}, fmt.Errorf("remote %q is not an SSH or HTTP(S) URL", rawURL)
	}

	owner, name, found := strings.Cut(path, "/")
	if !found || owner == "" || name == "" {
		return Repository{}, fmt.Errorf("remote %q has no owner/name path", rawURL)
	}

	return Repository{Owner: owner, Name: name, RemoteURL: rawURL}, nil
}
