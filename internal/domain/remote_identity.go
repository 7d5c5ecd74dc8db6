package domain

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

var scpLikeURLPattern = regexp.MustCompile(`^([^@/\s]+)@([^:\s]+):(.+)$`)

// RemoteIdentity reduces a git remote URL to host/path so that the ssh and
// https spellings of one repository compare equal. Local paths map to
// "file/<path>".
func RemoteIdentity(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("empty remote url")
	}

	if m := scpLikeURLPattern.FindStringSubmatch(rawURL); m != nil {
		host := strings.ToLower(strings.TrimSpace(m[2]))
		repoPath := normalizeRepoPath(m[3])
		if host == "" || repoPath == "" {
			return "", fmt.Errorf("invalid remote url %q", rawURL)
		}
		return host + "/" + repoPath, nil
	}

	if strings.HasPrefix(rawURL, "/") {
		p := normalizeRepoPath(rawURL)
		if p == "" {
			return "", fmt.Errorf("invalid remote path %q", rawURL)
		}
		return "file/" + p, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme == "" && u.Host == "" {
		return "", fmt.Errorf("invalid remote url %q", rawURL)
	}
	if u.Scheme == "file" {
		return "file/" + normalizeRepoPath(u.Path), nil
	}

	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	repoPath := normalizeRepoPath(u.Path)
	if host == "" || repoPath == "" {
		return "", fmt.Errorf("invalid remote url %q", rawURL)
	}
	return host + "/" + repoPath, nil
}

func normalizeRepoPath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "/")
	raw = strings.TrimSuffix(raw, ".git")
	raw = path.Clean(raw)
	if raw == "." || raw == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(raw, "/"))
}

// DuplicateRemotes groups remote names whose URLs resolve to the same
// repository. Remotes without a parseable URL are ignored. Groups and the
// names inside them are sorted.
func DuplicateRemotes(remotes map[string]RemoteConfig) [][]string {
	byIdentity := map[string][]string{}
	for name, remote := range remotes {
		id, err := RemoteIdentity(remote.URL)
		if err != nil {
			continue
		}
		byIdentity[id] = append(byIdentity[id], name)
	}
	var groups [][]string
	for _, names := range byIdentity {
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		groups = append(groups, names)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}
